package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"
)

// Tags de dominio para invalidación agrupada
const (
	TagLeads     = "leads"
	TagStats     = "stats"
	TagPipeline  = "pipeline"
	TagDashboard = "dashboard"
)

// StrategyName identifica una estrategia de cacheo nombrada. El set es cerrado:
// cada endpoint de lectura usa una de estas en vez de armar claves a mano, así
// la invalidación nunca queda desalineada con la escritura.
type StrategyName string

const (
	StrategyLeads            StrategyName = "leads"
	StrategyLeadsCount       StrategyName = "leadsCount"
	StrategyLeadDetail       StrategyName = "leadDetail"
	StrategyPipelineStats    StrategyName = "pipelineStats"
	StrategyDashboardMetrics StrategyName = "dashboardMetrics"
)

type Strategy struct {
	Prefix string
	TTL    time.Duration
	Tags   []string
}

// Key arma la clave determinística: prefijo + JSON de los parámetros
func (st Strategy) Key(params interface{}) string {
	if params == nil {
		return st.Prefix
	}
	b, err := json.Marshal(params)
	if err != nil {
		return st.Prefix
	}
	return st.Prefix + ":" + string(b)
}

var strategies = map[StrategyName]Strategy{
	StrategyLeads:            {Prefix: "leads", TTL: 2 * time.Minute, Tags: []string{TagLeads}},
	StrategyLeadsCount:       {Prefix: "leads_count", TTL: 2 * time.Minute, Tags: []string{TagLeads, TagStats}},
	StrategyLeadDetail:       {Prefix: "lead", TTL: 5 * time.Minute, Tags: []string{TagLeads}},
	StrategyPipelineStats:    {Prefix: "pipeline_stats", TTL: 1 * time.Minute, Tags: []string{TagPipeline, TagStats}},
	StrategyDashboardMetrics: {Prefix: "dashboard_metrics", TTL: 1 * time.Minute, Tags: []string{TagDashboard, TagStats}},
}

// StrategyFor devuelve la estrategia nombrada; el bool es false para nombres desconocidos
func StrategyFor(name StrategyName) (Strategy, bool) {
	st, ok := strategies[name]
	return st, ok
}

type Fetcher func(ctx context.Context) (interface{}, error)

// Service envuelve el Store con el patrón getOrSet y la invalidación nombrada
// que disparan las mutaciones de leads/pipeline. Se construye una instancia en
// main y se inyecta; no hay singleton global.
type Service struct {
	store *Store

	// OnLookup, si está seteado, se llama en cada lectura (true = hit).
	// Lo usa main para enganchar métricas sin acoplar este paquete a prometheus.
	OnLookup func(hit bool)
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) Store() *Store { return s.store }

// GetOrSet devuelve el valor cacheado si hay hit; en miss ejecuta el fetcher y
// cachea el resultado. Si el fetcher falla no se cachea nada y el error sube
// tal cual: un fallo del cache nunca reemplaza un fallo del fetcher.
func (s *Service) GetOrSet(ctx context.Context, key string, fetcher Fetcher, opts SetOptions) (interface{}, error) {
	if v, ok := s.store.Get(key); ok {
		s.lookup(true)
		return v, nil
	}
	s.lookup(false)

	v, err := fetcher(ctx)
	if err != nil {
		return nil, err
	}

	s.store.Set(key, v, opts)
	return v, nil
}

// GetOrSetWith es GetOrSet usando una estrategia nombrada
func (s *Service) GetOrSetWith(ctx context.Context, name StrategyName, params interface{}, fetcher Fetcher) (interface{}, error) {
	st, ok := StrategyFor(name)
	if !ok {
		// estrategia desconocida: no cachear, pero la lectura tiene que salir igual
		log.Printf("⚠️ Cache: estrategia desconocida %q, se saltea el cache", name)
		return fetcher(ctx)
	}
	return s.GetOrSet(ctx, st.Key(params), fetcher, SetOptions{TTL: st.TTL, Tags: st.Tags})
}

func (s *Service) InvalidateByTag(tag string) int {
	return s.store.InvalidateByTag(tag)
}

// InvalidatePattern borra toda clave vigente que matchee el patrón con
// comodín '*' (ej: "lead:abc*")
func (s *Service) InvalidatePattern(pattern string) int {
	count := 0
	for _, key := range s.store.Keys() {
		if matchPattern(pattern, key) {
			if s.store.Delete(key) {
				count++
			}
		}
	}
	return count
}

// Hooks de invalidación: los llama todo camino de mutación de leads/pipeline

func (s *Service) OnLeadChange() {
	n := s.InvalidateByTag(TagLeads)
	n += s.InvalidateByTag(TagStats)
	n += s.InvalidateByTag(TagDashboard)
	if n > 0 {
		log.Printf("🧹 Cache: %d entradas invalidadas por cambio de lead", n)
	}
}

func (s *Service) OnPipelineChange() {
	n := s.InvalidateByTag(TagPipeline)
	n += s.InvalidateByTag(TagStats)
	n += s.InvalidateByTag(TagDashboard)
	if n > 0 {
		log.Printf("🧹 Cache: %d entradas invalidadas por cambio de pipeline", n)
	}
}

func (s *Service) OnSpecificLeadChange(leadID string) {
	s.InvalidatePattern("lead:*" + leadID + "*")
	s.InvalidateByTag(TagLeads)
	s.InvalidateByTag(TagStats)
}

// StartSweep corre Cleanup cada interval hasta que el contexto se cancele.
// El supervisor del proceso es dueño de este ciclo de vida.
func (s *Service) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("⚠️ Cache: barrido periódico detenido")
				return
			case <-ticker.C:
				s.store.Cleanup()
			}
		}
	}()
}

func (s *Service) lookup(hit bool) {
	if s.OnLookup != nil {
		s.OnLookup(hit)
	}
}

// matchPattern soporta solo el comodín '*'. Los segmentos literales tienen que
// aparecer en orden; el primero anclado al inicio y el último al final.
func matchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}

	rest := key
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		if i == len(parts)-1 && !strings.HasSuffix(rest, part) {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return true
}
