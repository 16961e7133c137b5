package cache

import (
	"sync"
	"time"
)

const (
	// DefaultTTL se aplica cuando el caller no especifica uno
	DefaultTTL = 5 * time.Minute

	// MaxEntries es el techo de entradas; Cleanup desaloja las más viejas al superarlo
	MaxEntries = 1000
)

type cacheEntry struct {
	value     interface{}
	createdAt time.Time
	ttl       time.Duration
	tags      []string
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Deletes   int64   `json:"deletes"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	TagCount  int     `json:"tag_count"`
}

type SetOptions struct {
	TTL  time.Duration
	Tags []string
}

// Store es un cache clave/valor en memoria con TTL e índice por tag.
// Todas las operaciones son seguras para uso concurrente.
type Store struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	tags    map[string]map[string]struct{} // tag -> set de claves

	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64

	maxEntries int
	now        func() time.Time // inyectable en tests
}

func NewStore() *Store {
	return &Store{
		entries:    make(map[string]*cacheEntry),
		tags:       make(map[string]map[string]struct{}),
		maxEntries: MaxEntries,
		now:        time.Now,
	}
}

// Get devuelve el valor si existe y no expiró. Una entrada expirada se
// elimina acá mismo (lazy eviction) y cuenta como miss.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}

	if e.expired(s.now()) {
		s.removeLocked(key, e)
		s.evictions++
		s.misses++
		return nil, false
	}

	s.hits++
	return e.value, true
}

// Set pisa cualquier entrada previa bajo la misma clave y registra la clave
// en el índice de cada tag.
func (s *Store) Set(key string, value interface{}, opts SetOptions) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.untagLocked(key, old)
	}

	s.entries[key] = &cacheEntry{
		value:     value,
		createdAt: s.now(),
		ttl:       ttl,
		tags:      opts.Tags,
	}

	for _, tag := range opts.Tags {
		if s.tags[tag] == nil {
			s.tags[tag] = make(map[string]struct{})
		}
		s.tags[tag][key] = struct{}{}
	}

	s.sets++
}

func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(key, e)
	s.deletes++
	return true
}

// InvalidateByTag borra todas las claves indexadas bajo el tag y devuelve cuántas
func (s *Store) InvalidateByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.tags[tag]
	if !ok {
		return 0
	}

	count := 0
	for key := range keys {
		if e, ok := s.entries[key]; ok {
			s.removeLocked(key, e)
			s.deletes++
			count++
		}
	}
	return count
}

// Keys devuelve las claves vigentes (para invalidación por patrón)
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Cleanup barre las entradas expiradas y, si el total sigue por encima del
// techo, desaloja las de creación más vieja hasta quedar dentro del límite.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if e.expired(now) {
			s.removeLocked(key, e)
			s.evictions++
		}
	}

	for len(s.entries) > s.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, e := range s.entries {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey = key
				oldest = e.createdAt
			}
		}
		s.removeLocked(oldestKey, s.entries[oldestKey])
		s.evictions++
	}
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hitRate float64
	if total := s.hits + s.misses; total > 0 {
		hitRate = float64(s.hits) / float64(total)
	}

	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Sets:      s.sets,
		Deletes:   s.deletes,
		Evictions: s.evictions,
		HitRate:   hitRate,
		Size:      len(s.entries),
		TagCount:  len(s.tags),
	}
}

// Clear vacía el cache y resetea los contadores
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*cacheEntry)
	s.tags = make(map[string]map[string]struct{})
	s.hits, s.misses, s.sets, s.deletes, s.evictions = 0, 0, 0, 0, 0
}

// removeLocked saca la entrada y la desindexa de todos sus tags. Requiere mu.
// El contador (delete vs eviction) lo incrementa el caller.
func (s *Store) removeLocked(key string, e *cacheEntry) {
	delete(s.entries, key)
	s.untagLocked(key, e)
}

func (s *Store) untagLocked(key string, e *cacheEntry) {
	for _, tag := range e.tags {
		if set, ok := s.tags[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(s.tags, tag)
			}
		}
	}
}
