package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetOrSetHitNoRefetch(t *testing.T) {
	svc := NewService(NewStore())
	calls := 0
	fetcher := func(ctx context.Context) (interface{}, error) {
		calls++
		return "dato", nil
	}

	v1, err := svc.GetOrSet(context.Background(), "k", fetcher, SetOptions{TTL: time.Minute})
	assert.NoError(t, err)
	assert.Equal(t, "dato", v1)

	// segunda llamada: hit, el fetcher no se invoca de nuevo
	v2, err := svc.GetOrSet(context.Background(), "k", fetcher, SetOptions{TTL: time.Minute})
	assert.NoError(t, err)
	assert.Equal(t, "dato", v2)
	assert.Equal(t, 1, calls)
}

func TestGetOrSetFetcherErrorNotCached(t *testing.T) {
	svc := NewService(NewStore())
	boom := errors.New("backend caído")
	calls := 0

	fetcher := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	_, err := svc.GetOrSet(context.Background(), "k", fetcher, SetOptions{})
	assert.ErrorIs(t, err, boom)

	// el error no dejó nada cacheado: el retry vuelve a ejecutar el fetcher
	v, err := svc.GetOrSet(context.Background(), "k", fetcher, SetOptions{})
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestGetOrSetWithStrategyKeys(t *testing.T) {
	svc := NewService(NewStore())

	type filtros struct {
		Estado string `json:"estado"`
	}

	calls := 0
	fetcher := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	v1, _ := svc.GetOrSetWith(context.Background(), StrategyLeads, filtros{Estado: "NEW"}, fetcher)
	v2, _ := svc.GetOrSetWith(context.Background(), StrategyLeads, filtros{Estado: "NEW"}, fetcher)
	v3, _ := svc.GetOrSetWith(context.Background(), StrategyLeads, filtros{Estado: "REJECTED"}, fetcher)

	// mismos filtros -> misma clave; filtros distintos -> clave distinta
	assert.Equal(t, v1, v2)
	assert.NotEqual(t, v1, v3)
	assert.Equal(t, 2, calls)
}

func TestOnLeadChangeInvalidation(t *testing.T) {
	svc := NewService(NewStore())

	noFetch := func(v interface{}) Fetcher {
		return func(ctx context.Context) (interface{}, error) { return v, nil }
	}

	svc.GetOrSetWith(context.Background(), StrategyLeads, nil, noFetch("pagina"))
	svc.GetOrSetWith(context.Background(), StrategyDashboardMetrics, nil, noFetch("métricas"))
	svc.Store().Set("ajeno", "queda", SetOptions{TTL: time.Minute})

	svc.OnLeadChange()

	// leads y dashboard invalidados, lo no tageado queda
	st, _ := StrategyFor(StrategyLeads)
	_, ok := svc.Store().Get(st.Key(nil))
	assert.False(t, ok)

	st, _ = StrategyFor(StrategyDashboardMetrics)
	_, ok = svc.Store().Get(st.Key(nil))
	assert.False(t, ok)

	v, ok := svc.Store().Get("ajeno")
	assert.True(t, ok)
	assert.Equal(t, "queda", v)
}

func TestInvalidatePattern(t *testing.T) {
	svc := NewService(NewStore())
	s := svc.Store()

	s.Set("lead:abc-123", 1, SetOptions{TTL: time.Minute})
	s.Set("lead:abc-123:eventos", 2, SetOptions{TTL: time.Minute})
	s.Set("lead:zzz-999", 3, SetOptions{TTL: time.Minute})
	s.Set("leads:{}", 4, SetOptions{TTL: time.Minute})

	n := svc.InvalidatePattern("lead:abc-123*")
	assert.Equal(t, 2, n)

	_, ok := s.Get("lead:zzz-999")
	assert.True(t, ok)
	_, ok = s.Get("leads:{}")
	assert.True(t, ok)
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"lead:1*", "lead:1", true},
		{"lead:1*", "lead:1:eventos", true},
		{"lead:1*", "lead:2", false},
		{"*stats*", "pipeline_stats:{}", true},
		{"exacta", "exacta", true},
		{"exacta", "exacta2", false},
		{"a*b", "axxb", true},
		{"a*b", "axxbc", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, matchPattern(c.pattern, c.key), "pattern=%s key=%s", c.pattern, c.key)
	}
}

func TestStartSweepStopsOnCancel(t *testing.T) {
	svc := NewService(NewStore())

	ctx, cancel := context.WithCancel(context.Background())
	svc.StartSweep(ctx, 10*time.Millisecond)

	svc.Store().Set("k", "v", SetOptions{TTL: time.Minute})
	time.Sleep(30 * time.Millisecond)
	cancel()

	// no hay forma directa de observar la goroutine; alcanza con que no panickee
	// y que el store siga usable después del cancel
	time.Sleep(20 * time.Millisecond)
	_, ok := svc.Store().Get("k")
	assert.True(t, ok)
}
