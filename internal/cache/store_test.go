package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// clockStore devuelve un Store con reloj controlado por el test
func clockStore() (*Store, *time.Time) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStoreGetSet(t *testing.T) {
	s, _ := clockStore()

	s.Set("k", "v", SetOptions{TTL: time.Second})

	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = s.Get("inexistente")
	assert.False(t, ok)
}

func TestStoreTTLExpiry(t *testing.T) {
	s, now := clockStore()

	s.Set("k", "v", SetOptions{TTL: time.Second})

	*now = now.Add(900 * time.Millisecond)
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	// pasado el TTL la entrada no puede volver como hit
	*now = now.Add(200 * time.Millisecond)
	_, ok = s.Get("k")
	assert.False(t, ok)

	// la eviction lazy la sacó del mapa
	assert.Equal(t, 0, s.Stats().Size)
}

func TestStoreSetOverwrite(t *testing.T) {
	s, _ := clockStore()

	s.Set("k", 1, SetOptions{Tags: []string{"a"}})
	s.Set("k", 2, SetOptions{Tags: []string{"b"}})

	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	// el tag viejo no tiene que seguir apuntando a la clave
	assert.Equal(t, 0, s.InvalidateByTag("a"))
	assert.Equal(t, 1, s.InvalidateByTag("b"))
}

func TestStoreDelete(t *testing.T) {
	s, _ := clockStore()

	s.Set("k", "v", SetOptions{Tags: []string{"x"}})
	assert.True(t, s.Delete("k"))
	assert.False(t, s.Delete("k"))

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.InvalidateByTag("x"))
}

func TestStoreInvalidateByTag(t *testing.T) {
	s, _ := clockStore()

	s.Set("a", 1, SetOptions{Tags: []string{"x"}})
	s.Set("b", 2, SetOptions{Tags: []string{"y"}})
	s.Set("c", 3, SetOptions{Tags: []string{"x", "y"}})

	// borra todas las claves bajo x y ninguna fuera
	assert.Equal(t, 2, s.InvalidateByTag("x"))

	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("c")
	assert.False(t, ok)

	v, ok := s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStoreCleanupExpired(t *testing.T) {
	s, now := clockStore()

	s.Set("viejo", 1, SetOptions{TTL: time.Second})
	s.Set("nuevo", 2, SetOptions{TTL: time.Hour})

	*now = now.Add(2 * time.Second)
	s.Cleanup()

	st := s.Stats()
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, int64(1), st.Evictions)

	v, ok := s.Get("nuevo")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStoreCleanupCeiling(t *testing.T) {
	s, now := clockStore()
	s.maxEntries = 3

	s.Set("a", 1, SetOptions{TTL: time.Hour})
	*now = now.Add(time.Second)
	s.Set("b", 2, SetOptions{TTL: time.Hour})
	*now = now.Add(time.Second)
	s.Set("c", 3, SetOptions{TTL: time.Hour})
	*now = now.Add(time.Second)
	s.Set("d", 4, SetOptions{TTL: time.Hour})
	*now = now.Add(time.Second)
	s.Set("e", 5, SetOptions{TTL: time.Hour})

	s.Cleanup()

	st := s.Stats()
	assert.Equal(t, 3, st.Size)

	// se van las de creación más vieja
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.False(t, ok)
	_, ok = s.Get("e")
	assert.True(t, ok)
}

func TestStoreStats(t *testing.T) {
	s, _ := clockStore()

	st := s.Stats()
	assert.Equal(t, float64(0), st.HitRate) // sin lecturas todavía

	s.Set("k", "v", SetOptions{})
	s.Get("k")
	s.Get("k")
	s.Get("no-existe")

	st = s.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 0.0001)
}

func TestStoreClear(t *testing.T) {
	s, _ := clockStore()

	s.Set("a", 1, SetOptions{Tags: []string{"x"}})
	s.Get("a")
	s.Clear()

	st := s.Stats()
	assert.Equal(t, 0, st.Size)
	assert.Equal(t, 0, st.TagCount)
	assert.Equal(t, int64(0), st.Hits)
	assert.Equal(t, int64(0), st.Sets)
}
