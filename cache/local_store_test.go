package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSetGet(t *testing.T) {
	s := NewLocalStore(10)

	s.Set("a", []byte("payload"), time.Minute)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestLocalStoreZeroTTLIsNotStored(t *testing.T) {
	s := NewLocalStore(10)

	s.Set("a", []byte("x"), 0)
	s.Set("b", []byte("x"), -time.Second)

	assert.Equal(t, 0, s.Len())
}

func TestLocalStoreExpiry(t *testing.T) {
	s := NewLocalStore(10)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Set("a", []byte("x"), time.Second)

	_, ok := s.Get("a")
	require.True(t, ok)

	now = now.Add(2 * time.Second)

	_, ok = s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len(), "expired entry should be dropped on read")
}

func TestLocalStoreEvictionPurgesExpiredFirst(t *testing.T) {
	s := NewLocalStore(5)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Set("dead1", []byte("x"), time.Second)
	s.Set("dead2", []byte("x"), time.Second)
	s.Set("live1", []byte("x"), time.Hour)
	s.Set("live2", []byte("x"), time.Hour)
	s.Set("live3", []byte("x"), time.Hour)

	now = now.Add(2 * time.Second)
	s.Set("new", []byte("x"), time.Hour)

	assert.False(t, s.Exists("dead1"))
	assert.False(t, s.Exists("dead2"))
	assert.True(t, s.Exists("live1"))
	assert.True(t, s.Exists("live2"))
	assert.True(t, s.Exists("live3"))
	assert.True(t, s.Exists("new"))

	_, _, evictions := s.Counters()
	assert.EqualValues(t, 2, evictions)
}

func TestLocalStoreEvictionDropsOldestExpiring(t *testing.T) {
	s := NewLocalStore(10)
	now := time.Now()
	s.now = func() time.Time { return now }

	// all alive; entry i expires after i+1 minutes
	for i := 0; i < 10; i++ {
		s.Set(fmt.Sprintf("k%d", i), []byte("x"), time.Duration(i+1)*time.Minute)
	}

	s.Set("overflow", []byte("x"), time.Hour)

	// 20% of 10 = the two soonest-expiring entries go
	assert.False(t, s.Exists("k0"))
	assert.False(t, s.Exists("k1"))
	assert.True(t, s.Exists("k2"))
	assert.True(t, s.Exists("k9"))
	assert.True(t, s.Exists("overflow"))
	assert.Equal(t, 9, s.Len())
}

func TestLocalStoreDeleteByPattern(t *testing.T) {
	s := NewLocalStore(10)
	s.Set("app:track_search:one", []byte("x"), time.Minute)
	s.Set("app:track_search:two", []byte("x"), time.Minute)
	s.Set("app:trending:one", []byte("x"), time.Minute)

	removed := s.DeleteByPattern("app:track_search:*")

	assert.Equal(t, 2, removed)
	assert.False(t, s.Exists("app:track_search:one"))
	assert.True(t, s.Exists("app:trending:one"))
}

func TestLocalStoreCounters(t *testing.T) {
	s := NewLocalStore(10)
	s.Set("a", []byte("x"), time.Minute)

	s.Get("a")
	s.Get("a")
	s.Get("nope")

	hits, misses, _ := s.Counters()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
}
