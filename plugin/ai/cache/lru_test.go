package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestLRUCache_BasicOperations(t *testing.T) {
	cache := NewLRUCache[[]float32](100, time.Minute)

	t.Run("SetAndGet", func(t *testing.T) {
		cache.Set("key1", []float32{0.6, 0.8}, 0)

		val, ok := cache.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, []float32{0.6, 0.8}, val)
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		val, ok := cache.Get("nonexistent")
		assert.False(t, ok)
		assert.Nil(t, val)
	})

	t.Run("UpdateExisting", func(t *testing.T) {
		cache.Set("key2", []float32{1}, 0)
		cache.Set("key2", []float32{0, 1}, 0)

		val, ok := cache.Get("key2")
		assert.True(t, ok)
		assert.Equal(t, []float32{0, 1}, val)
	})
}

func TestLRUCache_Expiration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewLRUCache[string](100, time.Minute).WithClock(clock.Now)

	cache.Set("expiring", "value", 50*time.Millisecond)

	val, ok := cache.Get("expiring")
	assert.True(t, ok)
	assert.Equal(t, "value", val)

	clock.Advance(60 * time.Millisecond)

	val, ok = cache.Get("expiring")
	assert.False(t, ok)
	assert.Empty(t, val)
	// Expired entries are dropped on read.
	assert.Empty(t, cache.cache)
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewLRUCache[int](3, time.Minute)

	cache.Set("key1", 1, 0)
	cache.Set("key2", 2, 0)
	cache.Set("key3", 3, 0)

	// Access key1 to make it recently used
	cache.Get("key1")

	// Add new entry, should evict key2 (LRU)
	cache.Set("key4", 4, 0)
	assert.Len(t, cache.cache, 3)

	_, ok := cache.Get("key2")
	assert.False(t, ok)

	_, ok = cache.Get("key1")
	assert.True(t, ok)
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewLRUCache[[]byte](1000, time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%26))
			cache.Set(key, []byte{byte(n)}, 0)
		}(i)
		go func(n int) {
			defer wg.Done()
			cache.Get(string(rune('a' + n%26)))
		}(i)
	}

	wg.Wait()
	assert.LessOrEqual(t, len(cache.cache), 26)
}
