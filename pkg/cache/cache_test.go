package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutGet(t *testing.T) {
	c := New[string](time.Minute)

	c.Put("wkn:723610", "siemens")
	got, ok := c.Get("wkn:723610")
	assert.True(t, ok)
	assert.Equal(t, "siemens", got)

	_, ok = c.Get("wkn:missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New[int](50 * time.Millisecond)

	c.Put("k", 1)
	time.Sleep(80 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestBust(t *testing.T) {
	c := New[int](time.Minute)

	c.Put("k", 1)
	c.Bust("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCleaner(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	stop := make(chan struct{})
	go c.StartCleaner(20*time.Millisecond, stop)
	defer close(stop)

	c.Put("a", 1)
	c.Put("b", 2)
	time.Sleep(60 * time.Millisecond)

	c.mu.RLock()
	n := len(c.data)
	c.mu.RUnlock()
	assert.Zero(t, n, "cleaner must evict expired entries")
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i)
			c.Get("k")
		}(i)
	}
	wg.Wait()

	_, ok := c.Get("k")
	assert.True(t, ok)
}
