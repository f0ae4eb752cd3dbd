package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type profile struct {
	key  string
	busy bool
}

func newCounting(clock *fakeClock, created *atomic.Int32, opts ...Option[string, *profile]) *Cache[string, *profile] {
	opts = append([]Option[string, *profile]{WithClock[string, *profile](clock.Now)}, opts...)
	return New(3*time.Minute, func(k string) *profile {
		created.Add(1)
		return &profile{key: k}
	}, opts...)
}

func TestGetCreatesOncePerKey(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var created atomic.Int32
	c := newCounting(clock, &created)

	a := c.Get("alpha")
	assert.Same(t, a, c.Get("alpha"))
	assert.NotSame(t, a, c.Get("beta"))
	assert.Equal(t, int32(2), created.Load())
}

func TestIdleExpiryRecreates(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var created atomic.Int32
	c := newCounting(clock, &created)

	first := c.Get("alpha")

	clock.Advance(2 * time.Minute)
	assert.Same(t, first, c.Get("alpha"), "access refreshes expiry")

	clock.Advance(2 * time.Minute)
	assert.Same(t, first, c.Get("alpha"))

	clock.Advance(3 * time.Minute)
	_, ok := c.Peek("alpha")
	assert.False(t, ok)

	second := c.Get("alpha")
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), created.Load())
}

func TestRetainKeepsBusyEntries(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var created atomic.Int32
	c := newCounting(clock, &created, WithRetain[string, *profile](func(p *profile) bool { return p.busy }))

	p := c.Get("alpha")
	p.busy = true
	clock.Advance(time.Hour)

	assert.Same(t, p, c.Get("alpha"))
	assert.Zero(t, c.Cleanup())

	p.busy = false
	clock.Advance(time.Hour)
	assert.Equal(t, 1, c.Cleanup())
	assert.Zero(t, c.Len())
}

func TestInvalidate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var created atomic.Int32
	c := newCounting(clock, &created)

	c.Get("alpha")
	c.Invalidate("alpha")
	_, ok := c.Peek("alpha")
	assert.False(t, ok)
}

func TestConcurrentGetSingleValue(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var created atomic.Int32
	c := newCounting(clock, &created)

	var wg sync.WaitGroup
	results := make([]*profile, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get("alpha")
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	assert.Equal(t, int32(1), created.Load())
}
