package limiter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerAddressLimit(t *testing.T) {
	l := New(1, 0)
	assert.True(t, l.TryAcquire("10.0.0.1"))
	assert.False(t, l.TryAcquire("10.0.0.1"))
	assert.True(t, l.TryAcquire("10.0.0.2"))

	l.Release("10.0.0.1")
	assert.Equal(t, 0, l.Count("10.0.0.1"))
	assert.True(t, l.TryAcquire("10.0.0.1"))
	assert.Equal(t, 2, l.Total())
}

func TestGlobalLimit(t *testing.T) {
	l := New(0, 2)
	assert.True(t, l.TryAcquire("a"))
	assert.True(t, l.TryAcquire("b"))
	assert.False(t, l.TryAcquire("c"))
	assert.Equal(t, 2, l.Total())
	assert.Equal(t, 0, l.Count("c"))

	l.Release("a")
	assert.True(t, l.TryAcquire("c"))
}

func TestZeroLimitsNeverReject(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 1000; i++ {
		assert.True(t, l.TryAcquire("same"))
	}
	assert.Equal(t, 1000, l.Total())
	assert.Equal(t, 1000, l.Count("same"))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	l := New(1, 1)
	l.Release("ghost")
	assert.Equal(t, 0, l.Total())

	assert.True(t, l.TryAcquire("a"))
	l.Release("a")
	l.Release("a")
	assert.Equal(t, 0, l.Total())
	assert.Equal(t, 0, l.Count("a"))

	assert.True(t, l.TryAcquire("b"))
	assert.False(t, l.TryAcquire("c"))
}

func TestConcurrentAcquireRelease(t *testing.T) {
	l := New(5, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if l.TryAcquire("shared") {
					l.Release("shared")
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.Total())
	assert.Equal(t, 0, l.Count("shared"))
}
