package txnlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_WithSerializesAccess(t *testing.T) {
	r := New(4)
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.With(7, func() {
				counter++
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestRegistry_LockReturnsSameMutexForSameID(t *testing.T) {
	r := New(8)
	mu1 := r.Lock(42)
	mu1.Unlock()
	mu2 := r.Lock(42)
	mu2.Unlock()
	assert.Same(t, mu1, mu2)
}

func TestRegistry_DefaultShards(t *testing.T) {
	r := New(0)
	assert.Len(t, r.shards, DefaultShards)
}
