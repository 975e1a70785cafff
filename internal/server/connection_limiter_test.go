package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalLimitRejectsAtCapacity(t *testing.T) {
	limits := NewConnectionLimits(2, 10, 1000, 1000)

	ok, _ := limits.Acquire("1.1.1.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("2.2.2.2")
	require.True(t, ok)

	ok, reason := limits.Acquire("3.3.3.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("1.1.1.1")
	ok, _ = limits.Acquire("3.3.3.3")
	assert.True(t, ok)
}

func TestPerIPLimitIsIndependent(t *testing.T) {
	limits := NewConnectionLimits(100, 2, 1000, 1000)

	ok, _ := limits.Acquire("1.1.1.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("1.1.1.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// Other IPs are unaffected.
	ok, _ = limits.Acquire("2.2.2.2")
	assert.True(t, ok)
}

func TestPerIPRejectionRollsBackGlobalSlot(t *testing.T) {
	limits := NewConnectionLimits(100, 1, 1000, 1000)

	ok, _ := limits.Acquire("1.1.1.1")
	require.True(t, ok)

	ok, _ = limits.Acquire("1.1.1.1")
	require.False(t, ok)

	assert.Equal(t, int64(1), limits.Current())
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	limits := NewConnectionLimits(100, 100, 0.001, 2)

	ok, _ := limits.Acquire("1.1.1.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("1.1.1.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}

func TestReleaseBalancesConcurrentChurn(t *testing.T) {
	limits := NewConnectionLimits(1000, 1000, 100000, 100000)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.0.%d", i%5)
			for range 20 {
				if ok, _ := limits.Acquire(ip); ok {
					limits.Release(ip)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(0), limits.Current())
}
