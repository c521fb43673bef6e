package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDeployGuardMutualExclusion(t *testing.T) {
	g := NewDeployGuard()
	appID := uuid.New()

	require.True(t, g.TryAcquire(appID))
	require.False(t, g.TryAcquire(appID), "second acquire must lose while first holds")

	other := uuid.New()
	require.True(t, g.TryAcquire(other), "different applications are independent")

	g.Release(appID)
	require.True(t, g.TryAcquire(appID), "acquire succeeds again after release")
}

func TestDeployGuardConcurrentWinners(t *testing.T) {
	g := NewDeployGuard()
	appID := uuid.New()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(appID) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&wins), "exactly one goroutine wins the guard")
}

func TestDeployGuardReleaseWithoutHold(t *testing.T) {
	g := NewDeployGuard()
	g.Release(uuid.New())
}
