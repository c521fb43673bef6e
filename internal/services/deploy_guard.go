package services

import (
	"sync"

	"github.com/google/uuid"
)

// DeployGuard serializes deployment attempts per application. The synchronous
// pipeline stage and the auto-deployment trigger both go through it; the
// loser of the race skips instead of duplicating provisioning work.
type DeployGuard struct {
	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewDeployGuard() *DeployGuard {
	return &DeployGuard{inFlight: map[uuid.UUID]struct{}{}}
}

// TryAcquire marks a deployment in flight for the application. Returns false
// when one is already running.
func (g *DeployGuard) TryAcquire(appID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[appID]; busy {
		return false
	}
	g.inFlight[appID] = struct{}{}
	return true
}

// Release clears the in-flight mark. Safe to call when not held.
func (g *DeployGuard) Release(appID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, appID)
}
