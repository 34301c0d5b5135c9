package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// runGuard: one build at a time
// ─────────────────────────────────────────────────────────────

// runGuard refuses to start a named run while another run with the same
// name is in flight, and lets shutdown wait for the in-flight ones.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks name as running. It reports false when it already is.
func (g *runGuard) TryLock(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, busy := g.running[name]; busy {
		return false
	}
	g.running[name] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases a name taken by a successful TryLock.
func (g *runGuard) Unlock(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, name)
	g.wg.Done()
}

// Running reports whether name is currently held.
func (g *runGuard) Running(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.running[name]
	return busy
}

// WaitAll blocks until every held name is released or ctx is done.
func (g *runGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
