package service

import (
	"context"
	"log"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from their front end
// ─────────────────────────────────────────────────────────────

// Build lifecycle events.
const (
	EventBuildCompleted = "build:completed"
	EventBuildFailed    = "build:failed"
)

// EventEmitter receives build notifications. The CLI logs them; the MCP
// server and tests plug in their own implementation.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to the standard logger.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, event string, data any) {
	log.Printf("event %s: %+v", event, data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Scheduled builds emit from their own goroutines, so access is locked.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Snapshot returns a copy of the events recorded so far.
func (m *MockEmitter) Snapshot() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmittedEvent, len(m.Events))
	copy(out, m.Events)
	return out
}
