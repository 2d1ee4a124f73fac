// Package monitoring provides an in-memory, thread-safe Observer
// implementation.
//
// It stores terminal execution snapshots keyed by task ID and collects
// callback faults surfaced by the task core. This basic implementation is
// suitable for debugging, testing, and simple runtime analytics; production
// deployments can replace it with an Observer forwarding to their own
// metrics pipeline.
package monitoring

import (
	"sync"

	"routines/internal/domain"
)

// CallbackFault records a single panic recovered from a completion callback.
type CallbackFault struct {
	TaskID    string
	Recovered any
}

// Memory is the default Observer: snapshots in a concurrent-safe map,
// callback faults in an ordered slice.
type Memory struct {
	data sync.Map // TaskID -> domain.TaskState

	mu     sync.Mutex
	faults []CallbackFault
}

// NewMemory creates an empty in-memory observer.
func NewMemory() *Memory {
	return &Memory{}
}

// SaveMetrics stores the terminal snapshot of a task, indexed by its ID.
// A later snapshot for the same ID overwrites the previous one.
func (m *Memory) SaveMetrics(dto domain.TaskState) {
	m.data.Store(dto.TaskID, dto)
}

// GetMetrics returns a copy of all stored snapshots keyed by task ID.
func (m *Memory) GetMetrics() map[string]domain.TaskState {
	out := make(map[string]domain.TaskState)
	m.data.Range(func(key, value any) bool {
		out[key.(string)] = value.(domain.TaskState)
		return true
	})
	return out
}

// CallbackFault records a panic recovered from a completion callback.
func (m *Memory) CallbackFault(taskID string, recovered any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, CallbackFault{TaskID: taskID, Recovered: recovered})
}

// Faults returns the callback faults recorded so far, in occurrence order.
func (m *Memory) Faults() []CallbackFault {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallbackFault, len(m.faults))
	copy(out, m.faults)
	return out
}
