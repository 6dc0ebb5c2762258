package tools

import (
	"sync"
	"time"
)

// Registry maps operation ids to operations so the HTTP layer can look them
// up after the submitting request has returned. Finished operations are
// dropped after a retention period.
type Registry struct {
	mu        sync.RWMutex
	ops       map[string]*Operation
	retention time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry keeping finished operations for retention.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		ops:       make(map[string]*Operation),
		retention: retention,
		now:       time.Now,
	}
}

// Add registers op and returns it for chaining.
func (r *Registry) Add(op *Operation) *Operation {
	r.mu.Lock()
	r.ops[op.ID()] = op
	r.mu.Unlock()
	return op
}

// Get returns the operation with id.
func (r *Registry) Get(id string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[id]
	return op, ok
}

// Sweep drops operations that finished before the retention window and
// returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, op := range r.ops {
		if op.finishedBefore(cutoff) {
			delete(r.ops, id)
			n++
		}
	}
	return n
}

// CancelAll aborts every running operation. Used at shutdown.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	ops := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.mu.RUnlock()
	for _, op := range ops {
		op.Cancel()
	}
}

// Len returns the number of tracked operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
