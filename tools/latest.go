package tools

import "sync"

// Latest tracks an adapter's most recent submission. Replacing it marks the
// previous operation superseded; that operation keeps running and its
// side effects (history) still happen, only its result is stale.
type Latest struct {
	mu  sync.Mutex
	cur *Operation
}

// Replace makes op the latest submission.
func (l *Latest) Replace(op *Operation) {
	l.mu.Lock()
	prev := l.cur
	l.cur = op
	l.mu.Unlock()
	if prev != nil && prev != op {
		prev.markSuperseded()
	}
}

// Current returns the latest submission, or nil.
func (l *Latest) Current() *Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

// IsCurrent reports whether op is still the latest submission.
func (l *Latest) IsCurrent(op *Operation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur == op
}
