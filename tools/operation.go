package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/omnitool/log"
)

var logger = log.GetLogger("Tools")

// EventType distinguishes progress from the terminal notifications.
type EventType string

const (
	EventProgress EventType = "progress"
	EventSuccess  EventType = "success"
	EventFailure  EventType = "failure"
)

// Event is one entry of an operation's finite event stream: zero or more
// progress events followed by exactly one success or failure.
type Event struct {
	Type    EventType `json:"type"`
	Percent int       `json:"percent"`
	Status  string    `json:"status,omitempty"`
	Result  any       `json:"result,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     error     `json:"-"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventSuccess || e.Type == EventFailure
}

// State is the lifecycle of an operation.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Status is a point-in-time snapshot of an operation.
type Status struct {
	ID         string    `json:"id"`
	Tool       Kind      `json:"tool"`
	State      State     `json:"state"`
	Percent    int       `json:"percent"`
	Superseded bool      `json:"superseded"`
	Result     any       `json:"result,omitempty"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
}

// Reporter receives progress from the work function. Percent is clamped to
// 0..100 and never moves backwards.
type Reporter func(percent int, status string)

// WorkFunc does the actual submission. A nil error means success.
type WorkFunc func(ctx context.Context, report Reporter) (any, error)

// Operation is the cancellable handle returned by every adapter submission.
type Operation struct {
	id        string
	tool      Kind
	startedAt time.Time
	cancel    context.CancelFunc

	mu         sync.Mutex
	log        []Event
	changed    chan struct{}
	state      State
	percent    int
	status     string
	result     any
	err        error
	superseded bool
	finishedAt time.Time
	done       chan struct{}
}

// Start runs fn on its own goroutine. The operation outlives ctx's
// cancellation (a finished HTTP request must not abort the work); use
// Cancel to abort.
func Start(ctx context.Context, tool Kind, fn WorkFunc) *Operation {
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	op := &Operation{
		id:        uuid.NewString(),
		tool:      tool,
		startedAt: time.Now(),
		cancel:    cancel,
		changed:   make(chan struct{}),
		state:     StateRunning,
		done:      make(chan struct{}),
	}

	go op.run(opCtx, fn)
	return op
}

func (o *Operation) run(ctx context.Context, fn WorkFunc) {
	defer o.cancel()
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Str("op", o.id).Str("tool", string(o.tool)).Interface("panic", p).Msg("operation panicked")
			o.finish(nil, fmt.Errorf("internal error: %v", p))
		}
	}()

	result, err := fn(ctx, o.report)
	o.finish(result, err)
}

func (o *Operation) report(percent int, status string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return
	}
	if percent < o.percent {
		percent = o.percent
	}
	if percent == o.percent && status == o.status && len(o.log) > 0 {
		return
	}
	o.percent = percent
	o.status = status
	o.appendLocked(Event{Type: EventProgress, Percent: percent, Status: status})
}

// finish records the terminal event. Only the first call has any effect.
func (o *Operation) finish(result any, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		if err == nil {
			logger.Debug().Str("op", o.id).Msg("discarding result of finished operation")
		}
		return
	}

	o.finishedAt = time.Now()
	if err != nil {
		o.err = err
		o.state = StateFailed
		if err == ErrCanceled {
			o.state = StateCanceled
		}
		o.appendLocked(Event{Type: EventFailure, Percent: o.percent, Message: UserMessage(err), Err: err})
		logger.Info().Str("op", o.id).Str("tool", string(o.tool)).Err(err).Msg("operation failed")
	} else {
		o.result = result
		o.state = StateSucceeded
		o.percent = 100
		o.appendLocked(Event{Type: EventSuccess, Percent: 100, Result: result})
		logger.Debug().Str("op", o.id).Str("tool", string(o.tool)).Msg("operation succeeded")
	}
	close(o.done)
}

func (o *Operation) appendLocked(e Event) {
	o.log = append(o.log, e)
	close(o.changed)
	o.changed = make(chan struct{})
}

// ID returns the operation id.
func (o *Operation) ID() string { return o.id }

// Tool returns the tool the operation belongs to.
func (o *Operation) Tool() Kind { return o.tool }

// Cancel aborts the operation: the stream ends with a failure(ErrCanceled)
// right away and any later result of the work is discarded.
func (o *Operation) Cancel() {
	o.cancel()
	o.finish(nil, ErrCanceled)
}

// Done is closed once the terminal event has been recorded.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation ends or ctx is done.
func (o *Operation) Wait(ctx context.Context) (any, error) {
	select {
	case <-o.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.err
}

// Events returns the full event stream from the beginning. Every call gets
// its own channel; it is closed after the terminal event or when ctx ends.
func (o *Operation) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		idx := 0
		for {
			o.mu.Lock()
			pending := o.log[idx:]
			wait := o.changed
			o.mu.Unlock()

			for _, e := range pending {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				idx++
				if e.Terminal() {
					return
				}
			}

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Status returns a snapshot.
func (o *Operation) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		ID:         o.id,
		Tool:       o.tool,
		State:      o.state,
		Percent:    o.percent,
		Superseded: o.superseded,
		Result:     o.result,
		StartedAt:  o.startedAt,
	}
	if o.err != nil {
		s.Message = UserMessage(o.err)
	}
	return s
}

func (o *Operation) markSuperseded() {
	o.mu.Lock()
	o.superseded = true
	o.mu.Unlock()
}

func (o *Operation) finishedBefore(t time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != StateRunning && o.finishedAt.Before(t)
}
