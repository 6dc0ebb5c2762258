package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/omnitool/camera"
)

// State of a scan session. Released and failed are terminal.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateReleased     State = "released"
	StateFailed       State = "failed"
)

// Snapshot is the published view of a scan session.
type Snapshot struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Reason   string `json:"reason,omitempty"`
	CameraID string `json:"cameraId,omitempty"`
	Surface  string `json:"surface,omitempty"`
}

// ScanSession owns the one camera handle of the scanner tool.
type ScanSession struct {
	id       string
	onChange func(Snapshot)

	mu       sync.Mutex
	state    State
	reason   string
	surface  string
	handle   camera.Handle
	cancel   context.CancelFunc
	acquired chan struct{}
}

func newScanSession(onChange func(Snapshot)) *ScanSession {
	return &ScanSession{
		id:       uuid.NewString(),
		onChange: onChange,
		state:    StateIdle,
	}
}

func (s *ScanSession) ID() string { return s.id }

func (s *ScanSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the session's published view.
func (s *ScanSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ScanSession) snapshotLocked() Snapshot {
	snap := Snapshot{ID: s.id, State: s.state, Reason: s.reason, Surface: s.surface}
	if s.handle != nil {
		snap.CameraID = s.handle.CameraID()
	}
	return snap
}

// transition moves to next if allowed from the current state and publishes
// the change. It reports whether the transition happened.
func (s *ScanSession) transition(next State, reason string) bool {
	s.mu.Lock()
	if !allowed(s.state, next) {
		s.mu.Unlock()
		return false
	}
	s.state = next
	if reason != "" {
		s.reason = reason
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Debug().Str("session", s.id).Str("state", string(next)).Msg("scan session transition")
	if s.onChange != nil {
		s.onChange(snap)
	}
	return true
}

func allowed(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateInitializing || to == StateReleased
	case StateInitializing:
		return to == StateActive || to == StateFailed || to == StateReleased
	case StateActive:
		return to == StateReleased
	case StateFailed:
		return to == StateReleased
	}
	return false
}

// MarkActive is called by the decode loop once it consumes the first frame.
func (s *ScanSession) MarkActive() {
	s.transition(StateActive, "")
}

// Handle returns the open camera handle, or nil.
func (s *ScanSession) Handle() camera.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// release stops any pending acquisition and releases the handle, waiting
// for confirmation. Safe to call repeatedly.
func (s *ScanSession) release(ctx context.Context) error {
	s.transition(StateReleased, "")

	s.mu.Lock()
	cancel := s.cancel
	acquired := s.acquired
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if acquired != nil {
		select {
		case <-acquired:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	if err := h.Release(ctx); err != nil {
		return err
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
