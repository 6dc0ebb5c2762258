// Package session enforces that exactly one tool is active and that the
// scanner's camera is released before anything else happens.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

var logger = log.GetLogger("Session")

var ErrNotScanning = errors.New("scanner is not the active tool")

// DefaultReleaseTimeout bounds how long a switch waits for the camera.
const DefaultReleaseTimeout = 5 * time.Second

// Runner consumes the frames of an acquired camera. It must call
// s.MarkActive once the first frame is consumed and return when ctx ends
// or the frame stream closes.
type Runner func(ctx context.Context, s *ScanSession, h camera.Handle)

type Options struct {
	Settings camera.Settings
	// PreferredCamera returns the camera id to ask for, if any.
	PreferredCamera func() string
	// OnCameraOpened receives the id of every camera the client opened.
	OnCameraOpened func(cameraID string)
	OnState        func(Snapshot)
	Runner         Runner
	// ReleaseTimeout bounds each release, independent of the caller's
	// context. Zero means DefaultReleaseTimeout.
	ReleaseTimeout time.Duration
}

// Manager serializes tool switches and scan session transitions.
type Manager struct {
	guard *camera.Guard
	opts  Options

	mu      sync.Mutex
	active  tools.Kind
	scan    *ScanSession
	surface camera.Device
	closed  bool
}

// NewManager starts with initial as the active tool.
func NewManager(guard *camera.Guard, initial tools.Kind, opts Options) *Manager {
	if _, err := tools.ParseKind(string(initial)); err != nil {
		initial = tools.DefaultKind
	}
	m := &Manager{guard: guard, opts: opts, active: initial}
	if initial == tools.Scanner {
		m.scan = newScanSession(m.publish)
	}
	return m
}

func (m *Manager) publish(s Snapshot) {
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}

// Active returns the active tool.
func (m *Manager) Active() tools.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Scan returns the current scan session's snapshot. ok is false when the
// scanner is not active.
func (m *Manager) Scan() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scan == nil {
		return Snapshot{}, false
	}
	return m.scan.Snapshot(), true
}

// Activate makes kind the active tool. Leaving the scanner returns only
// after the camera release is confirmed.
func (m *Manager) Activate(ctx context.Context, kind tools.Kind) error {
	if _, err := tools.ParseKind(string(kind)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if kind == m.active {
		return nil
	}
	if m.active == tools.Scanner {
		if err := m.releaseScanLocked(ctx); err != nil {
			return err
		}
	}
	logger.Info().Str("from", string(m.active)).Str("to", string(kind)).Msg("tool activated")
	m.active = kind

	if kind == tools.Scanner {
		m.scan = newScanSession(m.publish)
		m.publish(m.scan.Snapshot())
		if m.surface != nil {
			m.startLocked()
		}
	}
	return nil
}

// AttachSurface is the readiness signal: the scanner view is mounted and
// can render the camera. Acquisition starts only after this.
func (m *Manager) AttachSurface(ctx context.Context, dev camera.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.surface != nil && m.surface != dev && m.scan != nil {
		if err := m.releaseScanLocked(ctx); err != nil {
			return err
		}
		m.scan = newScanSession(m.publish)
	}
	m.surface = dev
	logger.Debug().Str("device", dev.ID()).Msg("surface attached")

	if m.active == tools.Scanner && m.scan != nil && m.scan.State() == StateIdle {
		m.startLocked()
	}
	return nil
}

// DetachSurface drops dev. A scan session built on it is released and, if
// the scanner is still active, replaced by an idle one.
func (m *Manager) DetachSurface(ctx context.Context, dev camera.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.surface != dev {
		return nil
	}
	m.surface = nil
	logger.Debug().Str("device", dev.ID()).Msg("surface detached")

	if m.scan == nil {
		return nil
	}
	err := m.releaseScanLocked(ctx)
	if m.active == tools.Scanner && !m.closed {
		m.scan = newScanSession(m.publish)
		m.publish(m.scan.Snapshot())
	}
	return err
}

// Retry replaces a failed scan session with a fresh one.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != tools.Scanner {
		return ErrNotScanning
	}
	if m.scan != nil {
		switch m.scan.State() {
		case StateIdle, StateInitializing, StateActive:
			return nil
		}
		if err := m.releaseScanLocked(ctx); err != nil {
			return err
		}
	}
	m.scan = newScanSession(m.publish)
	m.publish(m.scan.Snapshot())
	if m.surface != nil {
		m.startLocked()
	}
	return nil
}

// Close releases the camera. The manager accepts no surfaces afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.surface = nil
	if m.scan == nil {
		return nil
	}
	return m.releaseScanLocked(ctx)
}

// releaseScanLocked releases the current session. The release outlives a
// canceled caller; only the release timeout cuts it short, in which case
// the session stays in place so the next switch releases it again.
func (m *Manager) releaseScanLocked(ctx context.Context) error {
	s := m.scan
	if s == nil {
		return nil
	}

	timeout := m.opts.ReleaseTimeout
	if timeout <= 0 {
		timeout = DefaultReleaseTimeout
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.release(rctx); err != nil {
		logger.Warn().Err(err).Str("session", s.ID()).Msg("camera release not confirmed")
		return err
	}
	m.scan = nil
	return nil
}

// startLocked begins acquisition for the current session in the
// background. Releasing the session cancels it.
func (m *Manager) startLocked() {
	if m.closed {
		return
	}
	s := m.scan
	dev := m.surface

	settings := m.opts.Settings
	if m.opts.PreferredCamera != nil {
		settings.CameraID = m.opts.PreferredCamera()
	}

	ctx, cancel := context.WithCancel(context.Background())
	acquired := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.acquired = acquired
	s.surface = dev.ID()
	s.mu.Unlock()

	if !s.transition(StateInitializing, "") {
		cancel()
		close(acquired)
		return
	}

	go func() {
		defer close(acquired)

		h, err := m.guard.Acquire(ctx, dev, settings)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Str("session", s.ID()).Msg("camera acquisition failed")
			s.transition(StateFailed, err.Error())
			return
		}

		s.mu.Lock()
		if s.state == StateReleased {
			s.mu.Unlock()
			h.Release(context.Background())
			<-h.Done()
			return
		}
		s.handle = h
		s.mu.Unlock()

		if m.opts.OnCameraOpened != nil {
			m.opts.OnCameraOpened(h.CameraID())
		}
		if m.opts.Runner != nil {
			go m.opts.Runner(ctx, s, h)
		} else {
			s.MarkActive()
		}
	}()
}
