package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Control messages exchanged with the surface. Frames travel as binary
// messages and carry no envelope.
const (
	msgStart   = "start"
	msgReady   = "ready"
	msgError   = "error"
	msgStop    = "stop"
	msgStopped = "stopped"
	msgVibrate = "vibrate"
)

type acquireReply struct {
	h   *remoteHandle
	err error
}

type controlMessage struct {
	Type     string    `json:"type"`
	Settings *Settings `json:"settings,omitempty"`
	CameraID string    `json:"cameraId,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Ms       int64     `json:"ms,omitempty"`
}

// RemoteDevice is a browser tab acting as camera and rendering surface.
// Serve must be running for Acquire to make progress.
type RemoteDevice struct {
	id             string
	conn           *websocket.Conn
	releaseTimeout time.Duration

	writeMu   sync.Mutex
	acquireMu sync.Mutex

	mu      sync.Mutex
	pending chan acquireReply
	active  *remoteHandle
	seq     uint64

	closed    chan struct{}
	closeOnce sync.Once
}

// NewRemoteDevice wraps an accepted websocket connection.
func NewRemoteDevice(id string, conn *websocket.Conn, releaseTimeout time.Duration) *RemoteDevice {
	if releaseTimeout <= 0 {
		releaseTimeout = 3 * time.Second
	}
	return &RemoteDevice{
		id:             id,
		conn:           conn,
		releaseTimeout: releaseTimeout,
		closed:         make(chan struct{}),
	}
}

func (d *RemoteDevice) ID() string { return d.id }

// Closed is closed once the connection is gone.
func (d *RemoteDevice) Closed() <-chan struct{} { return d.closed }

// Serve runs the read loop until the connection closes or ctx ends.
func (d *RemoteDevice) Serve(ctx context.Context) error {
	defer d.shutdown()
	for {
		typ, data, err := d.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || status == websocket.StatusNoStatusRcvd {
				logger.Debug().Str("device", d.id).Int("closeStatus", int(status)).Msg("surface closed")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			d.deliver(data)
		case websocket.MessageText:
			var m controlMessage
			if err := json.Unmarshal(data, &m); err != nil {
				logger.Warn().Err(err).Str("device", d.id).Msg("invalid control message")
				continue
			}
			d.handleControl(m)
		}
	}
}

func (d *RemoteDevice) handleControl(m controlMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch m.Type {
	case msgReady, msgError:
		if d.pending == nil {
			logger.Debug().Str("device", d.id).Str("type", m.Type).Msg("no acquisition waiting")
			return
		}
		reply := acquireReply{}
		if m.Type == msgError {
			reason := m.Reason
			if reason == "" {
				reason = "unknown error"
			}
			reply.err = fmt.Errorf("%w: %s", ErrAcquisitionFailed, reason)
		} else {
			// Registered before the next read so the first frame is not lost.
			reply.h = newRemoteHandle(d, m.CameraID)
			d.active = reply.h
		}
		select {
		case d.pending <- reply:
		default:
		}
		d.pending = nil
	case msgStopped:
		if d.active != nil {
			d.active.confirmStopped()
		}
	default:
		logger.Debug().Str("device", d.id).Str("type", m.Type).Msg("ignoring control message")
	}
}

func (d *RemoteDevice) deliver(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.active
	if h == nil || h.terminated {
		return
	}
	d.seq++
	f := Frame{Seq: d.seq, Data: data, At: time.Now()}
	// Keep only the freshest frame when the decoder lags.
	select {
	case h.frames <- f:
	default:
		select {
		case <-h.frames:
		default:
		}
		h.frames <- f
	}
}

func (d *RemoteDevice) shutdown() {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.mu.Lock()
		if d.active != nil {
			d.active.terminateLocked()
			d.active = nil
		}
		d.mu.Unlock()
	})
}

func (d *RemoteDevice) send(ctx context.Context, m controlMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.conn.Write(ctx, websocket.MessageText, b)
}

// Acquire asks the surface to start its camera and waits for the answer.
func (d *RemoteDevice) Acquire(ctx context.Context, s Settings) (Handle, error) {
	d.acquireMu.Lock()
	defer d.acquireMu.Unlock()

	select {
	case <-d.closed:
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, ErrDisconnected)
	default:
	}

	reply := make(chan acquireReply, 1)
	d.mu.Lock()
	d.pending = reply
	d.mu.Unlock()

	if err := d.send(ctx, controlMessage{Type: msgStart, Settings: &s}); err != nil {
		d.clearPending()
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		logger.Info().Str("device", d.id).Str("camera", r.h.cameraID).Msg("camera started")
		return r.h, nil
	case <-d.closed:
		d.clearPending()
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, ErrDisconnected)
	case <-ctx.Done():
		d.clearPending()
		// The client may have started after all; make sure it stops.
		stopCtx, cancel := context.WithTimeout(context.Background(), d.releaseTimeout)
		defer cancel()
		select {
		case r := <-reply:
			if r.h != nil {
				r.h.Release(stopCtx)
			}
		default:
			d.send(stopCtx, controlMessage{Type: msgStop})
		}
		return nil, ctx.Err()
	}
}

func (d *RemoteDevice) clearPending() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}

type remoteHandle struct {
	dev      *RemoteDevice
	cameraID string

	// guarded by dev.mu
	frames      chan Frame
	terminated  bool
	stoppedOnce sync.Once
	stopped     chan struct{}

	releaseOnce sync.Once
	done        chan struct{}
}

func newRemoteHandle(d *RemoteDevice, cameraID string) *remoteHandle {
	return &remoteHandle{
		dev:      d,
		cameraID: cameraID,
		frames:   make(chan Frame, 1),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (h *remoteHandle) CameraID() string     { return h.cameraID }
func (h *remoteHandle) Frames() <-chan Frame { return h.frames }
func (h *remoteHandle) Done() <-chan struct{} { return h.done }

func (h *remoteHandle) Vibrate(ctx context.Context, d time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	return h.dev.send(ctx, controlMessage{Type: msgVibrate, Ms: d.Milliseconds()})
}

func (h *remoteHandle) confirmStopped() {
	h.stoppedOnce.Do(func() { close(h.stopped) })
}

// terminateLocked closes the frame stream and confirms the release.
// Caller holds dev.mu.
func (h *remoteHandle) terminateLocked() {
	if h.terminated {
		return
	}
	h.terminated = true
	close(h.frames)
	close(h.done)
}

// Release sends stop and waits for the client's confirmation, the
// connection closing, or the release timeout, whichever comes first.
func (h *remoteHandle) Release(ctx context.Context) error {
	h.releaseOnce.Do(func() {
		d := h.dev
		sendCtx, cancel := context.WithTimeout(ctx, d.releaseTimeout)
		defer cancel()

		if serr := d.send(sendCtx, controlMessage{Type: msgStop}); serr != nil && !errors.Is(serr, context.Canceled) {
			logger.Debug().Err(serr).Str("device", d.id).Msg("stop not delivered")
		}

		select {
		case <-h.stopped:
		case <-d.closed:
		case <-sendCtx.Done():
			logger.Warn().Str("device", d.id).Msg("camera release not confirmed before timeout")
		}

		d.mu.Lock()
		h.terminateLocked()
		if d.active == h {
			d.active = nil
		}
		d.mu.Unlock()
		logger.Info().Str("device", d.id).Str("camera", h.cameraID).Msg("camera released")
	})
	return nil
}
