// Package cameratest provides an in-memory camera.Device for tests.
package cameratest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
)

// Device is a fake camera. Release confirmation arrives asynchronously
// after ReleaseDelay, like a real client stopping its tracks.
type Device struct {
	id string

	mu           sync.Mutex
	fail         error
	releaseDelay time.Duration
	acquired     int
	open         int
	peak         int
	last         *Handle
	settings     []camera.Settings
}

func NewDevice(id string) *Device {
	return &Device{id: id}
}

func (d *Device) ID() string { return d.id }

// FailWith makes subsequent acquisitions fail with reason. Empty clears it.
func (d *Device) FailWith(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if reason == "" {
		d.fail = nil
		return
	}
	d.fail = fmt.Errorf("%w: %s", camera.ErrAcquisitionFailed, reason)
}

// SetReleaseDelay sets how long release confirmation takes.
func (d *Device) SetReleaseDelay(delay time.Duration) {
	d.mu.Lock()
	d.releaseDelay = delay
	d.mu.Unlock()
}

func (d *Device) Acquire(ctx context.Context, s camera.Settings) (camera.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	d.acquired++
	d.open++
	if d.open > d.peak {
		d.peak = d.open
	}
	d.settings = append(d.settings, s)
	cameraID := s.CameraID
	if cameraID == "" {
		cameraID = d.id + "-back"
	}
	h := &Handle{
		dev:      d,
		cameraID: cameraID,
		frames:   make(chan camera.Frame, 16),
		done:     make(chan struct{}),
	}
	d.last = h
	return h, nil
}

// Acquisitions returns how many handles were handed out.
func (d *Device) Acquisitions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Open returns the number of handles not yet confirmed released.
func (d *Device) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Peak returns the most handles that were open at once.
func (d *Device) Peak() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

// Last returns the most recently acquired handle.
func (d *Device) Last() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Settings returns the settings of every acquisition.
func (d *Device) Settings() []camera.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]camera.Settings(nil), d.settings...)
}

// Handle is the fake stream.
type Handle struct {
	dev      *Device
	cameraID string

	mu         sync.Mutex
	frames     chan camera.Frame
	seq        uint64
	released   bool
	vibrations []time.Duration

	once sync.Once
	done chan struct{}
}

func (h *Handle) CameraID() string            { return h.cameraID }
func (h *Handle) Frames() <-chan camera.Frame { return h.frames }
func (h *Handle) Done() <-chan struct{}       { return h.done }

// Push queues a frame. It reports false once the handle is released or
// the queue is full.
func (h *Handle) Push(data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.seq++
	select {
	case h.frames <- camera.Frame{Seq: h.seq, Data: data, At: time.Now()}:
		return true
	default:
		return false
	}
}

func (h *Handle) Vibrate(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	h.vibrations = append(h.vibrations, d)
	h.mu.Unlock()
	return nil
}

// Vibrations returns the haptic requests received.
func (h *Handle) Vibrations() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.vibrations...)
}

// Released reports whether Release was called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *Handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		close(h.frames)
		h.mu.Unlock()

		h.dev.mu.Lock()
		delay := h.dev.releaseDelay
		h.dev.mu.Unlock()

		confirm := func() {
			h.dev.mu.Lock()
			h.dev.open--
			h.dev.mu.Unlock()
			close(h.done)
		}
		if delay <= 0 {
			confirm()
			return
		}
		time.AfterFunc(delay, confirm)
	})
	return nil
}
