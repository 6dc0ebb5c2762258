// Package camera models the exclusive camera resource. A Device hands out at
// most one Handle at a time through a Guard; the only concrete device is the
// browser tab attached over a websocket (RemoteDevice).
package camera

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAcquisitionFailed wraps the client's reason (permission denied,
	// no camera, device busy).
	ErrAcquisitionFailed = errors.New("camera acquisition failed")

	ErrDisconnected = errors.New("camera surface disconnected")
)

// Settings are handed to the surface when the camera is started.
type Settings struct {
	FPS            int     `json:"fps"`
	ScanRegionSize int     `json:"qrbox"`
	AspectRatio    float64 `json:"aspectRatio"`
	// CameraID asks for a specific camera; empty picks the rear one.
	CameraID string `json:"cameraId,omitempty"`
}

// Frame is one encoded (JPEG or PNG) still from the camera.
type Frame struct {
	Seq  uint64
	Data []byte
	At   time.Time
}

// Device can start the camera.
type Device interface {
	ID() string
	Acquire(ctx context.Context, s Settings) (Handle, error)
}

// Handle is an open camera stream.
type Handle interface {
	// CameraID is the id of the camera the client actually opened.
	CameraID() string
	// Frames is closed once the handle is released.
	Frames() <-chan Frame
	// Vibrate asks the client for haptic feedback. Best effort.
	Vibrate(ctx context.Context, d time.Duration) error
	// Release stops the stream. Calling it again is a no-op.
	Release(ctx context.Context) error
	// Done is closed once the release is confirmed.
	Done() <-chan struct{}
}
