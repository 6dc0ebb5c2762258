package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/camera/cameratest"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func scanState(m *Manager) State {
	s, ok := m.Scan()
	if !ok {
		return ""
	}
	return s.State
}

func TestActivate_NoAcquireWithoutSurface(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	m := NewManager(camera.NewGuard(), tools.OCR, Options{})

	if err := m.Activate(context.Background(), tools.Scanner); err != nil {
		t.Fatal(err)
	}
	if scanState(m) != StateIdle {
		t.Errorf("expected idle session, got %q", scanState(m))
	}
	time.Sleep(20 * time.Millisecond)
	if dev.Acquisitions() != 0 {
		t.Error("camera must not be acquired before the surface is attached")
	}

	m.AttachSurface(context.Background(), dev)
	waitFor(t, "active session", func() bool { return scanState(m) == StateActive })
	if dev.Acquisitions() != 1 {
		t.Errorf("expected one acquisition, got %d", dev.Acquisitions())
	}
}

func TestActivate_LeavingScannerWaitsForRelease(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	dev.SetReleaseDelay(30 * time.Millisecond)
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{})
	m.AttachSurface(context.Background(), dev)
	waitFor(t, "active session", func() bool { return scanState(m) == StateActive })

	h := dev.Last()
	if err := m.Activate(context.Background(), tools.OCR); err != nil {
		t.Fatal(err)
	}
	if dev.Open() != 0 {
		t.Errorf("camera still open after switching away")
	}
	if !h.Released() {
		t.Error("handle should be released")
	}
	if m.Active() != tools.OCR {
		t.Errorf("expected ocr active, got %s", m.Active())
	}
	if _, ok := m.Scan(); ok {
		t.Error("no scan session expected outside the scanner")
	}
}

func TestActivate_CanceledCallerStillReleases(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	dev.SetReleaseDelay(30 * time.Millisecond)
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{})
	m.AttachSurface(context.Background(), dev)
	waitFor(t, "active session", func() bool { return scanState(m) == StateActive })

	// The request that asked for the switch is already gone.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Activate(ctx, tools.OCR); err != nil {
		t.Fatalf("switch should complete despite the canceled caller: %v", err)
	}
	if dev.Open() != 0 {
		t.Errorf("camera still open after switching away")
	}
	if m.Active() != tools.OCR {
		t.Errorf("expected ocr active, got %s", m.Active())
	}

	if err := m.Activate(context.Background(), tools.Scanner); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "new session active", func() bool { return scanState(m) == StateActive })
	if dev.Acquisitions() != 2 {
		t.Errorf("expected a second acquisition, got %d", dev.Acquisitions())
	}
}

func TestActivate_ReleaseTimeoutKeepsSession(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	dev.SetReleaseDelay(150 * time.Millisecond)
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{ReleaseTimeout: 20 * time.Millisecond})
	m.AttachSurface(context.Background(), dev)
	waitFor(t, "active session", func() bool { return scanState(m) == StateActive })

	if err := m.Activate(context.Background(), tools.OCR); err == nil {
		t.Fatal("expected an unconfirmed release to fail the switch")
	}
	if m.Active() != tools.Scanner {
		t.Errorf("scanner should stay active, got %s", m.Active())
	}
	if _, ok := m.Scan(); !ok {
		t.Fatal("the unreleased session should stay in place")
	}

	time.Sleep(200 * time.Millisecond)
	if err := m.Activate(context.Background(), tools.OCR); err != nil {
		t.Fatalf("switch after confirmation: %v", err)
	}
	if dev.Open() != 0 {
		t.Errorf("camera still open, %d handles", dev.Open())
	}
}

func TestActivate_RapidSwitchingNeverOverlaps(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	dev.SetReleaseDelay(5 * time.Millisecond)
	var mu sync.Mutex
	var states []State
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{
		OnState: func(s Snapshot) {
			mu.Lock()
			states = append(states, s.State)
			mu.Unlock()
		},
	})
	m.AttachSurface(context.Background(), dev)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		m.Activate(ctx, tools.OCR)
		m.Activate(ctx, tools.Scanner)
	}
	waitFor(t, "final session active", func() bool { return scanState(m) == StateActive })

	if dev.Peak() > 1 {
		t.Errorf("two camera handles were open at once (peak %d)", dev.Peak())
	}
	if dev.Open() != 1 {
		t.Errorf("expected exactly the final handle open, got %d", dev.Open())
	}
	m.Close(ctx)
	if dev.Open() != 0 {
		t.Errorf("close should release the camera, %d open", dev.Open())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 {
		t.Error("state changes should be published")
	}
}

func TestAcquisitionFailure_KeepsScannerSelected(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	dev.FailWith("NotAllowedError")
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{})
	m.AttachSurface(context.Background(), dev)

	waitFor(t, "failed session", func() bool { return scanState(m) == StateFailed })
	snap, _ := m.Scan()
	if snap.Reason == "" {
		t.Error("failure reason should be kept")
	}
	if m.Active() != tools.Scanner {
		t.Error("scanner should remain selected after a camera failure")
	}

	dev.FailWith("")
	if err := m.Retry(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "active after retry", func() bool { return scanState(m) == StateActive })
}

func TestRetry_OutsideScanner(t *testing.T) {
	m := NewManager(camera.NewGuard(), tools.PDF, Options{})
	if err := m.Retry(context.Background()); !errors.Is(err, ErrNotScanning) {
		t.Errorf("expected ErrNotScanning, got %v", err)
	}
}

func TestRunner_MarksActiveOnFirstFrame(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	frames := make(chan []byte, 4)
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{
		Settings: camera.Settings{FPS: 10, ScanRegionSize: 250, AspectRatio: 1},
		Runner: func(ctx context.Context, s *ScanSession, h camera.Handle) {
			first := true
			for f := range h.Frames() {
				if first {
					s.MarkActive()
					first = false
				}
				frames <- f.Data
			}
		},
	})
	m.AttachSurface(context.Background(), dev)
	waitFor(t, "initializing", func() bool { return scanState(m) == StateInitializing && dev.Last() != nil })

	waitFor(t, "handle", func() bool { s, _ := m.Scan(); return s.CameraID != "" })
	dev.Last().Push([]byte("f1"))
	waitFor(t, "active", func() bool { return scanState(m) == StateActive })

	if got := <-frames; string(got) != "f1" {
		t.Errorf("unexpected frame %q", got)
	}
	if s := dev.Settings(); len(s) != 1 || s[0].FPS != 10 {
		t.Errorf("settings not forwarded: %+v", s)
	}
}

func TestDetachSurface_ReleasesAndResets(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{})
	m.AttachSurface(context.Background(), dev)
	waitFor(t, "active", func() bool { return scanState(m) == StateActive })
	first, _ := m.Scan()

	m.DetachSurface(context.Background(), dev)
	if dev.Open() != 0 {
		t.Error("detaching should release the camera")
	}
	snap, ok := m.Scan()
	if !ok || snap.State != StateIdle || snap.ID == first.ID {
		t.Errorf("expected a fresh idle session, got %+v", snap)
	}
}

func TestPreferredCameraAndCallback(t *testing.T) {
	dev := cameratest.NewDevice("tab")
	opened := make(chan string, 1)
	m := NewManager(camera.NewGuard(), tools.Scanner, Options{
		PreferredCamera: func() string { return "front" },
		OnCameraOpened:  func(id string) { opened <- id },
	})
	m.AttachSurface(context.Background(), dev)

	select {
	case id := <-opened:
		if id != "front" {
			t.Errorf("expected front camera, got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("camera never opened")
	}
}

func TestScanSession_Transitions(t *testing.T) {
	s := newScanSession(nil)
	if s.transition(StateActive, "") {
		t.Error("idle -> active must not be allowed")
	}
	if !s.transition(StateInitializing, "") || !s.transition(StateActive, "") {
		t.Fatal("expected idle -> initializing -> active")
	}
	if !s.transition(StateReleased, "") {
		t.Fatal("active -> released should be allowed")
	}
	if s.transition(StateInitializing, "") || s.transition(StateReleased, "") {
		t.Error("released is terminal")
	}
	if err := s.release(context.Background()); err != nil {
		t.Errorf("repeated release should be a no-op, got %v", err)
	}
}
