package camera_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/camera/cameratest"
)

func TestGuard_WaitsForReleaseConfirmation(t *testing.T) {
	g := camera.NewGuard()
	dev := cameratest.NewDevice("tab")
	dev.SetReleaseDelay(30 * time.Millisecond)

	ctx := context.Background()
	if _, err := g.Acquire(ctx, dev, camera.Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Acquire(ctx, dev, camera.Settings{}); err != nil {
		t.Fatal(err)
	}

	if dev.Peak() != 1 {
		t.Errorf("expected at most one open handle, peak was %d", dev.Peak())
	}
	if dev.Acquisitions() != 2 {
		t.Errorf("expected 2 acquisitions, got %d", dev.Acquisitions())
	}
	if g.Peak() != 1 {
		t.Errorf("guard peak %d", g.Peak())
	}
}

func TestGuard_ConcurrentAcquireNeverOverlaps(t *testing.T) {
	g := camera.NewGuard()
	dev := cameratest.NewDevice("tab")
	dev.SetReleaseDelay(5 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Acquire(context.Background(), dev, camera.Settings{})
		}()
	}
	wg.Wait()

	if dev.Peak() > 1 {
		t.Errorf("handles overlapped: peak %d", dev.Peak())
	}
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	g := camera.NewGuard()
	dev := cameratest.NewDevice("tab")

	h, err := g.Acquire(context.Background(), dev, camera.Settings{})
	if err != nil {
		t.Fatal(err)
	}
	h.Release(context.Background())
	h.Release(context.Background())
	if err := g.ReleaseAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for g.Open() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if g.Open() != 0 || dev.Open() != 0 {
		t.Errorf("expected nothing open, guard=%d device=%d", g.Open(), dev.Open())
	}
}

func TestGuard_AcquisitionFailure(t *testing.T) {
	g := camera.NewGuard()
	dev := cameratest.NewDevice("tab")
	dev.FailWith("permission denied")

	_, err := g.Acquire(context.Background(), dev, camera.Settings{})
	if !errors.Is(err, camera.ErrAcquisitionFailed) {
		t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
	}
	if g.Open() != 0 {
		t.Errorf("failed acquisition must not count as open")
	}
}
