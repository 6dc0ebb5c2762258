package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/camera/cameratest"
	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/storage"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

// textImage carries the payload a fakeDecoder will "find".
type textImage struct {
	*image.Gray
	text string
}

type fakeImages struct{}

func (fakeImages) Decode(data []byte) (image.Image, string, error) {
	if string(data) == "garbage" {
		return nil, "", errors.New("unknown format")
	}
	return textImage{Gray: image.NewGray(image.Rect(0, 0, 640, 480)), text: string(data)}, "fake", nil
}

type fakeDecoder struct {
	mu     sync.Mutex
	calls  int
	bounds []image.Rectangle
}

func (d *fakeDecoder) Decode(img image.Image) (string, error) {
	d.mu.Lock()
	d.calls++
	d.bounds = append(d.bounds, img.Bounds())
	d.mu.Unlock()

	var text string
	switch v := img.(type) {
	case textImage:
		text = v.text
	default:
		return "", vendors.ErrNoCode
	}
	if text == "" || text == "nothing" {
		return "", vendors.ErrNoCode
	}
	if text == "crash" {
		return "", errors.New("decoder exploded")
	}
	return text, nil
}

func (d *fakeDecoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// textImage loses its payload through SubImage, so crop passes it along.
func (t textImage) SubImage(r image.Rectangle) image.Image {
	return textImage{Gray: t.Gray.SubImage(r).(*image.Gray), text: t.text}
}

func newAdapter(t *testing.T, cfg Config) (*Adapter, *history.Store, *fakeDecoder, chan Result) {
	t.Helper()
	hist := history.New(storage.NewMemory())
	dec := &fakeDecoder{}
	results := make(chan Result, 16)
	a := New(cfg, dec, fakeImages{}, hist, func(r Result) { results <- r })
	return a, hist, dec, results
}

func acquire(t *testing.T) *cameratest.Handle {
	t.Helper()
	dev := cameratest.NewDevice("tab")
	h, err := dev.Acquire(context.Background(), camera.Settings{})
	if err != nil {
		t.Fatal(err)
	}
	return h.(*cameratest.Handle)
}

func TestRun_DecodesAndRecords(t *testing.T) {
	a, hist, dec, results := newAdapter(t, Config{FPS: 1000, ScanRegionSize: 250, DuplicateWindow: 2 * time.Second, Haptic: 100 * time.Millisecond})
	h := acquire(t)

	readyCalled := make(chan struct{})
	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), h, func() { close(readyCalled) })
		close(done)
	}()

	h.Push([]byte("nothing"))
	time.Sleep(5 * time.Millisecond)
	h.Push([]byte("https://example.com"))

	select {
	case r := <-results:
		if r.Text != "https://example.com" || !r.IsURL || r.Source != "camera" {
			t.Errorf("unexpected result %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	<-readyCalled

	h.Release(context.Background())
	<-done

	items := hist.List()
	if len(items) != 1 || items[0].Kind != history.KindScan || items[0].Payload != "https://example.com" {
		t.Errorf("unexpected history %+v", items)
	}
	if v := h.Vibrations(); len(v) != 1 || v[0] != 100*time.Millisecond {
		t.Errorf("expected one 100ms vibration, got %v", v)
	}
	for _, b := range dec.bounds {
		if b.Dx() != 250 || b.Dy() != 250 {
			t.Errorf("decoder should see the 250px scan region, got %v", b)
		}
	}
}

func TestRun_SuppressesDuplicates(t *testing.T) {
	a, hist, _, results := newAdapter(t, Config{FPS: 1000, DuplicateWindow: time.Hour})
	h := acquire(t)

	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), h, nil)
		close(done)
	}()
	for i := 0; i < 3; i++ {
		h.Push([]byte("SKU-1"))
		time.Sleep(5 * time.Millisecond)
	}
	h.Push([]byte("SKU-2"))
	time.Sleep(20 * time.Millisecond)
	h.Release(context.Background())
	<-done

	close(results)
	var got []string
	for r := range results {
		got = append(got, r.Text)
	}
	if len(got) != 2 || got[0] != "SKU-1" || got[1] != "SKU-2" {
		t.Errorf("expected SKU-1 then SKU-2 once each, got %v", got)
	}
	if n := len(hist.List()); n != 2 {
		t.Errorf("expected 2 history items, got %d", n)
	}
}

func TestRun_ThrottlesToFPS(t *testing.T) {
	a, _, dec, _ := newAdapter(t, Config{FPS: 1})
	h := acquire(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, h, nil)
		close(done)
	}()
	for i := 0; i < 10; i++ {
		h.Push([]byte("nothing"))
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if dec.Calls() != 1 {
		t.Errorf("expected a single decode within one second at 1 fps, got %d", dec.Calls())
	}
}

func TestDecodeImage(t *testing.T) {
	a, hist, _, results := newAdapter(t, Config{})

	res, err := a.DecodeImage(context.Background(), []byte("WIFI:S:home;;")).Wait(context.Background())
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	r := res.(Result)
	if r.Text != "WIFI:S:home;;" || r.IsURL || r.Source != "file" {
		t.Errorf("unexpected result %+v", r)
	}
	if len(hist.List()) != 1 {
		t.Error("file scans should be recorded")
	}
	<-results
}

func TestDecodeImage_Failures(t *testing.T) {
	a, hist, _, _ := newAdapter(t, Config{})
	ctx := context.Background()

	if _, err := a.DecodeImage(ctx, []byte("nothing")).Wait(ctx); !errors.Is(err, tools.ErrInvalidInput) {
		t.Errorf("no code should be an input error, got %v", err)
	}
	if _, err := a.DecodeImage(ctx, []byte("garbage")).Wait(ctx); !errors.Is(err, tools.ErrInvalidInput) {
		t.Errorf("unreadable image should be an input error, got %v", err)
	}
	_, err := a.DecodeImage(ctx, []byte("crash")).Wait(ctx)
	var se *tools.ServiceError
	if !errors.As(err, &se) {
		t.Errorf("decoder failure should be a ServiceError, got %v", err)
	}
	if len(hist.List()) != 0 {
		t.Error("failures must not touch history")
	}
}

func TestIsURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com":        true,
		"http://example.com/a?b=c":   true,
		" https://example.com ":      true,
		"example.com":                false,
		"mailto:someone@example.com": false,
		"WIFI:S:home;T:WPA;;":        false,
		"":                           false,
	}
	for in, want := range cases {
		if got := IsURL(in); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCropCenter(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	got := CropCenter(img, 250).Bounds()
	if got != image.Rect(195, 115, 445, 365) {
		t.Errorf("unexpected crop %v", got)
	}
	if CropCenter(img, 1000).Bounds() != img.Bounds() {
		t.Error("region larger than the frame keeps the frame")
	}
	if small := CropCenter(img, 0); small.Bounds() != img.Bounds() {
		t.Error("zero region keeps the frame")
	}
}
