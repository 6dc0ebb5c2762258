package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/artifacts"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

type recordingEncoder struct {
	opts vendors.ReencodeOptions
	err  error
}

func (r *recordingEncoder) Reencode(ctx context.Context, data []byte, opts vendors.ReencodeOptions, progress func(float64)) ([]byte, error) {
	r.opts = opts
	progress(0.5)
	progress(1)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("small"), nil
}

func registry() *artifacts.Registry {
	return artifacts.NewRegistry(artifacts.NewMemoryBlobs(), time.Minute)
}

func TestOutputName(t *testing.T) {
	cases := []struct{ name, format, want string }{
		{"photo.jpg", vendors.FormatWebP, "photo-optimized.webp"},
		{"holiday.final.png", vendors.FormatJPEG, "holiday-optimized.jpeg"},
		{"scan", vendors.FormatPNG, "scan-optimized.png"},
		{".hidden", vendors.FormatPNG, "image-optimized.png"},
	}
	for _, c := range cases {
		if got := OutputName(c.name, c.format); got != c.want {
			t.Errorf("OutputName(%q, %q) = %q, want %q", c.name, c.format, got, c.want)
		}
	}
}

func TestSubmit_Defaults(t *testing.T) {
	enc := &recordingEncoder{}
	a := New(enc, registry(), Options{}, 0)

	op, err := a.Submit(context.Background(), "photo.heic", []byte("big image"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := op.Wait(context.Background())
	if err != nil {
		t.Fatalf("optimization failed: %v", err)
	}
	r := res.(Result)
	if r.Artifact.Name != "photo-optimized.webp" || r.Artifact.MimeType != "image/webp" {
		t.Errorf("unexpected artifact %+v", r.Artifact)
	}
	if r.OriginalSize != 9 || r.Size != 5 {
		t.Errorf("unexpected sizes %+v", r)
	}
	o := enc.opts
	if o.MaxWidth != 1920 || o.MaxHeight != 1080 || o.MaxSizeBytes != 1024*1024 || o.InitialQuality != 0.8 || !o.UseBackgroundWorker {
		t.Errorf("unexpected re-encode options %+v", o)
	}
}

func TestSubmit_InvalidFormat(t *testing.T) {
	a := New(&recordingEncoder{}, registry(), Options{}, 0)
	if _, err := a.Submit(context.Background(), "a.png", []byte("x"), Options{Format: "image/tiff"}); !errors.Is(err, tools.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmit_ServiceFailure(t *testing.T) {
	a := New(&recordingEncoder{err: errors.New("oom")}, registry(), Options{}, 0)
	op, _ := a.Submit(context.Background(), "a.png", []byte("x"), Options{})
	_, err := op.Wait(context.Background())
	var se *tools.ServiceError
	if !errors.As(err, &se) {
		t.Errorf("expected ServiceError, got %v", err)
	}
}

func TestSubmit_RealCodecFitsBox(t *testing.T) {
	src := stdimage.NewRGBA(stdimage.Rect(0, 0, 4000, 3000))
	for y := 0; y < 3000; y += 10 {
		for x := 0; x < 4000; x += 10 {
			src.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}

	codec := vendors.NewImageCodec(1)
	defer codec.Close()
	reg := registry()
	a := New(codec, reg, Options{}, 0)

	op, err := a.Submit(context.Background(), "big.jpg", buf.Bytes(), Options{
		MaxWidth:  100,
		MaxHeight: 100,
		Format:    vendors.FormatWebP,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := op.Wait(context.Background())
	if err != nil {
		t.Fatalf("optimization failed: %v", err)
	}
	r := res.(Result)
	if r.Artifact.Name != "big-optimized.webp" {
		t.Errorf("unexpected name %q", r.Artifact.Name)
	}

	_, data, err := reg.Take(r.Artifact.ID)
	if err != nil {
		t.Fatal(err)
	}
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if format != "webp" {
		t.Errorf("expected webp, got %s", format)
	}
	if cfg.Width > 100 || cfg.Height > 100 {
		t.Errorf("output %dx%d does not fit 100x100", cfg.Width, cfg.Height)
	}
	if cfg.Width != 100 || cfg.Height != 75 {
		t.Errorf("expected aspect-preserving 100x75, got %dx%d", cfg.Width, cfg.Height)
	}
}
