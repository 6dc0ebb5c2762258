// Package scan turns camera frames and uploaded images into decoded QR and
// barcode payloads.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

var logger = log.GetLogger("Scan")

// Result is one decoded code.
type Result struct {
	Text      string    `json:"text"`
	IsURL     bool      `json:"isUrl"`
	HistoryID string    `json:"historyId"`
	Source    string    `json:"source"` // "camera" or "file"
	At        time.Time `json:"at"`
}

type Config struct {
	FPS             int
	ScanRegionSize  int
	DuplicateWindow time.Duration
	Haptic          time.Duration
}

// ImageDecoder turns encoded bytes into pixels. *vendors.ImageCodec
// implements it.
type ImageDecoder interface {
	Decode(data []byte) (image.Image, string, error)
}

type Adapter struct {
	cfg      Config
	decoder  vendors.Decoder
	images   ImageDecoder
	history  *history.Store
	onResult func(Result)
	now      func() time.Time

	mu     sync.Mutex
	last   string
	lastAt time.Time

	latest tools.Latest
}

func New(cfg Config, decoder vendors.Decoder, images ImageDecoder, hist *history.Store, onResult func(Result)) *Adapter {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	return &Adapter{
		cfg:      cfg,
		decoder:  decoder,
		images:   images,
		history:  hist,
		onResult: onResult,
		now:      time.Now,
	}
}

// IsURL reports whether text is an http(s) link worth an "Open Link" action.
func IsURL(text string) bool {
	u, err := url.Parse(strings.TrimSpace(text))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Run decodes frames from h until the stream closes or ctx ends. ready is
// called once the first frame has been consumed.
func (a *Adapter) Run(ctx context.Context, h camera.Handle, ready func()) {
	interval := time.Second / time.Duration(a.cfg.FPS)
	var lastDecode time.Time
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-h.Frames():
			if !ok {
				return
			}
			if first {
				first = false
				if ready != nil {
					ready()
				}
			}
			if f.At.Sub(lastDecode) < interval {
				continue
			}
			lastDecode = f.At

			text, err := a.decodeFrame(f.Data)
			if err != nil {
				if !errors.Is(err, vendors.ErrNoCode) {
					logger.Debug().Err(err).Uint64("seq", f.Seq).Msg("frame decode failed")
				}
				continue
			}
			a.accept(ctx, text, h)
		}
	}
}

func (a *Adapter) decodeFrame(data []byte) (string, error) {
	img, _, err := a.images.Decode(data)
	if err != nil {
		return "", err
	}
	return a.decoder.Decode(CropCenter(img, a.cfg.ScanRegionSize))
}

// accept records a camera result unless the same payload was just seen.
func (a *Adapter) accept(ctx context.Context, text string, h camera.Handle) {
	now := a.now()
	a.mu.Lock()
	if text == a.last && now.Sub(a.lastAt) < a.cfg.DuplicateWindow {
		a.lastAt = now
		a.mu.Unlock()
		return
	}
	a.last = text
	a.lastAt = now
	a.mu.Unlock()

	item := a.history.Append(history.KindScan, text)
	if a.cfg.Haptic > 0 {
		if err := h.Vibrate(ctx, a.cfg.Haptic); err != nil {
			logger.Debug().Err(err).Msg("haptic acknowledgment failed")
		}
	}
	a.publish(Result{Text: text, IsURL: IsURL(text), HistoryID: item.ID, Source: "camera", At: now})
}

func (a *Adapter) publish(r Result) {
	logger.Info().Str("source", r.Source).Bool("isUrl", r.IsURL).Msg("code decoded")
	if a.onResult != nil {
		a.onResult(r)
	}
}

// DecodeImage scans a single uploaded image.
func (a *Adapter) DecodeImage(ctx context.Context, data []byte) *tools.Operation {
	op := tools.Start(ctx, tools.Scanner, func(ctx context.Context, report tools.Reporter) (any, error) {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty image", tools.ErrInvalidInput)
		}
		report(10, "decoding image")
		img, _, err := a.images.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: unreadable image", tools.ErrInvalidInput)
		}

		report(50, "scanning")
		text, err := a.decoder.Decode(img)
		if errors.Is(err, vendors.ErrNoCode) {
			return nil, fmt.Errorf("%w: no QR code or barcode found", tools.ErrInvalidInput)
		}
		if err != nil {
			return nil, tools.NewServiceError("decoder", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, tools.ErrCanceled
		}

		item := a.history.Append(history.KindScan, text)
		r := Result{Text: text, IsURL: IsURL(text), HistoryID: item.ID, Source: "file", At: item.CreatedAt}
		a.publish(r)
		return r, nil
	})
	a.latest.Replace(op)
	return op
}

// Latest returns the most recent file scan.
func (a *Adapter) Latest() *tools.Operation {
	return a.latest.Current()
}

// CropCenter returns the centred size x size square of img, clamped to
// the image. size <= 0 returns img unchanged.
func CropCenter(img image.Image, size int) image.Image {
	if size <= 0 {
		return img
	}
	b := img.Bounds()
	if size >= b.Dx() && size >= b.Dy() {
		return img
	}
	w := min(size, b.Dx())
	h := min(size, b.Dy())
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	r := image.Rect(x0, y0, x0+w, y0+h)

	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, img.At(x0+x, y0+y))
		}
	}
	return dst
}
