package vendors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/gen2brain/heic"
	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"

	// Register WebP decoder so image.Decode can handle it
	_ "golang.org/x/image/webp"
)

// Output formats the re-encoder can produce.
const (
	FormatJPEG = "image/jpeg"
	FormatPNG  = "image/png"
	FormatWebP = "image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

const (
	minQuality   = 0.4
	qualityStep  = 0.1
	scaleStep    = 0.8
	minDimension = 16
)

// ReencodeOptions drive the size-targeting loop. The output fits inside
// MaxWidth x MaxHeight and is encoded as OutputFormat.
type ReencodeOptions struct {
	MaxSizeBytes        int64
	MaxWidth            int
	MaxHeight           int
	OutputFormat        string
	InitialQuality      float64
	UseBackgroundWorker bool
}

// Reencoder resizes and compresses images toward a size target.
type Reencoder interface {
	Reencode(ctx context.Context, data []byte, opts ReencodeOptions, progress func(float64)) ([]byte, error)
}

// ImageCodec decodes JPEG, PNG, GIF, WebP and HEIC, and encodes JPEG, PNG
// and WebP.
type ImageCodec struct {
	pool *workerPool
}

// NewImageCodec creates a codec. workers > 0 enables the background worker
// pool used when ReencodeOptions.UseBackgroundWorker is set.
func NewImageCodec(workers int) *ImageCodec {
	c := &ImageCodec{}
	if workers > 0 {
		c.pool = newWorkerPool(workers)
	}
	return c
}

// Close stops the worker pool.
func (c *ImageCodec) Close() {
	if c.pool != nil {
		c.pool.stop()
	}
}

// isHEIC sniffs the ISO BMFF brand of HEIC/HEIF files.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// Decode decodes any supported input format.
func (c *ImageCodec) Decode(data []byte) (image.Image, string, error) {
	if isHEIC(data) {
		// HEIC/HEIF needs a dedicated decoder (not registered with image.Decode)
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode heic: %w", err)
		}
		return img, "heic", nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// Size returns the pixel dimensions and format without decoding pixels
// where possible.
func (c *ImageCodec) Size(data []byte) (int, int, string, error) {
	if isHEIC(data) {
		img, _, err := c.Decode(data)
		if err != nil {
			return 0, 0, "", err
		}
		b := img.Bounds()
		return b.Dx(), b.Dy(), "heic", nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// Encode writes img in the given mime format. quality (0..1) applies to
// the lossy formats.
func (c *ImageCodec) Encode(img image.Image, format string, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}

	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: q, Method: 4}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}

// flatten composites transparent images onto white for JPEG output.
func flatten(src image.Image) image.Image {
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

// FitWithin returns the largest size with w/h's aspect ratio inside
// maxW x maxH, never enlarging. Zero limits are ignored.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	if scale == 1 {
		return w, h
	}
	nw := int(math.Floor(float64(w) * scale))
	nh := int(math.Floor(float64(h) * scale))
	return max(nw, 1), max(nh, 1)
}

func resize(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// Reencode fits data inside the max dimensions, then lowers quality and
// finally scale until the output is at most MaxSizeBytes or the floor is
// reached. In the latter case the smallest attempt is returned.
func (c *ImageCodec) Reencode(ctx context.Context, data []byte, opts ReencodeOptions, progress func(float64)) ([]byte, error) {
	if opts.UseBackgroundWorker && c.pool != nil {
		return c.pool.submit(ctx, func() ([]byte, error) {
			return c.reencode(ctx, data, opts, progress)
		})
	}
	return c.reencode(ctx, data, opts, progress)
}

func (c *ImageCodec) reencode(ctx context.Context, data []byte, opts ReencodeOptions, progress func(float64)) ([]byte, error) {
	report := func(p float64) {
		if progress != nil {
			progress(math.Min(math.Max(p, 0), 1))
		}
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = FormatWebP
	}
	if opts.InitialQuality <= 0 || opts.InitialQuality > 1 {
		opts.InitialQuality = 0.8
	}

	src, _, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	report(0.1)

	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)
	lossy := opts.OutputFormat != FormatPNG

	// Rough upper bound on attempts, only used for progress.
	qualitySteps := 1
	if lossy {
		qualitySteps = int((opts.InitialQuality-minQuality)/qualityStep) + 1
	}
	total := float64(qualitySteps * 8)
	attempt := 0

	var best []byte
	for {
		img := resize(src, w, h)
		for q := opts.InitialQuality; ; q -= qualityStep {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := c.Encode(img, opts.OutputFormat, q)
			if err != nil {
				return nil, err
			}
			attempt++
			report(0.1 + 0.85*float64(attempt)/total)

			if best == nil || len(out) < len(best) {
				best = out
			}
			if opts.MaxSizeBytes <= 0 || int64(len(out)) <= opts.MaxSizeBytes {
				report(1)
				return out, nil
			}
			if !lossy || q-qualityStep < minQuality-1e-9 {
				break
			}
		}

		nw := int(float64(w) * scaleStep)
		nh := int(float64(h) * scaleStep)
		if nw < minDimension || nh < minDimension {
			break
		}
		w, h = nw, nh
	}

	report(1)
	return best, nil
}
