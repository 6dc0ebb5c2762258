// Package image resizes and recompresses photos toward a size target.
package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaoyuanzhu-com/omnitool/artifacts"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

const (
	DefaultMaxWidth     = 1920
	DefaultMaxHeight    = 1080
	DefaultTargetSizeMB = 1.0
	DefaultFormat       = vendors.FormatWebP
	DefaultQuality      = 0.8
)

// Options for a single optimization.
type Options struct {
	MaxWidth        int
	MaxHeight       int
	TargetSizeBytes int64
	Format          string
}

// Sink stores the optimized file. *artifacts.Registry implements it.
type Sink interface {
	Put(name, mimeType string, data []byte) (artifacts.Artifact, error)
}

// Result of an optimization.
type Result struct {
	Artifact     artifacts.Artifact `json:"artifact"`
	OriginalSize int                `json:"originalSize"`
	Size         int                `json:"size"`
}

type Adapter struct {
	encoder  vendors.Reencoder
	sink     Sink
	defaults Options
	quality  float64
	latest   tools.Latest
}

// New creates the adapter. Zero fields of defaults take the built-in
// defaults (1920x1080, 1 MB, WebP).
func New(enc vendors.Reencoder, sink Sink, defaults Options, initialQuality float64) *Adapter {
	if defaults.MaxWidth <= 0 {
		defaults.MaxWidth = DefaultMaxWidth
	}
	if defaults.MaxHeight <= 0 {
		defaults.MaxHeight = DefaultMaxHeight
	}
	if defaults.TargetSizeBytes <= 0 {
		defaults.TargetSizeBytes = int64(DefaultTargetSizeMB * 1024 * 1024)
	}
	if defaults.Format == "" {
		defaults.Format = DefaultFormat
	}
	if initialQuality <= 0 || initialQuality > 1 {
		initialQuality = DefaultQuality
	}
	return &Adapter{encoder: enc, sink: sink, defaults: defaults, quality: initialQuality}
}

// Extension maps an output mime type to the file extension used in names.
func Extension(format string) (string, bool) {
	switch format {
	case vendors.FormatJPEG:
		return "jpeg", true
	case vendors.FormatPNG:
		return "png", true
	case vendors.FormatWebP:
		return "webp", true
	}
	return "", false
}

// OutputName is "<name up to the first dot>-optimized.<ext>".
func OutputName(name, format string) string {
	base, _, _ := strings.Cut(name, ".")
	if base == "" {
		base = "image"
	}
	ext, ok := Extension(format)
	if !ok {
		ext = "bin"
	}
	return base + "-optimized." + ext
}

func (a *Adapter) resolve(o Options) (Options, error) {
	if o.MaxWidth <= 0 {
		o.MaxWidth = a.defaults.MaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = a.defaults.MaxHeight
	}
	if o.TargetSizeBytes <= 0 {
		o.TargetSizeBytes = a.defaults.TargetSizeBytes
	}
	if o.Format == "" {
		o.Format = a.defaults.Format
	}
	if _, ok := Extension(o.Format); !ok {
		return o, fmt.Errorf("%w: unsupported format %q", tools.ErrInvalidInput, o.Format)
	}
	return o, nil
}

// Submit starts optimizing data. Invalid options fail before any work.
func (a *Adapter) Submit(ctx context.Context, name string, data []byte, opts Options) (*tools.Operation, error) {
	opts, err := a.resolve(opts)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", tools.ErrInvalidInput)
	}

	op := tools.Start(ctx, tools.Image, func(ctx context.Context, report tools.Reporter) (any, error) {
		out, err := a.encoder.Reencode(ctx, data, vendors.ReencodeOptions{
			MaxSizeBytes:        opts.TargetSizeBytes,
			MaxWidth:            opts.MaxWidth,
			MaxHeight:           opts.MaxHeight,
			OutputFormat:        opts.Format,
			InitialQuality:      a.quality,
			UseBackgroundWorker: true,
		}, func(p float64) {
			report(int(p*100), "compressing")
		})
		if ctx.Err() != nil {
			return nil, tools.ErrCanceled
		}
		if err != nil {
			return nil, tools.NewServiceError("re-encoder", err)
		}

		art, err := a.sink.Put(OutputName(name, opts.Format), opts.Format, out)
		if err != nil {
			return nil, err
		}
		return Result{Artifact: art, OriginalSize: len(data), Size: len(out)}, nil
	})
	a.latest.Replace(op)
	return op, nil
}

// Latest returns the most recent submission.
func (a *Adapter) Latest() *tools.Operation {
	return a.latest.Current()
}
