// Package pdf compiles a staged list of images into a PDF, one image per
// page at a fixed page width.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/omnitool/artifacts"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

const (
	// A4Width is the width of an A4 page in PDF points.
	A4Width = 595.28

	DefaultFileName = "compiled-document.pdf"
	MimeType        = "application/pdf"
)

var (
	ErrNoImages   = errors.New("no images to compile")
	ErrBadIndex   = errors.New("image index out of range")
	ErrUnreadable = errors.New("unreadable image")
)

// Sink stores the compiled document. *artifacts.Registry implements it.
type Sink interface {
	Put(name, mimeType string, data []byte) (artifacts.Artifact, error)
}

// Image is one staged page.
type Image struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size"`
	data   []byte
}

// Size is an image's pixel dimensions.
type Size struct {
	Width, Height int
}

// Layout maps image sizes to pages of the given width whose height keeps
// each image's aspect ratio.
func Layout(sizes []Size, pageWidth float64) []vendors.Page {
	pages := make([]vendors.Page, len(sizes))
	for i, s := range sizes {
		h := pageWidth
		if s.Width > 0 {
			h = float64(s.Height) * pageWidth / float64(s.Width)
		}
		pages[i] = vendors.Page{Width: pageWidth, Height: h}
	}
	return pages
}

type Adapter struct {
	assembler vendors.Assembler
	sink      Sink
	pageWidth float64
	fileName  string

	mu     sync.Mutex
	staged []Image

	latest tools.Latest
}

func New(asm vendors.Assembler, sink Sink, pageWidth float64, fileName string) *Adapter {
	if pageWidth <= 0 {
		pageWidth = A4Width
	}
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &Adapter{assembler: asm, sink: sink, pageWidth: pageWidth, fileName: fileName}
}

// Add stages an image at the end of the list.
func (a *Adapter) Add(name string, data []byte) (Image, error) {
	w, h, err := a.assembler.ImageSize(data)
	if err != nil || w <= 0 || h <= 0 {
		return Image{}, fmt.Errorf("%w: %w: %s", tools.ErrInvalidInput, ErrUnreadable, name)
	}
	img := Image{ID: uuid.NewString(), Name: name, Width: w, Height: h, Size: len(data), data: data}

	a.mu.Lock()
	a.staged = append(a.staged, img)
	a.mu.Unlock()
	return img, nil
}

// Remove unstages the image at index.
func (a *Adapter) Remove(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.staged) {
		return fmt.Errorf("%w: %w: %d", tools.ErrInvalidInput, ErrBadIndex, index)
	}
	a.staged = append(a.staged[:index], a.staged[index+1:]...)
	return nil
}

// Images returns the staged images in page order.
func (a *Adapter) Images() []Image {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Image(nil), a.staged...)
}

// Reset clears the staged list.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.staged = nil
	a.mu.Unlock()
}

// Commit compiles the staged images. The staged list is kept so the user
// can adjust and compile again.
func (a *Adapter) Commit(ctx context.Context) (*tools.Operation, error) {
	images := a.Images()
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %w", tools.ErrInvalidInput, ErrNoImages)
	}

	op := tools.Start(ctx, tools.PDF, func(ctx context.Context, report tools.Reporter) (any, error) {
		sizes := make([]Size, len(images))
		for i, img := range images {
			sizes[i] = Size{Width: img.Width, Height: img.Height}
		}
		pages := Layout(sizes, a.pageWidth)
		for i := range pages {
			pages[i].Image = images[i].data
		}
		report(10, "laying out pages")

		doc, err := a.assembler.Assemble(ctx, pages)
		if ctx.Err() != nil {
			return nil, tools.ErrCanceled
		}
		if err != nil {
			return nil, tools.NewServiceError("assembler", err)
		}
		report(90, "saving document")

		art, err := a.sink.Put(a.fileName, MimeType, doc)
		if err != nil {
			return nil, err
		}
		return art, nil
	})
	a.latest.Replace(op)
	return op, nil
}

// Latest returns the most recent commit.
func (a *Adapter) Latest() *tools.Operation {
	return a.latest.Current()
}
