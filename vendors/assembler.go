package vendors

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
)

// Page is one image placed on its own page, sized in PDF points.
type Page struct {
	Image  []byte
	Width  float64
	Height float64
}

// Assembler builds a PDF from pages, one image per page filling it.
type Assembler interface {
	ImageSize(data []byte) (width, height int, err error)
	Assemble(ctx context.Context, pages []Page) ([]byte, error)
}

// PDFAssembler assembles image-only documents with fpdf. Inputs fpdf
// cannot embed (WebP, GIF, HEIC) are converted to PNG first.
type PDFAssembler struct {
	codec *ImageCodec
}

func NewPDFAssembler(codec *ImageCodec) *PDFAssembler {
	return &PDFAssembler{codec: codec}
}

func (a *PDFAssembler) ImageSize(data []byte) (int, int, error) {
	w, h, _, err := a.codec.Size(data)
	return w, h, err
}

// embeddable returns data in a format fpdf can embed and its fpdf type.
func (a *PDFAssembler) embeddable(data []byte) ([]byte, string, error) {
	_, _, format, err := a.codec.Size(data)
	if err != nil {
		return nil, "", err
	}
	switch format {
	case "jpeg":
		return data, "JPG", nil
	case "png":
		return data, "PNG", nil
	}
	img, _, err := a.codec.Decode(data)
	if err != nil {
		return nil, "", err
	}
	out, err := a.codec.Encode(img, FormatPNG, 1)
	if err != nil {
		return nil, "", err
	}
	return out, "PNG", nil
}

func (a *PDFAssembler) Assemble(ctx context.Context, pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to assemble")
	}

	first := pages[0]
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("OmniTool", true)

	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, kind, err := a.embeddable(p.Image)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}

		name := "page-" + strconv.Itoa(i)
		opts := fpdf.ImageOptions{ImageType: kind}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: p.Width, Ht: p.Height})
		pdf.ImageOptions(name, 0, 0, p.Width, p.Height, false, opts, 0, "")
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
