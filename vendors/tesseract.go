//go:build ocr

package vendors

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer runs Tesseract through gosseract. Requires the
// tesseract library at build and run time:
//
//	go build -tags ocr
type TesseractRecognizer struct{}

func NewTesseractRecognizer() Recognizer {
	return &TesseractRecognizer{}
}

// Recognize creates a client per call; gosseract clients are not safe for
// concurrent use.
func (t *TesseractRecognizer) Recognize(ctx context.Context, data []byte, lang string, progress func(RecognizeProgress)) (string, error) {
	report := func(status string, p float64) {
		if progress != nil {
			progress(RecognizeProgress{Status: status, Progress: p})
		}
	}
	if lang == "" {
		lang = "eng"
	}

	report(StatusLoadingCore, 0)
	client := gosseract.NewClient()
	defer client.Close()
	report(StatusLoadingCore, 1)

	report(StatusLoadingLang, 0)
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return "", fmt.Errorf("set language %q: %w", lang, err)
	}
	report(StatusLoadingLang, 1)

	report(StatusInitializing, 0)
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	report(StatusInitializing, 1)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	report(StatusRecognizing, 0)
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	report(StatusRecognizing, 1)

	return strings.TrimSpace(text), nil
}
