//go:build !ocr

package vendors

import "context"

// TesseractRecognizer is the stub used when the "ocr" build tag is not
// set. Every call fails with ErrRecognizerUnavailable.
type TesseractRecognizer struct{}

func NewTesseractRecognizer() Recognizer {
	return &TesseractRecognizer{}
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, data []byte, lang string, progress func(RecognizeProgress)) (string, error) {
	return "", ErrRecognizerUnavailable
}
