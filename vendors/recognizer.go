package vendors

import (
	"context"
	"errors"
)

// Recognizer progress statuses, as reported by the OCR engine.
const (
	StatusLoadingCore  = "loading tesseract core"
	StatusInitializing = "initializing api"
	StatusLoadingLang  = "loading language traineddata"
	StatusRecognizing  = "recognizing text"
)

// ErrRecognizerUnavailable is returned by builds without OCR support.
var ErrRecognizerUnavailable = errors.New("OCR support not enabled; rebuild with -tags ocr")

// RecognizeProgress is one progress report from the engine. Progress is
// the fraction (0..1) of the current status.
type RecognizeProgress struct {
	Status   string
	Progress float64
}

// Recognizer extracts text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, lang string, progress func(RecognizeProgress)) (string, error)
}
