// Package ocr extracts text from uploaded images.
package ocr

import (
	"context"
	"fmt"

	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

// Result of a recognition.
type Result struct {
	Text      string `json:"text"`
	Language  string `json:"language"`
	HistoryID string `json:"historyId"`
}

type Adapter struct {
	recognizer vendors.Recognizer
	language   string
	history    *history.Store
	latest     tools.Latest
}

// New creates the adapter. language is used when a submission names none.
func New(rec vendors.Recognizer, language string, hist *history.Store) *Adapter {
	if language == "" {
		language = "eng"
	}
	return &Adapter{recognizer: rec, language: language, history: hist}
}

// Submit starts recognition of data. Only the engine's "recognizing text"
// phase counts toward progress.
func (a *Adapter) Submit(ctx context.Context, data []byte, language string) *tools.Operation {
	if language == "" {
		language = a.language
	}
	op := tools.Start(ctx, tools.OCR, func(ctx context.Context, report tools.Reporter) (any, error) {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty image", tools.ErrInvalidInput)
		}
		report(0, vendors.StatusRecognizing)

		text, err := a.recognizer.Recognize(ctx, data, language, func(p vendors.RecognizeProgress) {
			if p.Status == vendors.StatusRecognizing {
				report(int(p.Progress*100), p.Status)
			}
		})
		if ctx.Err() != nil {
			return nil, tools.ErrCanceled
		}
		if err != nil {
			return nil, tools.NewServiceError("recognizer", err)
		}

		item := a.history.Append(history.KindOCR, text)
		return Result{Text: text, Language: language, HistoryID: item.ID}, nil
	})
	a.latest.Replace(op)
	return op
}

// Latest returns the most recent submission.
func (a *Adapter) Latest() *tools.Operation {
	return a.latest.Current()
}
