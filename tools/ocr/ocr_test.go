package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/storage"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

type scriptedRecognizer struct {
	steps []vendors.RecognizeProgress
	text  string
	err   error
	block chan struct{}

	mu    sync.Mutex
	langs []string
}

// lastLang returns the language of the most recent call.
func (r *scriptedRecognizer) lastLang() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.langs) == 0 {
		return ""
	}
	return r.langs[len(r.langs)-1]
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, data []byte, lang string, progress func(vendors.RecognizeProgress)) (string, error) {
	r.mu.Lock()
	r.langs = append(r.langs, lang)
	r.mu.Unlock()
	for _, s := range r.steps {
		progress(s)
	}
	if r.block != nil {
		<-r.block
	}
	return r.text, r.err
}

func TestSubmit_ProgressAndHistory(t *testing.T) {
	rec := &scriptedRecognizer{
		steps: []vendors.RecognizeProgress{
			{Status: vendors.StatusLoadingCore, Progress: 1},
			{Status: vendors.StatusInitializing, Progress: 0.5},
			{Status: vendors.StatusRecognizing, Progress: 0.25},
			{Status: vendors.StatusRecognizing, Progress: 0.75},
		},
		text: "Hello world",
	}
	hist := history.New(storage.NewMemory())
	a := New(rec, "", hist)

	op := a.Submit(context.Background(), []byte("img"), "")
	var percents []int
	var terminal tools.Event
	for e := range op.Events(context.Background()) {
		if e.Type == tools.EventProgress {
			if e.Status != vendors.StatusRecognizing {
				t.Errorf("only recognizing text should be reported, got %q", e.Status)
			}
			percents = append(percents, e.Percent)
		} else {
			terminal = e
		}
	}

	want := []int{0, 25, 75}
	if len(percents) != len(want) {
		t.Fatalf("expected progress %v, got %v", want, percents)
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, percents[i], want[i])
		}
	}
	if terminal.Type != tools.EventSuccess || terminal.Result.(Result).Text != "Hello world" {
		t.Errorf("unexpected terminal event %+v", terminal)
	}
	if got := rec.lastLang(); got != "eng" {
		t.Errorf("expected default language eng, got %q", got)
	}

	items := hist.List()
	if len(items) != 1 || items[0].Kind != history.KindOCR || items[0].Payload != "Hello world" {
		t.Errorf("unexpected history %+v", items)
	}
}

func TestSubmit_ServiceFailure(t *testing.T) {
	hist := history.New(storage.NewMemory())
	a := New(&scriptedRecognizer{err: errors.New("traineddata missing")}, "deu", hist)

	_, err := a.Submit(context.Background(), []byte("img"), "").Wait(context.Background())
	var se *tools.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if len(hist.List()) != 0 {
		t.Error("failed recognition must not be recorded")
	}
}

func TestSubmit_EmptyInput(t *testing.T) {
	a := New(&scriptedRecognizer{}, "", history.New(storage.NewMemory()))
	if _, err := a.Submit(context.Background(), nil, "").Wait(context.Background()); !errors.Is(err, tools.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmit_SupersededStillRecords(t *testing.T) {
	block := make(chan struct{})
	hist := history.New(storage.NewMemory())
	a := New(&scriptedRecognizer{text: "first", block: block}, "", hist)

	first := a.Submit(context.Background(), []byte("a"), "")
	second := a.Submit(context.Background(), []byte("b"), "")
	close(block)

	first.Wait(context.Background())
	second.Wait(context.Background())

	if !first.Status().Superseded {
		t.Error("first submission should be superseded")
	}
	if a.Latest() != second {
		t.Error("latest should be the second submission")
	}
	if n := len(hist.List()); n != 2 {
		t.Errorf("superseded work still writes history, expected 2 items, got %d", n)
	}
}

func TestSubmit_CancelSkipsHistory(t *testing.T) {
	block := make(chan struct{})
	hist := history.New(storage.NewMemory())
	a := New(&scriptedRecognizer{text: "late", block: block}, "", hist)

	op := a.Submit(context.Background(), []byte("a"), "")
	op.Cancel()
	close(block)

	if _, err := op.Wait(context.Background()); !errors.Is(err, tools.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
}
