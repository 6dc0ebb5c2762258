package shell

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/prefs"
	"github.com/xiaoyuanzhu-com/omnitool/storage"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

type fakeLifecycle struct {
	mu     sync.Mutex
	active tools.Kind
	calls  []tools.Kind
	err    error
}

func (f *fakeLifecycle) Activate(ctx context.Context, kind tools.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if f.err != nil {
		return f.err
	}
	f.active = kind
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingNotifier) NotifyToolActivated(tool string) { r.add("tool:" + tool) }
func (r *recordingNotifier) NotifyPreferencesChanged(any)    { r.add("prefs") }
func (r *recordingNotifier) NotifyHistoryChanged()           { r.add("history") }
func (r *recordingNotifier) NotifyDataCleared()              { r.add("cleared") }

func (r *recordingNotifier) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func setup(st storage.Storage) (*Controller, *history.Store, *fakeLifecycle, *recordingNotifier) {
	hist := history.New(st)
	lc := &fakeLifecycle{}
	n := &recordingNotifier{}
	c := New(prefs.Load(st, true), hist, lc, n)
	return c, hist, lc, n
}

func TestNew_RestoresPreferences(t *testing.T) {
	st := storage.NewMemory()
	p := prefs.Load(st, true)
	p.SetActiveTool(tools.Image)
	p.SetTheme(prefs.ThemeDark)

	c, _, _, _ := setup(st)
	if s := c.State(); s.ActiveTool != tools.Image || s.Theme != prefs.ThemeDark {
		t.Errorf("unexpected restored state %+v", s)
	}
}

func TestSetActiveTool(t *testing.T) {
	st := storage.NewMemory()
	c, _, lc, n := setup(st)

	if err := c.SetActiveTool(context.Background(), tools.PDF); err != nil {
		t.Fatal(err)
	}
	if c.State().ActiveTool != tools.PDF || lc.active != tools.PDF {
		t.Error("tool should be activated")
	}
	if v, _, _ := st.GetItem(prefs.KeyActiveTool); v != "pdf" {
		t.Errorf("tool should be persisted, got %q", v)
	}
	if !n.has("tool:pdf") {
		t.Error("expected tool-activated notification")
	}

	if err := c.SetActiveTool(context.Background(), "fax"); !errors.Is(err, tools.ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

func TestSetActiveTool_LifecycleFailureKeepsState(t *testing.T) {
	c, _, lc, _ := setup(storage.NewMemory())
	lc.err = errors.New("release timed out")
	if err := c.SetActiveTool(context.Background(), tools.OCR); err == nil {
		t.Fatal("expected error")
	}
	if c.State().ActiveTool != tools.Scanner {
		t.Error("state should not change when activation fails")
	}
}

func TestToggleTheme(t *testing.T) {
	c, _, _, n := setup(storage.NewMemory())

	if got, _ := c.ToggleTheme(); got != prefs.ThemeDark {
		t.Errorf("system should toggle to dark, got %s", got)
	}
	if got, _ := c.ToggleTheme(); got != prefs.ThemeLight {
		t.Errorf("dark should toggle to light, got %s", got)
	}
	if !n.has("prefs") {
		t.Error("expected preferences-changed notification")
	}
}

func TestClearAllData_RequiresConfirmation(t *testing.T) {
	c, hist, _, _ := setup(storage.NewMemory())
	hist.Append(history.KindScan, "x")

	if err := c.ClearAllData(context.Background(), false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if len(c.History()) != 1 {
		t.Error("unconfirmed clear must not touch history")
	}
}

func TestClearAllData(t *testing.T) {
	st := storage.NewMemory()
	c, hist, lc, n := setup(st)
	hist.Append(history.KindScan, "a")
	hist.Append(history.KindOCR, "b")
	c.SetActiveTool(context.Background(), tools.OCR)
	c.SetTheme(prefs.ThemeDark)

	hooked := false
	c.OnClear(func() { hooked = true })

	if err := c.ClearAllData(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if len(c.History()) != 0 {
		t.Error("history should be empty")
	}
	if s := c.State(); s.ActiveTool != tools.Scanner || s.Theme != prefs.ThemeSystem {
		t.Errorf("expected default state, got %+v", s)
	}
	if lc.active != tools.Scanner {
		t.Error("lifecycle should be back on the scanner")
	}
	if st.Len() != 0 {
		t.Errorf("all records should be removed, %d left", st.Len())
	}
	if !hooked || !n.has("cleared") {
		t.Error("clear hooks and notification expected")
	}
	if c.ShowClearAll() {
		t.Error("nothing left to clear")
	}

	// Clearing again is harmless.
	if err := c.ClearAllData(context.Background(), true); err != nil {
		t.Errorf("second clear failed: %v", err)
	}
}

func TestHistoryChangesAreNotified(t *testing.T) {
	c, hist, _, n := setup(storage.NewMemory())
	hist.Append(history.KindScan, "x")
	if !n.has("history") {
		t.Error("expected history-changed notification")
	}
	if !c.ShowClearAll() {
		t.Error("clear should be offered when history exists")
	}
}
