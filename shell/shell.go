// Package shell owns the app-level UI state: which tool is active, the
// theme, and the destructive clear-all action.
package shell

import (
	"context"
	"errors"
	"sync"

	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/prefs"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

var ErrConfirmationRequired = errors.New("clearing all data requires confirmation")

var logger = log.GetLogger("Shell")

// AppState is what the shell renders around the active tool.
type AppState struct {
	ActiveTool tools.Kind  `json:"activeTool"`
	Theme      prefs.Theme `json:"theme"`
}

// Lifecycle switches tools. *session.Manager implements it.
type Lifecycle interface {
	Activate(ctx context.Context, kind tools.Kind) error
}

// Notifier publishes shell changes. *notifications.Service implements it.
type Notifier interface {
	NotifyToolActivated(tool string)
	NotifyPreferencesChanged(prefs any)
	NotifyHistoryChanged()
	NotifyDataCleared()
}

type Controller struct {
	prefs     *prefs.Store
	history   *history.Store
	lifecycle Lifecycle
	notifier  Notifier

	// onClear hooks run after clear-all (staged PDF images, artifacts).
	onClear []func()

	mu    sync.Mutex
	state AppState
}

// New restores the state from the preference store. The history store's
// change handler is taken over to publish history-changed.
func New(p *prefs.Store, h *history.Store, lc Lifecycle, n Notifier) *Controller {
	pref := p.Get()
	c := &Controller{
		prefs:     p,
		history:   h,
		lifecycle: lc,
		notifier:  n,
		state:     AppState{ActiveTool: pref.ActiveTool, Theme: pref.Theme},
	}
	h.SetChangeHandler(func() {
		if c.notifier != nil {
			c.notifier.NotifyHistoryChanged()
		}
	})
	return c
}

// OnClear registers fn to run after all data is cleared.
func (c *Controller) OnClear(fn func()) {
	c.mu.Lock()
	c.onClear = append(c.onClear, fn)
	c.mu.Unlock()
}

// State returns the current app state.
func (c *Controller) State() AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns the feed, newest first.
func (c *Controller) History() []history.Item {
	return c.history.List()
}

// ShowClearAll mirrors when the clear action is offered: there is history,
// or the tab differs from the default.
func (c *Controller) ShowClearAll() bool {
	return len(c.history.List()) > 0 || c.State().ActiveTool != tools.DefaultKind
}

// SetActiveTool switches tools, persists the choice and notifies.
func (c *Controller) SetActiveTool(ctx context.Context, kind tools.Kind) error {
	if _, err := tools.ParseKind(string(kind)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lifecycle.Activate(ctx, kind); err != nil {
		return err
	}
	if err := c.prefs.SetActiveTool(kind); err != nil {
		return err
	}
	changed := c.state.ActiveTool != kind
	c.state.ActiveTool = kind
	if changed && c.notifier != nil {
		c.notifier.NotifyToolActivated(string(kind))
	}
	return nil
}

// SetTheme persists the theme and notifies.
func (c *Controller) SetTheme(t prefs.Theme) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.prefs.SetTheme(t); err != nil {
		return err
	}
	c.state.Theme = t
	if c.notifier != nil {
		c.notifier.NotifyPreferencesChanged(c.prefs.Get())
	}
	return nil
}

// ToggleTheme flips to light when dark, otherwise to dark.
func (c *Controller) ToggleTheme() (prefs.Theme, error) {
	next := prefs.ThemeDark
	if c.State().Theme == prefs.ThemeDark {
		next = prefs.ThemeLight
	}
	return next, c.SetTheme(next)
}

// ClearAllData wipes the history, resets the preferences and returns to
// the default tool. Without confirmed it does nothing.
func (c *Controller) ClearAllData(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.Clear()
	if err := c.lifecycle.Activate(ctx, tools.DefaultKind); err != nil {
		logger.Warn().Err(err).Msg("failed to switch to default tool while clearing data")
	}
	c.prefs.Reset()
	pref := c.prefs.Get()
	c.state = AppState{ActiveTool: pref.ActiveTool, Theme: pref.Theme}

	for _, fn := range c.onClear {
		fn()
	}
	logger.Info().Msg("all data cleared")

	if c.notifier != nil {
		c.notifier.NotifyDataCleared()
		c.notifier.NotifyToolActivated(string(pref.ActiveTool))
		c.notifier.NotifyPreferencesChanged(pref)
	}
	return nil
}
