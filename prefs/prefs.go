// Package prefs keeps the UI preferences (active tab, theme, last camera)
// in device-local storage. The record is read once at startup and written
// on every change.
package prefs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/storage"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

const (
	KeyActiveTool = "omnitool_active_tab"
	KeyTheme      = "omnitool_theme"
	KeyLastCamera = "omnitool_last_camera"
)

var ErrInvalidTheme = errors.New("invalid theme")

var logger = log.GetLogger("Prefs")

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
}

// Preference is the persisted UI state.
type Preference struct {
	ActiveTool tools.Kind `json:"activeTool"`
	Theme      Theme      `json:"theme"`
	LastCamera string     `json:"lastCamera,omitempty"`
}

// Default is the preference on first run and after clearing all data.
func Default() Preference {
	return Preference{ActiveTool: tools.DefaultKind, Theme: ThemeSystem}
}

// Store holds the current preference in memory and mirrors it to storage.
type Store struct {
	st             storage.Storage
	rememberCamera bool

	mu  sync.Mutex
	cur Preference
}

// Load reads the preference records once. Missing or invalid values fall
// back to the defaults; storage errors are logged.
func Load(st storage.Storage, rememberCamera bool) *Store {
	s := &Store{st: st, rememberCamera: rememberCamera, cur: Default()}

	if v, ok := s.read(KeyActiveTool); ok {
		if k, err := tools.ParseKind(v); err == nil {
			s.cur.ActiveTool = k
		} else {
			logger.Warn().Str("value", v).Msg("ignoring stored active tool")
		}
	}
	if v, ok := s.read(KeyTheme); ok {
		if t, err := ParseTheme(v); err == nil {
			s.cur.Theme = t
		} else {
			logger.Warn().Str("value", v).Msg("ignoring stored theme")
		}
	}
	if rememberCamera {
		if v, ok := s.read(KeyLastCamera); ok {
			s.cur.LastCamera = v
		}
	}
	return s
}

func (s *Store) read(key string) (string, bool) {
	v, ok, err := s.st.GetItem(key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to read preference")
		return "", false
	}
	return v, ok
}

func (s *Store) write(key, value string) {
	if err := s.st.SetItem(key, value); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to persist preference")
	}
}

// Get returns the current preference.
func (s *Store) Get() Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// SetActiveTool records the selected tab.
func (s *Store) SetActiveTool(k tools.Kind) error {
	if _, err := tools.ParseKind(string(k)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.ActiveTool = k
	s.write(KeyActiveTool, string(k))
	return nil
}

// SetTheme records the theme.
func (s *Store) SetTheme(t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Theme = t
	s.write(KeyTheme, string(t))
	return nil
}

// SetLastCamera records the camera id; a no-op unless remembering is on.
func (s *Store) SetLastCamera(id string) {
	if !s.rememberCamera || id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.LastCamera == id {
		return
	}
	s.cur.LastCamera = id
	s.write(KeyLastCamera, id)
}

// Reset removes every preference record and restores the defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{KeyActiveTool, KeyTheme, KeyLastCamera} {
		if err := s.st.RemoveItem(key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("failed to remove preference")
		}
	}
	s.cur = Default()
}
