// Package history keeps the bounded, newest-first log of completed tool
// actions in device-local storage.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/storage"
)

const (
	// StorageKey is the record the collection is serialized under.
	StorageKey = "omnitool_history"

	// MaxItems caps the collection; the oldest items are dropped.
	MaxItems = 20
)

var logger = log.GetLogger("History")

// Store is the Persistent History Store. All mutations are whole-collection
// read-modify-write operations serialized by mu.
type Store struct {
	st    storage.Storage
	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	onChange func()
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a store over st.
func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		st:    st,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetChangeHandler registers fn to run after every successful mutation.
func (s *Store) SetChangeHandler(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Append records a completed action and returns the new item. Storage
// failures are logged and never reach the caller; a failed write leaves the
// previously stored collection untouched.
func (s *Store) Append(kind Kind, payload string) Item {
	s.mu.Lock()

	items, readErr := s.load()
	item := Item{
		ID:        s.uniqueID(items),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	// Keep newest-first ordering even if the wall clock stepped back.
	if len(items) > 0 && item.CreatedAt.Before(items[0].CreatedAt) {
		item.CreatedAt = items[0].CreatedAt
	}

	updated := make([]Item, 0, MaxItems)
	updated = append(updated, item)
	updated = append(updated, items...)
	if len(updated) > MaxItems {
		updated = updated[:MaxItems]
	}

	// An unreadable record is left alone: writing now would replace the
	// stored collection with this single item.
	if readErr != nil {
		s.mu.Unlock()
		logger.Warn().Err(readErr).Str("kind", string(kind)).Msg("history unreadable, item not persisted")
		return item
	}

	err := s.save(updated)
	onChange := s.onChange
	s.mu.Unlock()

	if err != nil {
		logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to persist history item")
		return item
	}
	logger.Debug().Str("id", item.ID).Str("kind", string(kind)).Int("count", len(updated)).Msg("history item appended")
	if onChange != nil {
		onChange()
	}
	return item
}

// List returns the stored collection, newest first. Missing, unreadable or
// malformed storage yields an empty slice.
func (s *Store) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := s.load()
	return items
}

// Clear deletes the persisted collection. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	err := s.st.RemoveItem(StorageKey)
	onChange := s.onChange
	s.mu.Unlock()

	if err != nil {
		logger.Warn().Err(err).Msg("failed to clear history")
		return
	}
	logger.Info().Msg("history cleared")
	if onChange != nil {
		onChange()
	}
}

// load must be called with mu held. The error is set only when storage
// could not be read; a missing or malformed record is an empty collection.
func (s *Store) load() ([]Item, error) {
	raw, ok, err := s.st.GetItem(StorageKey)
	if err != nil {
		logger.Warn().Err(err).Msg("history storage unreadable, treating as empty")
		return []Item{}, err
	}
	if !ok || raw == "" {
		return []Item{}, nil
	}

	items, err := decode(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("discarding malformed history record")
		return []Item{}, nil
	}
	return items, nil
}

func (s *Store) save(items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.st.SetItem(StorageKey, string(data))
}

// uniqueID draws ids until one is not already present in items.
func (s *Store) uniqueID(items []Item) string {
	for {
		id := s.newID()
		taken := false
		for _, it := range items {
			if it.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}

// decode parses the persisted record and re-establishes the invariants a
// hand-edited or older record might violate.
func decode(raw string) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if items == nil {
		return []Item{}, nil
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	return items, nil
}
