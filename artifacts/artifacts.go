// Package artifacts holds files produced by the tools (compiled PDFs,
// optimized images) until they are downloaded. Each artifact is served once
// and then released; unclaimed ones are released after a TTL.
package artifacts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/omnitool/log"
)

const blobPrefix = "artifacts/"

var ErrNotFound = errors.New("artifact not found")

var logger = log.GetLogger("Artifacts")

// Blobs is the byte store behind the registry. *db.DB implements it on
// the sqlar table.
type Blobs interface {
	SqlarStore(name string, data []byte, mode int) error
	SqlarGet(name string) ([]byte, bool, error)
	SqlarDelete(name string) error
	SqlarDeletePrefix(prefix string) (int, error)
}

// Artifact describes a downloadable file.
type Artifact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	Size      int       `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	artifact Artifact
	timer    *time.Timer
}

// Registry indexes stored artifacts in memory.
type Registry struct {
	blobs Blobs
	ttl   time.Duration

	mu    sync.Mutex
	items map[string]*entry
}

// NewRegistry creates a registry. Blobs left over from a previous run are
// unreachable (the index is in memory) and are deleted.
func NewRegistry(blobs Blobs, ttl time.Duration) *Registry {
	if n, err := blobs.SqlarDeletePrefix(blobPrefix); err != nil {
		logger.Warn().Err(err).Msg("failed to drop stale artifacts")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("dropped stale artifacts")
	}
	return &Registry{blobs: blobs, ttl: ttl, items: make(map[string]*entry)}
}

func blobName(id string) string { return blobPrefix + id }

// Put stores data and returns its reference.
func (r *Registry) Put(name, mimeType string, data []byte) (Artifact, error) {
	id := uuid.NewString()
	if err := r.blobs.SqlarStore(blobName(id), data, 0644); err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}

	a := Artifact{
		ID:        id,
		Name:      name,
		MimeType:  mimeType,
		Size:      len(data),
		URL:       "/api/artifacts/" + id,
		CreatedAt: time.Now(),
	}
	e := &entry{artifact: a}
	if r.ttl > 0 {
		e.timer = time.AfterFunc(r.ttl, func() {
			if r.Release(id) {
				logger.Debug().Str("id", id).Str("name", name).Msg("unclaimed artifact expired")
			}
		})
	}

	r.mu.Lock()
	r.items[id] = e
	r.mu.Unlock()

	logger.Info().Str("id", id).Str("name", name).Int("bytes", len(data)).Msg("artifact stored")
	return a, nil
}

// Get returns the artifact's description without claiming it.
func (r *Registry) Get(id string) (Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	if !ok {
		return Artifact{}, false
	}
	return e.artifact, true
}

// Take returns the artifact and its bytes and releases it.
func (r *Registry) Take(id string) (Artifact, []byte, error) {
	r.mu.Lock()
	e, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()
	if !ok {
		return Artifact{}, nil, ErrNotFound
	}
	if e.timer != nil {
		e.timer.Stop()
	}

	data, found, err := r.blobs.SqlarGet(blobName(id))
	if derr := r.blobs.SqlarDelete(blobName(id)); derr != nil {
		logger.Warn().Err(derr).Str("id", id).Msg("failed to delete artifact blob")
	}
	if err != nil {
		return Artifact{}, nil, fmt.Errorf("load artifact: %w", err)
	}
	if !found {
		return Artifact{}, nil, ErrNotFound
	}
	return e.artifact, data, nil
}

// Release drops an artifact without serving it. It reports whether the
// artifact existed.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	e, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	if err := r.blobs.SqlarDelete(blobName(id)); err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("failed to delete artifact blob")
	}
	return true
}

// Clear releases every artifact.
func (r *Registry) Clear() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Release(id)
	}
}

// Len returns the number of unclaimed artifacts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// MemoryBlobs is a Blobs implementation for when the database is
// unavailable, and for tests.
type MemoryBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{data: make(map[string][]byte)}
}

func (m *MemoryBlobs) SqlarStore(name string, data []byte, mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobs) SqlarGet(name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[name]
	return d, ok, nil
}

func (m *MemoryBlobs) SqlarDelete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	return nil
}

func (m *MemoryBlobs) SqlarDeletePrefix(prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name := range m.data {
		if strings.HasPrefix(name, prefix) {
			delete(m.data, name)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored blobs.
func (m *MemoryBlobs) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
