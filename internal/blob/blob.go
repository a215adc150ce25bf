// Package blob mirrors project images into object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go-image-organizer/internal/models"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is an object store keyed by slash-separated paths. There is no
// rename primitive; callers copy then delete.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Copy(ctx context.Context, srcPath, dstPath string) error
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// New builds the store selected in cfg. A nil Store with a nil error means
// mirroring is disabled.
func New(cfg models.BlobConfig, transport http.RoundTripper) (Store, error) {
	switch strings.ToLower(cfg.Provider) {
	case models.BlobProviderNone:
		return nil, nil
	case models.BlobProviderMemory:
		return NewMemory(), nil
	case models.BlobProviderLocal:
		return NewLocal(cfg.Root)
	case models.BlobProviderSupabase:
		return NewSupabase(cfg, transport)
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.Provider)
	}
}

type object struct {
	data        []byte
	contentType string
}

// Memory keeps objects in a map. Used in tests and for dry runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *Memory) Put(_ context.Context, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = object{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *Memory) Copy(_ context.Context, srcPath, dstPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[srcPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, srcPath)
	}
	m.objects[dstPath] = object{data: append([]byte(nil), obj.data...), contentType: obj.contentType}
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *Memory) URL(path string) string {
	return "memory://" + path
}

// Get returns an object's bytes.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj.data, ok
}

// Paths lists every stored path, sorted.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
