// Package score keeps the learner's cumulative star count.
package score

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// StarsKey is the counter the practice loop rewards.
const StarsKey = "stars"

// ErrNegativeIncrement is returned when Add is asked to take stars away.
var ErrNegativeIncrement = errors.New("score increment must not be negative")

// Store is a persistent star counter.
type Store interface {
	// Add increments the counter and returns the new total.
	Add(n int) (int, error)
	Total() (int, error)
}

// MemoryStore keeps the total in memory only.
type MemoryStore struct {
	mu    sync.Mutex
	total int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Add(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeIncrement, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += n
	return m.total, nil
}

func (m *MemoryStore) Total() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

// FileStore persists counters as a small YAML map, e.g.
//
//	stars: 42
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file and its directory are
// created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Add(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeIncrement, n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	counters, err := f.read()
	if err != nil {
		return 0, err
	}
	counters[StarsKey] += n
	if err := f.write(counters); err != nil {
		return 0, err
	}
	return counters[StarsKey], nil
}

func (f *FileStore) Total() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counters, err := f.read()
	if err != nil {
		return 0, err
	}
	return counters[StarsKey], nil
}

func (f *FileStore) read() (map[string]int, error) {
	counters := map[string]int{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return counters, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read score file: %w", err)
	}
	if err := yaml.Unmarshal(data, &counters); err != nil {
		return nil, fmt.Errorf("failed to parse score file %s: %w", f.path, err)
	}
	if counters == nil {
		counters = map[string]int{}
	}
	return counters, nil
}

// write replaces the file atomically.
func (f *FileStore) write(counters map[string]int) error {
	data, err := yaml.Marshal(counters)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create score directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write score file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace score file: %w", err)
	}
	return nil
}
