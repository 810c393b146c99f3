package learner

// store.go - Persistence backends for learned threats
//
// The file store is the default: a single JSON file rewritten on every
// mutation. Fine for the volumes a human feedback loop produces. Redis and
// Postgres stores exist for multi-instance deployments.

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store persists learned threats across restarts.
type Store interface {
	// Load returns all persisted threats.
	Load(ctx context.Context) ([]*LearnedThreat, error)

	// Put inserts or replaces a threat by its key.
	Put(ctx context.Context, threat *LearnedThreat) error

	// Delete removes a threat by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// FileStore persists threats to a JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex

	threats map[string]*LearnedThreat
}

// NewFileStore creates a file-backed store. The file is created on first
// write; a missing file loads as empty.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) ([]*LearnedThreat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threats = make(map[string]*LearnedThreat)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var threats []*LearnedThreat
	if err := json.Unmarshal(data, &threats); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	for _, t := range threats {
		s.threats[t.Key] = t
	}
	return threats, nil
}

func (s *FileStore) Put(_ context.Context, threat *LearnedThreat) error {
	if threat == nil || threat.Key == "" {
		return fmt.Errorf("threat key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threats == nil {
		s.threats = make(map[string]*LearnedThreat)
	}
	s.threats[threat.Key] = threat
	return s.flush()
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threats[key]; !ok {
		return nil
	}
	delete(s.threats, key)
	return s.flush()
}

// flush rewrites the whole file. Caller holds s.mu. Writes go through a
// temp file and rename so a crash mid-write never corrupts the table.
func (s *FileStore) flush() error {
	threats := make([]*LearnedThreat, 0, len(s.threats))
	for _, t := range s.threats {
		threats = append(threats, t)
	}
	sort.Slice(threats, func(i, j int) bool { return threats[i].Key < threats[j].Key })

	data, err := json.MarshalIndent(threats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal threats: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
