// Package checkpoint persists loop state so a run can resume across
// process restarts.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/gyre/internal/fsm"
	"github.com/vinayprograms/gyre/internal/manifest"
	"github.com/vinayprograms/gyre/internal/session"
)

// Record is the persisted state of one run at its last checkpoint. Machine
// and Manifest restore the loop's position; Events is the opaque history
// the loop carries along but never interprets.
type Record struct {
	RunID     string            `json:"run_id"`
	Task      string            `json:"task"`
	Machine   fsm.Snapshot      `json:"machine"`
	Manifest  manifest.Snapshot `json:"manifest"`
	Events    []session.Event   `json:"events,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store manages checkpoint records under one directory, one JSON file per
// run.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a checkpoint store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the record atomically: temp file then rename, so a crash
// mid-write never leaves a truncated checkpoint.
func (s *Store) Save(rec *Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("checkpoint record missing run ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := s.path(rec.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// Load reads the record for a run.
func (s *Store) Load(runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint for %s: %w", runID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint for %s: %w", runID, err)
	}
	return &rec, nil
}

// Exists reports whether a checkpoint is on disk for the run.
func (s *Store) Exists(runID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path(runID))
	return err == nil
}

// Delete removes a run's checkpoint, typically after a clean COMPLETE.
func (s *Store) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(runID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
