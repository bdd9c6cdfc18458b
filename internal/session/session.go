// Package session records one run's event log and persists it.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status constants for runs.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusBlocked  = "blocked"
	StatusFailed   = "failed"
)

// Event types for the run log.
const (
	EventTransition     = "transition"
	EventExecutorCall   = "executor_call"
	EventExecutorResult = "executor_result"
	EventWriteDenied    = "write_denied"
	EventPrune          = "prune"
	EventGateTier       = "gate_tier"
	EventCheckpoint     = "checkpoint"
)

// Run represents one loop execution from task start to a terminal state.
type Run struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal state (not persisted)
	seqCounter uint64
	mu         sync.Mutex
}

// Event is a single entry in the run log. Consumers treat the log as an
// opaque, append-only history; only the fields relevant to the event type
// are set.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Iteration int    `json:"iteration,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Reason    string `json:"reason,omitempty"`

	Path    string `json:"path,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Command string `json:"command,omitempty"`

	Success    *bool  `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// NewRun creates a run with a fresh ID.
func NewRun(task string) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Task:      task,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResumeRun rebuilds a run from a persisted ID, task, and event history,
// restoring the sequence counter so new events continue the log.
func ResumeRun(id, task string, events []Event) *Run {
	run := NewRun(task)
	run.ID = id
	run.Events = append([]Event{}, events...)
	if len(events) > 0 {
		run.seqCounter = events[len(events)-1].SeqID
	}
	return run
}

// AddEvent appends an event with automatic sequencing and returns its
// sequence ID.
func (r *Run) AddEvent(event Event) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.SeqID = atomic.AddUint64(&r.seqCounter, 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	r.Events = append(r.Events, event)
	r.UpdatedAt = time.Now()
	return event.SeqID
}

// Finish marks the run terminal.
func (r *Run) Finish(status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.Error = errMsg
	r.UpdatedAt = time.Now()
}

// Store is the interface for run persistence.
type Store interface {
	Save(run *Run) error
	Load(id string) (*Run, error)
}

// JSONL record types for the streaming format.
const (
	recordTypeHeader = "header"
	recordTypeEvent  = "event"
	recordTypeFooter = "footer"
)

type jsonlRecord struct {
	RecordType string `json:"_type"`

	// Header fields
	ID        string    `json:"id,omitempty"`
	Task      string    `json:"task,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Event fields
	*Event `json:",omitempty"`

	// Footer fields
	Status    string    `json:"status,omitempty"`
	RunError  string    `json:"run_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FileStore implements Store using one JSONL file per run.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-based store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save persists a run as header line, one line per event, footer line.
func (s *FileStore) Save(run *Run) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	f, err := os.Create(filepath.Join(s.dir, run.ID+".jsonl"))
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	defer f.Close()

	header := jsonlRecord{
		RecordType: recordTypeHeader,
		ID:         run.ID,
		Task:       run.Task,
		CreatedAt:  run.CreatedAt,
	}
	if err := writeLine(f, header); err != nil {
		return err
	}

	for _, evt := range run.Events {
		evtCopy := evt
		if err := writeLine(f, jsonlRecord{RecordType: recordTypeEvent, Event: &evtCopy}); err != nil {
			return err
		}
	}

	footer := jsonlRecord{
		RecordType: recordTypeFooter,
		Status:     run.Status,
		RunError:   run.Error,
		UpdatedAt:  run.UpdatedAt,
	}
	return writeLine(f, footer)
}

func writeLine(f *os.File, record jsonlRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	_, err = f.WriteString("\n")
	return err
}

// Load reads a run from disk.
func (s *FileStore) Load(id string) (*Run, error) {
	f, err := os.Open(filepath.Join(s.dir, id+".jsonl"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	run := &Run{Events: []Event{}}

	// bufio.Reader rather than Scanner: no line length limit.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(bytes.TrimSpace(line)) > 0 {
					if parseErr := parseLine(line, run); parseErr != nil {
						return nil, parseErr
					}
				}
				break
			}
			return nil, fmt.Errorf("error reading run log: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := parseLine(line, run); err != nil {
			return nil, err
		}
	}

	if len(run.Events) > 0 {
		run.seqCounter = run.Events[len(run.Events)-1].SeqID
	}
	return run, nil
}

func parseLine(line []byte, run *Run) error {
	var record jsonlRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse run record: %w", err)
	}
	switch record.RecordType {
	case recordTypeHeader:
		run.ID = record.ID
		run.Task = record.Task
		run.CreatedAt = record.CreatedAt
	case recordTypeEvent:
		if record.Event != nil {
			run.Events = append(run.Events, *record.Event)
		}
	case recordTypeFooter:
		run.Status = record.Status
		run.Error = record.RunError
		run.UpdatedAt = record.UpdatedAt
	default:
		return fmt.Errorf("unknown record type %q", record.RecordType)
	}
	return nil
}

// List returns the IDs of all persisted runs, newest first.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	type runFile struct {
		id  string
		mod time.Time
	}
	var files []runFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".jsonl")]
		files = append(files, runFile{id: id, mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.id
	}
	return ids, nil
}
