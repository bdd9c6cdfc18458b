// Package manifest enforces read-before-write discipline on agent file edits.
package manifest

import (
	"sort"
	"sync"
)

// Reason tags returned by CanWrite. The loop surfaces these verbatim to the
// agent so it can recover (re-read, or declare the file next task).
const (
	ReasonAllowedCreate = "allowed_create"
	ReasonNotDeclared   = "not declared writable"
	ReasonMustRead      = "must read before write"
	ReasonPruned        = "pruned from context, must re-read"
	ReasonReadVerified  = "read_verified"
)

// Manifest is the read/write access-control ledger for one task's workspace.
// The allowed sets are fixed at task start; only read state and prune marks
// change afterwards.
type Manifest struct {
	mu             sync.RWMutex
	allowedWrites  map[string]bool
	allowedCreates map[string]bool
	read           map[string]bool
	pruned         map[string]bool
}

// New creates a manifest from the agent's declared intent: files it may
// modify (write after read) and files it may create without a prior read.
func New(writes, creates []string) *Manifest {
	m := &Manifest{
		allowedWrites:  make(map[string]bool, len(writes)),
		allowedCreates: make(map[string]bool, len(creates)),
		read:           make(map[string]bool),
		pruned:         make(map[string]bool),
	}
	for _, p := range writes {
		m.allowedWrites[p] = true
	}
	for _, p := range creates {
		m.allowedCreates[p] = true
	}
	return m
}

// CanWrite reports whether path is write-eligible and why. A file is
// eligible iff it is creatable, or it is declared writable, has been read,
// and has not been pruned since that read.
func (m *Manifest) CanWrite(path string) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.allowedCreates[path] {
		return true, ReasonAllowedCreate
	}
	if !m.allowedWrites[path] {
		return false, ReasonNotDeclared
	}
	// A pruned path always has its read state cleared, so this check must
	// come first or the prune reason could never surface.
	if m.pruned[path] {
		return false, ReasonPruned
	}
	if !m.read[path] {
		return false, ReasonMustRead
	}
	return true, ReasonReadVerified
}

// RecordRead marks path as read when success is true and clears any prune
// mark for it. A failed read leaves write-eligibility unchanged.
func (m *Manifest) RecordRead(path string, success bool) {
	if !success {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read[path] = true
	delete(m.pruned, path)
}

// PruneFromContext models eviction of a file's content from the agent's
// working context: the file must be re-read before any further write.
func (m *Manifest) PruneFromContext(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.read, path)
	m.pruned[path] = true
}

// ReadFiles returns the paths with verified reads, sorted.
func (m *Manifest) ReadFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.read)
}

// Pruned returns the currently pruned paths, sorted.
func (m *Manifest) Pruned() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.pruned)
}

// Snapshot captures the manifest for persistence.
type Snapshot struct {
	AllowedWrites  []string `json:"allowed_writes,omitempty"`
	AllowedCreates []string `json:"allowed_creates,omitempty"`
	ReadFiles      []string `json:"read_files,omitempty"`
	Pruned         []string `json:"pruned,omitempty"`
}

// Snapshot returns a copy of the manifest suitable for persistence.
func (m *Manifest) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		AllowedWrites:  sortedKeys(m.allowedWrites),
		AllowedCreates: sortedKeys(m.allowedCreates),
		ReadFiles:      sortedKeys(m.read),
		Pruned:         sortedKeys(m.pruned),
	}
}

// Restore rebuilds a manifest from a snapshot.
func Restore(s Snapshot) *Manifest {
	m := New(s.AllowedWrites, s.AllowedCreates)
	for _, p := range s.ReadFiles {
		m.read[p] = true
	}
	for _, p := range s.Pruned {
		m.pruned[p] = true
	}
	return m
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
