package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vinayprograms/gyre/internal/fsm"
	"github.com/vinayprograms/gyre/internal/gates"
	"github.com/vinayprograms/gyre/internal/semantic"
)

func newGateRunner(workspace string) gates.Runner {
	return gates.NewShellRunner(workspace)
}

// consoleSink prints loop progress to stderr, keeping stdout for command
// output and the trace renderer.
type consoleSink struct{}

func (consoleSink) Progress(iteration int, state fsm.State, message string) {
	fmt.Fprintf(os.Stderr, "[%02d] %-12s %s\n", iteration, state, message)
}

// workspaceSearcher ranks workspace files by how well their paths match
// the expanded terms. It is deliberately simple; the loop only needs a
// ranked candidate list, not full-text search.
type workspaceSearcher struct {
	root string
}

func newWorkspaceSearcher(root string) *workspaceSearcher {
	return &workspaceSearcher{root: root}
}

const maxCandidates = 10

func (s *workspaceSearcher) Search(terms []semantic.WeightedTerm) []string {
	scores := make(map[string]float64)
	filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if name == ".git" || name == ".gyre" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		lower := strings.ToLower(rel)
		for _, term := range terms {
			if strings.Contains(lower, term.Term) {
				scores[rel] += term.Confidence
			}
		}
		return nil
	})

	type hit struct {
		path  string
		score float64
	}
	hits := make([]hit, 0, len(scores))
	for path, score := range scores {
		hits = append(hits, hit{path, score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].path < hits[j].path
	})
	if len(hits) > maxCandidates {
		hits = hits[:maxCandidates]
	}
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.path
	}
	return paths
}
