package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vinayprograms/gyre/internal/semantic"
)

func TestWorkspaceSearcherRanking(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"billing/invoice.go",
		"billing/payment.go",
		"docs/readme.md",
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := newWorkspaceSearcher(root)
	hits := s.Search([]semantic.WeightedTerm{
		{Term: "invoice", Confidence: 1.0},
		{Term: "billing", Confidence: 0.7},
	})

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %v", hits)
	}
	// invoice.go matches both terms, payment.go only one.
	if hits[0] != filepath.Join("billing", "invoice.go") {
		t.Errorf("wrong top hit: %v", hits)
	}
}

func TestWorkspaceSearcherSkipsGitDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".git", "invoice")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newWorkspaceSearcher(root)
	hits := s.Search([]semantic.WeightedTerm{{Term: "invoice", Confidence: 1.0}})
	if len(hits) != 0 {
		t.Errorf(".git contents should be skipped: %v", hits)
	}
}
