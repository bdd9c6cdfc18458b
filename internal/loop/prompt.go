package loop

import (
	"sort"
	"strings"

	"github.com/vinayprograms/gyre/internal/semantic"
)

// buildPrompt assembles the next prompt: task, action contract, manifest
// state, search candidates, and accumulated feedback. Feedback is consumed
// here; each message reaches the agent exactly once.
func (c *Controller) buildPrompt(task Task) string {
	var b strings.Builder

	b.WriteString("# Task\n")
	b.WriteString(task.Description)
	b.WriteString("\n\n# Contract\n")
	b.WriteString("Respond with exactly one JSON object, no surrounding prose required:\n")
	b.WriteString(`  {"action": "read", "path": "..."}` + "\n")
	b.WriteString(`  {"action": "write", "path": "...", "content": "..."}` + "\n")
	b.WriteString(`  {"action": "patch", "path": "...", "diff": "..."}` + "\n")
	b.WriteString(`  {"action": "run", "command": "..."}` + "\n")
	b.WriteString(`  {"action": "done", "summary": "..."}` + "\n")
	b.WriteString("Files must be read before they can be written.\n")

	if len(task.AllowedWrites) > 0 {
		b.WriteString("\n# Writable files\n")
		for _, path := range task.AllowedWrites {
			b.WriteString("- " + path + "\n")
		}
	}
	if len(task.AllowedCreates) > 0 {
		b.WriteString("\n# Creatable files\n")
		for _, path := range task.AllowedCreates {
			b.WriteString("- " + path + "\n")
		}
	}

	if read := c.mf.ReadFiles(); len(read) > 0 {
		b.WriteString("\n# Already read\n")
		for _, path := range read {
			b.WriteString("- " + path + "\n")
		}
	}
	if pruned := c.mf.Pruned(); len(pruned) > 0 {
		b.WriteString("\n# Stale (re-read before writing)\n")
		for _, path := range pruned {
			b.WriteString("- " + path + "\n")
		}
	}

	if candidates := c.searchCandidates(task.Description); len(candidates) > 0 {
		b.WriteString("\n# Possibly relevant files\n")
		for _, path := range candidates {
			b.WriteString("- " + path + "\n")
		}
	}

	if len(c.feedback) > 0 {
		b.WriteString("\n# Feedback from previous step\n")
		for _, msg := range c.feedback {
			b.WriteString(msg + "\n")
		}
		c.feedback = nil
	}

	return b.String()
}

// searchCandidates expands the task's vocabulary and asks the searcher for
// ranked files. A missing searcher disables widening entirely.
func (c *Controller) searchCandidates(description string) []string {
	if c.searcher == nil {
		return nil
	}

	merged := make(map[string]float64)
	for _, term := range queryTerms(description) {
		for word, confidence := range c.expander.Expand(term) {
			if confidence > merged[word] {
				merged[word] = confidence
			}
		}
	}

	terms := make([]semantic.WeightedTerm, 0, len(merged))
	for word, confidence := range merged {
		terms = append(terms, semantic.WeightedTerm{Term: word, Confidence: confidence})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Confidence != terms[j].Confidence {
			return terms[i].Confidence > terms[j].Confidence
		}
		return terms[i].Term < terms[j].Term
	})
	return c.searcher.Search(terms)
}

// queryTerms picks the searchable words out of a task description.
func queryTerms(description string) []string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]bool)
	var terms []string
	for _, f := range fields {
		if len(f) < 4 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
