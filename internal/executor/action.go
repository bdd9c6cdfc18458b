package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion identifies the action wire schema. Bump when a kind gains
// or changes required fields.
const SchemaVersion = 1

// Kind tags an action payload. The set is closed: unrecognized tags are
// rejected at the executor boundary, never passed through.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
	KindPatch Kind = "patch"
	KindRun   Kind = "run"
	KindDone  Kind = "done"
)

// Action is one structured request from the agent.
//
// Required fields by kind:
//
//	read:  path
//	write: path, content
//	patch: path, diff
//	run:   command
//	done:  nothing (summary optional)
type Action struct {
	Kind      Kind   `json:"action"`
	Path      string `json:"path,omitempty"`
	Content   string `json:"content,omitempty"`
	Diff      string `json:"diff,omitempty"`
	Command   string `json:"command,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ActionParseError reports a payload that does not satisfy the action
// schema. It is an executor failure, not a best-effort interpretation.
type ActionParseError struct {
	Detail string
}

func (e *ActionParseError) Error() string {
	return "invalid action format: " + e.Detail
}

// ParseAction validates raw agent output against the action schema. The
// output may carry prose around a single JSON object; the object is
// extracted before decoding.
func ParseAction(raw string) (*Action, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return nil, &ActionParseError{Detail: "no JSON object in output"}
	}

	var action Action
	if err := json.Unmarshal([]byte(jsonStr), &action); err != nil {
		return nil, &ActionParseError{Detail: err.Error()}
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return &action, nil
}

// Validate checks the per-kind required fields.
func (a *Action) Validate() error {
	switch a.Kind {
	case KindRead:
		if a.Path == "" {
			return &ActionParseError{Detail: "read action requires path"}
		}
	case KindWrite:
		if a.Path == "" || a.Content == "" {
			return &ActionParseError{Detail: "write action requires path and content"}
		}
	case KindPatch:
		if a.Path == "" || a.Diff == "" {
			return &ActionParseError{Detail: "patch action requires path and diff"}
		}
	case KindRun:
		if a.Command == "" {
			return &ActionParseError{Detail: "run action requires command"}
		}
	case KindDone:
		// No required fields.
	case "":
		return &ActionParseError{Detail: "missing action tag"}
	default:
		return &ActionParseError{Detail: fmt.Sprintf("unknown action %q", a.Kind)}
	}
	return nil
}

// WritesFile reports whether the action proposes a file modification that
// must pass the manifest's write guard.
func (a *Action) WritesFile() bool {
	return a.Kind == KindWrite || a.Kind == KindPatch
}

// extractJSON finds the first balanced JSON object in content.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
