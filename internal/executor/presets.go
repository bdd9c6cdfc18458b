package executor

import (
	"fmt"
	"sort"
)

// Preset is a known agent CLI invocation shape. Presets only fill in the
// command line; timeouts and environment still come from configuration.
type Preset struct {
	Command     string
	Args        []string
	Description string
}

var presets = map[string]Preset{
	"claude": {
		Command: "claude",
		Args: []string{
			"--dangerously-skip-permissions",
			"--output-format", "json",
			"-p",
		},
		Description: "Claude Code CLI in non-interactive JSON mode",
	},
	"ollama": {
		Command:     "ollama",
		Args:        []string{"run", "llama3"},
		Description: "Local Ollama model via ollama run",
	},
}

// GetPreset looks up a preset by name. The returned Args slice is a copy;
// callers may modify it without corrupting the catalog.
func GetPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %v)", name, presetNames())
	}
	p.Args = append([]string(nil), p.Args...)
	return p, nil
}

// ListPresets returns all preset names in sorted order.
func ListPresets() []string {
	return presetNames()
}

func presetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
