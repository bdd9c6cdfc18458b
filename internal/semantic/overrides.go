package semantic

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// overridesFile is the on-disk shape of a project synonym file:
//
//	clusters:
//	  payments: [billing, stripe, checkout]
//	  tenancy: [tenant, org, workspace]
type overridesFile struct {
	Clusters map[string][]string `yaml:"clusters"`
}

// LoadOverrides reads project-supplied synonym clusters from a YAML file.
// A missing path is not an error; it just yields no overrides.
func LoadOverrides(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read synonym overrides: %w", err)
	}

	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse synonym overrides: %w", err)
	}

	// Sort cluster names so graph construction order is deterministic.
	names := make([]string, 0, len(file.Clusters))
	for name := range file.Clusters {
		names = append(names, name)
	}
	sort.Strings(names)

	clusters := make([][]string, 0, len(names))
	for _, name := range names {
		terms := file.Clusters[name]
		if len(terms) < 2 {
			return nil, fmt.Errorf("synonym cluster %q needs at least two terms", name)
		}
		clusters = append(clusters, terms)
	}
	return clusters, nil
}
