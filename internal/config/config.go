// Package config loads the component list from YAML and the
// engine/server settings from the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ulvio/heimdall/internal/component"
)

// Rejection names a component that failed validation and why. Rejected
// components are excluded from polling; they never abort the load.
type Rejection struct {
	Name   string
	Reason error
}

// Components is the validated component list handed to the engine.
type Components struct {
	// Admitted definitions, in file order.
	Definitions []component.Definition
	// Rejected definitions for the caller to report.
	Rejected []Rejection
}

type componentsFile struct {
	Components []component.Definition `yaml:"components"`
}

// LoadComponents reads, parses, and validates the component file at
// path. Individual invalid definitions are collected in Rejected; an
// unreadable file, a duplicate name, or an empty admitted list is an
// error, since the engine would have nothing coherent to poll.
func LoadComponents(path string) (*Components, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading component file: %w", err)
	}

	var file componentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing component file: %w", err)
	}
	if len(file.Components) == 0 {
		return nil, fmt.Errorf("no components configured in %s", path)
	}

	out := &Components{}
	seen := make(map[string]bool, len(file.Components))
	for i, def := range file.Components {
		if def.Name != "" && seen[def.Name] {
			return nil, fmt.Errorf("duplicate component name %q", def.Name)
		}
		if def.Name != "" {
			seen[def.Name] = true
		}

		if err := def.Validate(); err != nil {
			name := def.Name
			if name == "" {
				name = fmt.Sprintf("components[%d]", i)
			}
			out.Rejected = append(out.Rejected, Rejection{Name: name, Reason: err})
			continue
		}
		if def.DisplayName == "" {
			def.DisplayName = def.Name
		}
		out.Definitions = append(out.Definitions, def)
	}

	if len(out.Definitions) == 0 {
		return nil, fmt.Errorf("no valid components in %s (%d rejected)", path, len(out.Rejected))
	}
	return out, nil
}
