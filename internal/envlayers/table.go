package envlayers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table maps an environment name to the ordered env files layered for it.
// Later files override earlier ones.
type Table map[string][]string

// DefaultTablePath is where the layer table lives relative to the project root.
const DefaultTablePath = "config/env-layers.json"

// Profile names with a built-in fallback entry.
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
	E2E         = "e2e"
)

// FallbackTable returns the table used when no layer table can be loaded.
func FallbackTable() Table {
	t := make(Table, 4)
	for _, name := range []string{Development, Production, Test, E2E} {
		t[name] = []string{".env." + name, ".env." + name + ".local"}
	}
	return t
}

// LoadTable reads a layer table from path. JSON and YAML are both accepted.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if t == nil {
		return nil, fmt.Errorf("parse %s: empty layer table", path)
	}
	return t, nil
}

// Description returns a human label for a profile name.
func Description(name string) string {
	switch name {
	case Development:
		return "development environment"
	case Production:
		return "production environment"
	case Test:
		return "test environment"
	case E2E:
		return "E2E test environment"
	default:
		return name
	}
}
