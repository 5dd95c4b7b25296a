package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses a wizard definition YAML file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition file: %w", err)
	}
	return Load(data)
}

// Load parses wizard definition YAML bytes.
func Load(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("definition has no name")
	}
	if len(d.Operations) == 0 {
		return nil, fmt.Errorf("definition %q has no operations", d.Name)
	}
	if d.Collection == "" {
		d.Collection = d.Name
	}
	return &d, nil
}

// LoadDir loads every .yaml/.yml file in dir, sorted by file name. Duplicate
// wizard names are rejected.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := map[string]string{}
	var defs []*Definition
	for _, name := range files {
		d, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%s: wizard %q already defined in %s", name, d.Name, prev)
		}
		seen[d.Name] = name
		defs = append(defs, d)
	}
	return defs, nil
}
