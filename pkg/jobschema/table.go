// Package jobschema holds the static, versioned table describing the jobs
// the bridge knows how to drive: parameter names, types, ranges, and
// descriptions.
//
// The table is loaded from an embedded YAML asset and serves two consumers
// that must never drift apart: the job_schemas resource (what clients are
// told) and the operation dispatcher's shortcut-parameter validation (what
// the bridge enforces).
package jobschema

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	schemasassets "github.com/piolab/piobridge/internal/assets/schemas"
)

// Job names with dedicated shortcut operations.
const (
	JobStirring     = "stirring"
	JobLEDIntensity = "led_intensity"
)

// Setting keys used by the shortcut operations.
const (
	SettingTargetRPM = "target_rpm"
)

// SettingSpec describes one job setting.
type SettingSpec struct {
	Type        string   `yaml:"type" json:"type"`
	Min         *float64 `yaml:"min" json:"min,omitempty"`
	Max         *float64 `yaml:"max" json:"max,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

// InRange reports whether v satisfies the setting's inclusive bounds.
func (s SettingSpec) InRange(v float64) bool {
	if s.Min != nil && v < *s.Min {
		return false
	}
	if s.Max != nil && v > *s.Max {
		return false
	}
	return true
}

// JobSchema describes a controllable job and its settings.
type JobSchema struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Settings    map[string]SettingSpec `yaml:"settings" json:"settings"`
}

// Table is the parsed job-schema table. Order follows the YAML asset.
type Table struct {
	Version string      `yaml:"version" json:"version"`
	Schemas []JobSchema `yaml:"schemas" json:"schemas"`

	byName map[string]*JobSchema
}

// Lookup returns the schema for a job name.
func (t *Table) Lookup(name string) (*JobSchema, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Setting returns the SettingSpec for one setting of one job.
func (t *Table) Setting(job, key string) (SettingSpec, bool) {
	s, ok := t.byName[job]
	if !ok {
		return SettingSpec{}, false
	}
	spec, ok := s.Settings[key]
	return spec, ok
}

var (
	loadOnce sync.Once
	table    *Table
	loadErr  error
)

// Load parses the embedded table. The parse happens once; subsequent calls
// return the cached instance.
func Load() (*Table, error) {
	loadOnce.Do(func() {
		table, loadErr = parse(schemasassets.JobSchemasYAML)
	})
	return table, loadErr
}

// MustLoad is Load for callers that treat a broken embedded asset as a
// programming error.
func MustLoad() *Table {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

func parse(data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("embedded job-schema table is empty")
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing job-schema table: %w", err)
	}
	if t.Version == "" {
		return nil, fmt.Errorf("job-schema table missing version")
	}
	if len(t.Schemas) == 0 {
		return nil, fmt.Errorf("job-schema table has no schemas")
	}

	t.byName = make(map[string]*JobSchema, len(t.Schemas))
	for i := range t.Schemas {
		s := &t.Schemas[i]
		if s.Name == "" {
			return nil, fmt.Errorf("job-schema entry %d missing name", i)
		}
		if _, dup := t.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate job schema %q", s.Name)
		}
		t.byName[s.Name] = s
	}
	return &t, nil
}
