package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the dumps.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Parties declares one schema per party.
	Parties []schema.PartyFile `yaml:"parties"`

	// Rule is the path of a CUE rule file.
	// Relative paths are resolved against the scenario file location.
	Rule string `yaml:"rule,omitempty"`

	// RuleName selects one rule of a multi-rule CUE file.
	RuleName string `yaml:"rule_name,omitempty"`

	// Artifact is an inline canonical artifact, used instead of Rule.
	Artifact string `yaml:"artifact,omitempty"`

	// Rows holds per-party text cells. When present every party needs rows.
	// "" and "NA" mark missing cells; "null" and "NaN" do too, except in
	// str columns where they are literal text.
	Rows map[string][][]string `yaml:"rows,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect lists what the run must produce.
type Expect struct {
	// Columns maps a party to its expected output column names.
	Columns map[string][]string `yaml:"columns,omitempty"`

	// NoMissing lists columns that must be free of missing values.
	NoMissing []string `yaml:"no_missing,omitempty"`

	// Error is the error code the run must fail with.
	Error string `yaml:"error,omitempty"`

	// Parity requests the dump and serving checks.
	Parity bool `yaml:"parity,omitempty"`
}

// Materialized reports whether the scenario carries rows.
func (s *Scenario) Materialized() bool { return len(s.Rows) > 0 }

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving the rule path relative to
// basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Rule != "" && !filepath.IsAbs(scenario.Rule) && basePath != "" {
		scenario.Rule = filepath.Join(basePath, scenario.Rule)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadDir loads every *.yaml scenario of dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	slices.Sort(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

var errorCodes = []string{
	string(ir.CodeUnknownColumn),
	string(ir.CodeInvalidRule),
	string(ir.CodeGraphIntegrity),
	string(ir.CodeSchemaMismatch),
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Parties) == 0 {
		return fmt.Errorf("parties list is required and must be non-empty")
	}

	switch {
	case s.Rule == "" && s.Artifact == "":
		return fmt.Errorf("one of rule or artifact is required")
	case s.Rule != "" && s.Artifact != "":
		return fmt.Errorf("rule and artifact are mutually exclusive")
	case s.Rule != "":
		if _, err := os.Stat(s.Rule); os.IsNotExist(err) {
			return fmt.Errorf("rule file not found: %s", s.Rule)
		}
	case s.RuleName != "":
		return fmt.Errorf("rule_name requires rule")
	}

	if s.Materialized() {
		for _, p := range s.Parties {
			if _, ok := s.Rows[p.Party]; !ok {
				return fmt.Errorf("rows: party %s has no rows", p.Party)
			}
		}
		for name := range s.Rows {
			if !slices.ContainsFunc(s.Parties, func(p schema.PartyFile) bool { return p.Party == name }) {
				return fmt.Errorf("rows: unknown party %s", name)
			}
		}
	}

	e := s.Expect
	if len(e.Columns) == 0 && len(e.NoMissing) == 0 && e.Error == "" && !e.Parity {
		return fmt.Errorf("expect must contain at least one check")
	}
	if e.Error != "" && !slices.Contains(errorCodes, e.Error) {
		return fmt.Errorf("expect.error: unknown error code %q", e.Error)
	}
	if e.Error != "" && (len(e.Columns) > 0 || len(e.NoMissing) > 0 || e.Parity) {
		return fmt.Errorf("expect.error excludes the other checks")
	}

	return nil
}
