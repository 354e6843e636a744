package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a vertical table's schemas:
//
//	parties:
//	  - party: alice
//	    columns:
//	      - {name: id1, type: str, role: id}
//	      - {name: a2, type: float32}
type File struct {
	Parties []PartyFile `yaml:"parties"`
}

// PartyFile is one party's entry in a File.
type PartyFile struct {
	Party   string       `yaml:"party"`
	Columns []ColumnFile `yaml:"columns"`
}

// ColumnFile is one column entry in a PartyFile.
type ColumnFile struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Role string `yaml:"role,omitempty"`
}

// Schemas converts the file into validated schemas, in file order.
func (f File) Schemas() ([]Schema, error) {
	out := make([]Schema, 0, len(f.Parties))
	for i, p := range f.Parties {
		if p.Party == "" {
			return nil, fmt.Errorf("parties[%d]: missing party", i)
		}
		cols := make([]Column, len(p.Columns))
		for j, c := range p.Columns {
			dt, err := ParseDType(c.Type)
			if err != nil {
				return nil, fmt.Errorf("parties[%d].columns[%d]: %w", i, j, err)
			}
			role, err := ParseRole(c.Role)
			if err != nil {
				return nil, fmt.Errorf("parties[%d].columns[%d]: %w", i, j, err)
			}
			cols[j] = Column{Name: c.Name, Type: dt, Role: role}
		}
		s, err := New(Party(p.Party), cols...)
		if err != nil {
			return nil, fmt.Errorf("parties[%d]: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// FileOf is the inverse of File.Schemas.
func FileOf(schemas ...Schema) File {
	var f File
	for _, s := range schemas {
		pf := PartyFile{Party: string(s.Party())}
		for _, c := range s.cols {
			pf.Columns = append(pf.Columns, ColumnFile{Name: c.Name, Type: string(c.Type), Role: string(c.Role)})
		}
		f.Parties = append(f.Parties, pf)
	}
	return f
}

// ParseFile decodes YAML schema bytes.
func ParseFile(data []byte) ([]Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	if len(f.Parties) == 0 {
		return nil, fmt.Errorf("parse schema file: no parties declared")
	}
	return f.Schemas()
}

// LoadFile reads and parses a YAML schema file.
func LoadFile(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseFile(data)
}

// LoadRegistry reads a schema file into a Registry.
func LoadRegistry(path string) (*Registry, error) {
	schemas, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(schemas...)
}
