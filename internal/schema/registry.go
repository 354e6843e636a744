package schema

import (
	"github.com/roach88/ruletrace/internal/ir"
)

// Registry resolves column names across the parties of a vertical table.
// Only schema metadata is registered; no party's data is ever visible here.
type Registry struct {
	parties []Party
	schemas map[Party]Schema
	owner   map[string]Party
}

// NewRegistry registers schemas in the given order. Parties must be distinct
// and column names disjoint across parties.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{
		schemas: make(map[Party]Schema, len(schemas)),
		owner:   make(map[string]Party),
	}
	for _, s := range schemas {
		if s.Party() == "" {
			return nil, ir.SchemaMismatch("", "schema without party")
		}
		if _, dup := r.schemas[s.Party()]; dup {
			return nil, ir.SchemaMismatch("", "party %q registered twice", s.Party())
		}
		for _, c := range s.cols {
			if other, taken := r.owner[c.Name]; taken {
				return nil, ir.SchemaMismatch(c.Name, "column declared by both %q and %q", other, s.Party())
			}
			r.owner[c.Name] = s.Party()
		}
		r.parties = append(r.parties, s.Party())
		r.schemas[s.Party()] = s
	}
	return r, nil
}

// Parties returns parties in registration order.
func (r *Registry) Parties() []Party {
	out := make([]Party, len(r.parties))
	copy(out, r.parties)
	return out
}

// Schema returns the schema registered for p.
func (r *Registry) Schema(p Party) (Schema, bool) {
	s, ok := r.schemas[p]
	return s, ok
}

// Resolve finds the party and column for name. Fails with
// UnknownColumnError if no party declares it.
func (r *Registry) Resolve(name string) (Party, Column, error) {
	p, ok := r.owner[name]
	if !ok {
		return "", Column{}, ir.UnknownColumn(name, "column absent from every party's schema")
	}
	c, _ := r.schemas[p].Lookup(name)
	return p, c, nil
}

// Partition groups names by owning party, preserving the given order inside
// each group. Fails on the first unresolvable name.
func (r *Registry) Partition(names []string) (map[Party][]string, error) {
	out := make(map[Party][]string)
	for _, n := range names {
		p, _, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}
		out[p] = append(out[p], n)
	}
	return out, nil
}
