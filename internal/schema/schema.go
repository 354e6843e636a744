package schema

import (
	"slices"

	"github.com/roach88/ruletrace/internal/ir"
)

// Schema is an ordered, immutable sequence of columns for one party.
// Column names are unique.
type Schema struct {
	party Party
	cols  []Column
	index map[string]int
}

// New builds a schema for party. Columns without an owner are assigned to
// party; columns without a role become features.
func New(party Party, cols ...Column) (Schema, error) {
	s := Schema{
		party: party,
		cols:  make([]Column, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return Schema{}, ir.SchemaMismatch("", "column %d has an empty name", i)
		}
		if !c.Type.Valid() {
			return Schema{}, ir.SchemaMismatch(c.Name, "unsupported dtype %q", c.Type)
		}
		if c.Owner == "" {
			c.Owner = party
		}
		if c.Owner != party {
			return Schema{}, ir.SchemaMismatch(c.Name, "column owned by %q declared in schema of %q", c.Owner, party)
		}
		if c.Role == "" {
			c.Role = RoleFeature
		}
		if _, dup := s.index[c.Name]; dup {
			return Schema{}, ir.SchemaMismatch(c.Name, "duplicate column name")
		}
		s.index[c.Name] = i
		s.cols[i] = c
	}
	return s, nil
}

// MustNew is like New but panics on error. Use only in tests.
func MustNew(party Party, cols ...Column) Schema {
	s, err := New(party, cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Party returns the owning party.
func (s Schema) Party() Party { return s.party }

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.cols) }

// At returns the i-th column.
func (s Schema) At(i int) Column { return s.cols[i] }

// Columns returns a copy of the columns in declaration order.
func (s Schema) Columns() []Column {
	return slices.Clone(s.cols)
}

// Names returns column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether name is a column of s.
func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Lookup returns the column called name.
func (s Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.cols[i], true
}

// Require is Lookup failing with UnknownColumnError.
func (s Schema) Require(name string) (Column, error) {
	c, ok := s.Lookup(name)
	if !ok {
		return Column{}, ir.UnknownColumn(name, "column not in schema").WithParty(string(s.party))
	}
	return c, nil
}

// Equal reports structural equality (party, order, names, types, roles).
func (s Schema) Equal(o Schema) bool {
	return s.party == o.party && slices.Equal(s.cols, o.cols)
}

// Project restricts s to names, in the order given. Fails if a name is
// missing or repeated.
func Project(s Schema, names []string) (Schema, error) {
	seen := make(map[string]bool, len(names))
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		if seen[n] {
			return Schema{}, ir.SchemaMismatch(n, "column listed twice in projection")
		}
		seen[n] = true
		c, err := s.Require(n)
		if err != nil {
			return Schema{}, err
		}
		cols = append(cols, c)
	}
	return New(s.party, cols...)
}

// IR encodes s as {"columns":[{"name","role","type"}...],"party"}.
func (s Schema) IR() ir.IRObject {
	cols := make(ir.IRArray, len(s.cols))
	for i, c := range s.cols {
		cols[i] = ir.IRObject{
			"name": ir.IRString(c.Name),
			"type": ir.IRString(c.Type),
			"role": ir.IRString(c.Role),
		}
	}
	return ir.IRObject{
		"party":   ir.IRString(s.party),
		"columns": cols,
	}
}

// FromIR decodes the form produced by Schema.IR.
func FromIR(obj ir.IRObject) (Schema, error) {
	party, err := obj.String("party")
	if err != nil {
		return Schema{}, err
	}
	arr, err := obj.Array("columns")
	if err != nil {
		return Schema{}, err
	}
	cols := make([]Column, len(arr))
	for i, v := range arr {
		co, ok := v.(ir.IRObject)
		if !ok {
			return Schema{}, ir.SchemaMismatch("", "columns[%d] is not an object", i)
		}
		name, err := co.String("name")
		if err != nil {
			return Schema{}, err
		}
		typeName, err := co.String("type")
		if err != nil {
			return Schema{}, err
		}
		dt, err := ParseDType(typeName)
		if err != nil {
			return Schema{}, err
		}
		roleName, err := co.String("role")
		if err != nil {
			return Schema{}, err
		}
		role, err := ParseRole(roleName)
		if err != nil {
			return Schema{}, err
		}
		cols[i] = Column{Name: name, Type: dt, Role: role}
	}
	return New(Party(party), cols...)
}
