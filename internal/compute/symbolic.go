package compute

import (
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// Symbolic is a schema-only table. Operators derive the output schema and
// trace nodes; no values are ever fabricated.
type Symbolic struct {
	core
}

var _ Table = (*Symbolic)(nil)

func (t *Symbolic) Mode() Mode    { return ModeSymbolic }
func (t *Symbolic) Frame() *Frame { return nil }

func (t *Symbolic) derive(st step) (Table, error) {
	c, err := t.lin.commit(st)
	if err != nil {
		return nil, err
	}
	return &Symbolic{core: c}, nil
}

func (t *Symbolic) Select(names []string) (Table, error) {
	st, err := t.planSelect(names)
	if err != nil {
		return nil, err
	}
	return t.derive(st)
}

func (t *Symbolic) Fillna(column string, value schema.Value) (Table, error) {
	st, _, err := t.planFillna(column, value)
	if err != nil {
		return nil, err
	}
	return t.derive(st)
}

func (t *Symbolic) OnehotExpand(column string, e rule.Expansion) (Table, error) {
	st, _, err := t.planOnehot(column, e)
	if err != nil {
		return nil, err
	}
	return t.derive(st)
}

func (t *Symbolic) Rename(column, newName string) (Table, error) {
	st, err := t.planRename(column, newName)
	if err != nil {
		return nil, err
	}
	return t.derive(st)
}

func (t *Symbolic) Passthrough() (Table, error) {
	return t.derive(t.planPassthrough())
}
