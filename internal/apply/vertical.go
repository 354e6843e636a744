package apply

import (
	"github.com/roach88/ruletrace/internal/compute"
	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// VerticalTable maps each party to its own table over the same logical rows.
// Only schemas are shared across parties; each party's table lives in its
// own lineage.
type VerticalTable struct {
	order    []schema.Party
	tables   map[schema.Party]compute.Table
	registry *schema.Registry
}

// NewVerticalTable groups per-party tables. Parties must be distinct, column
// names disjoint, and materialized parties must agree on the row count.
func NewVerticalTable(tables ...compute.Table) (*VerticalTable, error) {
	schemas := make([]schema.Schema, len(tables))
	for i, t := range tables {
		schemas[i] = t.Schema()
	}
	reg, err := schema.NewRegistry(schemas...)
	if err != nil {
		return nil, err
	}
	vt := &VerticalTable{
		tables:   make(map[schema.Party]compute.Table, len(tables)),
		registry: reg,
	}
	rows := -1
	for _, t := range tables {
		p := t.Schema().Party()
		if f := t.Frame(); f != nil {
			if rows >= 0 && f.Rows() != rows {
				return nil, ir.SchemaMismatch("", "party has %d rows, other parties have %d", f.Rows(), rows).WithParty(string(p))
			}
			rows = f.Rows()
		}
		vt.order = append(vt.order, p)
		vt.tables[p] = t
	}
	return vt, nil
}

// SymbolicVertical builds a schema-only vertical table, one lineage per
// party.
func SymbolicVertical(schemas []schema.Schema, opts ...compute.Option) (*VerticalTable, error) {
	tables := make([]compute.Table, len(schemas))
	for i, s := range schemas {
		t, err := compute.FromSchema(s, opts...)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	return NewVerticalTable(tables...)
}

// MaterializedVertical builds a vertical table from per-party frames, one
// lineage per party.
func MaterializedVertical(frames []*compute.Frame, opts ...compute.Option) (*VerticalTable, error) {
	tables := make([]compute.Table, len(frames))
	for i, f := range frames {
		t, err := compute.FromFrame(f, opts...)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	return NewVerticalTable(tables...)
}

// Parties returns the parties in construction order.
func (vt *VerticalTable) Parties() []schema.Party {
	out := make([]schema.Party, len(vt.order))
	copy(out, vt.order)
	return out
}

// Table returns the table of party p.
func (vt *VerticalTable) Table(p schema.Party) (compute.Table, bool) {
	t, ok := vt.tables[p]
	return t, ok
}

// Registry resolves columns across the parties.
func (vt *VerticalTable) Registry() *schema.Registry { return vt.registry }

// Schemas returns each party's current schema in party order.
func (vt *VerticalTable) Schemas() []schema.Schema {
	out := make([]schema.Schema, len(vt.order))
	for i, p := range vt.order {
		out[i] = vt.tables[p].Schema()
	}
	return out
}

// DumpServing dumps every party's table under name.
func (vt *VerticalTable) DumpServing(name string) (map[schema.Party]*graph.Dump, error) {
	out := make(map[schema.Party]*graph.Dump, len(vt.order))
	for _, p := range vt.order {
		d, err := vt.tables[p].DumpServing(name)
		if err != nil {
			return nil, err
		}
		out[p] = d
	}
	return out, nil
}

// Runners captures every party's runner.
func (vt *VerticalTable) Runners() map[schema.Party]*compute.Runner {
	out := make(map[schema.Party]*compute.Runner, len(vt.order))
	for _, p := range vt.order {
		out[p] = vt.tables[p].Runner()
	}
	return out
}

func (vt *VerticalTable) with(updated map[schema.Party]compute.Table) (*VerticalTable, error) {
	tables := make([]compute.Table, len(vt.order))
	for i, p := range vt.order {
		if t, ok := updated[p]; ok {
			tables[i] = t
		} else {
			tables[i] = vt.tables[p]
		}
	}
	return NewVerticalTable(tables...)
}
