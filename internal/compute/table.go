package compute

import (
	"maps"

	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// Mode tells whether a table carries data.
type Mode int

const (
	ModeSymbolic Mode = iota + 1
	ModeMaterialized
)

func (m Mode) String() string {
	switch m {
	case ModeSymbolic:
		return "symbolic"
	case ModeMaterialized:
		return "materialized"
	default:
		return "unknown"
	}
}

// Table is the operator surface shared by Symbolic and Materialized.
// Each operator returns a new table and traces exactly one node.
type Table interface {
	Mode() Mode
	Schema() schema.Schema
	Lineage() *Lineage
	Refs() []ir.Ref

	// Frame returns the table's data, or nil for a symbolic table.
	Frame() *Frame

	// NoMissing reports whether column went through fillna in this lineage.
	NoMissing(column string) bool

	Select(names []string) (Table, error)
	Fillna(column string, value schema.Value) (Table, error)
	OnehotExpand(column string, e rule.Expansion) (Table, error)
	Rename(column, newName string) (Table, error)
	Passthrough() (Table, error)

	// DumpServing serializes the part of the lineage graph this table
	// depends on, with its root inputs and its own columns as outputs.
	DumpServing(name string) (*graph.Dump, error)

	// Runner captures the call sequence that produced this table.
	Runner() *Runner

	base() *core
}

// core is the mode-independent state of a table.
type core struct {
	lin       *Lineage
	id        int
	schema    schema.Schema
	refs      []ir.Ref
	noMissing map[string]bool
}

func (c *core) Schema() schema.Schema { return c.schema }
func (c *core) Lineage() *Lineage     { return c.lin }
func (c *core) Runner() *Runner       { return c.lin.runner(c.id) }
func (c *core) base() *core           { return c }

func (c *core) Refs() []ir.Ref {
	out := make([]ir.Ref, len(c.refs))
	copy(out, c.refs)
	return out
}

func (c *core) NoMissing(column string) bool { return c.noMissing[column] }

func (c *core) ref(column string) (ir.Ref, schema.Column, error) {
	col, err := c.schema.Require(column)
	if err != nil {
		return "", schema.Column{}, err
	}
	return c.refs[c.schema.Index(column)], col, nil
}

func (c *core) carryAll() map[string]ir.Ref {
	m := make(map[string]ir.Ref, len(c.refs))
	for i, name := range c.schema.Names() {
		m[name] = c.refs[i]
	}
	return m
}

func (c *core) DumpServing(name string) (*graph.Dump, error) {
	g := graph.Prune(c.lin.Graph(), c.refs)
	inputs := c.lin.rootColumns(g.Roots)
	outputs := make([]graph.Column, c.schema.Len())
	for i := range c.schema.Len() {
		col := c.schema.At(i)
		outputs[i] = graph.Column{Name: col.Name, Ref: c.refs[i], Type: col.Type}
	}
	return graph.Serialize(name, g, inputs, outputs)
}

// step is a validated, not yet committed, operator application.
type step struct {
	op        ir.OpKind
	inputs    []ir.Ref
	outCols   []string
	params    ir.IRObject
	args      ir.IRObject
	inTables  []int
	schema    schema.Schema
	carry     map[string]ir.Ref
	noMissing map[string]bool
}

func (c *core) planSelect(names []string) (step, error) {
	s, err := schema.Project(c.schema, names)
	if err != nil {
		return step{}, err
	}
	inputs := make([]ir.Ref, len(names))
	for i, n := range names {
		inputs[i] = c.refs[c.schema.Index(n)]
	}
	noMissing := make(map[string]bool)
	for _, n := range names {
		if c.noMissing[n] {
			noMissing[n] = true
		}
	}
	return step{
		op:        ir.OpSelect,
		inputs:    inputs,
		outCols:   names,
		params:    ir.IRObject{"columns": ir.Strings(names)},
		args:      ir.IRObject{"columns": ir.Strings(names)},
		inTables:  []int{c.id},
		schema:    s,
		noMissing: noMissing,
	}, nil
}

func (c *core) planFillna(column string, value schema.Value) (step, schema.Value, error) {
	in, col, err := c.ref(column)
	if err != nil {
		return step{}, schema.Value{}, err
	}
	if value.IsMissing() {
		return step{}, schema.Value{}, ir.InvalidRule(column, "fill value is missing")
	}
	fill, err := value.As(col.Type)
	if err != nil {
		return step{}, schema.Value{}, ir.InvalidRule(column, "fill value %s does not fit %s column: %v", value, col.Type, err)
	}
	noMissing := maps.Clone(c.noMissing)
	if noMissing == nil {
		noMissing = make(map[string]bool)
	}
	noMissing[column] = true
	return step{
		op:        ir.OpFillna,
		inputs:    []ir.Ref{in},
		outCols:   []string{column},
		params:    ir.IRObject{"value": fill.IR()},
		args:      ir.IRObject{"column": ir.IRString(column), "value": value.IR()},
		inTables:  []int{c.id},
		schema:    c.schema,
		carry:     c.carryAll(),
		noMissing: noMissing,
	}, fill, nil
}

func (c *core) planOnehot(column string, e rule.Expansion) (step, rule.Expansion, error) {
	in, col, err := c.ref(column)
	if err != nil {
		return step{}, rule.Expansion{}, err
	}
	if err := e.Validate(column); err != nil {
		return step{}, rule.Expansion{}, err
	}
	conv, err := e.Convert(column, col.Type)
	if err != nil {
		return step{}, rule.Expansion{}, err
	}
	names := conv.Names(column)
	for _, n := range names {
		if n != column && c.schema.Has(n) {
			return step{}, rule.Expansion{}, ir.InvalidRule(column, "expanded column %q collides with an existing column", n)
		}
	}

	var cols []schema.Column
	for i := range c.schema.Len() {
		existing := c.schema.At(i)
		if existing.Name != column {
			cols = append(cols, existing)
			continue
		}
		for _, n := range names {
			cols = append(cols, schema.Column{
				Name:  n,
				Type:  schema.Float32,
				Owner: existing.Owner,
				Role:  schema.RoleFeature,
			})
		}
	}
	s, err := schema.New(c.schema.Party(), cols...)
	if err != nil {
		return step{}, rule.Expansion{}, err
	}
	carry := c.carryAll()
	delete(carry, column)
	noMissing := maps.Clone(c.noMissing)
	if noMissing == nil {
		noMissing = make(map[string]bool)
	}
	delete(noMissing, column)
	for _, n := range names {
		noMissing[n] = true
	}
	return step{
		op:        ir.OpOnehotExpand,
		inputs:    []ir.Ref{in},
		outCols:   names,
		params:    rule.EncodeExpansion(conv),
		args:      expansionArgs(column, e),
		inTables:  []int{c.id},
		schema:    s,
		carry:     carry,
		noMissing: noMissing,
	}, conv, nil
}

func (c *core) planRename(column, newName string) (step, error) {
	in, col, err := c.ref(column)
	if err != nil {
		return step{}, err
	}
	if newName == "" {
		return step{}, ir.SchemaMismatch(column, "rename target is empty")
	}
	if newName != column && c.schema.Has(newName) {
		return step{}, ir.SchemaMismatch(newName, "rename target already exists")
	}
	cols := c.schema.Columns()
	cols[c.schema.Index(column)] = schema.Column{Name: newName, Type: col.Type, Owner: col.Owner, Role: col.Role}
	s, err := schema.New(c.schema.Party(), cols...)
	if err != nil {
		return step{}, err
	}
	carry := c.carryAll()
	delete(carry, column)
	noMissing := maps.Clone(c.noMissing)
	if noMissing[column] {
		delete(noMissing, column)
		noMissing[newName] = true
	}
	return step{
		op:        ir.OpRename,
		inputs:    []ir.Ref{in},
		outCols:   []string{newName},
		params:    ir.IRObject{"from": ir.IRString(column), "to": ir.IRString(newName)},
		args:      ir.IRObject{"from": ir.IRString(column), "to": ir.IRString(newName)},
		inTables:  []int{c.id},
		schema:    s,
		carry:     carry,
		noMissing: noMissing,
	}, nil
}

func (c *core) planPassthrough() step {
	return step{
		op:        ir.OpPassthrough,
		inputs:    c.Refs(),
		outCols:   c.schema.Names(),
		params:    ir.IRObject{},
		args:      ir.IRObject{},
		inTables:  []int{c.id},
		schema:    c.schema,
		noMissing: maps.Clone(c.noMissing),
	}
}

func planConcat(cores []*core) (step, error) {
	if len(cores) == 0 {
		return step{}, ir.SchemaMismatch("", "concat needs at least one table")
	}
	lin := cores[0].lin
	party := cores[0].schema.Party()
	var (
		cols     []schema.Column
		inputs   []ir.Ref
		names    []string
		inTables []int
	)
	noMissing := make(map[string]bool)
	for _, c := range cores {
		if c.lin != lin {
			return step{}, ir.GraphIntegrity("cannot concat tables from different lineages")
		}
		if c.schema.Party() != party {
			return step{}, ir.SchemaMismatch("", "cannot concat tables of parties %q and %q", party, c.schema.Party())
		}
		cols = append(cols, c.schema.Columns()...)
		inputs = append(inputs, c.refs...)
		names = append(names, c.schema.Names()...)
		inTables = append(inTables, c.id)
		for k, v := range c.noMissing {
			noMissing[k] = v
		}
	}
	s, err := schema.New(party, cols...)
	if err != nil {
		return step{}, err
	}
	return step{
		op:        ir.OpConcat,
		inputs:    inputs,
		outCols:   names,
		params:    ir.IRObject{"arity": ir.IRInt(len(cores))},
		args:      ir.IRObject{},
		inTables:  inTables,
		schema:    s,
		noMissing: noMissing,
	}, nil
}

// Concat joins tables of one lineage and party side by side, in argument
// order. All tables must share a mode.
func Concat(tables ...Table) (Table, error) {
	if len(tables) == 0 {
		return nil, ir.SchemaMismatch("", "concat needs at least one table")
	}
	cores := make([]*core, len(tables))
	mode := tables[0].Mode()
	for i, t := range tables {
		if t.Mode() != mode {
			return nil, ir.GraphIntegrity("cannot concat %s and %s tables", mode, t.Mode())
		}
		cores[i] = t.base()
	}
	st, err := planConcat(cores)
	if err != nil {
		return nil, err
	}
	if mode == ModeSymbolic {
		c, err := cores[0].lin.commit(st)
		if err != nil {
			return nil, err
		}
		return &Symbolic{core: c}, nil
	}
	frames := make([]*Frame, len(tables))
	for i, t := range tables {
		frames[i] = t.Frame()
	}
	f, err := concatFrames(st.schema, frames)
	if err != nil {
		return nil, err
	}
	c, err := cores[0].lin.commit(st)
	if err != nil {
		return nil, err
	}
	return &Materialized{core: c, frame: f}, nil
}

func expansionArgs(column string, e rule.Expansion) ir.IRObject {
	exp := rule.EncodeExpansion(e)
	exp["naming"] = ir.IRString(namingOf(e))
	return ir.IRObject{"column": ir.IRString(column), "expansion": exp}
}

func namingOf(e rule.Expansion) rule.Naming {
	if e.Naming == "" {
		return rule.NamingIndex
	}
	return e.Naming
}
