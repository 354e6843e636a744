package compute

import (
	"fmt"
	"slices"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// Frame is column-major table data for one party. Columns are never
// modified in place; operators build new slices.
type Frame struct {
	schema schema.Schema
	cols   [][]schema.Value
	rows   int
}

// NewFrame checks that cols matches s: one column per schema entry, equal
// lengths, every cell of the declared dtype.
func NewFrame(s schema.Schema, cols [][]schema.Value) (*Frame, error) {
	if len(cols) != s.Len() {
		return nil, ir.SchemaMismatch("", "schema declares %d columns, data has %d", s.Len(), len(cols)).WithParty(string(s.Party()))
	}
	rows := 0
	for i, col := range cols {
		c := s.At(i)
		if i == 0 {
			rows = len(col)
		} else if len(col) != rows {
			return nil, ir.SchemaMismatch(c.Name, "column has %d rows, expected %d", len(col), rows).WithParty(string(s.Party()))
		}
		for r, v := range col {
			if v.Type() != c.Type {
				return nil, ir.SchemaMismatch(c.Name, "row %d holds %s, schema declares %s", r, v.Type(), c.Type).WithParty(string(s.Party()))
			}
		}
	}
	return &Frame{schema: s, cols: cols, rows: rows}, nil
}

// FrameFromRows parses row-major text cells with schema.ParseCell.
func FrameFromRows(s schema.Schema, rows [][]string) (*Frame, error) {
	cols := make([][]schema.Value, s.Len())
	for i := range cols {
		cols[i] = make([]schema.Value, len(rows))
	}
	for r, row := range rows {
		if len(row) != s.Len() {
			return nil, ir.SchemaMismatch("", "row %d has %d cells, schema declares %d", r, len(row), s.Len()).WithParty(string(s.Party()))
		}
		for i, cell := range row {
			c := s.At(i)
			v, err := schema.ParseCell(c.Type, cell)
			if err != nil {
				return nil, ir.SchemaMismatch(c.Name, "row %d: %v", r, err).WithParty(string(s.Party()))
			}
			cols[i][r] = v
		}
	}
	f, err := NewFrame(s, cols)
	if err != nil {
		return nil, err
	}
	f.rows = len(rows)
	return f, nil
}

// Schema returns the frame's schema.
func (f *Frame) Schema() schema.Schema { return f.schema }

// Rows returns the row count.
func (f *Frame) Rows() int { return f.rows }

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]schema.Value, bool) {
	i := f.schema.Index(name)
	if i < 0 {
		return nil, false
	}
	return slices.Clone(f.cols[i]), true
}

// Row returns row r keyed by column name.
func (f *Frame) Row(r int) map[string]schema.Value {
	out := make(map[string]schema.Value, len(f.cols))
	for i, name := range f.schema.Names() {
		out[name] = f.cols[i][r]
	}
	return out
}

// MissingCount counts missing cells in the named column, or -1 when the
// column does not exist.
func (f *Frame) MissingCount(name string) int {
	i := f.schema.Index(name)
	if i < 0 {
		return -1
	}
	n := 0
	for _, v := range f.cols[i] {
		if v.IsMissing() {
			n++
		}
	}
	return n
}

// Equal compares schema and cells.
func (f *Frame) Equal(o *Frame) bool {
	if !f.schema.Equal(o.schema) || f.rows != o.rows {
		return false
	}
	for i := range f.cols {
		if !slices.EqualFunc(f.cols[i], o.cols[i], schema.Value.Equal) {
			return false
		}
	}
	return true
}

// Text renders the frame row-major using canonical cell text, for test
// diagnostics and CLI output.
func (f *Frame) Text() [][]string {
	out := make([][]string, f.rows)
	for r := range f.rows {
		row := make([]string, len(f.cols))
		for i := range f.cols {
			row[i] = f.cols[i][r].Text()
		}
		out[r] = row
	}
	return out
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(%s, %d cols, %d rows)", f.schema.Party(), len(f.cols), f.rows)
}

func (f *Frame) withColumns(s schema.Schema, cols [][]schema.Value) *Frame {
	return &Frame{schema: s, cols: cols, rows: f.rows}
}

func concatFrames(s schema.Schema, frames []*Frame) (*Frame, error) {
	rows := frames[0].rows
	var cols [][]schema.Value
	for _, f := range frames {
		if f.rows != rows {
			return nil, ir.SchemaMismatch("", "cannot concat frames of %d and %d rows", rows, f.rows).WithParty(string(s.Party()))
		}
		cols = append(cols, f.cols...)
	}
	return &Frame{schema: s, cols: cols, rows: rows}, nil
}
