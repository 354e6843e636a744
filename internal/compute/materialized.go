package compute

import (
	"strconv"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// Materialized is a table carrying data. Each operator computes its output
// before tracing, so a failing operator leaves the lineage untouched.
type Materialized struct {
	core
	frame *Frame
}

var _ Table = (*Materialized)(nil)

func (t *Materialized) Mode() Mode    { return ModeMaterialized }
func (t *Materialized) Frame() *Frame { return t.frame }

func (t *Materialized) derive(st step, f *Frame) (Table, error) {
	c, err := t.lin.commit(st)
	if err != nil {
		return nil, err
	}
	return &Materialized{core: c, frame: f}, nil
}

func (t *Materialized) Select(names []string) (Table, error) {
	st, err := t.planSelect(names)
	if err != nil {
		return nil, err
	}
	cols := make([][]schema.Value, len(names))
	for i, n := range names {
		cols[i] = t.frame.cols[t.schema.Index(n)]
	}
	return t.derive(st, t.frame.withColumns(st.schema, cols))
}

func (t *Materialized) Fillna(column string, value schema.Value) (Table, error) {
	st, fill, err := t.planFillna(column, value)
	if err != nil {
		return nil, err
	}
	idx := t.schema.Index(column)
	src := t.frame.cols[idx]
	filled := make([]schema.Value, len(src))
	for r, v := range src {
		if v.IsMissing() {
			filled[r] = fill
		} else {
			filled[r] = v
		}
	}
	cols := make([][]schema.Value, len(t.frame.cols))
	copy(cols, t.frame.cols)
	cols[idx] = filled
	return t.derive(st, t.frame.withColumns(st.schema, cols))
}

func (t *Materialized) OnehotExpand(column string, e rule.Expansion) (Table, error) {
	st, conv, err := t.planOnehot(column, e)
	if err != nil {
		return nil, err
	}
	idx := t.schema.Index(column)
	src := t.frame.cols[idx]
	emitted := conv.Emitted()
	slot := make(map[int]int, len(emitted))
	for j, b := range emitted {
		slot[b] = j
	}
	expanded := make([][]schema.Value, len(emitted))
	for j := range expanded {
		expanded[j] = make([]schema.Value, len(src))
	}
	zero, one := schema.NewFloat32(0), schema.NewFloat32(1)
	for r, v := range src {
		hit := conv.Match(v)
		if hit < 0 && conv.Unmatched == rule.UnmatchedError {
			err := ir.InvalidRule(column, "value %s matches no bucket", v.Text())
			err.Details = map[string]string{"row": strconv.Itoa(r)}
			return nil, err.WithParty(string(t.schema.Party()))
		}
		j, ok := slot[hit]
		for k := range expanded {
			if ok && k == j {
				expanded[k][r] = one
			} else {
				expanded[k][r] = zero
			}
		}
	}
	cols := make([][]schema.Value, 0, len(t.frame.cols)-1+len(expanded))
	for i, c := range t.frame.cols {
		if i == idx {
			cols = append(cols, expanded...)
			continue
		}
		cols = append(cols, c)
	}
	return t.derive(st, t.frame.withColumns(st.schema, cols))
}

func (t *Materialized) Rename(column, newName string) (Table, error) {
	st, err := t.planRename(column, newName)
	if err != nil {
		return nil, err
	}
	return t.derive(st, t.frame.withColumns(st.schema, t.frame.cols))
}

func (t *Materialized) Passthrough() (Table, error) {
	st := t.planPassthrough()
	return t.derive(st, t.frame)
}
