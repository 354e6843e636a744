// Package rule defines the immutable, versioned rule artifacts applied by the
// tracer: missing-value fills and one-hot bucket expansions.
//
// A Rule is a closed tagged variant (FillnaRule, OnehotRule). An Artifact
// wraps a validated Rule with its format version and has a deterministic
// byte form (Save) and content hash (ID). Artifacts are never mutated; every
// accessor hands out copies.
package rule

import (
	"maps"
	"slices"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// Kind tags a rule variant.
type Kind string

const (
	KindFillna Kind = "fillna"
	KindOnehot Kind = "onehot"
)

// Rule is implemented by FillnaRule and OnehotRule only.
type Rule interface {
	Kind() Kind

	// ColumnNames returns the columns the rule touches, ascending.
	ColumnNames() []string

	validate() error
	toIR() ir.IRObject
	clone() Rule
}

// Fill is the fill setting of one column.
type Fill struct {
	Value schema.Value

	// Strategy records how Value was estimated (most_frequent, constant,
	// mean, median). It is carried, never interpreted.
	Strategy string
}

// FillnaRule replaces missing entries column by column.
type FillnaRule struct {
	Fills map[string]Fill
}

func (FillnaRule) Kind() Kind { return KindFillna }

func (r FillnaRule) ColumnNames() []string {
	return slices.Sorted(maps.Keys(r.Fills))
}

func (r FillnaRule) clone() Rule {
	return FillnaRule{Fills: maps.Clone(r.Fills)}
}

func (r FillnaRule) validate() error {
	if len(r.Fills) == 0 {
		return ir.InvalidRule("", "fillna rule names no columns")
	}
	for _, col := range r.ColumnNames() {
		f := r.Fills[col]
		if col == "" {
			return ir.InvalidRule("", "empty column name")
		}
		if f.Strategy == "" {
			return ir.InvalidRule(col, "missing fill strategy")
		}
		if !f.Value.Type().Valid() {
			return ir.InvalidRule(col, "fill value has no type")
		}
		if f.Value.IsMissing() {
			return ir.InvalidRule(col, "fill value is itself missing")
		}
	}
	return nil
}

func (r FillnaRule) toIR() ir.IRObject {
	cols := make(ir.IRArray, 0, len(r.Fills))
	for _, col := range r.ColumnNames() {
		f := r.Fills[col]
		cols = append(cols, ir.IRObject{
			"column":   ir.IRString(col),
			"strategy": ir.IRString(f.Strategy),
			"value":    f.Value.IR(),
		})
	}
	return ir.IRObject{
		"kind":    ir.IRString(KindFillna),
		"columns": cols,
	}
}

// OnehotRule expands categorical columns into one binary column per bucket.
// DropFirst, Naming and Unmatched apply to every column of the rule.
type OnehotRule struct {
	Columns   map[string][]Bucket
	DropFirst bool
	Naming    Naming
	Unmatched Unmatched
}

func (OnehotRule) Kind() Kind { return KindOnehot }

func (r OnehotRule) ColumnNames() []string {
	return slices.Sorted(maps.Keys(r.Columns))
}

func (r OnehotRule) clone() Rule {
	cols := make(map[string][]Bucket, len(r.Columns))
	for k, bs := range r.Columns {
		cp := make([]Bucket, len(bs))
		for i, b := range bs {
			cp[i] = Bucket{Values: slices.Clone(b.Values), Other: b.Other}
		}
		cols[k] = cp
	}
	r.Columns = cols
	return r
}

// Expansion returns the expansion of col with the rule's shared policies.
func (r OnehotRule) Expansion(col string) Expansion {
	return Expansion{
		Buckets:   r.Columns[col],
		DropFirst: r.DropFirst,
		Naming:    r.Naming.orDefault(),
		Unmatched: r.Unmatched.orDefault(),
	}
}

func (r OnehotRule) validate() error {
	if len(r.Columns) == 0 {
		return ir.InvalidRule("", "onehot rule names no columns")
	}
	if !r.Naming.orDefault().valid() {
		return ir.InvalidRule("", "unknown naming policy %q", r.Naming)
	}
	if !r.Unmatched.orDefault().valid() {
		return ir.InvalidRule("", "unknown unmatched policy %q", r.Unmatched)
	}
	for _, col := range r.ColumnNames() {
		if col == "" {
			return ir.InvalidRule("", "empty column name")
		}
		if err := r.Expansion(col).Validate(col); err != nil {
			return err
		}
	}
	return nil
}

func (r OnehotRule) toIR() ir.IRObject {
	cols := make(ir.IRArray, 0, len(r.Columns))
	for _, col := range r.ColumnNames() {
		cols = append(cols, ir.IRObject{
			"column":  ir.IRString(col),
			"buckets": bucketsIR(r.Columns[col]),
		})
	}
	return ir.IRObject{
		"kind":       ir.IRString(KindOnehot),
		"columns":    cols,
		"drop_first": ir.IRBool(r.DropFirst),
		"naming":     ir.IRString(r.Naming.orDefault()),
		"unmatched":  ir.IRString(r.Unmatched.orDefault()),
	}
}

// Validate checks r structurally, without a schema.
func Validate(r Rule) error {
	if r == nil {
		return ir.InvalidRule("", "nil rule")
	}
	return r.validate()
}
