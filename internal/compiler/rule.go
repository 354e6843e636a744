// Package compiler turns rule files authored in CUE into rule artifacts.
//
// A rule file declares named rules under the top-level "rule" struct:
//
//	rule: fill_gaps: {
//		kind: "fillna"
//		columns: a2: {value: 99.0, strategy: "constant"}
//	}
//
//	rule: encode: {
//		kind:       "onehot"
//		drop_first: true
//		columns: a1: [["F"], ["K", "M", "N"]]
//		columns: b5: [[0, 1], {other: true}]
//		unmatched: "other"
//	}
//
// Scalars keep their CUE kind (string, int, float, bool) unless a fill
// carries an explicit "type". Policies omitted by a onehot rule come from
// Defaults and are recorded in the artifact.
package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// Defaults fills policies a rule leaves unset.
type Defaults struct {
	Naming    rule.Naming
	Unmatched rule.Unmatched
}

// Compiled is one named rule of a file.
type Compiled struct {
	Name     string
	Artifact *rule.Artifact
}

// CompileSource compiles every rule declared in src, in declaration order.
func CompileSource(filename string, src []byte, d Defaults) ([]Compiled, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	rules := v.LookupPath(cue.ParsePath("rule"))
	if !rules.Exists() {
		return nil, &CompileError{Field: "rule", Message: "no rules declared", Pos: v.Pos()}
	}
	iter, err := rules.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Compiled
	for iter.Next() {
		name := iter.Label()
		r, err := CompileRule(iter.Value(), d)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		art, err := rule.NewArtifact(r)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		out = append(out, Compiled{Name: name, Artifact: art})
	}
	if len(out) == 0 {
		return nil, &CompileError{Field: "rule", Message: "no rules declared", Pos: rules.Pos()}
	}
	return out, nil
}

// CompileRule parses a CUE value into a rule.Rule.
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: r: { kind: "fillna", columns: {...} }`)
//	r, err := CompileRule(v.LookupPath(cue.ParsePath("rule.r")), Defaults{})
func CompileRule(v cue.Value, d Defaults) (rule.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &CompileError{Field: "kind", Message: "kind is required", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	switch rule.Kind(kind) {
	case rule.KindFillna:
		if err := onlyFields(v, "kind", "columns"); err != nil {
			return nil, err
		}
		return compileFillna(v)
	case rule.KindOnehot:
		if err := onlyFields(v, "kind", "columns", "drop_first", "naming", "unmatched"); err != nil {
			return nil, err
		}
		return compileOnehot(v, d)
	default:
		return nil, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown rule kind %q (must be 'fillna' or 'onehot')", kind),
			Pos:     kindVal.Pos(),
		}
	}
}

func compileFillna(v cue.Value) (rule.Rule, error) {
	r := rule.FillnaRule{Fills: make(map[string]rule.Fill)}
	err := eachColumn(v, func(col string, cv cue.Value) error {
		if err := onlyFields(cv, "value", "type", "strategy"); err != nil {
			return err
		}
		valueVal := cv.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return &CompileError{Field: col + ".value", Message: "value is required", Pos: cv.Pos()}
		}
		val, err := scalar(valueVal)
		if err != nil {
			return err
		}
		if typeVal := cv.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
			name, err := typeVal.String()
			if err != nil {
				return formatCUEError(err)
			}
			t, err := schema.ParseDType(name)
			if err != nil {
				return &CompileError{Field: col + ".type", Message: err.Error(), Pos: typeVal.Pos()}
			}
			if val, err = schema.Parse(t, val.Text()); err != nil {
				return &CompileError{Field: col + ".value", Message: err.Error(), Pos: valueVal.Pos()}
			}
		}
		strategy := "constant"
		if sv := cv.LookupPath(cue.ParsePath("strategy")); sv.Exists() {
			if strategy, err = sv.String(); err != nil {
				return formatCUEError(err)
			}
		}
		r.Fills[col] = rule.Fill{Value: val, Strategy: strategy}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func compileOnehot(v cue.Value, d Defaults) (rule.Rule, error) {
	r := rule.OnehotRule{
		Columns:   make(map[string][]rule.Bucket),
		Naming:    d.Naming,
		Unmatched: d.Unmatched,
	}
	if dv := v.LookupPath(cue.ParsePath("drop_first")); dv.Exists() {
		b, err := dv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		r.DropFirst = b
	}
	if nv := v.LookupPath(cue.ParsePath("naming")); nv.Exists() {
		s, err := nv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if r.Naming, err = rule.ParseNaming(s); err != nil {
			return nil, &CompileError{Field: "naming", Message: err.Error(), Pos: nv.Pos()}
		}
	}
	if uv := v.LookupPath(cue.ParsePath("unmatched")); uv.Exists() {
		s, err := uv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if r.Unmatched, err = rule.ParseUnmatched(s); err != nil {
			return nil, &CompileError{Field: "unmatched", Message: err.Error(), Pos: uv.Pos()}
		}
	}
	err := eachColumn(v, func(col string, cv cue.Value) error {
		buckets, err := parseBuckets(col, cv)
		if err != nil {
			return err
		}
		r.Columns[col] = buckets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// parseBuckets reads a list whose items are value lists or {other: true}.
func parseBuckets(col string, v cue.Value) ([]rule.Bucket, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: col, Message: "buckets must be a list", Pos: v.Pos()}
	}
	var buckets []rule.Bucket
	for iter.Next() {
		bv := iter.Value()
		if bv.IncompleteKind() == cue.StructKind {
			if err := onlyFields(bv, "other"); err != nil {
				return nil, err
			}
			other, err := bv.LookupPath(cue.ParsePath("other")).Bool()
			if err != nil || !other {
				return nil, &CompileError{Field: col, Message: "a struct bucket must be {other: true}", Pos: bv.Pos()}
			}
			buckets = append(buckets, rule.Bucket{Other: true})
			continue
		}
		vals, err := bv.List()
		if err != nil {
			return nil, &CompileError{Field: col, Message: "bucket must be a list of values", Pos: bv.Pos()}
		}
		var b rule.Bucket
		for vals.Next() {
			val, err := scalar(vals.Value())
			if err != nil {
				return nil, err
			}
			b.Values = append(b.Values, val)
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func eachColumn(v cue.Value, fn func(col string, cv cue.Value) error) error {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return &CompileError{Field: "columns", Message: "columns is required", Pos: v.Pos()}
	}
	iter, err := colsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// scalar converts a concrete CUE scalar to a Value of its natural dtype.
// Floats are taken at 64-bit precision; the artifact carries their text.
func scalar(v cue.Value) (schema.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return schema.Value{}, formatCUEError(err)
		}
		return schema.NewString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return schema.Value{}, formatCUEError(err)
		}
		return schema.NewInt64(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return schema.Value{}, formatCUEError(err)
		}
		return schema.NewFloat64(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return schema.Value{}, formatCUEError(err)
		}
		return schema.NewBool(b), nil
	default:
		return schema.Value{}, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v (must be a concrete string, int, float or bool)", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func onlyFields(v cue.Value, allowed ...string) error {
	iter, err := v.Fields()
	if err != nil {
		return &CompileError{Field: "struct", Message: "expected a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		label := iter.Label()
		if !slices.Contains(allowed, label) {
			return &CompileError{
				Field:   label,
				Message: "unknown field (allowed: " + strings.Join(allowed, ", ") + ")",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}
