package rule

import (
	"errors"
	"fmt"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// Artifact is the persisted, write-once unit of the rule store: a validated
// Rule plus its format version.
type Artifact struct {
	rule    Rule
	version string
}

// NewArtifact validates r and freezes a private copy of it.
func NewArtifact(r Rule) (*Artifact, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}
	return &Artifact{rule: r.clone(), version: ir.RuleFormatVersion}, nil
}

// MustArtifact is like NewArtifact but panics on error. Use only in tests.
func MustArtifact(r Rule) *Artifact {
	a, err := NewArtifact(r)
	if err != nil {
		panic(err)
	}
	return a
}

// Rule returns a copy of the artifact's rule.
func (a *Artifact) Rule() Rule { return a.rule.clone() }

// Kind returns the rule variant.
func (a *Artifact) Kind() Kind { return a.rule.Kind() }

// Version returns the format version tag.
func (a *Artifact) Version() string { return a.version }

// IR returns the artifact envelope as a canonical document.
func (a *Artifact) IR() ir.IRObject {
	return ir.IRObject{
		"format":  ir.IRString(ir.RuleFormat),
		"version": ir.IRString(a.version),
		"rule":    a.rule.toIR(),
	}
}

// ID is the content hash of the saved bytes.
func (a *Artifact) ID() string {
	return ir.MustContentID(ir.DomainRule, a.IR())
}

// Save serializes a deterministically: equal artifacts always produce the
// same bytes.
func Save(a *Artifact) ([]byte, error) {
	if a == nil {
		return nil, ir.InvalidRule("", "nil artifact")
	}
	data, err := ir.MarshalCanonical(a.IR())
	if err != nil {
		return nil, fmt.Errorf("save rule artifact: %w", err)
	}
	return data, nil
}

// Load parses and validates artifact bytes. Every failure is an
// InvalidRuleError.
func Load(data []byte) (*Artifact, error) {
	obj, err := ir.UnmarshalIRObject(data)
	if err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed artifact")
	}
	return FromIR(obj)
}

// FromIR decodes an artifact envelope document.
func FromIR(obj ir.IRObject) (*Artifact, error) {
	if err := obj.OnlyKeys("format", "version", "rule"); err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed artifact")
	}
	format, err := obj.String("format")
	if err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed artifact")
	}
	if format != ir.RuleFormat {
		return nil, ir.InvalidRule("", "unknown artifact format %q", format)
	}
	version, err := obj.String("version")
	if err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed artifact")
	}
	if version != ir.RuleFormatVersion {
		return nil, ir.InvalidRule("", "unsupported artifact version %q", version)
	}
	body, err := obj.Object("rule")
	if err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed artifact")
	}
	r, err := ruleFromIR(body)
	if err != nil {
		return nil, err
	}
	return NewArtifact(r)
}

// LoadWithSchema is Load followed by CheckSchema against reg.
func LoadWithSchema(data []byte, reg *schema.Registry) (*Artifact, error) {
	a, err := Load(data)
	if err != nil {
		return nil, err
	}
	if err := a.CheckSchema(reg); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckSchema resolves every rule column through reg and checks that fill
// and bucket values convert to the column's dtype.
func (a *Artifact) CheckSchema(reg *schema.Registry) error {
	for _, col := range a.rule.ColumnNames() {
		party, c, err := reg.Resolve(col)
		if err != nil {
			return err
		}
		if err := CheckColumn(a.rule, c); err != nil {
			var e *ir.Error
			if errors.As(err, &e) {
				return e.WithParty(string(party))
			}
			return err
		}
	}
	return nil
}

// CheckColumn checks that r's settings for c fit c's dtype.
func CheckColumn(r Rule, c schema.Column) error {
	switch r := r.(type) {
	case FillnaRule:
		f := r.Fills[c.Name]
		if _, err := f.Value.As(c.Type); err != nil {
			return ir.InvalidRule(c.Name, "fill value %s does not fit column: %v", f.Value, err)
		}
	case OnehotRule:
		if _, err := r.Expansion(c.Name).Convert(c.Name, c.Type); err != nil {
			return err
		}
	default:
		return ir.InvalidRule(c.Name, "unsupported rule %T", r)
	}
	return nil
}

func ruleFromIR(body ir.IRObject) (Rule, error) {
	kind, err := body.String("kind")
	if err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed rule")
	}
	switch Kind(kind) {
	case KindFillna:
		return fillnaFromIR(body)
	case KindOnehot:
		return onehotFromIR(body)
	default:
		return nil, ir.InvalidRule("", "unknown rule kind %q", kind)
	}
}

func fillnaFromIR(body ir.IRObject) (Rule, error) {
	if err := body.OnlyKeys("kind", "columns"); err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed fillna rule")
	}
	entries, err := columnEntries(body)
	if err != nil {
		return nil, err
	}
	r := FillnaRule{Fills: make(map[string]Fill, len(entries))}
	for i, e := range entries {
		if err := e.OnlyKeys("column", "strategy", "value"); err != nil {
			return nil, ir.InvalidRuleErr(err, "columns[%d]", i)
		}
		col, err := entryColumn(e, i, r.Fills)
		if err != nil {
			return nil, err
		}
		strategy, err := e.String("strategy")
		if err != nil {
			return nil, ir.InvalidRuleErr(err, "columns[%d]", i)
		}
		raw, ok := e["value"]
		if !ok {
			return nil, ir.InvalidRule(col, "missing fill value")
		}
		v, err := schema.ValueFromIR(raw)
		if err != nil {
			return nil, ir.InvalidRule(col, "fill value: %v", err)
		}
		r.Fills[col] = Fill{Value: v, Strategy: strategy}
	}
	return r, nil
}

func onehotFromIR(body ir.IRObject) (Rule, error) {
	if err := body.OnlyKeys("kind", "columns", "drop_first", "naming", "unmatched"); err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed onehot rule")
	}
	r := OnehotRule{}
	if body.Has("drop_first") {
		b, err := body.Bool("drop_first")
		if err != nil {
			return nil, ir.InvalidRuleErr(err, "malformed onehot rule")
		}
		r.DropFirst = b
	}
	if body.Has("naming") {
		s, err := body.String("naming")
		if err != nil {
			return nil, ir.InvalidRuleErr(err, "malformed onehot rule")
		}
		if r.Naming, err = ParseNaming(s); err != nil {
			return nil, err
		}
	}
	if body.Has("unmatched") {
		s, err := body.String("unmatched")
		if err != nil {
			return nil, ir.InvalidRuleErr(err, "malformed onehot rule")
		}
		if r.Unmatched, err = ParseUnmatched(s); err != nil {
			return nil, err
		}
	}
	entries, err := columnEntries(body)
	if err != nil {
		return nil, err
	}
	r.Columns = make(map[string][]Bucket, len(entries))
	for i, e := range entries {
		if err := e.OnlyKeys("column", "buckets"); err != nil {
			return nil, ir.InvalidRuleErr(err, "columns[%d]", i)
		}
		col, err := entryColumn(e, i, r.Columns)
		if err != nil {
			return nil, err
		}
		arr, err := e.Array("buckets")
		if err != nil {
			return nil, ir.InvalidRuleErr(err, "columns[%d]", i)
		}
		buckets, err := bucketsFromIR(col, arr)
		if err != nil {
			return nil, err
		}
		r.Columns[col] = buckets
	}
	return r, nil
}

func columnEntries(body ir.IRObject) ([]ir.IRObject, error) {
	arr, err := body.Array("columns")
	if err != nil {
		return nil, ir.InvalidRuleErr(err, "malformed rule")
	}
	out := make([]ir.IRObject, len(arr))
	for i, v := range arr {
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, ir.InvalidRule("", "columns[%d] must be an object", i)
		}
		out[i] = obj
	}
	return out, nil
}

func entryColumn[V any](e ir.IRObject, i int, seen map[string]V) (string, error) {
	col, err := e.String("column")
	if err != nil {
		return "", ir.InvalidRuleErr(err, "columns[%d]", i)
	}
	if col == "" {
		return "", ir.InvalidRule("", "columns[%d]: empty column name", i)
	}
	if _, dup := seen[col]; dup {
		return "", ir.InvalidRule(col, "duplicate column entry")
	}
	return col, nil
}

// Columns lists the rule's columns of a, ascending.
func (a *Artifact) Columns() []string {
	return a.rule.ColumnNames()
}
