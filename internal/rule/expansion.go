package rule

import (
	"strconv"
	"strings"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// Naming selects how expanded output columns are named.
type Naming string

const (
	// NamingIndex names outputs <col>_<bucket index>. Default.
	NamingIndex Naming = "index"
	// NamingValue names outputs <col>_<v1>-<v2>... from the bucket values.
	NamingValue Naming = "value"
)

func (n Naming) orDefault() Naming {
	if n == "" {
		return NamingIndex
	}
	return n
}

func (n Naming) valid() bool {
	return n == NamingIndex || n == NamingValue
}

// ParseNaming parses a naming policy name; empty means the default.
func ParseNaming(s string) (Naming, error) {
	n := Naming(s).orDefault()
	if !n.valid() {
		return "", ir.InvalidRule("", "unknown naming policy %q", s)
	}
	return n, nil
}

// Unmatched selects what happens to a value that falls in no bucket.
type Unmatched string

const (
	// UnmatchedAllZero emits an all-zero row. Default.
	UnmatchedAllZero Unmatched = "all_zero"
	// UnmatchedError fails the materialized apply.
	UnmatchedError Unmatched = "error"
	// UnmatchedOther routes the value into the single Other bucket.
	UnmatchedOther Unmatched = "other"
)

func (u Unmatched) orDefault() Unmatched {
	if u == "" {
		return UnmatchedAllZero
	}
	return u
}

func (u Unmatched) valid() bool {
	return u == UnmatchedAllZero || u == UnmatchedError || u == UnmatchedOther
}

// ParseUnmatched parses an unmatched policy name; empty means the default.
func ParseUnmatched(s string) (Unmatched, error) {
	u := Unmatched(s).orDefault()
	if !u.valid() {
		return "", ir.InvalidRule("", "unknown unmatched policy %q", s)
	}
	return u, nil
}

// Bucket maps one or more source values onto one output column. An Other
// bucket carries no values and catches everything unmatched.
type Bucket struct {
	Values []schema.Value
	Other  bool
}

// Expansion is the complete onehot encoding of one column.
type Expansion struct {
	Buckets   []Bucket
	DropFirst bool
	Naming    Naming
	Unmatched Unmatched
}

// Validate checks the expansion for col: non-empty buckets, one value
// family, no value in two buckets, Other buckets only under UnmatchedOther.
// Under UnmatchedOther a column has at most one Other bucket; a column
// without one encodes unmatched values as an all-zero row.
func (e Expansion) Validate(col string) error {
	if len(e.Buckets) == 0 {
		return ir.InvalidRule(col, "empty bucket list")
	}
	if !e.Naming.orDefault().valid() {
		return ir.InvalidRule(col, "unknown naming policy %q", e.Naming)
	}
	unmatched := e.Unmatched.orDefault()
	if !unmatched.valid() {
		return ir.InvalidRule(col, "unknown unmatched policy %q", e.Unmatched)
	}

	var family schema.Family
	seen := make(map[string]int)
	others := 0
	for i, b := range e.Buckets {
		if b.Other {
			if len(b.Values) > 0 {
				return bucketErr(col, i, "other bucket must not list values")
			}
			others++
			continue
		}
		if len(b.Values) == 0 {
			return bucketErr(col, i, "empty bucket")
		}
		for _, v := range b.Values {
			if v.IsMissing() {
				return bucketErr(col, i, "bucket value is missing")
			}
			f := v.Type().Family()
			if family == schema.FamilyInvalid {
				family = f
			} else if f != family {
				return bucketErr(col, i, "bucket values mix %s and %s", family, f)
			}
			if prev, dup := seen[v.Text()]; dup {
				return bucketErr(col, i, "value %s appears in buckets %d and %d", v.Text(), prev, i)
			}
			seen[v.Text()] = i
		}
	}
	switch {
	case unmatched == UnmatchedOther && others > 1:
		return ir.InvalidRule(col, "unmatched=other allows one other bucket, got %d", others)
	case unmatched != UnmatchedOther && others > 0:
		return ir.InvalidRule(col, "other bucket requires unmatched=other")
	}
	if family == schema.FamilyInvalid {
		return ir.InvalidRule(col, "no bucket lists a value")
	}

	names := e.Names(col)
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		if taken[n] {
			return ir.InvalidRule(col, "expanded column name %q generated twice", n)
		}
		taken[n] = true
	}
	return nil
}

func bucketErr(col string, i int, format string, args ...any) *ir.Error {
	err := ir.InvalidRule(col, format, args...)
	err.Details = map[string]string{"bucket": strconv.Itoa(i)}
	return err
}

// Emitted returns the indexes of buckets that produce an output column.
// With DropFirst the first bucket is implied by an all-zero row.
func (e Expansion) Emitted() []int {
	start := 0
	if e.DropFirst {
		start = 1
	}
	out := make([]int, 0, len(e.Buckets))
	for i := start; i < len(e.Buckets); i++ {
		out = append(out, i)
	}
	return out
}

// Names returns the output column names for col, one per emitted bucket.
func (e Expansion) Names(col string) []string {
	emitted := e.Emitted()
	names := make([]string, len(emitted))
	for j, i := range emitted {
		names[j] = e.bucketName(col, i)
	}
	return names
}

func (e Expansion) bucketName(col string, i int) string {
	b := e.Buckets[i]
	if b.Other {
		return col + "_other"
	}
	if e.Naming.orDefault() == NamingValue {
		parts := make([]string, len(b.Values))
		for j, v := range b.Values {
			parts[j] = v.Text()
		}
		return col + "_" + strings.Join(parts, "-")
	}
	return col + "_" + strconv.Itoa(i)
}

// Convert returns a copy of e whose bucket values are converted to t.
// Fails with InvalidRuleError when a value does not fit t or when two values
// collapse onto one after conversion.
func (e Expansion) Convert(col string, t schema.DType) (Expansion, error) {
	out := e
	out.Buckets = make([]Bucket, len(e.Buckets))
	seen := make(map[string]int)
	for i, b := range e.Buckets {
		nb := Bucket{Other: b.Other, Values: make([]schema.Value, len(b.Values))}
		for j, v := range b.Values {
			cv, err := v.As(t)
			if err != nil {
				return Expansion{}, ir.InvalidRule(col, "bucket %d value %s: %v", i, v.Text(), err)
			}
			if prev, dup := seen[cv.Text()]; dup {
				return Expansion{}, bucketErr(col, i, "value %s appears in buckets %d and %d after conversion to %s", cv.Text(), prev, i, t)
			}
			seen[cv.Text()] = i
			nb.Values[j] = cv
		}
		out.Buckets[i] = nb
	}
	return out, nil
}

// Match returns the bucket index receiving v, or -1. Missing values only
// land in the Other bucket under UnmatchedOther; a column without one
// returns -1. Values must already share
// the buckets' dtype (see Convert).
func (e Expansion) Match(v schema.Value) int {
	if !v.IsMissing() {
		for i, b := range e.Buckets {
			for _, bv := range b.Values {
				if bv.Equal(v) {
					return i
				}
			}
		}
	}
	if e.Unmatched.orDefault() == UnmatchedOther {
		for i, b := range e.Buckets {
			if b.Other {
				return i
			}
		}
	}
	return -1
}

func bucketsIR(buckets []Bucket) ir.IRArray {
	arr := make(ir.IRArray, len(buckets))
	for i, b := range buckets {
		if b.Other {
			arr[i] = ir.IRObject{"other": ir.IRBool(true)}
			continue
		}
		vals := make(ir.IRArray, len(b.Values))
		for j, v := range b.Values {
			vals[j] = v.IR()
		}
		arr[i] = ir.IRObject{"values": vals}
	}
	return arr
}

func bucketsFromIR(col string, arr ir.IRArray) ([]Bucket, error) {
	out := make([]Bucket, len(arr))
	for i, raw := range arr {
		obj, ok := raw.(ir.IRObject)
		if !ok {
			return nil, bucketErr(col, i, "bucket must be an object")
		}
		if err := obj.OnlyKeys("values", "other"); err != nil {
			return nil, bucketErr(col, i, "%v", err)
		}
		if obj.Has("other") {
			other, err := obj.Bool("other")
			if err != nil || !other || obj.Has("values") {
				return nil, bucketErr(col, i, "other bucket must be {\"other\":true}")
			}
			out[i] = Bucket{Other: true}
			continue
		}
		vals, err := obj.Array("values")
		if err != nil {
			return nil, bucketErr(col, i, "%v", err)
		}
		b := Bucket{Values: make([]schema.Value, len(vals))}
		for j, v := range vals {
			sv, err := schema.ValueFromIR(v)
			if err != nil {
				return nil, bucketErr(col, i, "value %d: %v", j, err)
			}
			b.Values[j] = sv
		}
		out[i] = b
	}
	return out, nil
}

// EncodeExpansion renders the params shared by tracer nodes and serving
// programs: buckets, drop_first, emitted bucket indexes and the unmatched
// policy.
func EncodeExpansion(e Expansion) ir.IRObject {
	emit := make(ir.IRArray, 0, len(e.Buckets))
	for _, i := range e.Emitted() {
		emit = append(emit, ir.IRInt(i))
	}
	return ir.IRObject{
		"buckets":    bucketsIR(e.Buckets),
		"drop_first": ir.IRBool(e.DropFirst),
		"emit":       emit,
		"unmatched":  ir.IRString(e.Unmatched.orDefault()),
	}
}

// DecodeExpansion is the inverse of EncodeExpansion. Naming is not carried:
// output names are already fixed by the node's outputs.
func DecodeExpansion(col string, params ir.IRObject) (Expansion, error) {
	if err := params.OnlyKeys("buckets", "drop_first", "emit", "unmatched"); err != nil {
		return Expansion{}, ir.InvalidRuleErr(err, "onehot params")
	}
	arr, err := params.Array("buckets")
	if err != nil {
		return Expansion{}, ir.InvalidRuleErr(err, "onehot params")
	}
	buckets, err := bucketsFromIR(col, arr)
	if err != nil {
		return Expansion{}, err
	}
	dropFirst, err := params.Bool("drop_first")
	if err != nil {
		return Expansion{}, ir.InvalidRuleErr(err, "onehot params")
	}
	name, err := params.String("unmatched")
	if err != nil {
		return Expansion{}, ir.InvalidRuleErr(err, "onehot params")
	}
	unmatched, err := ParseUnmatched(name)
	if err != nil {
		return Expansion{}, err
	}
	e := Expansion{Buckets: buckets, DropFirst: dropFirst, Naming: NamingIndex, Unmatched: unmatched}
	emit, err := params.Array("emit")
	if err != nil {
		return Expansion{}, ir.InvalidRuleErr(err, "onehot params")
	}
	want := e.Emitted()
	if len(emit) != len(want) {
		return Expansion{}, ir.InvalidRule(col, "emit lists %d buckets, expected %d", len(emit), len(want))
	}
	for k, v := range emit {
		if n, ok := v.(ir.IRInt); !ok || int(n) != want[k] {
			return Expansion{}, ir.InvalidRule(col, "emit[%d] does not match drop_first", k)
		}
	}
	return e, nil
}
