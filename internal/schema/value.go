package schema

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/ruletrace/internal/ir"
)

// Value is a typed scalar cell. Null is explicit; a float NaN is treated as
// missing as well.
type Value struct {
	typ  DType
	null bool
	i    int64
	f    float64
	s    string
	b    bool
}

func NewInt32(v int32) Value     { return Value{typ: Int32, i: int64(v)} }
func NewInt64(v int64) Value     { return Value{typ: Int64, i: v} }
func NewFloat32(v float32) Value { return Value{typ: Float32, f: float64(v)} }
func NewFloat64(v float64) Value { return Value{typ: Float64, f: v} }
func NewString(v string) Value   { return Value{typ: Str, s: v} }
func NewBool(v bool) Value       { return Value{typ: Bool, b: v} }

// Null returns the null value of type t.
func Null(t DType) Value { return Value{typ: t, null: true} }

// Type returns the value's dtype.
func (v Value) Type() DType { return v.typ }

// IsNull reports an explicit null.
func (v Value) IsNull() bool { return v.null }

// IsMissing reports null, or NaN for float types.
func (v Value) IsMissing() bool {
	if v.null {
		return true
	}
	return v.typ.Family() == FamilyFloat && math.IsNaN(v.f)
}

// Int returns the integer payload.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload.
func (v Value) Float() float64 { return v.f }

// Str returns the string payload.
func (v Value) Str() string { return v.s }

// Bool returns the bool payload.
func (v Value) Bool() bool { return v.b }

// Text returns the canonical text of the payload: base-10 integers,
// shortest round-trip floats for the type's bit width, strings verbatim.
// Null renders as "null".
func (v Value) Text() string {
	if v.null {
		return "null"
	}
	switch v.typ {
	case Int32, Int64:
		return strconv.FormatInt(v.i, 10)
	case Float32:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case Float64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%s)", v.typ, v.Text())
}

// Equal reports same type and payload. NaN equals NaN so that traces are
// comparable.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.typ.Family() {
	case FamilyInt:
		return v.i == o.i
	case FamilyFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case FamilyBool:
		return v.b == o.b
	default:
		return v.s == o.s
	}
}

// As converts v to t. Only conversions within a family are allowed; no
// value is ever coerced across families.
func (v Value) As(t DType) (Value, error) {
	if v.typ == t {
		return v, nil
	}
	if v.typ.Family() != t.Family() || !t.Valid() {
		return Value{}, fmt.Errorf("cannot convert %s to %s", v.typ, t)
	}
	if v.null {
		return Null(t), nil
	}
	switch t {
	case Int32:
		if v.i < math.MinInt32 || v.i > math.MaxInt32 {
			return Value{}, fmt.Errorf("value %d overflows int32", v.i)
		}
		return NewInt32(int32(v.i)), nil
	case Int64:
		return NewInt64(v.i), nil
	case Float32:
		if !math.IsInf(v.f, 0) && !math.IsNaN(v.f) && math.Abs(v.f) > math.MaxFloat32 {
			return Value{}, fmt.Errorf("value %g overflows float32", v.f)
		}
		return NewFloat32(float32(v.f)), nil
	case Float64:
		return NewFloat64(v.f), nil
	}
	return Value{}, fmt.Errorf("cannot convert %s to %s", v.typ, t)
}

// Parse reads text of type t. Float text may be "NaN".
func Parse(t DType, text string) (Value, error) {
	switch t {
	case Int32:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse int32 %q: %w", text, err)
		}
		return NewInt32(int32(n)), nil
	case Int64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse int64 %q: %w", text, err)
		}
		return NewInt64(n), nil
	case Float32:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse float32 %q: %w", text, err)
		}
		return NewFloat32(float32(f)), nil
	case Float64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse float64 %q: %w", text, err)
		}
		return NewFloat64(f), nil
	case Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", text, err)
		}
		return NewBool(b), nil
	case Str:
		return NewString(text), nil
	default:
		return Value{}, fmt.Errorf("unsupported dtype %q", t)
	}
}

// ParseCell is Parse for delimited-file cells: "" and "NA" are missing in
// every column; "null" and "NaN" are missing only in non-string columns and
// stay literal text in string columns.
func ParseCell(t DType, text string) (Value, error) {
	switch text {
	case "", "NA":
		return Null(t), nil
	case "null", "NaN":
		if t != Str {
			return Null(t), nil
		}
	}
	return Parse(t, text)
}

// IR encodes v as {"type":t,"value":text} or {"null":true,"type":t}.
func (v Value) IR() ir.IRObject {
	if v.null {
		return ir.IRObject{"type": ir.IRString(v.typ), "null": ir.IRBool(true)}
	}
	return ir.IRObject{"type": ir.IRString(v.typ), "value": ir.IRString(v.Text())}
}

// ValueFromIR decodes the literal produced by Value.IR.
func ValueFromIR(v ir.IRValue) (Value, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return Value{}, fmt.Errorf("literal must be an object")
	}
	if err := obj.OnlyKeys("type", "value", "null"); err != nil {
		return Value{}, fmt.Errorf("literal: %w", err)
	}
	typeName, err := obj.String("type")
	if err != nil {
		return Value{}, fmt.Errorf("literal: %w", err)
	}
	t, err := ParseDType(typeName)
	if err != nil {
		return Value{}, fmt.Errorf("literal: %w", err)
	}
	if string(t) != typeName {
		return Value{}, fmt.Errorf("literal: non-canonical type %q", typeName)
	}
	if obj.Has("null") {
		isNull, err := obj.Bool("null")
		if err != nil {
			return Value{}, fmt.Errorf("literal: %w", err)
		}
		if !isNull || obj.Has("value") {
			return Value{}, fmt.Errorf("literal: null must be true and carry no value")
		}
		return Null(t), nil
	}
	text, err := obj.String("value")
	if err != nil {
		return Value{}, fmt.Errorf("literal: %w", err)
	}
	return Parse(t, text)
}
