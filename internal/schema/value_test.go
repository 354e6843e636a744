package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruletrace/internal/ir"
)

func TestValueText(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{NewInt32(-7), "-7"},
		{NewInt64(9007199254740993), "9007199254740993"},
		{NewFloat32(0.1), "0.1"},
		{NewFloat64(0.1), "0.1"},
		{NewFloat64(1e21), "1e+21"},
		{NewString("x y"), "x y"},
		{NewBool(true), "true"},
		{Null(Int32), "null"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.Text(), tt.v.String())
	}
}

func TestValueMissing(t *testing.T) {
	assert.True(t, Null(Str).IsMissing())
	assert.True(t, NewFloat32(float32(math.NaN())).IsMissing())
	assert.False(t, NewFloat64(0).IsMissing())
	assert.False(t, NewString("").IsMissing())
}

func TestValueAs(t *testing.T) {
	v, err := NewInt64(5).As(Int32)
	require.NoError(t, err)
	assert.True(t, v.Equal(NewInt32(5)))

	_, err = NewInt64(math.MaxInt32 + 1).As(Int32)
	assert.ErrorContains(t, err, "overflows int32")

	f, err := NewFloat64(0.1).As(Float32)
	require.NoError(t, err)
	assert.Equal(t, "0.1", f.Text())
	assert.Equal(t, float64(float32(0.1)), f.Float())

	n, err := Null(Int64).As(Int32)
	require.NoError(t, err)
	assert.True(t, n.IsNull())
	assert.Equal(t, Int32, n.Type())

	_, err = NewInt32(1).As(Float32)
	assert.ErrorContains(t, err, "cannot convert int32 to float32")

	_, err = NewString("1").As(Int32)
	assert.Error(t, err)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, NewInt32(1).Equal(NewInt32(1)))
	assert.False(t, NewInt32(1).Equal(NewInt64(1)))
	assert.True(t, Null(Str).Equal(Null(Str)))
	assert.False(t, Null(Str).Equal(NewString("")))
	nan := NewFloat64(math.NaN())
	assert.True(t, nan.Equal(nan))
}

func TestParseCell(t *testing.T) {
	for _, in := range []string{"", "NA", "null", "NaN"} {
		v, err := ParseCell(Float32, in)
		require.NoError(t, err)
		assert.True(t, v.IsMissing(), in)
	}
	for _, in := range []string{"NaN", "null"} {
		v, err := ParseCell(Str, in)
		require.NoError(t, err)
		assert.False(t, v.IsMissing(), in)
		assert.Equal(t, in, v.Str())
	}
	for _, in := range []string{"", "NA"} {
		v, err := ParseCell(Str, in)
		require.NoError(t, err)
		assert.True(t, v.IsMissing(), in)
	}

	_, err := ParseCell(Int32, "1.5")
	assert.Error(t, err)
}

func TestValueIRRoundTrip(t *testing.T) {
	for _, v := range []Value{NewInt32(3), NewFloat32(2.5), NewString("k"), NewBool(false), Null(Float64)} {
		back, err := ValueFromIR(v.IR())
		require.NoError(t, err)
		assert.True(t, v.Equal(back), v.String())
	}

	out, err := ir.MarshalCanonical(NewFloat32(0.1).IR())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"float32","value":"0.1"}`, string(out))

	out, err = ir.MarshalCanonical(Null(Str).IR())
	require.NoError(t, err)
	assert.Equal(t, `{"null":true,"type":"str"}`, string(out))
}

func TestValueFromIRRejects(t *testing.T) {
	bad := []ir.IRValue{
		ir.IRString("x"),
		ir.IRObject{"type": ir.IRString("int32")},
		ir.IRObject{"type": ir.IRString("string"), "value": ir.IRString("a")},
		ir.IRObject{"type": ir.IRString("int32"), "value": ir.IRString("a")},
		ir.IRObject{"type": ir.IRString("int32"), "null": ir.IRBool(false)},
		ir.IRObject{"type": ir.IRString("int32"), "value": ir.IRString("1"), "extra": ir.IRInt(1)},
	}
	for i, b := range bad {
		_, err := ValueFromIR(b)
		assert.Error(t, err, "case %d", i)
	}
}
