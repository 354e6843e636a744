package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	values := []IRValue{
		IRString(""), IRInt(0), IRBool(false), IRArray{}, IRObject{},
	}
	assert.Len(t, values, 5)
}

func TestSortedKeysUTF16Order(t *testing.T) {
	obj := IRObject{"b": IRInt(1), "a": IRInt(2), "\uE000": IRInt(3), "\U00010000": IRInt(4), "A": IRInt(5)}
	assert.Equal(t, []string{"A", "a", "b", "\U00010000", "\uE000"}, obj.SortedKeys())
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	for _, in := range []string{`1.5`, `{"a":1e3}`, `[0.0]`, `{"x":{"y":2E1}}`} {
		t.Run(in, func(t *testing.T) {
			_, err := UnmarshalIRValue([]byte(in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "floats are forbidden")
		})
	}
}

func TestUnmarshalRejectsNull(t *testing.T) {
	for _, in := range []string{`null`, `{"a":null}`, `[1,null]`} {
		t.Run(in, func(t *testing.T) {
			_, err := UnmarshalIRValue([]byte(in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "null is forbidden")
		})
	}
}

func TestUnmarshalRejectsTrailingData(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestUnmarshalIRObject(t *testing.T) {
	obj, err := UnmarshalIRObject([]byte(`{"s":"x","n":9007199254740993,"b":true,"l":["p","q"],"o":{}}`))
	require.NoError(t, err)

	s, err := obj.String("s")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	n, err := obj.Int("n")
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), n, "large ints must not lose precision")

	b, err := obj.Bool("b")
	require.NoError(t, err)
	assert.True(t, b)

	l, err := obj.StringList("l")
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "q"}, l)

	_, err = obj.Object("o")
	require.NoError(t, err)

	_, err = UnmarshalIRObject([]byte(`[1]`))
	require.Error(t, err)
}

func TestIRObjectAccessorErrors(t *testing.T) {
	obj := IRObject{"s": IRInt(1), "l": IRArray{IRInt(1)}}

	_, err := obj.String("missing")
	assert.ErrorContains(t, err, `missing field "missing"`)

	_, err = obj.String("s")
	assert.ErrorContains(t, err, "expected string, got int")

	_, err = obj.StringList("l")
	assert.ErrorContains(t, err, `field "l"[0]`)

	assert.NoError(t, obj.OnlyKeys("s", "l"))
	assert.ErrorContains(t, obj.OnlyKeys("s"), `unexpected field "l"`)
}

func TestStringsHelper(t *testing.T) {
	assert.Equal(t, IRArray{IRString("a"), IRString("b")}, Strings([]string{"a", "b"}))
	assert.Equal(t, IRArray{}, Strings(nil))
}
