package ir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpKindRoundTrip(t *testing.T) {
	for _, k := range OpKinds {
		t.Run(k.String(), func(t *testing.T) {
			assert.True(t, k.Valid())
			parsed, err := ParseOpKind(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, parsed)
		})
	}

	_, err := ParseOpKind("explode")
	require.Error(t, err)
	assert.False(t, OpKind(0).Valid())
	assert.Equal(t, "OpKind(99)", OpKind(99).String())
}

func TestRefParts(t *testing.T) {
	r := NewRef("a#b", 3)
	assert.Equal(t, Ref("a#b#3"), r)
	assert.Equal(t, "a#b", r.Column())
	assert.Equal(t, 3, r.Version())

	parsed, err := ParseRef("x#0")
	require.NoError(t, err)
	assert.Equal(t, Ref("x#0"), parsed)

	for _, bad := range []string{"", "x", "#1", "x#", "x#-1", "x#a"} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestNodeIRRoundTrip(t *testing.T) {
	n := Node{
		ID:      4,
		Op:      OpFillna,
		Inputs:  []Ref{"a2#0"},
		Outputs: []Ref{"a2#1"},
		Params:  IRObject{"value": IRObject{"type": IRString("float32"), "value": IRString("99")}},
	}

	data, err := MarshalCanonical(n.IR())
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":4,"inputs":["a2#0"],"op":"fillna","outputs":["a2#1"],"params":{"value":{"type":"float32","value":"99"}}}`,
		string(data))

	obj, err := UnmarshalIRObject(data)
	require.NoError(t, err)
	back, err := NodeFromIR(obj)
	require.NoError(t, err)
	assert.Equal(t, n, back)
}

func TestNodeFromIRRejectsUnknownFields(t *testing.T) {
	obj := Node{ID: 1, Op: OpSelect, Params: IRObject{}}.IR()
	obj["extra"] = IRBool(true)
	_, err := NodeFromIR(obj)
	require.Error(t, err)
}

func TestGraphTerminals(t *testing.T) {
	g := Graph{
		Roots: []Ref{"a#0", "b#0"},
		Nodes: []Node{
			{ID: 1, Op: OpFillna, Inputs: []Ref{"a#0"}, Outputs: []Ref{"a#1"}},
			{ID: 2, Op: OpOnehotExpand, Inputs: []Ref{"a#1"}, Outputs: []Ref{"a_1#0", "a_2#0"}},
			{ID: 3, Op: OpRename, Inputs: []Ref{"b#0"}, Outputs: []Ref{"c#0"}},
		},
	}
	assert.Equal(t, []Ref{"a_1#0", "a_2#0", "c#0"}, g.Terminals())
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("apply: %w", UnknownColumn("z", "column not found"))

	assert.True(t, IsUnknownColumn(err))
	assert.False(t, IsInvalidRule(err))
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeUnknownColumn, code)

	_, ok = CodeOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestErrorMessage(t *testing.T) {
	e := InvalidRule("a1", "duplicate value %q", "K").WithParty("alice")
	e.Details = map[string]string{"bucket": "2", "row": "7"}
	assert.Equal(t, `INVALID_RULE: duplicate value "K" (party=alice, column=a1, bucket=2, row=7)`, e.Error())

	wrapped := InvalidRuleErr(fmt.Errorf("boom"), "decode")
	assert.Equal(t, "INVALID_RULE: decode: boom", wrapped.Error())
	assert.True(t, IsInvalidRule(wrapped))
	assert.True(t, IsGraphIntegrity(GraphIntegrity("x")))
	assert.True(t, IsSchemaMismatch(SchemaMismatch("c", "x")))
}
