package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruletrace/internal/ir"
)

func partyA() Schema {
	return MustNew("alice",
		Column{Name: "id1", Type: Str, Role: RoleID},
		Column{Name: "a1", Type: Str},
		Column{Name: "a2", Type: Float32},
		Column{Name: "a3", Type: Int32},
		Column{Name: "y", Type: Float32, Role: RoleLabel},
	)
}

func partyB() Schema {
	return MustNew("bob",
		Column{Name: "id2", Type: Str, Role: RoleID},
		Column{Name: "b4", Type: Int32},
		Column{Name: "b5", Type: Int32},
	)
}

func TestNewDefaultsOwnerAndRole(t *testing.T) {
	s := partyA()
	c, ok := s.Lookup("a2")
	require.True(t, ok)
	assert.Equal(t, Party("alice"), c.Owner)
	assert.Equal(t, RoleFeature, c.Role)
	assert.Equal(t, []string{"id1", "a1", "a2", "a3", "y"}, s.Names())
	assert.Equal(t, 2, s.Index("a2"))
	assert.Equal(t, -1, s.Index("zz"))
}

func TestNewRejectsInvalidColumns(t *testing.T) {
	tests := []struct {
		name string
		cols []Column
	}{
		{"duplicate", []Column{{Name: "a", Type: Int32}, {Name: "a", Type: Str}}},
		{"empty name", []Column{{Name: "", Type: Int32}}},
		{"bad type", []Column{{Name: "a", Type: "complex128"}}},
		{"foreign owner", []Column{{Name: "a", Type: Int32, Owner: "bob"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("alice", tt.cols...)
			require.Error(t, err)
			assert.True(t, ir.IsSchemaMismatch(err))
		})
	}
}

func TestProjectPreservesRequestedOrder(t *testing.T) {
	p, err := Project(partyA(), []string{"y", "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "a1"}, p.Names())
	assert.Equal(t, Party("alice"), p.Party())
}

func TestProjectFailures(t *testing.T) {
	_, err := Project(partyA(), []string{"a1", "zz"})
	require.Error(t, err)
	assert.True(t, ir.IsUnknownColumn(err))

	_, err = Project(partyA(), []string{"a1", "a1"})
	require.Error(t, err)
	assert.True(t, ir.IsSchemaMismatch(err))
}

func TestSchemaEqual(t *testing.T) {
	assert.True(t, partyA().Equal(partyA()))
	assert.False(t, partyA().Equal(partyB()))

	reordered, err := Project(partyA(), []string{"a1", "id1", "a2", "a3", "y"})
	require.NoError(t, err)
	assert.False(t, partyA().Equal(reordered))
}

func TestSchemaIRRoundTrip(t *testing.T) {
	obj := partyA().IR()
	back, err := FromIR(obj)
	require.NoError(t, err)
	assert.True(t, partyA().Equal(back))

	out, err := ir.MarshalCanonical(partyB().IR())
	require.NoError(t, err)
	assert.Equal(t,
		`{"columns":[{"name":"id2","role":"id","type":"str"},{"name":"b4","role":"feature","type":"int32"},{"name":"b5","role":"feature","type":"int32"}],"party":"bob"}`,
		string(out))
}

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry(partyA(), partyB())
	require.NoError(t, err)

	p, c, err := r.Resolve("b5")
	require.NoError(t, err)
	assert.Equal(t, Party("bob"), p)
	assert.Equal(t, Int32, c.Type)

	_, _, err = r.Resolve("z")
	require.Error(t, err)
	assert.True(t, ir.IsUnknownColumn(err))

	assert.Equal(t, []Party{"alice", "bob"}, r.Parties())
}

func TestRegistryRejectsOverlap(t *testing.T) {
	dupCol := MustNew("carol", Column{Name: "a1", Type: Str})
	_, err := NewRegistry(partyA(), dupCol)
	require.Error(t, err)
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = NewRegistry(partyA(), partyA())
	require.Error(t, err)
}

func TestRegistryPartition(t *testing.T) {
	r, err := NewRegistry(partyA(), partyB())
	require.NoError(t, err)

	groups, err := r.Partition([]string{"b5", "a3", "a1"})
	require.NoError(t, err)
	assert.Equal(t, map[Party][]string{"alice": {"a3", "a1"}, "bob": {"b5"}}, groups)

	_, err = r.Partition([]string{"a1", "nope"})
	assert.True(t, ir.IsUnknownColumn(err))
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{
		"int32": Int32, "int": Int64, "float": Float64, "FLOAT32": Float32,
		"string": Str, "object": Str, "bool": Bool,
	} {
		got, err := ParseDType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDType("decimal")
	assert.Error(t, err)
}
