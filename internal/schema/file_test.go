package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const twoParties = `
parties:
  - party: alice
    columns:
      - {name: id1, type: str, role: id}
      - {name: a1, type: str}
      - {name: a2, type: float32}
      - {name: a3, type: int32}
      - {name: y, type: float32, role: label}
  - party: bob
    columns:
      - {name: id2, type: str, role: id}
      - {name: b4, type: int32}
      - {name: b5, type: int32}
`

func TestParseFile(t *testing.T) {
	schemas, err := ParseFile([]byte(twoParties))
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.True(t, partyA().Equal(schemas[0]))
	assert.True(t, partyB().Equal(schemas[1]))
}

func TestParseFileErrors(t *testing.T) {
	tests := map[string]string{
		"empty":        `parties: []`,
		"no party":     "parties:\n  - columns: [{name: a, type: str}]",
		"bad type":     "parties:\n  - party: p\n    columns: [{name: a, type: decimal}]",
		"bad role":     "parties:\n  - party: p\n    columns: [{name: a, type: str, role: target}]",
		"dup column":   "parties:\n  - party: p\n    columns: [{name: a, type: str}, {name: a, type: str}]",
		"invalid yaml": "parties: [",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFile([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestFileOfRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(FileOf(partyA(), partyB()))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	s, ok := reg.Schema("bob")
	require.True(t, ok)
	assert.True(t, partyB().Equal(s))
}
