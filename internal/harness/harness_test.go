package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
	"github.com/roach88/ruletrace/internal/serving"
)

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s, WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_StoresDumps(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/vertical_encode.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.NotEmpty(t, result.ArtifactID)
	require.Len(t, result.Dumps, 2)

	prog, err := serving.Parse(result.Dumps["A"])
	require.NoError(t, err)
	assert.Equal(t, "vertical_encode", prog.Name())

	out, err := prog.Eval(map[string]schema.Value{
		"id1": schema.NewString("r9"),
		"a1":  schema.NewString("M"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out["a1_0"].Float())
	assert.Equal(t, 1.0, out["a1_1"].Float())
}

func TestRun_InlineArtifact(t *testing.T) {
	art := rule.MustArtifact(rule.FillnaRule{Fills: map[string]rule.Fill{
		"b": {Value: schema.NewFloat64(7), Strategy: "constant"},
	}})
	body, err := rule.Save(art)
	require.NoError(t, err)

	s := &Scenario{
		Name:        "inline",
		Description: "inline artifact",
		Parties: []schema.PartyFile{{Party: "alice", Columns: []schema.ColumnFile{
			{Name: "b", Type: "float64"},
		}}},
		Artifact: string(body),
		Rows:     map[string][][]string{"alice": {{"NA"}, {"3"}}},
		Expect:   Expect{NoMissing: []string{"b"}, Parity: true},
	}
	require.NoError(t, validateScenario(s))

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, art.ID(), result.ArtifactID)
}

func TestRun_ExpectationFailures(t *testing.T) {
	base := func() *Scenario {
		s, err := LoadScenario("testdata/scenarios/fill_b.yaml")
		require.NoError(t, err)
		return s
	}

	t.Run("wrong columns", func(t *testing.T) {
		s := base()
		s.Expect.Columns = map[string][]string{"alice": {"b", "id"}}
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "columns[alice] mismatch")
	})

	t.Run("unknown party", func(t *testing.T) {
		s := base()
		s.Expect.Columns = map[string][]string{"bob": {"b"}}
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "unknown party bob")
	})

	t.Run("unfilled column", func(t *testing.T) {
		s := base()
		s.Expect.NoMissing = []string{"id"}
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "alice.id was never filled")
	})

	t.Run("absent column", func(t *testing.T) {
		s := base()
		s.Expect.NoMissing = []string{"zz"}
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "column zz not found")
	})

	t.Run("expected error did not occur", func(t *testing.T) {
		s := base()
		s.Expect = Expect{Error: "INVALID_RULE"}
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "run succeeded")
	})
}

func TestRun_ErrorCodes(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/unknown_column.yaml")
	require.NoError(t, err)

	s.Expect.Error = "SCHEMA_MISMATCH"
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "UNKNOWN_COLUMN")

	s.Expect.Error = ""
	s.Expect.Parity = true
	result, err = Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_RuleNameRequired(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/vertical_fill.yaml")
	require.NoError(t, err)
	s.RuleName = ""

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "rule_name is required")
}

func TestRun_CompileErrorCountsAsInvalidRule(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/vertical_fill.yaml")
	require.NoError(t, err)
	s.Rule = "testdata/rules/broken.cue.txt"
	s.RuleName = ""
	s.Expect = Expect{Error: "INVALID_RULE"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RowsMismatchSchema(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/vertical_fill.yaml")
	require.NoError(t, err)
	s.Rows["A"] = [][]string{{"r0", "not-a-number"}, {"r1", "1"}, {"r2", "2"}}
	s.Expect = Expect{Error: "SCHEMA_MISMATCH"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
