package compute

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

func abcSchema() schema.Schema {
	return schema.MustNew("alice",
		schema.Column{Name: "a", Type: schema.Int32},
		schema.Column{Name: "b", Type: schema.Float32},
		schema.Column{Name: "c", Type: schema.Str},
	)
}

func abcFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := FrameFromRows(abcSchema(), [][]string{
		{"1", "1.11", "k"},
		{"2", "NaN", "m"},
		{"3", "0.5", "x"},
		{"", "1.11", ""},
	})
	require.NoError(t, err)
	return f
}

func buckets(vals ...[]schema.Value) []rule.Bucket {
	out := make([]rule.Bucket, len(vals))
	for i, v := range vals {
		out[i] = rule.Bucket{Values: v}
	}
	return out
}

func i32(vs ...int32) []schema.Value {
	out := make([]schema.Value, len(vs))
	for i, v := range vs {
		out[i] = schema.NewInt32(v)
	}
	return out
}

func str(vs ...string) []schema.Value {
	out := make([]schema.Value, len(vs))
	for i, v := range vs {
		out[i] = schema.NewString(v)
	}
	return out
}

// onehotRules mirrors {"a": [[1], [2, 3]], "b": [[1.11]], "c": [["k", "m"]]}.
func onehotRules() map[string]rule.Expansion {
	return map[string]rule.Expansion{
		"a": {Buckets: buckets(i32(1), i32(2, 3))},
		"b": {Buckets: buckets([]schema.Value{schema.NewFloat64(1.11)})},
		"c": {Buckets: buckets(str("k", "m"))},
	}
}

func applyOnehot(t *testing.T, tbl Table) Table {
	t.Helper()
	rules := onehotRules()
	var err error
	for _, col := range []string{"a", "b", "c"} {
		tbl, err = tbl.OnehotExpand(col, rules[col])
		require.NoError(t, err)
	}
	return tbl
}

func TestSymbolicOnehotTraceGolden(t *testing.T) {
	in, err := FromSchema(abcSchema())
	require.NoError(t, err)
	out := applyOnehot(t, in)

	assert.Equal(t, []string{"a_0", "a_1", "b_0", "c_0"}, out.Schema().Names())
	assert.Nil(t, out.Frame())
	assert.Equal(t, 3, out.Lineage().Len())

	d, err := out.DumpServing("onehot")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "onehot_trace", d.Text())
}

func TestRunnerDumpEqualsTableDump(t *testing.T) {
	in, err := FromSchema(abcSchema())
	require.NoError(t, err)
	out := applyOnehot(t, in)

	direct, err := out.DumpServing("onehot")
	require.NoError(t, err)
	replayed, err := out.Runner().DumpServing("onehot")
	require.NoError(t, err)
	require.NoError(t, graph.CheckParity(direct, replayed))
}

func TestModeIndependentTrace(t *testing.T) {
	sym, err := FromSchema(abcSchema())
	require.NoError(t, err)
	mat, err := FromFrame(abcFrame(t))
	require.NoError(t, err)

	symOut := applyOnehot(t, sym)
	matOut := applyOnehot(t, mat)

	d1, err := symOut.DumpServing("x")
	require.NoError(t, err)
	d2, err := matOut.DumpServing("x")
	require.NoError(t, err)
	assert.True(t, d1.Equal(d2))

	r, err := matOut.Runner().DumpServing("x")
	require.NoError(t, err)
	assert.True(t, d2.Equal(r))
}

func TestMaterializedOnehotValues(t *testing.T) {
	mat, err := FromFrame(abcFrame(t))
	require.NoError(t, err)
	out := applyOnehot(t, mat)

	assert.Equal(t, [][]string{
		{"1", "0", "1", "1"},
		{"0", "1", "0", "1"},
		{"0", "1", "0", "0"},
		{"0", "0", "1", "0"},
	}, out.Frame().Text())
	for _, c := range out.Schema().Columns() {
		assert.Equal(t, schema.Float32, c.Type)
		assert.Equal(t, schema.Party("alice"), c.Owner)
	}
}

func TestOnehotDropFirstArithmetic(t *testing.T) {
	s := schema.MustNew("p",
		schema.Column{Name: "id", Type: schema.Str, Role: schema.RoleID},
		schema.Column{Name: "k", Type: schema.Str},
		schema.Column{Name: "y", Type: schema.Float32, Role: schema.RoleLabel},
	)
	for _, tc := range []struct {
		k         int
		dropFirst bool
		want      int
	}{
		{3, false, 3}, {3, true, 2}, {1, true, 0}, {1, false, 1},
	} {
		var bs []rule.Bucket
		for i := range tc.k {
			bs = append(bs, rule.Bucket{Values: str(string(rune('a' + i)))})
		}
		tbl, err := FromSchema(s)
		require.NoError(t, err)
		out, err := tbl.OnehotExpand("k", rule.Expansion{Buckets: bs, DropFirst: tc.dropFirst})
		require.NoError(t, err)
		assert.Equal(t, s.Len()-1+tc.want, out.Schema().Len())
		names := out.Schema().Names()
		assert.Equal(t, "id", names[0])
		assert.Equal(t, "y", names[len(names)-1])
	}
}

func TestOnehotUnmatchedPolicies(t *testing.T) {
	mat, err := FromFrame(abcFrame(t))
	require.NoError(t, err)

	_, err = mat.OnehotExpand("c", rule.Expansion{Buckets: buckets(str("k")), Unmatched: rule.UnmatchedError})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidRule(err))
	assert.Contains(t, err.Error(), "row=1")
	assert.Equal(t, 0, mat.Lineage().Len(), "failed operator must not trace")

	out, err := mat.OnehotExpand("c", rule.Expansion{
		Buckets:   []rule.Bucket{{Values: str("k")}, {Other: true}},
		Unmatched: rule.UnmatchedOther,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c_0", "c_other"}, out.Schema().Names())
	col, ok := out.Frame().Column("c_other")
	require.True(t, ok)
	var texts []string
	for _, v := range col {
		texts = append(texts, v.Text())
	}
	assert.Equal(t, []string{"0", "1", "1", "1"}, texts)

	// Under unmatched=other a column without an other bucket zero-fills.
	noOther, err := mat.OnehotExpand("c", rule.Expansion{Buckets: buckets(str("k")), Unmatched: rule.UnmatchedOther})
	require.NoError(t, err)
	col, ok = noOther.Frame().Column("c_0")
	require.True(t, ok)
	texts = texts[:0]
	for _, v := range col {
		texts = append(texts, v.Text())
	}
	assert.Equal(t, []string{"1", "0", "0", "0"}, texts)

	sym, err := FromSchema(abcSchema())
	require.NoError(t, err)
	_, err = sym.OnehotExpand("c", rule.Expansion{Buckets: buckets(str("k")), Unmatched: rule.UnmatchedError})
	require.NoError(t, err, "symbolic tables have no values to reject")
}

func TestOnehotErrors(t *testing.T) {
	sym, err := FromSchema(abcSchema())
	require.NoError(t, err)

	_, err = sym.OnehotExpand("zz", rule.Expansion{Buckets: buckets(str("k"))})
	assert.True(t, ir.IsUnknownColumn(err))

	_, err = sym.OnehotExpand("c", rule.Expansion{})
	assert.True(t, ir.IsInvalidRule(err))

	_, err = sym.OnehotExpand("c", rule.Expansion{Buckets: buckets(str("k"), str("k"))})
	assert.True(t, ir.IsInvalidRule(err))

	_, err = sym.OnehotExpand("a", rule.Expansion{Buckets: buckets(str("k"))})
	assert.True(t, ir.IsInvalidRule(err), "string buckets on an int column")

	renamed, err := sym.Rename("b", "c_0")
	require.NoError(t, err)
	_, err = renamed.OnehotExpand("c", rule.Expansion{Buckets: buckets(str("k"))})
	assert.True(t, ir.IsInvalidRule(err), "expanded name collides with c_0")
	assert.Equal(t, 1, sym.Lineage().Len())
}

func TestFillna(t *testing.T) {
	mat, err := FromFrame(abcFrame(t))
	require.NoError(t, err)
	assert.Equal(t, 1, mat.Frame().MissingCount("b"))

	out, err := mat.Fillna("b", schema.NewFloat64(99))
	require.NoError(t, err)
	out, err = out.Fillna("a", schema.NewInt64(0))
	require.NoError(t, err)

	assert.Equal(t, mat.Schema().Names(), out.Schema().Names())
	assert.Equal(t, 0, out.Frame().MissingCount("a"))
	assert.Equal(t, 0, out.Frame().MissingCount("b"))
	assert.Equal(t, 1, out.Frame().MissingCount("c"))
	assert.True(t, out.NoMissing("b"))
	assert.False(t, out.NoMissing("c"))
	assert.Equal(t, 1, mat.Frame().MissingCount("b"), "input table stays unchanged")

	b, _ := out.Frame().Column("b")
	assert.Equal(t, "99", b[1].Text())
	assert.Equal(t, schema.Float32, b[1].Type())

	g := out.Lineage().Graph()
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, []ir.Ref{"b#1"}, g.Nodes[0].Outputs)
	assert.Equal(t, []ir.Ref{"a#0"}, g.Nodes[1].Inputs)
}

func TestFillnaErrors(t *testing.T) {
	sym, err := FromSchema(abcSchema())
	require.NoError(t, err)

	_, err = sym.Fillna("z", schema.NewFloat64(1))
	assert.True(t, ir.IsUnknownColumn(err))

	_, err = sym.Fillna("a", schema.NewString("x"))
	assert.True(t, ir.IsInvalidRule(err))

	_, err = sym.Fillna("a", schema.Null(schema.Int32))
	assert.True(t, ir.IsInvalidRule(err))

	assert.Equal(t, 0, sym.Lineage().Len())
}

func TestSelectRenamePassthrough(t *testing.T) {
	mat, err := FromFrame(abcFrame(t))
	require.NoError(t, err)

	sel, err := mat.Select([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sel.Schema().Names())
	assert.Equal(t, []ir.Ref{"c#1", "a#1"}, sel.Refs())
	assert.Equal(t, []string{"k", "1"}, sel.Frame().Text()[0])

	_, err = mat.Select([]string{"a", "a"})
	assert.True(t, ir.IsSchemaMismatch(err))
	_, err = mat.Select([]string{"q"})
	assert.True(t, ir.IsUnknownColumn(err))

	ren, err := sel.Rename("c", "category")
	require.NoError(t, err)
	assert.Equal(t, []string{"category", "a"}, ren.Schema().Names())
	assert.Equal(t, []ir.Ref{"category#0", "a#1"}, ren.Refs())
	_, err = ren.Rename("category", "a")
	assert.True(t, ir.IsSchemaMismatch(err))

	pt, err := ren.Passthrough()
	require.NoError(t, err)
	assert.Equal(t, []ir.Ref{"category#1", "a#2"}, pt.Refs())
	assert.True(t, pt.Frame().Equal(ren.Frame()))
}

func TestConcat(t *testing.T) {
	lin := NewLineage()
	left, err := lin.Symbolic(schema.MustNew("p", schema.Column{Name: "x", Type: schema.Int32}))
	require.NoError(t, err)
	right, err := lin.Symbolic(schema.MustNew("p", schema.Column{Name: "y", Type: schema.Str}))
	require.NoError(t, err)

	both, err := Concat(left, right)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, both.Schema().Names())
	g := lin.Graph()
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, ir.IRObject{"arity": ir.IRInt(2)}, g.Nodes[0].Params)

	_, err = Concat(left, left)
	assert.True(t, ir.IsSchemaMismatch(err))

	other, err := FromSchema(schema.MustNew("p", schema.Column{Name: "z", Type: schema.Str}))
	require.NoError(t, err)
	_, err = Concat(left, other)
	assert.True(t, ir.IsGraphIntegrity(err))

	foreign, err := lin.Symbolic(schema.MustNew("q", schema.Column{Name: "w", Type: schema.Str}))
	require.NoError(t, err)
	_, err = Concat(left, foreign)
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = lin.Symbolic(schema.MustNew("p", schema.Column{Name: "x", Type: schema.Int32}))
	assert.True(t, ir.IsGraphIntegrity(err), "root declared twice")
}

func TestConcatMaterializedRowCheck(t *testing.T) {
	lin := NewLineage()
	f1, err := FrameFromRows(schema.MustNew("p", schema.Column{Name: "x", Type: schema.Int32}), [][]string{{"1"}, {"2"}})
	require.NoError(t, err)
	f2, err := FrameFromRows(schema.MustNew("p", schema.Column{Name: "y", Type: schema.Int32}), [][]string{{"3"}})
	require.NoError(t, err)
	t1, err := lin.Materialized(f1)
	require.NoError(t, err)
	t2, err := lin.Materialized(f2)
	require.NoError(t, err)

	_, err = Concat(t1, t2)
	assert.True(t, ir.IsSchemaMismatch(err))
	assert.Equal(t, 0, lin.Len())
}

func TestPruneKeepsLineageIDs(t *testing.T) {
	lin := NewLineage()
	left, err := lin.Symbolic(schema.MustNew("p", schema.Column{Name: "x", Type: schema.Int32}))
	require.NoError(t, err)
	right, err := lin.Symbolic(schema.MustNew("p", schema.Column{Name: "y", Type: schema.Int32}))
	require.NoError(t, err)

	_, err = left.Fillna("x", schema.NewInt32(0))
	require.NoError(t, err)
	out, err := right.Fillna("y", schema.NewInt32(0))
	require.NoError(t, err)

	d, err := out.DumpServing("y")
	require.NoError(t, err)
	dec, err := graph.Decode(d)
	require.NoError(t, err)
	require.Len(t, dec.Graph.Nodes, 1)
	assert.Equal(t, int64(1), dec.Graph.Nodes[0].ID)
	assert.Equal(t, []ir.Ref{"y#0"}, dec.Graph.Roots)

	r, err := out.Runner().DumpServing("y")
	require.NoError(t, err)
	require.NoError(t, graph.CheckParity(d, r))
}

func TestRunnerEncodeDecodeAndReplayData(t *testing.T) {
	mat, err := FromFrame(abcFrame(t))
	require.NoError(t, err)
	filled, err := mat.Fillna("b", schema.NewFloat32(0))
	require.NoError(t, err)
	out := applyOnehot(t, filled)

	data, err := out.Runner().Encode()
	require.NoError(t, err)
	r, err := DecodeRunner(data)
	require.NoError(t, err)
	again, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
	assert.Equal(t, 5, r.Len())

	sources, err := r.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.True(t, abcSchema().Equal(sources[0]))

	src, err := FromFrame(abcFrame(t))
	require.NoError(t, err)
	replayed, err := r.Replay(src)
	require.NoError(t, err)
	assert.True(t, out.Frame().Equal(replayed.Frame()))

	d1, err := out.DumpServing("n")
	require.NoError(t, err)
	d2, err := r.DumpServing("n")
	require.NoError(t, err)
	assert.True(t, d1.Equal(d2))
}

func TestRunnerReplayRejectsWrongSources(t *testing.T) {
	tbl, err := FromSchema(abcSchema())
	require.NoError(t, err)
	out, err := tbl.Fillna("a", schema.NewInt32(1))
	require.NoError(t, err)
	r := out.Runner()

	other, err := FromSchema(schema.MustNew("alice", schema.Column{Name: "a", Type: schema.Int32}))
	require.NoError(t, err)
	_, err = r.Replay(other)
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = r.Replay()
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = r.Replay(out)
	assert.Error(t, err)
}

func TestDecodeRunnerRejects(t *testing.T) {
	for _, in := range []string{
		`{}`,
		`{"calls":[],"format":"other","version":"1"}`,
		`{"calls":[{"args":{},"inputs":[0],"op":"fillna"}],"format":"ruletrace/runner","version":"1"}`,
		`{"calls":[{"args":{},"inputs":[],"op":"scale"}],"format":"ruletrace/runner","version":"1"}`,
	} {
		_, err := DecodeRunner([]byte(in))
		assert.True(t, ir.IsGraphIntegrity(err), in)
	}
}

func TestNewFrameLayoutMismatch(t *testing.T) {
	s := abcSchema()
	_, err := NewFrame(s, [][]schema.Value{i32(1)})
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = NewFrame(s, [][]schema.Value{i32(1), {schema.NewFloat32(1)}, str("a", "b")})
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = NewFrame(s, [][]schema.Value{str("1"), {schema.NewFloat32(1)}, str("a")})
	assert.True(t, ir.IsSchemaMismatch(err))

	_, err = FrameFromRows(s, [][]string{{"x", "1", "a"}})
	assert.True(t, ir.IsSchemaMismatch(err))
}
