package harness

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/roach88/ruletrace/internal/apply"
	"github.com/roach88/ruletrace/internal/compiler"
	"github.com/roach88/ruletrace/internal/compute"
	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
	"github.com/roach88/ruletrace/internal/serving"
	"github.com/roach88/ruletrace/internal/store"
)

// Harness is the scenario execution engine.
type Harness struct {
	logger   *zap.Logger
	defaults compiler.Defaults
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to the store and the applier.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithDefaults sets the policies CUE rules fall back to.
func WithDefaults(d compiler.Defaults) Option {
	return func(h *Harness) { h.defaults = d }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Build the vertical table (symbolic, or materialized from rows)
// 2. Load the artifact and substitute it into the table
// 3. Store the artifact and every party's serving dump
// 4. Evaluate the expectations against the stored dumps
//
// A failure the scenario expects is a pass. The returned error is reserved
// for failures of the harness itself.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, s *Scenario) (*Result, error) {
	result := NewResult()

	schemas, err := schema.File{Parties: s.Parties}.Schemas()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	st, err := store.Open(":memory:", store.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	art, err := h.loadArtifact(s)
	if err != nil {
		return failure(result, s, err), nil
	}
	result.ArtifactID = art.ID()

	in, frames, err := buildTable(s, schemas)
	if err != nil {
		return failure(result, s, err), nil
	}

	out, err := apply.New(apply.WithLogger(h.logger)).Substitute(ctx, art, in)
	if err != nil {
		return failure(result, s, err), nil
	}
	if s.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected %s error, run succeeded", s.Expect.Error))
		return result, nil
	}

	if err := h.persist(ctx, st, s, art, out, result); err != nil {
		return nil, err
	}

	checkColumns(s, result)
	checkNoMissing(s, out, result)
	if s.Expect.Parity {
		checkParity(s, out, frames, result)
	}
	return result, nil
}

func (h *Harness) loadArtifact(s *Scenario) (*rule.Artifact, error) {
	if s.Artifact != "" {
		return rule.Load([]byte(s.Artifact))
	}
	src, err := os.ReadFile(s.Rule)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	compiled, err := compiler.CompileSource(s.Rule, src, h.defaults)
	if err != nil {
		return nil, err
	}
	if s.RuleName == "" {
		if len(compiled) != 1 {
			return nil, fmt.Errorf("rule file declares %d rules, rule_name is required", len(compiled))
		}
		return compiled[0].Artifact, nil
	}
	for _, c := range compiled {
		if c.Name == s.RuleName {
			return c.Artifact, nil
		}
	}
	return nil, fmt.Errorf("rule %s not declared in %s", s.RuleName, s.Rule)
}

// buildTable returns the input vertical table and, for materialized
// scenarios, the source frame of every party.
func buildTable(s *Scenario, schemas []schema.Schema) (*apply.VerticalTable, map[schema.Party]*compute.Frame, error) {
	if !s.Materialized() {
		vt, err := apply.SymbolicVertical(schemas)
		return vt, nil, err
	}
	frames := make([]*compute.Frame, len(schemas))
	byParty := make(map[schema.Party]*compute.Frame, len(schemas))
	for i, sc := range schemas {
		f, err := compute.FrameFromRows(sc, s.Rows[string(sc.Party())])
		if err != nil {
			return nil, nil, err
		}
		frames[i] = f
		byParty[sc.Party()] = f
	}
	vt, err := apply.MaterializedVertical(frames)
	return vt, byParty, err
}

// persist stores the artifact and every party's dump, then records the
// dumps as read back from the store.
func (h *Harness) persist(ctx context.Context, st *store.Store, s *Scenario, art *rule.Artifact, out *apply.VerticalTable, result *Result) error {
	artID, _, err := st.PutArtifact(ctx, art)
	if err != nil {
		return err
	}
	dumps, err := out.DumpServing(s.Name)
	if err != nil {
		return fmt.Errorf("dump %s: %w", s.Name, err)
	}
	for _, p := range out.Parties() {
		id, _, err := st.PutDump(ctx, p, artID, dumps[p])
		if err != nil {
			return err
		}
		rec, err := st.GetDump(ctx, id)
		if err != nil {
			return err
		}
		t, _ := out.Table(p)
		result.Dumps[p] = rec.Dump
		result.Columns[p] = t.Schema().Names()
	}
	return nil
}

// failure compares a run error with the expected error code.
// Compile errors count as INVALID_RULE.
func failure(result *Result, s *Scenario, err error) *Result {
	code, ok := ir.CodeOf(err)
	var ce *compiler.CompileError
	if !ok && errors.As(err, &ce) {
		code, ok = ir.CodeInvalidRule, true
	}
	switch {
	case s.Expect.Error == "":
		result.AddError(fmt.Sprintf("unexpected error: %v", err))
	case !ok || string(code) != s.Expect.Error:
		result.AddError(fmt.Sprintf("expected %s error, got: %v", s.Expect.Error, err))
	}
	return result
}

func checkColumns(s *Scenario, result *Result) {
	for party, want := range s.Expect.Columns {
		got, ok := result.Columns[schema.Party(party)]
		if !ok {
			result.AddError(fmt.Sprintf("columns: unknown party %s", party))
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			result.AddError(fmt.Sprintf("columns[%s] mismatch (-want +got):\n%s", party, diff))
		}
	}
}

func checkNoMissing(s *Scenario, out *apply.VerticalTable, result *Result) {
	for _, col := range s.Expect.NoMissing {
		found := false
		for _, p := range out.Parties() {
			t, _ := out.Table(p)
			if !t.Schema().Has(col) {
				continue
			}
			found = true
			if f := t.Frame(); f != nil {
				if n := f.MissingCount(col); n > 0 {
					result.AddError(fmt.Sprintf("no_missing: %s.%s has %d missing values", p, col, n))
				}
			} else if !t.NoMissing(col) {
				result.AddError(fmt.Sprintf("no_missing: %s.%s was never filled", p, col))
			}
		}
		if !found {
			result.AddError(fmt.Sprintf("no_missing: column %s not found", col))
		}
	}
}

// checkParity verifies that every party's dump equals its runner's dump and,
// with source frames, that the serving program reproduces the output rows.
func checkParity(s *Scenario, out *apply.VerticalTable, frames map[schema.Party]*compute.Frame, result *Result) {
	for _, p := range out.Parties() {
		t, _ := out.Table(p)
		d := result.Dumps[p]

		rd, err := t.Runner().DumpServing(s.Name)
		if err != nil {
			result.AddError(fmt.Sprintf("parity[%s]: runner dump: %v", p, err))
			continue
		}
		if err := graph.CheckParity(d, rd); err != nil {
			result.AddError(fmt.Sprintf("parity[%s]: %v", p, err))
		}

		src, ok := frames[p]
		if !ok {
			continue
		}
		prog, err := serving.Parse(d)
		if err != nil {
			result.AddError(fmt.Sprintf("parity[%s]: parse dump: %v", p, err))
			continue
		}
		rows := make([]map[string]schema.Value, src.Rows())
		for r := range rows {
			rows[r] = src.Row(r)
		}
		served, err := prog.EvalBatch(rows)
		if err != nil {
			result.AddError(fmt.Sprintf("parity[%s]: serve: %v", p, err))
			continue
		}
		want := t.Frame()
		for r, row := range served {
			for name, v := range want.Row(r) {
				if got, ok := row[name]; !ok || !got.Equal(v) {
					result.AddError(fmt.Sprintf("parity[%s]: row %d column %s: served %s, applied %s", p, r, name, got.Text(), v.Text()))
				}
			}
		}
	}
}
