// Package apply substitutes rule artifacts into tables. A rule is applied
// column by column in ascending column-name order through the compute
// operators, so the same rule yields the same trace on data and on schemas.
//
// Application is all-or-nothing: every column is resolved and type-checked
// before the first operator runs, and any failure discards the whole output.
package apply

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ruletrace/internal/compute"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// Applier applies rules to tables.
type Applier struct {
	logger *zap.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the applier's logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Applier.
func New(opts ...Option) *Applier {
	a := &Applier{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply applies r to a single table. Every rule column must exist in t.
func (a *Applier) Apply(r rule.Rule, t compute.Table) (compute.Table, error) {
	if err := rule.Validate(r); err != nil {
		return nil, err
	}
	cols := r.ColumnNames()
	if err := check(r, t.Schema(), cols); err != nil {
		return nil, err
	}
	marks := markLineages([]compute.Table{t})
	out, err := applyColumns(context.Background(), r, t, cols)
	if err != nil {
		a.rollback(marks)
		return nil, err
	}
	a.logApplied(r, t, len(cols))
	return out, nil
}

// ApplyVertical applies r across parties. Columns are resolved through the
// registry first, so an unknown column fails before any work. Parties run
// concurrently; the first error cancels the others and no output is
// returned. Parties without rule columns pass through untouched.
func (a *Applier) ApplyVertical(ctx context.Context, r rule.Rule, vt *VerticalTable) (*VerticalTable, error) {
	if err := rule.Validate(r); err != nil {
		return nil, err
	}
	groups, err := vt.Registry().Partition(r.ColumnNames())
	if err != nil {
		return nil, err
	}
	for p, cols := range groups {
		t, _ := vt.Table(p)
		if err := check(r, t.Schema(), cols); err != nil {
			return nil, err
		}
	}

	var (
		mu      sync.Mutex
		updated = make(map[schema.Party]compute.Table, len(groups))
	)
	tables := make([]compute.Table, 0, len(groups))
	for _, p := range vt.Parties() {
		if _, ok := groups[p]; ok {
			t, _ := vt.Table(p)
			tables = append(tables, t)
		}
	}
	marks := markLineages(tables)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range vt.Parties() {
		cols, ok := groups[p]
		if !ok {
			continue
		}
		t, _ := vt.Table(p)
		g.Go(func() error {
			out, err := applyColumns(gctx, r, t, cols)
			if err != nil {
				return annotateParty(err, p)
			}
			mu.Lock()
			updated[p] = out
			mu.Unlock()
			a.logApplied(r, t, len(cols))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.rollback(marks)
		a.logger.Warn("rule application aborted",
			zap.String("kind", string(r.Kind())),
			zap.Error(err),
		)
		return nil, err
	}
	return vt.with(updated)
}

// Substitute applies the rule carried by an artifact.
func (a *Applier) Substitute(ctx context.Context, art *rule.Artifact, vt *VerticalTable) (*VerticalTable, error) {
	if art == nil {
		return nil, ir.InvalidRule("", "nil artifact")
	}
	out, err := a.ApplyVertical(ctx, art.Rule(), vt)
	if err != nil {
		return nil, fmt.Errorf("substitute artifact %s: %w", shortID(art.ID()), err)
	}
	return out, nil
}

// ApplyAll substitutes artifacts in order, feeding each output to the next.
// A failing artifact also discards the traces of the ones before it.
func (a *Applier) ApplyAll(ctx context.Context, arts []*rule.Artifact, vt *VerticalTable) (*VerticalTable, error) {
	tables := make([]compute.Table, 0, len(vt.order))
	for _, p := range vt.order {
		tables = append(tables, vt.tables[p])
	}
	marks := markLineages(tables)

	cur := vt
	for _, art := range arts {
		next, err := a.Substitute(ctx, art, cur)
		if err != nil {
			a.rollback(marks)
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (a *Applier) logApplied(r rule.Rule, t compute.Table, columns int) {
	a.logger.Info("rule applied",
		zap.String("party", string(t.Schema().Party())),
		zap.String("kind", string(r.Kind())),
		zap.Int("columns", columns),
		zap.Stringer("mode", t.Mode()),
	)
}

// markLineages records the state of every distinct lineage behind tables.
func markLineages(tables []compute.Table) map[*compute.Lineage]compute.Mark {
	marks := make(map[*compute.Lineage]compute.Mark, len(tables))
	for _, t := range tables {
		lin := t.Lineage()
		if _, ok := marks[lin]; !ok {
			marks[lin] = lin.Mark()
		}
	}
	return marks
}

// rollback discards the nodes a failed application traced, so the input
// tables keep the lineage they had before the call.
func (a *Applier) rollback(marks map[*compute.Lineage]compute.Mark) {
	for lin, m := range marks {
		if err := lin.Rollback(m); err != nil {
			a.logger.Error("lineage rollback failed", zap.Error(err))
		}
	}
}

func check(r rule.Rule, s schema.Schema, cols []string) error {
	for _, col := range cols {
		c, err := s.Require(col)
		if err != nil {
			return err
		}
		if err := rule.CheckColumn(r, c); err != nil {
			return annotateParty(err, s.Party())
		}
	}
	return nil
}

func applyColumns(ctx context.Context, r rule.Rule, t compute.Table, cols []string) (compute.Table, error) {
	cur := t
	for _, col := range cols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch r := r.(type) {
		case rule.FillnaRule:
			cur, err = cur.Fillna(col, r.Fills[col].Value)
		case rule.OnehotRule:
			cur, err = cur.OnehotExpand(col, r.Expansion(col))
		default:
			err = ir.InvalidRule(col, "unsupported rule %T", r)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func annotateParty(err error, p schema.Party) error {
	var e *ir.Error
	if errors.As(err, &e) && e.Party == "" {
		return e.WithParty(string(p))
	}
	return err
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
