// Package compute is the tracer: one operator surface over tables that
// either carry data (materialized) or only a schema (symbolic). Every
// operator application appends exactly one node to the lineage's graph and
// one entry to its call log, so the same call sequence yields the same
// graph in both modes.
//
// Tables are immutable. Operators return new tables; the inputs stay valid.
package compute

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

const opSource = "source"

// Call is one recorded table-producing call. The table created by a call is
// identified by the call's index in the log.
type Call struct {
	Op     string
	Inputs []int
	Args   ir.IRObject
}

// Lineage owns the graph builder and call log shared by every table derived
// from the same sources. Independent lineages share nothing.
type Lineage struct {
	mu      sync.Mutex
	builder *graph.Builder
	calls   []Call
	roots   map[ir.Ref]graph.Column
	logger  *zap.Logger
}

// Option configures a Lineage.
type Option func(*Lineage)

// WithLogger sets the logger used for per-node debug events.
func WithLogger(l *zap.Logger) Option {
	return func(lin *Lineage) {
		if l != nil {
			lin.logger = l
		}
	}
}

// NewLineage creates an empty lineage.
func NewLineage(opts ...Option) *Lineage {
	lin := &Lineage{
		builder: graph.NewBuilder(),
		roots:   make(map[ir.Ref]graph.Column),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(lin)
	}
	return lin
}

// Symbolic declares s as a schema-only source of the lineage.
func (lin *Lineage) Symbolic(s schema.Schema) (Table, error) {
	c, err := lin.declare(s)
	if err != nil {
		return nil, err
	}
	return &Symbolic{core: c}, nil
}

// Materialized declares f as a data-carrying source of the lineage.
func (lin *Lineage) Materialized(f *Frame) (Table, error) {
	c, err := lin.declare(f.Schema())
	if err != nil {
		return nil, err
	}
	return &Materialized{core: c, frame: f}, nil
}

// FromSchema starts a new lineage from a schema-only source.
func FromSchema(s schema.Schema, opts ...Option) (Table, error) {
	return NewLineage(opts...).Symbolic(s)
}

// FromFrame starts a new lineage from a data source.
func FromFrame(f *Frame, opts ...Option) (Table, error) {
	return NewLineage(opts...).Materialized(f)
}

// Len returns the number of nodes traced so far.
func (lin *Lineage) Len() int {
	lin.mu.Lock()
	defer lin.mu.Unlock()
	return lin.builder.Len()
}

// Graph returns a snapshot of the full lineage graph.
func (lin *Lineage) Graph() ir.Graph {
	lin.mu.Lock()
	defer lin.mu.Unlock()
	return lin.builder.Graph()
}

// Mark is a lineage state that Rollback can return to.
type Mark struct {
	graph graph.Checkpoint
	calls int
}

// Mark returns the current state of the lineage.
func (lin *Lineage) Mark() Mark {
	lin.mu.Lock()
	defer lin.mu.Unlock()
	return Mark{graph: lin.builder.Checkpoint(), calls: len(lin.calls)}
}

// Rollback discards every node, call and source recorded after m. Tables
// derived after m must not be used afterwards.
func (lin *Lineage) Rollback(m Mark) error {
	lin.mu.Lock()
	defer lin.mu.Unlock()

	roots := lin.builder.Graph().Roots
	if m.calls > len(lin.calls) || m.graph.Roots > len(roots) {
		return ir.GraphIntegrity("mark (%d calls) is ahead of the lineage", m.calls)
	}
	if err := lin.builder.Rewind(m.graph); err != nil {
		return err
	}
	dropped := roots[m.graph.Roots:]
	for _, ref := range dropped {
		delete(lin.roots, ref)
	}
	lin.logger.Debug("lineage rolled back",
		zap.Int("nodes", m.graph.Nodes),
		zap.Int("calls_dropped", len(lin.calls)-m.calls),
	)
	lin.calls = lin.calls[:m.calls]
	return nil
}

func (lin *Lineage) declare(s schema.Schema) (core, error) {
	lin.mu.Lock()
	defer lin.mu.Unlock()

	for _, name := range s.Names() {
		if lin.builder.Visible(ir.NewRef(name, 0)) {
			return core{}, ir.GraphIntegrity("source column %q already declared in this lineage", name)
		}
	}
	refs := make([]ir.Ref, s.Len())
	for i := range s.Len() {
		col := s.At(i)
		ref, err := lin.builder.DeclareRoot(col.Name)
		if err != nil {
			return core{}, err
		}
		refs[i] = ref
		lin.roots[ref] = graph.Column{Name: col.Name, Ref: ref, Type: col.Type}
	}
	lin.calls = append(lin.calls, Call{Op: opSource, Args: ir.IRObject{"schema": s.IR()}})
	lin.logger.Debug("source declared",
		zap.String("party", string(s.Party())),
		zap.Int("columns", s.Len()),
	)
	return core{lin: lin, id: len(lin.calls) - 1, schema: s, refs: refs}, nil
}

// commit appends st's node and call, then derives the resulting table core.
func (lin *Lineage) commit(st step) (core, error) {
	lin.mu.Lock()
	defer lin.mu.Unlock()

	node, err := lin.builder.Append(st.op, st.inputs, st.outCols, st.params)
	if err != nil {
		return core{}, err
	}
	produced := make(map[string]ir.Ref, len(node.Outputs))
	for i, c := range st.outCols {
		produced[c] = node.Outputs[i]
	}
	refs := make([]ir.Ref, st.schema.Len())
	for i, name := range st.schema.Names() {
		if r, ok := produced[name]; ok {
			refs[i] = r
			continue
		}
		r, ok := st.carry[name]
		if !ok {
			return core{}, ir.GraphIntegrity("%s leaves column %q without a ref", st.op, name)
		}
		refs[i] = r
	}
	lin.calls = append(lin.calls, Call{Op: st.op.String(), Inputs: st.inTables, Args: st.args})
	lin.logger.Debug("node traced",
		zap.Int64("node", node.ID),
		zap.Stringer("op", st.op),
		zap.Int("inputs", len(node.Inputs)),
		zap.Int("outputs", len(node.Outputs)),
	)
	return core{
		lin:       lin,
		id:        len(lin.calls) - 1,
		schema:    st.schema,
		refs:      refs,
		noMissing: st.noMissing,
	}, nil
}

func (lin *Lineage) runner(id int) *Runner {
	lin.mu.Lock()
	defer lin.mu.Unlock()
	calls := make([]Call, id+1)
	for i, c := range lin.calls[:id+1] {
		calls[i] = Call{Op: c.Op, Inputs: slices.Clone(c.Inputs), Args: c.Args}
	}
	return &Runner{calls: calls}
}

func (lin *Lineage) isSource(id int) bool {
	lin.mu.Lock()
	defer lin.mu.Unlock()
	return lin.calls[id].Op == opSource
}

func (lin *Lineage) rootColumns(refs []ir.Ref) []graph.Column {
	lin.mu.Lock()
	defer lin.mu.Unlock()
	out := make([]graph.Column, len(refs))
	for i, r := range refs {
		out[i] = lin.roots[r]
	}
	return out
}
