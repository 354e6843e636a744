// Package graph accumulates traced operator applications into an acyclic
// compute graph and serializes graphs into the serving wire format.
//
// The Builder is an arena: nodes are stored in append order and their id is
// their position. Edges are resolved by ref name, never by pointer identity,
// so serialization depends only on the call sequence.
package graph

import (
	"slices"

	"github.com/roach88/ruletrace/internal/ir"
)

// Builder accumulates nodes for one lineage. Not safe for concurrent use:
// tracing a lineage is sequential by construction.
type Builder struct {
	roots    []ir.Ref
	nodes    []ir.Node
	visible  map[ir.Ref]bool
	versions map[string]int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		visible:  make(map[ir.Ref]bool),
		versions: make(map[string]int),
	}
}

// DeclareRoot registers an external input column and returns its ref
// (version 0). A column may be declared once.
func (b *Builder) DeclareRoot(column string) (ir.Ref, error) {
	if column == "" {
		return "", ir.GraphIntegrity("root column has an empty name")
	}
	if _, ok := b.versions[column]; ok {
		return "", ir.GraphIntegrity("root %q already declared in this lineage", column)
	}
	ref := ir.NewRef(column, 0)
	b.versions[column] = 0
	b.visible[ref] = true
	b.roots = append(b.roots, ref)
	return ref, nil
}

// Append records one operator application. Every input must already be
// visible (a root or an earlier output). Output refs are allocated here, one
// fresh version per output column, so a ref is never produced twice.
func (b *Builder) Append(op ir.OpKind, inputs []ir.Ref, outputColumns []string, params ir.IRObject) (ir.Node, error) {
	if !op.Valid() {
		return ir.Node{}, ir.GraphIntegrity("unknown operator %s", op)
	}
	for _, in := range inputs {
		if !b.visible[in] {
			return ir.Node{}, ir.GraphIntegrity("%s input %q is not defined yet", op, in)
		}
	}
	seen := make(map[string]bool, len(outputColumns))
	for _, c := range outputColumns {
		if c == "" {
			return ir.Node{}, ir.GraphIntegrity("%s output has an empty name", op)
		}
		if seen[c] {
			return ir.Node{}, ir.GraphIntegrity("%s produces column %q twice", op, c)
		}
		seen[c] = true
	}

	outputs := make([]ir.Ref, len(outputColumns))
	for i, c := range outputColumns {
		v := 0
		if last, ok := b.versions[c]; ok {
			v = last + 1
		}
		b.versions[c] = v
		outputs[i] = ir.NewRef(c, v)
		b.visible[outputs[i]] = true
	}
	if params == nil {
		params = ir.IRObject{}
	}
	n := ir.Node{
		ID:      int64(len(b.nodes)),
		Op:      op,
		Inputs:  slices.Clone(inputs),
		Outputs: outputs,
		Params:  params,
	}
	b.nodes = append(b.nodes, n)
	return n, nil
}

// Checkpoint marks a builder state that Rewind can return to.
type Checkpoint struct {
	Roots int
	Nodes int
}

// Checkpoint returns the current state.
func (b *Builder) Checkpoint() Checkpoint {
	return Checkpoint{Roots: len(b.roots), Nodes: len(b.nodes)}
}

// Rewind drops every root and node added after cp. Ref versions are
// released, so the next Append allocates the ids and versions it would
// have allocated at cp.
func (b *Builder) Rewind(cp Checkpoint) error {
	if cp.Nodes < 0 || cp.Nodes > len(b.nodes) || cp.Roots < 0 || cp.Roots > len(b.roots) {
		return ir.GraphIntegrity("checkpoint (%d roots, %d nodes) is ahead of the builder", cp.Roots, cp.Nodes)
	}
	for i := len(b.nodes) - 1; i >= cp.Nodes; i-- {
		outs := b.nodes[i].Outputs
		for j := len(outs) - 1; j >= 0; j-- {
			ref := outs[j]
			delete(b.visible, ref)
			if v := ref.Version(); v > 0 {
				b.versions[ref.Column()] = v - 1
			} else {
				delete(b.versions, ref.Column())
			}
		}
	}
	b.nodes = b.nodes[:cp.Nodes]
	for _, ref := range b.roots[cp.Roots:] {
		delete(b.visible, ref)
		delete(b.versions, ref.Column())
	}
	b.roots = b.roots[:cp.Roots]
	return nil
}

// Visible reports whether ref is a root or an output of an appended node.
func (b *Builder) Visible(ref ir.Ref) bool {
	return b.visible[ref]
}

// Len returns the number of appended nodes.
func (b *Builder) Len() int { return len(b.nodes) }

// Graph returns a snapshot of the accumulated graph.
func (b *Builder) Graph() ir.Graph {
	return ir.Graph{
		Roots: slices.Clone(b.roots),
		Nodes: slices.Clone(b.nodes),
	}
}

// Validate checks that g is topologically consistent: every input is a
// root or an output of an earlier node, and no ref is produced twice.
func Validate(g ir.Graph) error {
	defined := make(map[ir.Ref]bool, len(g.Roots))
	for _, r := range g.Roots {
		if defined[r] {
			return ir.GraphIntegrity("root %q declared twice", r)
		}
		defined[r] = true
	}
	var lastID int64 = -1
	for _, n := range g.Nodes {
		if n.ID <= lastID {
			return ir.GraphIntegrity("node ids not increasing at %d", n.ID)
		}
		lastID = n.ID
		if !n.Op.Valid() {
			return ir.GraphIntegrity("node %d: unknown operator %s", n.ID, n.Op)
		}
		for _, in := range n.Inputs {
			if !defined[in] {
				return ir.GraphIntegrity("node %d: input %q is not defined before use", n.ID, in)
			}
		}
		for _, out := range n.Outputs {
			if defined[out] {
				return ir.GraphIntegrity("node %d: ref %q produced twice", n.ID, out)
			}
			defined[out] = true
		}
	}
	return nil
}

// Prune keeps the nodes that targets transitively depend on and the roots
// they consume, preserving order and ids.
func Prune(g ir.Graph, targets []ir.Ref) ir.Graph {
	needed := make(map[ir.Ref]bool, len(targets))
	for _, t := range targets {
		needed[t] = true
	}
	keep := make([]bool, len(g.Nodes))
	for i := len(g.Nodes) - 1; i >= 0; i-- {
		n := g.Nodes[i]
		if !slices.ContainsFunc(n.Outputs, func(r ir.Ref) bool { return needed[r] }) {
			continue
		}
		keep[i] = true
		for _, in := range n.Inputs {
			needed[in] = true
		}
	}
	var out ir.Graph
	for _, r := range g.Roots {
		if needed[r] {
			out.Roots = append(out.Roots, r)
		}
	}
	for i, n := range g.Nodes {
		if keep[i] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	return out
}
