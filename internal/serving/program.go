// Package serving evaluates serving dumps. A Program is rebuilt from the
// dump bytes alone and runs row by row, without the rules or the tracer that
// produced it.
package serving

import (
	"fmt"
	"strconv"

	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// instr is one decoded graph node.
type instr struct {
	node ir.Node
	fill schema.Value
	exp  rule.Expansion
}

// Program is an executable serving graph.
type Program struct {
	name    string
	inputs  []graph.Column
	outputs []graph.Column
	code    []instr
}

// Parse decodes d and prepares it for evaluation.
func Parse(d *graph.Dump) (*Program, error) {
	dec, err := graph.Decode(d)
	if err != nil {
		return nil, err
	}
	roots := make(map[ir.Ref]bool, len(dec.Graph.Roots))
	for _, r := range dec.Graph.Roots {
		roots[r] = true
	}
	for _, c := range dec.Inputs {
		if !roots[c.Ref] {
			return nil, ir.GraphIntegrity("input %s is not a graph root", c.Ref)
		}
	}
	p := &Program{name: dec.Name, inputs: dec.Inputs, outputs: dec.Outputs}
	for _, n := range dec.Graph.Nodes {
		in, err := compile(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.ID, err)
		}
		p.code = append(p.code, in)
	}
	return p, nil
}

func compile(n ir.Node) (instr, error) {
	in := instr{node: n}
	switch n.Op {
	case ir.OpSelect, ir.OpRename, ir.OpConcat, ir.OpPassthrough:
		if len(n.Inputs) != len(n.Outputs) {
			return instr{}, ir.GraphIntegrity("%s maps %d inputs to %d outputs", n.Op, len(n.Inputs), len(n.Outputs))
		}
	case ir.OpFillna:
		if len(n.Inputs) != 1 || len(n.Outputs) != 1 {
			return instr{}, ir.GraphIntegrity("fillna must map one input to one output")
		}
		v, err := schema.ValueFromIR(n.Params["value"])
		if err != nil {
			return instr{}, ir.GraphIntegrity("fillna value: %v", err)
		}
		in.fill = v
	case ir.OpOnehotExpand:
		if len(n.Inputs) != 1 {
			return instr{}, ir.GraphIntegrity("onehot_expand must have one input")
		}
		e, err := rule.DecodeExpansion(n.Inputs[0].Column(), n.Params)
		if err != nil {
			return instr{}, err
		}
		if len(e.Emitted()) != len(n.Outputs) {
			return instr{}, ir.GraphIntegrity("onehot_expand emits %d buckets into %d outputs", len(e.Emitted()), len(n.Outputs))
		}
		in.exp = e
	default:
		return instr{}, ir.GraphIntegrity("cannot evaluate %s", n.Op)
	}
	return in, nil
}

// Name is the dump name.
func (p *Program) Name() string { return p.name }

// Inputs lists the columns a row must provide.
func (p *Program) Inputs() []graph.Column {
	return append([]graph.Column(nil), p.inputs...)
}

// Outputs lists the columns Eval produces.
func (p *Program) Outputs() []graph.Column {
	return append([]graph.Column(nil), p.outputs...)
}

// Eval runs the program on one row keyed by input column name. Every input
// must be present with its declared dtype; extra keys are ignored.
func (p *Program) Eval(row map[string]schema.Value) (map[string]schema.Value, error) {
	env := make(map[ir.Ref]schema.Value, len(p.inputs)+len(p.code))
	for _, c := range p.inputs {
		v, ok := row[c.Name]
		if !ok {
			return nil, ir.UnknownColumn(c.Name, "row has no value for input column")
		}
		if v.Type() != c.Type {
			return nil, ir.SchemaMismatch(c.Name, "row value is %s, input is %s", v.Type(), c.Type)
		}
		env[c.Ref] = v
	}
	for _, in := range p.code {
		if err := in.exec(env); err != nil {
			return nil, err
		}
	}
	out := make(map[string]schema.Value, len(p.outputs))
	for _, c := range p.outputs {
		v, ok := env[c.Ref]
		if !ok {
			return nil, ir.GraphIntegrity("output %s was never computed", c.Ref)
		}
		out[c.Name] = v
	}
	return out, nil
}

// EvalBatch runs Eval on every row. The error names the failing row.
func (p *Program) EvalBatch(rows []map[string]schema.Value) ([]map[string]schema.Value, error) {
	out := make([]map[string]schema.Value, len(rows))
	for i, row := range rows {
		res, err := p.Eval(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

func (in instr) exec(env map[ir.Ref]schema.Value) error {
	n := in.node
	args := make([]schema.Value, len(n.Inputs))
	for i, r := range n.Inputs {
		v, ok := env[r]
		if !ok {
			return ir.GraphIntegrity("node %d reads undefined ref %s", n.ID, r)
		}
		args[i] = v
	}
	switch n.Op {
	case ir.OpFillna:
		v := args[0]
		if v.IsMissing() {
			v = in.fill
		}
		env[n.Outputs[0]] = v
	case ir.OpOnehotExpand:
		hit := in.exp.Match(args[0])
		if hit < 0 && in.exp.Unmatched == rule.UnmatchedError {
			err := ir.InvalidRule(n.Inputs[0].Column(), "value %s matches no bucket", args[0].Text())
			err.Details = map[string]string{"node": strconv.FormatInt(n.ID, 10)}
			return err
		}
		for j, b := range in.exp.Emitted() {
			v := schema.NewFloat32(0)
			if b == hit {
				v = schema.NewFloat32(1)
			}
			env[n.Outputs[j]] = v
		}
	default:
		for i, r := range n.Outputs {
			env[r] = args[i]
		}
	}
	return nil
}
