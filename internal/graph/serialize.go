package graph

import (
	"bytes"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// Column is one entry of a dump's input or output schema.
type Column struct {
	Name string
	Ref  ir.Ref
	Type schema.DType
}

// Dump is the serving wire format: canonical JSON documents for the graph
// and its input and output schemas.
type Dump struct {
	Name    string
	Graph   []byte
	Inputs  []byte
	Outputs []byte
}

// Serialize renders g with its input and output columns. It is a pure
// function of its arguments. Every input must be a root of g and every
// output must be defined by g.
func Serialize(name string, g ir.Graph, inputs, outputs []Column) (*Dump, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}
	defined := make(map[ir.Ref]bool)
	roots := make(map[ir.Ref]bool, len(g.Roots))
	for _, r := range g.Roots {
		roots[r] = true
		defined[r] = true
	}
	for _, n := range g.Nodes {
		for _, o := range n.Outputs {
			defined[o] = true
		}
	}
	for _, c := range inputs {
		if !roots[c.Ref] {
			return nil, ir.GraphIntegrity("input %q is not a graph root", c.Ref)
		}
	}
	for _, c := range outputs {
		if !defined[c.Ref] {
			return nil, ir.GraphIntegrity("output %q is not defined by the graph", c.Ref)
		}
	}

	graphDoc, err := ir.MarshalCanonical(GraphIR(name, g))
	if err != nil {
		return nil, fmt.Errorf("serialize graph: %w", err)
	}
	inDoc, err := ir.MarshalCanonical(ColumnsIR(inputs))
	if err != nil {
		return nil, fmt.Errorf("serialize inputs: %w", err)
	}
	outDoc, err := ir.MarshalCanonical(ColumnsIR(outputs))
	if err != nil {
		return nil, fmt.Errorf("serialize outputs: %w", err)
	}
	return &Dump{Name: name, Graph: graphDoc, Inputs: inDoc, Outputs: outDoc}, nil
}

// GraphIR renders {"name","nodes","roots","version"}.
func GraphIR(name string, g ir.Graph) ir.IRObject {
	nodes := make(ir.IRArray, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = n.IR()
	}
	roots := make(ir.IRArray, len(g.Roots))
	for i, r := range g.Roots {
		roots[i] = ir.IRString(r)
	}
	return ir.IRObject{
		"name":    ir.IRString(name),
		"nodes":   nodes,
		"roots":   roots,
		"version": ir.IRString(ir.IRVersion),
	}
}

// ColumnsIR renders {"columns":[{"name","ref","type"}...]}.
func ColumnsIR(cols []Column) ir.IRObject {
	arr := make(ir.IRArray, len(cols))
	for i, c := range cols {
		arr[i] = ir.IRObject{
			"name": ir.IRString(c.Name),
			"ref":  ir.IRString(c.Ref),
			"type": ir.IRString(c.Type),
		}
	}
	return ir.IRObject{"columns": arr}
}

// Equal compares two dumps byte for byte.
func (d *Dump) Equal(o *Dump) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.Name == o.Name &&
		bytes.Equal(d.Graph, o.Graph) &&
		bytes.Equal(d.Inputs, o.Inputs) &&
		bytes.Equal(d.Outputs, o.Outputs)
}

// Text joins the three documents, one per line. Used for golden files and
// CLI output.
func (d *Dump) Text() []byte {
	var buf bytes.Buffer
	for _, part := range [][]byte{d.Graph, d.Inputs, d.Outputs} {
		buf.Write(part)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ID is the content hash of the dump.
func (d *Dump) ID() string {
	var buf bytes.Buffer
	for _, part := range [][]byte{d.Graph, d.Inputs, d.Outputs} {
		buf.Write(part)
		buf.WriteByte(0x00)
	}
	return ir.HashCanonical(ir.DomainDump, buf.Bytes())
}

// Decoded is the structured form of a Dump.
type Decoded struct {
	Name    string
	Graph   ir.Graph
	Inputs  []Column
	Outputs []Column
}

// Decode parses a dump and validates its graph.
func Decode(d *Dump) (*Decoded, error) {
	name, g, err := DecodeGraph(d.Graph)
	if err != nil {
		return nil, err
	}
	if name != d.Name {
		return nil, ir.GraphIntegrity("dump name %q disagrees with graph name %q", d.Name, name)
	}
	ins, err := DecodeColumns(d.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outs, err := DecodeColumns(d.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	return &Decoded{Name: name, Graph: g, Inputs: ins, Outputs: outs}, nil
}

// DecodeGraph parses a graph document.
func DecodeGraph(data []byte) (string, ir.Graph, error) {
	obj, err := ir.UnmarshalIRObject(data)
	if err != nil {
		return "", ir.Graph{}, ir.GraphIntegrity("malformed graph document: %v", err)
	}
	if err := obj.OnlyKeys("name", "nodes", "roots", "version"); err != nil {
		return "", ir.Graph{}, ir.GraphIntegrity("graph document: %v", err)
	}
	version, err := obj.String("version")
	if err != nil {
		return "", ir.Graph{}, ir.GraphIntegrity("graph document: %v", err)
	}
	if version != ir.IRVersion {
		return "", ir.Graph{}, ir.GraphIntegrity("unsupported graph version %q", version)
	}
	name, err := obj.String("name")
	if err != nil {
		return "", ir.Graph{}, ir.GraphIntegrity("graph document: %v", err)
	}
	rootNames, err := obj.StringList("roots")
	if err != nil {
		return "", ir.Graph{}, ir.GraphIntegrity("graph document: %v", err)
	}
	var g ir.Graph
	for _, s := range rootNames {
		r, err := ir.ParseRef(s)
		if err != nil {
			return "", ir.Graph{}, ir.GraphIntegrity("roots: %v", err)
		}
		g.Roots = append(g.Roots, r)
	}
	nodes, err := obj.Array("nodes")
	if err != nil {
		return "", ir.Graph{}, ir.GraphIntegrity("graph document: %v", err)
	}
	for i, raw := range nodes {
		no, ok := raw.(ir.IRObject)
		if !ok {
			return "", ir.Graph{}, ir.GraphIntegrity("nodes[%d] is not an object", i)
		}
		n, err := ir.NodeFromIR(no)
		if err != nil {
			return "", ir.Graph{}, ir.GraphIntegrity("nodes[%d]: %v", i, err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := Validate(g); err != nil {
		return "", ir.Graph{}, err
	}
	return name, g, nil
}

// DecodeColumns parses an input or output schema document.
func DecodeColumns(data []byte) ([]Column, error) {
	obj, err := ir.UnmarshalIRObject(data)
	if err != nil {
		return nil, ir.SchemaMismatch("", "malformed columns document: %v", err)
	}
	arr, err := obj.Array("columns")
	if err != nil {
		return nil, ir.SchemaMismatch("", "columns document: %v", err)
	}
	out := make([]Column, len(arr))
	for i, raw := range arr {
		co, ok := raw.(ir.IRObject)
		if !ok {
			return nil, ir.SchemaMismatch("", "columns[%d] is not an object", i)
		}
		name, err := co.String("name")
		if err != nil {
			return nil, ir.SchemaMismatch("", "columns[%d]: %v", i, err)
		}
		refName, err := co.String("ref")
		if err != nil {
			return nil, ir.SchemaMismatch(name, "columns[%d]: %v", i, err)
		}
		ref, err := ir.ParseRef(refName)
		if err != nil {
			return nil, ir.SchemaMismatch(name, "columns[%d]: %v", i, err)
		}
		typeName, err := co.String("type")
		if err != nil {
			return nil, ir.SchemaMismatch(name, "columns[%d]: %v", i, err)
		}
		dt, err := schema.ParseDType(typeName)
		if err != nil {
			return nil, ir.SchemaMismatch(name, "columns[%d]: %v", i, err)
		}
		out[i] = Column{Name: name, Ref: ref, Type: dt}
	}
	return out, nil
}

// CheckParity returns nil when want and got are byte-identical, and a
// GraphIntegrityError carrying a structural diff otherwise.
func CheckParity(want, got *Dump) error {
	if want.Equal(got) {
		return nil
	}
	diff := structuralDiff(want, got)
	err := ir.GraphIntegrity("serving dumps differ")
	err.Details = map[string]string{"diff": diff}
	return err
}

func structuralDiff(want, got *Dump) string {
	if want == nil || got == nil {
		return fmt.Sprintf("nil dump: want=%v got=%v", want != nil, got != nil)
	}
	dw, errW := Decode(want)
	dg, errG := Decode(got)
	if errW != nil || errG != nil {
		return cmp.Diff(dumpStrings(want), dumpStrings(got))
	}
	return cmp.Diff(dw, dg)
}

func dumpStrings(d *Dump) []string {
	return []string{d.Name, string(d.Graph), string(d.Inputs), string(d.Outputs)}
}
