package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// OpKind is the closed set of graph operators.
// Adding a kind means updating every exhaustive switch over OpKind
// (compute tracer, serializer, serving evaluator).
type OpKind int

const (
	OpSelect OpKind = iota + 1
	OpFillna
	OpOnehotExpand
	OpRename
	OpConcat
	OpPassthrough
)

var opNames = map[OpKind]string{
	OpSelect:       "select",
	OpFillna:       "fillna",
	OpOnehotExpand: "onehot_expand",
	OpRename:       "rename",
	OpConcat:       "concat",
	OpPassthrough:  "passthrough",
}

// OpKinds lists every operator in declaration order.
var OpKinds = []OpKind{OpSelect, OpFillna, OpOnehotExpand, OpRename, OpConcat, OpPassthrough}

func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Valid reports whether k is a declared operator.
func (k OpKind) Valid() bool {
	_, ok := opNames[k]
	return ok
}

// ParseOpKind maps a wire name back to its OpKind.
func ParseOpKind(s string) (OpKind, error) {
	for _, k := range OpKinds {
		if opNames[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown op kind %q", s)
}

// Ref names one immutable column value inside a graph: "<column>#<version>".
// Root inputs have version 0; every node output receives a fresh version,
// so a Ref is produced at most once per lineage.
type Ref string

// NewRef builds the ref for a column version.
func NewRef(column string, version int) Ref {
	return Ref(column + "#" + strconv.Itoa(version))
}

// ParseRef validates s as a ref.
func ParseRef(s string) (Ref, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return "", fmt.Errorf("malformed ref %q", s)
	}
	v, err := strconv.Atoi(s[i+1:])
	if err != nil || v < 0 {
		return "", fmt.Errorf("malformed ref %q: bad version", s)
	}
	return Ref(s), nil
}

// Column returns the column name part of the ref.
func (r Ref) Column() string {
	s := string(r)
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

// Version returns the version part of the ref, or -1 if malformed.
func (r Ref) Version() int {
	s := string(r)
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return -1
	}
	v, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return -1
	}
	return v
}

// Node is one operator application.
type Node struct {
	ID      int64    `json:"id"`
	Op      OpKind   `json:"op"`
	Inputs  []Ref    `json:"inputs"`
	Outputs []Ref    `json:"outputs"`
	Params  IRObject `json:"params"`
}

// IR converts the node to its canonical document form.
func (n Node) IR() IRObject {
	params := n.Params
	if params == nil {
		params = IRObject{}
	}
	return IRObject{
		"id":      IRInt(n.ID),
		"op":      IRString(n.Op.String()),
		"inputs":  refsIR(n.Inputs),
		"outputs": refsIR(n.Outputs),
		"params":  params,
	}
}

// NodeFromIR decodes a node document.
func NodeFromIR(obj IRObject) (Node, error) {
	if err := obj.OnlyKeys("id", "op", "inputs", "outputs", "params"); err != nil {
		return Node{}, err
	}
	id, err := obj.Int("id")
	if err != nil {
		return Node{}, err
	}
	opName, err := obj.String("op")
	if err != nil {
		return Node{}, err
	}
	op, err := ParseOpKind(opName)
	if err != nil {
		return Node{}, err
	}
	inputs, err := refsFromIR(obj, "inputs")
	if err != nil {
		return Node{}, err
	}
	outputs, err := refsFromIR(obj, "outputs")
	if err != nil {
		return Node{}, err
	}
	params, err := obj.Object("params")
	if err != nil {
		return Node{}, err
	}
	return Node{ID: id, Op: op, Inputs: inputs, Outputs: outputs, Params: params}, nil
}

func refsIR(refs []Ref) IRArray {
	arr := make(IRArray, len(refs))
	for i, r := range refs {
		arr[i] = IRString(r)
	}
	return arr
}

func refsFromIR(obj IRObject, key string) ([]Ref, error) {
	ss, err := obj.StringList(key)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, len(ss))
	for i, s := range ss {
		r, err := ParseRef(s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		refs[i] = r
	}
	return refs, nil
}

// Graph is an ordered, acyclic list of nodes plus its declared root inputs.
type Graph struct {
	Roots []Ref  `json:"roots"`
	Nodes []Node `json:"nodes"`
}

// Terminals returns refs produced by some node and consumed by no later node,
// in production order.
func (g Graph) Terminals() []Ref {
	consumed := make(map[Ref]bool)
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			consumed[in] = true
		}
	}
	var out []Ref
	for _, n := range g.Nodes {
		for _, o := range n.Outputs {
			if !consumed[o] {
				out = append(out, o)
			}
		}
	}
	return out
}
