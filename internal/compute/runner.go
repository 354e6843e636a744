package compute

import (
	"fmt"

	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
)

// Runner replays the call sequence that produced a table. The last call in
// the log produces the target table. Replaying symbolically yields the same
// serving dump as the original table, whatever its mode.
type Runner struct {
	calls []Call
}

// Sources returns the source schemas in declaration order.
func (r *Runner) Sources() ([]schema.Schema, error) {
	var out []schema.Schema
	for i, c := range r.calls {
		if c.Op != opSource {
			continue
		}
		obj, err := c.Args.Object("schema")
		if err != nil {
			return nil, ir.GraphIntegrity("call %d: %v", i, err)
		}
		s, err := schema.FromIR(obj)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Len returns the number of recorded calls.
func (r *Runner) Len() int { return len(r.calls) }

// ReplaySymbolic replays the calls over schema-only sources in a fresh
// lineage.
func (r *Runner) ReplaySymbolic(opts ...Option) (Table, error) {
	sources, err := r.Sources()
	if err != nil {
		return nil, err
	}
	lin := NewLineage(opts...)
	tables := make([]Table, len(sources))
	for i, s := range sources {
		t, err := lin.Symbolic(s)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	return r.Replay(tables...)
}

// Replay runs the calls over the given source tables, which must be
// freshly declared sources of one lineage with the recorded schemas, in
// declaration order.
func (r *Runner) Replay(sources ...Table) (Table, error) {
	if len(r.calls) == 0 {
		return nil, ir.GraphIntegrity("runner has no calls")
	}
	recorded, err := r.Sources()
	if err != nil {
		return nil, err
	}
	if len(recorded) != len(sources) {
		return nil, ir.SchemaMismatch("", "runner expects %d sources, got %d", len(recorded), len(sources))
	}
	for i, src := range sources {
		if !src.Schema().Equal(recorded[i]) {
			return nil, ir.SchemaMismatch("", "source %d schema differs from the recorded schema", i).WithParty(string(recorded[i].Party()))
		}
		if src.Lineage() != sources[0].Lineage() {
			return nil, ir.GraphIntegrity("replay sources span several lineages")
		}
		if !src.Lineage().isSource(src.base().id) {
			return nil, ir.GraphIntegrity("replay source %d is not a source table", i)
		}
	}

	produced := make([]Table, len(r.calls))
	next := 0
	for i, c := range r.calls {
		if c.Op == opSource {
			produced[i] = sources[next]
			next++
			continue
		}
		inputs := make([]Table, len(c.Inputs))
		for k, id := range c.Inputs {
			if id < 0 || id >= i || produced[id] == nil {
				return nil, ir.GraphIntegrity("call %d consumes unknown table %d", i, id)
			}
			inputs[k] = produced[id]
		}
		t, err := replayCall(c, inputs)
		if err != nil {
			return nil, fmt.Errorf("replay call %d (%s): %w", i, c.Op, err)
		}
		produced[i] = t
	}
	return produced[len(produced)-1], nil
}

// DumpServing replays symbolically and dumps the resulting table.
func (r *Runner) DumpServing(name string) (*graph.Dump, error) {
	t, err := r.ReplaySymbolic()
	if err != nil {
		return nil, err
	}
	return t.DumpServing(name)
}

func replayCall(c Call, inputs []Table) (Table, error) {
	op, err := ir.ParseOpKind(c.Op)
	if err != nil {
		return nil, ir.GraphIntegrity("%v", err)
	}
	if op != ir.OpConcat && len(inputs) != 1 {
		return nil, ir.GraphIntegrity("%s expects one input table, got %d", op, len(inputs))
	}
	switch op {
	case ir.OpSelect:
		names, err := c.Args.StringList("columns")
		if err != nil {
			return nil, ir.GraphIntegrity("select args: %v", err)
		}
		return inputs[0].Select(names)
	case ir.OpFillna:
		column, err := c.Args.String("column")
		if err != nil {
			return nil, ir.GraphIntegrity("fillna args: %v", err)
		}
		v, err := schema.ValueFromIR(c.Args["value"])
		if err != nil {
			return nil, ir.GraphIntegrity("fillna args: %v", err)
		}
		return inputs[0].Fillna(column, v)
	case ir.OpOnehotExpand:
		column, err := c.Args.String("column")
		if err != nil {
			return nil, ir.GraphIntegrity("onehot args: %v", err)
		}
		e, err := expansionFromArgs(column, c.Args)
		if err != nil {
			return nil, err
		}
		return inputs[0].OnehotExpand(column, e)
	case ir.OpRename:
		from, err := c.Args.String("from")
		if err != nil {
			return nil, ir.GraphIntegrity("rename args: %v", err)
		}
		to, err := c.Args.String("to")
		if err != nil {
			return nil, ir.GraphIntegrity("rename args: %v", err)
		}
		return inputs[0].Rename(from, to)
	case ir.OpConcat:
		return Concat(inputs...)
	case ir.OpPassthrough:
		return inputs[0].Passthrough()
	default:
		return nil, ir.GraphIntegrity("cannot replay %s", op)
	}
}

func expansionFromArgs(column string, args ir.IRObject) (rule.Expansion, error) {
	exp, err := args.Object("expansion")
	if err != nil {
		return rule.Expansion{}, ir.GraphIntegrity("onehot args: %v", err)
	}
	params := make(ir.IRObject, len(exp))
	for k, v := range exp {
		if k != "naming" {
			params[k] = v
		}
	}
	e, err := rule.DecodeExpansion(column, params)
	if err != nil {
		return rule.Expansion{}, err
	}
	namingName, err := exp.String("naming")
	if err != nil {
		return rule.Expansion{}, ir.GraphIntegrity("onehot args: %v", err)
	}
	if e.Naming, err = rule.ParseNaming(namingName); err != nil {
		return rule.Expansion{}, err
	}
	return e, nil
}

// IR renders the runner as {"calls":[{"args","inputs","op"}],"format","version"}.
func (r *Runner) IR() ir.IRObject {
	calls := make(ir.IRArray, len(r.calls))
	for i, c := range r.calls {
		inputs := make(ir.IRArray, len(c.Inputs))
		for k, id := range c.Inputs {
			inputs[k] = ir.IRInt(id)
		}
		args := c.Args
		if args == nil {
			args = ir.IRObject{}
		}
		calls[i] = ir.IRObject{"op": ir.IRString(c.Op), "inputs": inputs, "args": args}
	}
	return ir.IRObject{
		"format":  ir.IRString(ir.RunnerFormat),
		"version": ir.IRString(ir.IRVersion),
		"calls":   calls,
	}
}

// Encode serializes the runner as canonical JSON.
func (r *Runner) Encode() ([]byte, error) {
	return ir.MarshalCanonical(r.IR())
}

// ID is the content hash of the encoded runner.
func (r *Runner) ID() (string, error) {
	return ir.ContentID(ir.DomainRunner, r.IR())
}

// DecodeRunner parses bytes produced by Runner.Encode.
func DecodeRunner(data []byte) (*Runner, error) {
	obj, err := ir.UnmarshalIRObject(data)
	if err != nil {
		return nil, ir.GraphIntegrity("malformed runner: %v", err)
	}
	if err := obj.OnlyKeys("format", "version", "calls"); err != nil {
		return nil, ir.GraphIntegrity("malformed runner: %v", err)
	}
	if f, _ := obj.String("format"); f != ir.RunnerFormat {
		return nil, ir.GraphIntegrity("unknown runner format %q", f)
	}
	if v, _ := obj.String("version"); v != ir.IRVersion {
		return nil, ir.GraphIntegrity("unsupported runner version %q", v)
	}
	arr, err := obj.Array("calls")
	if err != nil {
		return nil, ir.GraphIntegrity("malformed runner: %v", err)
	}
	r := &Runner{calls: make([]Call, len(arr))}
	for i, raw := range arr {
		co, ok := raw.(ir.IRObject)
		if !ok {
			return nil, ir.GraphIntegrity("calls[%d] is not an object", i)
		}
		op, err := co.String("op")
		if err != nil {
			return nil, ir.GraphIntegrity("calls[%d]: %v", i, err)
		}
		if op != opSource {
			if _, err := ir.ParseOpKind(op); err != nil {
				return nil, ir.GraphIntegrity("calls[%d]: %v", i, err)
			}
		}
		ins, err := co.Array("inputs")
		if err != nil {
			return nil, ir.GraphIntegrity("calls[%d]: %v", i, err)
		}
		var inputs []int
		for k, v := range ins {
			n, ok := v.(ir.IRInt)
			if !ok || int(n) < 0 || int(n) >= i {
				return nil, ir.GraphIntegrity("calls[%d].inputs[%d] must reference an earlier call", i, k)
			}
			inputs = append(inputs, int(n))
		}
		args, err := co.Object("args")
		if err != nil {
			return nil, ir.GraphIntegrity("calls[%d]: %v", i, err)
		}
		r.calls[i] = Call{Op: op, Inputs: inputs, Args: args}
	}
	return r, nil
}
