package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/ruletrace/internal/apply"
	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/schema"
	"github.com/roach88/ruletrace/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Rule     string
	RuleName string
	Schema   string
	Name     string // serving graph name, defaults to config serving.name
	Output   string // directory for <party>.dump files
	Database string // optional registry to record the artifact and dumps in
}

// PartyDump is one party's serving dump.
type PartyDump struct {
	Party   string          `json:"party"`
	ID      string          `json:"id"`
	Columns []string        `json:"columns"`
	Graph   json.RawMessage `json:"graph"`
	Inputs  json.RawMessage `json:"inputs"`
	Outputs json.RawMessage `json:"outputs"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	ArtifactID string      `json:"artifact_id"`
	Name       string      `json:"name"`
	Parties    []PartyDump `json:"parties"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace a rule into per-party serving graphs",
		Long: `Apply a rule to a schema-only vertical table and print the serving dump
of every party: the graph, its root inputs and its outputs.

The rule is a CUE file or a canonical artifact. The schema file lists the
parties and their columns.

Examples:
  ruletrace trace --rule rules.cue --rule-name encode --schema parties.yaml
  ruletrace trace --rule fill.json --schema parties.yaml -o ./dumps
  ruletrace trace --rule fill.json --schema parties.yaml --db ./ruletrace.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "rule file: .cue or canonical artifact JSON (required)")
	_ = cmd.MarkFlagRequired("rule")
	cmd.Flags().StringVar(&opts.RuleName, "rule-name", "", "rule to use when the CUE file declares several")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema YAML file (required)")
	_ = cmd.MarkFlagRequired("schema")
	cmd.Flags().StringVar(&opts.Name, "name", "", "serving graph name")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "directory to write <party>.dump files to")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the artifact and dumps in this registry")

	return cmd
}

// traceInputs loads the rule and the schemas shared by trace and verify.
func traceInputs(opts *RootOptions, rulePath, ruleName, schemaPath string) (*rule.Artifact, []schema.Schema, error) {
	art, err := loadArtifact(rulePath, ruleName, opts.defaults())
	if err != nil {
		return nil, nil, err
	}
	schemas, err := schema.LoadFile(schemaPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load schema file", err)
	}
	return art, schemas, nil
}

// substitute applies art to a symbolic vertical table built from schemas.
func substitute(ctx context.Context, opts *RootOptions, art *rule.Artifact, schemas []schema.Schema) (*apply.VerticalTable, error) {
	vt, err := apply.SymbolicVertical(schemas)
	if err != nil {
		return nil, err
	}
	return apply.New(apply.WithLogger(opts.logger())).Substitute(ctx, art, vt)
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	art, schemas, err := traceInputs(opts.RootOptions, opts.Rule, opts.RuleName, opts.Schema)
	if err != nil {
		return formatter.Fail(GetExitCode(err), "load inputs", err)
	}
	formatter.VerboseLog("Loaded %s rule %s for %d party(ies)", art.Kind(), art.ID(), len(schemas))

	out, err := substitute(ctx, opts.RootOptions, art, schemas)
	if err != nil {
		return formatter.Fail(ExitFailure, "apply rule", err)
	}

	name := opts.Name
	if name == "" {
		name = opts.config().Serving.Name
	}
	dumps, err := out.DumpServing(name)
	if err != nil {
		return formatter.Fail(ExitFailure, "dump", err)
	}

	if opts.Database != "" {
		if err := recordDumps(ctx, opts, art, out, dumps); err != nil {
			return formatter.Fail(ExitCommandError, "record dumps", err)
		}
	}

	result := TraceResult{ArtifactID: art.ID(), Name: name}
	for _, p := range out.Parties() {
		t, _ := out.Table(p)
		d := dumps[p]
		result.Parties = append(result.Parties, PartyDump{
			Party:   string(p),
			ID:      d.ID(),
			Columns: t.Schema().Names(),
			Graph:   d.Graph,
			Inputs:  d.Inputs,
			Outputs: d.Outputs,
		})
		if opts.Output != "" {
			if err := writeDump(opts.Output, p, d); err != nil {
				formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing dump: %v", err), nil)
				return WrapExitError(ExitCommandError, "writing dump", err)
			}
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Artifact: %s\n", result.ArtifactID)
	for _, p := range out.Parties() {
		fmt.Fprintf(w, "\n== %s (dump %s)\n", p, dumps[p].ID())
		w.Write(dumps[p].Text())
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote %d dump(s) to %s\n", len(dumps), opts.Output)
	}
	return nil
}

func recordDumps(ctx context.Context, opts *TraceOptions, art *rule.Artifact, out *apply.VerticalTable, dumps map[schema.Party]*graph.Dump) error {
	st, err := store.Open(opts.Database, store.WithLogger(opts.logger()))
	if err != nil {
		return err
	}
	defer st.Close()

	artID, _, err := st.PutArtifact(ctx, art)
	if err != nil {
		return err
	}
	for _, p := range out.Parties() {
		if _, _, err := st.PutDump(ctx, p, artID, dumps[p]); err != nil {
			return err
		}
	}
	return nil
}

func writeDump(dir string, p schema.Party, d *graph.Dump) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, string(p)+".dump"), d.Text(), 0o644)
}
