package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ruletrace/internal/compiler"
	"github.com/roach88/ruletrace/internal/rule"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output   string // output file path
	RuleName string // rule to write with --output
}

// CompiledRule describes one compiled rule.
type CompiledRule struct {
	Name     string          `json:"name"`
	ID       string          `json:"id"`
	Kind     rule.Kind       `json:"kind"`
	Columns  []string        `json:"columns"`
	Artifact json.RawMessage `json:"artifact"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rule.cue>",
		Short: "Compile a CUE rule file to canonical artifacts",
		Long: `Compile the rules of a CUE file to canonical rule artifacts.

Onehot policies a rule omits are taken from the configuration and recorded
in the artifact. With --output the artifact bytes are written to a file; a
file declaring several rules needs --rule-name.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.RuleName, "rule-name", "", "rule to write when the file declares several")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			formatter.Error(ErrCodeNotFound, fmt.Sprintf("rule file not found: %s", path), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("rule file not found: %s", path))
		}
		return formatter.Fail(ExitCommandError, "read rule file", err)
	}

	compiled, err := compiler.CompileSource(path, src, opts.defaults())
	if err != nil {
		return formatter.Fail(ExitFailure, "compile "+path, err)
	}

	out := make([]CompiledRule, len(compiled))
	for i, c := range compiled {
		body, err := rule.Save(c.Artifact)
		if err != nil {
			return formatter.Fail(ExitFailure, "encode "+c.Name, err)
		}
		formatter.VerboseLog("Compiled rule %s (%s)", c.Name, c.Artifact.Kind())
		out[i] = CompiledRule{
			Name:     c.Name,
			ID:       c.Artifact.ID(),
			Kind:     c.Artifact.Kind(),
			Columns:  c.Artifact.Columns(),
			Artifact: body,
		}
	}

	// Write to file if --output specified
	if opts.Output != "" {
		art, err := pickRule(compiled, opts.RuleName)
		if err != nil {
			return formatter.Fail(ExitCommandError, "select rule", err)
		}
		body, err := rule.Save(art)
		if err != nil {
			return formatter.Fail(ExitFailure, "encode artifact", err)
		}
		if err := os.WriteFile(opts.Output, body, 0o644); err != nil {
			formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	// Human-readable text output
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d rule(s)\n\n", len(out))
	for _, r := range out {
		fmt.Fprintf(w, "  %s: %s %v\n    id %s\n", r.Name, r.Kind, r.Columns, r.ID)
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote artifact to %s\n", opts.Output)
	}
	return nil
}
