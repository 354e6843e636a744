package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/ruletrace/internal/compute"
	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/serving"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Rule     string
	RuleName string
	Schema   string
}

// PartyVerification is the parity outcome of one party.
type PartyVerification struct {
	Party    string `json:"party"`
	DumpID   string `json:"dump_id"`
	RunnerID string `json:"runner_id"`
	Calls    int    `json:"calls"`
	Match    bool   `json:"match"`
	Error    string `json:"error,omitempty"`
}

// VerifyResult holds the verification output.
type VerifyResult struct {
	ArtifactID string              `json:"artifact_id"`
	Parties    []PartyVerification `json:"parties"`
	Match      bool                `json:"match"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check serving dump parity for a rule",
		Long: `Apply a rule symbolically and check, for every party, that the table's
serving dump equals the dump replayed by its captured runner, both as
captured and after encoding and decoding the runner. Each dump must also
parse as a serving program.

Exit codes:
  0 - Every party matches
  1 - A dump mismatch was found
  2 - Command error (unreadable rule or schema, etc.)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "rule file: .cue or canonical artifact JSON (required)")
	_ = cmd.MarkFlagRequired("rule")
	cmd.Flags().StringVar(&opts.RuleName, "rule-name", "", "rule to use when the CUE file declares several")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema YAML file (required)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	art, schemas, err := traceInputs(opts.RootOptions, opts.Rule, opts.RuleName, opts.Schema)
	if err != nil {
		return formatter.Fail(GetExitCode(err), "load inputs", err)
	}
	out, err := substitute(ctx, opts.RootOptions, art, schemas)
	if err != nil {
		return formatter.Fail(ExitFailure, "apply rule", err)
	}

	name := opts.config().Serving.Name
	result := VerifyResult{ArtifactID: art.ID(), Match: true}
	for _, p := range out.Parties() {
		t, _ := out.Table(p)
		v := verifyParty(t, name)
		v.Party = string(p)
		if !v.Match {
			result.Match = false
			logger.Warn("parity mismatch", zap.String("party", v.Party), zap.String("error", v.Error))
		} else {
			logger.Debug("parity ok", zap.String("party", v.Party))
		}
		result.Parties = append(result.Parties, v)
	}

	if formatter.Format == "json" {
		if result.Match {
			return formatter.Success(result)
		}
		if err := formatter.Error(ErrCodeParity, "serving dump mismatch", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "serving dump mismatch")
	}

	w := formatter.Writer
	for _, v := range result.Parties {
		if v.Match {
			fmt.Fprintf(w, "✓ %s: %d call(s), dump %s\n", v.Party, v.Calls, v.DumpID)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n  %s\n", v.Party, v.Error)
	}
	if !result.Match {
		return NewExitError(ExitFailure, "serving dump mismatch")
	}
	fmt.Fprintln(w, "\n✓ All parties match")
	return nil
}

// verifyParty compares the dump of t with the dump of its runner, before and
// after an encode/decode round trip of the runner.
func verifyParty(t compute.Table, name string) PartyVerification {
	var v PartyVerification
	d, err := t.DumpServing(name)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.DumpID = d.ID()

	runner := t.Runner()
	v.Calls = runner.Len()
	rd, err := runner.DumpServing(name)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.RunnerID = rd.ID()
	if err := graph.CheckParity(d, rd); err != nil {
		v.Error = err.Error()
		return v
	}

	data, err := runner.Encode()
	if err != nil {
		v.Error = fmt.Sprintf("encode runner: %v", err)
		return v
	}
	decoded, err := compute.DecodeRunner(data)
	if err != nil {
		v.Error = fmt.Sprintf("decode runner: %v", err)
		return v
	}
	pd, err := decoded.DumpServing(name)
	if err != nil {
		v.Error = fmt.Sprintf("decoded runner: %v", err)
		return v
	}
	if err := graph.CheckParity(d, pd); err != nil {
		v.Error = fmt.Sprintf("decoded runner: %v", err)
		return v
	}

	if _, err := serving.Parse(d); err != nil {
		v.Error = fmt.Sprintf("serving: %v", err)
		return v
	}
	v.Match = true
	return v
}
