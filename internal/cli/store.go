package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ruletrace/internal/rule"
	"github.com/roach88/ruletrace/internal/store"
)

// StoreOptions holds flags shared by the store subcommands.
type StoreOptions struct {
	*RootOptions
	Database string
	RuleName string
	Output   string
	Artifact string
}

// StoredArtifact describes one registry entry.
type StoredArtifact struct {
	ID      string    `json:"id"`
	Kind    rule.Kind `json:"kind"`
	Version string    `json:"version"`
	Seq     int64     `json:"seq,omitempty"`
}

// PutResult is the outcome of store put. Inserted is false when the
// artifact was already stored.
type PutResult struct {
	ID       string    `json:"id"`
	Kind     rule.Kind `json:"kind"`
	Version  string    `json:"version"`
	Inserted bool      `json:"inserted"`
}

// StoredDump describes one stored serving dump.
type StoredDump struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Party      string `json:"party"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Seq        int64  `json:"seq"`
}

// NewStoreCommand creates the store command and its subcommands.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the rule artifact registry",
		Long: `Put, get and list rule artifacts in the SQLite registry.

Artifacts are write-once and keyed by content hash: putting the same
artifact twice keeps the first entry.

Examples:
  ruletrace store put rules.cue --rule-name encode --db ./ruletrace.db
  ruletrace store get <id> -o rule.json
  ruletrace store list
  ruletrace store dumps --artifact <id>`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to config store)")

	put := &cobra.Command{
		Use:           "put <rule-file>",
		Short:         "Store an artifact from a CUE file or canonical JSON",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorePut(opts, args[0], cmd)
		},
	}
	put.Flags().StringVar(&opts.RuleName, "rule-name", "", "rule to store when the CUE file declares several")

	get := &cobra.Command{
		Use:           "get <id>",
		Short:         "Print or write a stored artifact",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreGet(opts, args[0], cmd)
		},
	}
	get.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List stored artifacts in insertion order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreList(opts, cmd)
		},
	}

	dumps := &cobra.Command{
		Use:           "dumps",
		Short:         "List stored serving dumps",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreDumps(opts, cmd)
		},
	}
	dumps.Flags().StringVar(&opts.Artifact, "artifact", "", "only dumps linked to this artifact id")

	cmd.AddCommand(put, get, list, dumps)
	return cmd
}

func (o *StoreOptions) open() (*store.Store, error) {
	path := o.Database
	if path == "" {
		path = o.config().Store
	}
	st, err := store.Open(path, store.WithLogger(o.logger()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runStorePut(opts *StoreOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	art, err := loadArtifact(path, opts.RuleName, opts.defaults())
	if err != nil {
		return formatter.Fail(GetExitCode(err), "load rule", err)
	}
	st, err := opts.open()
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return err
	}
	defer st.Close()

	id, inserted, err := st.PutArtifact(context.Background(), art)
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "put artifact", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(PutResult{ID: id, Kind: art.Kind(), Version: art.Version(), Inserted: inserted})
	}
	if inserted {
		fmt.Fprintf(formatter.Writer, "✓ Stored %s artifact %s\n", art.Kind(), id)
	} else {
		fmt.Fprintf(formatter.Writer, "Already stored: %s\n", id)
	}
	return nil
}

func runStoreGet(opts *StoreOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.open()
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return err
	}
	defer st.Close()

	art, err := st.GetArtifact(context.Background(), id)
	if errors.Is(err, store.ErrNotFound) {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("artifact not found: %s", id), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("artifact not found: %s", id))
	}
	if err != nil {
		return formatter.Fail(ExitFailure, "get artifact", err)
	}
	body, err := rule.Save(art)
	if err != nil {
		return formatter.Fail(ExitFailure, "encode artifact", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, body, 0o644); err != nil {
			formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(CompiledRule{
			ID:       art.ID(),
			Kind:     art.Kind(),
			Columns:  art.Columns(),
			Artifact: body,
		})
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote artifact to %s\n", opts.Output)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%s\n", body)
	return nil
}

func runStoreList(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.open()
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return err
	}
	defer st.Close()

	infos, err := st.ListArtifacts(context.Background())
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list artifacts", err)
	}

	out := make([]StoredArtifact, len(infos))
	for i, info := range infos {
		out[i] = StoredArtifact{ID: info.ID, Kind: info.Kind, Version: info.Version, Seq: info.Seq}
	}
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	if len(out) == 0 {
		fmt.Fprintln(formatter.Writer, "No artifacts stored.")
		return nil
	}
	for _, a := range out {
		fmt.Fprintf(formatter.Writer, "%4d  %-7s %s\n", a.Seq, a.Kind, a.ID)
	}
	return nil
}

func runStoreDumps(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.open()
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return err
	}
	defer st.Close()

	recs, err := st.ListDumps(context.Background(), opts.Artifact)
	if err != nil {
		formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list dumps", err)
	}

	out := make([]StoredDump, len(recs))
	for i, rec := range recs {
		out[i] = StoredDump{
			ID:         rec.ID,
			Name:       rec.Dump.Name,
			Party:      string(rec.Party),
			ArtifactID: rec.ArtifactID,
			Seq:        rec.Seq,
		}
	}
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	if len(out) == 0 {
		fmt.Fprintln(formatter.Writer, "No dumps stored.")
		return nil
	}
	for _, d := range out {
		fmt.Fprintf(formatter.Writer, "%4d  %-10s %-12s %s\n", d.Seq, d.Party, d.Name, d.ID)
	}
	return nil
}
