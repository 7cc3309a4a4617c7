package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
	Document string
	Name     string
}

// ImportResult reports an imported document.
type ImportResult struct {
	Document string `json:"document"`
	Entries  int    `json:"entries"`
	Digest   string `json:"digest"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a change document snapshot",
		Long: `Validate a snapshot file (JSON, or YAML by extension) and store it as
--doc, replacing any history the document already had. The database is
created if it does not exist.

Examples:
  tilehist import board.json --db ./history.db --doc board
  tilehist import board.yaml --db ./history.db --doc board --name "Main board"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Document, "doc", "", "document id (required)")
	_ = cmd.MarkFlagRequired("doc")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name for a new document")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	snap, err := loadSnapshotFile(path)
	if err != nil {
		return f.CommandError("failed to read snapshot", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.CommandError("failed to open database", &LoadError{Code: ErrCodeStoreFailed, Message: "opening database", Err: err})
	}
	defer st.Close()

	if err := st.CreateDocument(ctx, opts.Document, opts.Name); err != nil {
		return f.CommandError("failed to create document", &LoadError{Code: ErrCodeStoreFailed, Message: "creating document", Err: err})
	}
	if err := st.ReplaceDocument(ctx, opts.Document, snap); err != nil {
		return f.CommandError("failed to store document", &LoadError{Code: ErrCodeStoreFailed, Message: "storing document", Err: err})
	}

	digest, err := ir.DocumentDigest(snap)
	if err != nil {
		return f.CommandError("failed to digest document", err)
	}
	result := ImportResult{Document: opts.Document, Entries: len(snap.Entries), Digest: digest}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Imported %d entries into %s\n", result.Entries, result.Document)
	})
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Document string
	Output   string
	YAML     bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored document as a snapshot",
		Long: `Write a stored change document as canonical JSON, or YAML with --yaml or
an output path ending in .yaml/.yml. Without --output the snapshot goes to
stdout.

Examples:
  tilehist export --db ./history.db --doc board > board.json
  tilehist export --db ./history.db --doc board -o board.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Document, "doc", "", "document id (required)")
	_ = cmd.MarkFlagRequired("doc")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.YAML, "yaml", false, "write YAML instead of JSON")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return f.CommandError("failed to open database", err)
	}
	defer st.Close()

	snap, err := loadStoredDocument(ctx, st, opts.Document)
	if err != nil {
		return f.CommandError("failed to load document", err)
	}

	data, err := encodeSnapshot(snap, opts.YAML || isYAML(opts.Output))
	if err != nil {
		return f.CommandError("failed to encode document", err)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return f.CommandError("failed to write snapshot", &LoadError{Code: ErrCodeWriteFailed, Message: opts.Output, Err: err})
	}
	f.VerboseLog("Wrote %d entries to %s", len(snap.Entries), opts.Output)
	return nil
}

// encodeSnapshot renders snap as canonical JSON plus a trailing newline, or
// as YAML.
func encodeSnapshot(snap ir.ChangeDocumentSnapshot, asYAML bool) ([]byte, error) {
	canonical, err := ir.CanonicalizeValue(snap)
	if err != nil {
		return nil, err
	}
	if asYAML {
		return jsonToYAML(canonical)
	}
	return append(canonical, '\n'), nil
}
