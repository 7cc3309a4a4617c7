package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Document string // optional - list documents when empty
}

// HistoryRow summarizes one history entry.
type HistoryRow struct {
	Index    int      `json:"index"`
	ID       string   `json:"id"`
	Action   string   `json:"action"`
	TreeID   string   `json:"tree_id"`
	Undoable bool     `json:"undoable"`
	Trees    []string `json:"trees"`
	Patches  int      `json:"patches"`
}

// HistoryResult is the output of history for one document.
type HistoryResult struct {
	Document string       `json:"document"`
	Digest   string       `json:"digest"`
	Entries  []HistoryRow `json:"entries"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List documents or the entries of one document",
		Long: `List the documents in a database, or with --doc the completed history
entries of one document in history order.

Examples:
  tilehist history --db ./history.db
  tilehist history --db ./history.db --doc board
  tilehist history --db ./history.db --doc board --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Document, "doc", "", "document id")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return f.CommandError("failed to open database", err)
	}
	defer st.Close()

	if opts.Document == "" {
		docs, err := st.ListDocuments(ctx)
		if err != nil {
			return f.CommandError("failed to list documents", err)
		}
		return f.Success(docs, func(w io.Writer) { writeDocumentList(w, docs) })
	}

	snap, err := loadStoredDocument(ctx, st, opts.Document)
	if err != nil {
		return f.CommandError("failed to load document", err)
	}
	result, err := summarizeHistory(opts.Document, snap)
	if err != nil {
		return f.CommandError("failed to summarize document", err)
	}
	return f.Success(result, func(w io.Writer) { writeHistory(w, result, opts.Verbose) })
}

func summarizeHistory(documentID string, snap ir.ChangeDocumentSnapshot) (HistoryResult, error) {
	digest, err := ir.DocumentDigest(snap)
	if err != nil {
		return HistoryResult{}, err
	}
	result := HistoryResult{
		Document: documentID,
		Digest:   digest,
		Entries:  make([]HistoryRow, 0, len(snap.Entries)),
	}
	for i, e := range snap.Entries {
		row := HistoryRow{
			Index:    i,
			ID:       e.ID,
			Action:   e.Action,
			TreeID:   e.TreeID,
			Undoable: e.Undoable,
			Trees:    ir.ChangeDocumentSnapshot{Entries: snap.Entries[i : i+1]}.TreeIDs(),
		}
		for _, r := range e.Records {
			row.Patches += len(r.Patches)
		}
		result.Entries = append(result.Entries, row)
	}
	return result, nil
}

func writeDocumentList(w io.Writer, docs []store.DocumentInfo) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found in database.")
		return
	}
	for _, d := range docs {
		if d.Name != "" {
			fmt.Fprintf(w, "%s (%s): %d entries\n", d.ID, d.Name, d.Entries)
		} else {
			fmt.Fprintf(w, "%s: %d entries\n", d.ID, d.Entries)
		}
	}
}

func writeHistory(w io.Writer, result HistoryResult, verbose bool) {
	fmt.Fprintf(w, "Document %s: %d entries\n", result.Document, len(result.Entries))
	if verbose {
		fmt.Fprintf(w, "Digest: %s\n", result.Digest)
	}
	for _, row := range result.Entries {
		mark := " "
		if row.Undoable {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %3d  %-24s  %-20s  by %s, trees %v, %d patches\n",
			mark, row.Index, row.ID, row.Action, row.TreeID, row.Trees, row.Patches)
	}
}
