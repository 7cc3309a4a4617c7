package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// GotoOptions holds flags for the goto command.
type GotoOptions struct {
	*RootOptions
	Database string
	Document string
	Index    int
}

// GotoResult is the tile state at a history index.
type GotoResult struct {
	Document string      `json:"document"`
	Index    int         `json:"index"`
	Entries  int         `json:"entries"`
	Tiles    []TileState `json:"tiles"`
}

// NewGotoCommand creates the goto command.
func NewGotoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GotoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "goto",
		Short: "Show tile state at a point in history",
		Long: `Replay a stored document to its end, then navigate back to --index and
print every tile's state. Index N means the first N entries are applied;
0 is the state before any entry.

Examples:
  tilehist goto --db ./history.db --doc board --index 0
  tilehist goto --db ./history.db --doc board --index 3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoto(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Document, "doc", "", "document id (required)")
	_ = cmd.MarkFlagRequired("doc")
	cmd.Flags().IntVar(&opts.Index, "index", 0, "history index (required)")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

func runGoto(opts *GotoOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	session, snap, err := openSession(ctx, opts.Database, opts.Document, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return f.CommandError("failed to load document", err)
	}
	if err := session.Manager.GoToHistoryEntry(ctx, opts.Index); err != nil {
		return f.CommandError(fmt.Sprintf("failed to go to index %d", opts.Index),
			&LoadError{Code: ErrCodeReplayFailed, Message: "navigating history", Err: err})
	}

	tiles, err := session.States()
	if err != nil {
		return f.CommandError("failed to read tile state", err)
	}
	result := GotoResult{
		Document: opts.Document,
		Index:    opts.Index,
		Entries:  len(snap.Entries),
		Tiles:    tiles,
	}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s at index %d of %d\n", result.Document, result.Index, result.Entries)
		writeTiles(w, result.Tiles)
	})
}
