package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-validate a snapshot file whenever it changes",
		Long: `Validate a snapshot file, then validate it again every time it is
written, until interrupted. With --format json each result is printed as
one JSON object per line.

Example:
  tilehist watch board.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 100*time.Millisecond, "quiet period before re-validating")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	report := func(fv FileValidation) {
		if opts.Format == "json" {
			_ = json.NewEncoder(w).Encode(fv)
			return
		}
		writeValidation(w, ValidationResult{Valid: fv.Valid, Files: []FileValidation{fv}})
	}

	if err := watchFile(ctx, path, opts.Debounce, opts.logger(cmd.ErrOrStderr()), report); err != nil {
		return opts.formatter(cmd).CommandError("watch failed", err)
	}
	return nil
}

// watchFile validates path once, then again after every burst of writes,
// until ctx is done. The parent directory is watched rather than the file
// so editors that save by rename are followed.
func watchFile(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, report func(FileValidation)) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("file not found: %s", path), Err: err}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	check := func() {
		fv, err := validateFile(path)
		if err != nil {
			fv = FileValidation{Path: path, Errors: []string{err.Error()}}
		}
		report(fv)
	}
	check()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			logger.Debug("snapshot changed", "path", path, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			check()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("fsnotify error", "path", path, "error", err)
		}
	}
}
