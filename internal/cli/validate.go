package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/schema"
)

// FileValidation is the validation outcome of one file.
type FileValidation struct {
	Path    string   `json:"path"`
	Valid   bool     `json:"valid"`
	Entries int      `json:"entries,omitempty"`
	Digest  string   `json:"digest,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate change document snapshots",
		Long: `Validate change document snapshot files (JSON, or YAML by extension)
against the change document schema: known patch operations, JSON pointer
paths, matching forward and inverse patch counts, non-empty entries and
unique entry ids.

Exit codes:
  0 - Every file is valid
  1 - At least one file is invalid
  2 - Command error (file not found, unreadable)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		f.VerboseLog("Validating %s", path)
		fv, err := validateFile(path)
		if err != nil {
			return f.CommandError(fmt.Sprintf("failed to validate %s", path), err)
		}
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	text := func(w io.Writer) { writeValidation(w, result) }
	if !result.Valid {
		return f.Fail(ErrCodeInvalid, "validation failed", result, text)
	}
	return f.Success(result, text)
}

// validateFile returns an error only when the file could not be read or
// parsed. Schema problems are reported in the result.
func validateFile(path string) (FileValidation, error) {
	fv := FileValidation{Path: path}

	snap, err := loadSnapshotFile(path)
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		fv.Errors = verr.Issues
		return fv, nil
	case err != nil:
		return fv, err
	}

	digest, err := ir.DocumentDigest(snap)
	if err != nil {
		return fv, err
	}
	fv.Valid = true
	fv.Entries = len(snap.Entries)
	fv.Digest = digest
	return fv, nil
}

func writeValidation(w io.Writer, result ValidationResult) {
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s: %d entries\n", fv.Path, fv.Entries)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", fv.Path)
		for _, issue := range fv.Errors {
			fmt.Fprintf(w, "  %s\n", issue)
		}
	}
}
