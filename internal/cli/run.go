package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tilehist/internal/harness"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// RunResult holds the overall scenario run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run history scenarios",
		Long: `Run YAML history scenarios against fresh tiles and a fresh tree manager.

Arguments are scenario files or doublestar patterns such as
"scenarios/**/*.yaml".

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (no matching files, etc.)

Examples:
  tilehist run scenarios/undo.yaml
  tilehist run "scenarios/**/*.yaml" --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RootOptions, patterns []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	paths, err := harness.ExpandScenarioPaths(patterns)
	if err != nil {
		return f.CommandError("failed to find scenarios", &LoadError{Code: ErrCodeNotFound, Message: "finding scenarios", Err: err})
	}

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(opts.logger(cmd.ErrOrStderr())))
	}

	result := RunResult{
		Scenarios: make([]ScenarioResult, 0, len(paths)),
		Total:     len(paths),
	}
	for _, path := range paths {
		sr := runScenario(cmd, path, runOpts)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	text := func(w io.Writer) { writeRunResult(w, result) }
	if result.Failed > 0 {
		return f.Fail(ErrCodeScenario, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total), result, text)
	}
	return f.Success(result, text)
}

// runScenario never fails the command; load and setup errors are reported
// as a failed scenario.
func runScenario(cmd *cobra.Command, path string, runOpts []harness.Option) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{Name: path, Path: path, Errors: []string{err.Error()}}
	}

	res, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return ScenarioResult{Name: scenario.Name, Path: path, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}
	return ScenarioResult{
		Name:   scenario.Name,
		Path:   path,
		Pass:   res.Pass,
		Errors: res.Errors,
	}
}

func writeRunResult(w io.Writer, result RunResult) {
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", s.Name, s.Path)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
