package harness

import (
	"fmt"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// ScenarioNotFoundError is returned when a path or pattern matches no
// scenario file.
type ScenarioNotFoundError struct {
	Pattern string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files match %q", e.Pattern)
}

// ExpandScenarioPaths resolves plain paths and doublestar patterns such as
// "scenarios/**/*.yaml" into a sorted, de-duplicated list of files. A plain
// path must exist; a pattern must match at least one file.
func ExpandScenarioPaths(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		if info, err := os.Stat(pattern); err == nil && !info.IsDir() {
			paths = append(paths, pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, &ScenarioNotFoundError{Pattern: pattern}
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}
