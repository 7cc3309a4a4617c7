// Command tilehist inspects and verifies tile change documents.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tilehist/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands print their own results; cobra argument errors do not.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
