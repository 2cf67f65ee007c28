// Command worker runs a single test job: it compiles the submitted sources,
// executes the compiled tests and delivers lifecycle events to the job's
// collector.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/testworker/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
