// Command settle tracks invocations in an event stream and reports when
// they have settled.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/settle/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
