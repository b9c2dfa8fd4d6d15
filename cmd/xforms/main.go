// Command xforms compiles, checks and runs XForms-style forms written in
// CUE. See the cli package for the commands.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/xforms/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
