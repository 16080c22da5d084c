// Command wro merges and transforms groups of web resources.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/wro/internal/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
