package main

import (
	"fmt"
	"os"

	"github.com/heraerp/heraerp-prd-sub081/cmd/hera/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
