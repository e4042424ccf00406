// rvrun is the command-line interface to the RISC-V user-mode emulator.
package main

import (
	"context"
	"os"

	"github.com/rvsim/rvsim/cmd/internal/cli"
	"github.com/rvsim/rvsim/cmd/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Run(),
}

func main() {
	result := cli.New(context.Background()).
		WithLogger(os.Stderr).
		WithCommands(commands).
		WithHelp(cmd.Help(commands)).
		Execute(os.Args[1:])

	os.Exit(result)
}
