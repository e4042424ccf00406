package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/rvsim/rvsim/cmd/internal/cli"
	"github.com/rvsim/rvsim/internal/log"
)

type help struct {
	cmds []cli.Command
}

func (help) Help() string { return "display help for commands" }

func (help) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("help", flag.ExitOnError)
}

func (h help) Run(_ context.Context, args []string, out io.Writer, _ *log.Logger) {
	fmt.Fprintln(out, "rvrun is a user-mode RISC-V emulator.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "        rvrun <command> [option]... [arg]...")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")

	for _, cmd := range h.cmds {
		fmt.Fprintf(out, "  %-12s %s\n", cmd.FlagSet().Name(), cmd.Help())
	}

	fmt.Fprintf(out, "  %-12s %s\n", h.FlagSet().Name(), h.Help())
}

// Help returns the help command, listing cmds alongside itself.
func Help(cmds []cli.Command) cli.Command {
	return &help{cmds: cmds}
}
