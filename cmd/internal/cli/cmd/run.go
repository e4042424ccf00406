package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rvsim/rvsim/cmd/internal/cli"
	"github.com/rvsim/rvsim/cmd/internal/console"
	"github.com/rvsim/rvsim/cmd/internal/syscalls"
	"github.com/rvsim/rvsim/internal/bootstrap"
	"github.com/rvsim/rvsim/internal/disasm"
	"github.com/rvsim/rvsim/internal/encoding"
	"github.com/rvsim/rvsim/internal/log"
	"github.com/rvsim/rvsim/internal/vm"
)

// Run returns the "run" command: load a RISC-V ELF executable and simulate it.
func Run() cli.Command {
	return &runner{dispatch: "switch"}
}

type runner struct {
	debug     bool
	dispatch  string
	ceiling   uint64
	threads   int
	arenaSize int
	timeout   time.Duration
	disasm    bool
	snapshot  string
}

func (runner) Help() string { return "load and simulate a RISC-V ELF executable" }

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	fs.BoolVar(&r.debug, "debug", false, "enable debug logging")
	fs.StringVar(&r.dispatch, "dispatch", "switch", "dispatch loop: switch, threaded, or tailcall")
	fs.Uint64Var(&r.ceiling, "ceiling", 0, "instruction ceiling; 0 means unbounded")
	fs.IntVar(&r.threads, "threads", 0, "enable the guest-thread multiplexer with this many slots; 0 disables it")
	fs.IntVar(&r.arenaSize, "arena", 0, "bytes of arena heap to map for guest malloc/free; 0 disables it")
	fs.DurationVar(&r.timeout, "timeout", 0, "wall-clock timeout; 0 means none")
	fs.BoolVar(&r.disasm, "disasm", false, "print a disassembly of the entry segment and exit without running")
	fs.StringVar(&r.snapshot, "snapshot", "", "write a hex-encoded snapshot of the 64 KiB just below the initial stack top to this path after exit")

	return fs
}

func (r *runner) Run(ctx context.Context, args []string, out io.Writer, _ *log.Logger) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: rvrun run [options] <elf> [guest-arg]...")
		return
	}

	if r.debug {
		log.LogLevel.Set(slog.LevelDebug)
	}

	logger := log.NewFormattedLogger(os.Stderr)
	slog.SetDefault(logger)

	path := args[0]

	image, err := os.Open(path)
	if err != nil {
		logger.Error("opening image", "err", err)
		return
	}
	defer image.Close()

	mode, err := parseDispatchMode(r.dispatch)
	if err != nil {
		logger.Error(err.Error())
		return
	}

	opts := []vm.OptionFn{
		vm.WithLogger(logger),
		vm.WithDispatchMode(mode),
	}

	if r.ceiling != 0 {
		opts = append(opts, vm.WithCeiling(r.ceiling))
	}

	if r.threads > 0 {
		opts = append(opts, vm.WithThreads(r.threads))
	}

	if r.arenaSize > 0 {
		opts = append(opts, vm.WithArena(arenaBase, r.arenaSize))
	}

	machine, err := vm.New(image, opts...)
	if err != nil {
		logger.Error("loading image", "err", err)
		return
	}

	defer machine.Close()

	if r.disasm {
		r.printDisasm(out, machine)
		return
	}

	con, err := console.New(os.Stdin, os.Stdout)
	if err != nil {
		logger.Debug("no interactive console, guest I/O falls back to host files", "reason", err)
		con = nil
	} else {
		defer con.Restore()
	}

	if err := syscalls.Install(machine, con); err != nil {
		logger.Error("installing syscalls", "err", err)
		return
	}

	if err := r.bootstrapGuest(machine, path, args[1:]); err != nil {
		logger.Error("building guest stack", "err", err)
		return
	}

	if r.timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger.Info("starting machine", "image", path)

	simErr := machine.Simulate(ctx, 0)

	if r.snapshot != "" {
		if err := r.writeSnapshot(machine); err != nil {
			logger.Error("writing snapshot", "err", err)
		}
	}

	if simErr != nil {
		logger.Error("simulation stopped", "err", simErr)
		return
	}

	logger.Info("machine stopped")
}

// arenaBase is an address range well clear of a typical ELF's load segments and the default
// stack, for the -arena flag's demo heap.
const arenaBase = vm.Word(0x6000_0000_0000)

func parseDispatchMode(s string) (vm.DispatchMode, error) {
	switch s {
	case "switch", "":
		return vm.DispatchSwitch, nil
	case "threaded":
		return vm.DispatchThreaded, nil
	case "tailcall":
		return vm.DispatchTailCall, nil
	default:
		return 0, fmt.Errorf("unknown dispatch mode %q: want switch, threaded, or tailcall", s)
	}
}

func (r *runner) bootstrapGuest(machine *vm.Machine, path string, guestArgs []string) error {
	phdrs, phentsize := machine.ProgHeaders()

	platform := "riscv64"
	if machine.CPU().XLen == vm.XLen32 {
		platform = "riscv32"
	}

	opts := bootstrap.Options{
		Argv:      append([]string{path}, guestArgs...),
		Envp:      os.Environ(),
		Entry:     machine.Entry(),
		Phdrs:     phdrs,
		Phentsize: phentsize,
		Platform:  platform,
		Rand:      console.Rand,
	}

	sp, err := bootstrap.BuildStack(machine.Memory(), machine.Memory().StackBase, machine.CPU().XLen, opts)
	if err != nil {
		return err
	}

	machine.CPU().SetInt(2, uint64(sp)) // sp

	return nil
}

func (r *runner) printDisasm(out io.Writer, machine *vm.Machine) {
	seg, err := machine.SegmentAt(machine.Entry())
	if err != nil {
		fmt.Fprintf(out, "disassembling entry segment: %s\n", err)
		return
	}

	fmt.Fprint(out, disasm.Text(seg))
}

func (r *runner) writeSnapshot(machine *vm.Machine) error {
	const snapshotSpan = 64 * 1024

	top := machine.Memory().StackBase
	snap := encoding.Snapshot(machine.Memory(), top-snapshotSpan, snapshotSpan)

	text, err := snap.MarshalText()
	if err != nil {
		return err
	}

	return os.WriteFile(r.snapshot, text, 0o644)
}
