// Package console adapts host terminal I/O for a guest's stdin/stdout/stderr syscalls. Grounded
// on the teacher's cmd/internal/tty package, which put the host terminal into raw mode and fed
// keystrokes into the machine's keyboard MMIO device and the display device's writes back out to
// the terminal; generalized here from an MMIO device poll loop (the LC-3 has no read/write
// syscalls, only memory-mapped keyboard/display registers) to backing a RISC-V guest's
// read(2)/write(2) ecalls directly -- Read and Write are called synchronously from inside a
// syscall handler rather than asynchronously updating a device register.
package console

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNoTTY is returned if standard input is not a terminal.
var ErrNoTTY error = errors.New("console: not a TTY")

// Console adapts the host terminal for guest read/write syscalls: raw mode so the guest sees
// keystrokes one at a time, unbuffered, the way a kernel's line discipline would hand them to a
// process that has disabled canonical mode.
type Console struct {
	in  *os.File
	out *os.File
	fd  int

	state *term.State
}

// New puts the host terminal into raw mode and returns a Console wrapping sin/sout. If sin is
// not a terminal, ErrNoTTY is returned and the caller should fall back to unadorned file I/O
// (e.g. when stdin is a pipe or redirected file, running a guest binary non-interactively).
func New(sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTTY, err)
	}

	c := &Console{in: sin, out: sout, fd: fd, state: saved}

	if err := c.setTerminalParams(1, 0); err != nil {
		_ = term.Restore(fd, saved)
		return nil, err
	}

	return c, nil
}

// Read satisfies the guest's read(0, buf, len) ecall, blocking for at least one byte.
func (c *Console) Read(p []byte) (int, error) {
	return c.in.Read(p)
}

// Write satisfies the guest's write(1 or 2, buf, len) ecall.
func (c *Console) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

// Restore returns the terminal to its state before [New] and cancels any in-progress blocking
// read by setting an immediate read deadline.
func (c *Console) Restore() {
	_ = c.in.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	return unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO)
}

// GetRandom fills buf using the host's getrandom(2), the same entropy source a real Linux guest
// would read via the syscall of the same name; internal/bootstrap falls back to crypto/rand if
// an embedder does not wire this in.
func GetRandom(buf []byte) (int, error) {
	return unix.Getrandom(buf, 0)
}

// randReader adapts [GetRandom] to io.Reader, so it can be passed directly as
// bootstrap.Options.Rand.
type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return GetRandom(p) }

// Rand is an io.Reader backed by the host's getrandom(2), for embedders that want
// bootstrap.Options.Rand to draw from the same entropy source a real guest kernel would rather
// than crypto/rand's default.
var Rand = randReader{}
