package vm

// syscall.go wires the one system-call table entry this package itself provides a default for.
// Everything else is the embedder's concern (SPEC_FULL.md's ambient-stack / Linux-syscall-table
// boundary): this core dispatches to the table, it does not populate it.

// installDefaultSyscalls sets the single built-in entry: index 0, the breakpoint slot, which by
// default stops the machine. An embedder that wants ebreak to invoke a debugger instead
// installs its own handler at index 0 and overrides this default.
func (m *Machine) installDefaultSyscalls() {
	m.syscalls[0] = func(m *Machine) error {
		m.stop()
		return nil
	}
}
