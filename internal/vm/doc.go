/*
Package vm implements the core of a user-mode RISC-V instruction set emulator.

The package loads an ELF-format RISC-V executable, decodes its instructions into an internal
bytecode, and executes that bytecode against a simulated register file and a paged virtual
address space, invoking host-provided callbacks when the guest executes an environment-call
instruction.

# Memory #

Guest memory is a sparse map of 4 KiB [page] frames, each carrying its own read/write/execute
attributes and an optional copy-on-write flag. A [Memory] controller mediates every access, keeps
a one-entry read cache and a one-entry write cache (mirroring the spirit of a single-entry TLB),
and loads ELF program segments into the page map.

# Decoder and dispatch #

Each executable segment gets its own array of decoded [Slot] values, one per addressable
instruction position, produced by [Decoder.Decode]. A [Slot] names an internal [Bytecode] plus a
small packed operand tuple; the dispatch loop drives execution by reading slots at the current PC
and invoking the matching handler from the opTable handler table, in one of three equivalent
dispatch strategies ([DispatchSwitch], [DispatchThreaded], [DispatchTailCall]).

# Machine #

[Machine] composes a [CPU] and a [Memory], owns the system-call table, the instruction-counter
ceiling, and optional thread multiplexer and arena, and exposes the embedder-facing surface:
[Machine.Simulate], [Machine.VMCall], [Machine.CopyToGuest], [Machine.CopyFromGuest], and
[Machine.AddressOf].

# Scope #

This package implements only the dispatch contract for system calls -- the particular set of
Linux-flavored handlers (file I/O, sockets, uname, ...) are the embedder's concern, wired in through
[Machine.InstallSyscallHandler]. Supervisor-mode CSR emulation and the vector extension are out
of scope. Decoded slots are dropped only when [Memory.SetPageAttr] changes a page's attributes;
a plain store into already-decoded code does not invalidate them.
*/
package vm
