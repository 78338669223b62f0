// Package exec implements the ELF-loading half of exec(2) (spec.md
// §4.15): build a brand new address space from an on-disk image and
// atomically swap it in for the calling process's old one, so that any
// failure along the way leaves the caller's original program intact
// and runnable. It is grounded in the teacher's own build-time ELF tool
// (cmd/chentry, ported verbatim from biscuit/src/kernel/chentry.go) for
// its choice of debug/elf as the parser, generalized here from a
// one-field header patch into full program-header iteration and
// segment loading.
package exec

import (
	"debug/elf"
	"io"

	"github.com/dogeared-systems/ptcore/defs"
	"github.com/dogeared-systems/ptcore/fsapi"
	"github.com/dogeared-systems/ptcore/proc"
	"github.com/dogeared-systems/ptcore/vm"
)

// stackPages is the number of pages mapped for the new process's
// initial user stack, below which a single guard page (mapped, but
// marked inaccessible with ClearUser) catches a stack overflow as a
// fault rather than silent corruption (spec.md
// §4.15 step 6).
const stackPages = 1

/// Result carries exec's output back to the caller: the new entry point
/// and stack pointer a trapframe would be rebuilt around. This module
/// has no trapframe type of its own (spec.md §1 places trap/interrupt
/// plumbing out of scope); Result is as far as this core's contract
/// goes.
type Result struct {
	Entry int
	Sp    int
	Sz    int
}

/// Exec implements the load half of exec(): build a fresh address space
/// from path's ELF image plus argv, but never touches any process — see
/// ExecProc for the commit-onto-a-Proc half (spec.md §4.15 steps 9-10).
/// path is looked up through fs under a single begin_op/end_op
/// transaction (spec.md §4.15 step 2); img is the inode's random-access
/// content backing every PT_LOAD segment's reads (spec.md §1: readi,
/// consumed here as io.ReaderAt rather than a concrete inode type).
//
// On any failure, the partially built address space is freed and nil is
// returned, matching the original's "exec never gets half done"
// guarantee (spec.md §7).
func Exec(fs fsapi.FS, path string, argv []string) (*vm.AddressSpace, Result, defs.Err_t) {
	if len(argv) > defs.MAXARG {
		return nil, Result{}, defs.E2BIG
	}

	end := fs.BeginOp()
	ino, err := fs.Namei(path)
	end()
	if err != 0 {
		return nil, Result{}, err
	}
	defer ino.Put()

	var img io.ReaderAt = ino

	hdr, err := readHeader(img)
	if err != 0 {
		return nil, Result{}, err
	}

	as := vm.KvmSetup()
	sz := 0
	for _, ph := range hdr.progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		// Reject a file image bigger than its own in-memory region and a
		// vaddr+memsz that wraps the address space (spec.md §4.15 step 4,
		// original_source/exec.c's ph.memsz < ph.filesz / overflow checks).
		if ph.Memsz < ph.Filesz {
			as.Free()
			return nil, Result{}, defs.EINVAL
		}
		if ph.Vaddr+ph.Memsz < ph.Vaddr {
			as.Free()
			return nil, Result{}, defs.EINVAL
		}
		if ph.Vaddr%uint64(defs.PGSIZE) != 0 {
			as.Free()
			return nil, Result{}, defs.EINVAL
		}
		segEnd := int(ph.Vaddr + ph.Memsz)
		if segEnd < sz {
			as.Free()
			return nil, Result{}, defs.EINVAL
		}
		newsz, aerr := as.Alloc(sz, segEnd)
		if aerr != 0 {
			as.Free()
			return nil, Result{}, aerr
		}
		sz = newsz
		if ph.Filesz > 0 {
			if lerr := as.Load(int(ph.Vaddr), img, int64(ph.Off), int(ph.Filesz)); lerr != 0 {
				as.Free()
				return nil, Result{}, lerr
			}
		}
	}
	if sz == 0 {
		as.Free()
		return nil, Result{}, defs.EINVAL
	}

	// Round up to a page boundary, leave one guard page, then map the
	// stack (spec.md §4.15 step 6).
	sz = roundup(sz, defs.PGSIZE)
	guard := sz
	stackBase := guard + defs.PGSIZE
	stackTop := stackBase + stackPages*defs.PGSIZE
	newsz, aerr := as.Alloc(sz, stackTop)
	if aerr != 0 {
		as.Free()
		return nil, Result{}, aerr
	}
	as.ClearUser(guard)

	sp, perr := pushArgv(as, stackBase, stackTop, argv)
	if perr != 0 {
		as.Free()
		return nil, Result{}, perr
	}

	return as, Result{Entry: int(hdr.entry), Sp: sp, Sz: newsz}, 0
}

/// ExecProc implements the commit half of exec() that Exec itself never
/// touches: it loads path into a fresh address space via Exec, and only
/// on success swaps it onto p, deriving p.Name from path's basename and
/// freeing p's previous address space once the new one is live
/// (original_source/exec.c's "Save program name for debugging" and
/// "Commit to the user image" blocks, spec.md §4.15 steps 9-10). On any
/// failure p is left completely unchanged, matching Exec's own
/// all-or-nothing contract.
func ExecProc(fs fsapi.FS, p *proc.Proc, path string, argv []string) (Result, defs.Err_t) {
	as, res, err := Exec(fs, path, argv)
	if err != 0 {
		return Result{}, err
	}

	old := p.AS
	p.Name = pathBase(path)
	p.AS = as
	p.Sz = res.Sz
	as.Switch()
	if old != nil {
		old.Free()
	}
	return res, 0
}

// pathBase returns path's final slash-separated component, mirroring
// the original's "last '/' wins" scan (original_source/exec.c) rather
// than reaching for path/filepath, since fs paths here are always
// slash-separated virtual paths, never host filesystem ones.
func pathBase(p string) string {
	last := p
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			last = p[i+1:]
		}
	}
	return last
}

type elfHeader struct {
	entry uint64
	progs []elf.ProgHeader
}

// readHeader parses and validates the ELF header and program-header
// table: it checks the magic number and that the image is ET_EXEC (of
// cmd/chentry's chkELF checks, only the ET_EXEC one; byte order and
// machine are not checked). elf.File parses
// e_ident internally and exposes none of its raw bytes back out (no
// Ident field on elf.File/elf.FileHeader), so the magic is checked
// directly against the first 4 bytes of the image rather than through
// the parsed result.
func readHeader(r io.ReaderAt) (elfHeader, defs.Err_t) {
	var magic [4]byte
	if _, rerr := r.ReadAt(magic[:], 0); rerr != nil {
		return elfHeader{}, defs.EINVAL
	}
	if magic[0] != 0x7f || string(magic[1:4]) != "ELF" {
		return elfHeader{}, defs.EINVAL
	}

	f, err := elf.NewFile(r)
	if err != nil {
		return elfHeader{}, defs.EINVAL
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC {
		return elfHeader{}, defs.EINVAL
	}

	progs := make([]elf.ProgHeader, len(f.Progs))
	for i, ph := range f.Progs {
		progs[i] = ph.ProgHeader
	}
	return elfHeader{entry: f.Entry, progs: progs}, 0
}

func roundup(n, pg int) int {
	if n%pg == 0 {
		return n
	}
	return n + (pg - n%pg)
}

// fakeReturnPC is the sentinel a freshly exec'd main's caller-return
// slot is seeded with (original_source/exec.c's ustack[0] = 0xffffffff):
// main is never supposed to return, so this value sits where esp points
// at entry and faults if it's ever jumped to.
const fakeReturnPC = 0xFFFFFFFF

// pushArgv lays out argv on the new stack immediately below stackTop:
// NUL-terminated strings, then a NULL-terminated pointer vector, then
// the 3-word header (fake return PC, argc, pointer-vector address) a
// freshly loaded main(argc, argv) expects right at the initial stack
// pointer (spec.md §4.15 step 8, §6's user-stack layout,
// original_source/exec.c:89-94's ustack[0..2]). Returns the resulting
// stack pointer, which points at that header.
func pushArgv(as *vm.AddressSpace, stackBase, stackTop int, argv []string) (int, defs.Err_t) {
	sp := stackTop
	ptrs := make([]int, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		n := len(s) + 1
		sp -= n
		sp &^= 7 // keep string data 8-byte aligned
		buf := make([]byte, n)
		copy(buf, s)
		if err := as.CopyOut(sp, buf); err != 0 {
			return 0, err
		}
		ptrs[i] = sp
		if sp < stackBase {
			return 0, defs.E2BIG
		}
	}

	// Pointer vector: argv[0..n-1], then a NULL terminator.
	vecBytes := make([]byte, 8*(len(ptrs)+1))
	for i, p := range ptrs {
		putWord(vecBytes[i*8:], uint64(p))
	}
	sp -= len(vecBytes)
	sp &^= 7
	if sp < stackBase {
		return 0, defs.E2BIG
	}
	if err := as.CopyOut(sp, vecBytes); err != 0 {
		return 0, err
	}
	argvAddr := sp

	// Header: fake return PC, argc, pointer-vector address — laid out
	// below the vector, since it's what a caller's stack frame would
	// hold just above a normal call's return address.
	header := make([]byte, 24)
	putWord(header[0:], uint64(fakeReturnPC))
	putWord(header[8:], uint64(len(argv)))
	putWord(header[16:], uint64(argvAddr))
	sp -= len(header)
	sp &^= 7
	if sp < stackBase {
		return 0, defs.E2BIG
	}
	if err := as.CopyOut(sp, header); err != 0 {
		return 0, err
	}
	return sp, 0
}

func putWord(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
