// Package fsapi defines the filesystem/inode boundary that spec.md §1
// lists as an external collaborator consumed via named interfaces
// (namei, ilock, iunlockput, readi, iput, idup, filedup, fileclose,
// begin_op, end_op). The process/scheduling core only ever needs to
// look a path up to an io.ReaderAt for exec, duplicate/close file and
// cwd handles across fork/exit, and bracket a lookup in a
// begin_op/end_op transaction — so that is all this package exposes, as
// interfaces the kernel's vfs would satisfy.
//
// fsapi also ships a small in-memory Fake filesystem, grounded on the
// teacher's fd (biscuit/src/fd/fd.go: Fd_t, Copyfd, Cwd_t) and fs
// (biscuit/src/fs/super.go) packages, so that userinit, fork, exec and
// their tests have something real to exercise without booting an actual
// disk and buffer-cache stack — which spec.md §1 explicitly places out
// of this core's scope.
package fsapi

import (
	"io"
	"sync"

	"github.com/dogeared-systems/ptcore/defs"
)

/// Inode is the minimal inode surface exec and the fd table need:
/// random-access reads (uvm_load's source) and reference counting
/// (idup/iput).
type Inode interface {
	io.ReaderAt
	/// Dup increments the inode's refcount, mirroring idup.
	Dup() Inode
	/// Put decrements the inode's refcount, mirroring iput; the last
	/// Put releases any backing resource.
	Put()
}

/// File is an open file description, shared by refcount across fork the
/// way the teacher's Fd_t is (biscuit/src/fd/fd.go).
type File interface {
	/// Dup increments the description's refcount, mirroring filedup.
	Dup() File
	/// Close decrements the description's refcount, mirroring fileclose.
	Close() defs.Err_t
}

/// FS is the lookup/transaction surface exec and userinit use. A real
/// kernel's vfs would implement this against its buffer cache and
/// on-disk layout; this package's Fake implements it in memory.
type FS interface {
	/// Namei resolves path to an inode, or ENOENT if it does not exist.
	Namei(path string) (Inode, defs.Err_t)
	/// BeginOp brackets a lookup/allocation in a filesystem transaction,
	/// mirroring begin_op/end_op. end is always called, exactly once,
	/// regardless of the bracketed operation's outcome.
	BeginOp() (end func())
}

// ---- in-memory fake, for boot and tests ----

/// memInode is a Fake-backed Inode over a fixed byte buffer.
type memInode struct {
	mu   sync.Mutex
	data []byte
	refs int
}

func (m *memInode) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off) > len(m.data) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memInode) Dup() Inode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs++
	return m
}

func (m *memInode) Put() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs--
}

/// memFile is a Fake-backed File: a thin, refcounted handle with no
/// content of its own.
type memFile struct {
	mu   sync.Mutex
	refs int
}

func (f *memFile) Dup() File {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs++
	return f
}

func (f *memFile) Close() defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs == 0 {
		panic("fsapi: close of already-closed file")
	}
	f.refs--
	return 0
}

/// NewFile returns a fresh, singly-referenced File. UserInit does not
/// call it; the first process starts with no open files.
func NewFile() File { return &memFile{refs: 1} }

/// Fake is a tiny in-memory filesystem: a fixed path->bytes table, no
/// directories, no on-disk format. It exists so this module's exec and
/// userinit paths have a real FS/Inode to drive in boot and in tests,
/// standing in for the buffer-cache-backed vfs spec.md §1 places out of
/// scope.
type Fake struct {
	mu    sync.Mutex
	files map[string][]byte
}

/// NewFake builds an empty in-memory filesystem.
func NewFake() *Fake {
	return &Fake{files: make(map[string][]byte)}
}

/// Put installs (or overwrites) the contents of path, e.g. to seed an
/// ELF image for exec tests.
func (f *Fake) Put(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[path] = cp
}

/// Namei implements FS.Namei.
func (f *Fake) Namei(path string) (Inode, defs.Err_t) {
	f.mu.Lock()
	data, ok := f.files[path]
	f.mu.Unlock()
	if !ok {
		return nil, defs.ENOENT
	}
	return &memInode{data: data, refs: 1}, 0
}

/// BeginOp implements FS.BeginOp. The fake filesystem needs no real
/// transaction log, so the returned end func is a no-op; it exists so
/// callers still bracket every lookup exactly as spec.md §4.15 step 2
/// requires, regardless of which FS implementation is wired in.
func (f *Fake) BeginOp() func() {
	return func() {}
}
