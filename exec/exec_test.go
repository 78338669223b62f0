package exec_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogeared-systems/ptcore/defs"
	"github.com/dogeared-systems/ptcore/exec"
	"github.com/dogeared-systems/ptcore/fsapi"
	"github.com/dogeared-systems/ptcore/proc"
	"github.com/dogeared-systems/ptcore/vm"
)

// buildELF hand-assembles a minimal 64-bit ET_EXEC image with a single
// PT_LOAD segment, the way debug/elf's own fixtures do — there is no
// ELF *writer* anywhere in the retrieved corpus (or the standard
// library) to build test binaries with, only the reader this package
// already uses.
func buildELF(entry, vaddr uint64, memsz uint64, code []byte) []byte {
	const ehsize = 64
	const phsize = 56

	buf := make([]byte, ehsize+phsize+len(code))

	// e_ident
	buf[0] = 0x7f
	buf[1], buf[2], buf[3] = 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)             // e_type = ET_EXEC
	le.PutUint16(buf[18:], 0x3e)          // e_machine = EM_X86_64
	le.PutUint32(buf[20:], 1)             // e_version
	le.PutUint64(buf[24:], entry)         // e_entry
	le.PutUint64(buf[32:], ehsize)        // e_phoff
	le.PutUint64(buf[40:], 0)             // e_shoff
	le.PutUint16(buf[52:], ehsize)        // e_ehsize
	le.PutUint16(buf[54:], phsize)        // e_phentsize
	le.PutUint16(buf[56:], 1)             // e_phnum
	le.PutUint16(buf[58:], 0)             // e_shentsize
	le.PutUint16(buf[60:], 0)             // e_shnum
	le.PutUint16(buf[62:], 0)             // e_shstrndx

	ph := buf[ehsize:]
	le.PutUint32(ph[0:], 1)                  // p_type = PT_LOAD
	le.PutUint32(ph[4:], 5)                  // p_flags = R+X
	le.PutUint64(ph[8:], ehsize+phsize)       // p_offset
	le.PutUint64(ph[16:], vaddr)              // p_vaddr
	le.PutUint64(ph[24:], vaddr)              // p_paddr
	le.PutUint64(ph[32:], uint64(len(code)))  // p_filesz
	le.PutUint64(ph[40:], memsz)              // p_memsz
	le.PutUint64(ph[48:], uint64(defs.PGSIZE)) // p_align

	copy(buf[ehsize+phsize:], code)
	return buf
}

func newFS() *fsapi.Fake { return fsapi.NewFake() }

func TestExecProcLoadsElfAndCommitsOntoProc(t *testing.T) {
	fs := newFS()
	code := []byte{0x90, 0x90, 0x90, 0x90}
	fs.Put("/bin/hello", buildELF(uint64(defs.PGSIZE), uint64(defs.PGSIZE), uint64(defs.PGSIZE), code))

	p := &proc.Proc{}
	p.AS = vm.KvmSetup() // exercise the old-address-space-freed path

	res, err := exec.ExecProc(fs, p, "/bin/hello", []string{"hello", "-x"})
	require.EqualValues(t, 0, err)
	assert.Equal(t, "hello", p.Name)
	assert.Equal(t, defs.PGSIZE, res.Entry)
	assert.NotZero(t, res.Sp)
	assert.Equal(t, res.Sz, p.Sz)
	assert.NotNil(t, p.AS)
}

func TestExecArgvOverMaxArgReturnsE2BIG(t *testing.T) {
	fs := newFS()
	argv := make([]string, defs.MAXARG+1)
	for i := range argv {
		argv[i] = "x"
	}

	_, _, err := exec.Exec(fs, "/bin/anything", argv)
	assert.Equal(t, defs.E2BIG, err)
}

func TestExecMisalignedVaddrReturnsEINVAL(t *testing.T) {
	fs := newFS()
	code := []byte{0x90, 0x90}
	// vaddr is one byte past a page boundary.
	fs.Put("/bin/bad", buildELF(uint64(defs.PGSIZE)+1, uint64(defs.PGSIZE)+1, uint64(defs.PGSIZE), code))

	_, _, err := exec.Exec(fs, "/bin/bad", nil)
	assert.Equal(t, defs.EINVAL, err)
}

func TestExecMemszBelowFileszReturnsEINVAL(t *testing.T) {
	fs := newFS()
	code := []byte{0x90, 0x90, 0x90, 0x90}
	// memsz (1) is smaller than the 4 bytes of code filesz would load.
	fs.Put("/bin/short", buildELF(uint64(defs.PGSIZE), uint64(defs.PGSIZE), 1, code))

	_, _, err := exec.Exec(fs, "/bin/short", nil)
	assert.Equal(t, defs.EINVAL, err)
}

func TestExecNonexistentPathReturnsENOENT(t *testing.T) {
	fs := newFS()
	_, _, err := exec.Exec(fs, "/bin/does-not-exist", nil)
	assert.Equal(t, defs.ENOENT, err)
}
