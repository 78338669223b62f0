package proc

import "github.com/dogeared-systems/ptcore/defs"

/// GrowProc implements growproc() (spec.md §4.13): adjust the calling
/// process's address space by n bytes (grow if positive, shrink if
/// negative) and update its recorded size on success. As in the
/// original, whose growproc treats a deallocuvm return of exactly 0 as
/// failure, a shrink that leaves a size of exactly 0 returns ENOMEM and
/// leaves p.Sz unchanged, although Dealloc has already freed the pages
/// (see vm.AddressSpace.Dealloc's doc comment and SPEC_FULL.md §13).
//
// Must only be called from within a workload (table lock already held,
// though GrowProc itself touches only p.AS and p.Sz, neither of which
// any other process can observe or mutate).
func (t *Table) GrowProc(p *Proc, n int) defs.Err_t {
	newsz := p.Sz + n
	if newsz < 0 {
		return defs.EINVAL
	}
	var sz int
	var err defs.Err_t
	if n >= 0 {
		sz, err = p.AS.Alloc(p.Sz, newsz)
	} else {
		sz, err = p.AS.Dealloc(p.Sz, newsz)
	}
	if err != 0 {
		return err
	}
	if n < 0 && sz == 0 {
		return defs.ENOMEM
	}
	p.Sz = sz
	return 0
}
