package vm

import (
	"fmt"

	"vmcore/defs"
)

// Region is a contiguous, page-aligned virtual range with RWX permissions
// OSM marks a region temporarily widened with W by PrepareLoad,
// to be narrowed back by CompleteLoad once the ELF loader is done with it.
// Regions are never resized or split once added, and form a per-AS
// singly linked list in prepend order.
type Region struct {
	VBase   uintptr
	NPages  int
	R, W, X bool
	OSM     bool

	next *Region
}

func pageAlign(vaddr uintptr, size int) (base uintptr, npages int) {
	top := vaddr + uintptr(size)
	base = vaddr &^ uintptr(defs.PageOffset)
	alignedTop := (top + defs.PageOffset) &^ uintptr(defs.PageOffset)
	return base, int(alignedTop-base) / defs.PageSize
}

// DefineRegion page-aligns [vaddr, vaddr+size) down/up and prepends a new
// Region with the given permissions. Regions may overlap; the
// overlap-rejection question is resolved in DESIGN.md by
// accepting first-match, matching the source's behavior.
func (as *AS) DefineRegion(vaddr uintptr, size int, r, w, x bool) error {
	if size <= 0 {
		return defs.NewError(defs.BadArg, "vm.DefineRegion", fmt.Errorf("size %d <= 0", size))
	}
	base, npages := pageAlign(vaddr, size)

	as.mu.Lock()
	defer as.mu.Unlock()
	as.regions = &Region{VBase: base, NPages: npages, R: r, W: w, X: x, next: as.regions}
	return nil
}

// CheckAddr returns the first region (in prepend/insertion order) whose
// [VBase, VBase+NPages*PageSize) range contains vaddr (
// "check_addr uses first-match on the list").
func (as *AS) CheckAddr(vaddr uintptr) (*Region, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.checkAddrLocked(vaddr)
}

func (as *AS) checkAddrLocked(vaddr uintptr) (*Region, bool) {
	for r := as.regions; r != nil; r = r.next {
		top := r.VBase + uintptr(r.NPages)*defs.PageSize
		if vaddr >= r.VBase && vaddr < top {
			return r, true
		}
	}
	return nil, false
}

// DefineStack defines the fixed-size stack region at
// [UserStack-StackSize, UserStack) with RW (no X) and returns UserStack as
// the initial stack pointer. It is a Kernel method, like PrepareLoad and
// CompleteLoad, rather than an AS method like DefineRegion and CheckAddr,
// since setting up the initial stack is part of the process-creation
// sequence Kernel drives, not a primitive AS exposes on its own.
func (k *Kernel) DefineStack(as *AS) (sp uintptr, err error) {
	base := uintptr(defs.UserStack - defs.StackSize)
	if err := as.DefineRegion(base, defs.StackSize, true, true, false); err != nil {
		return 0, err
	}
	return defs.UserStack, nil
}

// forEachRegion calls fn for every region, in list order. fn must not
// mutate the list.
func (as *AS) forEachRegion(fn func(*Region)) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for r := as.regions; r != nil; r = r.next {
		fn(r)
	}
}
