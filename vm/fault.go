package vm

import (
	"fmt"

	"vmcore/defs"
	"vmcore/hpt"
	"vmcore/mem"
	"vmcore/tlbhw"
)

func pfnOf(kv uintptr) defs.PFN { return defs.PFN(mem.KvaddrToPaddr(kv) / defs.PageSize) }
func kvOf(pfn defs.PFN) uintptr { return mem.PaddrToKvaddr(uintptr(pfn) * defs.PageSize) }

// Fault is the TLB-miss entry point: vm_fault(fault_kind,
// fault_vaddr). It classifies the access, validates it against as's
// regions, materializes or shares a page, resolves copy-on-write write
// faults, and installs a TLB entry. A nil as models "no current process /
// no current address space" (an early-boot fault), which is always a
// BadFault.
func (k *Kernel) Fault(as *AS, kind defs.FaultKind, vaddr uintptr) error {
	if as == nil {
		return defs.NewError(defs.BadFault, "vm.Fault", fmt.Errorf("no current address space"))
	}
	switch kind {
	case defs.FaultRead, defs.FaultWrite, defs.FaultReadOnly:
	default:
		return defs.NewError(defs.BadArg, "vm.Fault", fmt.Errorf("unrecognized fault kind %v", kind))
	}

	vpn := uint32(vaddr >> defs.PageBits)
	pageVBase := vaddr &^ uintptr(defs.PageOffset)

	k.Pages.Lock()
	defer k.Pages.Unlock()

	pte, hit := k.Pages.FindLocked(as.id, vpn)
	if !hit {
		if kind == defs.FaultReadOnly {
			// a READONLY trap can only be taken against an existing
			// mapping; without one this is a kernel/contract error, not a
			// user-visible condition to paper over.
			return defs.NewError(defs.BadFault, "vm.Fault", fmt.Errorf("readonly fault on unmapped page"))
		}
		return k.faultMiss(as, vpn, pageVBase)
	}

	if (kind == defs.FaultWrite || kind == defs.FaultReadOnly) && !pte.Lo.Dirty() {
		region, ok := as.checkAddrLocked(vaddr)
		if !ok || !region.W {
			return defs.NewError(defs.BadFault, "vm.Fault", fmt.Errorf("write to non-writable region at %#x", vaddr))
		}
		if err := k.resolveCOW(pte); err != nil {
			return err
		}
	}

	k.writeTLB(pageVBase, pte.Lo)
	return nil
}

// faultMiss handles an HPT miss: validate the address against as's
// regions, allocate a frame, build a fresh PTE and insert it (the miss
// step 3). Callers must hold k.Pages's lock.
func (k *Kernel) faultMiss(as *AS, vpn uint32, pageVBase uintptr) error {
	region, ok := as.checkAddrLocked(pageVBase)
	if !ok {
		return defs.NewError(defs.BadFault, "vm.Fault", fmt.Errorf("address %#x is outside any region", pageVBase))
	}

	kv, err := k.Frames.AllocPage()
	if err != nil {
		return err
	}
	pfn := pfnOf(kv)

	lo := tlbhw.NewEntryLo(pfn, false, region.W, true, false)
	pte := &hpt.PTE{Owner: as.id, VPN: vpn, Lo: lo}
	k.Pages.InsertLocked(pte)

	k.writeTLB(pageVBase, lo)
	return nil
}

// resolveCOW resolves a write fault against a read-only (dirty=0) PTE
// If the backing frame's refcount is 1, this AS is the sole
// owner and the PTE is simply promoted to writable in place. Otherwise a
// new frame is allocated, the old page's contents copied into it, the PTE
// repointed at the new frame with dirty=1, and the old frame's refcount
// dropped by one. Callers must hold k.Pages's lock; the caller (Fault)
// must not write the TLB until this returns successfully.
func (k *Kernel) resolveCOW(pte *hpt.PTE) error {
	oldPFN := pte.Lo.Framenum()
	if k.Frames.RefCount(oldPFN) == 1 {
		pte.Lo = pte.Lo.WithDirty(true)
		return nil
	}

	newKV, err := k.Frames.AllocPage()
	if err != nil {
		return err
	}
	newPFN := pfnOf(newKV)

	oldKV := kvOf(oldPFN)
	copy(k.Frames.Page(newKV), k.Frames.Page(oldKV))

	pte.Lo = pte.Lo.WithFramenum(newPFN).WithDirty(true)
	k.Frames.RefMod(oldPFN, -1)
	return nil
}

func (k *Kernel) writeTLB(pageVBase uintptr, lo tlbhw.EntryLo) {
	hi := tlbhw.NewEntryHi(uint32(pageVBase >> defs.PageBits))
	tlbhw.WithInterruptsMasked(k.IRQ, func() {
		k.TLB.Random(hi, lo)
	})
}
