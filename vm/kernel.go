package vm

import (
	"vmcore/defs"
	"vmcore/hpt"
	"vmcore/mem"
	"vmcore/ramhw"
	"vmcore/tlbhw"
)

// Kernel bundles the frame table, the global HPT and the hardware
// boundary: the dependency-injection root every AS/fault operation goes
// through (SPEC_FULL.md's "Kernel" glossary entry). It is the Go-idiomatic
// stand-in for biscuit's package-level globals (mem.Physmem, a package
// var): bundling them keeps every component independently testable.
type Kernel struct {
	Frames *mem.FrameTable
	Pages  *hpt.Table
	TLB    tlbhw.Hardware
	IRQ    tlbhw.InterruptMask
}

// Bootstrap performs the boot-time sequence: the HPT chain-
// head array (length 2N, zero-initialized) is sized and allocated first,
// then the frame table is sized, allocated and published. Both arrays live
// for the lifetime of the returned Kernel.
func Bootstrap(ram ramhw.RAM, tlb tlbhw.Hardware, irq tlbhw.InterruptMask) (*Kernel, error) {
	n := int(ram.TotalBytes() / defs.PageSize)
	if n <= 0 {
		return nil, defs.NewError(defs.OOM, "vm.Bootstrap", nil)
	}

	pages := hpt.NewTable(2 * n)

	frames := mem.NewFrameTable(ram)
	if err := frames.Bootstrap(); err != nil {
		return nil, defs.NewError(defs.OOM, "vm.Bootstrap", err)
	}

	return &Kernel{Frames: frames, Pages: pages, TLB: tlb, IRQ: irq}, nil
}

// AllocKPages allocates a single kernel page and returns its
// kernel-virtual address (alloc_kpages). Multi-page requests are
// rejected once the frame table has published, matching the frame table's
// one-page-at-a-time contract.
func (k *Kernel) AllocKPages(n int) (uintptr, error) {
	if n != 1 {
		return 0, defs.NewError(defs.OOM, "vm.AllocKPages", nil)
	}
	return k.Frames.AllocPage()
}

// FreeKPages releases a page returned by AllocKPages (
// free_kpages).
func (k *Kernel) FreeKPages(kv uintptr) error {
	return k.Frames.FreePage(kv)
}

// PrepareLoad temporarily widens every region lacking W with the W|OSM
// overlay, letting the ELF loader write into RX/R regions.
func (k *Kernel) PrepareLoad(as *AS) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for r := as.regions; r != nil; r = r.next {
		if !r.W {
			r.W = true
			r.OSM = true
		}
	}
}

// CompleteLoad narrows every OSM-overlaid region back to its original
// permissions, clears the dirty (write-enable) bit on every present PTE
// owned by as whose VPN falls inside a demoted region so the next write
// takes a protection fault, and flushes the TLB. Grounded on
// original_source/kern/vm/addrspace.c's as_prepare_load/as_complete_load
// round trip, which spells out this sequence in code.
func (k *Kernel) CompleteLoad(as *AS) {
	var demoted []*Region
	as.mu.Lock()
	for r := as.regions; r != nil; r = r.next {
		if r.OSM {
			r.W = false
			r.OSM = false
			demoted = append(demoted, r)
		}
	}
	as.mu.Unlock()

	if len(demoted) > 0 {
		k.Pages.Lock()
		for _, vpn := range k.Pages.VPNsOwnedByLocked(as.id) {
			pte, ok := k.Pages.FindLocked(as.id, vpn)
			if !ok {
				continue
			}
			vbase := uintptr(vpn) << defs.PageBits
			for _, r := range demoted {
				top := r.VBase + uintptr(r.NPages)*defs.PageSize
				if vbase >= r.VBase && vbase < top {
					pte.Lo = pte.Lo.WithDirty(false)
					break
				}
			}
		}
		k.Pages.Unlock()
	}

	k.flushTLB()
}
