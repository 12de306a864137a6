// Package mem owns the physical frame allocator backing the kernel heap
// and user pages: one descriptor per page of RAM, a free list, per-frame
// reference counting, and the bump-allocator bridge bootstrap needs before
// the frame table itself exists to publish. Grounded on
// biscuit/src/mem/mem.go's Physmem_t, collapsed from its per-CPU free
// lists to a single global free list.
package mem

import (
	"fmt"
	"sync"

	"vmcore/defs"
	"vmcore/ramhw"
)

// frameDesc is one physical frame's bookkeeping. used=false implies
// refCount=0; a used frame has refCount>=1; a frame reserved at bootstrap
// from the pre-VM prefix is permanently used with refCount=1, never on the
// free list.
type frameDesc struct {
	used     bool
	refCount int32
	next     defs.PFN // free-list successor, meaningful only when !used
}

// DirectMapBase is the fixed offset of the direct-mapped kernel-virtual
// window over physical memory (the MIPS KSEG0 convention this system
// out). PaddrToKvaddr/KvaddrToPaddr are the trusted translation pair.
const DirectMapBase uintptr = 0x80000000

// PaddrToKvaddr returns the kernel-virtual alias of a physical address.
func PaddrToKvaddr(pa uintptr) uintptr { return pa + DirectMapBase }

// KvaddrToPaddr returns the physical address backing a kernel-virtual
// alias produced by PaddrToKvaddr.
func KvaddrToPaddr(kv uintptr) uintptr { return kv - DirectMapBase }

// FrameTable is the dense array of frame descriptors backing physical
// memory: N = total RAM / PAGE_SIZE entries, a frame's index is its PFN,
// and a single frametableLock (here a sync.Mutex) guards the array and
// firstFree for the entire allocate/free critical section — except the
// zero-fill, which happens after the lock is released because the frame
// is already marked used and belongs to the caller by then.
type FrameTable struct {
	mu        sync.Mutex
	ram       ramhw.RAM
	frames    []frameDesc
	firstFree defs.PFN
	startPFN  defs.PFN // PFN of frames[0]
	published bool
}

// NewFrameTable constructs a FrameTable over ram, in pre-bootstrap bump
// mode: AllocPage delegates straight to ram.StealMem until Bootstrap
// publishes the table.
func NewFrameTable(ram ramhw.RAM) *FrameTable {
	return &FrameTable{ram: ram}
}

// Bootstrap sizes and seeds the frame table: it queries
// total RAM and the first free physical address, computes N, allocates
// the frame-table array on the Go heap (it does not take frames from the
// RAM bump allocator, so it occupies no simulated frame), marks the
// pre-bootstrap prefix
// permanently used, threads the remainder into the free list in ascending
// order, and publishes the table. Before this call returns, AllocPage
// serves every request from the bump allocator; after it, AllocPage serves
// from the free list.
func (ft *FrameTable) Bootstrap() error {
	total := ft.ram.TotalBytes()
	firstFree := ft.ram.FirstFreePhys()
	n := int(total / defs.PageSize)

	frames := make([]frameDesc, n)
	reserved := int(firstFree / defs.PageSize)
	if reserved > n {
		reserved = n
	}
	for i := 0; i < reserved; i++ {
		frames[i] = frameDesc{used: true, refCount: 1, next: defs.NoFrame}
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.frames = frames
	ft.startPFN = 0
	if reserved >= n {
		ft.firstFree = defs.NoFrame
	} else {
		ft.firstFree = defs.PFN(reserved)
		for i := reserved; i < n; i++ {
			if i == n-1 {
				ft.frames[i].next = defs.NoFrame
			} else {
				ft.frames[i].next = defs.PFN(i + 1)
			}
		}
	}
	ft.published = true
	return nil
}

// AllocPage allocates a single zero-filled page and returns its
// kernel-virtual alias, or an OOM error. Before Bootstrap has published
// the table it delegates to the RAM bump allocator ("before
// publication, delegate to the bump allocator").
func (ft *FrameTable) AllocPage() (uintptr, error) {
	ft.mu.Lock()
	if !ft.published {
		ft.mu.Unlock()
		pa, err := ft.ram.StealMem(1)
		if err != nil {
			return 0, defs.NewError(defs.OOM, "mem.AllocPage", err)
		}
		kv := PaddrToKvaddr(pa)
		zero(ft.ram.Bytes(pa, defs.PageSize))
		return kv, nil
	}

	idx := ft.firstFree
	if idx == defs.NoFrame {
		ft.mu.Unlock()
		return 0, defs.NewError(defs.OOM, "mem.AllocPage", fmt.Errorf("no free frames"))
	}
	ft.firstFree = ft.frames[idx].next
	ft.frames[idx] = frameDesc{used: true, refCount: 1, next: defs.NoFrame}
	ft.mu.Unlock()

	pa := uintptr(idx) * defs.PageSize
	kv := PaddrToKvaddr(pa)
	zero(ft.ram.Bytes(pa, defs.PageSize))
	return kv, nil
}

// FreePage releases one reference on the frame backing kv. When the
// reference count reaches zero the frame is marked free and pushed onto
// the head of the free list. Freeing a bump-era (pre-publication)
// allocation is a silent no-op: those pages are kernel structures that are
// intentionally leaked for the lifetime of the system.
func (ft *FrameTable) FreePage(kv uintptr) error {
	pa := KvaddrToPaddr(kv)
	pfn := defs.PFN(pa / defs.PageSize)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if !ft.published || int(pfn) >= len(ft.frames) {
		return nil
	}
	f := &ft.frames[pfn]
	if !f.used {
		// contract violation: freeing a frame that isn't allocated.
		return nil
	}
	f.refCount--
	if f.refCount > 0 {
		return nil
	}
	f.used = false
	f.refCount = 0
	f.next = ft.firstFree
	ft.firstFree = pfn
	return nil
}

// RefMod atomically adjusts pfn's reference count by delta (±1) and
// returns the new count. Callers already inside a frame-table critical
// section (none in this package today) must not call it reentrantly; the
// callers outside mem itself are hpt's CopyPages/EvictOwner and vm's
// resolveCOW.
func (ft *FrameTable) RefMod(pfn defs.PFN, delta int32) int32 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f := &ft.frames[pfn]
	f.refCount += delta
	if f.refCount <= 0 {
		f.used = false
		f.refCount = 0
		f.next = ft.firstFree
		ft.firstFree = pfn
	}
	return f.refCount
}

// RefCount returns pfn's current reference count.
func (ft *FrameTable) RefCount(pfn defs.PFN) int32 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.frames[pfn].refCount
}

// Page returns the byte slice backing the frame addressed by the
// kernel-virtual alias kv, for callers (resolveCOW's page copy) that need
// to touch page contents directly.
func (ft *FrameTable) Page(kv uintptr) []byte {
	pa := KvaddrToPaddr(kv)
	return ft.ram.Bytes(pa, defs.PageSize)
}

// Stats reports the frame table's current geometry for diagnostics
// (cmd/vmctl stat).
type Stats struct {
	Total int
	Used  int
	Free  int
}

func (ft *FrameTable) Stat() Stats {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	s := Stats{Total: len(ft.frames)}
	for _, f := range ft.frames {
		if f.used {
			s.Used++
		}
	}
	s.Free = s.Total - s.Used
	return s
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
