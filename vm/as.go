package vm

import (
	"sync"
	"sync/atomic"

	"vmcore/defs"
	"vmcore/tlbhw"
)

// AS is a process address space: a per-AS list of regions. It owns no
// pages directly — those live in the global HPT keyed by AS.id.
type AS struct {
	id defs.ASID

	mu      sync.Mutex
	regions *Region
}

// ID returns the AS's identity, the key its PTEs are filed under in the
// global HPT.
func (as *AS) ID() defs.ASID { return as.id }

var nextASID atomic.Uint64

func mintASID() defs.ASID {
	// Monotonic and never reused for the process lifetime, so an AS
	// identity is never reused while its PTEs may still be in the table.
	return defs.ASID(nextASID.Add(1))
}

// Create returns a fresh, empty address space.
func (k *Kernel) Create() *AS {
	return &AS{id: mintASID()}
}

// Copy forks old into a new address space: the region list is duplicated
// verbatim, in the same order, with OSM never carried over (any
// in-progress load overlay ends with the parent) — then
// hpt.Table.CopyPages installs shared-read-only PTEs for the COW fork. On
// any failure the partially built AS is destroyed before returning,
// releasing whatever work had already completed.
func (k *Kernel) Copy(old *AS) (*AS, error) {
	child := k.Create()

	var tail *Region
	old.forEachRegion(func(r *Region) {
		cp := &Region{VBase: r.VBase, NPages: r.NPages, R: r.R, W: r.W, X: r.X}
		if tail == nil {
			child.regions = cp
		} else {
			tail.next = cp
		}
		tail = cp
	})

	if err := k.Pages.CopyPages(old.id, child.id, k.Frames); err != nil {
		k.Destroy(child)
		return nil, err
	}
	return child, nil
}

// Destroy evicts every HPT entry owned by as (releasing frame references,
// possibly freeing frames), frees its regions, and flushes the TLB.
func (k *Kernel) Destroy(as *AS) {
	k.Pages.EvictOwner(as.id, k.Frames)
	as.mu.Lock()
	as.regions = nil
	as.mu.Unlock()
	k.flushTLB()
}

// Activate flushes every TLB slot on behalf of a context switch into as,
// since this system carries no ASIDs and must fully flush on every switch.
// Callers (not Kernel) track which AS is current and pass it into Fault.
func (k *Kernel) Activate(as *AS) {
	k.flushTLB()
}

// Deactivate flushes the TLB on behalf of an address space being switched
// away from.
func (k *Kernel) Deactivate(as *AS) {
	k.flushTLB()
}

func (k *Kernel) flushTLB() {
	tlbhw.WithInterruptsMasked(k.IRQ, k.TLB.FlushAll)
}
