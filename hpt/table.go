// Package hpt implements the globally-shared hashed inverted page table:
// a single open-addressed-by-chaining array mapping (address-space, VPN)
// pairs to frames, the COW-fork primitive (CopyPages), and AS-teardown
// (EvictOwner). Grounded on biscuit/src/hashtable/hashtable.go's
// Hashtable_t, collapsed from its per-bucket sync.RWMutex to one
// table-wide sync.Mutex: Find+Insert must run under a
// single pagetable_lock so at most one PTE per (AS, VPN) wins a concurrent
// fault race, which a per-bucket lock alone cannot guarantee.
package hpt

import (
	"sync"

	"vmcore/defs"
	"vmcore/mem"
	"vmcore/tlbhw"
)

// PTE is one page-table entry. A PTE is present iff Lo.Valid() and Owner
// names a live address space; next chains entries within a bucket.
type PTE struct {
	Owner defs.ASID
	VPN   uint32
	Lo    tlbhw.EntryLo
	next  *PTE
}

// Table is the global HPT: a fixed-size array of chain heads, length 2N
// protected end-to-end by a single mutex.
type Table struct {
	mu      sync.Mutex
	buckets []*PTE
}

// NewTable allocates a Table with the given number of chain-head buckets
// (2*N, where N is the frame-table's frame count).
func NewTable(buckets int) *Table {
	return &Table{buckets: make([]*PTE, buckets)}
}

// hash computes h(as, vpn) = (as XOR vpn) mod len(table).
func hash(as defs.ASID, vpn uint32, tableLen int) int {
	return int((uint64(as) ^ uint64(vpn)) % uint64(tableLen))
}

// Find returns the present PTE for (as, vpn), if any.
func (t *Table) Find(as defs.ASID, vpn uint32) (*PTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(as, vpn)
}

func (t *Table) findLocked(as defs.ASID, vpn uint32) (*PTE, bool) {
	idx := hash(as, vpn, len(t.buckets))
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.Owner == as && e.Lo.Valid() {
			return e, true
		}
	}
	return nil, false
}

// Lock/Unlock expose the table-wide mutex directly so the fault handler
// can hold it across Find+Insert ("held across find + insert in
// the fault handler to ensure at-most-one PTE per (AS, VPN) wins under
// concurrent faults").
func (t *Table) Lock()   { t.mu.Lock() }
func (t *Table) Unlock() { t.mu.Unlock() }

// FindLocked is Find without acquiring the lock; callers must already
// hold it (via Lock).
func (t *Table) FindLocked(as defs.ASID, vpn uint32) (*PTE, bool) {
	return t.findLocked(as, vpn)
}

// Insert pushes pte at the head of its bucket's chain. Callers construct
// the PTE (fault handler for a fresh page, AS-copy for a shared one).
func (t *Table) Insert(pte *PTE) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(pte)
}

// InsertLocked is Insert without acquiring the lock; callers must already
// hold it (via Lock).
func (t *Table) InsertLocked(pte *PTE) {
	t.insertLocked(pte)
}

func (t *Table) insertLocked(pte *PTE) {
	idx := hash(pte.Owner, pte.VPN, len(t.buckets))
	pte.next = t.buckets[idx]
	t.buckets[idx] = pte
}

// CopyPages is the COW-fork primitive: for every present PTE
// owned by oldAS, it demotes that PTE to read-only (dirty=0) and inserts a
// new PTE under newAS pointing at the same frame, also valid and read-only,
// raising that frame's reference count by one. Both ASes end up sharing the
// frame read-only until one of them takes a write fault.
func (t *Table) CopyPages(oldAS, newAS defs.ASID, ft *mem.FrameTable) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Collect before mutating: walking while appending to buckets we may
	// also be reading from (a VPN could, in principle, collide with
	// itself under the new owner) would risk visiting a newly-inserted
	// entry a second time.
	var owned []*PTE
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if e.Owner == oldAS && e.Lo.Valid() {
				owned = append(owned, e)
			}
		}
	}

	for _, e := range owned {
		ft.RefMod(e.Lo.Framenum(), 1)
		e.Lo = e.Lo.WithDirty(false)
		child := &PTE{
			Owner: newAS,
			VPN:   e.VPN,
			Lo:    e.Lo.WithValid(true),
		}
		t.insertLocked(child)
	}
	return nil
}

// EvictOwner walks the whole table, unlinking and releasing every PTE
// owned by as, dropping one reference on each referenced frame (which may
// free it). Used by AS teardown.
func (t *Table) EvictOwner(as defs.ASID, ft *mem.FrameTable) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, head := range t.buckets {
		var prev *PTE
		e := head
		for e != nil {
			next := e.next
			if e.Owner == as {
				if prev == nil {
					t.buckets[i] = next
				} else {
					prev.next = next
				}
				ft.RefMod(e.Lo.Framenum(), -1)
			} else {
				prev = e
			}
			e = next
		}
	}
}

// VPNsOwnedByLocked returns every VPN as holds a present PTE for. Callers
// must already hold the table lock (via Lock). It exists for
// CompleteLoad's OSM round trip, which needs to revisit every
// PTE an AS owns after demoting regions, without the HPT exposing its
// bucket layout to callers.
func (t *Table) VPNsOwnedByLocked(as defs.ASID) []uint32 {
	var vpns []uint32
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if e.Owner == as && e.Lo.Valid() {
				vpns = append(vpns, e.VPN)
			}
		}
	}
	return vpns
}

// Len reports the total number of present entries, for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if e.Lo.Valid() {
				n++
			}
		}
	}
	return n
}
