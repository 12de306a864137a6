package hpt_test

import (
	"testing"

	"vmcore/defs"
	"vmcore/hpt"
	"vmcore/mem"
	"vmcore/ramhw"
	"vmcore/tlbhw"
)

func newTestFrameTable(t *testing.T, pages int) *mem.FrameTable {
	t.Helper()
	ram, err := ramhw.NewSimRAM(pages*defs.PageSize, defs.PageSize)
	if err != nil {
		t.Fatalf("NewSimRAM: %v", err)
	}
	t.Cleanup(func() { _ = ram.Close() })
	ft := mem.NewFrameTable(ram)
	if err := ft.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return ft
}

func TestFindInsertAtMostOnePresentPerKey(t *testing.T) {
	table := hpt.NewTable(8)
	as := defs.ASID(1)

	if _, ok := table.Find(as, 5); ok {
		t.Fatal("Find on empty table returned a hit")
	}

	lo := tlbhw.NewEntryLo(3, false, true, true, false)
	table.Insert(&hpt.PTE{Owner: as, VPN: 5, Lo: lo})

	got, ok := table.Find(as, 5)
	if !ok {
		t.Fatal("Find after Insert returned a miss")
	}
	if got.Lo.Framenum() != 3 {
		t.Fatalf("Framenum = %d, want 3", got.Lo.Framenum())
	}

	// a different AS must not see the entry.
	if _, ok := table.Find(defs.ASID(2), 5); ok {
		t.Fatal("Find leaked entry across address spaces")
	}
}

func TestCopyPagesSharesReadOnlyAndBumpsRefcount(t *testing.T) {
	ft := newTestFrameTable(t, 8)
	table := hpt.NewTable(16)

	parent := defs.ASID(1)
	child := defs.ASID(2)

	kv, err := ft.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	pfn := defs.PFN(mem.KvaddrToPaddr(kv) / defs.PageSize)
	lo := tlbhw.NewEntryLo(pfn, false, true, true, false)
	table.Insert(&hpt.PTE{Owner: parent, VPN: 9, Lo: lo})

	if err := table.CopyPages(parent, child, ft); err != nil {
		t.Fatalf("CopyPages: %v", err)
	}

	pPte, ok := table.Find(parent, 9)
	if !ok {
		t.Fatal("parent lost its PTE after CopyPages")
	}
	cPte, ok := table.Find(child, 9)
	if !ok {
		t.Fatal("child did not receive a PTE from CopyPages")
	}
	if pPte.Lo.Framenum() != cPte.Lo.Framenum() {
		t.Fatal("parent and child PTEs point at different frames")
	}
	if pPte.Lo.Dirty() || cPte.Lo.Dirty() {
		t.Fatal("CopyPages must leave both PTEs read-only (dirty=0)")
	}
	if got := ft.RefCount(pfn); got != 2 {
		t.Fatalf("RefCount after CopyPages = %d, want 2", got)
	}
}

func TestEvictOwnerReleasesOnlyThatOwnersFrames(t *testing.T) {
	ft := newTestFrameTable(t, 8)
	table := hpt.NewTable(16)

	as1, as2 := defs.ASID(1), defs.ASID(2)
	kv1, _ := ft.AllocPage()
	kv2, _ := ft.AllocPage()
	pfn1 := defs.PFN(mem.KvaddrToPaddr(kv1) / defs.PageSize)
	pfn2 := defs.PFN(mem.KvaddrToPaddr(kv2) / defs.PageSize)

	table.Insert(&hpt.PTE{Owner: as1, VPN: 1, Lo: tlbhw.NewEntryLo(pfn1, false, true, true, false)})
	table.Insert(&hpt.PTE{Owner: as2, VPN: 1, Lo: tlbhw.NewEntryLo(pfn2, false, true, true, false)})

	table.EvictOwner(as1, ft)

	if _, ok := table.Find(as1, 1); ok {
		t.Fatal("evicted owner still has a present PTE")
	}
	if _, ok := table.Find(as2, 1); !ok {
		t.Fatal("EvictOwner removed an unrelated owner's PTE")
	}
	if got := ft.RefCount(pfn1); got != 0 {
		t.Fatalf("RefCount(pfn1) after evict = %d, want 0", got)
	}
	if got := ft.RefCount(pfn2); got != 1 {
		t.Fatalf("RefCount(pfn2) after evict = %d, want 1 (untouched)", got)
	}
}

func TestBucketMembershipMatchesHash(t *testing.T) {
	table := hpt.NewTable(8)
	as := defs.ASID(3)
	vpn := uint32(5)
	table.Insert(&hpt.PTE{Owner: as, VPN: vpn, Lo: tlbhw.NewEntryLo(1, false, true, true, false)})

	wantIdx := int((uint64(as) ^ uint64(vpn)) % 8)
	// Find must succeed, proving the entry lives in the bucket its hash
	// names (Find recomputes the same hash to locate it).
	if _, ok := table.Find(as, vpn); !ok {
		t.Fatalf("entry not found in expected bucket %d", wantIdx)
	}
}
