package vm_test

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"vmcore/defs"
	"vmcore/ramhw"
	"vmcore/tlbhw"
	"vmcore/vm"
)

// TestConcurrentFaultStormInsertsAtMostOnePTEPerPage drives many goroutines
// through repeated faults against the same address space, simulating N CPUs
// racing a refill the way the "at most one PTE per (AS, VPN) wins"
// invariant is meant to survive. errgroup.Group fans the goroutines out and
// collects the first error, mirroring the pack's multi-CPU-simulation style.
func TestConcurrentFaultStormInsertsAtMostOnePTEPerPage(t *testing.T) {
	ram, err := ramhw.NewSimRAM(512*defs.PageSize, 4*defs.PageSize)
	if err != nil {
		t.Fatalf("NewSimRAM: %v", err)
	}
	t.Cleanup(func() { _ = ram.Close() })

	tlb := tlbhw.NewFlatHardware(defs.NumTLB)
	k, err := vm.Bootstrap(ram, tlb, tlbhw.NoopInterruptMask{})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	as := k.Create()
	if err := as.DefineRegion(0x50000, 16*defs.PageSize, true, true, false); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}

	const workers = 32
	const vaddr = uintptr(0x50000)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return k.Fault(as, defs.FaultWrite, vaddr)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Fault: %v", err)
	}

	vpn := uint32(vaddr >> defs.PageBits)
	pte, hit := k.Pages.Find(as.ID(), vpn)
	if !hit {
		t.Fatal("no PTE present after fault storm")
	}
	frame := pte.Lo.Framenum()
	if got := k.Frames.RefCount(frame); got != 1 {
		t.Fatalf("RefCount(frame) = %d, want 1 (exactly one PTE should have won the race)", got)
	}
	if got := k.Pages.Len(); got != 1 {
		t.Fatalf("present PTEs after fault storm = %d, want 1", got)
	}
}
