package vm_test

import (
	"errors"
	"testing"

	"vmcore/defs"
	"vmcore/mem"
	"vmcore/ramhw"
	"vmcore/tlbhw"
	"vmcore/vm"
)

func newTestKernel(t *testing.T, totalPages int) (*vm.Kernel, *tlbhw.FlatHardware) {
	t.Helper()
	ram, err := ramhw.NewSimRAM(totalPages*defs.PageSize, 4*defs.PageSize)
	if err != nil {
		t.Fatalf("NewSimRAM: %v", err)
	}
	t.Cleanup(func() { _ = ram.Close() })

	tlb := tlbhw.NewFlatHardware(defs.NumTLB)
	k, err := vm.Bootstrap(ram, tlb, tlbhw.NoopInterruptMask{})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return k, tlb
}

// S1: stack touch.
func TestFaultStackTouch(t *testing.T) {
	k, tlb := newTestKernel(t, 64)
	as := k.Create()
	sp, err := k.DefineStack(as)
	if err != nil {
		t.Fatalf("DefineStack: %v", err)
	}
	if sp != defs.UserStack {
		t.Fatalf("sp = %#x, want %#x", sp, defs.UserStack)
	}

	vaddr := uintptr(sp - 4)
	if err := k.Fault(as, defs.FaultRead, vaddr); err != nil {
		t.Fatalf("Fault: %v", err)
	}

	vpn := uint32(vaddr >> defs.PageBits)
	pte, hit := k.Pages.Find(as.ID(), vpn)
	if !hit {
		t.Fatalf("no PTE installed for vpn %#x", vpn)
	}
	if !pte.Lo.Valid() || !pte.Lo.Dirty() {
		t.Fatalf("PTE.Lo = %#v, want valid=1 dirty=1 (stack region is writable)", pte.Lo)
	}

	hi := tlbhw.NewEntryHi(vpn)
	if _, ok := tlb.Lookup(hi); !ok {
		t.Fatal("no TLB entry written for faulted page")
	}
}

// S2: write to an R-only region.
func TestFaultWriteToReadOnlyRegion(t *testing.T) {
	k, _ := newTestKernel(t, 64)
	as := k.Create()
	if err := as.DefineRegion(0x400000, defs.PageSize, true, false, true); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}

	if err := k.Fault(as, defs.FaultWrite, 0x400000); err != nil {
		t.Fatalf("first WRITE fault (miss path): %v", err)
	}
	pte, hit := k.Pages.Find(as.ID(), uint32(0x400000>>defs.PageBits))
	if !hit {
		t.Fatal("no PTE installed after miss")
	}
	if pte.Lo.Dirty() {
		t.Fatal("PTE installed with dirty=1 for a non-writable region")
	}
	origFrame := pte.Lo.Framenum()

	err := k.Fault(as, defs.FaultReadOnly, 0x400000)
	if err == nil {
		t.Fatal("READONLY retry on non-writable region succeeded, want BAD_FAULT")
	}
	if !errors.Is(err, defs.BadFault) {
		t.Fatalf("error = %v, want defs.BadFault", err)
	}

	pte, hit = k.Pages.Find(as.ID(), uint32(0x400000>>defs.PageBits))
	if !hit || pte.Lo.Framenum() != origFrame {
		t.Fatal("PTE's frame changed after rejected READONLY fault")
	}
}

// S3: copy-on-write after fork.
func TestFaultCOWAfterFork(t *testing.T) {
	k, _ := newTestKernel(t, 64)
	p := k.Create()
	if err := p.DefineRegion(0x10000, defs.PageSize, true, true, false); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}
	if err := k.Fault(p, defs.FaultWrite, 0x10000); err != nil {
		t.Fatalf("initial fault-in: %v", err)
	}

	vpn := uint32(0x10000 >> defs.PageBits)
	ppte, _ := k.Pages.Find(p.ID(), vpn)
	f := ppte.Lo.Framenum()
	if got := k.Frames.RefCount(f); got != 1 {
		t.Fatalf("RefCount(f) = %d, want 1", got)
	}

	page := k.Frames.Page(mem.PaddrToKvaddr(uintptr(f) * defs.PageSize))
	copy(page, []byte("parent-bytes"))

	c, err := k.Copy(p)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := k.Frames.RefCount(f); got != 2 {
		t.Fatalf("RefCount(f) after fork = %d, want 2", got)
	}

	ppte, _ = k.Pages.Find(p.ID(), vpn)
	if ppte.Lo.Dirty() {
		t.Fatal("parent PTE still writable after fork; both sides must be read-only")
	}

	cpte, hit := k.Pages.Find(c.ID(), vpn)
	if !hit || cpte.Lo.Dirty() {
		t.Fatal("child PTE missing or not read-only after fork")
	}

	if err := k.Fault(c, defs.FaultReadOnly, 0x10000); err != nil {
		t.Fatalf("child COW fault: %v", err)
	}
	cpte, _ = k.Pages.Find(c.ID(), vpn)
	if !cpte.Lo.Dirty() {
		t.Fatal("child PTE not writable after COW resolution")
	}
	if cpte.Lo.Framenum() == f {
		t.Fatal("child PTE still references parent's frame after COW copy")
	}
	if got := k.Frames.RefCount(f); got != 1 {
		t.Fatalf("RefCount(f) after COW copy = %d, want 1", got)
	}

	parentPage := k.Frames.Page(mem.PaddrToKvaddr(uintptr(f) * defs.PageSize))
	if string(parentPage[:len("parent-bytes")]) != "parent-bytes" {
		t.Fatal("parent's page mutated by child's COW copy")
	}
}

// S4: sole-owner write after partner exit.
func TestFaultSoleOwnerWriteAfterPartnerExit(t *testing.T) {
	k, _ := newTestKernel(t, 64)
	p := k.Create()
	if err := p.DefineRegion(0x10000, 2*defs.PageSize, true, true, false); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}
	if err := k.Fault(p, defs.FaultWrite, 0x10000); err != nil {
		t.Fatalf("fault-in v: %v", err)
	}
	if err := k.Fault(p, defs.FaultWrite, 0x11000); err != nil {
		t.Fatalf("fault-in v2: %v", err)
	}

	c, err := k.Copy(p)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	k.Destroy(p)

	vpn2 := uint32(0x11000 >> defs.PageBits)
	ppte, hit := k.Pages.Find(c.ID(), vpn2)
	if !hit {
		t.Fatal("child's PTE for v2 missing after parent destroyed")
	}
	f2 := ppte.Lo.Framenum()
	if got := k.Frames.RefCount(f2); got != 1 {
		t.Fatalf("RefCount(v2 frame) after partner exit = %d, want 1", got)
	}

	if err := k.Fault(c, defs.FaultReadOnly, 0x11000); err != nil {
		t.Fatalf("sole-owner READONLY fault: %v", err)
	}
	cpte, _ := k.Pages.Find(c.ID(), vpn2)
	if !cpte.Lo.Dirty() {
		t.Fatal("PTE not promoted to writable in place")
	}
	if cpte.Lo.Framenum() != f2 {
		t.Fatal("sole-owner write reallocated a frame instead of promoting in place")
	}
}

// S5: load-demote round trip.
func TestFaultLoadDemote(t *testing.T) {
	k, _ := newTestKernel(t, 64)
	as := k.Create()
	if err := as.DefineRegion(0x20000, defs.PageSize, true, false, true); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}

	k.PrepareLoad(as)
	if err := k.Fault(as, defs.FaultWrite, 0x20000); err != nil {
		t.Fatalf("WRITE under load overlay: %v", err)
	}
	k.CompleteLoad(as)

	region, ok := as.CheckAddr(0x20000)
	if !ok || region.W {
		t.Fatal("region still writable after CompleteLoad")
	}

	err := k.Fault(as, defs.FaultWrite, 0x20000)
	if err == nil {
		t.Fatal("WRITE after CompleteLoad succeeded, want BAD_FAULT")
	}
	if !errors.Is(err, defs.BadFault) {
		t.Fatalf("error = %v, want defs.BadFault", err)
	}
}

// S6: OOM on fault.
func TestFaultOOM(t *testing.T) {
	k, tlb := newTestKernel(t, 8)
	as := k.Create()
	if err := as.DefineRegion(0x30000, 64*defs.PageSize, true, true, false); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}

	for {
		if _, err := k.Frames.AllocPage(); err != nil {
			break
		}
	}

	err := k.Fault(as, defs.FaultWrite, 0x30000)
	if err == nil {
		t.Fatal("fault against exhausted free list succeeded, want OOM")
	}
	if !errors.Is(err, defs.OOM) {
		t.Fatalf("error = %v, want defs.OOM", err)
	}

	if _, hit := k.Pages.Find(as.ID(), uint32(0x30000>>defs.PageBits)); hit {
		t.Fatal("HPT gained an entry on a failed fault")
	}
	hi := tlbhw.NewEntryHi(uint32(0x30000 >> defs.PageBits))
	if _, ok := tlb.Lookup(hi); ok {
		t.Fatal("TLB write happened on a failed fault")
	}
}

func TestFaultUnrecognizedKind(t *testing.T) {
	k, _ := newTestKernel(t, 16)
	as := k.Create()
	err := k.Fault(as, defs.FaultKind(99), 0x1000)
	if !errors.Is(err, defs.BadArg) {
		t.Fatalf("error = %v, want defs.BadArg", err)
	}
}

func TestFaultNilAddressSpace(t *testing.T) {
	k, _ := newTestKernel(t, 16)
	err := k.Fault(nil, defs.FaultRead, 0x1000)
	if !errors.Is(err, defs.BadFault) {
		t.Fatalf("error = %v, want defs.BadFault", err)
	}
}
