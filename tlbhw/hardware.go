package tlbhw

// Hardware is the CPU-specific TLB boundary vm.Kernel refills against.
// Write installs into a specific slot (nothing in this module calls it);
// Random lets the hardware pick a victim slot, which is what the fault
// handler uses on the hot path; FlushAll invalidates every slot, used by
// Kernel.Activate/Deactivate since this system carries no ASIDs.
type Hardware interface {
	Write(hi EntryHi, lo EntryLo, slot int)
	Random(hi EntryHi, lo EntryLo)
	FlushAll()
}

// InterruptMask is the splhigh/splx pair every TLB mutation must run
// inside: SplHigh masks interrupts on the current CPU and returns the
// previous mask level; SplX restores it.
type InterruptMask interface {
	SplHigh() uint32
	SplX(old uint32)
}

// WithInterruptsMasked runs fn with interrupts masked on the current CPU,
// the bracket every TLB mutation must run inside.
func WithInterruptsMasked(irq InterruptMask, fn func()) {
	old := irq.SplHigh()
	defer irq.SplX(old)
	fn()
}

// Shootdown is the cross-CPU TLB-invalidation entry point. This VM targets
// a uniprocessor configuration with full-flush-on-context-switch, so
// shootdown is intentionally a fatal stub: wiring it up
// for real SMP is explicitly out of scope.
func Shootdown(reason string) {
	panic("tlbhw: cross-CPU TLB shootdown not supported: " + reason)
}

// FlatHardware is a reference Hardware+InterruptMask implementation over a
// flat NUM_TLB-slot array, suitable for single-process tests and the
// vmctl CLI. Random picks the next slot round-robin, which is adequate for
// a deterministic teaching simulation (a real MIPS TLBWR uses a hardware
// wired/random register split this system does not model).
type FlatHardware struct {
	slots   []tlbEntry
	next    int
	masked  bool
	maskGen uint32
}

type tlbEntry struct {
	hi EntryHi
	lo EntryLo
}

// NewFlatHardware allocates a FlatHardware with numSlots slots (callers
// normally pass defs.NumTLB).
func NewFlatHardware(numSlots int) *FlatHardware {
	return &FlatHardware{slots: make([]tlbEntry, numSlots)}
}

func (h *FlatHardware) Write(hi EntryHi, lo EntryLo, slot int) {
	h.slots[slot] = tlbEntry{hi, lo}
}

func (h *FlatHardware) Random(hi EntryHi, lo EntryLo) {
	h.slots[h.next] = tlbEntry{hi, lo}
	h.next = (h.next + 1) % len(h.slots)
}

func (h *FlatHardware) FlushAll() {
	for i := range h.slots {
		h.slots[i] = tlbEntry{}
	}
}

// Len reports the number of slots currently holding a valid entry, for
// tests/CLI diagnostics.
func (h *FlatHardware) Len() int {
	n := 0
	for _, e := range h.slots {
		if e.lo.Valid() {
			n++
		}
	}
	return n
}

// Lookup reports the EntryLo installed for hi, if any; it exists for
// tests/CLI diagnostics, not for the fault-handler hot path (which never
// probes hardware state, only HPT state).
func (h *FlatHardware) Lookup(hi EntryHi) (EntryLo, bool) {
	for _, e := range h.slots {
		if e.hi == hi && e.lo.Valid() {
			return e.lo, true
		}
	}
	return 0, false
}

func (h *FlatHardware) SplHigh() uint32 {
	h.maskGen++
	h.masked = true
	return h.maskGen
}

func (h *FlatHardware) SplX(uint32) {
	h.masked = false
}

// NoopInterruptMask is an InterruptMask that does not simulate nesting or
// preemption at all; it pairs with tlbhwmock.MockHardware in fault-handler
// tests that only care about assertions on the Hardware calls.
type NoopInterruptMask struct{}

func (NoopInterruptMask) SplHigh() uint32 { return 0 }
func (NoopInterruptMask) SplX(uint32)     {}
