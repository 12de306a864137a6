// Package tlbhw models the hardware TLB boundary this VM subsystem refills:
// the bit-exact EntryHi/EntryLo words, the Write/Random/FlushAll primitives
// a real CPU would expose, and the interrupt-mask bracket every TLB mutation
// must run inside. None of it talks to real hardware — vm.Kernel is always
// handed a Hardware implementation (the reference FlatHardware, a test
// double, or eventually a real MMIO-backed one) to keep the boundary the
// be called out as an external collaborator explicit and swappable.
package tlbhw

import "vmcore/defs"

// EntryLo is the hardware TLB's low word:
//
//	[framenum:20 | nocache:1 | dirty:1 | valid:1 | global:1 | unused:8]
//
// dirty is a write-enable bit, not a "has been written" marker: when set,
// stores to the mapped page succeed; when clear, a store traps as
// READONLY. global is always zero in this system (no ASID tagging).
type EntryLo uint32

const (
	entryLoFramenumShift = 12
	entryLoFramenumMask  = 0xFFFFF
	entryLoNocacheBit    = 1 << 11
	entryLoDirtyBit      = 1 << 10
	entryLoValidBit      = 1 << 9
	entryLoGlobalBit     = 1 << 8
)

// NewEntryLo packs an EntryLo from its fields. nocache and global are
// always false in this system but are accepted for bit-layout fidelity.
func NewEntryLo(framenum defs.PFN, nocache, dirty, valid, global bool) EntryLo {
	var e EntryLo
	e = EntryLo(uint32(framenum)&entryLoFramenumMask) << entryLoFramenumShift
	e = setBit(e, entryLoNocacheBit, nocache)
	e = setBit(e, entryLoDirtyBit, dirty)
	e = setBit(e, entryLoValidBit, valid)
	e = setBit(e, entryLoGlobalBit, global)
	return e
}

func setBit(e EntryLo, bit uint32, on bool) EntryLo {
	if on {
		return e | EntryLo(bit)
	}
	return e &^ EntryLo(bit)
}

// Framenum returns the PFN packed into the entry.
func (e EntryLo) Framenum() defs.PFN {
	return defs.PFN((uint32(e) >> entryLoFramenumShift) & entryLoFramenumMask)
}

// Dirty reports whether the write-enable bit is set.
func (e EntryLo) Dirty() bool { return uint32(e)&entryLoDirtyBit != 0 }

// Valid reports whether the mapping is enabled.
func (e EntryLo) Valid() bool { return uint32(e)&entryLoValidBit != 0 }

// Nocache reports whether caching is disabled for the page.
func (e EntryLo) Nocache() bool { return uint32(e)&entryLoNocacheBit != 0 }

// WithDirty returns a copy of e with the dirty (write-enable) bit set to on.
func (e EntryLo) WithDirty(on bool) EntryLo { return setBit(e, entryLoDirtyBit, on) }

// WithValid returns a copy of e with the valid bit set to on.
func (e EntryLo) WithValid(on bool) EntryLo { return setBit(e, entryLoValidBit, on) }

// WithFramenum returns a copy of e repointed at framenum.
func (e EntryLo) WithFramenum(framenum defs.PFN) EntryLo {
	cleared := e &^ EntryLo(entryLoFramenumMask<<entryLoFramenumShift)
	return cleared | EntryLo(uint32(framenum)&entryLoFramenumMask)<<entryLoFramenumShift
}

// EntryHi is the hardware TLB's high word: [pagenum:20 | pid:6 | unused:6].
// pid is always zero in this system; a full TLB flush on context switch
// takes the place of ASID tagging.
type EntryHi uint32

const (
	entryHiPagenumShift = 12
	entryHiPagenumMask  = 0xFFFFF
)

// NewEntryHi packs an EntryHi for the given virtual page number. The low
// 12 bits are always zero, so the word directly encodes the page-aligned
// virtual base address.
func NewEntryHi(vpn uint32) EntryHi {
	return EntryHi((vpn & entryHiPagenumMask) << entryHiPagenumShift)
}

// Pagenum returns the VPN packed into the entry.
func (e EntryHi) Pagenum() uint32 {
	return (uint32(e) >> entryHiPagenumShift) & entryHiPagenumMask
}

// VAddr returns the page-aligned virtual address the entry encodes.
func (e EntryHi) VAddr() uintptr { return uintptr(e) }
