// Package ramhw models the physical RAM bootstrap boundary: reporting total
// RAM and the first free physical address, and bump-allocating pages before
// the frame table exists to take over (ram_getsize,
// ram_getfirstfree, ram_stealmem). mem.FrameTable.Bootstrap is the only
// caller that needs the full RAM interface; everything after publication
// goes through mem.FrameTable instead.
package ramhw

// RAM is the bump-allocator boundary queried once at boot.
type RAM interface {
	// TotalBytes reports the total size of physical RAM (ram_getsize).
	TotalBytes() uintptr
	// FirstFreePhys reports the first physical address not already
	// claimed by whatever ran before the VM subsystem (ram_getfirstfree).
	FirstFreePhys() uintptr
	// StealMem bump-allocates npages contiguous pages and returns the
	// physical address of the first one (ram_stealmem). It is only valid
	// before the frame table is published; callers must not free what it
	// returns.
	StealMem(npages int) (uintptr, error)
	// Bytes returns a slice over n bytes of physical memory starting at
	// phys, standing in for the direct-mapped kernel-virtual window a
	// real CPU would provide.
	Bytes(phys uintptr, n int) []byte
}
