package ramhw

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"vmcore/defs"
)

// SimRAM is a reference RAM implementation backed by a real anonymous
// mmap region (golang.org/x/sys/unix), so reads and writes through Bytes
// touch genuinely mapped pages instead of a bare Go slice — the closest a
// user-space simulation gets to the direct-mapped kernel-virtual alias a
// real CPU provides over physical memory.
type SimRAM struct {
	mu        sync.Mutex
	mem       []byte
	firstFree uintptr
	bump      uintptr
}

// NewSimRAM mmaps totalBytes of anonymous memory and reserves the first
// reservedBytes of it (rounded up to a page) to model whatever ran before
// the VM subsystem (bootloader, early kernel .bss, …).
func NewSimRAM(totalBytes int, reservedBytes int) (*SimRAM, error) {
	mem, err := unix.Mmap(-1, 0, totalBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("ramhw: mmap %d bytes: %w", totalBytes, err)
	}
	firstFree := uintptr(roundUp(reservedBytes, defs.PageSize))
	return &SimRAM{mem: mem, firstFree: firstFree, bump: firstFree}, nil
}

// Close unmaps the backing region. It is not part of the RAM interface
// (real physical memory is never unmapped); tests call it directly.
func (r *SimRAM) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

func (r *SimRAM) TotalBytes() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uintptr(len(r.mem))
}

func (r *SimRAM) FirstFreePhys() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bump
}

func (r *SimRAM) StealMem(npages int) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := uintptr(npages) * defs.PageSize
	if r.bump+n > uintptr(len(r.mem)) {
		return 0, defs.NewError(defs.OOM, "ramhw.StealMem", fmt.Errorf("%d pages exceeds remaining RAM", npages))
	}
	pa := r.bump
	r.bump += n
	return pa, nil
}

func (r *SimRAM) Bytes(phys uintptr, n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mem[phys : phys+uintptr(n)]
}

func roundUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return (n/align + 1) * align
}
