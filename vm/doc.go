// Package vm ties the frame table (mem) and the hashed page table (hpt)
// together into the address-space and TLB-miss fault-handling surface the
// rest of a kernel would call: AS creation, copy-on-write fork, load-time
// protection relaxation, teardown, and vm_fault itself.
//
// # Address spaces
//
// An AS is nothing more than a list of Regions: contiguous virtual ranges
// tagged with R/W/X permissions. It owns no pages directly — its pages live
// in the single, global HPT, keyed by the AS's identity (an ASID minted
// once at creation and never reused while the AS is alive, the way a heap
// address would serve as a stable identity in a language with raw
// pointers).
//
// # Fault handling
//
// On a TLB miss, Kernel.Fault classifies the access, validates it against
// the faulting AS's regions, and either materializes a fresh page or — on
// a write to a page shared read-only since a fork — resolves it through
// copy-on-write: promote in place if this AS is the sole remaining owner,
// otherwise copy to a private frame. The only hardware write-enable signal
// this system has is the TLB entry's dirty bit, so read-sharing after fork
// is implemented by handing every child a PTE pointing at the parent's
// frame with dirty=0; any subsequent write takes the READONLY fault path,
// which is exactly where the COW resolution above lives.
//
// # Concurrency
//
// Kernel.Fault takes the HPT lock before the frame-table lock, never the
// reverse — the fixed order this system requires, since AllocPage (frame-table
// lock) is called from inside the fault handler's HPT critical section.
package vm
