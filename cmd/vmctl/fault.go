package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"vmcore/defs"
)

func init() {
	register("fault", "define a region and drive one fault through a fresh Kernel", runFault)
}

func runFault(args []string) error {
	fs := flag.NewFlagSet("fault", flag.ExitOnError)
	mb := fs.Int("mb", 4, "simulated RAM size in megabytes")
	addrStr := fs.String("addr", "0x10000", "fault virtual address (hex)")
	kindStr := fs.String("kind", "write", "fault kind: read, write or readonly")
	rw := fs.String("perm", "rw", "region permission letters from {r,w,x}")
	if err := fs.Parse(args); err != nil {
		return err
	}

	vaddr, err := strconv.ParseUint(strings.TrimPrefix(*addrStr, "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("bad -addr: %w", err)
	}
	kind, err := parseFaultKind(*kindStr)
	if err != nil {
		return err
	}

	k, ram, tlb, err := newKernel(*mb * 1024 * 1024)
	if err != nil {
		return err
	}
	defer ram.Close()

	as := k.Create()
	base := uintptr(vaddr) &^ uintptr(defs.PageOffset)
	if err := as.DefineRegion(base, defs.PageSize, strings.Contains(*rw, "r"), strings.Contains(*rw, "w"), strings.Contains(*rw, "x")); err != nil {
		return err
	}

	if err := k.Fault(as, kind, uintptr(vaddr)); err != nil {
		fmt.Printf("fault %#x (%s): %v\n", vaddr, *kindStr, err)
		return nil
	}

	vpn := uint32(uintptr(vaddr) >> defs.PageBits)
	pte, _ := k.Pages.Find(as.ID(), vpn)
	fmt.Printf("fault %#x (%s): ok, frame=%d dirty=%v valid=%v, tlb entries written=%d\n",
		vaddr, *kindStr, pte.Lo.Framenum(), pte.Lo.Dirty(), pte.Lo.Valid(), tlb.Len())
	return nil
}
