package main

import (
	"flag"
	"fmt"

	"vmcore/defs"
)

func init() {
	register("fork", "fault a page in, run Kernel.Copy, print before/after refcounts", runFork)
}

func runFork(args []string) error {
	fs := flag.NewFlagSet("fork", flag.ExitOnError)
	mb := fs.Int("mb", 4, "simulated RAM size in megabytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, ram, _, err := newKernel(*mb * 1024 * 1024)
	if err != nil {
		return err
	}
	defer ram.Close()

	parent := k.Create()
	if err := parent.DefineRegion(0x10000, defs.PageSize, true, true, false); err != nil {
		return err
	}
	if err := k.Fault(parent, defs.FaultWrite, 0x10000); err != nil {
		return fmt.Errorf("fault-in parent page: %w", err)
	}

	vpn := uint32(uintptr(0x10000) >> defs.PageBits)
	before, _ := k.Pages.Find(parent.ID(), vpn)
	fmt.Printf("before fork: frame=%d refcount=%d\n", before.Lo.Framenum(), k.Frames.RefCount(before.Lo.Framenum()))

	child, err := k.Copy(parent)
	if err != nil {
		return fmt.Errorf("Copy: %w", err)
	}

	after, _ := k.Pages.Find(parent.ID(), vpn)
	childPTE, _ := k.Pages.Find(child.ID(), vpn)
	fmt.Printf("after fork:  frame=%d refcount=%d, child frame=%d dirty=%v\n",
		after.Lo.Framenum(), k.Frames.RefCount(after.Lo.Framenum()), childPTE.Lo.Framenum(), childPTE.Lo.Dirty())
	return nil
}
