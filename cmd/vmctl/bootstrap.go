package main

import (
	"flag"
	"fmt"

	"vmcore/defs"
)

func init() {
	register("bootstrap", "size and print frame-table/HPT geometry for a given RAM size", runBootstrap)
}

func runBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	mb := fs.Int("mb", 4, "simulated RAM size in megabytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ramBytes := *mb * 1024 * 1024
	k, ram, _, err := newKernel(ramBytes)
	if err != nil {
		return err
	}
	defer ram.Close()

	stat := k.Frames.Stat()
	fmt.Printf("ram:        %d MiB (%d pages of %d bytes)\n", *mb, ramBytes/defs.PageSize, defs.PageSize)
	fmt.Printf("frames:     total=%d used=%d free=%d\n", stat.Total, stat.Used, stat.Free)
	fmt.Printf("hpt:        %d chain-head buckets\n", 2*stat.Total)
	return nil
}
