package main

import (
	"flag"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"vmcore/defs"
)

func init() {
	register("stat", "report frame/PTE counts and free-list depth", runStat)
}

func runStat(args []string) error {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	mb := fs.Int("mb", 16, "simulated RAM size in megabytes")
	touch := fs.Int("touch", 0, "number of pages to fault in before reporting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, ram, _, err := newKernel(*mb * 1024 * 1024)
	if err != nil {
		return err
	}
	defer ram.Close()

	if *touch > 0 {
		as := k.Create()
		size := *touch * defs.PageSize
		if err := as.DefineRegion(0x10000, size, true, true, false); err != nil {
			return err
		}
		for i := 0; i < *touch; i++ {
			vaddr := uintptr(0x10000 + i*defs.PageSize)
			if err := k.Fault(as, defs.FaultRead, vaddr); err != nil {
				break
			}
		}
	}

	p := message.NewPrinter(language.English)
	s := k.Frames.Stat()
	p.Printf("total frames:  %d\n", s.Total)
	p.Printf("used frames:   %d\n", s.Used)
	p.Printf("free frames:   %d\n", s.Free)
	p.Printf("present PTEs:  %d\n", k.Pages.Len())
	return nil
}
