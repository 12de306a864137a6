package main

import (
	"bytes"
	"flag"
	"fmt"
	"runtime"
	"runtime/pprof"
	"sort"

	"github.com/google/pprof/profile"

	"vmcore/defs"
)

func init() {
	register("profile", "capture a heap profile of an allocation stress loop and summarize it", runProfile)
}

// runProfile repeatedly allocates and frees kernel pages under a fresh
// Kernel, captures a runtime/pprof heap profile of the run, and re-parses it
// with google/pprof's own profile.Parse to print the top allocation sites —
// a concrete answer to "where did my frames go" for someone debugging the
// allocator rather than reading its source.
func runProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	mb := fs.Int("mb", 16, "simulated RAM size in megabytes")
	rounds := fs.Int("rounds", 10000, "alloc/free rounds to run before sampling")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, ram, _, err := newKernel(*mb * 1024 * 1024)
	if err != nil {
		return err
	}
	defer ram.Close()

	for i := 0; i < *rounds; i++ {
		kv, err := k.AllocKPages(1)
		if err != nil {
			break
		}
		_ = k.FreeKPages(kv)
	}

	runtime.GC()
	var buf bytes.Buffer
	if err := pprof.WriteHeapProfile(&buf); err != nil {
		return fmt.Errorf("WriteHeapProfile: %w", err)
	}

	prof, err := profile.Parse(&buf)
	if err != nil {
		return fmt.Errorf("profile.Parse: %w", err)
	}

	type site struct {
		name  string
		value int64
	}
	var sites []site
	for _, sample := range prof.Sample {
		if len(sample.Value) == 0 || len(sample.Location) == 0 {
			continue
		}
		loc := sample.Location[0]
		name := "?"
		if len(loc.Line) > 0 && loc.Line[0].Function != nil {
			name = loc.Line[0].Function.Name
		}
		sites = append(sites, site{name: name, value: sample.Value[0]})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].value > sites[j].value })

	fmt.Printf("ran %d alloc/free rounds over a %d-frame arena\n", *rounds, *mb*1024*1024/defs.PageSize)
	limit := 10
	if len(sites) < limit {
		limit = len(sites)
	}
	for _, s := range sites[:limit] {
		fmt.Printf("  %8d  %s\n", s.value, s.name)
	}
	return nil
}
