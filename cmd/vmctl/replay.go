package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"vmcore/defs"
	"vmcore/vm"
)

func init() {
	register("replay", "replay a newline-delimited fault trace against a fresh Kernel", runReplay)
}

// runReplay interprets the same line-oriented trace vocabulary the golden
// test fixtures use (vm/testdata/*.txtar's "trace" files): as/region/stack/
// fault/copy/destroy/prepareload/completeload/exhaust, one per line. The
// leading "ram N" directive the golden fixtures may carry is not accepted
// here (it is reported as an unknown command); -mb sets the arena size
// instead, and the trace file is plain text, not a txtar archive. With
// --watch it re-runs the whole trace against a fresh Kernel every time the
// file changes, for interactive demoing.
func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	mb := fs.Int("mb", 16, "simulated RAM size in megabytes")
	watch := fs.Bool("watch", false, "re-run the trace whenever the file changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: vmctl replay [-watch] <trace-file>")
	}
	path := fs.Arg(0)

	run := func() error {
		lines, err := readLines(path)
		if err != nil {
			return err
		}
		k, ram, _, err := newKernel(*mb * 1024 * 1024)
		if err != nil {
			return err
		}
		defer ram.Close()
		return replayLines(k, lines)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
	}
	if !*watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	fmt.Printf("watching %s for changes (ctrl-c to stop)\n", path)
	for event := range watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		fmt.Printf("--- %s changed, replaying ---\n", path)
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func replayLines(k *vm.Kernel, lines []string) error {
	as := map[string]*vm.AS{}
	for n, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Fields(line)
		if err := replayOne(k, as, f); err != nil {
			return fmt.Errorf("line %d: %v", n+1, err)
		}
	}
	return nil
}

func replayOne(k *vm.Kernel, as map[string]*vm.AS, f []string) error {
	switch f[0] {
	case "as":
		as[f[1]] = k.Create()
		fmt.Printf("as %s created\n", f[1])

	case "region":
		a, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		vbase, err := strconv.ParseUint(strings.TrimPrefix(f[2], "0x"), 16, 64)
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(f[3])
		if err != nil {
			return err
		}
		return a.DefineRegion(uintptr(vbase), size, f[4] == "1", f[5] == "1", f[6] == "1")

	case "stack":
		a, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		sp, err := k.DefineStack(a)
		if err != nil {
			return err
		}
		fmt.Printf("as %s stack sp=%#x\n", f[1], sp)

	case "fault":
		a, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		var addr uint64
		var err error
		if f[2] == "stack" {
			addr = uint64(defs.UserStack - 4)
		} else if addr, err = strconv.ParseUint(strings.TrimPrefix(f[2], "0x"), 16, 64); err != nil {
			return err
		}
		kind, err := parseFaultKind(f[3])
		if err != nil {
			return err
		}
		err = k.Fault(a, kind, uintptr(addr))
		fmt.Printf("fault %s %#x %s: %v\n", f[1], addr, f[3], err)

	case "copy":
		parent, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		child, err := k.Copy(parent)
		if err != nil {
			return err
		}
		as[f[2]] = child
		fmt.Printf("as %s forked from %s\n", f[2], f[1])

	case "destroy":
		a, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		k.Destroy(a)
		fmt.Printf("as %s destroyed\n", f[1])

	case "prepareload":
		a, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		k.PrepareLoad(a)

	case "completeload":
		a, ok := as[f[1]]
		if !ok {
			return fmt.Errorf("undefined address space %q", f[1])
		}
		k.CompleteLoad(a)

	case "exhaust":
		n := 0
		for {
			if _, err := k.Frames.AllocPage(); err != nil {
				break
			}
			n++
		}
		fmt.Printf("exhausted free list: %d frames consumed\n", n)

	default:
		return fmt.Errorf("unknown command %q", f[0])
	}
	return nil
}
