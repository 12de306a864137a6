// Command vmctl drives the vm package's simulated kernel from the command
// line: size and bootstrap a RAM+HPT, fault pages into an address space,
// fork one, inspect allocator/TLB state, and replay a recorded fault trace.
// It exists because every teaching kernel in this lineage ships at least one
// small operator tool alongside the library it drives.
package main

import (
	"fmt"
	"os"
)

type subcommand struct {
	name string
	run  func(args []string) error
	help string
}

var subcommands []subcommand

func register(name, help string, run func(args []string) error) {
	subcommands = append(subcommands, subcommand{name: name, run: run, help: help})
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	for _, sc := range subcommands {
		if sc.name == name {
			if err := sc.run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "vmctl %s: %v\n", name, err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "vmctl: unknown subcommand %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vmctl <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "\nsubcommands:")
	for _, sc := range subcommands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", sc.name, sc.help)
	}
}
