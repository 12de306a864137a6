package main

import (
	"fmt"

	"vmcore/defs"
	"vmcore/ramhw"
	"vmcore/tlbhw"
	"vmcore/vm"
)

const reservedBytes = 4 * defs.PageSize

// newKernel bootstraps a fresh simulated RAM arena of ramBytes and a Kernel
// over it, the way every subcommand in this tool starts: vmctl has no
// persistent daemon, so each invocation is a self-contained demonstration.
func newKernel(ramBytes int) (*vm.Kernel, ramCloser, *tlbhw.FlatHardware, error) {
	ram, err := ramhw.NewSimRAM(ramBytes, reservedBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("allocate simulated RAM: %w", err)
	}
	tlb := tlbhw.NewFlatHardware(defs.NumTLB)
	k, err := vm.Bootstrap(ram, tlb, tlbhw.NoopInterruptMask{})
	if err != nil {
		_ = ram.Close()
		return nil, nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	return k, ram, tlb, nil
}

type ramCloser interface {
	Close() error
}

func parseFaultKind(s string) (defs.FaultKind, error) {
	switch s {
	case "read":
		return defs.FaultRead, nil
	case "write":
		return defs.FaultWrite, nil
	case "readonly":
		return defs.FaultReadOnly, nil
	default:
		return 0, fmt.Errorf("unrecognized fault kind %q (want read, write or readonly)", s)
	}
}
