// Package tracer holds observers of frame entry, frame exit and every
// interpreter step.
package tracer

import (
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tracer is notified by the host. OnStep runs before an instruction and
// OnStepEnd after it; a CALL or CREATE step encloses the OnEnter/OnExit pair
// of the frame it spawned.
type Tracer interface {
	OnEnter(depth int, kind vm.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int)
	OnExit(depth int, output []byte, gasUsed uint64, status vm.Status, err error)
	OnStep(interp *vm.Interpreter)
	OnStepEnd(interp *vm.Interpreter, status vm.Status)
}

type multi []Tracer

// Multi fans every event out to each tracer in order.
func Multi(tracers ...Tracer) Tracer {
	var out multi
	for _, t := range tracers {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (m multi) OnEnter(depth int, kind vm.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int) {
	for _, t := range m {
		t.OnEnter(depth, kind, from, to, input, gas, value)
	}
}

func (m multi) OnExit(depth int, output []byte, gasUsed uint64, status vm.Status, err error) {
	for _, t := range m {
		t.OnExit(depth, output, gasUsed, status, err)
	}
}

func (m multi) OnStep(interp *vm.Interpreter) {
	for _, t := range m {
		t.OnStep(interp)
	}
}

func (m multi) OnStepEnd(interp *vm.Interpreter, status vm.Status) {
	for _, t := range m {
		t.OnStepEnd(interp, status)
	}
}
