// Package host implements vm.Host over a journaled StateDB and drives whole
// transactions through it.
package host

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/tracer"
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/colorfulnotion/evmhost/vmerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Host owns the state of exactly one transaction: its warm set and logs are
// never reset, so once Execute has started running a transaction every
// later Execute fails with ErrHostSpent. Frames run strictly nested on the
// calling goroutine; a second goroutine entering Execute while a
// transaction runs gets ErrConcurrentUse. Call and Create are the
// interpreter's entry points and do not take that guard.
type Host struct {
	env    *vm.Environment
	state  *statedb.StateDB
	tracer tracer.Tracer

	// ctx is the transaction context, used by the operations that take none.
	ctx   context.Context
	busy  atomic.Bool
	spent bool
	depth int
	steps uint64
}

var _ vm.Host = (*Host)(nil)

func New(env *vm.Environment, state *statedb.StateDB) *Host {
	if env == nil {
		env = vm.DefaultEnvironment()
	}
	return &Host{env: env, state: state, ctx: context.Background()}
}

func (h *Host) SetTracer(t tracer.Tracer) {
	h.tracer = t
}

func (h *Host) State() *statedb.StateDB {
	return h.state
}

// Depth is the number of frames currently running.
func (h *Host) Depth() int {
	return h.depth
}

// Steps counts instructions started in the current transaction.
func (h *Host) Steps() uint64 {
	return h.steps
}

func (h *Host) Env() *vm.Environment {
	return h.env
}

func (h *Host) Step(interp *vm.Interpreter) vm.Status {
	if err := h.ctx.Err(); err != nil {
		interp.Halt(vm.FatalHostError, fmt.Errorf("step %d: %w: %v", h.steps, vmerrors.ErrCancelled, err))
		return vm.FatalHostError
	}
	h.steps++
	if limit := h.env.Cfg.StepLimit; limit > 0 && h.steps > limit {
		interp.Halt(vm.FatalHostError, fmt.Errorf("%d steps: %w", limit, vmerrors.ErrStepLimit))
		return vm.FatalHostError
	}
	if h.tracer != nil {
		h.tracer.OnStep(interp)
	}
	return vm.Continue
}

func (h *Host) StepEnd(interp *vm.Interpreter, status vm.Status) vm.Status {
	if h.tracer != nil {
		h.tracer.OnStepEnd(interp, status)
	}
	return status
}

func (h *Host) LoadAccount(ctx context.Context, addr common.Address) (vm.AccountLoad, error) {
	isCold := h.state.AddAddressToAccessList(addr)
	empty, err := h.state.Empty(ctx, addr)
	if err != nil {
		return vm.AccountLoad{}, err
	}
	return vm.AccountLoad{IsCold: isCold, IsNew: empty}, nil
}

func (h *Host) BlockHash(ctx context.Context, number uint64) (vm.BlockHashResult, error) {
	hash, ok, err := h.state.GetBlockHash(ctx, number)
	if err != nil {
		return vm.BlockHashResult{}, err
	}
	return vm.BlockHashResult{Hash: hash, Available: ok}, nil
}

func (h *Host) Balance(ctx context.Context, addr common.Address) (vm.BalanceResult, error) {
	isCold := h.state.AddAddressToAccessList(addr)
	bal, err := h.state.GetBalance(ctx, addr)
	if err != nil {
		return vm.BalanceResult{}, err
	}
	return vm.BalanceResult{Value: bal, IsCold: isCold}, nil
}

func (h *Host) Code(ctx context.Context, addr common.Address) (vm.CodeResult, error) {
	isCold := h.state.AddAddressToAccessList(addr)
	code, err := h.state.GetCode(ctx, addr)
	if err != nil {
		return vm.CodeResult{}, err
	}
	return vm.CodeResult{Code: code, IsCold: isCold}, nil
}

// CodeHash is zero for missing and EIP-161 empty accounts.
func (h *Host) CodeHash(ctx context.Context, addr common.Address) (vm.CodeHashResult, error) {
	isCold := h.state.AddAddressToAccessList(addr)
	empty, err := h.state.Empty(ctx, addr)
	if err != nil {
		return vm.CodeHashResult{}, err
	}
	if empty {
		return vm.CodeHashResult{IsCold: isCold}, nil
	}
	hash, err := h.state.GetCodeHash(ctx, addr)
	if err != nil {
		return vm.CodeHashResult{}, err
	}
	return vm.CodeHashResult{Hash: hash, IsCold: isCold}, nil
}

func (h *Host) Sload(addr common.Address, key common.Hash) (vm.SloadResult, error) {
	isCold := h.state.AddSlotToAccessList(addr, key)
	value, err := h.state.GetState(h.ctx, addr, key)
	if err != nil {
		return vm.SloadResult{}, err
	}
	return vm.SloadResult{Value: value, IsCold: isCold}, nil
}

func (h *Host) Sstore(addr common.Address, key common.Hash, value common.Hash) (vm.SstoreResult, error) {
	isCold := h.state.AddSlotToAccessList(addr, key)
	original, err := h.state.GetCommittedState(h.ctx, addr, key)
	if err != nil {
		return vm.SstoreResult{}, err
	}
	present, err := h.state.GetState(h.ctx, addr, key)
	if err != nil {
		return vm.SstoreResult{}, err
	}
	if err := h.state.SetState(h.ctx, addr, key, value); err != nil {
		return vm.SstoreResult{}, err
	}
	return vm.SstoreResult{Original: original, Present: present, New: value, IsCold: isCold}, nil
}

func (h *Host) Log(addr common.Address, topics []common.Hash, data []byte) {
	h.state.AddLog(&types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        data,
		BlockNumber: h.env.Block.Number,
	})
}

// SelfDestruct moves the whole balance to target and marks addr. A contract
// naming itself as target burns its balance.
func (h *Host) SelfDestruct(ctx context.Context, addr common.Address, target common.Address) (vm.SelfDestructResult, error) {
	isCold := h.state.AddAddressToAccessList(target)
	bal, err := h.state.GetBalance(ctx, addr)
	if err != nil {
		return vm.SelfDestructResult{}, err
	}
	empty, err := h.state.Empty(ctx, target)
	if err != nil {
		return vm.SelfDestructResult{}, err
	}
	if err := h.state.AddBalance(ctx, target, bal); err != nil {
		return vm.SelfDestructResult{}, err
	}
	prev, err := h.state.SelfDestruct(ctx, addr)
	if err != nil {
		return vm.SelfDestructResult{}, err
	}
	log.Trace(log.HostMonitoring, "selfdestruct", "addr", addr, "beneficiary", target, "value", bal, "again", prev)
	return vm.SelfDestructResult{
		HadValue:            !bal.IsZero(),
		TargetExists:        !empty,
		IsCold:              isCold,
		PreviouslyDestroyed: prev,
		Beneficiary:         target,
	}, nil
}

// enter and exit bracket a frame for tracing.
func (h *Host) enter(kind vm.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int) {
	log.Trace(log.HostMonitoring, "enter frame", "kind", kind, "depth", h.depth, "from", from, "to", to, "gas", gas)
	if h.tracer != nil {
		h.tracer.OnEnter(h.depth, kind, from, to, input, gas, value)
	}
}

func (h *Host) exit(output []byte, gasLimit, gasLeft uint64, status vm.Status, err error) {
	log.Trace(log.HostMonitoring, "exit frame", "depth", h.depth, "status", status, "gasLeft", gasLeft)
	if h.tracer != nil {
		h.tracer.OnExit(h.depth, output, gasLimit-gasLeft, status, err)
	}
}
