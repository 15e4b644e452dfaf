package host

import (
	"context"
	gomath "math"

	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/colorfulnotion/evmhost/vmerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// frameOutcome maps a finished frame onto what its caller gets back and
// undoes the frame's state changes unless it succeeded.
func (h *Host) frameOutcome(snapshot int, res *vm.Result) (gasLeft uint64, refund int64) {
	switch {
	case res.Status.IsSuccess():
		return res.GasLeft, res.GasRefund
	case res.Status.IsRevert():
		h.state.RevertToSnapshot(snapshot)
		return res.GasLeft, 0
	default:
		h.state.RevertToSnapshot(snapshot)
		return 0, 0
	}
}

// exitFatal closes a traced frame that a host failure aborted.
func (h *Host) exitFatal(snapshot int, gasLimit uint64, err error) {
	h.state.RevertToSnapshot(snapshot)
	h.exit(nil, gasLimit, 0, vm.FatalHostError, err)
}

// Call runs a nested message call.
//
// Depth and funds are checked before anything is journaled, and both hand
// the whole forwarded gas back. Every other failure reverts to the snapshot
// taken on entry; only a revert keeps its leftover gas and only a success
// keeps its refund.
func (h *Host) Call(ctx context.Context, req *vm.CallRequest) vm.CallResult {
	if !req.Claim() {
		return vm.CallResult{Status: vm.FatalHostError, Err: vmerrors.ErrRequestReused}
	}
	h.ctx = ctx
	if h.depth > h.env.Cfg.MaxCallDepth {
		return vm.CallResult{Status: vm.CallTooDeep, GasLeft: req.GasLimit}
	}
	value := req.Value
	if value == nil {
		value = new(uint256.Int)
	}
	if req.TransfersValue() {
		bal, err := h.state.GetBalance(ctx, req.Caller)
		if err != nil {
			return vm.CallResult{Status: vm.FatalHostError, Err: err}
		}
		if bal.Lt(value) {
			return vm.CallResult{Status: vm.OutOfFunds, GasLeft: req.GasLimit}
		}
	}

	snapshot := h.state.Snapshot()
	// CALLCODE moves value from the caller to itself, so only CALL transfers.
	if req.Kind == vm.KindCall && req.TransfersValue() {
		if err := h.state.Transfer(ctx, req.Caller, req.Target, value); err != nil {
			return vm.CallResult{Status: vm.FatalHostError, Err: err}
		}
	}
	h.state.AddAddressToAccessList(req.CodeAddress)
	code, err := h.state.GetCode(ctx, req.CodeAddress)
	if err != nil {
		return vm.CallResult{Status: vm.FatalHostError, Err: err}
	}

	h.enter(req.Kind, req.Caller, req.Target, req.Input, req.GasLimit, value)
	if len(code) == 0 {
		h.exit(nil, req.GasLimit, req.GasLimit, vm.Stop, nil)
		return vm.CallResult{Status: vm.Stop, GasLeft: req.GasLimit}
	}
	codeHash, err := h.state.GetCodeHash(ctx, req.CodeAddress)
	if err != nil {
		h.exitFatal(snapshot, req.GasLimit, err)
		return vm.CallResult{Status: vm.FatalHostError, Err: err}
	}
	contract := vm.NewContract(req.Caller, req.Target, value, req.Input, vm.NewCodeWithHash(code, codeHash))
	contract.CodeAddress = req.CodeAddress

	res := h.run(ctx, contract, req.GasLimit, req.IsStatic)
	if res.Status.IsFatal() {
		h.exitFatal(snapshot, req.GasLimit, res.Err)
		return vm.CallResult{Status: vm.FatalHostError, Err: res.Err}
	}
	gasLeft, refund := h.frameOutcome(snapshot, res)
	h.exit(res.Output, req.GasLimit, gasLeft, res.Status, nil)
	return vm.CallResult{Status: res.Status, GasLeft: gasLeft, GasRefund: refund, Output: res.Output}
}

func (h *Host) run(ctx context.Context, contract *vm.Contract, gas uint64, isStatic bool) *vm.Result {
	interp := vm.NewInterpreter(contract, gas, isStatic, h.depth)
	h.depth++
	defer func() { h.depth-- }()
	return interp.Run(ctx, h)
}

// createAddress derives the new contract address from the caller nonce
// or the salt.
func createAddress(req *vm.CreateRequest, nonce uint64) common.Address {
	if req.Kind == vm.KindCreate2 {
		var salt [32]byte
		if req.Salt != nil {
			salt = req.Salt.Bytes32()
		}
		return crypto.CreateAddress2(req.Caller, salt, crypto.Keccak256(req.InitCode))
	}
	return crypto.CreateAddress(req.Caller, nonce)
}

// Create deploys a contract. The caller nonce is bumped before the snapshot,
// so it stays bumped when the creation fails.
func (h *Host) Create(ctx context.Context, req *vm.CreateRequest) vm.CreateResult {
	if !req.Claim() {
		return vm.CreateResult{Status: vm.FatalHostError, Err: vmerrors.ErrRequestReused}
	}
	h.ctx = ctx
	if h.depth > h.env.Cfg.MaxCallDepth {
		return vm.CreateResult{Status: vm.CallTooDeep, GasLeft: req.GasLimit}
	}
	value := req.Value
	if value == nil {
		value = new(uint256.Int)
	}
	if !value.IsZero() {
		bal, err := h.state.GetBalance(ctx, req.Caller)
		if err != nil {
			return vm.CreateResult{Status: vm.FatalHostError, Err: err}
		}
		if bal.Lt(value) {
			return vm.CreateResult{Status: vm.OutOfFunds, GasLeft: req.GasLimit}
		}
	}
	if len(req.InitCode) > h.env.Cfg.MaxInitCodeSize {
		return vm.CreateResult{Status: vm.CodeSizeExceeded}
	}
	nonce, err := h.state.GetNonce(ctx, req.Caller)
	if err != nil {
		return vm.CreateResult{Status: vm.FatalHostError, Err: err}
	}
	if nonce == gomath.MaxUint64 {
		return vm.CreateResult{Status: vm.NonceOverflow, GasLeft: req.GasLimit}
	}
	if err := h.state.SetNonce(ctx, req.Caller, nonce+1); err != nil {
		return vm.CreateResult{Status: vm.FatalHostError, Err: err}
	}

	addr := createAddress(req, nonce)
	h.state.AddAddressToAccessList(addr)
	snapshot := h.state.Snapshot()
	h.enter(req.Kind, req.Caller, addr, req.InitCode, req.GasLimit, value)

	targetNonce, err := h.state.GetNonce(ctx, addr)
	if err != nil {
		h.exitFatal(snapshot, req.GasLimit, err)
		return vm.CreateResult{Status: vm.FatalHostError, Err: err}
	}
	targetCode, err := h.state.GetCodeHash(ctx, addr)
	if err != nil {
		h.exitFatal(snapshot, req.GasLimit, err)
		return vm.CreateResult{Status: vm.FatalHostError, Err: err}
	}
	if targetNonce != 0 || (targetCode != (common.Hash{}) && targetCode != types.EmptyCodeHash) {
		log.Debug(log.HostMonitoring, "create collision", "addr", addr)
		h.exit(nil, req.GasLimit, 0, vm.CreateCollision, nil)
		return vm.CreateResult{Status: vm.CreateCollision, Address: &addr}
	}

	if err := h.state.CreateAccount(ctx, addr); err != nil {
		h.exitFatal(snapshot, req.GasLimit, err)
		return vm.CreateResult{Status: vm.FatalHostError, Err: err}
	}
	if err := h.state.SetNonce(ctx, addr, 1); err != nil {
		h.exitFatal(snapshot, req.GasLimit, err)
		return vm.CreateResult{Status: vm.FatalHostError, Err: err}
	}
	if !value.IsZero() {
		if err := h.state.Transfer(ctx, req.Caller, addr, value); err != nil {
			h.exitFatal(snapshot, req.GasLimit, err)
			return vm.CreateResult{Status: vm.FatalHostError, Err: err}
		}
	}

	contract := vm.NewContract(req.Caller, addr, value, nil, vm.NewCode(req.InitCode))
	res := h.run(ctx, contract, req.GasLimit, false)
	if res.Status.IsSuccess() {
		res.Status = h.deploy(ctx, addr, res)
	}
	if res.Status.IsFatal() {
		h.exitFatal(snapshot, req.GasLimit, res.Err)
		return vm.CreateResult{Status: vm.FatalHostError, Address: &addr, Err: res.Err}
	}
	gasLeft, refund := h.frameOutcome(snapshot, res)
	h.exit(res.Output, req.GasLimit, gasLeft, res.Status, nil)
	out := vm.CreateResult{Status: res.Status, Address: &addr, GasLeft: gasLeft, GasRefund: refund}
	if res.Status.IsRevert() {
		out.Output = res.Output
	}
	return out
}

// deploy validates the init code output, charges the deposit and installs
// it. It returns the final status of the creation frame.
func (h *Host) deploy(ctx context.Context, addr common.Address, res *vm.Result) vm.Status {
	code := res.Output
	if len(code) > h.env.Cfg.MaxCodeSize {
		return vm.CodeSizeExceeded
	}
	if len(code) > 0 && code[0] == 0xEF {
		return vm.InvalidCodePrefix
	}
	deposit := uint64(len(code)) * params.CreateDataGas
	if res.GasLeft < deposit {
		return vm.OutOfGas
	}
	res.GasLeft -= deposit
	if err := h.state.SetCode(ctx, addr, code); err != nil {
		res.Err = err
		return vm.FatalHostError
	}
	return res.Status
}
