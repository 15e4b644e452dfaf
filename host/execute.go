package host

import (
	"context"
	"fmt"
	gomath "math"

	evmcommon "github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/colorfulnotion/evmhost/vmerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// ExecutionResult is the outcome of one transaction. A reverted or failed
// transaction is still a result; only host failures are errors.
type ExecutionResult struct {
	Status          vm.Status
	GasUsed         uint64
	GasRefund       uint64
	Output          []byte
	ContractAddress *common.Address
	Logs            []*types.Log
	Steps           uint64
}

// Failed reports whether the top frame did not succeed.
func (r *ExecutionResult) Failed() bool {
	return !r.Status.IsSuccess()
}

// IntrinsicGas is the gas a transaction pays before its first instruction.
func IntrinsicGas(tx *vm.TxEnv) uint64 {
	gas := params.TxGas
	if tx.To == nil {
		gas = params.TxGasContractCreation
	}
	var nz uint64
	for _, b := range tx.Data {
		if b != 0 {
			nz++
		}
	}
	z := uint64(len(tx.Data)) - nz
	gas += nz*params.TxDataNonZeroGasEIP2028 + z*params.TxDataZeroGas
	if tx.To == nil {
		gas += (uint64(len(tx.Data)) + 31) / 32 * params.InitCodeWordGas
	}
	gas += uint64(len(tx.AccessList)) * params.TxAccessListAddressGas
	gas += uint64(tx.AccessList.StorageKeys()) * params.TxAccessListStorageKeyGas
	return gas
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Execute runs the transaction described by Env().Tx. It buys gas from the
// origin, warms the origin, coinbase, recipient and access list, dispatches
// the top frame, caps the refund at gasUsed/RefundQuotient, pays the
// coinbase and commits to w when w is not nil.
//
// Any host failure reverts the whole transaction and is returned as the
// error; nothing is committed. A transaction rejected before gas is bought
// leaves the host unused.
func (h *Host) Execute(ctx context.Context, w statedb.Writer) (*ExecutionResult, error) {
	if !h.busy.CompareAndSwap(false, true) {
		return nil, vmerrors.ErrConcurrentUse
	}
	defer h.busy.Store(false)
	if h.spent {
		return nil, vmerrors.ErrHostSpent
	}
	h.ctx, h.steps, h.depth = ctx, 0, 0

	tx := &h.env.Tx
	intrinsic := IntrinsicGas(tx)
	if tx.GasLimit < intrinsic {
		return nil, fmt.Errorf("gas limit %d, intrinsic %d: %w", tx.GasLimit, intrinsic, vmerrors.ErrIntrinsicGas)
	}
	gasPrice, value := orZero(tx.GasPrice), orZero(tx.Value)
	gasCost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(tx.GasLimit), gasPrice)
	if overflow {
		return nil, fmt.Errorf("gas cost overflows: %w", vmerrors.ErrInsufficientFunds)
	}
	need, overflow := new(uint256.Int).AddOverflow(gasCost, value)
	if overflow {
		return nil, fmt.Errorf("gas cost plus value overflows: %w", vmerrors.ErrInsufficientFunds)
	}

	start := h.state.Snapshot()
	bal, err := h.state.GetBalance(ctx, tx.Origin)
	if err != nil {
		return nil, err
	}
	if bal.Lt(need) {
		return nil, fmt.Errorf("origin %s has %s, needs %s: %w", tx.Origin, bal, need, vmerrors.ErrInsufficientFunds)
	}
	nonce, err := h.state.GetNonce(ctx, tx.Origin)
	if err != nil {
		return nil, err
	}
	if nonce == gomath.MaxUint64 {
		return nil, fmt.Errorf("origin %s: %w", tx.Origin, vmerrors.ErrNonceMax)
	}
	h.spent = true
	if err := h.state.SubBalance(ctx, tx.Origin, gasCost); err != nil {
		return nil, h.abort(start, err)
	}

	h.state.AddAddressToAccessList(tx.Origin)
	h.state.AddAddressToAccessList(h.env.Block.Coinbase)
	if tx.To != nil {
		h.state.AddAddressToAccessList(*tx.To)
	}
	for _, tuple := range tx.AccessList {
		h.state.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			h.state.AddSlotToAccessList(tuple.Address, key)
		}
	}

	result := &ExecutionResult{}
	var (
		gasLeft uint64
		refund  int64
		fatal   error
	)
	if tx.To != nil {
		if err := h.state.SetNonce(ctx, tx.Origin, nonce+1); err != nil {
			return nil, h.abort(start, err)
		}
		res := h.Call(ctx, &vm.CallRequest{
			Kind:        vm.KindCall,
			Caller:      tx.Origin,
			Target:      *tx.To,
			CodeAddress: *tx.To,
			Value:       value,
			Input:       tx.Data,
			GasLimit:    tx.GasLimit - intrinsic,
		})
		result.Status, result.Output, gasLeft, refund, fatal = res.Status, res.Output, res.GasLeft, res.GasRefund, res.Err
	} else {
		res := h.Create(ctx, &vm.CreateRequest{
			Kind:     vm.KindCreate,
			Caller:   tx.Origin,
			Value:    value,
			InitCode: tx.Data,
			GasLimit: tx.GasLimit - intrinsic,
		})
		result.Status, result.Output, gasLeft, refund, fatal = res.Status, res.Output, res.GasLeft, res.GasRefund, res.Err
		if res.Status.IsSuccess() {
			result.ContractAddress = res.Address
		}
	}
	result.Steps = h.steps
	if result.Status.IsFatal() {
		if fatal == nil {
			fatal = fmt.Errorf("top frame halted without a cause: %w", vmerrors.ErrBackendUnavailable)
		}
		return nil, h.abort(start, fatal)
	}

	gasUsed := tx.GasLimit - gasLeft
	if refund > 0 {
		result.GasRefund = min(uint64(refund), gasUsed/params.RefundQuotient)
		gasUsed -= result.GasRefund
	}
	result.GasUsed = gasUsed

	remaining := new(uint256.Int).Mul(uint256.NewInt(tx.GasLimit-gasUsed), gasPrice)
	if err := h.state.AddBalance(ctx, tx.Origin, remaining); err != nil {
		return nil, h.abort(start, err)
	}
	baseFee := orZero(h.env.Block.BaseFee)
	if gasPrice.Gt(baseFee) {
		tip := new(uint256.Int).Sub(gasPrice, baseFee)
		tip.Mul(tip, uint256.NewInt(gasUsed))
		if err := h.state.AddBalance(ctx, h.env.Block.Coinbase, tip); err != nil {
			return nil, h.abort(start, err)
		}
	}
	result.Logs = h.state.Logs()

	log.Debug(log.HostMonitoring, "transaction executed", "status", result.Status, "gasUsed", result.GasUsed, "refund", result.GasRefund, "steps", result.Steps, "logs", len(result.Logs), "output", evmcommon.TruncateHex(result.Output, 64))
	if w != nil {
		if err := h.state.Commit(w); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
	}
	return result, nil
}

func (h *Host) abort(snapshot int, err error) error {
	h.state.RevertToSnapshot(snapshot)
	log.Warn(log.HostMonitoring, "transaction aborted", "err", vmerrors.GetErrorName(err), "detail", err)
	return err
}
