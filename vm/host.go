package vm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Host is everything the interpreter knows about the outside world. Host
// reports facts (values, cold/warm); the interpreter prices them.
//
// Methods taking a context may block on a slow backend. Sload, Sstore and Log
// assume the frame's storage is already resident. A non-nil error is always
// fatal for the transaction; absent data is a zero value, never an error.
type Host interface {
	Step(interp *Interpreter) Status
	StepEnd(interp *Interpreter, status Status) Status
	Env() *Environment

	LoadAccount(ctx context.Context, addr common.Address) (AccountLoad, error)
	BlockHash(ctx context.Context, number uint64) (BlockHashResult, error)
	Balance(ctx context.Context, addr common.Address) (BalanceResult, error)
	Code(ctx context.Context, addr common.Address) (CodeResult, error)
	CodeHash(ctx context.Context, addr common.Address) (CodeHashResult, error)
	Sload(addr common.Address, key common.Hash) (SloadResult, error)
	Sstore(addr common.Address, key common.Hash, value common.Hash) (SstoreResult, error)
	Log(addr common.Address, topics []common.Hash, data []byte)
	SelfDestruct(ctx context.Context, addr common.Address, target common.Address) (SelfDestructResult, error)
	Create(ctx context.Context, req *CreateRequest) CreateResult
	Call(ctx context.Context, req *CallRequest) CallResult
}

// AccountLoad: IsNew is set when the account does not exist or is empty.
type AccountLoad struct {
	IsCold bool
	IsNew  bool
}

// BlockHashResult: Available is false for blocks the host cannot serve.
type BlockHashResult struct {
	Hash      common.Hash
	Available bool
}

type BalanceResult struct {
	Value  *uint256.Int
	IsCold bool
}

type CodeResult struct {
	Code   []byte
	IsCold bool
}

// CodeHashResult: Hash is zero for a non-existent account.
type CodeHashResult struct {
	Hash   common.Hash
	IsCold bool
}

type SloadResult struct {
	Value  common.Hash
	IsCold bool
}

// SstoreResult: Original is the value at the transaction's first touch of
// the slot, Present the value just before this write, New the written value.
type SstoreResult struct {
	Original common.Hash
	Present  common.Hash
	New      common.Hash
	IsCold   bool
}
