package vm

import (
	"context"
	gomath "math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Instructions that read or write state through the host. Each asks the
// host for facts first and prices the access from them.

func opBalance(ctx context.Context, in *Interpreter, host Host) Status {
	slot := in.stack.peek()
	res, err := host.Balance(ctx, common.Address(slot.Bytes20()))
	if err != nil {
		return in.fatal(err)
	}
	if !in.gas.Charge(AccountAccessCost(res.IsCold)) {
		return OutOfGas
	}
	slot.Set(orZero(res.Value))
	return Continue
}

func opSelfBalance(ctx context.Context, in *Interpreter, host Host) Status {
	res, err := host.Balance(ctx, in.contract.Address)
	if err != nil {
		return in.fatal(err)
	}
	in.stack.push(orZero(res.Value))
	return Continue
}

func opExtCodeSize(ctx context.Context, in *Interpreter, host Host) Status {
	slot := in.stack.peek()
	res, err := host.Code(ctx, common.Address(slot.Bytes20()))
	if err != nil {
		return in.fatal(err)
	}
	if !in.gas.Charge(AccountAccessCost(res.IsCold)) {
		return OutOfGas
	}
	slot.SetUint64(uint64(len(res.Code)))
	return Continue
}

func opExtCodeCopy(ctx context.Context, in *Interpreter, host Host) Status {
	var (
		a          = in.stack.pop()
		memOffset  = in.stack.pop()
		codeOffset = in.stack.pop()
		length     = in.stack.pop()
	)
	res, err := host.Code(ctx, common.Address(a.Bytes20()))
	if err != nil {
		return in.fatal(err)
	}
	cost := copyCost(length.Uint64())
	if res.IsCold {
		cost += coldAccountSurcharge
	}
	if !in.gas.Charge(cost) {
		return OutOfGas
	}
	uint64CodeOffset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		uint64CodeOffset = gomath.MaxUint64
	}
	in.memory.Set(memOffset.Uint64(), length.Uint64(), getData(res.Code, uint64CodeOffset, length.Uint64()))
	return Continue
}

// opExtCodeHash pushes zero for accounts that do not exist and the empty
// code hash for existing accounts without code.
func opExtCodeHash(ctx context.Context, in *Interpreter, host Host) Status {
	slot := in.stack.peek()
	res, err := host.CodeHash(ctx, common.Address(slot.Bytes20()))
	if err != nil {
		return in.fatal(err)
	}
	if !in.gas.Charge(AccountAccessCost(res.IsCold)) {
		return OutOfGas
	}
	slot.SetBytes(res.Hash.Bytes())
	return Continue
}

// opBlockhash only asks the host about the 256 most recent blocks.
func opBlockhash(ctx context.Context, in *Interpreter, host Host) Status {
	num := in.stack.peek()
	num64, overflow := num.Uint64WithOverflow()
	if overflow {
		num.Clear()
		return Continue
	}
	var upper, lower uint64
	upper = host.Env().Block.Number
	if upper < 257 {
		lower = 0
	} else {
		lower = upper - 256
	}
	if num64 < lower || num64 >= upper {
		num.Clear()
		return Continue
	}
	res, err := host.BlockHash(ctx, num64)
	if err != nil {
		return in.fatal(err)
	}
	if !res.Available {
		num.Clear()
		return Continue
	}
	num.SetBytes(res.Hash.Bytes())
	return Continue
}

func opSload(ctx context.Context, in *Interpreter, host Host) Status {
	loc := in.stack.peek()
	res, err := host.Sload(in.contract.Address, common.Hash(loc.Bytes32()))
	if err != nil {
		return in.fatal(err)
	}
	if !in.gas.Charge(SloadCost(res.IsCold)) {
		return OutOfGas
	}
	loc.SetBytes(res.Value.Bytes())
	return Continue
}

func opSstore(ctx context.Context, in *Interpreter, host Host) Status {
	// EIP-2200: fail if gasleft is at or below the call stipend
	if in.gas.Remaining() <= params.SstoreSentryGasEIP2200 {
		return OutOfGas
	}
	loc, val := in.stack.pop(), in.stack.pop()
	res, err := host.Sstore(in.contract.Address, loc.Bytes32(), val.Bytes32())
	if err != nil {
		return in.fatal(err)
	}
	cost, refund := SstoreCost(res)
	if !in.gas.Charge(cost) {
		return OutOfGas
	}
	in.gas.RecordRefund(refund)
	return Continue
}

// makeLog charges the data cost before handing the entry to the host, so a
// log the frame cannot pay for is never recorded.
func makeLog(size int) executionFunc {
	return func(ctx context.Context, in *Interpreter, host Host) Status {
		topics := make([]common.Hash, size)
		mStart, mSize := in.stack.pop(), in.stack.pop()
		for i := 0; i < size; i++ {
			addr := in.stack.pop()
			topics[i] = addr.Bytes32()
		}
		if !mSize.IsUint64() || mSize.Uint64() > gomath.MaxUint64/params.LogDataGas {
			return OutOfGas
		}
		if !in.gas.Charge(mSize.Uint64() * params.LogDataGas) {
			return OutOfGas
		}
		d := in.memory.GetCopy(mStart.Uint64(), mSize.Uint64())
		host.Log(in.contract.Address, topics, d)
		return Continue
	}
}

func opSelfdestruct(ctx context.Context, in *Interpreter, host Host) Status {
	beneficiary := in.stack.pop()
	res, err := host.SelfDestruct(ctx, in.contract.Address, common.Address(beneficiary.Bytes20()))
	if err != nil {
		return in.fatal(err)
	}
	if !in.gas.Charge(SelfDestructCost(res)) {
		return OutOfGas
	}
	if !res.PreviouslyDestroyed {
		in.gas.GrantRefund(params.SelfdestructRefundGas)
	}
	return SelfDestruct
}

func addressToWord(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(addr.Bytes())
}
