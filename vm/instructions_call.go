package vm

import (
	"context"

	"github.com/colorfulnotion/evmhost/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// callArgs are the popped operands of a call-class instruction.
type callArgs struct {
	gas     uint256.Int
	addr    common.Address
	value   uint256.Int
	inOff   uint256.Int
	inSize  uint256.Int
	retOff  uint256.Int
	retSize uint256.Int
}

func popCallArgs(stack *Stack, withValue bool) callArgs {
	var a callArgs
	a.gas = stack.pop()
	addr := stack.pop()
	a.addr = common.Address(addr.Bytes20())
	if withValue {
		a.value = stack.pop()
	}
	a.inOff, a.inSize = stack.pop(), stack.pop()
	a.retOff, a.retSize = stack.pop(), stack.pop()
	return a
}

func opCall(ctx context.Context, in *Interpreter, host Host) Status {
	args := popCallArgs(in.stack, true)
	// a static frame may call, but never with value
	if in.isStatic && !args.value.IsZero() {
		return StaticStateChange
	}
	return in.dispatchCall(ctx, host, KindCall, args)
}

func opCallCode(ctx context.Context, in *Interpreter, host Host) Status {
	return in.dispatchCall(ctx, host, KindCallCode, popCallArgs(in.stack, true))
}

func opDelegateCall(ctx context.Context, in *Interpreter, host Host) Status {
	return in.dispatchCall(ctx, host, KindDelegateCall, popCallArgs(in.stack, false))
}

func opStaticCall(ctx context.Context, in *Interpreter, host Host) Status {
	return in.dispatchCall(ctx, host, KindStaticCall, popCallArgs(in.stack, false))
}

// dispatchCall prices the call, forwards all but one 64th of the remaining
// gas (or what was asked for, if less), hands the request to the host and
// merges the outcome back into this frame.
func (in *Interpreter) dispatchCall(ctx context.Context, host Host, kind CallKind, args callArgs) Status {
	load, err := host.LoadAccount(ctx, args.addr)
	if err != nil {
		return in.fatal(err)
	}

	transfersValue := (kind == KindCall || kind == KindCallCode) && !args.value.IsZero()
	var cost uint64
	if load.IsCold {
		cost += coldAccountSurcharge
	}
	if transfersValue {
		cost += params.CallValueTransferGas
	}
	if kind == KindCall && transfersValue && load.IsNew {
		cost += params.CallNewAccountGas
	}
	if !in.gas.Charge(cost) {
		return OutOfGas
	}

	gas := callGas(in.gas.Remaining(), &args.gas)
	in.gas.Charge(gas)
	if transfersValue {
		gas += params.CallStipend
	}

	req := &CallRequest{
		Kind:     kind,
		Input:    in.memory.GetCopy(args.inOff.Uint64(), args.inSize.Uint64()),
		GasLimit: gas,
		IsStatic: in.isStatic,
	}
	switch kind {
	case KindCall:
		req.Caller, req.Target, req.CodeAddress = in.contract.Address, args.addr, args.addr
		req.Value = new(uint256.Int).Set(&args.value)
	case KindCallCode:
		req.Caller, req.Target, req.CodeAddress = in.contract.Address, in.contract.Address, args.addr
		req.Value = new(uint256.Int).Set(&args.value)
	case KindDelegateCall:
		req.Caller, req.Target, req.CodeAddress = in.contract.Caller, in.contract.Address, args.addr
		req.Value = orZero(in.contract.Value)
	case KindStaticCall:
		req.Caller, req.Target, req.CodeAddress = in.contract.Address, args.addr, args.addr
		req.Value = new(uint256.Int)
		req.IsStatic = true
	}

	log.Trace(log.InterpMonitoring, "dispatch call", "kind", kind, "depth", in.depth, "to", args.addr, "gas", gas)
	res := host.Call(ctx, req)
	if res.Status == FatalHostError {
		return in.fatal(res.Err)
	}

	in.returnData = res.Output
	if res.Status.IsSuccess() || res.Status.IsRevert() {
		in.memory.Set(args.retOff.Uint64(), min(args.retSize.Uint64(), uint64(len(res.Output))), res.Output)
	}
	in.gas.ReturnGas(res.GasLeft)

	if res.Status.IsSuccess() {
		in.gas.RecordRefund(res.GasRefund)
		in.stack.push(new(uint256.Int).SetOne())
	} else {
		in.stack.push(new(uint256.Int))
	}
	return Continue
}

func opCreate(ctx context.Context, in *Interpreter, host Host) Status {
	var (
		value  = in.stack.pop()
		offset = in.stack.pop()
		size   = in.stack.pop()
	)
	return in.dispatchCreate(ctx, host, KindCreate, &value, &offset, &size, nil)
}

func opCreate2(ctx context.Context, in *Interpreter, host Host) Status {
	var (
		endowment = in.stack.pop()
		offset    = in.stack.pop()
		size      = in.stack.pop()
		salt      = in.stack.pop()
	)
	return in.dispatchCreate(ctx, host, KindCreate2, &endowment, &offset, &size, &salt)
}

func (in *Interpreter) dispatchCreate(ctx context.Context, host Host, kind CallKind, value, offset, size, salt *uint256.Int) Status {
	if size.Uint64() > uint64(host.Env().Cfg.MaxInitCodeSize) {
		return CodeSizeExceeded
	}
	words := toWordSize(size.Uint64())
	cost := words * params.InitCodeWordGas
	if kind == KindCreate2 {
		cost += words * params.Keccak256WordGas
	}
	if !in.gas.Charge(cost) {
		return OutOfGas
	}

	gas := in.gas.Remaining()
	gas -= gas / 64
	in.gas.Charge(gas)

	req := &CreateRequest{
		Kind:     kind,
		Caller:   in.contract.Address,
		Value:    new(uint256.Int).Set(value),
		InitCode: in.memory.GetCopy(offset.Uint64(), size.Uint64()),
		GasLimit: gas,
	}
	if salt != nil {
		req.Salt = new(uint256.Int).Set(salt)
	}

	log.Trace(log.InterpMonitoring, "dispatch create", "kind", kind, "depth", in.depth, "gas", gas)
	res := host.Create(ctx, req)
	if res.Status == FatalHostError {
		return in.fatal(res.Err)
	}
	in.gas.ReturnGas(res.GasLeft)

	if res.Status.IsSuccess() && res.Address != nil {
		in.gas.RecordRefund(res.GasRefund)
		in.stack.push(addressToWord(*res.Address))
		in.returnData = nil
		return Continue
	}
	in.stack.push(new(uint256.Int))
	if res.Status.IsRevert() {
		in.returnData = res.Output
	} else {
		in.returnData = nil
	}
	return Continue
}
