// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"context"
	gomath "math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

func opStop(ctx context.Context, in *Interpreter, host Host) Status {
	return Stop
}

func opAdd(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Add(&x, y)
	return Continue
}

func opSub(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Sub(&x, y)
	return Continue
}

func opMul(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Mul(&x, y)
	return Continue
}

func opDiv(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Div(&x, y)
	return Continue
}

func opSdiv(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.SDiv(&x, y)
	return Continue
}

func opMod(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Mod(&x, y)
	return Continue
}

func opSmod(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.SMod(&x, y)
	return Continue
}

func opExp(ctx context.Context, in *Interpreter, host Host) Status {
	base, exponent := in.stack.pop(), in.stack.peek()
	expByteLen := uint64((exponent.BitLen() + 7) / 8)
	if !in.gas.Charge(expByteLen * params.ExpByteEIP158) {
		return OutOfGas
	}
	exponent.Exp(&base, exponent)
	return Continue
}

func opSignExtend(ctx context.Context, in *Interpreter, host Host) Status {
	back, num := in.stack.pop(), in.stack.peek()
	num.ExtendSign(num, &back)
	return Continue
}

func opNot(ctx context.Context, in *Interpreter, host Host) Status {
	x := in.stack.peek()
	x.Not(x)
	return Continue
}

func opLt(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	if x.Lt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return Continue
}

func opGt(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	if x.Gt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return Continue
}

func opSlt(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	if x.Slt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return Continue
}

func opSgt(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	if x.Sgt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return Continue
}

func opEq(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	if x.Eq(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return Continue
}

func opIszero(ctx context.Context, in *Interpreter, host Host) Status {
	x := in.stack.peek()
	if x.IsZero() {
		x.SetOne()
	} else {
		x.Clear()
	}
	return Continue
}

func opAnd(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.And(&x, y)
	return Continue
}

func opOr(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Or(&x, y)
	return Continue
}

func opXor(ctx context.Context, in *Interpreter, host Host) Status {
	x, y := in.stack.pop(), in.stack.peek()
	y.Xor(&x, y)
	return Continue
}

func opByte(ctx context.Context, in *Interpreter, host Host) Status {
	th, val := in.stack.pop(), in.stack.peek()
	val.Byte(&th)
	return Continue
}

func opAddmod(ctx context.Context, in *Interpreter, host Host) Status {
	x, y, z := in.stack.pop(), in.stack.pop(), in.stack.peek()
	z.AddMod(&x, &y, z)
	return Continue
}

func opMulmod(ctx context.Context, in *Interpreter, host Host) Status {
	x, y, z := in.stack.pop(), in.stack.pop(), in.stack.peek()
	z.MulMod(&x, &y, z)
	return Continue
}

// opSHL implements Shift Left
// The SHL instruction (shift left) pops 2 values from the stack, first arg1 and then arg2,
// and pushes on the stack arg2 shifted to the left by arg1 number of bits.
func opSHL(ctx context.Context, in *Interpreter, host Host) Status {
	// Note, second operand is left in the stack; accumulate result into it, and no need to push it afterwards
	shift, value := in.stack.pop(), in.stack.peek()
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return Continue
}

// opSHR implements Logical Shift Right
// The SHR instruction (logical shift right) pops 2 values from the stack, first arg1 and then arg2,
// and pushes on the stack arg2 shifted to the right by arg1 number of bits with zero fill.
func opSHR(ctx context.Context, in *Interpreter, host Host) Status {
	// Note, second operand is left in the stack; accumulate result into it, and no need to push it afterwards
	shift, value := in.stack.pop(), in.stack.peek()
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return Continue
}

// opSAR implements Arithmetic Shift Right
// The SAR instruction (arithmetic shift right) pops 2 values from the stack, first arg1 and then arg2,
// and pushes on the stack arg2 shifted to the right by arg1 number of bits with sign extension.
func opSAR(ctx context.Context, in *Interpreter, host Host) Status {
	shift, value := in.stack.pop(), in.stack.peek()
	if shift.GtUint64(255) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			// Max negative shift: all bits set
			value.SetAllOne()
		}
		return Continue
	}
	n := uint(shift.Uint64())
	value.SRsh(value, n)
	return Continue
}

func opKeccak256(ctx context.Context, in *Interpreter, host Host) Status {
	offset, size := in.stack.pop(), in.stack.peek()
	if !in.gas.Charge(toWordSize(size.Uint64()) * params.Keccak256WordGas) {
		return OutOfGas
	}
	data := in.memory.GetPtr(offset.Uint64(), size.Uint64())
	size.SetBytes(crypto.Keccak256(data))
	return Continue
}

func opAddress(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetBytes(in.contract.Address.Bytes()))
	return Continue
}

func opOrigin(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetBytes(host.Env().Tx.Origin.Bytes()))
	return Continue
}

func opCaller(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetBytes(in.contract.Caller.Bytes()))
	return Continue
}

func opCallValue(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(orZero(in.contract.Value))
	return Continue
}

func opCallDataLoad(ctx context.Context, in *Interpreter, host Host) Status {
	x := in.stack.peek()
	if offset, overflow := x.Uint64WithOverflow(); !overflow {
		data := getData(in.contract.Input, offset, 32)
		x.SetBytes(data)
	} else {
		x.Clear()
	}
	return Continue
}

func opCallDataSize(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(uint64(len(in.contract.Input))))
	return Continue
}

func copyCost(length uint64) uint64 {
	return toWordSize(length) * params.CopyGas
}

func opCallDataCopy(ctx context.Context, in *Interpreter, host Host) Status {
	var (
		memOffset  = in.stack.pop()
		dataOffset = in.stack.pop()
		length     = in.stack.pop()
	)
	if !in.gas.Charge(copyCost(length.Uint64())) {
		return OutOfGas
	}
	dataOffset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		dataOffset64 = gomath.MaxUint64
	}
	in.memory.Set(memOffset.Uint64(), length.Uint64(), getData(in.contract.Input, dataOffset64, length.Uint64()))
	return Continue
}

func opReturnDataSize(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(uint64(len(in.returnData))))
	return Continue
}

func opReturnDataCopy(ctx context.Context, in *Interpreter, host Host) Status {
	var (
		memOffset  = in.stack.pop()
		dataOffset = in.stack.pop()
		length     = in.stack.pop()
	)
	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return OutOfBoundsAccess
	}
	// we can reuse dataOffset now (aliasing it for clarity)
	var end = dataOffset
	end.Add(&dataOffset, &length)
	end64, overflow := end.Uint64WithOverflow()
	if overflow || uint64(len(in.returnData)) < end64 {
		return OutOfBoundsAccess
	}
	if !in.gas.Charge(copyCost(length.Uint64())) {
		return OutOfGas
	}
	in.memory.Set(memOffset.Uint64(), length.Uint64(), in.returnData[offset64:end64])
	return Continue
}

func opCodeSize(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(uint64(in.contract.Code.Len())))
	return Continue
}

func opCodeCopy(ctx context.Context, in *Interpreter, host Host) Status {
	var (
		memOffset  = in.stack.pop()
		codeOffset = in.stack.pop()
		length     = in.stack.pop()
	)
	if !in.gas.Charge(copyCost(length.Uint64())) {
		return OutOfGas
	}
	uint64CodeOffset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		uint64CodeOffset = gomath.MaxUint64
	}
	codeCopy := getData(in.contract.Code.Bytes(), uint64CodeOffset, length.Uint64())
	in.memory.Set(memOffset.Uint64(), length.Uint64(), codeCopy)
	return Continue
}

func opGasprice(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(orZero(host.Env().Tx.GasPrice))
	return Continue
}

func opCoinbase(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetBytes(host.Env().Block.Coinbase.Bytes()))
	return Continue
}

func opTimestamp(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(host.Env().Block.Timestamp))
	return Continue
}

func opNumber(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(host.Env().Block.Number))
	return Continue
}

func opRandom(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetBytes(host.Env().Block.PrevRandao.Bytes()))
	return Continue
}

func opGasLimit(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(host.Env().Block.GasLimit))
	return Continue
}

func opChainID(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(orZero(host.Env().Cfg.ChainID))
	return Continue
}

func opBaseFee(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(orZero(host.Env().Block.BaseFee))
	return Continue
}

func opPop(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.pop()
	return Continue
}

func opMload(ctx context.Context, in *Interpreter, host Host) Status {
	v := in.stack.peek()
	offset := v.Uint64()
	v.SetBytes(in.memory.GetPtr(offset, 32))
	return Continue
}

func opMstore(ctx context.Context, in *Interpreter, host Host) Status {
	mStart, val := in.stack.pop(), in.stack.pop()
	in.memory.Set32(mStart.Uint64(), &val)
	return Continue
}

func opMstore8(ctx context.Context, in *Interpreter, host Host) Status {
	off, val := in.stack.pop(), in.stack.pop()
	in.memory.store[off.Uint64()] = byte(val.Uint64())
	return Continue
}

func opJump(ctx context.Context, in *Interpreter, host Host) Status {
	pos := in.stack.pop()
	if !pos.IsUint64() || !in.contract.Code.IsJumpDest(pos.Uint64()) {
		return InvalidJump
	}
	in.pc = pos.Uint64()
	return Continue
}

func opJumpi(ctx context.Context, in *Interpreter, host Host) Status {
	pos, cond := in.stack.pop(), in.stack.pop()
	if cond.IsZero() {
		in.pc++
		return Continue
	}
	if !pos.IsUint64() || !in.contract.Code.IsJumpDest(pos.Uint64()) {
		return InvalidJump
	}
	in.pc = pos.Uint64()
	return Continue
}

func opJumpdest(ctx context.Context, in *Interpreter, host Host) Status {
	return Continue
}

func opPc(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(in.pc))
	return Continue
}

func opMsize(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(uint64(in.memory.Len())))
	return Continue
}

func opGas(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int).SetUint64(in.gas.Remaining()))
	return Continue
}

func opReturn(ctx context.Context, in *Interpreter, host Host) Status {
	offset, size := in.stack.pop(), in.stack.pop()
	in.output = in.memory.GetCopy(offset.Uint64(), size.Uint64())
	return Return
}

func opRevert(ctx context.Context, in *Interpreter, host Host) Status {
	offset, size := in.stack.pop(), in.stack.pop()
	in.output = in.memory.GetCopy(offset.Uint64(), size.Uint64())
	return Revert
}

func opPush0(ctx context.Context, in *Interpreter, host Host) Status {
	in.stack.push(new(uint256.Int))
	return Continue
}

// makePush pushes the next size bytes of code, zero padded on the right
// when the code ends early.
func makePush(size uint64) executionFunc {
	return func(ctx context.Context, in *Interpreter, host Host) Status {
		code := in.contract.Code.Bytes()
		codeLen := uint64(len(code))
		start := min(codeLen, in.pc+1)
		end := min(codeLen, start+size)

		a := new(uint256.Int).SetBytes(common.RightPadBytes(code[start:end], int(size)))
		in.stack.push(a)
		in.pc += size
		return Continue
	}
}

func makeDup(size int) executionFunc {
	return func(ctx context.Context, in *Interpreter, host Host) Status {
		in.stack.dup(size)
		return Continue
	}
}

func makeSwap(size int) executionFunc {
	return func(ctx context.Context, in *Interpreter, host Host) Status {
		in.stack.swap(size)
		return Continue
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
