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

	"github.com/ethereum/go-ethereum/params"
)

type executionFunc func(ctx context.Context, in *Interpreter, host Host) Status

type operation struct {
	execute     executionFunc
	constantGas uint64
	// minStack tells how many stack items are required
	minStack int
	// maxStack specifies the max length the stack can have for this operation
	// to not overflow the stack.
	maxStack int
	// memorySize returns the memory size required for the operation
	memorySize memorySizeFunc
	// jumps is set for operations that manage the program counter themselves
	jumps bool
	// writes marks operations forbidden in a static frame
	writes bool
}

// unsupportedOps are defined by later forks but not implemented here.
var unsupportedOps = map[OpCode]bool{
	TLOAD:       true,
	TSTORE:      true,
	MCOPY:       true,
	BLOBHASH:    true,
	BLOBBASEFEE: true,
}

var jumpTable = newJumpTable()

func newJumpTable() [256]*operation {
	tbl := [256]*operation{
		STOP: {
			execute:     opStop,
			constantGas: 0,
			minStack:    minStack(0, 0),
			maxStack:    maxStack(0, 0),
			jumps:       true,
		},
		ADD:        {execute: opAdd, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		MUL:        {execute: opMul, constantGas: GasFastStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SUB:        {execute: opSub, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		DIV:        {execute: opDiv, constantGas: GasFastStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SDIV:       {execute: opSdiv, constantGas: GasFastStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		MOD:        {execute: opMod, constantGas: GasFastStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SMOD:       {execute: opSmod, constantGas: GasFastStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		ADDMOD:     {execute: opAddmod, constantGas: GasMidStep, minStack: minStack(3, 1), maxStack: maxStack(3, 1)},
		MULMOD:     {execute: opMulmod, constantGas: GasMidStep, minStack: minStack(3, 1), maxStack: maxStack(3, 1)},
		EXP:        {execute: opExp, constantGas: params.ExpGas, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SIGNEXTEND: {execute: opSignExtend, constantGas: GasFastStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},

		LT:     {execute: opLt, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		GT:     {execute: opGt, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SLT:    {execute: opSlt, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SGT:    {execute: opSgt, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		EQ:     {execute: opEq, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		ISZERO: {execute: opIszero, constantGas: GasFastestStep, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		AND:    {execute: opAnd, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		OR:     {execute: opOr, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		XOR:    {execute: opXor, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		NOT:    {execute: opNot, constantGas: GasFastestStep, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		BYTE:   {execute: opByte, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SHL:    {execute: opSHL, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SHR:    {execute: opSHR, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},
		SAR:    {execute: opSAR, constantGas: GasFastestStep, minStack: minStack(2, 1), maxStack: maxStack(2, 1)},

		KECCAK256: {
			execute:     opKeccak256,
			constantGas: params.Keccak256Gas,
			minStack:    minStack(2, 1),
			maxStack:    maxStack(2, 1),
			memorySize:  memoryKeccak256,
		},

		ADDRESS:      {execute: opAddress, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		BALANCE:      {execute: opBalance, constantGas: 0, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		ORIGIN:       {execute: opOrigin, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		CALLER:       {execute: opCaller, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		CALLVALUE:    {execute: opCallValue, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		CALLDATALOAD: {execute: opCallDataLoad, constantGas: GasFastestStep, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		CALLDATASIZE: {execute: opCallDataSize, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		CALLDATACOPY: {
			execute:     opCallDataCopy,
			constantGas: GasFastestStep,
			minStack:    minStack(3, 0),
			maxStack:    maxStack(3, 0),
			memorySize:  memoryCallDataCopy,
		},
		CODESIZE: {execute: opCodeSize, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		CODECOPY: {
			execute:     opCodeCopy,
			constantGas: GasFastestStep,
			minStack:    minStack(3, 0),
			maxStack:    maxStack(3, 0),
			memorySize:  memoryCodeCopy,
		},
		GASPRICE:    {execute: opGasprice, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		EXTCODESIZE: {execute: opExtCodeSize, constantGas: 0, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		EXTCODECOPY: {
			execute:     opExtCodeCopy,
			constantGas: params.WarmStorageReadCostEIP2929,
			minStack:    minStack(4, 0),
			maxStack:    maxStack(4, 0),
			memorySize:  memoryExtCodeCopy,
		},
		RETURNDATASIZE: {execute: opReturnDataSize, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		RETURNDATACOPY: {
			execute:     opReturnDataCopy,
			constantGas: GasFastestStep,
			minStack:    minStack(3, 0),
			maxStack:    maxStack(3, 0),
			memorySize:  memoryReturnDataCopy,
		},
		EXTCODEHASH: {execute: opExtCodeHash, constantGas: 0, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},

		BLOCKHASH:   {execute: opBlockhash, constantGas: GasExtStep, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		COINBASE:    {execute: opCoinbase, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		TIMESTAMP:   {execute: opTimestamp, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		NUMBER:      {execute: opNumber, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		PREVRANDAO:  {execute: opRandom, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		GASLIMIT:    {execute: opGasLimit, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		CHAINID:     {execute: opChainID, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		SELFBALANCE: {execute: opSelfBalance, constantGas: GasFastStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		BASEFEE:     {execute: opBaseFee, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},

		POP:      {execute: opPop, constantGas: GasQuickStep, minStack: minStack(1, 0), maxStack: maxStack(1, 0)},
		MLOAD:    {execute: opMload, constantGas: GasFastestStep, minStack: minStack(1, 1), maxStack: maxStack(1, 1), memorySize: memoryMLoad},
		MSTORE:   {execute: opMstore, constantGas: GasFastestStep, minStack: minStack(2, 0), maxStack: maxStack(2, 0), memorySize: memoryMStore},
		MSTORE8:  {execute: opMstore8, constantGas: GasFastestStep, minStack: minStack(2, 0), maxStack: maxStack(2, 0), memorySize: memoryMStore8},
		SLOAD:    {execute: opSload, constantGas: 0, minStack: minStack(1, 1), maxStack: maxStack(1, 1)},
		SSTORE:   {execute: opSstore, constantGas: 0, minStack: minStack(2, 0), maxStack: maxStack(2, 0), writes: true},
		JUMP:     {execute: opJump, constantGas: GasMidStep, minStack: minStack(1, 0), maxStack: maxStack(1, 0), jumps: true},
		JUMPI:    {execute: opJumpi, constantGas: GasSlowStep, minStack: minStack(2, 0), maxStack: maxStack(2, 0), jumps: true},
		PC:       {execute: opPc, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		MSIZE:    {execute: opMsize, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		GAS:      {execute: opGas, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},
		JUMPDEST: {execute: opJumpdest, constantGas: params.JumpdestGas, minStack: minStack(0, 0), maxStack: maxStack(0, 0)},
		PUSH0:    {execute: opPush0, constantGas: GasQuickStep, minStack: minStack(0, 1), maxStack: maxStack(0, 1)},

		CREATE: {
			execute:     opCreate,
			constantGas: params.CreateGas,
			minStack:    minStack(3, 1),
			maxStack:    maxStack(3, 1),
			memorySize:  memoryCreate,
			writes:      true,
		},
		CALL: {
			execute:     opCall,
			constantGas: params.WarmStorageReadCostEIP2929,
			minStack:    minStack(7, 1),
			maxStack:    maxStack(7, 1),
			memorySize:  memoryCall,
		},
		CALLCODE: {
			execute:     opCallCode,
			constantGas: params.WarmStorageReadCostEIP2929,
			minStack:    minStack(7, 1),
			maxStack:    maxStack(7, 1),
			memorySize:  memoryCall,
		},
		RETURN: {
			execute:    opReturn,
			minStack:   minStack(2, 0),
			maxStack:   maxStack(2, 0),
			memorySize: memoryReturn,
			jumps:      true,
		},
		DELEGATECALL: {
			execute:     opDelegateCall,
			constantGas: params.WarmStorageReadCostEIP2929,
			minStack:    minStack(6, 1),
			maxStack:    maxStack(6, 1),
			memorySize:  memoryDelegateCall,
		},
		CREATE2: {
			execute:     opCreate2,
			constantGas: params.Create2Gas,
			minStack:    minStack(4, 1),
			maxStack:    maxStack(4, 1),
			memorySize:  memoryCreate2,
			writes:      true,
		},
		STATICCALL: {
			execute:     opStaticCall,
			constantGas: params.WarmStorageReadCostEIP2929,
			minStack:    minStack(6, 1),
			maxStack:    maxStack(6, 1),
			memorySize:  memoryStaticCall,
		},
		REVERT: {
			execute:    opRevert,
			minStack:   minStack(2, 0),
			maxStack:   maxStack(2, 0),
			memorySize: memoryRevert,
			jumps:      true,
		},
		SELFDESTRUCT: {
			execute:     opSelfdestruct,
			constantGas: params.SelfdestructGasEIP150,
			minStack:    minStack(1, 0),
			maxStack:    maxStack(1, 0),
			writes:      true,
		},
	}

	for i := 0; i < 32; i++ {
		size := i + 1
		tbl[PUSH1+OpCode(i)] = &operation{
			execute:     makePush(uint64(size)),
			constantGas: GasFastestStep,
			minStack:    minStack(0, 1),
			maxStack:    maxStack(0, 1),
		}
	}
	for i := 1; i <= 16; i++ {
		tbl[DUP1+OpCode(i-1)] = &operation{
			execute:     makeDup(i),
			constantGas: GasFastestStep,
			minStack:    minDupStack(i),
			maxStack:    maxDupStack(i),
		}
		tbl[SWAP1+OpCode(i-1)] = &operation{
			execute:     makeSwap(i),
			constantGas: GasFastestStep,
			minStack:    minSwapStack(i + 1),
			maxStack:    maxSwapStack(i + 1),
		}
	}
	for i := 0; i <= 4; i++ {
		tbl[LOG0+OpCode(i)] = &operation{
			execute:     makeLog(i),
			constantGas: params.LogGas + uint64(i)*params.LogTopicGas,
			minStack:    minStack(i+2, 0),
			maxStack:    maxStack(i+2, 0),
			memorySize:  memoryLog,
			writes:      true,
		}
	}
	return tbl
}
