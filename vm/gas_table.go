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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Gas cost steps for the simple opcodes.
const (
	GasQuickStep   uint64 = 2
	GasFastestStep uint64 = 3
	GasFastStep    uint64 = 5
	GasMidStep     uint64 = 8
	GasSlowStep    uint64 = 10
	GasExtStep     uint64 = 20
)

// coldAccountSurcharge is paid on top of the warm read cost the opcode
// already charged as constant gas.
const coldAccountSurcharge = params.ColdAccountAccessCostEIP2929 - params.WarmStorageReadCostEIP2929

// AccountAccessCost prices BALANCE, EXTCODESIZE, EXTCODEHASH and the address
// part of the CALL family.
func AccountAccessCost(isCold bool) uint64 {
	if isCold {
		return params.ColdAccountAccessCostEIP2929
	}
	return params.WarmStorageReadCostEIP2929
}

// SloadCost prices SLOAD.
func SloadCost(isCold bool) uint64 {
	if isCold {
		return params.ColdSloadCostEIP2929
	}
	return params.WarmStorageReadCostEIP2929
}

// SstoreCost derives the gas and refund delta of an SSTORE from the
// (original, present, new) triple reported by the host, following
// EIP-2200 with the EIP-2929 cold slot surcharge.
//
//  1. If current value equals new value (this is a no-op), 100 gas is deducted.
//  2. If current value does not equal new value
//     2.1. If original value equals current value (this storage slot has not been changed by the current execution context)
//     2.1.1. If original value is 0, 20000 gas is deducted.
//     2.1.2. Otherwise, 2900 gas is deducted. If new value is 0, add 15000 gas to refund counter.
//     2.2. If original value does not equal current value (this storage slot is dirty), 100 gas is deducted. Apply both of the following clauses.
//     2.2.1. If original value is not 0
//     2.2.1.1. If current value is 0 (also means that new value is not 0), remove 15000 gas from refund counter.
//     2.2.1.2. If new value is 0 (also means that current value is not 0), add 15000 gas to refund counter.
//     2.2.2. If original value equals new value (this storage slot is reset)
//     2.2.2.1. If original value is 0, add 19900 gas to refund counter.
//     2.2.2.2. Otherwise, add 2800 gas to refund counter.
func SstoreCost(res SstoreResult) (cost uint64, refund int64) {
	const clearingRefund = int64(params.SstoreClearsScheduleRefundEIP2200)
	var (
		zero     = common.Hash{}
		original = res.Original
		current  = res.Present
		value    = res.New
	)
	if res.IsCold {
		cost = params.ColdSloadCostEIP2929
	}
	if current == value { // noop (1)
		return cost + params.WarmStorageReadCostEIP2929, 0
	}
	if original == current {
		if original == zero { // create slot (2.1.1)
			return cost + params.SstoreSetGasEIP2200, 0
		}
		if value == zero { // delete slot (2.1.2b)
			refund += clearingRefund
		}
		return cost + (params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929), refund // write existing slot (2.1.2)
	}
	if original != zero {
		if current == zero { // recreate slot (2.2.1.1)
			refund -= clearingRefund
		} else if value == zero { // delete slot (2.2.1.2)
			refund += clearingRefund
		}
	}
	if original == value {
		if original == zero { // reset to original inexistent slot (2.2.2.1)
			refund += int64(params.SstoreSetGasEIP2200 - params.WarmStorageReadCostEIP2929)
		} else { // reset to original existing slot (2.2.2.2)
			refund += int64((params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929) - params.WarmStorageReadCostEIP2929)
		}
	}
	return cost + params.WarmStorageReadCostEIP2929, refund // dirty update (2.2)
}

// SelfDestructCost prices SELFDESTRUCT beyond its constant part.
func SelfDestructCost(res SelfDestructResult) uint64 {
	var gas uint64
	if res.IsCold {
		gas += params.ColdAccountAccessCostEIP2929
	}
	if res.HadValue && !res.TargetExists {
		gas += params.CreateBySelfdestructGas
	}
	return gas
}

// callGas returns the gas forwarded to a sub-call: everything but one 64th
// of what is available, or less if the caller asked for less.
func callGas(availableGas uint64, requested *uint256.Int) uint64 {
	gas := availableGas - availableGas/64
	if !requested.IsUint64() || gas < requested.Uint64() {
		return gas
	}
	return requested.Uint64()
}

// memorySizeFunc returns the memory size an operation needs and whether
// computing it overflowed.
type memorySizeFunc func(*Stack) (size uint64, overflow bool)

func memoryKeccak256(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}

func memoryCallDataCopy(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(2))
}

func memoryReturnDataCopy(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(2))
}

func memoryCodeCopy(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(2))
}

func memoryExtCodeCopy(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(3))
}

func memoryMLoad(stack *Stack) (uint64, bool) {
	return calcMemSize64WithUint(stack.Back(0), 32)
}

func memoryMStore8(stack *Stack) (uint64, bool) {
	return calcMemSize64WithUint(stack.Back(0), 1)
}

func memoryMStore(stack *Stack) (uint64, bool) {
	return calcMemSize64WithUint(stack.Back(0), 32)
}

func memoryCreate(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(2))
}

func memoryCreate2(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(2))
}

func memoryCall(stack *Stack) (uint64, bool) {
	x, overflow := calcMemSize64(stack.Back(5), stack.Back(6))
	if overflow {
		return 0, true
	}
	y, overflow := calcMemSize64(stack.Back(3), stack.Back(4))
	if overflow {
		return 0, true
	}
	if x > y {
		return x, false
	}
	return y, false
}

func memoryDelegateCall(stack *Stack) (uint64, bool) {
	x, overflow := calcMemSize64(stack.Back(4), stack.Back(5))
	if overflow {
		return 0, true
	}
	y, overflow := calcMemSize64(stack.Back(2), stack.Back(3))
	if overflow {
		return 0, true
	}
	if x > y {
		return x, false
	}
	return y, false
}

func memoryStaticCall(stack *Stack) (uint64, bool) {
	return memoryDelegateCall(stack)
}

func memoryReturn(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}

func memoryRevert(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}

func memoryLog(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}
