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
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Stack is the operand stack of one frame. Bounds are checked by the step
// loop against the operation's stack requirements before execute runs.
type Stack struct {
	data []uint256.Int
}

func newstack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Data returns the underlying uint256.Int array.
func (st *Stack) Data() []uint256.Int {
	return st.data
}

func (st *Stack) push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

func (st *Stack) pop() (ret uint256.Int) {
	ret = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return
}

func (st *Stack) Len() int {
	return len(st.data)
}

// swap exchanges the top element with the one n below it.
func (st *Stack) swap(n int) {
	st.data[st.Len()-1], st.data[st.Len()-1-n] = st.data[st.Len()-1-n], st.data[st.Len()-1]
}

func (st *Stack) dup(n int) {
	st.push(&st.data[st.Len()-n])
}

func (st *Stack) peek() *uint256.Int {
	return &st.data[st.Len()-1]
}

// Back returns the n'th item in stack
func (st *Stack) Back(n int) *uint256.Int {
	return &st.data[st.Len()-n-1]
}

func minStack(pops, push int) int {
	return pops
}

func maxStack(pops, push int) int {
	return int(params.StackLimit) + pops - push
}

func minSwapStack(n int) int {
	return minStack(n, n)
}
func maxSwapStack(n int) int {
	return maxStack(n, n)
}

func minDupStack(n int) int {
	return minStack(n, n+1)
}
func maxDupStack(n int) int {
	return maxStack(n, n+1)
}
