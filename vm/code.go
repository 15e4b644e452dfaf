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
	"github.com/ethereum/go-ethereum/crypto"
)

// Code is a frame's program plus its JUMPDEST map.
type Code struct {
	bytes     []byte
	jumpdests bitvec
	hash      common.Hash
	hashed    bool
}

func NewCode(code []byte) *Code {
	return &Code{bytes: code, jumpdests: codeBitmap(code)}
}

// NewCodeWithHash skips hashing when the caller already knows the hash.
func NewCodeWithHash(code []byte, hash common.Hash) *Code {
	c := NewCode(code)
	c.hash, c.hashed = hash, true
	return c
}

func (c *Code) Bytes() []byte { return c.bytes }
func (c *Code) Len() int      { return len(c.bytes) }

func (c *Code) Hash() common.Hash {
	if !c.hashed {
		c.hash = crypto.Keccak256Hash(c.bytes)
		c.hashed = true
	}
	return c.hash
}

// GetOp returns the n'th element in the contract's byte array
func (c *Code) GetOp(n uint64) OpCode {
	if n < uint64(len(c.bytes)) {
		return OpCode(c.bytes[n])
	}
	return STOP
}

// IsJumpDest reports whether dest is a JUMPDEST instruction and not push data.
func (c *Code) IsJumpDest(dest uint64) bool {
	if dest >= uint64(len(c.bytes)) {
		return false
	}
	if OpCode(c.bytes[dest]) != JUMPDEST {
		return false
	}
	return c.jumpdests.codeSegment(dest)
}

// bitvec is a bit vector which maps bytes in a program.
// An unset bit means the byte is an opcode, a set bit means
// it's data (i.e. argument of PUSHxx).
type bitvec []byte

func (bits bitvec) set1(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

// codeSegment checks if the position is in a code segment.
func (bits bitvec) codeSegment(pos uint64) bool {
	return (bits[pos/8] & (1 << (pos % 8))) == 0
}

// codeBitmap collects data locations in code.
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary, in case the code
	// ends with a PUSH32, the algorithm will set bits on the
	// bitvector outside the bounds of the actual code.
	bits := make(bitvec, len(code)/8+1+4)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++
		if op < PUSH1 || op > PUSH32 {
			continue
		}
		numbits := uint64(op - PUSH1 + 1)
		for i := uint64(0); i < numbits; i++ {
			bits.set1(pc + i)
		}
		pc += numbits
	}
	return bits
}
