// Copyright 2024 The quartz Authors
// This file is part of the quartz library.
//
// The quartz library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The quartz library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the quartz library. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quartzevm/quartz/common"
)

const (
	set2BitsMask = uint16(0b11)
	set3BitsMask = uint16(0b111)
	set4BitsMask = uint16(0b1111)
	set5BitsMask = uint16(0b1_1111)
	set6BitsMask = uint16(0b11_1111)
	set7BitsMask = uint16(0b111_1111)
)

// bitvec is a bit vector which maps bytes in a program.
// An unset bit means the byte is an opcode, a set bit means
// it's data (i.e. argument of PUSHxx).
type bitvec []byte

func (bits bitvec) set1(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

func (bits bitvec) setN(flag uint16, pos uint64) {
	a := flag << (pos % 8)
	bits[pos/8] |= byte(a)
	if b := byte(a >> 8); b != 0 {
		bits[pos/8+1] = b
	}
}

func (bits bitvec) set8(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = ^a
}

func (bits bitvec) set16(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = 0xFF
	bits[pos/8+2] = ^a
}

// codeSegment checks if the position is in a code segment.
func (bits *bitvec) codeSegment(pos uint64) bool {
	return (((*bits)[pos/8] >> (pos % 8)) & 1) == 0
}

// codeBitmap collects data locations in code.
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary, in case the code
	// ends with a PUSH32, the algorithm will set bits on the
	// bitvector outside the bounds of the actual code.
	bits := make(bitvec, len(code)/8+1+4)
	return codeBitmapInternal(code, bits)
}

// codeBitmapInternal is the internal implementation of codeBitmap.
// It exists for the purpose of being able to run benchmark tests
// without dynamic allocations affecting the results.
func codeBitmapInternal(code, bits bitvec) bitvec {
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++

		if int8(op) < int8(PUSH1) { // If not PUSH (the int8(op) > int(PUSH32) is always false).
			continue
		}
		numbits := op - PUSH1 + 1
		if numbits >= 8 {
			for ; numbits >= 16; numbits -= 16 {
				bits.set16(pc)
				pc += 16
			}
			for ; numbits >= 8; numbits -= 8 {
				bits.set8(pc)
				pc += 8
			}
		}
		switch numbits {
		case 1:
			bits.set1(pc)
			pc += 1
		case 2:
			bits.setN(set2BitsMask, pc)
			pc += 2
		case 3:
			bits.setN(set3BitsMask, pc)
			pc += 3
		case 4:
			bits.setN(set4BitsMask, pc)
			pc += 4
		case 5:
			bits.setN(set5BitsMask, pc)
			pc += 5
		case 6:
			bits.setN(set6BitsMask, pc)
			pc += 6
		case 7:
			bits.setN(set7BitsMask, pc)
			pc += 7
		}
	}
	return bits
}

// CodeAnalysis is the result of the one-pass scan over a contract's code: the
// push-data bitmap used for jump destination validation and the padded
// execution view of the code.
//
// The padded view appends at least one STOP byte after the original code, plus
// enough trailing STOP bytes that a PUSH whose immediate runs past the end of
// code reads zeros without any bounds check. Two STOP bytes are always
// guaranteed: one at len(code), terminating fall-through execution, and one at
// the very end, terminating the dispatch loop.
type CodeAnalysis struct {
	jumpdests bitvec
	exec      []byte
}

// analyse performs the single left-to-right scan over code, producing both the
// push-data bitmap and the padded execution view.
func analyse(code []byte) *CodeAnalysis {
	// Track how far a trailing PUSH immediate would reach past the code end:
	// the padded buffer must cover it, plus the final terminating STOP.
	end := uint64(len(code))
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++
		if op.IsPush() {
			pc += uint64(op - PUSH1 + 1)
		}
		if pc > end {
			end = pc
		}
	}
	exec := make([]byte, end+1)
	copy(exec, code)
	return &CodeAnalysis{
		jumpdests: codeBitmap(code),
		exec:      exec,
	}
}

// analysisCache memoizes code analysis across invocations, keyed by code hash.
// A bounded LRU keeps repeated executions of hot contracts from re-scanning.
var analysisCache, _ = lru.New[common.Hash, *CodeAnalysis](4096)

// analyseCached returns the analysis for the given code, consulting the
// shared cache when a code hash is available.
func analyseCached(codeHash common.Hash, code []byte) *CodeAnalysis {
	if codeHash == (common.Hash{}) {
		return analyse(code)
	}
	if a, ok := analysisCache.Get(codeHash); ok {
		return a
	}
	a := analyse(code)
	analysisCache.Add(codeHash, a)
	return a
}
