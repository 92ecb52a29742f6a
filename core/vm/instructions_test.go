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
	"testing"

	"github.com/holiman/uint256"

	"github.com/quartzevm/quartz/common"
	"github.com/quartzevm/quartz/crypto"
	"github.com/quartzevm/quartz/params"
)

// hexToU256 parses a big-endian hex string without 0x prefix.
func hexToU256(s string) *uint256.Int {
	return new(uint256.Int).SetBytes(common.Hex2Bytes(s))
}

type twoOperandTest struct {
	x, y, expected string
}

func testTwoOperandOp(t *testing.T, tests []twoOperandTest, opFn executionFunc, name string) {
	t.Helper()
	var (
		host  = newTestHost(params.Cancun)
		evm   = NewEVM(host, params.Cancun, Config{})
		stack = newstack()
		pc    = uint64(0)
	)
	defer returnStack(stack)
	scope := &ScopeContext{Stack: stack, Memory: NewMemory(), Contract: NewContract(addr1, addr2, new(uint256.Int), 0, nil, zeroHash)}

	for i, test := range tests {
		x := hexToU256(test.x)
		y := hexToU256(test.y)
		expected := hexToU256(test.expected)
		stack.push(x)
		stack.push(y)
		if _, err := opFn(&pc, evm.interpreter, scope); err != nil {
			t.Fatalf("%v %d: %v", name, i, err)
		}
		if actual := stack.pop(); !actual.Eq(expected) {
			t.Errorf("%v %d: %s %s: have %x, want %x", name, i, test.x, test.y, &actual, expected)
		}
	}
}

func TestOpArith(t *testing.T) {
	// Operand order: x is pushed first, y on top; the routine pops y then x.
	maxU256 := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	intMin := "8000000000000000000000000000000000000000000000000000000000000000"

	testTwoOperandOp(t, []twoOperandTest{
		{"01", "02", "03"},
		{maxU256, "01", "00"}, // wrap-around
	}, opAdd, "add")

	testTwoOperandOp(t, []twoOperandTest{
		{"01", "02", "01"}, // 2 - 1
		{"02", "01", maxU256},
	}, opSub, "sub")

	testTwoOperandOp(t, []twoOperandTest{
		{"00", "02", "00"}, // 2 / 0 = 0, no failure
		{"02", "07", "03"},
	}, opDiv, "div")

	testTwoOperandOp(t, []twoOperandTest{
		{"00", "07", "00"}, // x % 0 = 0
		{"03", "07", "01"},
	}, opMod, "mod")

	testTwoOperandOp(t, []twoOperandTest{
		// INT256_MIN / -1 clamps to INT256_MIN
		{maxU256, intMin, intMin},
		// -4 / 2 = -2
		{"02", "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc", "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"},
		{"00", "01", "00"}, // signed division by zero
	}, opSdiv, "sdiv")

	testTwoOperandOp(t, []twoOperandTest{
		// -5 % 3 = -2
		{"03", "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffb", "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"},
		{"00", "05", "00"},
	}, opSmod, "smod")

	testTwoOperandOp(t, []twoOperandTest{
		{"02", "0a", "64"}, // 10**2
		{"00", "0a", "01"}, // 10**0
	}, opExp, "exp")
}

func TestOpComparison(t *testing.T) {
	one := "01"
	minusOne := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	// The top operand is compared against the one below it: the result is
	// (y > x) for operands pushed x-first.
	testTwoOperandOp(t, []twoOperandTest{
		{"02", "01", "00"},
		{"01", "02", "01"},
		{"02", "02", "00"},
	}, opGt, "gt")

	testTwoOperandOp(t, []twoOperandTest{
		{one, minusOne, "00"}, // -1 > 1 signed: false
		{minusOne, one, "01"}, // 1 > -1 signed: true
		{minusOne, minusOne, "00"},
	}, opSgt, "sgt")
}

func TestOpByte(t *testing.T) {
	var (
		host  = newTestHost(params.Cancun)
		evm   = NewEVM(host, params.Cancun, Config{})
		stack = newstack()
		pc    = uint64(0)
	)
	defer returnStack(stack)
	scope := &ScopeContext{Stack: stack, Memory: NewMemory(), Contract: NewContract(addr1, addr2, new(uint256.Int), 0, nil, zeroHash)}

	value := hexToU256("0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	for _, test := range []struct {
		index uint64
		want  uint64
	}{
		{0, 0x01},
		{31, 0x20},
		{32, 0x00}, // out of range yields zero
		{1000, 0x00},
	} {
		stack.push(value.Clone())
		stack.push(uint256.NewInt(test.index))
		if _, err := opByte(&pc, evm.interpreter, scope); err != nil {
			t.Fatal(err)
		}
		if have := stack.pop(); have.Uint64() != test.want {
			t.Errorf("BYTE %d: have %#x, want %#x", test.index, have.Uint64(), test.want)
		}
	}
}

func TestOpShifts(t *testing.T) {
	allOnes := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	// SHL: shift is popped first (top), value stays.
	testTwoOperandOp(t, []twoOperandTest{
		{"01", "01", "02"},
		{"01", "ff", "8000000000000000000000000000000000000000000000000000000000000000"},
		{"01", "0100", "00"}, // shift >= 256 yields zero
		{"01", "0101", "00"},
	}, opSHL, "shl")

	testTwoOperandOp(t, []twoOperandTest{
		{"02", "01", "01"},
		{"8000000000000000000000000000000000000000000000000000000000000000", "ff", "01"},
		{"8000000000000000000000000000000000000000000000000000000000000000", "0100", "00"},
	}, opSHR, "shr")

	testTwoOperandOp(t, []twoOperandTest{
		// Negative value, shift >= 256 fills with the sign.
		{allOnes, "0100", allOnes},
		{allOnes, "01", allOnes},
		// Positive value, shift >= 256 yields zero.
		{"4000000000000000000000000000000000000000000000000000000000000000", "0100", "00"},
	}, opSAR, "sar")
}

func TestOpSignExtend(t *testing.T) {
	testTwoOperandOp(t, []twoOperandTest{
		// Extend byte 0 of 0xff to a full negative word.
		{"ff", "00", "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{"7f", "00", "7f"},
		// Byte index >= 31 leaves the value untouched.
		{"ff", "1f", "ff"},
		{"ff", "ff", "ff"},
	}, opSignExtend, "signextend")
}

func TestOpMstoreMload(t *testing.T) {
	var (
		host  = newTestHost(params.Cancun)
		evm   = NewEVM(host, params.Cancun, Config{})
		stack = newstack()
		mem   = NewMemory()
		pc    = uint64(0)
	)
	defer returnStack(stack)
	defer mem.Free()
	mem.Resize(64)
	scope := &ScopeContext{Stack: stack, Memory: mem, Contract: NewContract(addr1, addr2, new(uint256.Int), 0, nil, zeroHash)}

	v := hexToU256("abcdef00000000000000000000000000000000000000000000000000deadbeef")
	stack.push(v.Clone())         // value
	stack.push(uint256.NewInt(0)) // offset (top)
	if _, err := opMstore(&pc, evm.interpreter, scope); err != nil {
		t.Fatal(err)
	}
	stack.push(uint256.NewInt(0))
	if _, err := opMload(&pc, evm.interpreter, scope); err != nil {
		t.Fatal(err)
	}
	if have := stack.pop(); !have.Eq(v) {
		t.Errorf("roundtrip: have %x, want %x", &have, v)
	}
}

func TestOpKeccak256(t *testing.T) {
	var (
		host  = newTestHost(params.Cancun)
		evm   = NewEVM(host, params.Cancun, Config{})
		stack = newstack()
		mem   = NewMemory()
		pc    = uint64(0)
	)
	defer returnStack(stack)
	defer mem.Free()
	mem.Resize(32)
	mem.Set(0, 3, []byte{1, 2, 3})
	scope := &ScopeContext{Stack: stack, Memory: mem, Contract: NewContract(addr1, addr2, new(uint256.Int), 0, nil, zeroHash)}

	stack.push(uint256.NewInt(3)) // size
	stack.push(uint256.NewInt(0)) // offset (top)
	if _, err := opKeccak256(&pc, evm.interpreter, scope); err != nil {
		t.Fatal(err)
	}
	want := new(uint256.Int).SetBytes(crypto.Keccak256([]byte{1, 2, 3}))
	if have := stack.pop(); !have.Eq(want) {
		t.Errorf("have %x, want %x", &have, want)
	}

	// Hashing the empty range must not touch memory.
	stack.push(uint256.NewInt(0))
	stack.push(uint256.NewInt(1 << 40))
	if _, err := opKeccak256(&pc, evm.interpreter, scope); err != nil {
		t.Fatal(err)
	}
	empty := new(uint256.Int).SetBytes(crypto.Keccak256(nil))
	if have := stack.pop(); !have.Eq(empty) {
		t.Errorf("empty hash: have %x, want %x", &have, empty)
	}
}

func TestPushImmediates(t *testing.T) {
	// PUSH3 with complete immediate, then PUSH3 whose data is truncated by
	// the end of code and zero-filled from padding.
	code := []byte{byte(PUSH3), 0x01, 0x02, 0x03, byte(PUSH3), 0xaa}
	contract := NewContract(addr1, addr2, new(uint256.Int), 0, code, crypto.Keccak256Hash(code))
	var (
		host  = newTestHost(params.Cancun)
		evm   = NewEVM(host, params.Cancun, Config{})
		stack = newstack()
	)
	defer returnStack(stack)
	scope := &ScopeContext{Stack: stack, Memory: NewMemory(), Contract: contract}

	pc := uint64(0)
	if _, err := makePush(3, 3)(&pc, evm.interpreter, scope); err != nil {
		t.Fatal(err)
	}
	if pc != 3 {
		t.Errorf("pc advanced to %d, want 3", pc)
	}
	if have := stack.pop(); have.Uint64() != 0x010203 {
		t.Errorf("have %#x, want 0x010203", have.Uint64())
	}

	pc = 4
	if _, err := makePush(3, 3)(&pc, evm.interpreter, scope); err != nil {
		t.Fatal(err)
	}
	if have := stack.pop(); have.Uint64() != 0xaa0000 {
		t.Errorf("truncated push: have %#x, want 0xaa0000", have.Uint64())
	}
}
