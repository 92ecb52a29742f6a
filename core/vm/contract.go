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
	"github.com/holiman/uint256"

	"github.com/quartzevm/quartz/common"
)

// Contract represents an ethereum contract in the state database. It contains
// the contract code, calling arguments and the per-invocation gas meter.
type Contract struct {
	caller  common.Address
	address common.Address

	analysis *CodeAnalysis

	// Code is the original contract bytecode. The interpreter reads opcodes
	// and push immediates from the padded view in analysis instead; Code is
	// what CODESIZE/CODECOPY and jump validation observe.
	Code     []byte
	CodeHash common.Hash
	Input    []byte

	Gas   uint64
	value *uint256.Int
}

// NewContract returns a new contract environment for the execution of EVM
// bytecode. The analysis of code is memoized by codeHash when non-zero.
func NewContract(caller, address common.Address, value *uint256.Int, gas uint64, code []byte, codeHash common.Hash) *Contract {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Contract{
		caller:   caller,
		address:  address,
		value:    value,
		Gas:      gas,
		Code:     code,
		CodeHash: codeHash,
		analysis: analyseCached(codeHash, code),
	}
}

// validJumpdest reports whether dest is a JUMPDEST opcode lying outside any
// PUSH data region of the original (unpadded) code.
func (c *Contract) validJumpdest(dest *uint256.Int) bool {
	udest, overflow := dest.Uint64WithOverflow()
	// PC cannot go beyond len(code) and certainly can't be bigger than 63bits.
	// Don't bother checking for JUMPDEST in that case.
	if overflow || udest >= uint64(len(c.Code)) {
		return false
	}
	// Only JUMPDESTs allowed for destinations
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	return c.analysis.jumpdests.codeSegment(udest)
}

// GetOp returns the n'th element in the contract's padded byte array. The
// padding guarantees the read is in bounds for every program counter the
// dispatch loop can produce.
func (c *Contract) GetOp(n uint64) OpCode {
	return OpCode(c.analysis.exec[n])
}

// Caller returns the caller of the contract.
func (c *Contract) Caller() common.Address {
	return c.caller
}

// UseGas attempts the use gas and subtracts it and returns true on success
func (c *Contract) UseGas(gas uint64) (ok bool) {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// RefundGas returns gas to the contract's meter, typically the unspent gas of
// a completed sub-call.
func (c *Contract) RefundGas(gas uint64) {
	if gas == 0 {
		return
	}
	c.Gas += gas
}

// Address returns the contracts address
func (c *Contract) Address() common.Address {
	return c.address
}

// Value returns the contract's value (sent to it from it's caller)
func (c *Contract) Value() *uint256.Int {
	return c.value
}
