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
	"github.com/quartzevm/quartz/params"
)

var (
	addr1 = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addr2 = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	addr3 = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	zeroHash common.Hash
)

// newTestHost builds an in-memory host with a fixed, fully populated block
// and transaction context.
func newTestHost(rev params.Revision) *MockHost {
	return NewMockHost(rev, TxContext{
		Origin:      addr1,
		GasPrice:    uint256.NewInt(10),
		Coinbase:    addr3,
		BlockNumber: 100,
		Time:        50,
		GasLimit:    30_000_000,
		PrevRandao:  common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000fe"),
		ChainID:     uint256.NewInt(1),
		BaseFee:     uint256.NewInt(7),
		BlobBaseFee: uint256.NewInt(1),
		BlobHashes:  []common.Hash{common.HexToHash("0x0100000000000000000000000000000000000000000000000000000000000001")},
	})
}

// execCode runs code as a top-level call frame from addr1 to addr2.
func execCode(host *MockHost, code []byte, gas uint64) *ExecutionResult {
	return execInput(host, code, nil, gas)
}

func execInput(host *MockHost, code, input []byte, gas uint64) *ExecutionResult {
	msg := &Message{
		Kind:      CallKindCall,
		Gas:       gas,
		Recipient: addr2,
		CodeAddr:  addr2,
		Sender:    addr1,
		Input:     input,
		Value:     new(uint256.Int),
	}
	return Execute(host, host.Rev, host.Config, msg, code)
}

// execStatic runs code in a static (read-only) frame.
func execStatic(host *MockHost, code []byte, gas uint64) *ExecutionResult {
	msg := &Message{
		Kind:      CallKindStaticCall,
		Static:    true,
		Gas:       gas,
		Recipient: addr2,
		CodeAddr:  addr2,
		Sender:    addr1,
		Value:     new(uint256.Int),
	}
	return Execute(host, host.Rev, host.Config, msg, code)
}
