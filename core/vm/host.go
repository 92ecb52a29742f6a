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

// CallKind identifies the kind of message driving an invocation.
type CallKind int

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
	CallKindCreate
	CallKindCreate2
)

func (k CallKind) String() string {
	switch k {
	case CallKindCall:
		return "CALL"
	case CallKindCallCode:
		return "CALLCODE"
	case CallKindDelegateCall:
		return "DELEGATECALL"
	case CallKindStaticCall:
		return "STATICCALL"
	case CallKindCreate:
		return "CREATE"
	case CallKindCreate2:
		return "CREATE2"
	}
	return "unknown"
}

// AccessStatus is the warm/cold verdict of a first-touch query against the
// per-transaction access list.
type AccessStatus int

const (
	ColdAccess AccessStatus = iota
	WarmAccess
)

// Message carries the parameters of a single EVM invocation.
type Message struct {
	Kind   CallKind
	Static bool // execute in read-only mode, forbidding state modification
	Depth  int  // call depth of this frame; the top-level frame is 0

	Gas uint64

	Recipient common.Address // account whose storage and address the code observes
	Sender    common.Address
	Input     []byte
	Value     *uint256.Int
	Salt      common.Hash    // CREATE2 only
	CodeAddr  common.Address // account the code was loaded from (CALLCODE/DELEGATECALL)
}

// TxContext bundles the transaction and block level values observable by
// environmental opcodes. It is fetched from the host once per invocation.
type TxContext struct {
	Origin      common.Address
	GasPrice    *uint256.Int
	Coinbase    common.Address
	BlockNumber uint64
	Time        uint64
	GasLimit    uint64
	PrevRandao  common.Hash // difficulty before Paris, RANDAO mix after
	ChainID     *uint256.Int
	BaseFee     *uint256.Int
	BlobBaseFee *uint256.Int
	BlobHashes  []common.Hash
}

// Host gives the interpreter access to world state and block context. The
// interpreter only consumes this interface; implementing it (including the
// nested execution behind Call) is the embedder's business.
//
// For revisions from SpuriousDragon onwards, AccountExists must report empty
// accounts (zero balance, nonce and code) as non-existent.
type Host interface {
	// AccountExists reports whether the given account exists.
	AccountExists(addr common.Address) bool

	// GetStorage returns the current value of the given storage slot.
	GetStorage(addr common.Address, key common.Hash) common.Hash
	// SetStorage writes the given storage slot.
	SetStorage(addr common.Address, key, value common.Hash)
	// GetCommittedStorage returns the original value of the slot as of the
	// start of the current transaction. SSTORE net gas metering needs it.
	GetCommittedStorage(addr common.Address, key common.Hash) common.Hash

	// GetTransientStorage returns the transient storage slot value (EIP-1153).
	GetTransientStorage(addr common.Address, key common.Hash) common.Hash
	// SetTransientStorage writes the transient storage slot (EIP-1153).
	SetTransientStorage(addr common.Address, key, value common.Hash)

	// GetBalance returns the balance of the given account.
	GetBalance(addr common.Address) *uint256.Int

	// GetCodeSize returns the size of the code stored at addr.
	GetCodeSize(addr common.Address) int
	// GetCodeHash returns the code hash of addr, or the zero hash if the
	// account does not exist or is empty.
	GetCodeHash(addr common.Address) common.Hash
	// GetCode returns the code stored at addr.
	GetCode(addr common.Address) []byte

	// Selfdestruct registers the account for destruction, crediting its
	// balance to the beneficiary. It reports whether this is the first
	// registration of addr in the current transaction.
	Selfdestruct(addr, beneficiary common.Address) bool

	// Call executes a nested message (call or create) and returns its
	// complete result. The callee's unused gas is reported in GasLeft.
	Call(msg *Message) *ExecutionResult

	// TxContext returns the transaction and block context values.
	TxContext() TxContext
	// GetBlockHash returns the hash of the given block number.
	GetBlockHash(number uint64) common.Hash

	// EmitLog appends a log record for the current invocation.
	EmitLog(addr common.Address, topics []common.Hash, data []byte)

	// AccessAccount marks the account as accessed (warm) and returns whether
	// it was cold before the call.
	AccessAccount(addr common.Address) AccessStatus
	// AccessStorage marks the storage slot as accessed (warm) and returns
	// whether it was cold before the call.
	AccessStorage(addr common.Address, key common.Hash) AccessStatus
}
