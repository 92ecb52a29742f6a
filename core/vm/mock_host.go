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
	"encoding/binary"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/quartzevm/quartz/common"
	"github.com/quartzevm/quartz/crypto"
	"github.com/quartzevm/quartz/params"
)

// MockHost is a self-contained in-memory Host used by the package tests and
// the standalone runner. Nested calls recurse back into Execute, so a single
// MockHost drives complete multi-frame executions without any external state.
type MockHost struct {
	Rev    params.Revision
	Ctx    TxContext
	Config Config

	accounts  map[common.Address]*mockAccount
	transient map[storageSlot]common.Hash

	warmAddresses mapset.Set[common.Address]
	warmSlots     mapset.Set[storageSlot]

	destructed mapset.Set[common.Address]

	// Logs collects every EmitLog call in program order.
	Logs []EmittedLog

	// BlockHashFn resolves BLOCKHASH queries; when nil a deterministic
	// placeholder hash is produced.
	BlockHashFn func(number uint64) common.Hash

	createNonce uint64
}

type storageSlot struct {
	addr common.Address
	key  common.Hash
}

type mockAccount struct {
	balance  uint256.Int
	nonce    uint64
	code     []byte
	storage  map[common.Hash]common.Hash
	original map[common.Hash]common.Hash
}

// EmittedLog is one log record captured by the host.
type EmittedLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// NewMockHost returns an empty in-memory host executing at the given revision.
func NewMockHost(rev params.Revision, ctx TxContext) *MockHost {
	return &MockHost{
		Rev:           rev,
		Ctx:           ctx,
		accounts:      make(map[common.Address]*mockAccount),
		transient:     make(map[storageSlot]common.Hash),
		warmAddresses: mapset.NewThreadUnsafeSet[common.Address](),
		warmSlots:     mapset.NewThreadUnsafeSet[storageSlot](),
		destructed:    mapset.NewThreadUnsafeSet[common.Address](),
	}
}

func (h *MockHost) account(addr common.Address) *mockAccount {
	acc, ok := h.accounts[addr]
	if !ok {
		acc = &mockAccount{
			storage:  make(map[common.Hash]common.Hash),
			original: make(map[common.Hash]common.Hash),
		}
		h.accounts[addr] = acc
	}
	return acc
}

// SetBalance installs a balance for the given account.
func (h *MockHost) SetBalance(addr common.Address, balance *uint256.Int) {
	h.account(addr).balance.Set(balance)
}

// SetNonce installs a nonce for the given account.
func (h *MockHost) SetNonce(addr common.Address, nonce uint64) {
	h.account(addr).nonce = nonce
}

// SetCode installs code for the given account.
func (h *MockHost) SetCode(addr common.Address, code []byte) {
	h.account(addr).code = common.CopyBytes(code)
}

// SetCommittedStorage seeds a storage slot with both its current and original
// value, as if it had been written in an earlier transaction.
func (h *MockHost) SetCommittedStorage(addr common.Address, key, value common.Hash) {
	acc := h.account(addr)
	acc.storage[key] = value
	acc.original[key] = value
}

func (h *MockHost) AccountExists(addr common.Address) bool {
	acc, ok := h.accounts[addr]
	if !ok {
		return false
	}
	if h.Rev >= params.SpuriousDragon {
		// Empty accounts count as non-existent from Spurious Dragon on.
		return acc.balance.Sign() != 0 || acc.nonce != 0 || len(acc.code) != 0
	}
	return true
}

func (h *MockHost) GetStorage(addr common.Address, key common.Hash) common.Hash {
	if acc, ok := h.accounts[addr]; ok {
		return acc.storage[key]
	}
	return common.Hash{}
}

func (h *MockHost) SetStorage(addr common.Address, key, value common.Hash) {
	acc := h.account(addr)
	if _, ok := acc.original[key]; !ok {
		acc.original[key] = acc.storage[key]
	}
	acc.storage[key] = value
}

func (h *MockHost) GetCommittedStorage(addr common.Address, key common.Hash) common.Hash {
	if acc, ok := h.accounts[addr]; ok {
		return acc.original[key]
	}
	return common.Hash{}
}

func (h *MockHost) GetTransientStorage(addr common.Address, key common.Hash) common.Hash {
	return h.transient[storageSlot{addr, key}]
}

func (h *MockHost) SetTransientStorage(addr common.Address, key, value common.Hash) {
	h.transient[storageSlot{addr, key}] = value
}

func (h *MockHost) GetBalance(addr common.Address) *uint256.Int {
	if acc, ok := h.accounts[addr]; ok {
		return new(uint256.Int).Set(&acc.balance)
	}
	return new(uint256.Int)
}

func (h *MockHost) GetCodeSize(addr common.Address) int {
	if acc, ok := h.accounts[addr]; ok {
		return len(acc.code)
	}
	return 0
}

func (h *MockHost) GetCodeHash(addr common.Address) common.Hash {
	if !h.AccountExists(addr) {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(h.accounts[addr].code)
}

func (h *MockHost) GetCode(addr common.Address) []byte {
	if acc, ok := h.accounts[addr]; ok {
		return acc.code
	}
	return nil
}

func (h *MockHost) Selfdestruct(addr, beneficiary common.Address) bool {
	acc := h.account(addr)
	h.account(beneficiary).balance.Add(&h.account(beneficiary).balance, &acc.balance)
	acc.balance.Clear()
	if h.destructed.Contains(addr) {
		return false
	}
	h.destructed.Add(addr)
	return true
}

func (h *MockHost) TxContext() TxContext {
	return h.Ctx
}

func (h *MockHost) GetBlockHash(number uint64) common.Hash {
	if h.BlockHashFn != nil {
		return h.BlockHashFn(number)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], number)
	return crypto.Keccak256Hash(n[:])
}

func (h *MockHost) EmitLog(addr common.Address, topics []common.Hash, data []byte) {
	h.Logs = append(h.Logs, EmittedLog{Address: addr, Topics: topics, Data: data})
}

func (h *MockHost) AccessAccount(addr common.Address) AccessStatus {
	if h.warmAddresses.Contains(addr) {
		return WarmAccess
	}
	h.warmAddresses.Add(addr)
	return ColdAccess
}

func (h *MockHost) AccessStorage(addr common.Address, key common.Hash) AccessStatus {
	slot := storageSlot{addr, key}
	if h.warmSlots.Contains(slot) {
		return WarmAccess
	}
	h.warmSlots.Add(slot)
	return ColdAccess
}

// snapshot captures the accounts (balances, nonces, code, storage and
// original storage values) for rollback on failed frames. Transient storage,
// the warm address and slot sets and the self-destructed set are not captured.
func (h *MockHost) snapshot() map[common.Address]*mockAccount {
	cpy := make(map[common.Address]*mockAccount, len(h.accounts))
	for addr, acc := range h.accounts {
		storage := make(map[common.Hash]common.Hash, len(acc.storage))
		for k, v := range acc.storage {
			storage[k] = v
		}
		original := make(map[common.Hash]common.Hash, len(acc.original))
		for k, v := range acc.original {
			original[k] = v
		}
		accCpy := &mockAccount{
			nonce:    acc.nonce,
			code:     acc.code,
			storage:  storage,
			original: original,
		}
		accCpy.balance.Set(&acc.balance)
		cpy[addr] = accCpy
	}
	return cpy
}

// Call executes a nested message by recursing into Execute with this host.
// Only successful frames keep their account changes and logs; reverted and
// failed frames have their accounts and logs rolled back to the pre-call
// snapshot. Transient storage, access warmth and self-destruct registrations
// made by a failed frame are kept.
func (h *MockHost) Call(msg *Message) *ExecutionResult {
	if msg.Depth > int(params.CallCreateDepth) {
		return &ExecutionResult{Status: CallDepthExceeded}
	}
	snap := h.snapshot()
	logMark := len(h.Logs)

	var res *ExecutionResult
	switch msg.Kind {
	case CallKindCreate, CallKindCreate2:
		res = h.runCreate(msg)
	default:
		res = h.runCall(msg)
	}
	if res.Status != Success {
		// Revert and outright failure both discard the callee's state
		// changes and logs.
		h.accounts = snap
		h.Logs = h.Logs[:logMark]
	}
	return res
}

func (h *MockHost) runCall(msg *Message) *ExecutionResult {
	if msg.Kind == CallKindCall && msg.Value != nil && !msg.Value.IsZero() {
		sender := h.account(msg.Sender)
		if sender.balance.Lt(msg.Value) {
			return &ExecutionResult{Status: InsufficientBalance}
		}
		sender.balance.Sub(&sender.balance, msg.Value)
		recipient := h.account(msg.Recipient)
		recipient.balance.Add(&recipient.balance, msg.Value)
	}
	code := h.GetCode(msg.CodeAddr)
	return Execute(h, h.Rev, h.Config, msg, code)
}

func (h *MockHost) runCreate(msg *Message) *ExecutionResult {
	var addr common.Address
	if msg.Kind == CallKindCreate2 {
		addr = crypto.CreateAddress2(msg.Sender, msg.Salt, crypto.Keccak256(msg.Input))
	} else {
		var n [8]byte
		h.createNonce++
		binary.BigEndian.PutUint64(n[:], h.createNonce)
		addr = common.BytesToAddress(crypto.Keccak256(msg.Sender.Bytes(), n[:])[12:])
	}
	if msg.Value != nil && !msg.Value.IsZero() {
		sender := h.account(msg.Sender)
		if sender.balance.Lt(msg.Value) {
			return &ExecutionResult{Status: InsufficientBalance}
		}
		sender.balance.Sub(&sender.balance, msg.Value)
		h.account(addr).balance.Add(&h.account(addr).balance, msg.Value)
	}
	h.account(addr).nonce = 1

	initMsg := *msg
	initMsg.Recipient = addr
	initMsg.Input = nil

	res := Execute(h, h.Rev, h.Config, &initMsg, msg.Input)
	if res.Status != Success {
		return res
	}
	// Charge the code deposit and install the deployed code.
	depositGas := params.CreateDataGas * uint64(len(res.Output))
	if res.GasLeft < depositGas {
		return &ExecutionResult{Status: OutOfGas}
	}
	res.GasLeft -= depositGas
	if h.Rev >= params.SpuriousDragon && len(res.Output) > params.MaxCodeSize {
		return &ExecutionResult{Status: Failure}
	}
	h.account(addr).code = common.CopyBytes(res.Output)
	res.Output = nil
	res.CreatedAddress = addr
	return res
}
