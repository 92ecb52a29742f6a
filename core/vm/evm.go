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
	"github.com/quartzevm/quartz/common"
	"github.com/quartzevm/quartz/crypto"
	"github.com/quartzevm/quartz/params"
)

// ExecutionResult is the outcome of one EVM invocation.
//
// GasLeft is only meaningful when Status is Success or Revert; every other
// failure consumes all remaining gas. GasRefund is the refund counter
// accumulated during execution and is reported only on Success; applying and
// capping it is transaction-level business outside the interpreter.
type ExecutionResult struct {
	Status    Status
	GasLeft   uint64
	GasRefund uint64
	Output    []byte

	// CreatedAddress is the address of the deployed contract, filled in by
	// hosts completing CREATE/CREATE2 messages.
	CreatedAddress common.Address
}

// EVM executes a single message frame against a host. Nested calls and
// creates are delegated back to the host, which typically spins up a fresh
// EVM per frame; the struct therefore carries no state that outlives one
// Execute call except the configuration.
//
// The EVM should never be reused and is not thread safe.
type EVM struct {
	host Host
	rev  params.Revision

	// TxContext holds the transaction and block level values observable by
	// environmental opcodes, fetched from the host once at construction.
	TxContext TxContext

	Config Config

	interpreter *EVMInterpreter

	// depth is the call depth of the frame being executed
	depth int
	// callGasTemp holds the gas available for the current sub-call. It is
	// needed because the available gas is calculated in the gas functions, by
	// the 63/64 rule, and applied in opCall*.
	callGasTemp uint64
	// refund is the gas refund counter of the current frame
	refund uint64
}

// NewEVM constructs an EVM executing at the given revision against the given
// host.
func NewEVM(host Host, rev params.Revision, config Config) *EVM {
	evm := &EVM{
		host:      host,
		rev:       rev,
		Config:    config,
		TxContext: host.TxContext(),
	}
	evm.interpreter = NewEVMInterpreter(evm)
	return evm
}

// Revision returns the protocol revision the EVM executes at.
func (evm *EVM) Revision() params.Revision { return evm.rev }

// Host returns the host interface backing this EVM.
func (evm *EVM) Host() Host { return evm.host }

// Interpreter returns the current interpreter
func (evm *EVM) Interpreter() *EVMInterpreter { return evm.interpreter }

// Execute runs the given code in the context of msg until a terminating
// opcode or failure, and assembles the execution result. It is the package
// entry point; hosts recurse into it (via their Call implementation) for
// nested frames.
func Execute(host Host, rev params.Revision, config Config, msg *Message, code []byte) *ExecutionResult {
	return NewEVM(host, rev, config).Execute(msg, code)
}

// Execute runs the given code against the message and returns the assembled
// result.
func (evm *EVM) Execute(msg *Message, code []byte) *ExecutionResult {
	evm.depth = msg.Depth
	evm.refund = 0

	if tracer := evm.Config.Tracer; tracer != nil {
		tracer.CaptureStart(evm.rev, msg, code)
	}
	var codeHash common.Hash
	if len(code) > 0 {
		codeHash = crypto.Keccak256Hash(code)
	}
	contract := NewContract(msg.Sender, msg.Recipient, msg.Value, msg.Gas, code, codeHash)

	ret, err := evm.interpreter.Run(contract, msg.Input, msg.Static)

	res := &ExecutionResult{Status: StatusFromErr(err)}
	switch res.Status {
	case Success:
		res.GasLeft = contract.Gas
		res.GasRefund = evm.refund
		res.Output = ret
	case Revert:
		res.GasLeft = contract.Gas
		res.Output = ret
	default:
		// All other failures consume the remaining gas and carry no output.
	}
	if tracer := evm.Config.Tracer; tracer != nil {
		tracer.CaptureEnd(res)
	}
	return res
}

// call hands a nested message to the host after the checks the calling frame
// is responsible for: the depth limit and, for value-transferring kinds, the
// sender balance. Both fail without invoking the host, returning the full gas
// budget so the caller only observes a pushed zero.
func (evm *EVM) call(msg *Message) (ret []byte, leftOverGas uint64, err error) {
	if msg.Depth > int(params.CallCreateDepth) {
		return nil, msg.Gas, ErrDepth
	}
	if msg.Kind == CallKindCall || msg.Kind == CallKindCallCode {
		if msg.Value != nil && !msg.Value.IsZero() && evm.host.GetBalance(msg.Sender).Lt(msg.Value) {
			return nil, msg.Gas, ErrInsufficientBalance
		}
	}
	res := evm.host.Call(msg)
	if res.Status == Success {
		// The callee's refund counter folds into the calling frame.
		evm.refund += res.GasRefund
	}
	return res.Output, res.GasLeft, errFromStatus(res.Status)
}

// create hands a nested create message to the host, subject to the same local
// checks as call.
func (evm *EVM) create(msg *Message) (ret []byte, createdAddr common.Address, leftOverGas uint64, err error) {
	if msg.Depth > int(params.CallCreateDepth) {
		return nil, common.Address{}, msg.Gas, ErrDepth
	}
	if msg.Value != nil && !msg.Value.IsZero() && evm.host.GetBalance(msg.Sender).Lt(msg.Value) {
		return nil, common.Address{}, msg.Gas, ErrInsufficientBalance
	}
	res := evm.host.Call(msg)
	if res.Status == Success {
		evm.refund += res.GasRefund
	}
	return res.Output, res.CreatedAddress, res.GasLeft, errFromStatus(res.Status)
}

func (evm *EVM) addRefund(gas uint64) {
	evm.refund += gas
}

func (evm *EVM) subRefund(gas uint64) {
	if gas > evm.refund {
		panic("refund counter below zero")
	}
	evm.refund -= gas
}
