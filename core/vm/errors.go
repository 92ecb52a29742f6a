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
	"errors"
	"fmt"
)

// List evm execution errors
var (
	ErrOutOfGas                = errors.New("out of gas")
	ErrDepth                   = errors.New("max call depth exceeded")
	ErrInsufficientBalance     = errors.New("insufficient balance for transfer")
	ErrExecutionReverted       = errors.New("execution reverted")
	ErrMaxInitCodeSizeExceeded = errors.New("max initcode size exceeded")
	ErrInvalidJump             = errors.New("invalid jump destination")
	ErrWriteProtection         = errors.New("write protection")
	ErrReturnDataOutOfBounds   = errors.New("return data out of bounds")
	ErrGasUintOverflow         = errors.New("gas uint64 overflow")
	ErrInvalidInstruction      = errors.New("invalid instruction")

	// errStopToken is an internal token indicating interpreter loop termination,
	// never returned to outside callers.
	errStopToken = errors.New("stop token")
)

// ErrStackUnderflow wraps an evm error when the items on the stack less
// than the minimal requirement.
type ErrStackUnderflow struct {
	stackLen int
	required int
}

func (e ErrStackUnderflow) Error() string {
	return fmt.Sprintf("stack underflow (%d <=> %d)", e.stackLen, e.required)
}

// ErrStackOverflow wraps an evm error when the items on the stack exceeds
// the maximum allowance.
type ErrStackOverflow struct {
	stackLen int
	limit    int
}

func (e ErrStackOverflow) Error() string {
	return fmt.Sprintf("stack limit reached %d (%d)", e.stackLen, e.limit)
}

// ErrInvalidOpCode wraps an evm error when an invalid opcode is encountered.
type ErrInvalidOpCode struct {
	opcode OpCode
}

func (e *ErrInvalidOpCode) Error() string { return fmt.Sprintf("undefined instruction: %v", e.opcode) }

// Status identifies the outcome of an execution. It is attached to the
// terminal execution state and carried on the ExecutionResult.
type Status int

const (
	Success Status = iota
	Failure
	Revert
	OutOfGas
	InvalidInstruction
	UndefinedInstruction
	StackOverflow
	StackUnderflow
	BadJumpDestination
	InvalidMemoryAccess
	CallDepthExceeded
	StaticModeViolation
	PrecompileFailure
	ContractValidationFailure
	ArgumentOutOfRange
	InsufficientBalance
	InternalError
)

var statusToString = map[Status]string{
	Success:                   "success",
	Failure:                   "failure",
	Revert:                    "revert",
	OutOfGas:                  "out of gas",
	InvalidInstruction:        "invalid instruction",
	UndefinedInstruction:      "undefined instruction",
	StackOverflow:             "stack overflow",
	StackUnderflow:            "stack underflow",
	BadJumpDestination:        "bad jump destination",
	InvalidMemoryAccess:       "invalid memory access",
	CallDepthExceeded:         "call depth exceeded",
	StaticModeViolation:       "static mode violation",
	PrecompileFailure:         "precompile failure",
	ContractValidationFailure: "contract validation failure",
	ArgumentOutOfRange:        "argument out of range",
	InsufficientBalance:       "insufficient balance",
	InternalError:             "internal error",
}

func (s Status) String() string {
	if str, ok := statusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// StatusFromErr converts a terminal interpreter error into the status code
// reported on the execution result. A nil error is success.
func StatusFromErr(err error) Status {
	if err == nil {
		return Success
	}
	var (
		underflow *ErrStackUnderflow
		overflow  *ErrStackOverflow
		undefined *ErrInvalidOpCode
	)
	switch {
	case errors.Is(err, ErrExecutionReverted):
		return Revert
	case errors.Is(err, ErrOutOfGas), errors.Is(err, ErrGasUintOverflow):
		return OutOfGas
	case errors.Is(err, ErrInvalidJump):
		return BadJumpDestination
	case errors.Is(err, ErrWriteProtection):
		return StaticModeViolation
	case errors.Is(err, ErrReturnDataOutOfBounds):
		return InvalidMemoryAccess
	case errors.Is(err, ErrInvalidInstruction):
		return InvalidInstruction
	case errors.Is(err, ErrDepth):
		return CallDepthExceeded
	case errors.Is(err, ErrInsufficientBalance):
		return InsufficientBalance
	case errors.Is(err, ErrMaxInitCodeSizeExceeded):
		return ArgumentOutOfRange
	case errors.As(err, &underflow):
		return StackUnderflow
	case errors.As(err, &overflow):
		return StackOverflow
	case errors.As(err, &undefined):
		return UndefinedInstruction
	default:
		return Failure
	}
}

// errFromStatus is the inverse mapping used when a sub-call result has to be
// folded back into the calling frame.
func errFromStatus(s Status) error {
	switch s {
	case Success:
		return nil
	case Revert:
		return ErrExecutionReverted
	case OutOfGas:
		return ErrOutOfGas
	case CallDepthExceeded:
		return ErrDepth
	case InsufficientBalance:
		return ErrInsufficientBalance
	default:
		return fmt.Errorf("sub-call failed: %v", s)
	}
}
