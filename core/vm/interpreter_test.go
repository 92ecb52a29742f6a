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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quartzevm/quartz/common"
	"github.com/quartzevm/quartz/params"
)

func TestRunArithmeticReturn(t *testing.T) {
	// PUSH1 1, PUSH1 2, ADD, PUSH1 0, MSTORE, PUSH1 32, PUSH1 0, RETURN
	code := []byte{
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x02,
		byte(ADD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)

	require.Equal(t, Success, res.Status)
	want := make([]byte, 32)
	want[31] = 3
	require.Equal(t, want, res.Output)
	// 7 quick ops at 3 gas plus one word of memory expansion.
	require.Equal(t, uint64(99976), res.GasLeft)
}

func TestRunBadJump(t *testing.T) {
	// PUSH1 0, JUMP: offset 0 holds PUSH1, not JUMPDEST.
	code := []byte{byte(PUSH1), 0x00, byte(JUMP)}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)

	require.Equal(t, BadJumpDestination, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
	require.Empty(t, res.Output)
}

func TestRunJumpIntoPushData(t *testing.T) {
	// A JUMPDEST byte hidden in push data is not a valid destination.
	code := []byte{
		byte(PUSH1), 0x04,
		byte(JUMP),
		byte(PUSH1), byte(JUMPDEST), // 0x5b at offset 4 is data
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, BadJumpDestination, res.Status)
}

func TestRunInfiniteLoopOutOfGas(t *testing.T) {
	// JUMPDEST, PUSH1 0, JUMP: loops until the meter runs dry.
	code := []byte{byte(JUMPDEST), byte(PUSH1), 0x00, byte(JUMP)}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)

	require.Equal(t, OutOfGas, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
}

func TestRunPush32(t *testing.T) {
	immediate := common.Hex2Bytes("0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

	// PUSH32 <immediate> STOP, then separately a variant storing the pushed
	// word so its value is observable in the output.
	code := append([]byte{byte(PUSH32)}, immediate...)
	code = append(code, byte(STOP))
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, uint64(100000-3), res.GasLeft)

	code = append([]byte{byte(PUSH32)}, immediate...)
	code = append(code,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	)
	res = execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, immediate, res.Output)
}

func TestRunPushTruncated(t *testing.T) {
	// A PUSH2 at the very end of code reads its missing byte as zero.
	code := []byte{
		byte(PUSH2), 0xaa, // second immediate byte missing
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, uint64(100000-3), res.GasLeft)
}

func TestRunEmptyCode(t *testing.T) {
	host := newTestHost(params.Cancun)
	res := execCode(host, nil, 5000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, uint64(5000), res.GasLeft)
	require.Empty(t, res.Output)
}

func TestRunRevert(t *testing.T) {
	// PUSH1 0x42, PUSH1 0, MSTORE, PUSH1 32, PUSH1 0, REVERT
	code := []byte{
		byte(PUSH1), 0x42,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(REVERT),
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)

	require.Equal(t, Revert, res.Status)
	// Revert preserves the remaining gas.
	require.Equal(t, uint64(100000-18), res.GasLeft)
	require.Equal(t, byte(0x42), res.Output[31])
	// No refund is reported for non-success outcomes.
	require.Equal(t, uint64(0), res.GasRefund)
}

// The pre-flight checks run in a fixed order: undefined instruction before
// gas, gas before stack bounds.
func TestPreflightOrder(t *testing.T) {
	host := newTestHost(params.Cancun)

	// Undefined opcode wins even with an empty gas meter.
	res := execCode(host, []byte{0x0c}, 0)
	require.Equal(t, UndefinedInstruction, res.Status)

	// ADD with too little gas for its base cost reports out of gas, not the
	// stack underflow that would also apply.
	res = execCode(host, []byte{byte(ADD)}, 2)
	require.Equal(t, OutOfGas, res.Status)

	// With sufficient gas the stack underflow surfaces.
	res = execCode(host, []byte{byte(ADD)}, 100)
	require.Equal(t, StackUnderflow, res.Status)
}

func TestStackOverflow(t *testing.T) {
	code := bytes.Repeat([]byte{byte(PUSH1), 0x00}, 1025)
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)

	require.Equal(t, StackOverflow, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
}

func TestInvalidOpcode(t *testing.T) {
	host := newTestHost(params.Cancun)
	res := execCode(host, []byte{byte(INVALID)}, 100000)

	require.Equal(t, InvalidInstruction, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
}

func TestPCValue(t *testing.T) {
	// JUMPDEST, PC, PUSH1 0, MSTORE, RETURN 32: PC pushes its own offset (1).
	code := []byte{
		byte(JUMPDEST),
		byte(PC),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(1), res.Output[31])
}

func TestMsizeWordAligned(t *testing.T) {
	// MSTORE8 at offset 33 expands memory to 64 bytes, not 34.
	code := []byte{
		byte(PUSH1), 0xff,
		byte(PUSH1), 33,
		byte(MSTORE8),
		byte(MSIZE),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(64), res.Output[31])
}

func TestZeroLengthCopyNoExpansion(t *testing.T) {
	// CALLDATACOPY with length 0 and an absurd memory offset: no expansion,
	// no gas beyond the bases, MSIZE stays 0.
	var code []byte
	code = append(code, byte(PUSH1), 0x00) // length
	code = append(code, byte(PUSH1), 0x00) // data offset
	code = append(code, byte(PUSH32))
	code = append(code, bytes.Repeat([]byte{0xff}, 32)...) // mem offset (huge)
	code = append(code,
		byte(CALLDATACOPY),
		byte(MSIZE),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	)
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(0), res.Output[31])
}

func TestReturnDataCopyOutOfBounds(t *testing.T) {
	// No call was made, so the return data buffer is empty and any non-zero
	// length copy is out of bounds.
	code := []byte{
		byte(PUSH1), 0x01, // length
		byte(PUSH1), 0x00, // data offset
		byte(PUSH1), 0x00, // mem offset
		byte(RETURNDATACOPY),
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)

	require.Equal(t, InvalidMemoryAccess, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
}

func TestCalldataLoadZeroFill(t *testing.T) {
	// CALLDATALOAD at offset 1 of two bytes of calldata zero-fills the tail.
	code := []byte{
		byte(PUSH1), 0x01,
		byte(CALLDATALOAD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	host := newTestHost(params.Cancun)
	res := execInput(host, code, []byte{0xaa, 0xbb}, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(0xbb), res.Output[0])
	require.True(t, allZero(res.Output[1:]))
}

// Re-running the same code against a fresh host yields identical results.
func TestRunIdempotent(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x05,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(PUSH1), 0x00,
		byte(SLOAD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	first := execCode(newTestHost(params.Cancun), code, 100000)
	second := execCode(newTestHost(params.Cancun), code, 100000)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.GasLeft, second.GasLeft)
	require.Equal(t, first.Output, second.Output)
	require.Equal(t, byte(5), first.Output[31])
}

type recordingTracer struct {
	started, ended int
	lastStatus     Status
}

func (tr *recordingTracer) CaptureStart(rev params.Revision, msg *Message, code []byte) {
	tr.started++
}

func (tr *recordingTracer) CaptureEnd(res *ExecutionResult) {
	tr.ended++
	tr.lastStatus = res.Status
}

func TestTracerNotifications(t *testing.T) {
	host := newTestHost(params.Cancun)
	tracer := &recordingTracer{}
	host.Config = Config{Tracer: tracer}

	code := []byte{byte(STOP)}
	msg := &Message{Kind: CallKindCall, Gas: 1000, Recipient: addr2, CodeAddr: addr2, Sender: addr1}
	res := Execute(host, host.Rev, host.Config, msg, code)

	require.Equal(t, Success, res.Status)
	require.Equal(t, 1, tracer.started)
	require.Equal(t, 1, tracer.ended)
	require.Equal(t, Success, tracer.lastStatus)
}
