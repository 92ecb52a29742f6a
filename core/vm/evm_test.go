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
	"github.com/stretchr/testify/require"

	"github.com/quartzevm/quartz/common"
	"github.com/quartzevm/quartz/params"
)

// callTo assembles caller code performing CALL to the given address with the
// provided value, then storing the call's success bit to memory and
// returning it.
func callTo(to common.Address, value byte) []byte {
	var code []byte
	code = append(code, byte(PUSH1), 0x20) // ret size
	code = append(code, byte(PUSH1), 0x00) // ret offset
	code = append(code, byte(PUSH1), 0x00) // in size
	code = append(code, byte(PUSH1), 0x00) // in offset
	code = append(code, byte(PUSH1), value)
	code = append(code, byte(PUSH20))
	code = append(code, to.Bytes()...)
	code = append(code, byte(GAS), byte(CALL))
	code = append(code,
		byte(PUSH1), 0x40,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x40,
		byte(RETURN),
	)
	return code
}

// returnWord is callee code returning the 32-byte word with the given low byte.
var returnWord = []byte{
	byte(PUSH1), 0x42,
	byte(PUSH1), 0x00,
	byte(MSTORE),
	byte(PUSH1), 0x20,
	byte(PUSH1), 0x00,
	byte(RETURN),
}

func TestNestedCall(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, returnWord)
	host.SetBalance(addr2, uint256.NewInt(100))

	res := execCode(host, callTo(addr3, 0), 1000000)
	require.Equal(t, Success, res.Status)
	// The call succeeded: the success bit is 1.
	require.Equal(t, byte(1), res.Output[31])
}

func TestNestedCallWritesReturnData(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, returnWord)

	// Call, then copy the return data buffer out via RETURNDATACOPY.
	var code []byte
	code = append(code, byte(PUSH1), 0x00) // ret size: ignore direct copy
	code = append(code, byte(PUSH1), 0x00)
	code = append(code, byte(PUSH1), 0x00)
	code = append(code, byte(PUSH1), 0x00)
	code = append(code, byte(PUSH1), 0x00) // value
	code = append(code, byte(PUSH20))
	code = append(code, addr3.Bytes()...)
	code = append(code, byte(GAS), byte(CALL))
	code = append(code, byte(POP)) // drop success bit
	code = append(code,
		byte(RETURNDATASIZE),
		byte(PUSH1), 0x00, // data offset
		byte(PUSH1), 0x00, // mem offset
		byte(RETURNDATACOPY),
		byte(RETURNDATASIZE),
		byte(PUSH1), 0x00,
		byte(RETURN),
	)
	res := execCode(host, code, 1000000)
	require.Equal(t, Success, res.Status)
	require.Len(t, res.Output, 32)
	require.Equal(t, byte(0x42), res.Output[31])
}

func TestCallDepthLimit(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, returnWord)

	msg := &Message{
		Kind:      CallKindCall,
		Depth:     int(params.CallCreateDepth), // sub-calls would exceed the limit
		Gas:       1000000,
		Recipient: addr2,
		CodeAddr:  addr2,
		Sender:    addr1,
		Value:     new(uint256.Int),
	}
	res := Execute(host, host.Rev, host.Config, msg, callTo(addr3, 0))

	// The frame itself succeeds; the CALL pushed 0 without reaching the host.
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(0), res.Output[31])
}

func TestCallInsufficientBalance(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, returnWord)
	// addr2 holds nothing, so a value-bearing call pushes 0 without invoking
	// the host.
	res := execCode(host, callTo(addr3, 1), 1000000)

	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(0), res.Output[31])
	require.Equal(t, uint64(0), host.GetBalance(addr3).Uint64())
}

func TestCallValueTransfer(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, returnWord)
	host.SetBalance(addr2, uint256.NewInt(5))

	res := execCode(host, callTo(addr3, 5), 1000000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(1), res.Output[31])
	require.Equal(t, uint64(5), host.GetBalance(addr3).Uint64())
	require.Equal(t, uint64(0), host.GetBalance(addr2).Uint64())
}

func TestStaticCallValueViolation(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, returnWord)
	host.SetBalance(addr2, uint256.NewInt(100))

	res := execStatic(host, callTo(addr3, 1), 1000000)
	require.Equal(t, StaticModeViolation, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
}

func TestStaticSstoreViolation(t *testing.T) {
	code := []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x00, byte(SSTORE)}
	host := newTestHost(params.Cancun)

	res := execStatic(host, code, 100000)
	require.Equal(t, StaticModeViolation, res.Status)
	require.Equal(t, uint64(0), res.GasLeft)
}

func TestStaticLogViolation(t *testing.T) {
	code := []byte{byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(LOG0)}
	host := newTestHost(params.Cancun)

	res := execStatic(host, code, 100000)
	require.Equal(t, StaticModeViolation, res.Status)
	require.Empty(t, host.Logs)
}

// The static flag set by STATICCALL reaches the callee: its SSTORE fails even
// though the calling frame itself is not static.
func TestStaticFlagPropagates(t *testing.T) {
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x00, byte(SSTORE)})

	var code []byte
	code = append(code, byte(PUSH1), 0x20) // ret size
	code = append(code, byte(PUSH1), 0x00) // ret offset
	code = append(code, byte(PUSH1), 0x00) // in size
	code = append(code, byte(PUSH1), 0x00) // in offset
	code = append(code, byte(PUSH20))
	code = append(code, addr3.Bytes()...)
	code = append(code, byte(GAS), byte(STATICCALL))
	code = append(code,
		byte(PUSH1), 0x40,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x40,
		byte(RETURN),
	)
	res := execCode(host, code, 1000000)
	require.Equal(t, Success, res.Status)
	// The callee violated the static context, so the call pushed 0.
	require.Equal(t, byte(0), res.Output[31])
	require.Equal(t, common.Hash{}, host.GetStorage(addr3, zeroHash))
}

func TestCallRetains64th(t *testing.T) {
	host := newTestHost(params.Cancun)
	// The callee burns everything it is given.
	host.SetCode(addr3, []byte{byte(JUMPDEST), byte(PUSH1), 0x00, byte(JUMP)})

	res := execCode(host, callTo(addr3, 0), 640000)
	// The caller retains at least 1/64th of its gas and completes.
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(0), res.Output[31])
	require.Greater(t, res.GasLeft, uint64(0))
}

func TestSstoreColdWarm(t *testing.T) {
	// Two SSTOREs to the same slot under Berlin: the first pays the cold
	// surcharge and the 0->1 set cost, the second is a warm no-op.
	code := []byte{
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(STOP),
	}
	var (
		gas  = uint64(100000)
		host = newTestHost(params.Berlin)
		res  = execCode(host, code, gas)
	)
	require.Equal(t, Success, res.Status)
	want := 4*GasFastestStep +
		params.ColdSloadCostEIP2929 + params.SstoreSetGasEIP2200 +
		params.WarmStorageReadCostEIP2929
	require.Equal(t, want, gas-res.GasLeft)
	require.Equal(t, byte(1), host.GetStorage(addr2, zeroHash)[31])
}

func TestSloadColdWarm(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x00,
		byte(SLOAD),
		byte(POP),
		byte(PUSH1), 0x00,
		byte(SLOAD),
		byte(POP),
		byte(STOP),
	}
	var (
		gas  = uint64(100000)
		host = newTestHost(params.Berlin)
		res  = execCode(host, code, gas)
	)
	require.Equal(t, Success, res.Status)
	want := 2*GasFastestStep + 2*GasQuickStep +
		params.ColdSloadCostEIP2929 + params.WarmStorageReadCostEIP2929
	require.Equal(t, want, gas-res.GasLeft)
}

func TestBalanceColdWarm(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0xee,
		byte(BALANCE),
		byte(POP),
		byte(PUSH1), 0xee,
		byte(BALANCE),
		byte(POP),
		byte(STOP),
	}
	var (
		gas  = uint64(100000)
		host = newTestHost(params.Berlin)
		res  = execCode(host, code, gas)
	)
	require.Equal(t, Success, res.Status)
	want := 2*GasFastestStep + 2*GasQuickStep +
		(params.WarmStorageReadCostEIP2929 + params.ColdAccountAccessCostEIP2929 - params.WarmStorageReadCostEIP2929) +
		params.WarmStorageReadCostEIP2929
	require.Equal(t, want, gas-res.GasLeft)
}

func TestSstoreClearRefund(t *testing.T) {
	// Clearing a committed non-zero slot accrues the clearing refund, which
	// is reported on success.
	code := []byte{
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(STOP),
	}
	host := newTestHost(params.London)
	host.SetCommittedStorage(addr2, zeroHash, common.HexToHash("0x01"))

	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, params.SstoreClearsScheduleRefundEIP3529, res.GasRefund)
}

func TestSelfdestruct(t *testing.T) {
	var code []byte
	code = append(code, byte(PUSH20))
	code = append(code, addr3.Bytes()...)
	code = append(code, byte(SELFDESTRUCT))

	host := newTestHost(params.Istanbul)
	host.SetBalance(addr2, uint256.NewInt(77))

	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, uint64(77), host.GetBalance(addr3).Uint64())
	require.Equal(t, uint64(0), host.GetBalance(addr2).Uint64())
	// Pre-London the first destruction accrues the refund.
	require.Equal(t, params.SelfdestructRefundGas, res.GasRefund)

	// Post-London the refund is gone.
	host = newTestHost(params.London)
	host.SetBalance(addr2, uint256.NewInt(77))
	res = execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, uint64(0), res.GasRefund)
}

func TestSelfdestructStatic(t *testing.T) {
	var code []byte
	code = append(code, byte(PUSH20))
	code = append(code, addr3.Bytes()...)
	code = append(code, byte(SELFDESTRUCT))

	host := newTestHost(params.Cancun)
	res := execStatic(host, code, 100000)
	require.Equal(t, StaticModeViolation, res.Status)
}

func TestTransientStorage(t *testing.T) {
	// TSTORE 0 <- 5, TLOAD 0, return the value.
	code := []byte{
		byte(PUSH1), 0x05,
		byte(PUSH1), 0x00,
		byte(TSTORE),
		byte(PUSH1), 0x00,
		byte(TLOAD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(5), res.Output[31])
	// Persistent storage was never touched.
	require.Equal(t, common.Hash{}, host.GetStorage(addr2, zeroHash))

	// TSTORE is forbidden in static frames.
	res = execStatic(host, code, 100000)
	require.Equal(t, StaticModeViolation, res.Status)
}

func TestMcopy(t *testing.T) {
	immediate := common.Hex2Bytes("0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	var code []byte
	code = append(code, byte(PUSH32))
	code = append(code, immediate...)
	code = append(code,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20, // length
		byte(PUSH1), 0x00, // src
		byte(PUSH1), 0x20, // dst
		byte(MCOPY),
		byte(PUSH1), 0x20, // size
		byte(PUSH1), 0x20, // offset
		byte(RETURN),
	)
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 100000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, immediate, res.Output)
}

func TestLogEmission(t *testing.T) {
	// LOG1 with topic 0xaa over an empty data range.
	code := []byte{
		byte(PUSH1), 0xaa, // topic
		byte(PUSH1), 0x00, // size
		byte(PUSH1), 0x00, // offset
		byte(LOG1),
		byte(STOP),
	}
	var (
		gas  = uint64(100000)
		host = newTestHost(params.Cancun)
		res  = execCode(host, code, gas)
	)
	require.Equal(t, Success, res.Status)
	require.Len(t, host.Logs, 1)
	require.Equal(t, addr2, host.Logs[0].Address)
	require.Equal(t, byte(0xaa), host.Logs[0].Topics[0][31])
	require.Empty(t, host.Logs[0].Data)

	want := 3*GasFastestStep + params.LogGas + params.LogTopicGas
	require.Equal(t, want, gas-res.GasLeft)
}

func TestCreate(t *testing.T) {
	// Store initcode (RETURN empty) via PUSH5+MSTORE, then CREATE and return
	// the created address.
	var code []byte
	code = append(code, byte(PUSH5), byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(RETURN))
	code = append(code,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x05, // size
		byte(PUSH1), 27, // offset (right-aligned in the word)
		byte(PUSH1), 0x00, // value
		byte(CREATE),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	)
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 1000000)
	require.Equal(t, Success, res.Status)

	created := common.BytesToAddress(res.Output[12:])
	require.NotEqual(t, common.Address{}, created)
	// The deployed account exists with empty code and nonce 1.
	require.Equal(t, 0, host.GetCodeSize(created))
	require.True(t, host.AccountExists(created))
}

func TestCreateRevertedPushesZero(t *testing.T) {
	// Initcode that immediately reverts: CREATE pushes 0 and the revert
	// output lands in the return data buffer.
	var code []byte
	code = append(code, byte(PUSH5), byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(REVERT))
	code = append(code,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x05,
		byte(PUSH1), 27,
		byte(PUSH1), 0x00,
		byte(CREATE),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	)
	host := newTestHost(params.Cancun)
	res := execCode(host, code, 1000000)
	require.Equal(t, Success, res.Status)
	require.True(t, allZero(res.Output))
}

func TestCreateStatic(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(PUSH1), 0x00,
		byte(CREATE),
	}
	host := newTestHost(params.Cancun)
	res := execStatic(host, code, 100000)
	require.Equal(t, StaticModeViolation, res.Status)
}

func TestBlockhashWindow(t *testing.T) {
	// Block number is 100: 99 resolves, 100 and future blocks do not.
	mkCode := func(n byte) []byte {
		return []byte{
			byte(PUSH1), n,
			byte(BLOCKHASH),
			byte(PUSH1), 0x00,
			byte(MSTORE),
			byte(PUSH1), 0x20,
			byte(PUSH1), 0x00,
			byte(RETURN),
		}
	}
	host := newTestHost(params.Cancun)

	res := execCode(host, mkCode(99), 100000)
	require.Equal(t, Success, res.Status)
	require.False(t, allZero(res.Output))

	res = execCode(host, mkCode(100), 100000)
	require.Equal(t, Success, res.Status)
	require.True(t, allZero(res.Output))
}

func TestEnvironmentalOpcodes(t *testing.T) {
	mkCode := func(op OpCode) []byte {
		return []byte{
			byte(op),
			byte(PUSH1), 0x00,
			byte(MSTORE),
			byte(PUSH1), 0x20,
			byte(PUSH1), 0x00,
			byte(RETURN),
		}
	}
	host := newTestHost(params.Cancun)

	for _, test := range []struct {
		op   OpCode
		want uint64
	}{
		{CHAINID, 1},
		{BASEFEE, 7},
		{BLOBBASEFEE, 1},
		{GASPRICE, 10},
		{TIMESTAMP, 50},
		{NUMBER, 100},
		{GASLIMIT, 30_000_000},
		{CALLDATASIZE, 0},
		{RETURNDATASIZE, 0},
		{MSIZE, 0},
		{CODESIZE, 9},
	} {
		res := execCode(host, mkCode(test.op), 100000)
		require.Equal(t, Success, res.Status, "op %v", test.op)
		have := new(uint256.Int).SetBytes(res.Output)
		require.Equal(t, test.want, have.Uint64(), "op %v", test.op)
	}

	// Address-flavoured environment reads.
	for _, test := range []struct {
		op   OpCode
		want common.Address
	}{
		{ADDRESS, addr2},
		{CALLER, addr1},
		{ORIGIN, addr1},
		{COINBASE, addr3},
	} {
		res := execCode(host, mkCode(test.op), 100000)
		require.Equal(t, Success, res.Status, "op %v", test.op)
		require.Equal(t, test.want, common.BytesToAddress(res.Output[12:]), "op %v", test.op)
	}
}

func TestDelegateCallContext(t *testing.T) {
	// The delegate writes to storage slot 0; the write must land in the
	// caller's storage, not the code owner's.
	host := newTestHost(params.Cancun)
	host.SetCode(addr3, []byte{byte(PUSH1), 0x07, byte(PUSH1), 0x00, byte(SSTORE), byte(STOP)})

	var code []byte
	code = append(code, byte(PUSH1), 0x00) // ret size
	code = append(code, byte(PUSH1), 0x00) // ret offset
	code = append(code, byte(PUSH1), 0x00) // in size
	code = append(code, byte(PUSH1), 0x00) // in offset
	code = append(code, byte(PUSH20))
	code = append(code, addr3.Bytes()...)
	code = append(code, byte(GAS), byte(DELEGATECALL), byte(STOP))

	res := execCode(host, code, 1000000)
	require.Equal(t, Success, res.Status)
	require.Equal(t, byte(7), host.GetStorage(addr2, zeroHash)[31])
	require.Equal(t, common.Hash{}, host.GetStorage(addr3, zeroHash))
}

func TestResultGasZeroing(t *testing.T) {
	host := newTestHost(params.Cancun)
	for _, test := range []struct {
		code   []byte
		status Status
	}{
		{[]byte{byte(INVALID)}, InvalidInstruction},
		{[]byte{0x0c}, UndefinedInstruction},
		{[]byte{byte(ADD)}, StackUnderflow},
		{[]byte{byte(PUSH1), 0x00, byte(JUMP)}, BadJumpDestination},
	} {
		res := execCode(host, test.code, 54321)
		require.Equal(t, test.status, res.Status)
		require.Equal(t, uint64(0), res.GasLeft)
		require.Equal(t, uint64(0), res.GasRefund)
	}
}
