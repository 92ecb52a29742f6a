// Copyright 2024 The quartz Authors
// This file is part of quartz.
//
// quartz is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// quartz is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with quartz. If not, see <http://www.gnu.org/licenses/>.

// evm executes EVM bytecode snippets against an in-memory host and reports
// the result. It is a development tool, not a consensus client.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/quartzevm/quartz/common"
	"github.com/quartzevm/quartz/core/vm"
	"github.com/quartzevm/quartz/params"
)

var (
	codeFlag = &cli.StringFlag{
		Name:  "code",
		Usage: "EVM bytecode to execute, hex encoded",
	}
	codeFileFlag = &cli.StringFlag{
		Name:  "codefile",
		Usage: "File containing hex encoded EVM bytecode ('-' for stdin)",
	}
	inputFlag = &cli.StringFlag{
		Name:  "input",
		Usage: "Input (calldata) for the execution, hex encoded",
	}
	gasFlag = &cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas limit for the execution",
		Value: 10_000_000,
	}
	valueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "Value (in wei) transferred with the message",
		Value: "0",
	}
	senderFlag = &cli.StringFlag{
		Name:  "sender",
		Usage: "Sender address of the message",
		Value: "0x00000000000000000000000000000000000000aa",
	}
	receiverFlag = &cli.StringFlag{
		Name:  "receiver",
		Usage: "Recipient address executing the code",
		Value: "0x00000000000000000000000000000000000000bb",
	}
	revisionFlag = &cli.StringFlag{
		Name:  "revision",
		Usage: "Protocol revision to execute at (Frontier ... Cancun)",
		Value: params.LatestRevision.String(),
	}
	staticFlag = &cli.BoolFlag{
		Name:  "static",
		Usage: "Execute the message in static (read-only) mode",
	}
	statFlag = &cli.BoolFlag{
		Name:  "stat",
		Usage: "Print gas accounting details",
	}
)

var app = &cli.App{
	Name:   "evm",
	Usage:  "executes EVM bytecode against an in-memory host",
	Action: runCode,
	Flags: []cli.Flag{
		codeFlag,
		codeFileFlag,
		inputFlag,
		gasFlag,
		valueFlag,
		senderFlag,
		receiverFlag,
		revisionFlag,
		staticFlag,
		statFlag,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

func loadCode(ctx *cli.Context) ([]byte, error) {
	if ctx.IsSet(codeFlag.Name) {
		return hexBytes(ctx.String(codeFlag.Name))
	}
	if ctx.IsSet(codeFileFlag.Name) {
		var (
			data []byte
			err  error
		)
		if name := ctx.String(codeFileFlag.Name); name == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			return nil, err
		}
		return hexBytes(string(data))
	}
	return nil, fmt.Errorf("either --%s or --%s must be given", codeFlag.Name, codeFileFlag.Name)
}

func runCode(ctx *cli.Context) error {
	code, err := loadCode(ctx)
	if err != nil {
		return err
	}
	rev, err := params.RevisionByName(ctx.String(revisionFlag.Name))
	if err != nil {
		return err
	}
	var input []byte
	if ctx.IsSet(inputFlag.Name) {
		if input, err = hexBytes(ctx.String(inputFlag.Name)); err != nil {
			return fmt.Errorf("invalid input: %v", err)
		}
	}
	value, err := uint256.FromDecimal(ctx.String(valueFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid value: %v", err)
	}
	var (
		sender   = common.HexToAddress(ctx.String(senderFlag.Name))
		receiver = common.HexToAddress(ctx.String(receiverFlag.Name))
		gas      = ctx.Uint64(gasFlag.Name)
	)

	host := vm.NewMockHost(rev, vm.TxContext{
		Origin:      sender,
		GasPrice:    uint256.NewInt(1),
		BlockNumber: 1,
		Time:        1,
		GasLimit:    30_000_000,
		ChainID:     uint256.NewInt(1),
		BaseFee:     uint256.NewInt(0),
		BlobBaseFee: uint256.NewInt(1),
	})
	host.SetBalance(sender, new(uint256.Int).Add(value, uint256.NewInt(1_000_000_000)))
	host.SetCode(receiver, code)

	msg := &vm.Message{
		Kind:      vm.CallKindCall,
		Static:    ctx.Bool(staticFlag.Name),
		Gas:       gas,
		Recipient: receiver,
		CodeAddr:  receiver,
		Sender:    sender,
		Input:     input,
		Value:     value,
	}
	res := vm.Execute(host, rev, vm.Config{}, msg, code)

	fmt.Printf("status:   %v\n", res.Status)
	fmt.Printf("gas left: %d\n", res.GasLeft)
	if ctx.Bool(statFlag.Name) {
		fmt.Printf("gas used: %d\n", gas-res.GasLeft)
		fmt.Printf("refund:   %d\n", res.GasRefund)
		fmt.Printf("logs:     %d\n", len(host.Logs))
	}
	if len(res.Output) > 0 {
		fmt.Printf("output:   0x%x\n", res.Output)
	}
	if res.Status != vm.Success && res.Status != vm.Revert {
		return cli.Exit("", 1)
	}
	return nil
}
