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
	"github.com/quartzevm/quartz/params"
)

// Tracer receives the two per-frame notifications of an execution: one before
// the dispatch loop starts and one after it terminated. A tracer is advisory
// only, it must not mutate any of the values it observes. There are no
// per-opcode observation points, so the hot path carries no tracing branches.
type Tracer interface {
	// CaptureStart is invoked before the dispatch loop begins.
	CaptureStart(rev params.Revision, msg *Message, code []byte)
	// CaptureEnd is invoked with the assembled result after termination.
	CaptureEnd(res *ExecutionResult)
}
