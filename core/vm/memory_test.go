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

	"github.com/holiman/uint256"
)

func TestMemorySet32(t *testing.T) {
	m := NewMemory()
	defer m.Free()
	m.Resize(64)

	m.Set32(0, uint256.NewInt(0x42))
	if m.store[31] != 0x42 || !allZero(m.store[:31]) {
		t.Errorf("Set32 not big-endian aligned: %x", m.store[:32])
	}
	// Overwriting must clear stale high bytes.
	m.Set32(0, new(uint256.Int).Lsh(uint256.NewInt(1), 255))
	m.Set32(0, uint256.NewInt(1))
	if m.store[0] != 0 || m.store[31] != 1 {
		t.Errorf("Set32 left stale bytes: %x", m.store[:32])
	}
}

func TestMemoryResize(t *testing.T) {
	m := NewMemory()
	defer m.Free()

	m.Resize(32)
	if m.Len() != 32 {
		t.Fatalf("have len %d, want 32", m.Len())
	}
	// Shrinking is never performed.
	m.Resize(0)
	if m.Len() != 32 {
		t.Errorf("memory shrank to %d", m.Len())
	}
	m.Resize(96)
	if m.Len() != 96 {
		t.Errorf("have len %d, want 96", m.Len())
	}
}

func TestMemoryGetCopyIsolated(t *testing.T) {
	m := NewMemory()
	defer m.Free()
	m.Resize(32)
	m.Set(0, 4, []byte{1, 2, 3, 4})

	cpy := m.GetCopy(0, 4)
	cpy[0] = 0xff
	if m.store[0] != 1 {
		t.Errorf("GetCopy aliases the backing store")
	}
	ptr := m.GetPtr(0, 4)
	ptr[0] = 0xff
	if m.store[0] != 0xff {
		t.Errorf("GetPtr does not alias the backing store")
	}
}

func TestMemoryZeroLength(t *testing.T) {
	m := NewMemory()
	defer m.Free()

	// Zero-size accesses at arbitrary offsets are no-ops against empty memory.
	if out := m.GetCopy(1<<40, 0); out != nil {
		t.Errorf("GetCopy(_, 0) = %x, want nil", out)
	}
	if out := m.GetPtr(1<<40, 0); out != nil {
		t.Errorf("GetPtr(_, 0) = %x, want nil", out)
	}
	m.Set(1<<40, 0, nil)
	if m.Len() != 0 {
		t.Errorf("zero-size Set expanded memory to %d", m.Len())
	}
}

func TestMemoryCopyOverlap(t *testing.T) {
	m := NewMemory()
	defer m.Free()
	m.Resize(64)
	m.Set(0, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	m.Copy(4, 0, 8)
	if !bytes.Equal(m.store[4:12], []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("overlapping Copy result: %x", m.store[:16])
	}
	m.Copy(0, 0, 0)
}
