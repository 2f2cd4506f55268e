// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package accel

import (
	"fmt"
	"sync"
)

// Memory flags for buffer creation. Kernel access is one of MemReadWrite, MemWriteOnly
// or MemReadOnly. Host access flags restrict the enqueued read and write operations.
type MemFlags uint32

const (
	MemReadWrite MemFlags = 1 << iota
	MemWriteOnly
	MemReadOnly
	MemUseHostPtr  // Buffer aliases the given host slice
	MemCopyHostPtr // Buffer is initialized with a copy of the given host slice
	MemHostWriteOnly
	MemHostReadOnly
	MemHostNoAccess
)

const kernelAccessMask = MemReadWrite | MemWriteOnly | MemReadOnly
const hostAccessMask = MemHostWriteOnly | MemHostReadOnly | MemHostNoAccess

// Validates a flag combination, and fills in the default kernel access
func (f MemFlags) normalize() (MemFlags, error) {
	if bits(f&kernelAccessMask) > 1 || bits(f&hostAccessMask) > 1 {
		return f, fmt.Errorf("flags %#x: conflicting access: %w", uint32(f), ErrInvalidValue)
	}
	if f&MemUseHostPtr != 0 && f&MemCopyHostPtr != 0 {
		return f, fmt.Errorf("flags %#x: both use and copy host pointer: %w", uint32(f), ErrInvalidValue)
	}
	if f&kernelAccessMask == 0 {
		f |= MemReadWrite
	}
	return f, nil
}

func bits(f MemFlags) (n int) {
	for ; f != 0; f &= f - 1 {
		n++
	}
	return n
}

// A context owns the buffers and programs created on one device
type Context struct {
	Device *Device

	mu        sync.Mutex
	allocated uint64 // Bytes of device memory held by live buffers
}

func NewContext(d *Device) *Context {
	return &Context{Device: d}
}

// Bytes of device memory currently allocated
func (c *Context) Allocated() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

func (c *Context) reserve(bytes uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocated+bytes > c.Device.GlobalMemSize {
		return fmt.Errorf("allocating %d bytes with %d of %d in use: %w",
			bytes, c.allocated, c.Device.GlobalMemSize, ErrOutOfResources)
	}
	c.allocated += bytes
	return nil
}

func (c *Context) free(bytes uint64) {
	c.mu.Lock()
	c.allocated -= bytes
	c.mu.Unlock()
}

// A typed device memory object. Holds uint16 samples or float32 values
type Buffer struct {
	ctx      *Context
	flags    MemFlags
	u16      []uint16
	f32      []float32
	deviceB  uint64 // Bytes reserved on the device, zero for host pointer aliases
	released bool
}

// Creates a buffer of n uint16 values. With MemUseHostPtr or MemCopyHostPtr, host must
// hold at least n values, otherwise it is ignored and may be nil.
func (c *Context) CreateBuffer(flags MemFlags, n int, host []uint16) (*Buffer, error) {
	flags, err := flags.normalize()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("buffer of %d values: %w", n, ErrInvalidValue)
	}
	if flags&(MemUseHostPtr|MemCopyHostPtr) != 0 && len(host) < n {
		return nil, fmt.Errorf("buffer of %d values from host slice of %d: %w", n, len(host), ErrInvalidValue)
	}
	b := &Buffer{ctx: c, flags: flags}
	if flags&MemUseHostPtr != 0 {
		b.u16 = host[:n]
		return b, nil
	}
	if err := c.reserve(uint64(n) * 2); err != nil {
		return nil, err
	}
	b.deviceB = uint64(n) * 2
	b.u16 = make([]uint16, n)
	if flags&MemCopyHostPtr != 0 {
		copy(b.u16, host)
	}
	return b, nil
}

// Creates a buffer of n float32 values, with the same host pointer rules as CreateBuffer
func (c *Context) CreateBufferFloat32(flags MemFlags, n int, host []float32) (*Buffer, error) {
	flags, err := flags.normalize()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("buffer of %d values: %w", n, ErrInvalidValue)
	}
	if flags&(MemUseHostPtr|MemCopyHostPtr) != 0 && len(host) < n {
		return nil, fmt.Errorf("buffer of %d values from host slice of %d: %w", n, len(host), ErrInvalidValue)
	}
	b := &Buffer{ctx: c, flags: flags}
	if flags&MemUseHostPtr != 0 {
		b.f32 = host[:n]
		return b, nil
	}
	if err := c.reserve(uint64(n) * 4); err != nil {
		return nil, err
	}
	b.deviceB = uint64(n) * 4
	b.f32 = make([]float32, n)
	if flags&MemCopyHostPtr != 0 {
		copy(b.f32, host)
	}
	return b, nil
}

func (b *Buffer) Flags() MemFlags { return b.flags }

// Number of values in the buffer
func (b *Buffer) Len() int {
	if b.f32 != nil {
		return len(b.f32)
	}
	return len(b.u16)
}

// Releases the device memory. Host pointer aliases are left untouched.
// Further use of the buffer fails with ErrInvalidMemObject
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	b.u16, b.f32 = nil, nil
	if b.deviceB > 0 {
		b.ctx.free(b.deviceB)
	}
}

func (b *Buffer) check() error {
	if b == nil || b.released {
		return fmt.Errorf("released buffer: %w", ErrInvalidMemObject)
	}
	return nil
}
