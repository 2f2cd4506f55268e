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
	"sort"
	"sync"
)

// A work item, as seen by the kernel body
type WorkItem struct {
	Global  [2]int   // Global ID
	Local   [2]int   // Local ID within the work group
	Group   [2]int   // Work group ID
	Size    [2]int   // Global work size
	Private []uint16 // Private memory, reused across the work items of one compute unit
}

// A kernel bound to its arguments
type Binding struct {
	Run     func(item *WorkItem) // Executes one work item
	Private int                  // uint16 elements of private memory per work item
}

// Binds the arguments of a kernel and returns its body. Called once per dispatch,
// so argument checks and type assertions stay out of the per work item path
type KernelFunc func(args Args) (Binding, error)

type kernelEntry struct {
	numArgs int
	fn      KernelFunc
}

// The kernel library, from which programs resolve their kernels
var kernelLibrary = struct {
	sync.RWMutex
	m map[string]kernelEntry
}{m: map[string]kernelEntry{}}

// Registers a kernel under the given name. Panics on duplicate registration
func RegisterKernel(name string, numArgs int, fn KernelFunc) {
	kernelLibrary.Lock()
	defer kernelLibrary.Unlock()
	if _, ok := kernelLibrary.m[name]; ok {
		panic(fmt.Sprintf("error: re-registering kernel %s\n", name))
	}
	kernelLibrary.m[name] = kernelEntry{numArgs: numArgs, fn: fn}
}

// Returns the sorted names of all registered kernels
func KernelNames() []string {
	kernelLibrary.RLock()
	defer kernelLibrary.RUnlock()
	names := make([]string, 0, len(kernelLibrary.m))
	for n := range kernelLibrary.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// A program groups named kernels. It must be built before kernels can be created
type Program struct {
	ctx      *Context
	names    []string
	kernels  map[string]kernelEntry
	BuildLog string
}

func (c *Context) CreateProgram(kernelNames ...string) *Program {
	return &Program{ctx: c, names: kernelNames}
}

// Resolves all kernels of the program. Fails with ErrBuildProgram if one is missing
func (p *Program) Build() error {
	if len(p.names) == 0 {
		p.BuildLog = "empty program"
		return fmt.Errorf("%s: %w", p.BuildLog, ErrBuildProgram)
	}
	kernelLibrary.RLock()
	defer kernelLibrary.RUnlock()
	kernels := make(map[string]kernelEntry, len(p.names))
	for _, n := range p.names {
		e, ok := kernelLibrary.m[n]
		if !ok {
			p.BuildLog = fmt.Sprintf("undefined kernel %s", n)
			return fmt.Errorf("%s on %s: %w", p.BuildLog, p.ctx.Device.Name, ErrBuildProgram)
		}
		kernels[n] = e
	}
	p.kernels = kernels
	p.BuildLog = fmt.Sprintf("built %d kernels", len(kernels))
	return nil
}

func (p *Program) CreateKernel(name string) (*Kernel, error) {
	if p.kernels == nil {
		return nil, fmt.Errorf("kernel %s from unbuilt program: %w", name, ErrInvalidValue)
	}
	e, ok := p.kernels[name]
	if !ok {
		return nil, fmt.Errorf("kernel %s not in program: %w", name, ErrInvalidValue)
	}
	return &Kernel{Name: name, ctx: p.ctx, fn: e.fn, args: make([]interface{}, e.numArgs)}, nil
}

// A kernel with its argument slots
type Kernel struct {
	Name string
	ctx  *Context
	fn   KernelFunc
	args []interface{}
}

// Sets argument i to a *Buffer, int32, uint32 or float32
func (k *Kernel) SetArg(i int, v interface{}) error {
	if i < 0 || i >= len(k.args) {
		return fmt.Errorf("kernel %s argument %d of %d: %w", k.Name, i, len(k.args), ErrInvalidArgIndex)
	}
	switch a := v.(type) {
	case *Buffer:
		if err := a.check(); err != nil {
			return fmt.Errorf("kernel %s argument %d: %w", k.Name, i, err)
		}
		if a.ctx != k.ctx {
			return fmt.Errorf("kernel %s argument %d: buffer from another context: %w", k.Name, i, ErrInvalidMemObject)
		}
	case int32, uint32, float32:
	default:
		return fmt.Errorf("kernel %s argument %d has type %T: %w", k.Name, i, v, ErrInvalidKernelArgs)
	}
	k.args[i] = v
	return nil
}

// Buffer access a kernel requests for an argument
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessReadWrite
)

// Typed access to the arguments of a kernel during binding
type Args struct {
	name string
	args []interface{}
}

func (a Args) buffer(i int, access Access) (*Buffer, error) {
	if i < 0 || i >= len(a.args) || a.args[i] == nil {
		return nil, fmt.Errorf("kernel %s argument %d not set: %w", a.name, i, ErrInvalidKernelArgs)
	}
	b, ok := a.args[i].(*Buffer)
	if !ok {
		return nil, fmt.Errorf("kernel %s argument %d is %T, want buffer: %w", a.name, i, a.args[i], ErrInvalidKernelArgs)
	}
	if err := b.check(); err != nil {
		return nil, fmt.Errorf("kernel %s argument %d: %w", a.name, i, err)
	}
	if (access != AccessRead && b.flags&MemReadOnly != 0) || (access != AccessWrite && b.flags&MemWriteOnly != 0) {
		return nil, fmt.Errorf("kernel %s argument %d with flags %#x: %w", a.name, i, uint32(b.flags), ErrInvalidKernelArgs)
	}
	return b, nil
}

// Returns the uint16 values of buffer argument i, checking the buffer allows the access
func (a Args) Uint16(i int, access Access) ([]uint16, error) {
	b, err := a.buffer(i, access)
	if err != nil {
		return nil, err
	}
	if b.u16 == nil {
		return nil, fmt.Errorf("kernel %s argument %d is not a uint16 buffer: %w", a.name, i, ErrInvalidKernelArgs)
	}
	return b.u16, nil
}

// Returns the float32 values of buffer argument i, checking the buffer allows the access
func (a Args) Float32Buffer(i int, access Access) ([]float32, error) {
	b, err := a.buffer(i, access)
	if err != nil {
		return nil, err
	}
	if b.f32 == nil {
		return nil, fmt.Errorf("kernel %s argument %d is not a float32 buffer: %w", a.name, i, ErrInvalidKernelArgs)
	}
	return b.f32, nil
}

func (a Args) Int32(i int) (int32, error) {
	if i >= 0 && i < len(a.args) {
		if v, ok := a.args[i].(int32); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("kernel %s argument %d is not an int32: %w", a.name, i, ErrInvalidKernelArgs)
}

func (a Args) Uint32(i int) (uint32, error) {
	if i >= 0 && i < len(a.args) {
		if v, ok := a.args[i].(uint32); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("kernel %s argument %d is not a uint32: %w", a.name, i, ErrInvalidKernelArgs)
}

func (a Args) Float32(i int) (float32, error) {
	if i >= 0 && i < len(a.args) {
		if v, ok := a.args[i].(float32); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("kernel %s argument %d is not a float32: %w", a.name, i, ErrInvalidKernelArgs)
}
