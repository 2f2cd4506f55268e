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
	"sync/atomic"
)

// A command queue on a context. All enqueued commands complete before the call returns,
// so results are visible to the host without a separate finish.
type Queue struct {
	ctx     *Context
	Workers int // Number of goroutines executing work groups
}

func (c *Context) CreateQueue() *Queue {
	return &Queue{ctx: c, Workers: c.Device.ComputeUnits}
}

// Executes the kernel over a one or two dimensional global work size. Local may be nil,
// then the work group size is chosen automatically. Returns once all work items completed.
func (q *Queue) EnqueueNDRange(k *Kernel, global, local []int) error {
	if k.ctx != q.ctx {
		return fmt.Errorf("kernel %s from another context: %w", k.Name, ErrInvalidValue)
	}
	var gs, ls [2]int
	if len(global) < 1 || len(global) > 2 {
		return fmt.Errorf("kernel %s with %d dimensions: %w", k.Name, len(global), ErrInvalidValue)
	}
	gs = [2]int{global[0], 1}
	if len(global) == 2 {
		gs[1] = global[1]
	}
	if gs[0] <= 0 || gs[1] <= 0 {
		return fmt.Errorf("kernel %s with global size %v: %w", k.Name, global, ErrInvalidValue)
	}
	if local == nil {
		ls = [2]int{autoLocalSize(gs[0], q.ctx.Device.MaxWorkGroupSize), 1}
	} else {
		if len(local) != len(global) {
			return fmt.Errorf("kernel %s local size %v for global size %v: %w", k.Name, local, global, ErrInvalidWorkGroupSize)
		}
		ls = [2]int{local[0], 1}
		if len(local) == 2 {
			ls[1] = local[1]
		}
	}
	if ls[0] <= 0 || ls[1] <= 0 || gs[0]%ls[0] != 0 || gs[1]%ls[1] != 0 || ls[0]*ls[1] > q.ctx.Device.MaxWorkGroupSize {
		return fmt.Errorf("kernel %s local size %v for global size %v: %w", k.Name, ls, gs, ErrInvalidWorkGroupSize)
	}

	binding, err := k.fn(Args{name: k.Name, args: k.args})
	if err != nil {
		return err
	}
	return q.dispatch(k.Name, binding, gs, ls)
}

// Largest divisor of n not above limit and 64
func autoLocalSize(n, limit int) int {
	if limit > 64 {
		limit = 64
	}
	for l := limit; l > 1; l-- {
		if n%l == 0 {
			return l
		}
	}
	return 1
}

// Runs all work groups on a pool of goroutines, one compute unit each
func (q *Queue) dispatch(name string, b Binding, gs, ls [2]int) error {
	groupsX, groupsY := gs[0]/ls[0], gs[1]/ls[1]
	numGroups := int64(groupsX * groupsY)
	workers := q.Workers
	if workers <= 0 {
		workers = 1
	}
	if int64(workers) > numGroups {
		workers = int(numGroups)
	}

	var next int64 = -1
	var wg sync.WaitGroup
	var errOnce sync.Once
	var fault error
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errOnce.Do(func() { fault = fmt.Errorf("kernel %s: %v: %w", name, r, ErrKernelFault) })
				}
			}()
			item := WorkItem{Size: gs}
			if b.Private > 0 {
				item.Private = make([]uint16, b.Private)
			}
			for {
				g := atomic.AddInt64(&next, 1)
				if g >= numGroups {
					return
				}
				item.Group = [2]int{int(g) % groupsX, int(g) / groupsX}
				for ly := 0; ly < ls[1]; ly++ {
					for lx := 0; lx < ls[0]; lx++ {
						item.Local = [2]int{lx, ly}
						item.Global = [2]int{item.Group[0]*ls[0] + lx, item.Group[1]*ls[1] + ly}
						b.Run(&item)
					}
				}
			}
		}()
	}
	wg.Wait()
	return fault
}

// Copies the buffer contents into dst, which must hold Len() values. Blocks until done
func (q *Queue) EnqueueReadBuffer(b *Buffer, dst []uint16) error {
	if err := q.checkHost(b, MemHostWriteOnly); err != nil {
		return err
	}
	if b.u16 == nil || len(dst) < len(b.u16) {
		return fmt.Errorf("reading %d values into %d: %w", b.Len(), len(dst), ErrInvalidValue)
	}
	copy(dst, b.u16)
	return nil
}

// Copies src into the buffer, which must hold len(src) values. Blocks until done
func (q *Queue) EnqueueWriteBuffer(b *Buffer, src []uint16) error {
	if err := q.checkHost(b, MemHostReadOnly); err != nil {
		return err
	}
	if b.u16 == nil || len(src) != len(b.u16) {
		return fmt.Errorf("writing %d values into %d: %w", len(src), b.Len(), ErrInvalidValue)
	}
	copy(b.u16, src)
	return nil
}

// Copies src into the float32 buffer, which must hold len(src) values. Blocks until done
func (q *Queue) EnqueueWriteBufferFloat32(b *Buffer, src []float32) error {
	if err := q.checkHost(b, MemHostReadOnly); err != nil {
		return err
	}
	if b.f32 == nil || len(src) != len(b.f32) {
		return fmt.Errorf("writing %d values into %d: %w", len(src), b.Len(), ErrInvalidValue)
	}
	copy(b.f32, src)
	return nil
}

func (q *Queue) checkHost(b *Buffer, forbidden MemFlags) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.ctx != q.ctx {
		return fmt.Errorf("buffer from another context: %w", ErrInvalidMemObject)
	}
	if b.flags&(forbidden|MemHostNoAccess) != 0 {
		return fmt.Errorf("buffer flags %#x: %w", uint32(b.flags), ErrInvalidHostAccess)
	}
	return nil
}

// Waits for all enqueued commands. Commands complete on enqueue, so this never blocks
func (q *Queue) Finish() error { return nil }
