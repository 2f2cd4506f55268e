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

package internal

import (
	"runtime"
	"sync"
)

// Pools of constant sized arrays, to reduce allocation overhead for per-frame scratch buffers.
// Frames of one sensor always have the same sizes, so the pools stay small.
type sizedPools struct {
	sync.RWMutex
	m map[int]*sync.Pool
}

var poolUint16 = &sizedPools{m: make(map[int]*sync.Pool)}
var poolFloat64 = &sizedPools{m: make(map[int]*sync.Pool)}

// Clears all memory pools and triggers garbage collection
func ClearPools() {
	poolUint16.clear()
	poolFloat64.clear()
	runtime.GC()
}

func (p *sizedPools) clear() {
	p.Lock()
	p.m = make(map[int]*sync.Pool)
	p.Unlock()
}

// Returns the pool for the given size, creating it with the given constructor if needed
func (p *sizedPools) get(size int, newFn func() interface{}) *sync.Pool {
	p.RLock()
	pool := p.m[size]
	p.RUnlock()
	if pool != nil {
		return pool
	}
	p.Lock()
	defer p.Unlock()
	if pool = p.m[size]; pool == nil {
		pool = &sync.Pool{New: newFn}
		p.m[size] = pool
	}
	return pool
}

// Retrieves an array of given size from the pool. Contents are undefined
func GetArrayOfUint16FromPool(size int) []uint16 {
	pool := poolUint16.get(size, func() interface{} { return make([]uint16, size) })
	return pool.Get().([]uint16)
}

// Returns an array to the pool
func PutArrayOfUint16IntoPool(arr []uint16) {
	pool := poolUint16.get(cap(arr), func() interface{} { return make([]uint16, cap(arr)) })
	pool.Put(arr[:cap(arr)])
}

// Retrieves an array of given size from the pool. Contents are undefined
func GetArrayOfFloat64FromPool(size int) []float64 {
	pool := poolFloat64.get(size, func() interface{} { return make([]float64, size) })
	return pool.Get().([]float64)
}

// Returns an array to the pool
func PutArrayOfFloat64IntoPool(arr []float64) {
	pool := poolFloat64.get(cap(arr), func() interface{} { return make([]float64, cap(arr)) })
	pool.Put(arr[:cap(arr)])
}
