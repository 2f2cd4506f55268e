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
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// A compute device. The host platform exposes the vector units of the CPU as a single
// device, with one compute unit per logical core.
type Device struct {
	Name             string
	ComputeUnits     int    // Number of work groups executed in parallel
	GlobalMemSize    uint64 // Bytes available for device buffers
	MaxWorkGroupSize int    // Maximum number of work items per work group
	VectorWidth      int    // Preferred float32 vector width
	CacheLine        int    // Bytes
}

func (d *Device) String() string {
	return fmt.Sprintf("%s, %d compute units, %d MB global memory, float32 vector width %d",
		d.Name, d.ComputeUnits, d.GlobalMemSize/1024/1024, d.VectorWidth)
}

// Criteria a device must meet. The zero value accepts any device
type DeviceFilter struct {
	NameContains    string `json:"nameContains"    yaml:"nameContains"`    // Case-insensitive substring of the device name
	MinComputeUnits int    `json:"minComputeUnits" yaml:"minComputeUnits"`
	MinGlobalMemMB  uint64 `json:"minGlobalMemMB"  yaml:"minGlobalMemMB"`
	MinVectorWidth  int    `json:"minVectorWidth"  yaml:"minVectorWidth"` // 8 requires AVX2
}

func (f *DeviceFilter) matches(d *Device) bool {
	if f.NameContains != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return d.ComputeUnits >= f.MinComputeUnits &&
		d.GlobalMemSize/1024/1024 >= f.MinGlobalMemMB &&
		d.VectorWidth >= f.MinVectorWidth
}

// A platform groups the devices of one vendor runtime
type Platform struct {
	Name    string
	devices []*Device
}

// Returns the host platform, with its device described from cpuid and the physical memory size
func NewPlatform() *Platform {
	return &Platform{Name: "host", devices: []*Device{hostDevice()}}
}

func hostDevice() *Device {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = runtime.GOARCH + " host"
	}
	units := cpuid.CPU.LogicalCores
	if units <= 0 {
		units = runtime.NumCPU()
	}
	width := 4
	if cpuid.CPU.AVX2() {
		width = 8
	}
	cacheLine := cpuid.CPU.CacheLine
	if cacheLine <= 0 {
		cacheLine = 64
	}

	// device buffers share physical memory with the host, so leave half for it
	total := memory.TotalMemory()
	if total == 0 {
		total = 2 << 30
	}
	return &Device{
		Name:             name,
		ComputeUnits:     units,
		GlobalMemSize:    total / 2,
		MaxWorkGroupSize: 1024,
		VectorWidth:      width,
		CacheLine:        cacheLine,
	}
}

// Returns all devices of the platform matching the filter, or ErrDeviceNotFound
func (p *Platform) Devices(filter DeviceFilter) ([]*Device, error) {
	var res []*Device
	for _, d := range p.devices {
		if filter.matches(d) {
			res = append(res, d)
		}
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("platform %s with filter %+v: %w", p.Name, filter, ErrDeviceNotFound)
	}
	return res, nil
}
