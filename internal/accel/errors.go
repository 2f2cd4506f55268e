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
	"errors"
	"fmt"
)

// Initialization fails once, when a device or program is set up. Callers match with errors.Is
var ErrAcceleratorInit = errors.New("accelerator initialization failed")

var (
	ErrDeviceNotFound = fmt.Errorf("no matching device: %w", ErrAcceleratorInit)
	ErrBuildProgram   = fmt.Errorf("program build failure: %w", ErrAcceleratorInit)
)

// Runtime errors of buffers, kernels and queues
var (
	ErrInvalidValue         = errors.New("invalid value")
	ErrOutOfResources       = errors.New("out of device memory")
	ErrInvalidMemObject     = errors.New("invalid memory object")
	ErrInvalidHostAccess    = errors.New("host access not permitted for buffer")
	ErrInvalidArgIndex      = errors.New("invalid kernel argument index")
	ErrInvalidKernelArgs    = errors.New("invalid kernel arguments")
	ErrInvalidWorkGroupSize = errors.New("invalid work group size")
	ErrKernelFault          = errors.New("kernel fault")
)
