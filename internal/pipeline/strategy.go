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

package pipeline

import (
	"sync"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

// A processing strategy implements the four stages, either on the host or on an
// accelerator. Strategies are selected per call. Crop and Unmix results are identical
// across strategies, DemosaicCorrect and ColourMap agree within one LSB.
type Strategy interface {
	Name() string

	// Copies the active area of a full sensor frame into out.Raw
	Crop(full []uint16, out *frame.Frame) error

	// Fills f.Cube with the reflectance of f.Raw, corrected with the references
	DemosaicCorrect(f *frame.Frame, refs *References, exp Exposures) error

	// Multiplies each pixel's band vector with the coefficient matrix. Out may be in
	Unmix(out, in *frame.Frame, coeffs []float32, bands int32) error

	// Renders one band of the cube as interleaved 16-bit RGB
	ColourMap(f *frame.Frame, band int32) ([]uint16, error)
}

// Runs fn over [0,n) in contiguous chunks on at most threads goroutines, and waits for completion
func parallelFor(n, threads int, fn func(start, end int)) {
	if threads < 1 {
		threads = 1
	}
	if threads > n {
		threads = n
	}
	if threads <= 1 {
		if n > 0 {
			fn(0, n)
		}
		return
	}
	chunk := (n + threads - 1) / threads
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
