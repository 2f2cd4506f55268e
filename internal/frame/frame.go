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

package frame

import (
	"fmt"
)

// A frame from the sensor active area, with raw samples and the band-interleaved cube.
// The geometry is copied in by value, frames hold no reference to the calibration.
type Frame struct {
	ID       int    // Sequential ID number, for log output. By convention, references are negative
	FileName string // Original file name, if any, for log output

	Geometry Geometry // Geometry the buffers are sized for

	Raw  []uint16 // Active area samples, row-major, index x + ActiveWidth*y
	Cube []uint16 // Band-interleaved cube, index x*bands + y*SpatialWidth*bands + band
}

// Creates a frame with zeroed buffers for the given geometry
func NewFrame(g Geometry) (*Frame, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	n := g.ActivePixels()
	return &Frame{
		Geometry: g.Clone(),
		Raw:      make([]uint16, n),
		Cube:     make([]uint16, n),
	}, nil
}

// Creates a frame from a copy of the given active area samples
func NewFrameFromRaw(g Geometry, raw []uint16) (*Frame, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if int32(len(raw)) != g.ActivePixels() {
		return nil, fmt.Errorf("frame expected %d samples but got %d: %w", g.ActivePixels(), len(raw), ErrSizeMismatch)
	}
	f, err := NewFrame(g)
	if err != nil {
		return nil, err
	}
	copy(f.Raw, raw)
	return f, nil
}

// Creates a deep copy of the given frame
func NewFrameFromFrame(src *Frame) *Frame {
	return &Frame{
		ID:       src.ID,
		FileName: src.FileName,
		Geometry: src.Geometry.Clone(),
		Raw:      append([]uint16(nil), src.Raw...),
		Cube:     append([]uint16(nil), src.Cube...),
	}
}

// Number of samples in each of the raw and cube buffers
func (f *Frame) Size() int { return len(f.Raw) }

// Index into the raw buffer for active area coordinates. Does not check bounds
func (f *Frame) Index(x, y int32) int32 { return x + f.Geometry.ActiveWidth*y }

// Index of the first cube entry of the given spatial pixel. Does not check bounds
func (f *Frame) CubeIndex(x, y int32) int32 {
	bands := f.Geometry.NumberOfBands()
	return x*bands + y*f.Geometry.SpatialWidth()*bands
}

func (f *Frame) Pixel(x, y int32) (uint16, error) {
	if x < 0 || y < 0 || x >= f.Geometry.ActiveWidth || y >= f.Geometry.ActiveHeight {
		return 0, fmt.Errorf("pixel (%d,%d) outside %dx%d: %w", x, y, f.Geometry.ActiveWidth, f.Geometry.ActiveHeight, ErrIndexOutOfRange)
	}
	return f.Raw[f.Index(x, y)], nil
}

func (f *Frame) SetPixel(x, y int32, v uint16) error {
	if x < 0 || y < 0 || x >= f.Geometry.ActiveWidth || y >= f.Geometry.ActiveHeight {
		return fmt.Errorf("pixel (%d,%d) outside %dx%d: %w", x, y, f.Geometry.ActiveWidth, f.Geometry.ActiveHeight, ErrIndexOutOfRange)
	}
	f.Raw[f.Index(x, y)] = v
	return nil
}

func (f *Frame) PixelAt(i int) (uint16, error) {
	if i < 0 || i >= len(f.Raw) {
		return 0, fmt.Errorf("pixel %d outside %d: %w", i, len(f.Raw), ErrIndexOutOfRange)
	}
	return f.Raw[i], nil
}

func (f *Frame) CubeAt(i int) (uint16, error) {
	if i < 0 || i >= len(f.Cube) {
		return 0, fmt.Errorf("cube entry %d outside %d: %w", i, len(f.Cube), ErrIndexOutOfRange)
	}
	return f.Cube[i], nil
}

// Returns the cube values of one band as a SpatialWidth x SpatialHeight plane
func (f *Frame) Band(band int32) ([]uint16, error) {
	bands := f.Geometry.NumberOfBands()
	if band < 0 || band >= bands {
		return nil, fmt.Errorf("band %d outside %d bands: %w", band, bands, ErrIndexOutOfRange)
	}
	plane := make([]uint16, f.Geometry.SpatialPixels())
	for i := range plane {
		plane[i] = f.Cube[int32(i)*bands+band]
	}
	return plane, nil
}

// Checks that the other frame has buffers of the same size as this one
func (f *Frame) CheckSameSize(o *Frame) error {
	if len(f.Raw) != len(o.Raw) || len(f.Cube) != len(o.Cube) || !f.Geometry.SameShape(&o.Geometry) {
		return fmt.Errorf("%d: frame %s differs from %d: frame %s: %w",
			f.ID, f.DimensionsToString(), o.ID, o.DimensionsToString(), ErrSizeMismatch)
	}
	return nil
}

func (f *Frame) DimensionsToString() string {
	g := &f.Geometry
	if g.PatternWidth <= 0 || g.PatternHeight <= 0 {
		return fmt.Sprintf("%dx%d", g.ActiveWidth, g.ActiveHeight)
	}
	return fmt.Sprintf("%dx%d (%dx%dx%d)", g.ActiveWidth, g.ActiveHeight, g.SpatialWidth(), g.SpatialHeight(), g.NumberOfBands())
}
