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
	"fmt"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

// Checks common to all strategies. Stages validate before writing any output

func validateCrop(full []uint16, out *frame.Frame) error {
	g := &out.Geometry
	if int32(len(full)) != g.SensorPixels() {
		return fmt.Errorf("%d: sensor frame has %d samples, want %dx%d: %w",
			out.ID, len(full), g.SensorWidth, g.SensorHeight, frame.ErrSizeMismatch)
	}
	if int32(len(out.Raw)) != g.ActivePixels() {
		return fmt.Errorf("%d: raw buffer has %d samples, want %d: %w", out.ID, len(out.Raw), g.ActivePixels(), frame.ErrSizeMismatch)
	}
	return nil
}

func validateDemosaic(f *frame.Frame, refs *References, exp Exposures) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	if refs == nil {
		return fmt.Errorf("%d: no references: %w", f.ID, frame.ErrSizeMismatch)
	}
	if len(f.Cube) != len(f.Raw) {
		return fmt.Errorf("%d: cube %d and raw %d samples: %w", f.ID, len(f.Cube), len(f.Raw), frame.ErrSizeMismatch)
	}
	return refs.checkFrame(f)
}

func validateUnmix(out, in *frame.Frame, coeffs []float32, bands int32) error {
	if bands <= 0 {
		return fmt.Errorf("%d bands: %w", bands, frame.ErrGeometry)
	}
	if len(out.Cube) != len(in.Cube) {
		return fmt.Errorf("%d: output cube %d and input cube %d: %w", in.ID, len(out.Cube), len(in.Cube), frame.ErrIndexOutOfRange)
	}
	if int32(len(coeffs)) != bands*bands {
		return fmt.Errorf("%d coefficients for %d bands: %w", len(coeffs), bands, frame.ErrSizeMismatch)
	}
	if len(in.Cube)%int(bands) != 0 {
		return fmt.Errorf("%d: cube of %d not divisible into %d bands: %w", in.ID, len(in.Cube), bands, frame.ErrSizeMismatch)
	}
	return nil
}

func validateColour(f *frame.Frame, band int32) error {
	bands := f.Geometry.NumberOfBands()
	if band < 0 || band >= bands {
		return fmt.Errorf("%d: band %d of %d: %w", f.ID, band, bands, frame.ErrIndexOutOfRange)
	}
	if int32(len(f.Cube)) != f.Geometry.ActivePixels() {
		return fmt.Errorf("%d: cube has %d samples, want %d: %w", f.ID, len(f.Cube), f.Geometry.ActivePixels(), frame.ErrSizeMismatch)
	}
	return nil
}

// Spatial size of a geometry, zero when the mosaic pattern is unset
func spatialSize(g *frame.Geometry) (w, h int) {
	if g.PatternWidth <= 0 || g.PatternHeight <= 0 {
		return 0, 0
	}
	return int(g.SpatialWidth()), int(g.SpatialHeight())
}
