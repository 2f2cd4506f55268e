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
	"strings"
)

const (
	PixelMax        = 1023  // Ceiling of the 10-bit sensor samples
	ShortMax        = 65535 // Ceiling of 16-bit colour channels
	ColoursPerPixel = 3     // RGB output
	BytesPerPixel   = 2     // Raw dumps store one little-endian uint16 per sample
	SensorBits      = 10    // Only 10 bit sensors are supported
)

// Filter layout of the sensor as named in the calibration file
type Layout int32

const (
	LayoutNone Layout = iota
	LayoutMosaic
	LayoutTiled
	LayoutWedge
)

func ParseLayout(s string) Layout {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MOSAIC":
		return LayoutMosaic
	case "TILED":
		return LayoutTiled
	case "WEDGE":
		return LayoutWedge
	}
	return LayoutNone
}

func (l Layout) String() string {
	switch l {
	case LayoutMosaic:
		return "MOSAIC"
	case LayoutTiled:
		return "TILED"
	case LayoutWedge:
		return "WEDGE"
	}
	return "NONE"
}

// Sensor geometry and spectral correction coefficients, as read from the calibration.
// Spatial size and band count are derived from the active area and the mosaic pattern,
// and never stored separately.
type Geometry struct {
	Layout        Layout    `json:"layout"        yaml:"layout"`
	BitsPerPixel  int32     `json:"bitsPerPixel"  yaml:"bitsPerPixel"`
	SensorWidth   int32     `json:"sensorWidth"   yaml:"sensorWidth"`
	SensorHeight  int32     `json:"sensorHeight"  yaml:"sensorHeight"`
	OffsetX       int32     `json:"offsetX"       yaml:"offsetX"`
	OffsetY       int32     `json:"offsetY"       yaml:"offsetY"`
	ActiveWidth   int32     `json:"activeWidth"   yaml:"activeWidth"`
	ActiveHeight  int32     `json:"activeHeight"  yaml:"activeHeight"`
	PatternWidth  int32     `json:"patternWidth"  yaml:"patternWidth"`
	PatternHeight int32     `json:"patternHeight" yaml:"patternHeight"`
	Coefficients  []float32 `json:"coefficients"  yaml:"coefficients"` // NumberOfBands() x NumberOfBands(), row-major by output band
}

func (g *Geometry) SpatialWidth() int32  { return g.ActiveWidth / g.PatternWidth }
func (g *Geometry) SpatialHeight() int32 { return g.ActiveHeight / g.PatternHeight }
func (g *Geometry) NumberOfBands() int32 { return g.PatternWidth * g.PatternHeight }

// Number of samples in a full sensor frame
func (g *Geometry) SensorPixels() int32 { return g.SensorWidth * g.SensorHeight }

// Number of samples in the active area, which is also the cube length
func (g *Geometry) ActivePixels() int32 { return g.ActiveWidth * g.ActiveHeight }

// Number of spatial pixels, i.e. mosaic tiles in the active area
func (g *Geometry) SpatialPixels() int32 { return g.SpatialWidth() * g.SpatialHeight() }

// Validates the geometry invariants. Does not look at the layout or bit depth,
// use ValidateForProcessing for that.
func (g *Geometry) Validate() error {
	if g.PatternWidth <= 0 || g.PatternHeight <= 0 {
		return fmt.Errorf("pattern %dx%d: %w", g.PatternWidth, g.PatternHeight, ErrGeometry)
	}
	if g.ActiveWidth <= 0 || g.ActiveHeight <= 0 {
		return fmt.Errorf("active area %dx%d: %w", g.ActiveWidth, g.ActiveHeight, ErrGeometry)
	}
	if g.ActiveWidth%g.PatternWidth != 0 || g.ActiveHeight%g.PatternHeight != 0 {
		return fmt.Errorf("active area %dx%d not divisible by pattern %dx%d: %w",
			g.ActiveWidth, g.ActiveHeight, g.PatternWidth, g.PatternHeight, ErrGeometry)
	}
	if g.OffsetX < 0 || g.OffsetY < 0 ||
		g.OffsetX+g.ActiveWidth > g.SensorWidth || g.OffsetY+g.ActiveHeight > g.SensorHeight {
		return fmt.Errorf("active area %dx%d at (%d,%d) exceeds sensor %dx%d: %w",
			g.ActiveWidth, g.ActiveHeight, g.OffsetX, g.OffsetY, g.SensorWidth, g.SensorHeight, ErrGeometry)
	}
	bands := g.NumberOfBands()
	if int32(len(g.Coefficients)) != bands*bands {
		return fmt.Errorf("%d coefficients for %d bands, want %d: %w",
			len(g.Coefficients), bands, bands*bands, ErrSizeMismatch)
	}
	return nil
}

// Validates the geometry, and additionally requires a 10-bit mosaic sensor
func (g *Geometry) ValidateForProcessing() error {
	if g.Layout != LayoutMosaic {
		return fmt.Errorf("layout %s, want %s: %w", g.Layout, LayoutMosaic, ErrGeometry)
	}
	if g.BitsPerPixel != SensorBits {
		return fmt.Errorf("%d bits per pixel, want %d: %w", g.BitsPerPixel, SensorBits, ErrGeometry)
	}
	return g.Validate()
}

// Returns a deep copy, so frames never share the coefficient slice with the calibration
func (g Geometry) Clone() Geometry {
	g.Coefficients = append([]float32(nil), g.Coefficients...)
	return g
}

// Returns true if both geometries describe buffers of the same layout and size
func (g *Geometry) SameShape(o *Geometry) bool {
	return g.ActiveWidth == o.ActiveWidth && g.ActiveHeight == o.ActiveHeight &&
		g.PatternWidth == o.PatternWidth && g.PatternHeight == o.PatternHeight
}

func (g *Geometry) String() string {
	if g.PatternWidth <= 0 || g.PatternHeight <= 0 {
		return fmt.Sprintf("sensor %dx%d, active %dx%d at (%d,%d), pattern %dx%d",
			g.SensorWidth, g.SensorHeight, g.ActiveWidth, g.ActiveHeight, g.OffsetX, g.OffsetY,
			g.PatternWidth, g.PatternHeight)
	}
	return fmt.Sprintf("sensor %dx%d, active %dx%d at (%d,%d), pattern %dx%d, spatial %dx%d, %d bands",
		g.SensorWidth, g.SensorHeight, g.ActiveWidth, g.ActiveHeight, g.OffsetX, g.OffsetY,
		g.PatternWidth, g.PatternHeight, g.SpatialWidth(), g.SpatialHeight(), g.NumberOfBands())
}
