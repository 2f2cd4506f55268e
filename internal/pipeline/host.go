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
	"runtime"

	"github.com/hyperlight-cam/hyperlight/internal"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

// Runs all stages on the host CPU, parallelized by rows
type HostStrategy struct {
	MaxThreads int
}

// Creates a host strategy. Non-positive thread counts select GOMAXPROCS
func NewHostStrategy(maxThreads int) *HostStrategy {
	if maxThreads <= 0 {
		maxThreads = runtime.GOMAXPROCS(0)
	}
	return &HostStrategy{MaxThreads: maxThreads}
}

func (s *HostStrategy) Name() string { return "host" }

func (s *HostStrategy) Crop(full []uint16, out *frame.Frame) error {
	if err := validateCrop(full, out); err != nil {
		return err
	}
	g := &out.Geometry
	aw, sw := int(g.ActiveWidth), int(g.SensorWidth)
	offX, offY := int(g.OffsetX), int(g.OffsetY)
	parallelFor(int(g.ActiveHeight), s.MaxThreads, func(start, end int) {
		for y := start; y < end; y++ {
			src := (y+offY)*sw + offX
			copy(out.Raw[y*aw:(y+1)*aw], full[src:src+aw])
		}
	})
	return nil
}

func (s *HostStrategy) DemosaicCorrect(f *frame.Frame, refs *References, exp Exposures) error {
	if err := validateDemosaic(f, refs, exp); err != nil {
		return err
	}
	timeRatio := exp.TimeRatio()
	darkObject, darkWhite, white := refs.raw(KindDarkObject), refs.raw(KindDarkWhite), refs.raw(KindWhite)

	g := &f.Geometry
	aw, pw, ph := int(g.ActiveWidth), int(g.PatternWidth), int(g.PatternHeight)
	sw, bands := int(g.SpatialWidth()), int(g.NumberOfBands())
	parallelFor(int(g.SpatialHeight()), s.MaxThreads, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < sw; x++ {
				c := (x + y*sw) * bands
				for by := 0; by < ph; by++ {
					row := (y*ph+by)*aw + x*pw
					for bx := 0; bx < pw; bx++ {
						i := row + bx
						f.Cube[c+by*pw+bx] = reflectance(f.Raw[i], darkObject[i], darkWhite[i], white[i], timeRatio)
					}
				}
			}
		}
	})
	return nil
}

// Reflectance of one sample on the [0,1023] scale. Pixels where the white reference
// does not exceed its dark reference yield zero
func reflectance(raw, darkObject, darkWhite, white uint16, timeRatio float32) uint16 {
	object := int32(raw) - int32(darkObject)
	if object < 0 {
		object = 0
	}
	span := int32(white) - int32(darkWhite)
	if span <= 0 {
		return 0
	}
	ratio := float32(float32(object)/float32(span)) * timeRatio
	value := float32(ratio * frame.PixelMax)
	if value > frame.PixelMax {
		return frame.PixelMax
	}
	return uint16(value)
}

func (s *HostStrategy) Unmix(out, in *frame.Frame, coeffs []float32, bands int32) error {
	if err := validateUnmix(out, in, coeffs, bands); err != nil {
		return err
	}
	nb := int(bands)
	rowLen := nb
	if w, _ := spatialSize(&in.Geometry); w > 0 && len(in.Cube)%(w*nb) == 0 {
		rowLen = w * nb
	}
	rows := len(in.Cube) / rowLen
	parallelFor(rows, s.MaxThreads, func(start, end int) {
		// snapshot each row, so out may alias in
		row := internal.GetArrayOfUint16FromPool(rowLen)
		defer internal.PutArrayOfUint16IntoPool(row)
		row = row[:rowLen]
		for y := start; y < end; y++ {
			copy(row, in.Cube[y*rowLen:(y+1)*rowLen])
			for p := 0; p < rowLen; p += nb {
				unmixPixel(out.Cube[y*rowLen+p:y*rowLen+p+nb], row[p:p+nb], coeffs)
			}
		}
	})
	return nil
}

// Multiplies the band vector src with the coefficient matrix into dst, accumulating in index order
func unmixPixel(dst, src []uint16, coeffs []float32) {
	bands := len(src)
	for b := range dst {
		c := coeffs[b*bands : (b+1)*bands]
		var acc float32
		for i, v := range src {
			acc += float32(c[i] * float32(v))
		}
		dst[b] = clampPixel(acc)
	}
}

// Clamps to [0,1023] and truncates. NaN yields zero
func clampPixel(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v > frame.PixelMax {
		return frame.PixelMax
	}
	return uint16(v)
}

func (s *HostStrategy) ColourMap(f *frame.Frame, band int32) ([]uint16, error) {
	if err := validateColour(f, band); err != nil {
		return nil, err
	}
	g := &f.Geometry
	sw, bands := int(g.SpatialWidth()), int(g.NumberOfBands())
	rgb := make([]uint16, int(g.SpatialPixels())*frame.ColoursPerPixel)
	parallelFor(int(g.SpatialHeight()), s.MaxThreads, func(start, end int) {
		for p := start * sw; p < end*sw; p++ {
			defaultGradient.Colour(f.Cube[p*bands+int(band)], rgb[p*frame.ColoursPerPixel:])
		}
	})
	return rgb, nil
}
