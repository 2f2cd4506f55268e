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
	"github.com/hyperlight-cam/hyperlight/internal/accel"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

// Kernel names, one program each
const (
	KernelOffsetCorrection         = "OffsetCorrection"
	KernelCubeReflectionCorrection = "ConvertToCubeAndReflectionCorrection"
	KernelSpectralCorrection       = "SpectralCorrection"
	KernelBandColourmap            = "GetOneBandAndColourmap"
)

func init() {
	accel.RegisterKernel(KernelOffsetCorrection, 7, offsetCorrectionKernel)
	accel.RegisterKernel(KernelCubeReflectionCorrection, 9, cubeReflectionKernel)
	accel.RegisterKernel(KernelSpectralCorrection, 4, spectralCorrectionKernel)
	accel.RegisterKernel(KernelBandColourmap, 5, bandColourmapKernel)
}

// Args: full (read), raw (write), sensorWidth, offsetX, offsetY, activeWidth, activeHeight.
// Work grid: sensorWidth x sensorHeight
func offsetCorrectionKernel(args accel.Args) (accel.Binding, error) {
	full, err := args.Uint16(0, accel.AccessRead)
	if err != nil {
		return accel.Binding{}, err
	}
	raw, err := args.Uint16(1, accel.AccessWrite)
	if err != nil {
		return accel.Binding{}, err
	}
	var ints [5]int32
	for i := range ints {
		if ints[i], err = args.Int32(2 + i); err != nil {
			return accel.Binding{}, err
		}
	}
	sensorWidth, offX, offY, aw, ah := int(ints[0]), int(ints[1]), int(ints[2]), int(ints[3]), int(ints[4])
	return accel.Binding{Run: func(item *accel.WorkItem) {
		x, y := item.Global[0]-offX, item.Global[1]-offY
		if x < 0 || y < 0 || x >= aw || y >= ah {
			return
		}
		raw[x+aw*y] = full[item.Global[0]+sensorWidth*item.Global[1]]
	}}, nil
}

// Args: raw, darkObject, darkWhite, white (read), cube (write), activeWidth, patternWidth,
// patternHeight, scale. Scale is the exposure time ratio times 1023.
// Work grid: spatialWidth x spatialHeight
func cubeReflectionKernel(args accel.Args) (accel.Binding, error) {
	var in [4][]uint16
	var err error
	for i := range in {
		if in[i], err = args.Uint16(i, accel.AccessRead); err != nil {
			return accel.Binding{}, err
		}
	}
	cube, err := args.Uint16(4, accel.AccessWrite)
	if err != nil {
		return accel.Binding{}, err
	}
	var ints [3]int32
	for i := range ints {
		if ints[i], err = args.Int32(5 + i); err != nil {
			return accel.Binding{}, err
		}
	}
	scale, err := args.Float32(8)
	if err != nil {
		return accel.Binding{}, err
	}
	raw, darkObject, darkWhite, white := in[0], in[1], in[2], in[3]
	aw, pw, ph := int(ints[0]), int(ints[1]), int(ints[2])
	bands := pw * ph
	return accel.Binding{Run: func(item *accel.WorkItem) {
		x, y := item.Global[0], item.Global[1]
		c := (x + y*item.Size[0]) * bands
		for by := 0; by < ph; by++ {
			row := (y*ph+by)*aw + x*pw
			for bx := 0; bx < pw; bx++ {
				i := row + bx
				object := int32(raw[i]) - int32(darkObject[i])
				if object < 0 {
					object = 0
				}
				span := int32(white[i]) - int32(darkWhite[i])
				var v uint16
				if span > 0 {
					r := float32(float32(object)*scale) / float32(span)
					if r > frame.PixelMax {
						r = frame.PixelMax
					}
					v = uint16(r)
				}
				cube[c+by*pw+bx] = v
			}
		}
	}}, nil
}

// Args: in (read), out (write), coefficients, bands. In and out may be the same buffer,
// each work item snapshots its pixel block into private memory before writing.
// Work grid: spatialWidth x spatialHeight
func spectralCorrectionKernel(args accel.Args) (accel.Binding, error) {
	in, err := args.Uint16(0, accel.AccessRead)
	if err != nil {
		return accel.Binding{}, err
	}
	out, err := args.Uint16(1, accel.AccessWrite)
	if err != nil {
		return accel.Binding{}, err
	}
	coeffs, err := args.Float32Buffer(2, accel.AccessRead)
	if err != nil {
		return accel.Binding{}, err
	}
	b32, err := args.Int32(3)
	if err != nil {
		return accel.Binding{}, err
	}
	bands := int(b32)
	return accel.Binding{
		Private: bands,
		Run: func(item *accel.WorkItem) {
			p := (item.Global[0] + item.Global[1]*item.Size[0]) * bands
			block := item.Private[:bands]
			copy(block, in[p:p+bands])
			unmixPixel(out[p:p+bands], block, coeffs)
		},
	}, nil
}

// Args: cube (read), rgb (write), gradient stops, band, bands.
// Work grid: spatialWidth*spatialHeight
func bandColourmapKernel(args accel.Args) (accel.Binding, error) {
	cube, err := args.Uint16(0, accel.AccessRead)
	if err != nil {
		return accel.Binding{}, err
	}
	rgb, err := args.Uint16(1, accel.AccessWrite)
	if err != nil {
		return accel.Binding{}, err
	}
	stops, err := args.Float32Buffer(2, accel.AccessRead)
	if err != nil {
		return accel.Binding{}, err
	}
	band, err := args.Int32(3)
	if err != nil {
		return accel.Binding{}, err
	}
	bands, err := args.Int32(4)
	if err != nil {
		return accel.Binding{}, err
	}
	segs := len(stops)/frame.ColoursPerPixel - 1
	return accel.Binding{Run: func(item *accel.WorkItem) {
		p := item.Global[0]
		ratio := float32(cube[p*int(bands)+int(band)]) / frame.PixelMax
		if ratio > 1 {
			ratio = 1
		}
		pos := float32(ratio * float32(segs))
		k := int(pos)
		if k > segs-1 {
			k = segs - 1
		}
		t := pos - float32(k)
		s0 := stops[k*frame.ColoursPerPixel:]
		s1 := stops[(k+1)*frame.ColoursPerPixel:]
		o := rgb[p*frame.ColoursPerPixel:]
		for c := 0; c < frame.ColoursPerPixel; c++ {
			o[c] = uint16(s0[c] + float32(t*float32(s1[c]-s0[c])))
		}
	}}, nil
}
