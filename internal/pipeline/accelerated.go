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
	"io"

	"github.com/hyperlight-cam/hyperlight/internal/accel"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

// Runs all stages on an accelerator device. Reference frames, coefficients and the
// gradient are kept in device buffers, and refreshed when their host versions change.
// Not safe for concurrent use.
type AccelStrategy struct {
	Device *accel.Device

	// Local work size of the unmixing kernel, nil for automatic. Must divide the spatial size
	UnmixLocal []int

	ctx    *accel.Context
	queue  *accel.Queue
	offset *accel.Kernel
	cube   *accel.Kernel
	unmix  *accel.Kernel
	colour *accel.Kernel
	stops  *accel.Buffer

	refsVersion uint64
	refs        [3]*accel.Buffer // Indexed by Kind

	coeffsHost []float32
	coeffs     *accel.Buffer
}

// Sets up the first device matching the filter and builds the four stage programs.
// Fails with an error wrapping accel.ErrAcceleratorInit. Logs the device if log is not nil
func NewAccelStrategy(filter accel.DeviceFilter, log io.Writer) (*AccelStrategy, error) {
	devices, err := accel.NewPlatform().Devices(filter)
	if err != nil {
		return nil, err
	}
	s := &AccelStrategy{Device: devices[0], ctx: accel.NewContext(devices[0])}
	s.queue = s.ctx.CreateQueue()

	kernels := []struct {
		name string
		dst  **accel.Kernel
	}{
		{KernelOffsetCorrection, &s.offset},
		{KernelCubeReflectionCorrection, &s.cube},
		{KernelSpectralCorrection, &s.unmix},
		{KernelBandColourmap, &s.colour},
	}
	for _, k := range kernels {
		p := s.ctx.CreateProgram(k.name)
		if err := p.Build(); err != nil {
			return nil, err
		}
		if *k.dst, err = p.CreateKernel(k.name); err != nil {
			return nil, fmt.Errorf("%v: %w", err, accel.ErrAcceleratorInit)
		}
	}

	stops := defaultGradient.Stops()
	s.stops, err = s.ctx.CreateBufferFloat32(accel.MemReadOnly|accel.MemCopyHostPtr|accel.MemHostNoAccess, len(stops), stops)
	if err != nil {
		return nil, fmt.Errorf("gradient buffer: %v: %w", err, accel.ErrAcceleratorInit)
	}
	if log != nil {
		fmt.Fprintf(log, "Accelerator device %v\n", s.Device)
	}
	return s, nil
}

func (s *AccelStrategy) Name() string { return "accel" }

// Releases all device buffers
func (s *AccelStrategy) Close() {
	s.Invalidate()
	s.coeffs.Release()
	s.coeffs, s.coeffsHost = nil, nil
	s.stops.Release()
}

// Drops the cached reference buffers, which are recreated on next use
func (s *AccelStrategy) Invalidate() {
	for i, b := range s.refs {
		b.Release()
		s.refs[i] = nil
	}
	s.refsVersion = 0
}

func (s *AccelStrategy) Crop(full []uint16, out *frame.Frame) error {
	if err := validateCrop(full, out); err != nil {
		return err
	}
	g := &out.Geometry
	in, err := s.ctx.CreateBuffer(accel.MemReadOnly|accel.MemUseHostPtr, len(full), full)
	if err != nil {
		return err
	}
	defer in.Release()
	res, err := s.ctx.CreateBuffer(accel.MemWriteOnly|accel.MemHostReadOnly, len(out.Raw), nil)
	if err != nil {
		return err
	}
	defer res.Release()

	args := []interface{}{in, res, g.SensorWidth, g.OffsetX, g.OffsetY, g.ActiveWidth, g.ActiveHeight}
	if err := setArgs(s.offset, args); err != nil {
		return err
	}
	if err := s.queue.EnqueueNDRange(s.offset, []int{int(g.SensorWidth), int(g.SensorHeight)}, nil); err != nil {
		return err
	}
	return s.queue.EnqueueReadBuffer(res, out.Raw)
}

func (s *AccelStrategy) DemosaicCorrect(f *frame.Frame, refs *References, exp Exposures) error {
	if err := validateDemosaic(f, refs, exp); err != nil {
		return err
	}
	if err := s.uploadReferences(refs); err != nil {
		return err
	}
	g := &f.Geometry
	raw, err := s.ctx.CreateBuffer(accel.MemReadOnly|accel.MemUseHostPtr, len(f.Raw), f.Raw)
	if err != nil {
		return err
	}
	defer raw.Release()
	cube, err := s.ctx.CreateBuffer(accel.MemWriteOnly|accel.MemHostReadOnly, len(f.Cube), nil)
	if err != nil {
		return err
	}
	defer cube.Release()

	scale := float32(exp.TimeRatio() * frame.PixelMax)
	args := []interface{}{raw, s.refs[KindDarkObject], s.refs[KindDarkWhite], s.refs[KindWhite], cube,
		g.ActiveWidth, g.PatternWidth, g.PatternHeight, scale}
	if err := setArgs(s.cube, args); err != nil {
		return err
	}
	if err := s.queue.EnqueueNDRange(s.cube, []int{int(g.SpatialWidth()), int(g.SpatialHeight())}, nil); err != nil {
		return err
	}
	return s.queue.EnqueueReadBuffer(cube, f.Cube)
}

// Copies the references to the device, unless the cached copies are current
func (s *AccelStrategy) uploadReferences(refs *References) error {
	if s.refsVersion == refs.Version() && s.refs[KindWhite] != nil {
		return nil
	}
	s.Invalidate()
	for k := KindDarkObject; k <= KindWhite; k++ {
		raw := refs.raw(k)
		b, err := s.ctx.CreateBuffer(accel.MemReadOnly|accel.MemCopyHostPtr|accel.MemHostNoAccess, len(raw), raw)
		if err != nil {
			s.Invalidate()
			return fmt.Errorf("%s reference: %w", k, err)
		}
		s.refs[k] = b
	}
	s.refsVersion = refs.Version()
	return nil
}

// Returns the version the cached reference buffers were uploaded from, or zero
func (s *AccelStrategy) ReferencesVersion() uint64 { return s.refsVersion }

func (s *AccelStrategy) Unmix(out, in *frame.Frame, coeffs []float32, bands int32) error {
	if err := validateUnmix(out, in, coeffs, bands); err != nil {
		return err
	}
	if len(in.Cube) == 0 {
		return nil
	}
	if err := s.uploadCoefficients(coeffs); err != nil {
		return err
	}

	inBuf, err := s.ctx.CreateBuffer(accel.MemReadWrite|accel.MemCopyHostPtr, len(in.Cube), in.Cube)
	if err != nil {
		return err
	}
	defer inBuf.Release()

	// unmix in place on the device when the host buffers alias
	outBuf := inBuf
	if &out.Cube[0] != &in.Cube[0] {
		if outBuf, err = s.ctx.CreateBuffer(accel.MemWriteOnly|accel.MemHostReadOnly, len(out.Cube), nil); err != nil {
			return err
		}
		defer outBuf.Release()
	}

	if err := setArgs(s.unmix, []interface{}{inBuf, outBuf, s.coeffs, bands}); err != nil {
		return err
	}
	// the 2D grid needs the cube to match the geometry, other cubes run as one row of pixels
	global, local := []int{len(in.Cube) / int(bands)}, []int(nil)
	if w, h := spatialSize(&in.Geometry); w > 0 && h > 0 && len(in.Cube) == w*h*int(bands) {
		global, local = []int{w, h}, s.UnmixLocal
	}
	if err := s.queue.EnqueueNDRange(s.unmix, global, local); err != nil {
		return err
	}
	return s.queue.EnqueueReadBuffer(outBuf, out.Cube)
}

// Copies the coefficients to the device, unless the cached copy holds the same values
func (s *AccelStrategy) uploadCoefficients(coeffs []float32) error {
	if s.coeffs != nil && len(s.coeffsHost) == len(coeffs) {
		same := true
		for i, c := range coeffs {
			if c != s.coeffsHost[i] {
				same = false
				break
			}
		}
		if same {
			return nil
		}
		copy(s.coeffsHost, coeffs)
		return s.queue.EnqueueWriteBufferFloat32(s.coeffs, coeffs)
	}
	s.coeffs.Release()
	b, err := s.ctx.CreateBufferFloat32(accel.MemReadOnly|accel.MemCopyHostPtr|accel.MemHostWriteOnly, len(coeffs), coeffs)
	if err != nil {
		s.coeffs, s.coeffsHost = nil, nil
		return fmt.Errorf("coefficients: %w", err)
	}
	s.coeffs, s.coeffsHost = b, append([]float32(nil), coeffs...)
	return nil
}

func (s *AccelStrategy) ColourMap(f *frame.Frame, band int32) ([]uint16, error) {
	if err := validateColour(f, band); err != nil {
		return nil, err
	}
	g := &f.Geometry
	cube, err := s.ctx.CreateBuffer(accel.MemReadOnly|accel.MemUseHostPtr, len(f.Cube), f.Cube)
	if err != nil {
		return nil, err
	}
	defer cube.Release()
	n := int(g.SpatialPixels())
	rgb, err := s.ctx.CreateBuffer(accel.MemWriteOnly|accel.MemHostReadOnly, n*frame.ColoursPerPixel, nil)
	if err != nil {
		return nil, err
	}
	defer rgb.Release()

	if err := setArgs(s.colour, []interface{}{cube, rgb, s.stops, band, g.NumberOfBands()}); err != nil {
		return nil, err
	}
	if err := s.queue.EnqueueNDRange(s.colour, []int{n}, nil); err != nil {
		return nil, err
	}
	res := make([]uint16, n*frame.ColoursPerPixel)
	if err := s.queue.EnqueueReadBuffer(rgb, res); err != nil {
		return nil, err
	}
	return res, nil
}

func setArgs(k *accel.Kernel, args []interface{}) error {
	for i, a := range args {
		if err := k.SetArg(i, a); err != nil {
			return err
		}
	}
	return nil
}
