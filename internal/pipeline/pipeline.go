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

	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/hyperlight-cam/hyperlight/internal/stats"
)

// The pipeline owns the sensor geometry, the reference frames, the exposure times and the
// coefficient matrix, and runs frames through the four stages with a given strategy.
// Frames are processed one at a time. The pipeline does no locking, callers serialize.
type Pipeline struct {
	geometry  frame.Geometry
	refs      *References
	exposures Exposures
	coeffs    []float32
	log       io.Writer
	nextID    int
}

// Functional options for New
type Option func(p *Pipeline)

// Logs reference updates to the given writer
func WithLog(w io.Writer) Option { return func(p *Pipeline) { p.log = w } }

// Creates a pipeline for a 10-bit mosaic sensor. References must match the active area
func New(g frame.Geometry, refs *References, exp Exposures, opts ...Option) (*Pipeline, error) {
	if err := g.ValidateForProcessing(); err != nil {
		return nil, err
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if refs == nil {
		return nil, fmt.Errorf("missing references: %w", frame.ErrSizeMismatch)
	}
	probe := &frame.Frame{Geometry: g, Raw: make([]uint16, g.ActivePixels()), Cube: make([]uint16, g.ActivePixels())}
	if err := refs.checkFrame(probe); err != nil {
		return nil, err
	}
	p := &Pipeline{
		geometry:  g.Clone(),
		refs:      refs,
		exposures: exp,
	}
	p.coeffs = p.geometry.Coefficients
	for _, o := range opts {
		o(p)
	}
	for k := KindDarkObject; k <= KindWhite; k++ {
		p.logReference(k)
	}
	return p, nil
}

func (p *Pipeline) Geometry() frame.Geometry { return p.geometry.Clone() }
func (p *Pipeline) References() *References  { return p.refs }
func (p *Pipeline) Exposures() Exposures     { return p.exposures }

// Returns a copy of the coefficient matrix
func (p *Pipeline) Coefficients() []float32 { return append([]float32(nil), p.coeffs...) }

func (p *Pipeline) SetWhiteReference(f *frame.Frame) error { return p.SetReference(KindWhite, f) }

func (p *Pipeline) SetDarkReferenceObject(f *frame.Frame) error {
	return p.SetReference(KindDarkObject, f)
}

func (p *Pipeline) SetDarkReferenceWhite(f *frame.Frame) error {
	return p.SetReference(KindDarkWhite, f)
}

// Replaces a reference frame. Device copies held by strategies become stale and are
// refreshed on their next use
func (p *Pipeline) SetReference(k Kind, f *frame.Frame) error {
	if int32(len(f.Raw)) != p.geometry.ActivePixels() || !p.geometry.SameShape(&f.Geometry) {
		return fmt.Errorf("%d: %s reference %s, want %dx%d: %w", f.ID, k, f.DimensionsToString(),
			p.geometry.ActiveWidth, p.geometry.ActiveHeight, frame.ErrSizeMismatch)
	}
	if err := p.refs.Set(k, f); err != nil {
		return err
	}
	p.logReference(k)
	return nil
}

func (p *Pipeline) SetExposures(exp Exposures) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	p.exposures = exp
	return nil
}

// Replaces the coefficient matrix, which must hold bands x bands values
func (p *Pipeline) SetCoefficients(coeffs []float32) error {
	bands := p.geometry.NumberOfBands()
	if int32(len(coeffs)) != bands*bands {
		return fmt.Errorf("%d coefficients for %d bands: %w", len(coeffs), bands, frame.ErrSizeMismatch)
	}
	p.coeffs = append([]float32(nil), coeffs...)
	p.geometry.Coefficients = p.coeffs
	return nil
}

func (p *Pipeline) logReference(k Kind) {
	if p.log == nil {
		return
	}
	f := p.refs.frames[k]
	fmt.Fprintf(p.log, "%d: %s reference %s with %v\n", f.ID, k, f.DimensionsToString(), stats.NewStats(f.Raw))
	if k == KindDarkObject || k == KindDarkWhite {
		if mode, sigma, err := stats.NoiseFromHistogram(f.Raw); err == nil {
			fmt.Fprintf(p.log, "%d: %s reference noise mode %.4g sigma %.4g\n", f.ID, k, mode, sigma)
		}
	}
	if n, err := stats.DegenerateSpan(p.refs.raw(KindWhite), p.refs.raw(KindDarkWhite)); err == nil && n > 0 {
		fmt.Fprintf(p.log, "%d: WARNING %d pixels with white not above dark white, rendered as zero\n", f.ID, n)
	}
}

// Creates an empty frame for this pipeline's geometry, with a sequential ID
func (p *Pipeline) NewFrame() *frame.Frame {
	f, _ := frame.NewFrame(p.geometry) // validated on construction
	f.ID = p.nextID
	p.nextID++
	return f
}

// Crops a full sensor frame into a new frame
func (p *Pipeline) Crop(full []uint16, s Strategy) (*frame.Frame, error) {
	f := p.NewFrame()
	if err := s.Crop(full, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Fills the cube of the frame with the corrected reflectance
func (p *Pipeline) DemosaicCorrect(f *frame.Frame, s Strategy) error {
	return s.DemosaicCorrect(f, p.refs, p.exposures)
}

// Unmixes the cube of in into out, which may be in
func (p *Pipeline) Unmix(out, in *frame.Frame, s Strategy) error {
	return s.Unmix(out, in, p.coeffs, p.geometry.NumberOfBands())
}

// Renders one band of the cube
func (p *Pipeline) ColourMap(f *frame.Frame, band int32, s Strategy) (*frame.RGB16, error) {
	rgb, err := s.ColourMap(f, band)
	if err != nil {
		return nil, err
	}
	return frame.NewRGB16(p.geometry.SpatialWidth(), p.geometry.SpatialHeight(), rgb)
}

// Result of processing one frame
type Result struct {
	Frame *frame.Frame // Raw active area, and the unmixed cube
	Band  int32        // Rendered band
	RGB   *frame.RGB16 // Colour rendering of the band
}

// Runs a full sensor frame through all four stages and renders the given band
func (p *Pipeline) Process(full []uint16, band int32, s Strategy) (*Result, error) {
	if band < 0 || band >= p.geometry.NumberOfBands() {
		return nil, fmt.Errorf("band %d of %d: %w", band, p.geometry.NumberOfBands(), frame.ErrIndexOutOfRange)
	}
	f, err := p.Crop(full, s)
	if err != nil {
		return nil, err
	}
	return p.ProcessFrame(f, band, s)
}

// Runs an already cropped frame through the remaining stages and renders the given band
func (p *Pipeline) ProcessFrame(f *frame.Frame, band int32, s Strategy) (*Result, error) {
	if band < 0 || band >= p.geometry.NumberOfBands() {
		return nil, fmt.Errorf("%d: band %d of %d: %w", f.ID, band, p.geometry.NumberOfBands(), frame.ErrIndexOutOfRange)
	}
	if err := p.DemosaicCorrect(f, s); err != nil {
		return nil, err
	}
	if err := p.Unmix(f, f, s); err != nil {
		return nil, err
	}
	rgb, err := p.ColourMap(f, band, s)
	if err != nil {
		return nil, err
	}
	return &Result{Frame: f, Band: band, RGB: rgb}, nil
}
