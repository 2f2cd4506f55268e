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

// Package stage wraps the pipeline stages as operators, for batch processing of
// recorded frames
package stage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/hyperlight-cam/hyperlight/internal/ops"
	"github.com/hyperlight-cam/hyperlight/internal/stats"
)

// Creates the standard processing sequence for cropped frames: reflectance cube,
// spectral correction, optional statistics, then colour rendering and raw snapshot if
// patterns are given
func NewOpProcess(band int32, colourPattern, snapshotPattern string, withStats bool) *ops.OpSequence {
	return ops.NewOpSequence(
		NewOpCube(true),
		NewOpUnmix(true),
		NewOpStats(withStats, band),
		NewOpColour(band, colourPattern),
		ops.NewOpSave(snapshotPattern, false),
	)
}

// Converts the raw active area into a reflectance cube, using the pipeline references
// and exposures. Takes one input, produces one output
type OpCube struct {
	ops.OpUnaryBase
}

var _ ops.Operator = (*OpCube)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCubeDefault() }) } // register the operator for JSON decoding

func NewOpCubeDefault() *OpCube { return NewOpCube(true) }

func NewOpCube(active bool) *OpCube {
	op := OpCube{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "cube", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCube) UnmarshalJSON(data []byte) error {
	type defaults OpCube
	def := defaults(*NewOpCubeDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpCube(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpCube) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	err = c.Locked(func() error {
		exp := c.Pipeline.Exposures()
		fmt.Fprintf(c.Log, "%d: Converting to %s cube with exposure ratio %d/%d using %s\n",
			f.ID, f.DimensionsToString(), exp.Object, exp.White, c.Strategy.Name())
		return c.Pipeline.DemosaicCorrect(f, c.Strategy)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Applies the spectral correction matrix to the cube in place. Takes one input, produces one output
type OpUnmix struct {
	ops.OpUnaryBase
}

var _ ops.Operator = (*OpUnmix)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpUnmixDefault() }) } // register the operator for JSON decoding

func NewOpUnmixDefault() *OpUnmix { return NewOpUnmix(true) }

func NewOpUnmix(active bool) *OpUnmix {
	op := OpUnmix{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "unmix", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpUnmix) UnmarshalJSON(data []byte) error {
	type defaults OpUnmix
	def := defaults(*NewOpUnmixDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpUnmix(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpUnmix) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	err = c.Locked(func() error {
		fmt.Fprintf(c.Log, "%d: Applying %d band spectral correction\n", f.ID, f.Geometry.NumberOfBands())
		return c.Pipeline.Unmix(f, f, c.Strategy)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Logs statistics of the raw frame and of one band of the cube. Takes one input, produces one output
type OpStats struct {
	ops.OpUnaryBase
	Band int32 `json:"band"`
}

var _ ops.Operator = (*OpStats)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatsDefault() }) } // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(true, 0) }

func NewOpStats(active bool, band int32) *OpStats {
	op := OpStats{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stats", Active: active}},
		Band:        band,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStatsDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpStats(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpStats) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	plane, err := f.Band(op.Band)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: Raw %v\n", f.ID, stats.NewStats(f.Raw))
	fmt.Fprintf(c.Log, "%d: Band %d %v\n", f.ID, op.Band, stats.NewStats(plane))
	return f, nil
}

// Renders one band of the cube with the colour gradient, and writes it as 16-bit TIFF
// under a given filename, with pattern expansion for %d based on the frame id.
// Takes one input, produces one output (the unchanged input)
type OpColour struct {
	ops.OpUnaryBase
	Band        int32  `json:"band"`
	FilePattern string `json:"filePattern"`
}

var _ ops.Operator = (*OpColour)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpColourDefault() }) } // register the operator for JSON decoding

func NewOpColourDefault() *OpColour { return NewOpColour(0, "") }

func NewOpColour(band int32, filePattern string) *OpColour {
	op := OpColour{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "colour", Active: filePattern != ""}},
		Band:        band,
		FilePattern: filePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpColour) UnmarshalJSON(data []byte) error {
	type defaults OpColour
	def := defaults(*NewOpColourDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpColour(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpColour) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	var rgb *frame.RGB16
	err = c.Locked(func() (err error) {
		rgb, err = c.Pipeline.ColourMap(f, op.Band, c.Strategy)
		return err
	})
	if err != nil {
		return nil, err
	}

	fileName := ops.ExpandPattern(op.FilePattern, f.ID)
	if c.Sandboxed && !ops.IsPathAllowed(fileName) {
		return nil, errors.New("Filename outside current directory tree, aborting")
	}
	fmt.Fprintf(c.Log, "%d: Writing band %d as %dx%d pixel 16-bit TIFF to %s\n", f.ID, op.Band, rgb.Width, rgb.Height, fileName)
	if err = rgb.WriteTIFF16ToFile(fileName); err != nil {
		return nil, fmt.Errorf("%d: Error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}
