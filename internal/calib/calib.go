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

package calib

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"gonum.org/v1/gonum/mat"
)

// Name of the correction matrix used unless configured otherwise
const DefaultMatrixName = "hsi_675-975"

var ErrCalibration = errors.New("invalid calibration file")

// Document structure of the sensor calibration file. Scalars are kept as strings
// so missing elements can be told apart from zeros
type calibrationXML struct {
	XMLName    xml.Name              `xml:"sensor_calibration"`
	SensorInfo *sensorInfoXML        `xml:"sensor_info"`
	FilterZone []filterZoneXML       `xml:"filter_info>filter_zones>filter_zone"`
	Matrices   []correctionMatrixXML `xml:"system_info>spectral_correction_info>correction_matrices>correction_matrix"`
}

type sensorInfoXML struct {
	Width    *string `xml:"width"`
	Height   *string `xml:"height"`
	InputBPP *string `xml:"input_bpp"`
}

type filterZoneXML struct {
	Layout        *string        `xml:"layout,attr"`
	PatternWidth  *string        `xml:"pattern_width"`
	PatternHeight *string        `xml:"pattern_height"`
	FilterArea    *filterAreaXML `xml:"filter_area"`
}

type filterAreaXML struct {
	OffsetX *string `xml:"offset_x"`
	OffsetY *string `xml:"offset_y"`
	Width   *string `xml:"width"`
	Height  *string `xml:"height"`
}

type correctionMatrixXML struct {
	Name         *string   `xml:"name"`
	Coefficients []*string `xml:"virtual_bands>virtual_band>coefficients"`
}

// Loads the sensor geometry and the named correction matrix from a calibration file.
// An empty matrix name selects DefaultMatrixName
func Load(fileName, matrixName string) (frame.Geometry, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return frame.Geometry{}, err
	}
	defer file.Close()
	g, err := Parse(bufio.NewReader(file), matrixName)
	if err != nil {
		return g, fmt.Errorf("%s: %w", fileName, err)
	}
	return g, nil
}

// Parses the sensor geometry and the named correction matrix from calibration XML.
// The returned geometry is validated, but may still have a non-mosaic layout
func Parse(r io.Reader, matrixName string) (g frame.Geometry, err error) {
	if matrixName == "" {
		matrixName = DefaultMatrixName
	}
	var doc calibrationXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return g, fmt.Errorf("%v: %w", err, ErrCalibration)
	}

	if doc.SensorInfo == nil {
		return g, fmt.Errorf("sensor_info not found: %w", ErrCalibration)
	}
	p := intParser{}
	g.SensorWidth = p.parse("sensor_info/width", doc.SensorInfo.Width)
	g.SensorHeight = p.parse("sensor_info/height", doc.SensorInfo.Height)
	g.BitsPerPixel = p.parse("sensor_info/input_bpp", doc.SensorInfo.InputBPP)

	if len(doc.FilterZone) == 0 {
		return g, fmt.Errorf("filter_zone not found: %w", ErrCalibration)
	}
	zone := doc.FilterZone[0]
	if zone.Layout == nil {
		return g, fmt.Errorf("filter_zone layout not found: %w", ErrCalibration)
	}
	g.Layout = frame.ParseLayout(*zone.Layout)
	g.PatternWidth = p.parse("filter_zone/pattern_width", zone.PatternWidth)
	g.PatternHeight = p.parse("filter_zone/pattern_height", zone.PatternHeight)
	if zone.FilterArea == nil {
		return g, fmt.Errorf("filter_area not found: %w", ErrCalibration)
	}
	g.OffsetX = p.parse("filter_area/offset_x", zone.FilterArea.OffsetX)
	g.OffsetY = p.parse("filter_area/offset_y", zone.FilterArea.OffsetY)
	g.ActiveWidth = p.parse("filter_area/width", zone.FilterArea.Width)
	g.ActiveHeight = p.parse("filter_area/height", zone.FilterArea.Height)
	if p.err != nil {
		return g, p.err
	}

	found := false
	for _, m := range doc.Matrices {
		if m.Name == nil {
			return g, fmt.Errorf("correction_matrix without name: %w", ErrCalibration)
		}
		if strings.TrimSpace(*m.Name) != matrixName {
			continue
		}
		found = true
		for i, c := range m.Coefficients {
			if c == nil {
				return g, fmt.Errorf("virtual band %d without coefficients: %w", i, ErrCalibration)
			}
			row, err := ParseFloatList(*c)
			if err != nil {
				return g, fmt.Errorf("virtual band %d: %w", i, err)
			}
			g.Coefficients = append(g.Coefficients, row...)
		}
		break
	}
	if !found || len(g.Coefficients) == 0 {
		return g, fmt.Errorf("no coefficients for correction matrix %s: %w", matrixName, ErrCalibration)
	}

	if err := g.Validate(); err != nil {
		return g, err
	}
	return g, nil
}

// Parses named integer elements, remembering the first error
type intParser struct {
	err error
}

func (p *intParser) parse(name string, s *string) int32 {
	if p.err != nil {
		return 0
	}
	if s == nil {
		p.err = fmt.Errorf("%s not found: %w", name, ErrCalibration)
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 32)
	if err != nil {
		p.err = fmt.Errorf("%s: %v: %w", name, err, ErrCalibration)
		return 0
	}
	return int32(v)
}

// Parses a list of floats separated by a comma and a space, as in "0.1, -2e-3, 4"
func ParseFloatList(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, c := range s {
		if !(c == ' ' || c == ',' || c == '.' || c == '-' || c == 'e' || (c >= '0' && c <= '9')) {
			return nil, fmt.Errorf("invalid character %q in %q: %w", c, s, ErrCalibration)
		}
	}
	parts := strings.Split(s, ",")
	res := make([]float32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("list %q: %v: %w", s, err, ErrCalibration)
		}
		res = append(res, float32(v))
	}
	return res, nil
}

// Returns the 2-norm condition number of the bands x bands correction matrix.
// Large values mean unmixing amplifies sensor noise, +Inf means the matrix is singular
func Condition(coeffs []float32, bands int32) (float64, error) {
	n := int(bands)
	if n <= 0 || len(coeffs) != n*n {
		return 0, fmt.Errorf("%d coefficients for %d bands: %w", len(coeffs), bands, frame.ErrSizeMismatch)
	}
	data := make([]float64, len(coeffs))
	for i, c := range coeffs {
		data[i] = float64(c)
	}
	return mat.Cond(mat.NewDense(n, n, data), 2), nil
}
