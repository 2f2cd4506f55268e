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
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

const testXML = `<?xml version="1.0"?>
<sensor_calibration>
  <sensor_info>
    <width>9</width>
    <height>5</height>
    <input_bpp>10</input_bpp>
  </sensor_info>
  <filter_info>
    <filter_zones>
      <filter_zone layout="MOSAIC">
        <pattern_width>2</pattern_width>
        <pattern_height>2</pattern_height>
        <filter_area>
          <offset_x>2</offset_x>
          <offset_y>1</offset_y>
          <width>6</width>
          <height>4</height>
        </filter_area>
      </filter_zone>
    </filter_zones>
  </filter_info>
  <system_info>
    <spectral_correction_info>
      <correction_matrices>
        <correction_matrix>
          <name>hsi_600-875</name>
          <virtual_bands>
            <virtual_band><coefficients>9, 9, 9, 9</coefficients></virtual_band>
          </virtual_bands>
        </correction_matrix>
        <correction_matrix>
          <name>hsi_675-975</name>
          <virtual_bands>
            <virtual_band><coefficients>0.1, 0.2, 0.3, 0.4</coefficients></virtual_band>
            <virtual_band><coefficients>0.5, 0.6, 0.7, 0.8</coefficients></virtual_band>
            <virtual_band><coefficients>0.9, 0.10, 0.11, 0.12</coefficients></virtual_band>
            <virtual_band><coefficients>0.13, 0.14, 0.15, -1.6e-1</coefficients></virtual_band>
          </virtual_bands>
        </correction_matrix>
      </correction_matrices>
    </spectral_correction_info>
  </system_info>
</sensor_calibration>`

func TestParse(t *testing.T) {
	g, err := Parse(strings.NewReader(testXML), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := g.ValidateForProcessing(); err != nil {
		t.Errorf("ValidateForProcessing: %v", err)
	}
	if g.SensorWidth != 9 || g.SensorHeight != 5 || g.BitsPerPixel != 10 {
		t.Errorf("sensor %dx%d %d bpp; want 9x5 10 bpp", g.SensorWidth, g.SensorHeight, g.BitsPerPixel)
	}
	if g.OffsetX != 2 || g.OffsetY != 1 || g.ActiveWidth != 6 || g.ActiveHeight != 4 {
		t.Errorf("active %dx%d at (%d,%d); want 6x4 at (2,1)", g.ActiveWidth, g.ActiveHeight, g.OffsetX, g.OffsetY)
	}
	if g.Layout != frame.LayoutMosaic || g.NumberOfBands() != 4 {
		t.Errorf("layout %v with %d bands; want MOSAIC with 4", g.Layout, g.NumberOfBands())
	}
	if len(g.Coefficients) != 16 || g.Coefficients[4] != 0.5 || g.Coefficients[15] != -0.16 {
		t.Errorf("coefficients %v; want 0.1 ... -0.16", g.Coefficients)
	}

	_, err = Parse(strings.NewReader(testXML), "hsi_600-875")
	if !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("other matrix err=%v; want ErrSizeMismatch for 4 coefficients", err)
	}
	if _, err := Parse(strings.NewReader(testXML), "unknown"); !errors.Is(err, ErrCalibration) {
		t.Errorf("unknown matrix err=%v; want ErrCalibration", err)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"missing width":  strings.Replace(testXML, "<width>9</width>", "", 1),
		"invalid height": strings.Replace(testXML, "<height>5</height>", "<height>five</height>", 1),
		"missing layout": strings.Replace(testXML, ` layout="MOSAIC"`, "", 1),
		"missing area":   strings.Replace(testXML, "<filter_area>", "<other_area>", 1),
		"truncated":      testXML[:200],
		"bad float":      strings.Replace(testXML, "0.5, 0.6", "0.5; 0.6", 1),
	}
	for name, doc := range cases {
		if name == "missing area" {
			doc = strings.Replace(doc, "</filter_area>", "</other_area>", 1)
		}
		if _, err := Parse(strings.NewReader(doc), ""); !errors.Is(err, ErrCalibration) {
			t.Errorf("%s: err=%v; want ErrCalibration", name, err)
		}
	}

	// zero pattern is a geometry error
	doc := strings.Replace(testXML, "<pattern_width>2</pattern_width>", "<pattern_width>0</pattern_width>", 1)
	if _, err := Parse(strings.NewReader(doc), ""); !errors.Is(err, frame.ErrGeometry) {
		t.Errorf("zero pattern err=%v; want ErrGeometry", err)
	}
}

func TestParseFloatList(t *testing.T) {
	v, err := ParseFloatList("1, -2.5, 3e-2")
	if err != nil || len(v) != 3 || v[0] != 1 || v[1] != -2.5 || v[2] != 0.03 {
		t.Errorf("ParseFloatList=%v,%v; want [1 -2.5 0.03]", v, err)
	}
	if v, err := ParseFloatList("  "); err != nil || len(v) != 0 {
		t.Errorf("empty list=%v,%v; want empty", v, err)
	}
	for _, s := range []string{"1, 2,", "1, x", "1,, 2"} {
		if _, err := ParseFloatList(s); !errors.Is(err, ErrCalibration) {
			t.Errorf("ParseFloatList(%q) err=%v; want ErrCalibration", s, err)
		}
	}
}

func TestLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "calibration.xml")
	if err := os.WriteFile(name, []byte(testXML), 0666); err != nil {
		t.Fatal(err)
	}
	g, err := Load(name, DefaultMatrixName)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.SpatialWidth() != 3 || g.SpatialHeight() != 2 {
		t.Errorf("spatial %dx%d; want 3x2", g.SpatialWidth(), g.SpatialHeight())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.xml"), ""); err == nil {
		t.Errorf("Load of missing file succeeded")
	}
}

func TestCondition(t *testing.T) {
	c, err := Condition([]float32{2, 0, 0, 0.5}, 2)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	if math.Abs(c-4) > 1e-9 {
		t.Errorf("cond=%g; want 4", c)
	}
	c, err = Condition([]float32{1, 2, 2, 4}, 2)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	if c < 1e12 {
		t.Errorf("cond=%g for singular matrix; want huge", c)
	}
	if _, err := Condition([]float32{1, 2, 3}, 2); !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("err=%v; want ErrSizeMismatch", err)
	}
}
