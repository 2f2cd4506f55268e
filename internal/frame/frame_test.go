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
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/tiff"
)

func testGeometry() Geometry {
	return Geometry{
		Layout:        LayoutMosaic,
		BitsPerPixel:  10,
		SensorWidth:   9,
		SensorHeight:  5,
		OffsetX:       2,
		OffsetY:       1,
		ActiveWidth:   6,
		ActiveHeight:  4,
		PatternWidth:  2,
		PatternHeight: 2,
		Coefficients: []float32{
			0.1, 0.2, 0.3, 0.4,
			0.5, 0.6, 0.7, 0.8,
			0.9, 0.10, 0.11, 0.12,
			0.13, 0.14, 0.15, 0.16,
		},
	}
}

func TestGeometryDerived(t *testing.T) {
	g := testGeometry()
	if err := g.ValidateForProcessing(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if g.SpatialWidth() != 3 {
		t.Errorf("SpatialWidth()=%d; want 3", g.SpatialWidth())
	}
	if g.SpatialHeight() != 2 {
		t.Errorf("SpatialHeight()=%d; want 2", g.SpatialHeight())
	}
	if g.NumberOfBands() != g.PatternWidth*g.PatternHeight {
		t.Errorf("NumberOfBands()=%d; want %d", g.NumberOfBands(), g.PatternWidth*g.PatternHeight)
	}
}

func TestGeometryInvalid(t *testing.T) {
	g := testGeometry()
	g.PatternWidth = 0
	if err := g.Validate(); !errors.Is(err, ErrGeometry) {
		t.Errorf("zero pattern width: err=%v; want ErrGeometry", err)
	}

	g = testGeometry()
	g.PatternWidth = 4 // 6 is not divisible by 4
	g.Coefficients = make([]float32, 64)
	if err := g.Validate(); !errors.Is(err, ErrGeometry) {
		t.Errorf("indivisible active width: err=%v; want ErrGeometry", err)
	}

	g = testGeometry()
	g.PatternHeight = 3
	g.Coefficients = make([]float32, 36)
	if err := g.Validate(); !errors.Is(err, ErrGeometry) {
		t.Errorf("indivisible active height: err=%v; want ErrGeometry", err)
	}

	g = testGeometry()
	g.OffsetX = 4
	if err := g.Validate(); !errors.Is(err, ErrGeometry) {
		t.Errorf("crop outside sensor: err=%v; want ErrGeometry", err)
	}

	g = testGeometry()
	g.Coefficients = g.Coefficients[:15]
	if err := g.Validate(); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("short coefficients: err=%v; want ErrSizeMismatch", err)
	}

	g = testGeometry()
	g.Layout = LayoutTiled
	if err := g.ValidateForProcessing(); !errors.Is(err, ErrGeometry) {
		t.Errorf("tiled layout: err=%v; want ErrGeometry", err)
	}
	if _, err := NewFrame(Geometry{PatternWidth: 0, PatternHeight: 2}); !errors.Is(err, ErrGeometry) {
		t.Errorf("NewFrame with zero pattern: err=%v; want ErrGeometry", err)
	}
}

func TestParseLayout(t *testing.T) {
	for s, want := range map[string]Layout{"MOSAIC": LayoutMosaic, "tiled": LayoutTiled, " WEDGE ": LayoutWedge, "x": LayoutNone} {
		if got := ParseLayout(s); got != want {
			t.Errorf("ParseLayout(%q)=%v; want %v", s, got, want)
		}
	}
}

func TestNewFrame(t *testing.T) {
	g := testGeometry()
	f, err := NewFrame(g)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if len(f.Raw) != 24 || len(f.Cube) != 24 {
		t.Errorf("len(raw)=%d len(cube)=%d; want 24", len(f.Raw), len(f.Cube))
	}

	// geometry is copied by value
	g.Coefficients[0] = 42
	if f.Geometry.Coefficients[0] == 42 {
		t.Errorf("frame shares coefficients with the source geometry")
	}

	if _, err := NewFrameFromRaw(testGeometry(), make([]uint16, 23)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("NewFrameFromRaw short: err=%v; want ErrSizeMismatch", err)
	}
}

func TestFramePixels(t *testing.T) {
	raw := make([]uint16, 24)
	for i := range raw {
		raw[i] = uint16(i)
	}
	f, err := NewFrameFromRaw(testGeometry(), raw)
	if err != nil {
		t.Fatalf("NewFrameFromRaw: %v", err)
	}
	if v, err := f.Pixel(3, 2); err != nil || v != 15 {
		t.Errorf("Pixel(3,2)=%d,%v; want 15", v, err)
	}
	if _, err := f.Pixel(6, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Pixel(6,0) err=%v; want ErrIndexOutOfRange", err)
	}
	if err := f.SetPixel(0, 4, 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("SetPixel(0,4) err=%v; want ErrIndexOutOfRange", err)
	}
	if _, err := f.PixelAt(24); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("PixelAt(24) err=%v; want ErrIndexOutOfRange", err)
	}
	if _, err := f.CubeAt(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("CubeAt(-1) err=%v; want ErrIndexOutOfRange", err)
	}
	if f.CubeIndex(2, 1) != 2*4+1*3*4 {
		t.Errorf("CubeIndex(2,1)=%d; want %d", f.CubeIndex(2, 1), 2*4+1*3*4)
	}

	for i := range f.Cube {
		f.Cube[i] = uint16(i)
	}
	plane, err := f.Band(3)
	if err != nil {
		t.Fatalf("Band(3): %v", err)
	}
	for i, v := range plane {
		if v != uint16(i*4+3) {
			t.Errorf("plane[%d]=%d; want %d", i, v, i*4+3)
		}
	}
	if _, err := f.Band(4); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Band(4) err=%v; want ErrIndexOutOfRange", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	g := testGeometry()
	raw := make([]uint16, 24)
	for i := range raw {
		raw[i] = uint16(1023 - i*7)
	}
	f, _ := NewFrameFromRaw(g, raw)

	name := filepath.Join(dir, "white_reference.raw")
	if err := f.Save(name); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(name)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 48 {
		t.Errorf("file size=%d; want 48", info.Size())
	}

	// no silent overwrite
	other, _ := NewFrame(g)
	if err := other.Save(name); !errors.Is(err, ErrFileExists) {
		t.Errorf("second Save err=%v; want ErrFileExists", err)
	}
	loaded, err := NewFrameFromFile(g, name, -1)
	if err != nil {
		t.Fatalf("NewFrameFromFile: %v", err)
	}
	for i := range raw {
		if loaded.Raw[i] != raw[i] {
			t.Errorf("loaded[%d]=%d; want %d", i, loaded.Raw[i], raw[i])
		}
	}

	// forced save replaces the content
	if err := other.SaveForce(name); err != nil {
		t.Fatalf("SaveForce: %v", err)
	}
	loaded, err = NewFrameFromFile(g, name, -1)
	if err != nil {
		t.Fatalf("NewFrameFromFile: %v", err)
	}
	if loaded.Raw[0] != 0 {
		t.Errorf("loaded[0]=%d after force save; want 0", loaded.Raw[0])
	}
}

func TestSaveFailureRemovesFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "snapshot.hdr")
	f, _ := NewFrame(testGeometry())

	writeSamples = func(w io.Writer, data []uint16) error { return errors.New("disk full") }
	err := f.Save(name)
	writeSamples = WriteSamples
	if err == nil {
		t.Fatalf("Save with failing writer err=nil; want error")
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("stat after failed Save err=%v; want not exist", err)
	}

	if err := f.Save(name); err != nil {
		t.Errorf("Save after failure err=%v; want nil", err)
	}
}

func TestLoadSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "short.raw")
	if err := os.WriteFile(name, make([]byte, 47), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFrameFromFile(testGeometry(), name, 0); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("short file err=%v; want ErrSizeMismatch", err)
	}

	if _, err := NewFrameFromReader(testGeometry(), bytes.NewReader(make([]byte, 50)), 0); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("long reader err=%v; want ErrSizeMismatch", err)
	}
	if _, err := ReadSensorFrame(testGeometry(), bytes.NewReader(make([]byte, 89))); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("short sensor frame err=%v; want ErrSizeMismatch", err)
	}
}

func TestSamplesLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSamples(&buf, []uint16{0x0102, 0x03ff}); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x02, 0x01, 0xff, 0x03}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes=%v; want %v", buf.Bytes(), want)
	}
}

func TestSnapshotFileName(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	got := SnapshotFileName("snapshots", ts)
	want := filepath.Join("snapshots", "2021-03-04_05-06-07.hdr")
	if got != want {
		t.Errorf("SnapshotFileName=%s; want %s", got, want)
	}
}

func TestWriteTIFF16(t *testing.T) {
	data := []uint16{257, 0, 1028, 62965, 65534, 41890}
	rgb, err := NewRGB16(2, 1, data)
	if err != nil {
		t.Fatalf("NewRGB16: %v", err)
	}
	var buf bytes.Buffer
	if err := rgb.WriteTIFF16(&buf); err != nil {
		t.Fatalf("WriteTIFF16: %v", err)
	}
	img, err := tiff.Decode(&buf)
	if err != nil {
		t.Fatalf("tiff.Decode: %v", err)
	}
	r, g, b, _ := img.At(1, 0).RGBA()
	if r != 62965 || g != 65534 || b != 41890 {
		t.Errorf("pixel (1,0)=(%d,%d,%d); want (62965,65534,41890)", r, g, b)
	}
	if _, err := NewRGB16(2, 2, data); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("NewRGB16 short err=%v; want ErrSizeMismatch", err)
	}
}
