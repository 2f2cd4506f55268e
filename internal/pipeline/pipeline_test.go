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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperlight-cam/hyperlight/internal/accel"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/valyala/fastrand"
)

func testGeometry() frame.Geometry {
	return frame.Geometry{
		Layout:        frame.LayoutMosaic,
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

// Full sensor frame with the active area framed by 999
var testFull = []uint16{
	999, 999, 999, 999, 999, 999, 999, 999, 999,
	999, 999, 0, 1, 2, 3, 4, 5, 999,
	999, 999, 341, 342, 343, 344, 345, 346, 999,
	999, 999, 682, 683, 684, 685, 686, 687, 999,
	999, 999, 1018, 1019, 1020, 1021, 1022, 1023, 999,
}

var testRaw = []uint16{
	0, 1, 2, 3, 4, 5,
	341, 342, 343, 344, 345, 346,
	682, 683, 684, 685, 686, 687,
	1018, 1019, 1020, 1021, 1022, 1023,
}

var testCube = []uint16{
	0, 0, 679, 674, 0, 0, 683, 678, 0, 0, 687, 682,
	1023, 1023, 1023, 1023, 1023, 1023, 1023, 1023, 1023, 1023, 1023, 1023,
}

var testUnmixed = []uint16{
	473, 1014, 155, 209, 476, 1020, 156, 210, 478, 1023, 157, 212,
	1023, 1023, 1023, 593, 1023, 1023, 1023, 593, 1023, 1023, 1023, 593,
}

var testExposures = Exposures{Object: 500, White: 1000}

func testFrame(t *testing.T, raw []uint16) *frame.Frame {
	f, err := frame.NewFrameFromRaw(testGeometry(), raw)
	if err != nil {
		t.Fatalf("NewFrameFromRaw: %v", err)
	}
	return f
}

func repeat(values []uint16, n int) []uint16 {
	res := make([]uint16, 0, len(values)*n)
	for i := 0; i < n; i++ {
		res = append(res, values...)
	}
	return res
}

func testReferences(t *testing.T) *References {
	white := append(append(append(repeat([]uint16{1023}, 6), repeat([]uint16{1022}, 6)...),
		repeat([]uint16{1021}, 6)...), repeat([]uint16{1020}, 6)...)
	refs, err := NewReferences(
		testFrame(t, repeat([]uint16{5, 10}, 12)),
		testFrame(t, repeat([]uint16{10, 15}, 12)),
		testFrame(t, white),
	)
	if err != nil {
		t.Fatalf("NewReferences: %v", err)
	}
	return refs
}

func testStrategies(t *testing.T) []Strategy {
	a, err := NewAccelStrategy(accel.DeviceFilter{}, nil)
	if err != nil {
		t.Fatalf("NewAccelStrategy: %v", err)
	}
	t.Cleanup(a.Close)
	return []Strategy{NewHostStrategy(0), NewHostStrategy(1), a}
}

// Allowed deviation from the reference results: host strategies are exact,
// accelerated reflectance and colour stages may differ by one
func tolerance(s Strategy) int {
	if s.Name() == "host" {
		return 0
	}
	return 1
}

func checkNear(t *testing.T, what string, got, want []uint16, tol int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len=%d; want %d", what, len(got), len(want))
	}
	for i := range want {
		d := int(got[i]) - int(want[i])
		if d < -tol || d > tol {
			t.Errorf("%s[%d]=%d; want %d±%d", what, i, got[i], want[i], tol)
		}
	}
}

func TestCrop(t *testing.T) {
	for _, s := range testStrategies(t) {
		f, _ := frame.NewFrame(testGeometry())
		if err := s.Crop(testFull, f); err != nil {
			t.Fatalf("%s: Crop: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" raw", f.Raw, testRaw, 0)

		f, _ = frame.NewFrame(testGeometry())
		if err := s.Crop(testFull[:44], f); !errors.Is(err, frame.ErrSizeMismatch) {
			t.Errorf("%s: short sensor frame err=%v; want ErrSizeMismatch", s.Name(), err)
		}
		for i, v := range f.Raw {
			if v != 0 {
				t.Errorf("%s: raw[%d]=%d written before validation", s.Name(), i, v)
			}
		}
	}
}

func TestDemosaicCorrect(t *testing.T) {
	refs := testReferences(t)
	for _, s := range testStrategies(t) {
		f := testFrame(t, testRaw)
		if err := s.DemosaicCorrect(f, refs, testExposures); err != nil {
			t.Fatalf("%s: DemosaicCorrect: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" cube", f.Cube, testCube, tolerance(s))

		if err := s.DemosaicCorrect(f, refs, Exposures{Object: 0, White: 1000}); !errors.Is(err, ErrInvalidExposure) {
			t.Errorf("%s: zero object exposure err=%v; want ErrInvalidExposure", s.Name(), err)
		}

		g := testGeometry()
		g.ActiveWidth, g.SensorWidth = 4, 7
		small, _ := frame.NewFrame(g)
		if err := s.DemosaicCorrect(small, refs, testExposures); !errors.Is(err, frame.ErrSizeMismatch) {
			t.Errorf("%s: mismatched references err=%v; want ErrSizeMismatch", s.Name(), err)
		}
	}
}

func TestDegenerateSpanIsZero(t *testing.T) {
	refs := testReferences(t)
	darkWhite := refs.DarkWhite().Raw
	bad := frame.NewFrameFromFrame(refs.White())
	bad.Raw[2] = darkWhite[2]
	bad.Raw[3] = darkWhite[3] - 1
	if err := refs.Set(KindWhite, bad); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for _, s := range testStrategies(t) {
		f := testFrame(t, repeat([]uint16{1000}, 24))
		if err := s.DemosaicCorrect(f, refs, testExposures); err != nil {
			t.Fatalf("%s: DemosaicCorrect: %v", s.Name(), err)
		}
		// raw pixels 2 and 3 are bands 0 and 1 of spatial pixel 1
		if f.Cube[4] != 0 || f.Cube[5] != 0 {
			t.Errorf("%s: degenerate spans gave %d,%d; want 0,0", s.Name(), f.Cube[4], f.Cube[5])
		}
		if f.Cube[0] != 1023 {
			t.Errorf("%s: cube[0]=%d; want 1023", s.Name(), f.Cube[0])
		}
	}
	bad.Raw[0] = 0
	if refs.White().Raw[0] != 1023 {
		t.Errorf("reference set shares memory with its source")
	}
}

func TestUnmix(t *testing.T) {
	g := testGeometry()
	for _, s := range testStrategies(t) {
		in, _ := frame.NewFrame(g)
		copy(in.Cube, testCube)
		out, _ := frame.NewFrame(g)
		if err := s.Unmix(out, in, g.Coefficients, g.NumberOfBands()); err != nil {
			t.Fatalf("%s: Unmix: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" unmixed", out.Cube, testUnmixed, 0)
		checkNear(t, s.Name()+" input", in.Cube, testCube, 0)

		// idempotent on unchanged inputs
		again, _ := frame.NewFrame(g)
		if err := s.Unmix(again, in, g.Coefficients, g.NumberOfBands()); err != nil {
			t.Fatalf("%s: Unmix: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" unmixed again", again.Cube, out.Cube, 0)

		// in place gives the same result
		if err := s.Unmix(in, in, g.Coefficients, g.NumberOfBands()); err != nil {
			t.Fatalf("%s: Unmix in place: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" unmixed in place", in.Cube, testUnmixed, 0)

		short := &frame.Frame{Geometry: g, Raw: make([]uint16, 20), Cube: make([]uint16, 20)}
		if err := s.Unmix(short, in, g.Coefficients, g.NumberOfBands()); !errors.Is(err, frame.ErrIndexOutOfRange) {
			t.Errorf("%s: unequal cubes err=%v; want ErrIndexOutOfRange", s.Name(), err)
		}
		if err := s.Unmix(out, in, g.Coefficients[:15], g.NumberOfBands()); !errors.Is(err, frame.ErrSizeMismatch) {
			t.Errorf("%s: short coefficients err=%v; want ErrSizeMismatch", s.Name(), err)
		}
	}
}

func TestUnmixWithoutGeometry(t *testing.T) {
	coeffs := testGeometry().Coefficients
	for _, s := range testStrategies(t) {
		in := &frame.Frame{Cube: append([]uint16(nil), testCube...)}
		out := &frame.Frame{Cube: make([]uint16, len(testCube))}
		if err := s.Unmix(out, in, coeffs, 4); err != nil {
			t.Fatalf("%s: Unmix: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" unmixed", out.Cube, testUnmixed, 0)

		empty := &frame.Frame{}
		if err := s.Unmix(empty, empty, coeffs, 4); err != nil {
			t.Errorf("%s: empty cube err=%v; want nil", s.Name(), err)
		}
	}
}

func TestUnmixClampsNegative(t *testing.T) {
	g := testGeometry()
	coeffs := make([]float32, 16)
	for i := range coeffs {
		coeffs[i] = -0.5
	}
	coeffs[0] = 2
	for _, s := range testStrategies(t) {
		in, _ := frame.NewFrame(g)
		copy(in.Cube, testCube)
		out, _ := frame.NewFrame(g)
		if err := s.Unmix(out, in, coeffs, 4); err != nil {
			t.Fatalf("%s: Unmix: %v", s.Name(), err)
		}
		// band 0 of the last pixel is 2*1023-1.5*1023, the others are negative
		want := []uint16{0, 0, 0, 0}
		checkNear(t, s.Name()+" first pixel", out.Cube[:4], want, 0)
		checkNear(t, s.Name()+" last pixel", out.Cube[20:], []uint16{511, 0, 0, 0}, 0)
	}
}

func TestColourMap(t *testing.T) {
	g := testGeometry()
	for _, s := range testStrategies(t) {
		f, _ := frame.NewFrame(g)
		copy(f.Cube, testCube)

		rgb, err := s.ColourMap(f, 0)
		if err != nil {
			t.Fatalf("%s: ColourMap: %v", s.Name(), err)
		}
		want := []uint16{
			257, 0, 1028, 257, 0, 1028, 257, 0, 1028,
			62965, 65534, 41890, 62965, 65534, 41890, 62965, 65534, 41890,
		}
		checkNear(t, s.Name()+" band 0", rgb, want, tolerance(s))

		rgb, err = s.ColourMap(f, 3)
		if err != nil {
			t.Fatalf("%s: ColourMap: %v", s.Name(), err)
		}
		want = []uint16{
			58331, 26839, 9984, 58549, 27211, 9661, 58767, 27584, 9337,
			62965, 65534, 41890, 62965, 65534, 41890, 62965, 65534, 41890,
		}
		checkNear(t, s.Name()+" band 3", rgb, want, tolerance(s))

		for _, band := range []int32{4, -1} {
			if _, err := s.ColourMap(f, band); !errors.Is(err, frame.ErrIndexOutOfRange) {
				t.Errorf("%s: band %d err=%v; want ErrIndexOutOfRange", s.Name(), band, err)
			}
		}
	}
}

// A larger random geometry with 16 bands
func randomSetup(t *testing.T, rng *fastrand.RNG) (frame.Geometry, []uint16, *References) {
	g := frame.Geometry{
		Layout: frame.LayoutMosaic, BitsPerPixel: 10,
		SensorWidth: 41, SensorHeight: 30, OffsetX: 3, OffsetY: 2,
		ActiveWidth: 32, ActiveHeight: 24, PatternWidth: 4, PatternHeight: 4,
		Coefficients: make([]float32, 256),
	}
	for i := range g.Coefficients {
		g.Coefficients[i] = float32(rng.Uint32n(1000))/1000 - 0.3
	}
	full := make([]uint16, g.SensorPixels())
	for i := range full {
		full[i] = uint16(rng.Uint32n(frame.PixelMax + 1))
	}
	refFrame := func(lo, n uint32) *frame.Frame {
		f, err := frame.NewFrame(g)
		if err != nil {
			t.Fatalf("NewFrame: %v", err)
		}
		for i := range f.Raw {
			f.Raw[i] = uint16(lo + rng.Uint32n(n))
		}
		return f
	}
	refs, err := NewReferences(refFrame(0, 60), refFrame(0, 80), refFrame(40, 984))
	if err != nil {
		t.Fatalf("NewReferences: %v", err)
	}
	return g, full, refs
}

func TestStrategyEquivalence(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(42)
	strategies := testStrategies(t)
	host := strategies[0]

	for round := 0; round < 5; round++ {
		g, full, refs := randomSetup(t, &rng)
		exp := Exposures{Object: 1 + rng.Uint32n(5000), White: 1 + rng.Uint32n(5000)}

		want, _ := frame.NewFrame(g)
		if err := host.Crop(full, want); err != nil {
			t.Fatal(err)
		}
		if err := host.DemosaicCorrect(want, refs, exp); err != nil {
			t.Fatal(err)
		}
		wantUnmixed, _ := frame.NewFrame(g)
		if err := host.Unmix(wantUnmixed, want, g.Coefficients, g.NumberOfBands()); err != nil {
			t.Fatal(err)
		}
		band := int32(rng.Uint32n(uint32(g.NumberOfBands())))
		wantRGB, err := host.ColourMap(want, band)
		if err != nil {
			t.Fatal(err)
		}

		for _, s := range strategies[1:] {
			f, _ := frame.NewFrame(g)
			if err := s.Crop(full, f); err != nil {
				t.Fatalf("%s: Crop: %v", s.Name(), err)
			}
			checkNear(t, s.Name()+" raw", f.Raw, want.Raw, 0)
			if err := s.DemosaicCorrect(f, refs, exp); err != nil {
				t.Fatalf("%s: DemosaicCorrect: %v", s.Name(), err)
			}
			checkNear(t, s.Name()+" cube", f.Cube, want.Cube, tolerance(s))

			// unmixing and colour mapping compare on identical inputs
			copy(f.Cube, want.Cube)
			rgb, err := s.ColourMap(f, band)
			if err != nil {
				t.Fatalf("%s: ColourMap: %v", s.Name(), err)
			}
			checkNear(t, s.Name()+" rgb", rgb, wantRGB, tolerance(s))
			if err := s.Unmix(f, f, g.Coefficients, g.NumberOfBands()); err != nil {
				t.Fatalf("%s: Unmix: %v", s.Name(), err)
			}
			checkNear(t, s.Name()+" unmixed", f.Cube, wantUnmixed.Cube, 0)
		}
	}
}

func TestAcceleratorInitFailure(t *testing.T) {
	_, err := NewAccelStrategy(accel.DeviceFilter{MinComputeUnits: 1 << 20}, nil)
	if !errors.Is(err, accel.ErrAcceleratorInit) {
		t.Errorf("NewAccelStrategy err=%v; want ErrAcceleratorInit", err)
	}
}

func TestProcess(t *testing.T) {
	p, err := New(testGeometry(), testReferences(t), testExposures)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, s := range testStrategies(t) {
		res, err := p.Process(testFull, 1, s)
		if err != nil {
			t.Fatalf("%s: Process: %v", s.Name(), err)
		}
		checkNear(t, s.Name()+" raw", res.Frame.Raw, testRaw, 0)
		if s.Name() == "host" {
			checkNear(t, s.Name()+" cube", res.Frame.Cube, testUnmixed, 0)
			want := []uint16{
				62917, 64569, 39865, 62949, 65213, 41215, 62965, 65534, 41890,
				62965, 65534, 41890, 62965, 65534, 41890, 62965, 65534, 41890,
			}
			checkNear(t, s.Name()+" rgb", res.RGB.Data, want, 0)
		}
		if res.RGB.Width != 3 || res.RGB.Height != 2 || res.Band != 1 {
			t.Errorf("%s: result %dx%d band %d; want 3x2 band 1", s.Name(), res.RGB.Width, res.RGB.Height, res.Band)
		}

		if _, err := p.Process(testFull, 4, s); !errors.Is(err, frame.ErrIndexOutOfRange) {
			t.Errorf("%s: band 4 err=%v; want ErrIndexOutOfRange", s.Name(), err)
		}
	}
}

func TestReferenceUpdate(t *testing.T) {
	p, err := New(testGeometry(), testReferences(t), testExposures)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := NewAccelStrategy(accel.DeviceFilter{}, nil)
	if err != nil {
		t.Fatalf("NewAccelStrategy: %v", err)
	}
	defer a.Close()
	host := NewHostStrategy(0)

	before, err := p.Process(testFull, 0, a)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if a.ReferencesVersion() != p.References().Version() {
		t.Errorf("cached reference version %d; want %d", a.ReferencesVersion(), p.References().Version())
	}

	white := frame.NewFrameFromFrame(p.References().White())
	for i := range white.Raw {
		white.Raw[i] = 600
	}
	oldVersion := p.References().Version()
	if err := p.SetWhiteReference(white); err != nil {
		t.Fatalf("SetWhiteReference: %v", err)
	}
	if p.References().Version() == oldVersion {
		t.Errorf("reference version unchanged by update")
	}

	after, err := p.Process(testFull, 0, a)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want, err := p.Process(testFull, 0, host)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	checkNear(t, "accel after update", after.Frame.Cube, want.Frame.Cube, 1)

	same := true
	for i := range before.Frame.Cube {
		if before.Frame.Cube[i] != after.Frame.Cube[i] {
			same = false
		}
	}
	if same {
		t.Errorf("accelerated result unchanged after white reference update")
	}
}

func TestReferencesAreCopies(t *testing.T) {
	p, err := New(testGeometry(), testReferences(t), testExposures)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := NewAccelStrategy(accel.DeviceFilter{}, nil)
	if err != nil {
		t.Fatalf("NewAccelStrategy: %v", err)
	}
	defer a.Close()
	before, err := p.Process(testFull, 0, a)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	version := p.References().Version()

	white := p.References().White()
	for i := range white.Raw {
		white.Raw[i] = 600
	}
	for k := KindDarkObject; k <= KindWhite; k++ {
		f := p.References().Get(k)
		for i := range f.Raw {
			f.Raw[i] = 0
		}
	}
	if p.References().Version() != version {
		t.Errorf("version=%d; want %d", p.References().Version(), version)
	}
	if w := p.References().White().Raw[0]; w != 1023 {
		t.Errorf("white[0]=%d; want 1023", w)
	}

	host, err := p.Process(testFull, 0, NewHostStrategy(0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	checkNear(t, "host cube", host.Frame.Cube, testUnmixed, 0)
	after, err := p.Process(testFull, 0, a)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	checkNear(t, "accel cube", after.Frame.Cube, before.Frame.Cube, 0)
}

func TestLoadReferences(t *testing.T) {
	dir := t.TempDir()
	names := map[Kind]string{
		KindDarkObject: filepath.Join(dir, "dark_reference.raw"),
		KindDarkWhite:  filepath.Join(dir, "dark_reference_white.raw"),
		KindWhite:      filepath.Join(dir, "white_reference.raw"),
	}
	saved := testReferences(t)
	for _, k := range []Kind{KindDarkObject, KindDarkWhite} {
		if err := saved.Get(k).Save(names[k]); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	var log strings.Builder
	refs, err := LoadReferences(testGeometry(), names, &log)
	if err != nil {
		t.Fatalf("LoadReferences: %v", err)
	}
	checkNear(t, "dark", refs.DarkObject().Raw, saved.DarkObject().Raw, 0)
	checkNear(t, "dark white", refs.DarkWhite().Raw, saved.DarkWhite().Raw, 0)
	checkNear(t, "white", refs.White().Raw, make([]uint16, 24), 0)
	if id := refs.White().ID; id != -3 {
		t.Errorf("white id=%d; want -3", id)
	}
	if n := strings.Count(log.String(), "WARNING"); n != 1 {
		t.Errorf("%d warnings; want 1 in %q", n, log.String())
	}

	// a zeroed white reference still processes, degenerate spans render as zero
	p, err := New(testGeometry(), refs, testExposures)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Process(testFull, 0, NewHostStrategy(0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	checkNear(t, "cube", res.Frame.Cube, make([]uint16, 24), 0)

	if err := os.WriteFile(names[KindDarkObject], make([]byte, 47), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadReferences(testGeometry(), names, nil); !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("short reference err=%v; want ErrSizeMismatch", err)
	}
}

func TestPipelineErrors(t *testing.T) {
	refs := testReferences(t)
	if _, err := New(testGeometry(), refs, Exposures{Object: 0, White: 5}); !errors.Is(err, ErrInvalidExposure) {
		t.Errorf("zero exposure err=%v; want ErrInvalidExposure", err)
	}
	g := testGeometry()
	g.Layout = frame.LayoutTiled
	if _, err := New(g, refs, testExposures); !errors.Is(err, frame.ErrGeometry) {
		t.Errorf("tiled layout err=%v; want ErrGeometry", err)
	}
	g = testGeometry()
	g.ActiveWidth, g.SensorWidth = 4, 7
	if _, err := New(g, refs, testExposures); !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("references of other size err=%v; want ErrSizeMismatch", err)
	}

	p, err := New(testGeometry(), refs, testExposures)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	small, _ := frame.NewFrame(g)
	if err := p.SetDarkReferenceObject(small); !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("SetDarkReferenceObject err=%v; want ErrSizeMismatch", err)
	}
	if err := p.SetExposures(Exposures{}); !errors.Is(err, ErrInvalidExposure) {
		t.Errorf("SetExposures err=%v; want ErrInvalidExposure", err)
	}
	if err := p.SetCoefficients(make([]float32, 9)); !errors.Is(err, frame.ErrSizeMismatch) {
		t.Errorf("SetCoefficients err=%v; want ErrSizeMismatch", err)
	}
}

func TestBandStepping(t *testing.T) {
	if b := NextBand(3, 4); b != 0 {
		t.Errorf("NextBand(3,4)=%d; want 0", b)
	}
	if b := NextBand(1, 4); b != 2 {
		t.Errorf("NextBand(1,4)=%d; want 2", b)
	}
	if b := PrevBand(0, 4); b != 3 {
		t.Errorf("PrevBand(0,4)=%d; want 3", b)
	}
}

func TestUnmixWorkGroup(t *testing.T) {
	g := testGeometry()
	a, err := NewAccelStrategy(accel.DeviceFilter{}, nil)
	if err != nil {
		t.Fatalf("NewAccelStrategy: %v", err)
	}
	defer a.Close()

	in, _ := frame.NewFrame(g)
	copy(in.Cube, testCube)
	out, _ := frame.NewFrame(g)
	a.UnmixLocal = []int{3, 2}
	if err := a.Unmix(out, in, g.Coefficients, g.NumberOfBands()); err != nil {
		t.Fatalf("Unmix with local size 3x2: %v", err)
	}
	checkNear(t, "unmixed 3x2", out.Cube, testUnmixed, 0)

	a.UnmixLocal = []int{2, 2}
	if err := a.Unmix(out, in, g.Coefficients, g.NumberOfBands()); !errors.Is(err, accel.ErrInvalidWorkGroupSize) {
		t.Errorf("Unmix with local size 2x2 err=%v; want ErrInvalidWorkGroupSize", err)
	}
}
