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
	"fmt"
	"io"
	"io/fs"
	"sync/atomic"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
)

var ErrInvalidExposure = errors.New("invalid exposure time")

// Exposure times of the object and of the white reference, in microseconds
type Exposures struct {
	Object uint32 `json:"object" yaml:"object"`
	White  uint32 `json:"white"  yaml:"white"`
}

func (e Exposures) Validate() error {
	if e.Object == 0 {
		return fmt.Errorf("object exposure 0: %w", ErrInvalidExposure)
	}
	return nil
}

// Ratio of white to object exposure, which scales the reflectance
func (e Exposures) TimeRatio() float32 {
	return float32(e.White) / float32(e.Object)
}

// Kinds of reference frames
type Kind int

const (
	KindDarkObject Kind = iota
	KindDarkWhite
	KindWhite
)

func (k Kind) String() string {
	switch k {
	case KindDarkObject:
		return "dark"
	case KindDarkWhite:
		return "darkWhite"
	case KindWhite:
		return "white"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Parses the kind names used in file names and on the REST interface
func ParseKind(s string) (Kind, error) {
	switch s {
	case "dark", "darkObject":
		return KindDarkObject, nil
	case "darkWhite":
		return KindDarkWhite, nil
	case "white":
		return KindWhite, nil
	}
	return 0, fmt.Errorf("unknown reference kind %q", s)
}

// Source of reference versions, unique across all reference sets
var referenceVersion uint64

// The three reference frames of the reflectance correction. Frames are copied in and
// handed out as copies, so callers cannot change them behind the back of cached device
// copies. Every replacement assigns a new version.
type References struct {
	frames  [3]*frame.Frame
	version uint64
}

// Creates a reference set from copies of the given frames, which must share one size
func NewReferences(darkObject, darkWhite, white *frame.Frame) (*References, error) {
	if darkObject == nil || darkWhite == nil || white == nil {
		return nil, errors.New("missing reference frame")
	}
	if err := darkObject.CheckSameSize(darkWhite); err != nil {
		return nil, err
	}
	if err := darkObject.CheckSameSize(white); err != nil {
		return nil, err
	}
	r := &References{}
	r.frames[KindDarkObject] = frame.NewFrameFromFrame(darkObject)
	r.frames[KindDarkWhite] = frame.NewFrameFromFrame(darkWhite)
	r.frames[KindWhite] = frame.NewFrameFromFrame(white)
	r.version = atomic.AddUint64(&referenceVersion, 1)
	return r, nil
}

// Loads the references from the given files, with IDs -1 for the dark object reference
// down to -3 for the white reference. A missing file is logged and yields a zeroed frame,
// so references can be recorded later. Other load errors fail
func LoadReferences(g frame.Geometry, fileNames map[Kind]string, log io.Writer) (*References, error) {
	var frames [3]*frame.Frame
	for k := KindDarkObject; k <= KindWhite; k++ {
		f, err := frame.NewFrameFromFile(g, fileNames[k], -1-int(k))
		if errors.Is(err, fs.ErrNotExist) {
			if log != nil {
				fmt.Fprintf(log, "%d: WARNING failed to load %s reference from %s, using zeroes\n", -1-int(k), k, fileNames[k])
			}
			if f, err = frame.NewFrame(g); err == nil {
				f.ID = -1 - int(k)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%s reference: %w", k, err)
		}
		frames[k] = f
	}
	return NewReferences(frames[KindDarkObject], frames[KindDarkWhite], frames[KindWhite])
}

// Returns copies of the reference frames
func (r *References) DarkObject() *frame.Frame { return r.Get(KindDarkObject) }
func (r *References) DarkWhite() *frame.Frame  { return r.Get(KindDarkWhite) }
func (r *References) White() *frame.Frame      { return r.Get(KindWhite) }
func (r *References) Get(k Kind) *frame.Frame  { return frame.NewFrameFromFrame(r.frames[k]) }

// Returns the samples of a reference frame without copying. Callers must not write them
func (r *References) raw(k Kind) []uint16 { return r.frames[k].Raw }

// Version changes whenever a reference is replaced
func (r *References) Version() uint64 { return r.version }

// Replaces one reference with a copy of the given frame, which must match the others in size
func (r *References) Set(k Kind, f *frame.Frame) error {
	if k < KindDarkObject || k > KindWhite {
		return fmt.Errorf("unknown reference kind %d", int(k))
	}
	if err := r.frames[KindDarkObject].CheckSameSize(f); err != nil {
		return err
	}
	r.frames[k] = frame.NewFrameFromFrame(f)
	r.version = atomic.AddUint64(&referenceVersion, 1)
	return nil
}

// Checks the references match the given frame in size
func (r *References) checkFrame(f *frame.Frame) error {
	if err := f.CheckSameSize(r.frames[KindDarkObject]); err != nil {
		return fmt.Errorf("references: %w", err)
	}
	return nil
}
