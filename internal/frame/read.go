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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Loads an active area dump from the named file. The file must hold exactly
// ActiveWidth*ActiveHeight little-endian uint16 samples, without header.
func NewFrameFromFile(g Geometry, fileName string, id int) (*Frame, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	expected := int64(g.ActivePixels()) * BytesPerPixel
	if info.Size() != expected {
		return nil, fmt.Errorf("%d: file %s expected size %d but was %d: %w", id, fileName, expected, info.Size(), ErrSizeMismatch)
	}

	f, err := NewFrameFromReader(g, bufio.NewReader(file), id)
	if err != nil {
		return nil, err
	}
	f.FileName = fileName
	return f, nil
}

// Reads an active area dump from the given reader, which must be exhausted after
// ActiveWidth*ActiveHeight samples.
func NewFrameFromReader(g Geometry, r io.Reader, id int) (*Frame, error) {
	f, err := NewFrame(g)
	if err != nil {
		return nil, err
	}
	f.ID = id
	if err = ReadSamples(r, f.Raw); err != nil {
		return nil, fmt.Errorf("%d: %w", id, err)
	}
	return f, nil
}

// Reads a full sensor frame dump, SensorWidth*SensorHeight samples, for the crop stage
func ReadSensorFrame(g Geometry, r io.Reader) ([]uint16, error) {
	data := make([]uint16, g.SensorPixels())
	if err := ReadSamples(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Loads a full sensor frame dump from the named file
func ReadSensorFrameFile(g Geometry, fileName string) ([]uint16, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadSensorFrame(g, bufio.NewReader(file))
}

// Fills data with little-endian samples from r. Fails with ErrSizeMismatch if r holds
// fewer or more bytes than needed.
func ReadSamples(r io.Reader, data []uint16) error {
	buf := make([]byte, len(data)*BytesPerPixel)
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return fmt.Errorf("expected %d bytes but got %d: %w", len(buf), n, ErrSizeMismatch)
	} else if err != nil {
		return err
	}
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m > 0 {
		return fmt.Errorf("expected %d bytes but got more: %w", len(buf), ErrSizeMismatch)
	}
	for i := range data {
		data[i] = binary.LittleEndian.Uint16(buf[i*BytesPerPixel:])
	}
	return nil
}
