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
	"path/filepath"
	"time"
)

// Layout of snapshot time stamps, YYYY-MM-DD_HH-MM-SS
const TimeStampLayout = "2006-01-02_15-04-05"

// Suffix for snapshots of raw active area data
const SnapshotSuffix = ".hdr"

// Saves the raw active area samples to the named file, unless it already exists
func (f *Frame) Save(fileName string) error {
	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if os.IsExist(err) {
		return fmt.Errorf("%d: %s: %w", f.ID, fileName, ErrFileExists)
	} else if err != nil {
		return err
	}
	if err := f.writeAndClose(file); err != nil {
		os.Remove(fileName) // drop the partial file
		return err
	}
	return nil
}

// Saves the raw active area samples to the named file, replacing any existing file
func (f *Frame) SaveForce(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	return f.writeAndClose(file)
}

func (f *Frame) writeAndClose(file *os.File) error {
	writer := bufio.NewWriter(file)
	if err := writeSamples(writer, f.Raw); err != nil {
		file.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Sample writer used by Save and SaveForce, replaced in tests
var writeSamples = WriteSamples

// Writes samples as little-endian uint16 without header
func WriteSamples(w io.Writer, data []uint16) error {
	buf := make([]byte, len(data)*BytesPerPixel)
	for i, d := range data {
		binary.LittleEndian.PutUint16(buf[i*BytesPerPixel:], d)
	}
	_, err := w.Write(buf)
	return err
}

// Returns a snapshot file name in the given folder for the given time
func SnapshotFileName(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format(TimeStampLayout)+SnapshotSuffix)
}
