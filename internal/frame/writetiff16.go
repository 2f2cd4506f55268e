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
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/tiff"
)

// An interleaved 16-bit RGB image, as produced by the band colour stage
type RGB16 struct {
	Width  int32
	Height int32
	Data   []uint16 // r,g,b per pixel, row-major
}

func NewRGB16(width, height int32, data []uint16) (*RGB16, error) {
	if int32(len(data)) != width*height*ColoursPerPixel {
		return nil, fmt.Errorf("rgb image %dx%d expects %d values but got %d: %w",
			width, height, width*height*ColoursPerPixel, len(data), ErrSizeMismatch)
	}
	return &RGB16{Width: width, Height: height, Data: data}, nil
}

// Converts into a Golang image
func (rgb *RGB16) Image() *image.RGBA64 {
	width, height := int(rgb.Width), int(rgb.Height)
	img := image.NewRGBA64(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			i := (yoffset + x) * ColoursPerPixel
			c := color.RGBA64{rgb.Data[i], rgb.Data[i+1], rgb.Data[i+2], 65535}
			img.SetRGBA64(x, y, c)
		}
	}
	return img
}

// Write the RGB image to a 16-bit TIFF file
func (rgb *RGB16) WriteTIFF16ToFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err = rgb.WriteTIFF16(writer); err != nil {
		return err
	}
	return writer.Flush()
}

// Write the RGB image as 16-bit TIFF
func (rgb *RGB16) WriteTIFF16(writer io.Writer) error {
	return tiff.Encode(writer, rgb.Image(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
