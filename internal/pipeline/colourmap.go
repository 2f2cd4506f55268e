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

	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/lucasb-eyer/go-colorful"
)

// Stops of the false colour gradient, from dark violet over red and orange to pale yellow
var GradientStops = []string{
	"#010004", "#300754", "#690f6f", "#9e2864",
	"#d04843", "#ef7d15", "#f2c223", "#f5ffa3",
}

// A piecewise linear gradient over equal segments, with stops scaled to 16 bits
type Gradient struct {
	stops [][frame.ColoursPerPixel]float32
	part  float32 // Width of one segment on the [0,1] scale
}

// The default gradient
var defaultGradient = mustGradient(GradientStops)

func mustGradient(hexStops []string) *Gradient {
	g, err := NewGradient(hexStops)
	if err != nil {
		panic(err)
	}
	return g
}

// Creates a gradient from at least two stops given as hex colours
func NewGradient(hexStops []string) (*Gradient, error) {
	if len(hexStops) < 2 {
		return nil, fmt.Errorf("gradient with %d stops", len(hexStops))
	}
	g := &Gradient{
		stops: make([][frame.ColoursPerPixel]float32, len(hexStops)),
		part:  float32(1) / float32(len(hexStops)-1),
	}
	for i, h := range hexStops {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("gradient stop %d: %w", i, err)
		}
		r, gr, b := c.RGB255()
		for j, v := range [frame.ColoursPerPixel]uint8{r, gr, b} {
			g.stops[i][j] = float32(float32(float32(v)/255) * frame.ShortMax)
		}
	}
	return g, nil
}

func (g *Gradient) Segments() int { return len(g.stops) - 1 }

// Returns the stops as flat r,g,b values scaled to 16 bits
func (g *Gradient) Stops() []float32 {
	res := make([]float32, 0, len(g.stops)*frame.ColoursPerPixel)
	for _, s := range g.stops {
		res = append(res, s[:]...)
	}
	return res
}

// Maps a cube value in [0,1023] onto the gradient, writing r,g,b into rgb
func (g *Gradient) Colour(v uint16, rgb []uint16) {
	ratio := float32(v) / frame.PixelMax
	if ratio > 1 {
		ratio = 1
	}
	segs := g.Segments()
	k := segs - 1
	for j := 1; j < segs; j++ {
		if ratio < float32(float32(j)*g.part) {
			k = j - 1
			break
		}
	}
	cr := float32(ratio-float32(float32(k)*g.part)) / g.part
	s0, s1 := &g.stops[k], &g.stops[k+1]
	for c := 0; c < frame.ColoursPerPixel; c++ {
		rgb[c] = uint16(s0[c] + float32(cr*float32(s1[c]-s0[c])))
	}
}

// Returns the band following the given one, wrapping around
func NextBand(band, bands int32) int32 {
	if bands <= 0 {
		return 0
	}
	return (band + 1) % bands
}

// Returns the band preceding the given one, wrapping around
func PrevBand(band, bands int32) int32 {
	if bands <= 0 {
		return 0
	}
	return (band - 1 + bands) % bands
}
