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

package stats

import (
	"fmt"

	"github.com/hyperlight-cam/hyperlight/internal"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/hyperlight-cam/hyperlight/internal/qsort"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Number of samples for the approximate median
const MedianSamples = 16 * 1024

// Basic statistics on sensor samples
type Stats struct {
	Min    uint16  // Minimum
	Max    uint16  // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Sample standard deviation
	Median uint16  // Exact for small data, else the median of a random subsample
}

func (s *Stats) String() string {
	return fmt.Sprintf("Min %d Max %d Mean %.6g StdDev %.6g Median %d", s.Min, s.Max, s.Mean, s.StdDev, s.Median)
}

// Calculates basic statistics for the given samples
func NewStats(data []uint16) *Stats {
	s := &Stats{}
	if len(data) == 0 {
		return s
	}

	xs := internal.GetArrayOfFloat64FromPool(len(data))
	defer internal.PutArrayOfFloat64IntoPool(xs)
	xs = xs[:len(data)]
	for i, d := range data {
		xs[i] = float64(d)
	}
	s.Min, s.Max = uint16(floats.Min(xs)), uint16(floats.Max(xs))
	mean, stdDev := stat.MeanStdDev(xs, nil)
	s.Mean = float32(mean)
	if len(data) > 1 {
		s.StdDev = float32(stdDev)
	}
	s.Median = ApproxMedian(data, MedianSamples)
	return s
}

// Returns the median of the data if it holds at most numSamples values. Otherwise
// returns the median of numSamples values drawn at random. Does not change the data
func ApproxMedian(data []uint16, numSamples int) uint16 {
	if len(data) == 0 {
		return 0
	}
	n := numSamples
	if len(data) < n {
		n = len(data)
	}
	samples := internal.GetArrayOfUint16FromPool(n)
	defer internal.PutArrayOfUint16IntoPool(samples)
	samples = samples[:n]

	if n == len(data) {
		copy(samples, data)
	} else {
		rng := fastrand.RNG{}
		max := uint32(len(data))
		for i := range samples {
			samples[i] = data[rng.Uint32n(max)]
		}
	}
	return qsort.QSelectMedianUint16(samples)
}

// Counts the pixels where the white reference does not exceed its dark reference.
// The reflectance of these pixels is undefined and rendered as zero
func DegenerateSpan(white, darkWhite []uint16) (int, error) {
	if len(white) != len(darkWhite) {
		return 0, fmt.Errorf("white %d and dark white %d samples: %w", len(white), len(darkWhite), frame.ErrSizeMismatch)
	}
	count := 0
	for i, w := range white {
		if w <= darkWhite[i] {
			count++
		}
	}
	return count, nil
}
