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
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of integer samples between min and max, one bin per value.
// Bins must hold max-min+1 entries
func Histogram(data []uint16, min uint16, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	for _, d := range data {
		bins[int(d)-int(min)]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min uint16) (x, y float32) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	return float32(min) + float32(maxIndex), float32(maxValue)
}

// Estimates the noise of a reference frame by fitting a normal distribution to its
// histogram. Returns the mode and the standard deviation of the fit
func NoiseFromHistogram(data []uint16) (mode, stdDev float32, err error) {
	if len(data) == 0 {
		return 0, 0, errors.New("noise estimate of empty data")
	}
	s := NewStats(data)
	if s.Min == s.Max {
		return float32(s.Min), 0, nil
	}
	bins := make([]int32, int(s.Max)-int(s.Min)+1)
	Histogram(data, s.Min, bins)
	return GetModeStdDevFromHistogram(bins, s.Min, float32(len(data)), s.StdDev)
}

// Calculates the mode and the standard deviation of the given histogram with one bin per
// integer value, starting at min. Area and sigma are the initial guesses for the fit
func GetModeStdDevFromHistogram(bins []int32, min uint16, area, sigma float32) (mode, stdDev float32, err error) {
	// Take an educated initial guess: the maximum value of the histogram
	peak, _ := GetPeak(bins, min)
	if sigma <= 0 {
		sigma = 1
	}

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{float64(area), float64(peak), float64(sigma)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			if sigma <= 0 {
				return math.Inf(1)
			}
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				x := float64(min) + float64(i)
				xmusig := (x - mu) / sigma
				yPredict := scaler * math.Exp(-0.5*xmusig*xmusig)
				diff := float64(y) - yPredict
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}
