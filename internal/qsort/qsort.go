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

package qsort

// Sort an array of uint16 in ascending order
func QSortUint16(a []uint16) {
	if len(a) > 1 {
		index := QPartitionUint16(a)
		QSortUint16(a[:index+1])
		QSortUint16(a[index+1:])
	}
}

// Partitions an array of uint16 with the middle pivot element, and returns the pivot index.
// Values less than the pivot are moved left of the pivot, those greater are moved right.
func QPartitionUint16(a []uint16) int {
	left, right := 0, len(a)-1
	mid := (left + right) >> 1
	pivot := a[mid]
	l := left - 1
	r := right + 1
	for {
		for {
			l++
			if a[l] >= pivot {
				break
			}
		}
		for {
			r--
			if a[r] <= pivot {
				break
			}
		}
		if l >= r {
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// Select median of an array of uint16. For even lengths, this is the upper of the two
// middle elements. Partially reorders the array
func QSelectMedianUint16(a []uint16) uint16 {
	return QSelectUint16(a, (len(a)>>1)+1)
}

// Select kth lowest element from an array of uint16, with k starting at 1. Partially reorders the array
func QSelectUint16(a []uint16, k int) uint16 {
	left, right := 0, len(a)-1
	for left < right {
		index := QPartitionUint16(a[left:right+1]) + left

		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k = k - offset
		}
	}
	return a[left]
}
