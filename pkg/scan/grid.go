// Raster grid generation
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scan

import (
	"alignd/pkg/axes"
)

// Grid expands the selected axis ranges into the full Cartesian
// product of scan positions. The expansion is row-major with the last
// selected axis varying fastest; the order is deterministic and must
// stay stable so that scans are reproducible.
func Grid(selection axes.Selection, ranges map[string]axes.Range) [][]float64 {
	axisPoints := make([][]float64, len(selection))
	total := 1
	for i, axis := range selection {
		axisPoints[i] = ranges[axis].Points()
		total *= len(axisPoints[i])
	}

	points := make([][]float64, 0, total)
	idx := make([]int, len(selection))
	for n := 0; n < total; n++ {
		point := make([]float64, len(selection))
		for i := range selection {
			point[i] = axisPoints[i][idx[i]]
		}
		points = append(points, point)

		// Odometer increment, last axis fastest.
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axisPoints[i]) {
				break
			}
			idx[i] = 0
		}
	}
	return points
}
