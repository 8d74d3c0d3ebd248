// Object pools for the acquisition hot path
//
// A raster run builds one position map per grid point; pooling the
// maps and the per-axis scratch slices keeps the tick loop from
// churning the allocator on large grids.
//
// Usage:
//
//	req := pool.GetPositionMap()
//	defer pool.PutPositionMap(req)
//	// fill and pass to the positioner...
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// PositionMap pool - for axis to position request maps
var positionMapPool = sync.Pool{
	New: func() any {
		return make(map[string]float64, 4)
	},
}

// GetPositionMap gets a position map from the pool
func GetPositionMap() map[string]float64 {
	return positionMapPool.Get().(map[string]float64)
}

// PutPositionMap returns a position map to the pool after clearing it
func PutPositionMap(m map[string]float64) {
	if m == nil {
		return
	}
	clear(m)
	positionMapPool.Put(m)
}

// Float64Slice pool - for per-axis scratch vectors
type float64SlicePool struct {
	pools [5]sync.Pool // pools for sizes 1..5 (axis counts)
}

var floatSlicePool = &float64SlicePool{}

func init() {
	for i := range floatSlicePool.pools {
		s := i + 1
		floatSlicePool.pools[i].New = func() any {
			return make([]float64, s)
		}
	}
}

// poolIndex returns the pool index for a given size, or -1 if no pool
func poolIndex(size int) int {
	if size >= 1 && size <= 5 {
		return size - 1
	}
	return -1
}

// GetFloat64Slice gets a zeroed float64 slice from the pool.
// Sizes without a pool are allocated directly.
func GetFloat64Slice(size int) []float64 {
	idx := poolIndex(size)
	if idx >= 0 {
		s := floatSlicePool.pools[idx].Get().([]float64)
		for i := range s {
			s[i] = 0
		}
		return s
	}
	return make([]float64, size)
}

// PutFloat64Slice returns a float64 slice to the pool
func PutFloat64Slice(s []float64) {
	if s == nil {
		return
	}
	idx := poolIndex(len(s))
	if idx >= 0 {
		floatSlicePool.pools[idx].Put(s)
	}
	// Non-pooled sizes are just discarded
}
