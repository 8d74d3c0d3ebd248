package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignd/pkg/axes"
)

func TestGridCountIsProductOfRangeLengths(t *testing.T) {
	ranges := map[string]axes.Range{
		"x": {Axis: "x", Min: 0, Max: 10, Step: 1},
		"y": {Axis: "y", Min: 0, Max: 10, Step: 1},
	}
	points := Grid(axes.Selection{"x", "y"}, ranges)
	assert.Len(t, points, 121)
}

func TestGridOrderLastAxisFastest(t *testing.T) {
	ranges := map[string]axes.Range{
		"a": {Axis: "a", Min: 0, Max: 1, Step: 1},
		"b": {Axis: "b", Min: 0, Max: 2, Step: 1},
	}
	points := Grid(axes.Selection{"a", "b"}, ranges)
	want := [][]float64{
		{0, 0}, {0, 1}, {0, 2},
		{1, 0}, {1, 1}, {1, 2},
	}
	require.Len(t, points, len(want))
	for i := range want {
		assert.Equal(t, want[i], points[i], "point %d", i)
	}
}

func TestGridDeterministic(t *testing.T) {
	ranges := map[string]axes.Range{
		"x": {Axis: "x", Min: -1, Max: 1, Step: 0.5},
		"y": {Axis: "y", Min: 2, Max: 4, Step: 1},
	}
	sel := axes.Selection{"y", "x"}
	first := Grid(sel, ranges)
	second := Grid(sel, ranges)
	assert.Equal(t, first, second)

	// Selection order defines dimension order.
	assert.Equal(t, []float64{2, -1}, first[0])
}

func TestGridSingleAxis(t *testing.T) {
	ranges := map[string]axes.Range{
		"x": {Axis: "x", Min: 0, Max: 2, Step: 1},
	}
	points := Grid(axes.Selection{"x"}, ranges)
	assert.Equal(t, [][]float64{{0}, {1}, {2}}, points)
}
