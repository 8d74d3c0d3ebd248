package axes

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignd/pkg/errors"
	"alignd/pkg/log"
	"alignd/pkg/motion"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetWriter(io.Discard)
	return l
}

func testSpace() *Space {
	return NewSpace(map[string]motion.Constraint{
		"x":   {Min: 0, Max: 10, Step: 1},
		"y":   {Min: -5, Max: 5, Step: 0.5},
		"phi": {Min: 0, Max: 360, Step: 0.1},
	}, quietLogger())
}

func TestRangeLenAndPoints(t *testing.T) {
	r := Range{Axis: "x", Min: 0, Max: 10, Step: 1}
	assert.Equal(t, 11, r.Len())

	pts := r.Points()
	require.Len(t, pts, 11)
	assert.Equal(t, 0.0, pts[0])
	assert.Equal(t, 10.0, pts[10])

	// Non-integer span still includes both endpoints, last point clamped.
	r = Range{Axis: "x", Min: 0, Max: 1, Step: 0.3}
	pts = r.Points()
	require.Len(t, pts, 4)
	assert.InDelta(t, 0.9, pts[3], 1e-12)
}

func TestBuildDerivesHardwareRanges(t *testing.T) {
	p := motion.NewSimPositioner(map[string]motion.Constraint{
		"x": {Min: 2, Max: 8, Step: 0.25},
	})
	s, err := Build(p, quietLogger())
	require.NoError(t, err)

	r, err := s.Range("x")
	require.NoError(t, err)
	assert.Equal(t, Range{Axis: "x", Min: 2, Max: 8, Step: 0.25}, r)
}

func TestSetRangeClampsToHardwareLimits(t *testing.T) {
	s := testSpace()

	// Both bounds outside hardware limits get clamped, not rejected.
	require.NoError(t, s.SetRange("x", -3, 99, 2))
	r, err := s.Range("x")
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Min)
	assert.Equal(t, 10.0, r.Max)
	assert.Equal(t, 2.0, r.Step)
}

func TestSetRangeStepFallback(t *testing.T) {
	s := testSpace()

	// Zero step falls back to the hardware step.
	require.NoError(t, s.SetRange("y", -2, 2, 0))
	r, _ := s.Range("y")
	assert.Equal(t, 0.5, r.Step)

	// Step larger than the span falls back too.
	require.NoError(t, s.SetRange("y", -2, 2, 50))
	r, _ = s.Range("y")
	assert.Equal(t, 0.5, r.Step)
}

func TestSetRangeInvariants(t *testing.T) {
	s := testSpace()

	// Whatever the input, the stored range stays inside hardware
	// limits with a positive step.
	inputs := [][3]float64{
		{-100, 100, -1},
		{5, 3, 0.5},
		{0, 0, 0},
		{10, 10, 1},
	}
	for _, in := range inputs {
		require.NoError(t, s.SetRange("x", in[0], in[1], in[2]))
		r, err := s.Range("x")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Min, 0.0)
		assert.LessOrEqual(t, r.Max, 10.0)
		assert.LessOrEqual(t, r.Min, r.Max)
		assert.Greater(t, r.Step, 0.0)
	}
}

func TestSetRangeUnknownAxis(t *testing.T) {
	s := testSpace()
	err := s.SetRange("z", 0, 1, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidAxis))
}

func TestSelect(t *testing.T) {
	s := testSpace()

	sel, err := s.Select([]string{"y", "x"})
	require.NoError(t, err)
	assert.Equal(t, Selection{"y", "x"}, sel)
	assert.Equal(t, 0, sel.Index("y"))
	assert.Equal(t, 1, sel.Index("x"))
	assert.Equal(t, -1, sel.Index("phi"))

	_, err = s.Select([]string{"x", "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidAxis))
}

func TestAxesSorted(t *testing.T) {
	s := testSpace()
	assert.Equal(t, []string{"phi", "x", "y"}, s.Axes())
}
