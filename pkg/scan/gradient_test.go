package scan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignd/pkg/axes"
	"alignd/pkg/motion"
)

// triangleSignal peaks at x=5 with a gentle constant slope so that the
// unit-gain step rule produces small, stable steps.
func triangleRig(t *testing.T) (*motion.SimPositioner, motion.SignalSource) {
	t.Helper()
	p := motion.NewSimPositioner(map[string]motion.Constraint{
		"x": {Min: 0, Max: 10, Step: 0.0001},
	})
	sig := funcSignal(func() (float64, error) {
		pos, err := p.Pos([]string{"x"})
		if err != nil {
			return 0, err
		}
		return 10 - 0.005*math.Abs(pos["x"]-5), nil
	})
	return p, sig
}

func TestGradientBeginQueuesTwoPoints(t *testing.T) {
	p, sig := triangleRig(t)
	g := NewGradientStepper(p, sig, 0, 0, quietLogger())
	g.Begin(axes.Selection{"x"}, []float64{4.9}, []float64{0.05})

	require.Len(t, g.points, 2)
	assert.Equal(t, []float64{4.9}, g.points[0])
	assert.InDelta(t, 4.95, g.points[1][0], 1e-9)
}

func TestGradientConvergesNearPeak(t *testing.T) {
	p, sig := triangleRig(t)
	g := NewGradientStepper(p, sig, 0, 0, quietLogger())
	g.Begin(axes.Selection{"x"}, []float64{4.9}, []float64{0.05})

	steps := 0
	for {
		res, err := g.Step()
		require.NoError(t, err)
		if res == StepDone {
			break
		}
		steps++
		require.Less(t, steps, 100, "stepper failed to converge")
	}

	assert.True(t, g.Converged())
	assert.False(t, g.Exhausted())
	require.NotNil(t, g.Final())
	// Final position within one scan-step of the true maximum.
	assert.InDelta(t, 5.0, g.Final()[0], 0.05)
}

func TestGradientConvergesImmediatelyOnFlatSignal(t *testing.T) {
	p := motion.NewSimPositioner(map[string]motion.Constraint{
		"x": {Min: 0, Max: 10, Step: 0.001},
	})
	sig := funcSignal(func() (float64, error) { return 7, nil })

	g := NewGradientStepper(p, sig, 0, 0, quietLogger())
	g.Begin(axes.Selection{"x"}, []float64{1}, []float64{0.5})

	res, err := g.Step()
	require.NoError(t, err)
	assert.Equal(t, StepAdvanced, res)

	// Second sample yields zero slope: at or below the threshold,
	// so the run converges without enqueuing further points.
	res, err = g.Step()
	require.NoError(t, err)
	assert.Equal(t, StepDone, res)
	assert.True(t, g.Converged())
	assert.Len(t, g.Samples(), 2)
}

func TestGradientZeroDenominatorTreatedAsFlat(t *testing.T) {
	// Coarse hardware quantization collapses both sample points onto the
	// same position; the slope guard must not divide by zero.
	p := motion.NewSimPositioner(map[string]motion.Constraint{
		"x": {Min: 0, Max: 10, Step: 5},
	})
	sig := funcSignal(func() (float64, error) { return 1, nil })

	g := NewGradientStepper(p, sig, 0, 0, quietLogger())
	g.Begin(axes.Selection{"x"}, []float64{0}, []float64{0.5})

	_, err := g.Step()
	require.NoError(t, err)
	res, err := g.Step()
	require.NoError(t, err)
	assert.Equal(t, StepDone, res)
	assert.True(t, g.Converged())
}

func TestGradientStepBudget(t *testing.T) {
	// A monotone ramp whose slope never drops below the threshold:
	// only the step budget terminates the run.
	p := motion.NewSimPositioner(map[string]motion.Constraint{
		"x": {Min: 0, Max: 1e9, Step: 0.0001},
	})
	sig := funcSignal(func() (float64, error) {
		pos, err := p.Pos([]string{"x"})
		if err != nil {
			return 0, err
		}
		return 0.01 * pos["x"], nil
	})

	g := NewGradientStepper(p, sig, 0, 10, quietLogger())
	g.Begin(axes.Selection{"x"}, []float64{0}, []float64{1})

	for i := 0; i < 20; i++ {
		res, err := g.Step()
		require.NoError(t, err)
		if res == StepDone {
			break
		}
	}
	assert.True(t, g.Converged())
	assert.True(t, g.Exhausted())
	assert.Len(t, g.Samples(), 10)
}

func TestGradientStepAfterDone(t *testing.T) {
	// Busy deferral goes through the same acquisition rig as the
	// raster sampler (TestSamplerBusyDoesNotAdvance); here just check
	// that Step after convergence keeps returning StepDone.
	p, _ := triangleRig(t)
	g := NewGradientStepper(p, funcSignal(func() (float64, error) { return 1, nil }), 0, 0, quietLogger())
	g.Begin(axes.Selection{"x"}, []float64{1}, []float64{0.5})
	_, err := g.Step()
	require.NoError(t, err)
	_, err = g.Step()
	require.NoError(t, err)

	res, err := g.Step()
	require.NoError(t, err)
	assert.Equal(t, StepDone, res)
}
