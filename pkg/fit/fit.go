// Peak estimation from scan samples
//
// Fits an additive-background multiplicative Gaussian model
//
//	A * prod_i exp(-(x_i - c_i)^2 / (2 w_i^2)) + B
//
// to the accumulated samples by nonlinear least squares and returns
// the fitted center vector. The solver is a Levenberg-Marquardt
// iteration over a forward-difference Jacobian; no bound constraints
// are imposed beyond the initial guess.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package fit

import (
	"math"

	"alignd/pkg/axes"
	"alignd/pkg/errors"
	"alignd/pkg/log"
	"alignd/pkg/scan"
)

const (
	defaultMaxIterations = 100
	defaultTolerance     = 1e-10

	lambdaInit   = 1e-3
	lambdaShrink = 0.3
	lambdaGrow   = 10.0
	lambdaMax    = 1e12
)

// Result holds the fitted model parameters.
type Result struct {
	Amplitude  float64
	Background float64
	Center     []float64
	Width      []float64
	Cost       float64
	Iterations int
}

// Fitter estimates the optimum position from a completed sample set.
type Fitter struct {
	MaxIterations int
	Tolerance     float64
	logger        *log.Logger
}

// NewFitter creates a fitter with the default iteration budget.
func NewFitter(logger *log.Logger) *Fitter {
	return &Fitter{
		MaxIterations: defaultMaxIterations,
		Tolerance:     defaultTolerance,
		logger:        logger,
	}
}

// Fit estimates the peak location. The returned center vector uses the
// same axis order as the selection. It fails with a FIT error when
// fewer samples than free parameters exist, when any axis has a
// degenerate scanned span, or when the solver does not converge within
// its iteration budget; the caller must not move hardware on failure.
func (f *Fitter) Fit(samples []scan.Sample, selection axes.Selection) (Result, error) {
	n := len(selection)
	nparams := 2 + 2*n
	if len(samples) < nparams {
		return Result{}, errors.FitError("not enough samples for the model's free parameters")
	}

	params, err := initialGuess(samples, n)
	if err != nil {
		return Result{}, err
	}

	params, cost, iters, err := f.minimize(samples, params)
	if err != nil {
		return Result{}, err
	}
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Result{}, errors.FitError("solver produced a non-finite parameter")
		}
	}

	res := Result{
		Amplitude:  params[0],
		Background: params[1],
		Center:     append([]float64(nil), params[2:2+n]...),
		Width:      append([]float64(nil), params[2+n:2+2*n]...),
		Cost:       cost,
		Iterations: iters,
	}
	f.logger.Debug("fit converged after %d iterations, cost %.6g", iters, cost)
	return res, nil
}

// initialGuess builds the starting parameter vector: amplitude at the
// sample maximum, background at the minimum, each center at the
// position of the maximal sample, and each width at a tenth of the
// scanned span, bounded below by the minimum spacing between
// consecutive scanned points on that axis.
func initialGuess(samples []scan.Sample, n int) ([]float64, error) {
	maxVal := samples[0].Value
	minVal := samples[0].Value
	maxIdx := 0
	for k, s := range samples {
		if s.Value > maxVal {
			maxVal = s.Value
			maxIdx = k
		}
		if s.Value < minVal {
			minVal = s.Value
		}
	}

	params := make([]float64, 2+2*n)
	params[0] = maxVal
	params[1] = minVal

	for i := 0; i < n; i++ {
		lo := samples[0].Position[i]
		hi := samples[0].Position[i]
		minSpacing := math.Inf(1)
		for k, s := range samples {
			v := s.Position[i]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
			if k > 0 {
				d := math.Abs(v - samples[k-1].Position[i])
				if d > 0 && d < minSpacing {
					minSpacing = d
				}
			}
		}
		if hi == lo {
			return nil, errors.FitError("degenerate scan: axis has zero range")
		}
		width := (hi - lo) / 10
		if width < minSpacing {
			width = minSpacing
		}
		params[2+i] = samples[maxIdx].Position[i]
		params[2+n+i] = width
	}
	return params, nil
}

// model evaluates the Gaussian model at one sample position.
func model(params []float64, pos []float64) float64 {
	n := len(pos)
	v := params[0]
	for i := 0; i < n; i++ {
		d := pos[i] - params[2+i]
		w := params[2+n+i]
		denom := 2 * w * w
		if denom <= 0 {
			denom = 1e-300
		}
		v *= math.Exp(-d * d / denom)
	}
	return v + params[1]
}

// residuals fills r with model minus observation for each sample.
func residuals(params []float64, samples []scan.Sample, r []float64) {
	for k, s := range samples {
		r[k] = model(params, s.Position) - s.Value
	}
}

func sumSquares(r []float64) float64 {
	var c float64
	for _, v := range r {
		c += v * v
	}
	return c
}

// minimize runs the Levenberg-Marquardt iteration.
func (f *Fitter) minimize(samples []scan.Sample, params []float64) ([]float64, float64, int, error) {
	m := len(samples)
	n := len(params)

	r := make([]float64, m)
	rTry := make([]float64, m)
	residuals(params, samples, r)
	cost := sumSquares(r)

	lambda := lambdaInit
	jac := make([][]float64, m)
	for k := range jac {
		jac[k] = make([]float64, n)
	}

	for iter := 1; iter <= f.MaxIterations; iter++ {
		f.jacobian(params, samples, r, jac)

		// Normal equations: H = J^T J, g = J^T r.
		h := make([][]float64, n)
		g := make([]float64, n)
		for i := 0; i < n; i++ {
			h[i] = make([]float64, n)
			for j := 0; j < n; j++ {
				var s float64
				for k := 0; k < m; k++ {
					s += jac[k][i] * jac[k][j]
				}
				h[i][j] = s
			}
			var s float64
			for k := 0; k < m; k++ {
				s += jac[k][i] * r[k]
			}
			g[i] = s
		}

		gMax := 0.0
		for i := 0; i < n; i++ {
			if a := math.Abs(g[i]); a > gMax {
				gMax = a
			}
		}
		if gMax < 1e-12 {
			return params, cost, iter, nil
		}

		accepted := false
		for lambda <= lambdaMax {
			// Damped system (H + lambda*diag(H)) d = -g.
			a := make([][]float64, n)
			b := make([]float64, n)
			for i := 0; i < n; i++ {
				a[i] = append([]float64(nil), h[i]...)
				a[i][i] += lambda * h[i][i]
				if a[i][i] == 0 {
					a[i][i] = lambda
				}
				b[i] = -g[i]
			}
			d, ok := solve(a, b)
			if !ok {
				lambda *= lambdaGrow
				continue
			}

			try := make([]float64, n)
			for i := 0; i < n; i++ {
				try[i] = params[i] + d[i]
			}
			residuals(try, samples, rTry)
			costTry := sumSquares(rTry)

			if costTry < cost && !math.IsNaN(costTry) {
				improvement := cost - costTry
				copy(params, try)
				copy(r, rTry)
				cost = costTry
				lambda *= lambdaShrink
				accepted = true
				if improvement <= f.Tolerance*(cost+1e-30) {
					return params, cost, iter, nil
				}
				break
			}
			lambda *= lambdaGrow
		}
		if !accepted {
			// Damping saturated without finding a downhill step.
			// Near-zero gradient means the iteration sits at a
			// minimum; anything else is a failed fit.
			if gMax < 1e-6*(1+cost) {
				return params, cost, iter, nil
			}
			return nil, 0, iter, errors.FitError("solver stalled before converging")
		}
	}
	return nil, 0, f.MaxIterations, errors.FitError("solver failed to converge within its iteration budget")
}

// jacobian computes the forward-difference Jacobian of the residual
// vector. The base residuals r are reused to save one evaluation per
// parameter.
func (f *Fitter) jacobian(params []float64, samples []scan.Sample, r []float64, jac [][]float64) {
	n := len(params)
	pert := make([]float64, n)
	copy(pert, params)
	rp := make([]float64, len(samples))

	for j := 0; j < n; j++ {
		h := 1e-7 * math.Max(1, math.Abs(params[j]))
		pert[j] = params[j] + h
		residuals(pert, samples, rp)
		for k := range samples {
			jac[k][j] = (rp[k] - r[k]) / h
		}
		pert[j] = params[j]
	}
}

// solve performs Gaussian elimination with partial pivoting on a*x=b.
func solve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-300 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		s := b[row]
		for k := row + 1; k < n; k++ {
			s -= a[row][k] * x[k]
		}
		x[row] = s / a[row][row]
	}
	return x, true
}
