package piecewisejerk

import (
	"fmt"

	"speedopt-core/internal/kinematic"
)

// PiecewiseJerkQP is the builder/operations contract from spec.md §4.1:
// set_bounds/set_weights/set_x_ref/set_end_state_ref configure a
// kinematic.Problem, Optimize hands it to an injected QPSolver, and
// opt_x/opt_dx/opt_ddx expose the last successful Solution.
type PiecewiseJerkQP struct {
	problem      kinematic.Problem
	solver       QPSolver
	result       Solution
	solved       bool
	warmStart    *Solution
}

// New builds a PiecewiseJerkQP over a fixed horizon/step, with an
// injected solver (nil defaults to NewADMMSolver()).
func New(n int, dt float64, initS, initV, initA float64, solver QPSolver) *PiecewiseJerkQP {
	if solver == nil {
		solver = NewADMMSolver()
	}
	return &PiecewiseJerkQP{
		problem: kinematic.Problem{N: n, Dt: dt, InitS: initS, InitV: initV, InitA: initA},
		solver:  solver,
	}
}

func (q *PiecewiseJerkQP) SetBounds(sBounds []kinematic.Bound, vMax, aMin, aMax, jerkMin, jerkMax float64) error {
	if len(sBounds) != q.problem.N {
		return fmt.Errorf("piecewisejerk: set_bounds: len(sBounds)=%d != N=%d", len(sBounds), q.problem.N)
	}
	q.problem.SBounds = sBounds
	q.problem.VMax = vMax
	q.problem.AMin = aMin
	q.problem.AMax = aMax
	q.problem.JerkMin = jerkMin
	q.problem.JerkMax = jerkMax
	return nil
}

func (q *PiecewiseJerkQP) SetWeights(w kinematic.Weights) error {
	if w.S < 0 || w.V < 0 || w.A < 0 || w.J < 0 {
		return fmt.Errorf("piecewisejerk: set_weights: weights must be non-negative: %+v", w)
	}
	q.problem.Weights = w
	return nil
}

func (q *PiecewiseJerkQP) SetXRef(weight float64, ref []float64) error {
	if len(ref) != q.problem.N {
		return fmt.Errorf("piecewisejerk: set_x_ref: len(ref)=%d != N=%d", len(ref), q.problem.N)
	}
	q.problem.Weights.S = weight
	q.problem.SRef = ref
	return nil
}

func (q *PiecewiseJerkQP) SetEndStateRef(ref kinematic.EndStateRef) {
	ref.Enabled = true
	q.problem.End = ref
}

// SetWarmStart records a prior solution to prime the solver's primal
// iterate; applied once Optimize has called the solver's Setup, since
// Setup resets the solver's internal state.
func (q *PiecewiseJerkQP) SetWarmStart(sol Solution) error {
	if len(sol.X) != q.problem.N || len(sol.Dx) != q.problem.N || len(sol.Ddx) != q.problem.N {
		return fmt.Errorf("piecewisejerk: warm start size mismatch")
	}
	q.warmStart = &sol
	return nil
}

// Optimize runs the configured solver. On failure it leaves the prior
// result undefined (opt_x/opt_dx/opt_ddx must not be called) and
// returns false, per spec.md §4.1's local, exception-free failure
// semantics.
func (q *PiecewiseJerkQP) Optimize(maxIter int) bool {
	if err := q.problem.Validate(); err != nil {
		q.solved = false
		return false
	}
	if err := q.solver.Setup(&q.problem); err != nil {
		q.solved = false
		return false
	}
	if q.warmStart != nil {
		z := make([]float64, 3*q.problem.N)
		copy(z[0:q.problem.N], q.warmStart.X)
		copy(z[q.problem.N:2*q.problem.N], q.warmStart.Dx)
		copy(z[2*q.problem.N:3*q.problem.N], q.warmStart.Ddx)
		if err := q.solver.SetWarmStart(z); err != nil {
			q.solved = false
			return false
		}
	}
	sol, ok := q.solver.Solve(maxIter)
	if !ok {
		q.solved = false
		return false
	}
	q.result = sol
	q.solved = true
	return true
}

func (q *PiecewiseJerkQP) OptX() []float64   { return q.result.X }
func (q *PiecewiseJerkQP) OptDx() []float64  { return q.result.Dx }
func (q *PiecewiseJerkQP) OptDdx() []float64 { return q.result.Ddx }
func (q *PiecewiseJerkQP) Solved() bool      { return q.solved }
