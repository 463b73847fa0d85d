// Package piecewisejerk builds and solves the convex QP over the
// stacked [s; ṡ; s̈] decision vector described in spec.md §4.1. It is
// reused by the speed QP and by the two curve-smoothing QPs in the
// curvefit package.
package piecewisejerk

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"speedopt-core/internal/admm"
	"speedopt-core/internal/kinematic"
)

// Solution is the QP/NLP result: opt_x/opt_dx/opt_ddx, each length N.
type Solution struct {
	X, Dx, Ddx []float64
}

// QPSolver is the injection seam spec.md §9 calls out: PiecewiseJerkQP
// depends on this interface, not on ADMMSolver directly, so tests can
// substitute a mock.
type QPSolver interface {
	Setup(p *kinematic.Problem) error
	SetWarmStart(z []float64) error
	Solve(maxIter int) (Solution, bool)
}

// ADMMSolver assembles the piecewise-jerk cost/constraint matrices
// from a kinematic.Problem and delegates the iteration to the shared
// admm engine.
type ADMMSolver struct {
	problem *kinematic.Problem
	n       int
	factored *admm.Factored
	warmX   []float64
}

func NewADMMSolver() *ADMMSolver {
	return &ADMMSolver{}
}

func idxS(i int) int    { return i }
func idxV(n, i int) int { return n + i }
func idxA(n, i int) int { return 2*n + i }

// Build assembles the dense P, q, A, l, u for a piecewise-jerk problem
// — shared between ADMMSolver.Setup and the NLP's per-iteration
// sub-problems that extend this same structure with extra rows.
func Build(p *kinematic.Problem) (admm.QP, error) {
	if err := p.Validate(); err != nil {
		return admm.QP{}, fmt.Errorf("piecewisejerk: invalid problem: %w", err)
	}
	n := 3 * p.N

	pMat := mat.NewSymDense(n, nil)
	q := make([]float64, n)

	for i := 0; i < p.N; i++ {
		si, vi, ai := idxS(i), idxV(p.N, i), idxA(p.N, i)
		if p.Weights.S > 0 {
			pMat.SetSym(si, si, pMat.At(si, si)+2*p.Weights.S)
		}
		if p.Weights.V > 0 {
			pMat.SetSym(vi, vi, pMat.At(vi, vi)+2*p.Weights.V)
		}
		if p.Weights.A > 0 {
			pMat.SetSym(ai, ai, pMat.At(ai, ai)+2*p.Weights.A)
		}
		if p.SRef != nil {
			q[si] += -2 * p.Weights.S * p.SRef[i]
		}
	}

	dt2 := p.Dt * p.Dt
	if p.Weights.J > 0 && dt2 > 0 {
		c := 2 * p.Weights.J / dt2
		for i := 0; i < p.N-1; i++ {
			ai, ai1 := idxA(p.N, i), idxA(p.N, i+1)
			pMat.SetSym(ai, ai, pMat.At(ai, ai)+c)
			pMat.SetSym(ai1, ai1, pMat.At(ai1, ai1)+c)
			pMat.SetSym(ai, ai1, pMat.At(ai, ai1)-c)
		}
	}

	if p.End.Enabled {
		last := p.N - 1
		addEnd := func(idx int, w, ref float64) {
			if w <= 0 {
				return
			}
			pMat.SetSym(idx, idx, pMat.At(idx, idx)+2*w)
			q[idx] += -2 * w * ref
		}
		addEnd(idxS(last), p.End.WeightS, p.End.S)
		addEnd(idxV(p.N, last), p.End.WeightV, p.End.V)
		addEnd(idxA(p.N, last), p.End.WeightA, p.End.A)
	}

	type row struct {
		coeffs map[int]float64
		l, u   float64
	}
	var rows []row
	addRow := func(coeffs map[int]float64, l, u float64) {
		rows = append(rows, row{coeffs: coeffs, l: l, u: u})
	}

	addRow(map[int]float64{idxS(0): 1}, p.InitS, p.InitS)
	addRow(map[int]float64{idxV(p.N, 0): 1}, p.InitV, p.InitV)
	addRow(map[int]float64{idxA(p.N, 0): 1}, p.InitA, p.InitA)

	for i := 0; i < p.N-1; i++ {
		addRow(map[int]float64{
			idxS(i + 1):      1,
			idxS(i):          -1,
			idxV(p.N, i):     -p.Dt,
			idxA(p.N, i):     -dt2 / 3,
			idxA(p.N, i + 1): -dt2 / 6,
		}, 0, 0)
		addRow(map[int]float64{
			idxV(p.N, i + 1): 1,
			idxV(p.N, i):     -1,
			idxA(p.N, i):     -0.5 * p.Dt,
			idxA(p.N, i + 1): -0.5 * p.Dt,
		}, 0, 0)
	}

	for i := 0; i < p.N; i++ {
		addRow(map[int]float64{idxS(i): 1}, p.SBounds[i].Lower, p.SBounds[i].Upper)
		addRow(map[int]float64{idxV(p.N, i): 1}, 0, p.VMax)
		addRow(map[int]float64{idxA(p.N, i): 1}, p.AMin, p.AMax)
	}

	for i := 0; i < p.N-1; i++ {
		addRow(map[int]float64{idxA(p.N, i + 1): 1, idxA(p.N, i): -1},
			p.JerkMin*p.Dt, p.JerkMax*p.Dt)
	}

	m := len(rows)
	aMat := mat.NewDense(m, n, nil)
	l := make([]float64, m)
	u := make([]float64, m)
	for r, row := range rows {
		for c, v := range row.coeffs {
			aMat.Set(r, c, v)
		}
		l[r] = row.l
		u[r] = row.u
	}

	return admm.QP{P: pMat, Q: q, A: aMat, L: l, U: u}, nil
}

// Setup assembles the problem and factorizes the reusable ADMM KKT
// matrix. It returns an error (not a bool) because this is structural
// failure (bad input), distinct from the solver's own non-convergence,
// which Solve reports via its bool.
func (s *ADMMSolver) Setup(p *kinematic.Problem) error {
	qp, err := Build(p)
	if err != nil {
		return err
	}
	f, err := admm.Factorize(qp, admm.DefaultSigma, admm.DefaultRho)
	if err != nil {
		return err
	}
	s.problem = p
	s.n = 3 * p.N
	s.factored = f
	s.warmX = nil
	return nil
}

// SetWarmStart primes the ADMM primal iterate with a prior stacked
// [s; ṡ; s̈] vector.
func (s *ADMMSolver) SetWarmStart(z []float64) error {
	if len(z) != s.n {
		return fmt.Errorf("piecewisejerk: warm start length %d != %d", len(z), s.n)
	}
	s.warmX = append([]float64(nil), z...)
	return nil
}

// Solve runs the ADMM loop up to maxIter iterations, returning (zero
// value, false) on non-convergence per spec.md §4.1's failure
// semantics — no exceptions, the caller decides fallback.
func (s *ADMMSolver) Solve(maxIter int) (Solution, bool) {
	xs, ok := s.factored.Solve(s.warmX, maxIter)
	if !ok {
		return Solution{}, false
	}
	// pin the initial triple exactly, per opt_x[0]=s0 etc.
	xs[idxS(0)] = s.problem.InitS
	xs[idxV(s.problem.N, 0)] = s.problem.InitV
	xs[idxA(s.problem.N, 0)] = s.problem.InitA

	return Solution{
		X:   append([]float64(nil), xs[0:s.problem.N]...),
		Dx:  append([]float64(nil), xs[s.problem.N:2*s.problem.N]...),
		Ddx: append([]float64(nil), xs[2*s.problem.N:3*s.problem.N]...),
	}, true
}
