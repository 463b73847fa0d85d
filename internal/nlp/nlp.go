// Package nlp formulates and solves the nonlinear refinement stage
// from spec.md §4.4: the same kinematic coupling as the QP, plus
// pointwise speed-limit and centripetal-acceleration constraints and
// soft-bound slack penalties. The solver is a sequential convex
// program: each outer iteration linearizes the nonlinear terms around
// the current iterate and hands the resulting QP to the same
// internal/admm engine the piecewise-jerk QP backend uses.
package nlp

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"speedopt-core/internal/admm"
	"speedopt-core/internal/curvefit"
	"speedopt-core/internal/kinematic"
	"speedopt-core/internal/piecewisejerk"
)

// Weights are the NLP's objective coefficients from spec.md §4.4.
type Weights struct {
	RefS, RefV, A, J, Lat, Soft float64
}

// Problem is the NLPInterface's decision surface: same z as the QP,
// plus the smoothed curves and soft-bound machinery the QP never saw.
type Problem struct {
	N                    int
	Dt                   float64
	InitS, InitV, InitA  float64
	SBounds              []kinematic.Bound
	SoftBounds           []kinematic.Bound
	UseSoftBound         bool
	VMax                 float64
	AMin, AMax           float64
	JerkMin, JerkMax     float64
	ALatMax              float64
	VCruise              float64
	SRefSpatial          []float64
	VLimitSmooth         *curvefit.Trajectory1d
	KappaSmooth          *curvefit.Trajectory1d
	Weights              Weights
}

// Solution reuses the QP's shape: opt_x/opt_dx/opt_ddx.
type Solution = piecewisejerk.Solution

// NLPSolver is the injection seam matching QPSolver: a concrete NLP
// backend is reached only through this interface.
type NLPSolver interface {
	Setup(p Problem) error
	SetWarmStart(d, v, a []float64) error
	Solve(maxIter int) (Solution, bool)
}

// solveMu is the process-wide mutex spec.md §5 calls out: the NLP path
// is serialized because the scratch buffers a real nonlinear solver
// would reuse across calls are not safe for concurrent solves.
var solveMu sync.Mutex

const (
	defaultMaxOuterIters = 1000
	outerStepTol         = 1e-3
	acceptableStepTol    = 1e-2
	unboundedSentinel    = 1e9
)

// SCPSolver is the concrete NLPSolver backend.
type SCPSolver struct {
	problem Problem
	z       []float64 // warm-started iterate, len 3N
}

func NewSCPSolver() *SCPSolver { return &SCPSolver{} }

func (s *SCPSolver) Setup(p Problem) error {
	if p.N <= 0 {
		return fmt.Errorf("nlp: N must be positive")
	}
	if len(p.SBounds) != p.N {
		return fmt.Errorf("nlp: len(SBounds)=%d != N=%d", len(p.SBounds), p.N)
	}
	if p.UseSoftBound && len(p.SoftBounds) != p.N {
		return fmt.Errorf("nlp: len(SoftBounds)=%d != N=%d", len(p.SoftBounds), p.N)
	}
	if p.VLimitSmooth == nil || p.KappaSmooth == nil {
		return fmt.Errorf("nlp: missing smoothed v_limit/kappa trajectories")
	}
	s.problem = p
	s.z = nil
	return nil
}

func (s *SCPSolver) SetWarmStart(d, v, a []float64) error {
	n := s.problem.N
	if len(d) != n || len(v) != n || len(a) != n {
		return fmt.Errorf("nlp: warm start size mismatch")
	}
	z := make([]float64, 3*n)
	copy(z[0:n], d)
	copy(z[n:2*n], v)
	copy(z[2*n:3*n], a)
	s.z = z
	return nil
}

// CheckSpeedLimitFeasibility is spec.md §4.5 step 5's gate: the NLP
// stage only runs if the initial speed doesn't already exceed the
// smoothed speed limit at the initial station beyond tolerance.
func CheckSpeedLimitFeasibility(vLimitSmooth *curvefit.Trajectory1d, s0, v0, eps float64) bool {
	return v0 <= vLimitSmooth.Evaluate(0, s0)+eps
}

func (s *SCPSolver) Solve(maxIter int) (Solution, bool) {
	solveMu.Lock()
	defer solveMu.Unlock()

	if maxIter <= 0 {
		maxIter = defaultMaxOuterIters
	}
	p := s.problem
	n := p.N

	z := s.z
	if z == nil {
		z = make([]float64, 3*n)
		for i := 0; i < n; i++ {
			z[idxS(i)] = p.InitS
		}
	}
	z[idxS(0)], z[idxV(n, 0)], z[idxA(n, 0)] = p.InitS, p.InitV, p.InitA

	base := &kinematic.Problem{
		N: n, Dt: p.Dt,
		InitS: p.InitS, InitV: p.InitV, InitA: p.InitA,
		SBounds: p.SBounds,
		VMax:    p.VMax, AMin: p.AMin, AMax: p.AMax,
		JerkMin: p.JerkMin, JerkMax: p.JerkMax,
		Weights: kinematic.Weights{A: p.Weights.A, J: p.Weights.J},
	}
	baseQP, err := piecewisejerk.Build(base)
	if err != nil {
		return Solution{}, false
	}

	converged := false
	lastStep := math.Inf(1)
	for iter := 0; iter < maxIter; iter++ {
		subQP, slackCols := s.buildSubproblem(baseQP, z)
		f, ferr := admm.Factorize(subQP, admm.DefaultSigma, admm.DefaultRho)
		if ferr != nil {
			return Solution{}, false
		}
		warm := make([]float64, 3*n+slackCols)
		copy(warm, z)
		xs, ok := f.Solve(warm, 2000)
		if !ok {
			return Solution{}, false
		}

		step := 0.0
		for i := 0; i < 3*n; i++ {
			if d := math.Abs(xs[i] - z[i]); d > step {
				step = d
			}
		}
		z = append([]float64(nil), xs[:3*n]...)
		lastStep = step
		if step < outerStepTol {
			converged = true
			break
		}
	}

	if !converged && lastStep < acceptableStepTol {
		converged = true
	}
	if !converged {
		return Solution{}, false
	}

	z[idxS(0)], z[idxV(n, 0)], z[idxA(n, 0)] = p.InitS, p.InitV, p.InitA
	return Solution{
		X:   append([]float64(nil), z[0:n]...),
		Dx:  append([]float64(nil), z[n:2*n]...),
		Ddx: append([]float64(nil), z[2*n:3*n]...),
	}, true
}

func idxS(i int) int    { return i }
func idxV(n, i int) int { return n + i }
func idxA(n, i int) int { return 2*n + i }

// buildSubproblem linearizes the nonlinear terms around z and extends
// baseQP with: the spatial/velocity reference costs, the Gauss-Newton
// linearization of the lateral-acceleration cost, the two linearized
// nonlinear inequality rows per knot, and — when soft bounds are
// enabled — two slack columns and four rows per knot encoding the
// soft-bound penalty constraints.
func (s *SCPSolver) buildSubproblem(baseQP admm.QP, z []float64) (admm.QP, int) {
	p := s.problem
	n := p.N
	nBase := 3 * n
	slackCols := 0
	if p.UseSoftBound {
		slackCols = 2 * n
	}
	nTotal := nBase + slackCols

	P := mat.NewSymDense(nTotal, nil)
	for i := 0; i < nBase; i++ {
		for j := i; j < nBase; j++ {
			if v := baseQP.P.At(i, j); v != 0 {
				P.SetSym(i, j, v)
			}
		}
	}
	q := make([]float64, nTotal)
	copy(q, baseQP.Q)

	addSym := func(i, j int, v float64) {
		if i > j {
			i, j = j, i
		}
		P.SetSym(i, j, P.At(i, j)+v)
	}

	for i := 0; i < n; i++ {
		si, vi := idxS(i), idxV(n, i)

		if p.Weights.RefS > 0 && p.SRefSpatial != nil {
			addSym(si, si, 2*p.Weights.RefS)
			q[si] += -2 * p.Weights.RefS * p.SRefSpatial[i]
		}
		if p.Weights.RefV > 0 {
			addSym(vi, vi, 2*p.Weights.RefV)
			q[vi] += -2 * p.Weights.RefV * p.VCruise
		}
		if p.Weights.Lat > 0 {
			sk, vk := z[si], z[vi]
			kappa := p.KappaSmooth.Evaluate(0, sk)
			dkappa := p.KappaSmooth.Evaluate(1, sk)
			gv := 2 * vk * kappa
			gs := vk * vk * dkappa
			rk := vk * vk * kappa
			c := rk - gv*vk - gs*sk
			w := p.Weights.Lat
			addSym(vi, vi, 2*w*gv*gv)
			addSym(si, si, 2*w*gs*gs)
			addSym(vi, si, 2*w*gv*gs)
			q[vi] += 2 * w * c * gv
			q[si] += 2 * w * c * gs
		}
	}

	if p.UseSoftBound && p.Weights.Soft > 0 {
		for i := 0; i < 2*n; i++ {
			idx := nBase + i
			addSym(idx, idx, 2*p.Weights.Soft)
		}
	}

	baseRows, _ := baseQP.A.Dims()
	extraRows := 2 * n
	if p.UseSoftBound {
		extraRows += 4 * n
	}
	totalRows := baseRows + extraRows
	A := mat.NewDense(totalRows, nTotal, nil)
	l := make([]float64, totalRows)
	u := make([]float64, totalRows)
	for r := 0; r < baseRows; r++ {
		for c := 0; c < nBase; c++ {
			if v := baseQP.A.At(r, c); v != 0 {
				A.Set(r, c, v)
			}
		}
		l[r] = baseQP.L[r]
		u[r] = baseQP.U[r]
	}

	row := baseRows
	for i := 0; i < n; i++ {
		si, vi := idxS(i), idxV(n, i)
		sk, vk := z[si], z[vi]

		vlim := p.VLimitSmooth.Evaluate(0, sk)
		dvlim := p.VLimitSmooth.Evaluate(1, sk)
		A.Set(row, vi, 1)
		A.Set(row, si, -dvlim)
		u[row] = vlim - dvlim*sk
		l[row] = -unboundedSentinel
		row++

		kappa := p.KappaSmooth.Evaluate(0, sk)
		dkappa := p.KappaSmooth.Evaluate(1, sk)
		fk := vk * vk * kappa
		gv := 2 * vk * kappa
		gs := vk * vk * dkappa
		A.Set(row, vi, gv)
		A.Set(row, si, gs)
		u[row] = p.ALatMax - fk + gv*vk + gs*sk
		l[row] = -unboundedSentinel
		row++
	}

	if p.UseSoftBound {
		for i := 0; i < n; i++ {
			si := idxS(i)
			hiCol := nBase + i
			loCol := nBase + n + i

			A.Set(row, si, 1)
			A.Set(row, hiCol, -1)
			u[row] = p.SoftBounds[i].Upper
			l[row] = -unboundedSentinel
			row++

			A.Set(row, si, 1)
			A.Set(row, loCol, 1)
			l[row] = p.SoftBounds[i].Lower
			u[row] = unboundedSentinel
			row++
		}
		for i := 0; i < 2*n; i++ {
			idx := nBase + i
			A.Set(row, idx, 1)
			l[row] = 0
			u[row] = unboundedSentinel
			row++
		}
	}

	return admm.QP{P: P, Q: q, A: A, L: l, U: u}, slackCols
}
