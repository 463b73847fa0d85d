// Package admm is the shared OSQP-style ADMM engine behind both the
// piecewise-jerk QP and the NLP refinement's sequential convex
// sub-problems: factor (P + σI + ρAᵀA) once, then alternate a linear
// solve against that fixed factor with a box projection and a dual
// update. Lifted out of piecewisejerk so the NLP's per-iteration
// linearized QP can reuse the same solver core instead of duplicating
// it.
package admm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultSigma = 1e-6
	DefaultRho   = 1.0
	AbsTol       = 1e-4
)

// QP is minimize 0.5 xᵀPx + qᵀx subject to l <= Ax <= u.
type QP struct {
	P    *mat.SymDense
	Q    []float64
	A    *mat.Dense
	L, U []float64
}

// Factored is a QP with its reusable ADMM KKT factorization computed;
// Solve can be called repeatedly (different warm starts) without
// refactorizing, which is the whole point of the split.
type Factored struct {
	qp         QP
	n, m       int
	sigma, rho float64
	chol       mat.Cholesky
}

// Factorize builds and Cholesky-factors (P + σI + ρAᵀA).
func Factorize(qp QP, sigma, rho float64) (*Factored, error) {
	n, _ := qp.P.Dims()
	m := qp.A.RawMatrix().Rows

	var ata mat.Dense
	ata.Mul(qp.A.T(), qp.A)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := qp.P.At(i, j) + rho*ata.At(i, j)
			if i == j {
				v += sigma
			}
			k.SetSym(i, j, v)
		}
	}
	f := &Factored{qp: qp, n: n, m: m, sigma: sigma, rho: rho}
	if ok := f.chol.Factorize(k); !ok {
		return nil, fmt.Errorf("admm: KKT matrix not positive definite")
	}
	return f, nil
}

// Solve runs the ADMM loop from warmX (or zeros if nil) for up to
// maxIter iterations, returning (x, true) on convergence or
// (nil, false) otherwise.
func (f *Factored) Solve(warmX []float64, maxIter int) ([]float64, bool) {
	if maxIter <= 0 {
		maxIter = 4000
	}
	n, m := f.n, f.m

	x0 := make([]float64, n)
	if warmX != nil {
		copy(x0, warmX)
	}
	x := mat.NewVecDense(n, x0)
	z := mat.NewVecDense(m, nil)
	z.MulVec(f.qp.A, x)
	y := mat.NewVecDense(m, nil)
	q := mat.NewVecDense(n, f.qp.Q)

	rhoZMinusY := mat.NewVecDense(m, nil)
	atRhs := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	xNew := mat.NewVecDense(n, nil)
	axNew := mat.NewVecDense(m, nil)
	zNew := mat.NewVecDense(m, nil)
	dualStep := mat.NewVecDense(m, nil)
	atDual := mat.NewVecDense(n, nil)

	for iter := 0; iter < maxIter; iter++ {
		rhoZMinusY.ScaleVec(f.rho, z)
		rhoZMinusY.SubVec(rhoZMinusY, y)
		atRhs.MulVec(f.qp.A.T(), rhoZMinusY)
		rhs.ScaleVec(f.sigma, x)
		rhs.AddVec(rhs, atRhs)
		rhs.SubVec(rhs, q)

		if err := f.chol.SolveVecTo(xNew, rhs); err != nil {
			return nil, false
		}

		axNew.MulVec(f.qp.A, xNew)
		primal := 0.0
		for i := 0; i < m; i++ {
			v := axNew.AtVec(i) + y.AtVec(i)/f.rho
			zi := clampf(v, f.qp.L[i], f.qp.U[i])
			zNew.SetVec(i, zi)
			if d := math.Abs(axNew.AtVec(i) - zi); d > primal {
				primal = d
			}
		}

		dualStep.SubVec(zNew, z)
		dualStep.ScaleVec(f.rho, dualStep)
		atDual.MulVec(f.qp.A.T(), dualStep)
		dual := 0.0
		for i := 0; i < n; i++ {
			if d := math.Abs(atDual.AtVec(i)); d > dual {
				dual = d
			}
		}

		for i := 0; i < m; i++ {
			y.SetVec(i, y.AtVec(i)+f.rho*(axNew.AtVec(i)-zNew.AtVec(i)))
		}
		x.CopyVec(xNew)
		z.CopyVec(zNew)

		if primal < AbsTol && dual < AbsTol {
			out := make([]float64, n)
			for i := 0; i < n; i++ {
				out[i] = x.AtVec(i)
			}
			return out, true
		}
	}
	return nil, false
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
