// Package kinematic holds the discretization-independent problem data
// shared by every piecewise-jerk QP solved in a planning cycle: the
// speed QP itself, and the two curve-smoothing QPs it depends on.
package kinematic

import "fmt"

// Bound is a closed interval [Lower, Upper].
type Bound struct {
	Lower float64
	Upper float64
}

// Weights are the quadratic-cost coefficients from spec.md §4.1:
// Σ wS·(sᵢ-sRefᵢ)² + wV·ṡᵢ² + wA·s̈ᵢ² + wJ·((s̈ᵢ₊₁-s̈ᵢ)/Δt)².
type Weights struct {
	S float64
	V float64
	A float64
	J float64
}

// EndStateRef is the optional terminal-state tracking term set via
// set_end_state_ref.
type EndStateRef struct {
	Enabled bool
	S, V, A float64
	WeightS, WeightV, WeightA float64
}

// Problem is the KinematicProblem data holder: horizon, per-knot hard
// s bounds, global derivative bounds, cost weights and reference
// arrays. It owns nothing beyond one planning cycle.
type Problem struct {
	N  int
	Dt float64

	InitS float64
	InitV float64
	InitA float64

	SBounds []Bound // len N, per-knot hard bound on s
	VMax    float64 // global: ṡ ∈ [0, VMax]
	AMin    float64 // global: s̈ ∈ [AMin, AMax]
	AMax    float64
	JerkMin float64 // ⃛s ∈ [JerkMin, JerkMax]
	JerkMax float64

	Weights Weights
	SRef    []float64 // len N, per-knot s reference for the tracking term
	End     EndStateRef
}

// Validate checks the length and sign invariants spec.md §4.1 requires
// of set_bounds/set_weights/set_x_ref before a solver is configured.
func (p *Problem) Validate() error {
	if p.N <= 0 {
		return fmt.Errorf("N must be positive, got %d", p.N)
	}
	if p.Dt <= 0 {
		return fmt.Errorf("Dt must be positive, got %f", p.Dt)
	}
	if len(p.SBounds) != p.N {
		return fmt.Errorf("len(SBounds)=%d must equal N=%d", len(p.SBounds), p.N)
	}
	if p.SRef != nil && len(p.SRef) != p.N {
		return fmt.Errorf("len(SRef)=%d must equal N=%d", len(p.SRef), p.N)
	}
	if p.Weights.S < 0 || p.Weights.V < 0 || p.Weights.A < 0 || p.Weights.J < 0 {
		return fmt.Errorf("weights must be non-negative: %+v", p.Weights)
	}
	for i, b := range p.SBounds {
		if b.Lower > b.Upper {
			return fmt.Errorf("SBounds[%d] lower %.3f > upper %.3f", i, b.Lower, b.Upper)
		}
	}
	return nil
}
