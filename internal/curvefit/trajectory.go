// Package curvefit wraps piecewisejerk.PiecewiseJerkQP into a curve
// fitter over an arbitrary independent variable (station, for
// curvature and speed-limit smoothing) and exposes the result as a
// PiecewiseJerkTrajectory1d: an ordered run of constant-jerk segments
// queryable in closed form.
package curvefit

import "fmt"

// Segment is one constant-jerk run of length Duration (in units of the
// independent variable the trajectory was fit over).
type Segment struct {
	Jerk     float64
	Duration float64
}

// Trajectory1d is the PiecewiseJerkTrajectory1d from spec.md §4.2: a
// head state plus an ordered list of constant-jerk segments.
type Trajectory1d struct {
	paramStart float64
	x0, dx0, ddx0 float64
	segments   []Segment
}

// NewTrajectory1d builds a trajectory starting at independent-variable
// value paramStart with head state (x0, dx0, ddx0).
func NewTrajectory1d(paramStart, x0, dx0, ddx0 float64, segments []Segment) *Trajectory1d {
	return &Trajectory1d{paramStart: paramStart, x0: x0, dx0: dx0, ddx0: ddx0, segments: segments}
}

// FromKnots derives a trajectory from a piecewise-jerk QP's knot
// sequence: consecutive opt_ddx knots differ by exactly jerk*step under
// the QP's own coupling constraint, so the per-segment jerk is read
// back out rather than refit.
func FromKnots(paramStart, step float64, x, dx, ddx []float64) (*Trajectory1d, error) {
	n := len(x)
	if len(dx) != n || len(ddx) != n {
		return nil, fmt.Errorf("curvefit: knot length mismatch: x=%d dx=%d ddx=%d", n, len(dx), len(ddx))
	}
	if n < 1 {
		return nil, fmt.Errorf("curvefit: need at least one knot")
	}
	segs := make([]Segment, 0, n-1)
	for i := 0; i < n-1; i++ {
		segs = append(segs, Segment{Jerk: (ddx[i+1] - ddx[i]) / step, Duration: step})
	}
	return NewTrajectory1d(paramStart, x[0], dx[0], ddx[0], segs), nil
}

func (t *Trajectory1d) ParamStart() float64 { return t.paramStart }

// ParamEnd is the independent-variable value past the last segment.
func (t *Trajectory1d) ParamEnd() float64 {
	p := t.paramStart
	for _, s := range t.segments {
		p += s.Duration
	}
	return p
}

// Evaluate returns the order-th derivative (0..3) of the fitted curve
// at independent-variable value param, locating the containing segment
// by linear scan — acceptable per spec.md §4.2, segment counts stay
// under 200 — and clamping to the trajectory's head/tail outside its
// domain.
func (t *Trajectory1d) Evaluate(order int, param float64) float64 {
	if param <= t.paramStart || len(t.segments) == 0 {
		return t.headValue(order)
	}

	p0 := t.paramStart
	x0, dx0, ddx0 := t.x0, t.dx0, t.ddx0
	for k, seg := range t.segments {
		p1 := p0 + seg.Duration
		if param <= p1 || k == len(t.segments)-1 {
			tau := param - p0
			if tau > seg.Duration {
				tau = seg.Duration
			}
			if tau < 0 {
				tau = 0
			}
			switch order {
			case 0:
				return x0 + dx0*tau + 0.5*ddx0*tau*tau + seg.Jerk*tau*tau*tau/6
			case 1:
				return dx0 + ddx0*tau + 0.5*seg.Jerk*tau*tau
			case 2:
				return ddx0 + seg.Jerk*tau
			default:
				return seg.Jerk
			}
		}
		// advance head state to the end of this segment
		d := seg.Duration
		x1 := x0 + dx0*d + 0.5*ddx0*d*d + seg.Jerk*d*d*d/6
		dx1 := dx0 + ddx0*d + 0.5*seg.Jerk*d*d
		ddx1 := ddx0 + seg.Jerk*d
		x0, dx0, ddx0 = x1, dx1, ddx1
		p0 = p1
	}
	return t.headValue(order)
}

func (t *Trajectory1d) headValue(order int) float64 {
	switch order {
	case 0:
		return t.x0
	case 1:
		return t.dx0
	case 2:
		return t.ddx0
	default:
		if len(t.segments) == 0 {
			return 0
		}
		return t.segments[0].Jerk
	}
}
