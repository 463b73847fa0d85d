package curvefit

import (
	"fmt"
	"math"

	"speedopt-core/internal/kinematic"
	"speedopt-core/internal/piecewisejerk"
)

// SmoothConfig is the x/ẋ/ẍ box bounds and weight tuple spec.md §4.2
// fixes for both invocations (only the bounds on x itself differ
// between speed-limit and curvature smoothing).
type SmoothConfig struct {
	Step       float64
	NumSamples int
	XBound     kinematic.Bound
	DxBound    kinematic.Bound
	DdxBound   kinematic.Bound
	JerkBound  kinematic.Bound
	Weights    kinematic.Weights
	RefWeight  float64
	MaxIter    int
}

// SpeedLimitConfig is spec.md §4.2.1: Δs=2.0m, 100 samples, x∈[0,50],
// ẋ/ẍ/⃛x∈[-10,10], weights (0,10,10,10), reference weight 10.
func SpeedLimitConfig() SmoothConfig {
	return SmoothConfig{
		Step:       2.0,
		NumSamples: 100,
		XBound:     kinematic.Bound{Lower: 0, Upper: 50},
		DxBound:    kinematic.Bound{Lower: -10, Upper: 10},
		DdxBound:   kinematic.Bound{Lower: -10, Upper: 10},
		JerkBound:  kinematic.Bound{Lower: -10, Upper: 10},
		Weights:    kinematic.Weights{S: 0, V: 10, A: 10, J: 10},
		RefWeight:  10,
		MaxIter:    4000,
	}
}

// CurvatureConfig is spec.md §4.2.2: Δs=0.5m, x∈[-1,1], same
// derivative bounds/weights as SpeedLimitConfig.
func CurvatureConfig(numSamples int) SmoothConfig {
	c := SpeedLimitConfig()
	c.Step = 0.5
	c.NumSamples = numSamples
	c.XBound = kinematic.Bound{Lower: -1, Upper: 1}
	return c
}

// Smooth fits samples[0:cfg.NumSamples] (sampled every cfg.Step of the
// independent variable starting at paramStart) with a PiecewiseJerkQP,
// pinned at (samples[0], dx0, ddx0), and returns the resulting
// Trajectory1d. Returns (nil, false) on QP non-convergence — the
// caller treats this as SmoothingFailed and skips the NLP stage.
func Smooth(cfg SmoothConfig, paramStart float64, samples []float64, dx0, ddx0 float64) (*Trajectory1d, bool) {
	n := cfg.NumSamples
	if len(samples) < n {
		return nil, false
	}
	bounds := make([]kinematic.Bound, n)
	for i := range bounds {
		bounds[i] = cfg.XBound
	}

	qp := piecewisejerk.New(n, cfg.Step, samples[0], dx0, ddx0, nil)
	if err := qp.SetBounds(bounds, cfg.DxBound.Upper, cfg.DdxBound.Lower, cfg.DdxBound.Upper,
		cfg.JerkBound.Lower, cfg.JerkBound.Upper); err != nil {
		return nil, false
	}
	qpWeights := cfg.Weights
	if err := qp.SetWeights(qpWeights); err != nil {
		return nil, false
	}
	if err := qp.SetXRef(cfg.RefWeight, samples[:n]); err != nil {
		return nil, false
	}
	if !qp.Optimize(cfg.MaxIter) {
		return nil, false
	}

	traj, err := FromKnots(paramStart, cfg.Step, qp.OptX(), qp.OptDx(), qp.OptDdx())
	if err != nil {
		return nil, false
	}
	return traj, true
}

// SampleSpeedLimit samples vLimit(k*step) for k in [0,n) via evalAt,
// the caller-supplied station-to-speed-limit function (typically a
// reference line / path query).
func SampleSpeedLimit(n int, step float64, evalAt func(s float64) float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = evalAt(float64(i) * step)
	}
	return out
}

// SampleCurvature samples |κ(s)| for s spanning [start, end) every
// step, returning the samples (the last partial step, if any, is
// dropped, matching a fixed Δs walk), or an error when the span is
// empty or shorter than one step.
func SampleCurvature(start, end, step float64, evalAt func(s float64) float64) ([]float64, error) {
	if end <= start {
		return nil, fmt.Errorf("curvefit: empty curvature span [%f,%f)", start, end)
	}
	n := int((end - start) / step)
	if n < 1 {
		return nil, fmt.Errorf("curvefit: span too short for step %f", step)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Abs(evalAt(start + float64(i)*step))
	}
	return out, nil
}
