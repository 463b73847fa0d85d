package speedplan

import (
	"math"

	"speedopt-core/internal/bounds"
	"speedopt-core/internal/curvefit"
	"speedopt-core/internal/kinematic"
	"speedopt-core/internal/nlp"
	"speedopt-core/internal/path"
	"speedopt-core/internal/piecewisejerk"
	"speedopt-core/internal/status"
	"speedopt-core/utils"
)

// SpeedOptimizer is the top-level coordinator from spec.md §4.5.
// Solvers are injected via factories so tests can substitute mocks
// without SpeedOptimizer depending on a concrete backend.
type SpeedOptimizer struct {
	newQPSolver  func() piecewisejerk.QPSolver
	newNLPSolver func() nlp.NLPSolver
	log          *utils.Logger
}

// New builds a SpeedOptimizer with the default ADMM/SCP backends. log
// may be nil.
func New(log *utils.Logger) *SpeedOptimizer {
	return &SpeedOptimizer{
		newQPSolver:  func() piecewisejerk.QPSolver { return piecewisejerk.NewADMMSolver() },
		newNLPSolver: func() nlp.NLPSolver { return nlp.NewSCPSolver() },
		log:          log,
	}
}

// NewWithSolvers overrides the solver backends, for unit tests that
// exercise SpeedOptimizer against a mock QPSolver/NLPSolver.
func NewWithSolvers(log *utils.Logger, qp func() piecewisejerk.QPSolver, nl func() nlp.NLPSolver) *SpeedOptimizer {
	return &SpeedOptimizer{newQPSolver: qp, newNLPSolver: nl, log: log}
}

func (o *SpeedOptimizer) logf(level string, format string, args ...any) {
	if o.log == nil {
		return
	}
	switch level {
	case "debug":
		o.log.Debug(format, args...)
	case "warn":
		o.log.Warn(format, args...)
	case "trace":
		o.log.Trace(format, args...)
	default:
		o.log.Info(format, args...)
	}
}

// Process runs one planning cycle, per spec.md §4.5's six-step
// algorithm. Returns (SpeedData, DebugRecords, nil) on success —
// including the non-fatal cases (InitialSpeedOverLimit, NLPInfeasible,
// SmoothingFailed), which are logged and otherwise swallowed — or
// (nil, DebugRecords{}, status) on a fatal failure with output
// cleared.
func (o *SpeedOptimizer) Process(pd PathData, init InitState, rough Data, ref ReferenceLineInfo, cfg Config) (Data, DebugRecords, *status.Status) {
	if pd == nil || pd.DiscretizedPath() == nil || pd.DiscretizedPath().Empty() {
		return nil, DebugRecords{}, status.New(status.InvalidInput, "empty or nil path")
	}
	if ref == nil {
		return nil, DebugRecords{}, status.New(status.InvalidInput, "nil reference line info")
	}
	if ref.ReachedDestination() {
		return Data{}, DebugRecords{}, nil
	}

	dpath := pd.DiscretizedPath()
	stGraph := ref.STGraph()
	n, dt := cfg.Horizon.N, cfg.Horizon.Dt
	totalLength := stGraph.PathLength()
	if totalLength <= 0 {
		totalLength = dpath.Length()
	}

	boundsCfg := bounds.Config{
		N: n, Dt: dt, TotalLength: totalLength,
		FollowMinDistance: cfg.Features.FollowMinDistance,
		FollowTimeBuffer:  cfg.Features.FollowTimeBuffer,
		EmergencyBrake: func(t float64) (float64, bool) {
			pt, ok := ref.EmergencyBrakeSpeedData().EvaluateByTime(t)
			if !ok {
				return 0, false
			}
			return pt.S, true
		},
		DPProfile: func(t float64) (bounds.DPPoint, bool) {
			pt, ok := rough.EvaluateByTime(t)
			if !ok {
				return bounds.DPPoint{}, false
			}
			return bounds.DPPoint{S: pt.S, V: pt.V}, true
		},
	}
	boundsOut, bstat := bounds.Build(boundsCfg, stGraph.STBoundaries())
	if bstat != nil {
		return nil, DebugRecords{}, bstat
	}

	sRef := make([]float64, n)
	for i := 0; i < n; i++ {
		pt, ok := rough.EvaluateByTime(float64(i) * dt)
		if ok {
			sRef[i] = pt.S
		} else if i > 0 {
			sRef[i] = sRef[i-1]
		}
	}

	aMin, aMax := -cfg.Vehicle.MaxDeceleration, cfg.Vehicle.MaxAcceleration
	jerkMin, jerkMax := cfg.Features.LongitudinalJerkLowerBound, cfg.Features.LongitudinalJerkUpperBound
	// The knot-0 box row is pinned to init.V exactly (see piecewisejerk's
	// SetBounds); if the reference line's speed limit just tightened below
	// the vehicle's current speed that pin and the global ceiling disagree
	// and the QP is infeasible from the first knot on. Bumping the ceiling
	// just above init.V keeps it solvable without loosening the limit the
	// optimizer actually steers toward everywhere else.
	vMax := math.Max(ref.MaxSpeed(), init.V+0.1)

	qp := piecewisejerk.New(n, dt, init.S, init.V, init.A, o.newQPSolver())
	if err := qp.SetBounds(boundsOut.Hard, vMax, aMin, aMax, jerkMin, jerkMax); err != nil {
		return nil, DebugRecords{}, status.New(status.InvalidInput, "%v", err)
	}
	if err := qp.SetWeights(kinematic.Weights{V: 0, A: cfg.Tuning.AccWeight, J: cfg.Tuning.JerkWeight}); err != nil {
		return nil, DebugRecords{}, status.New(status.InvalidInput, "%v", err)
	}
	if err := qp.SetXRef(cfg.Tuning.RefSWeight, sRef); err != nil {
		return nil, DebugRecords{}, status.New(status.InvalidInput, "%v", err)
	}

	if !qp.Optimize(cfg.QPMaxIter) {
		return Data{}, DebugRecords{}, status.New(status.QPInfeasible, "speed QP did not converge")
	}
	qpSol := piecewisejerk.Solution{X: qp.OptX(), Dx: qp.OptDx(), Ddx: qp.OptDdx()}

	debug := DebugRecords{
		QPSpeedPlan:             buildSpeedDataFromKnots(qpSol, dt),
		STDriveBoundaryPolyline: buildSTPolyline(dt, lowerOf(boundsOut.Hard), upperOf(boundsOut.Hard)),
	}

	finalSol := qpSol

	if cfg.Features.EnableNLPRefinement {
		if sol, smoothSamples, ok := o.runNLPRefinement(dpath, stGraph, ref, init, boundsOut, qpSol, cfg, aMin, aMax, jerkMin, jerkMax, vMax); ok {
			finalSol = sol
			debug.NLPSpeedPlan = buildSpeedDataFromKnots(sol, dt)
			debug.SmoothedSpeedLimit = smoothSamples
		} else {
			o.logf("warn", "NLP refinement skipped, keeping QP plan")
		}
	}

	out := make(Data, 0, n)
	out = append(out, Point{S: finalSol.X[0], T: 0, V: finalSol.Dx[0], A: finalSol.Ddx[0], J: 0})
	for i := 1; i < n; i++ {
		if finalSol.Dx[i] < 0 {
			break
		}
		j := (finalSol.Ddx[i] - finalSol.Ddx[i-1]) / dt
		out = append(out, Point{S: finalSol.X[i], T: float64(i) * dt, V: finalSol.Dx[i], A: finalSol.Ddx[i], J: j})
	}
	out = fillEnoughSpeedPoints(out, cfg.Horizon.TotalSec, dt)

	return out, debug, nil
}

// runNLPRefinement is step 5 of spec.md §4.5: smooth the speed limit
// and curvature curves, check initial-speed feasibility against the
// smoothed limit, then run the SCP-based NLP solve. Every failure here
// is non-fatal — the caller keeps the QP plan and only logs.
func (o *SpeedOptimizer) runNLPRefinement(
	dpath *path.Discretized,
	stGraph STGraphData,
	ref ReferenceLineInfo,
	init InitState,
	boundsOut bounds.Result,
	qpSol piecewisejerk.Solution,
	cfg Config,
	aMin, aMax, jerkMin, jerkMax, vMax float64,
) (piecewisejerk.Solution, []float64, bool) {
	n, dt := cfg.Horizon.N, cfg.Horizon.Dt

	vLimitSamples := curvefit.SampleSpeedLimit(curvefit.SpeedLimitConfig().NumSamples, curvefit.SpeedLimitConfig().Step, stGraph.SpeedLimit)
	vLimitTraj, ok := curvefit.Smooth(curvefit.SpeedLimitConfig(), 0, vLimitSamples, 0, 0)
	if !ok {
		o.logf("warn", "speed-limit smoothing failed")
		return piecewisejerk.Solution{}, nil, false
	}

	if !nlp.CheckSpeedLimitFeasibility(vLimitTraj, init.S, init.V, 1e-6) {
		o.logf("warn", "initial speed exceeds smoothed speed limit, skipping NLP")
		return piecewisejerk.Solution{}, nil, false
	}

	front, back := dpath.Front(), dpath.Back()
	kappaSamples, err := curvefit.SampleCurvature(front.S, back.S, curvefit.CurvatureConfig(0).Step, func(s float64) float64 {
		return dpath.Evaluate(s).Kappa
	})
	if err != nil {
		o.logf("warn", "curvature sampling failed: %v", err)
		return piecewisejerk.Solution{}, nil, false
	}
	kappaTraj, ok := curvefit.Smooth(curvefit.CurvatureConfig(len(kappaSamples)), front.S, kappaSamples, 0, 0)
	if !ok {
		o.logf("warn", "curvature smoothing failed")
		return piecewisejerk.Solution{}, nil, false
	}

	var sRefSpatial []float64
	refSWeight := cfg.Tuning.SPotentialWeight
	if cfg.Features.UseSmoothedDPGuideLine {
		sRefSpatial = append([]float64(nil), qpSol.X...)
		refSWeight = cfg.Tuning.RefSWeight
	} else {
		sRefSpatial = make([]float64, n)
		totalLength := stGraph.PathLength()
		for i := range sRefSpatial {
			sRefSpatial[i] = totalLength
		}
	}

	problem := nlp.Problem{
		N: n, Dt: dt,
		InitS: init.S, InitV: init.V, InitA: init.A,
		SBounds: boundsOut.Hard, SoftBounds: boundsOut.Soft,
		UseSoftBound: cfg.Features.UseSoftBoundInNonlinearSpeedOpt,
		VMax:         vMax, AMin: aMin, AMax: aMax,
		JerkMin: jerkMin, JerkMax: jerkMax,
		ALatMax: cfg.Tuning.ALatMax, VCruise: ref.CruiseSpeed(),
		SRefSpatial:  sRefSpatial,
		VLimitSmooth: vLimitTraj, KappaSmooth: kappaTraj,
		Weights: nlp.Weights{
			RefS: refSWeight, RefV: cfg.Tuning.RefVWeight,
			A: cfg.Tuning.AccWeight, J: cfg.Tuning.JerkWeight,
			Lat: cfg.Tuning.LatAccWeight, Soft: cfg.Tuning.SoftSBoundWeight,
		},
	}

	solver := o.newNLPSolver()
	if err := solver.Setup(problem); err != nil {
		o.logf("warn", "NLP setup failed: %v", err)
		return piecewisejerk.Solution{}, nil, false
	}
	if cfg.Features.UseWarmStart {
		if err := solver.SetWarmStart(qpSol.X, qpSol.Dx, qpSol.Ddx); err != nil {
			o.logf("warn", "NLP warm start failed: %v", err)
		}
	}
	sol, ok := solver.Solve(cfg.NLPMaxIter)
	if !ok {
		o.logf("warn", "NLP did not converge")
		return piecewisejerk.Solution{}, nil, false
	}
	return sol, vLimitSamples, true
}

func buildSpeedDataFromKnots(sol piecewisejerk.Solution, dt float64) Data {
	n := len(sol.X)
	out := make(Data, n)
	for i := 0; i < n; i++ {
		j := 0.0
		if i > 0 {
			j = (sol.Ddx[i] - sol.Ddx[i-1]) / dt
		}
		out[i] = Point{S: sol.X[i], T: float64(i) * dt, V: sol.Dx[i], A: sol.Ddx[i], J: j}
	}
	return out
}

func fillEnoughSpeedPoints(data Data, totalSec, dt float64) Data {
	if len(data) == 0 {
		return data
	}
	last := data[len(data)-1]
	for t := last.T + dt; t <= totalSec+1e-9; t += dt {
		s := last.S + last.V*(t-last.T)
		data = append(data, Point{S: s, T: t, V: last.V, A: 0, J: 0})
	}
	return data
}

func lowerOf(b []kinematic.Bound) []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		out[i] = v.Lower
	}
	return out
}

func upperOf(b []kinematic.Bound) []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		out[i] = v.Upper
	}
	return out
}
