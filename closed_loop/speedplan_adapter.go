package simrunner

import (
	"fmt"

	"speedopt-core/closed_loop/longitudinal_control"
	"speedopt-core/internal/path"
	"speedopt-core/internal/speedplan"
	"speedopt-core/internal/stbound"
)

// SpeedPlanConfig is the scenario-JSON description of one planning
// cycle's inputs: a flat-curvature path segment, a speed limit/cruise
// pair, and a handful of ST boundaries (stopped obstacle, leader to
// follow, vehicle to overtake) driving the bounds the optimizer has to
// respect.
type SpeedPlanConfig struct {
	ControllerType      string           `json:"controller_type"` // pid|mpc|auto_mpc
	PathLengthM         float64          `json:"path_length_m"`
	SpeedLimitMPS       float64          `json:"speed_limit_mps"`
	CruiseSpeedMPS      float64          `json:"cruise_speed_mps"`
	CurvaturePerM       float64          `json:"curvature_per_m"`
	MaxAccel            float64          `json:"max_accel"`
	MaxDecel            float64          `json:"max_decel"`
	InitVelocityMPS     float64          `json:"init_velocity_mps"`
	EnableNLPRefinement bool             `json:"enable_nlp_refinement"`
	UseSoftBound        bool             `json:"use_soft_bound"`
	UseWarmStart        bool             `json:"use_warm_start"`
	Boundaries          []BoundaryConfig `json:"boundaries"`
	Vehicle             control.VehicleLimits `json:"vehicle,omitempty"`
}

// vehicleLimits returns the config's vehicle geometry, with MaxAccel/
// MaxDecel always taken from the speed-plan's own fields so a closed-
// loop controller built off it saturates at the same acceleration
// ceiling the QP/NLP stages were bounded by.
func (c SpeedPlanConfig) vehicleLimits() control.VehicleLimits {
	v := c.Vehicle
	v.MaxAccelMPS2, v.MaxDecelMPS2 = c.MaxAccel, c.MaxDecel
	return v
}

// BoundaryConfig describes one ST boundary as a station at t=ValidFrom
// plus a constant rate of motion, sufficient to express a stopped wall
// (Rate=0), a receding leader (Follow/Yield, Rate>0) or an overtaken
// vehicle (Overtake, Rate>0).
type BoundaryConfig struct {
	Kind      string  `json:"kind"` // stop|yield|follow|overtake
	SAtStart  float64 `json:"s_at_start"`
	RateMPS   float64 `json:"rate_mps"`
	GapLength float64 `json:"gap_length"`
	ValidFrom float64 `json:"valid_from"`
	ValidTo   float64 `json:"valid_to"`
}

func (c BoundaryConfig) build() (stbound.Boundary, error) {
	var kind stbound.Type
	switch c.Kind {
	case "stop":
		kind = stbound.Stop
	case "yield":
		kind = stbound.Yield
	case "follow":
		kind = stbound.Follow
	case "overtake":
		kind = stbound.Overtake
	default:
		return nil, fmt.Errorf("speed_plan: unknown boundary kind %q", c.Kind)
	}

	edge := func(t float64) float64 { return c.SAtStart + c.RateMPS*(t-c.ValidFrom) }

	iv := &stbound.Interval{
		Kind:      kind,
		ValidFrom: c.ValidFrom,
		ValidTo:   c.ValidTo,
		GapLength: c.GapLength,
	}
	if kind == stbound.Overtake {
		iv.Lower = edge
	} else {
		iv.Upper = edge
	}
	return iv, nil
}

// flatPathData is a PathData over a straight segment of constant
// curvature, sampled every meter — enough geometry for the curvature
// smoothing stage to have something non-degenerate to fit.
type flatPathData struct {
	discretized *path.Discretized
}

func newFlatPathData(length, curvature, vLimit float64) *flatPathData {
	n := int(length) + 1
	pts := make([]path.Point, n)
	for i := 0; i < n; i++ {
		s := float64(i)
		pts[i] = path.Point{S: s, X: s, Y: 0, Heading: 0, Kappa: curvature, VLimit: vLimit}
	}
	return &flatPathData{discretized: path.NewDiscretized(pts)}
}

func (f *flatPathData) DiscretizedPath() *path.Discretized { return f.discretized }

// constantSTGraph is an STGraphData with a flat speed limit and a
// fixed boundary list, enough to drive one planning cycle end to end.
type constantSTGraph struct {
	length      float64
	totalTime   float64
	speedLimit  float64
	v0, a0      float64
	boundaries  []stbound.Boundary
}

func (g *constantSTGraph) PathLength() float64               { return g.length }
func (g *constantSTGraph) TotalTimeByConf() float64           { return g.totalTime }
func (g *constantSTGraph) InitPoint() (float64, float64)      { return g.v0, g.a0 }
func (g *constantSTGraph) STBoundaries() []stbound.Boundary   { return g.boundaries }
func (g *constantSTGraph) SpeedLimit(float64) float64         { return g.speedLimit }
func (g *constantSTGraph) IsSTBoundariesEmpty() bool          { return len(g.boundaries) == 0 }

// flatReferenceLine is a ReferenceLineInfo with no destination logic
// and an always-empty emergency-brake profile — this demo never
// triggers emergency braking.
type flatReferenceLine struct {
	maxSpeed, cruiseSpeed float64
	graph                 *constantSTGraph
}

func (r *flatReferenceLine) MaxSpeed() float64                       { return r.maxSpeed }
func (r *flatReferenceLine) CruiseSpeed() float64                    { return r.cruiseSpeed }
func (r *flatReferenceLine) ReachedDestination() bool                { return false }
func (r *flatReferenceLine) EmergencyBrakeSpeedData() speedplan.Data { return nil }
func (r *flatReferenceLine) STGraph() speedplan.STGraphData          { return r.graph }

// buildSpeedPlan runs one SpeedOptimizer.Process cycle from cfg and
// returns the resulting speed profile.
func buildSpeedPlan(cfg SpeedPlanConfig, horizon speedplan.Horizon) (speedplan.Data, speedplan.DebugRecords, error) {
	boundaries := make([]stbound.Boundary, 0, len(cfg.Boundaries))
	for _, bc := range cfg.Boundaries {
		b, err := bc.build()
		if err != nil {
			return nil, speedplan.DebugRecords{}, err
		}
		boundaries = append(boundaries, b)
	}

	graph := &constantSTGraph{
		length:     cfg.PathLengthM,
		totalTime:  horizon.TotalSec,
		speedLimit: cfg.SpeedLimitMPS,
		v0:         cfg.InitVelocityMPS,
		a0:         0,
		boundaries: boundaries,
	}
	ref := &flatReferenceLine{
		maxSpeed:    cfg.SpeedLimitMPS,
		cruiseSpeed: cfg.CruiseSpeedMPS,
		graph:       graph,
	}
	pd := newFlatPathData(cfg.PathLengthM, cfg.CurvaturePerM, cfg.SpeedLimitMPS)

	roughProfile := buildRoughProfile(cfg, horizon)

	optCfg := speedplan.Config{
		Horizon: horizon,
		Vehicle: speedplan.VehicleParams{
			MaxAcceleration: cfg.MaxAccel,
			MaxDeceleration: cfg.MaxDecel,
		},
		Features: speedplan.FeatureFlags{
			EnableNLPRefinement:             cfg.EnableNLPRefinement,
			UseSoftBoundInNonlinearSpeedOpt: cfg.UseSoftBound,
			UseWarmStart:                    cfg.UseWarmStart,
			UseSmoothedDPGuideLine:          true,
			LongitudinalJerkLowerBound:      -4.0,
			LongitudinalJerkUpperBound:      4.0,
			FollowMinDistance:               5.0,
			FollowTimeBuffer:                1.0,
		},
		Tuning: speedplan.Tuning{
			AccWeight:        1.0,
			JerkWeight:       1.0,
			LatAccWeight:     1.0,
			RefSWeight:       0.05,
			RefVWeight:       1.0,
			SPotentialWeight: 0.01,
			SoftSBoundWeight: 1.0,
			ALatMax:          2.0,
		},
		QPMaxIter:  4000,
		NLPMaxIter: 1000,
	}

	opt := speedplan.New(nil)
	init := speedplan.InitState{S: 0, V: cfg.InitVelocityMPS, A: 0}
	out, dbg, st := opt.Process(pd, init, roughProfile, ref, optCfg)
	if st != nil {
		return nil, speedplan.DebugRecords{}, fmt.Errorf("speed plan: %s: %s", st.Kind, st.Message)
	}
	return out, dbg, nil
}

// buildRoughProfile fakes the upstream DP speed planner's output with
// a simple cruise-to-target ramp: constant acceleration to
// CruiseSpeedMPS, then cruise. The QP and NLP stages resolve the
// actual feasible trajectory against the ST boundaries; this is only
// the loose reference the tracking cost pulls toward.
func buildRoughProfile(cfg SpeedPlanConfig, horizon speedplan.Horizon) speedplan.Data {
	out := make(speedplan.Data, horizon.N)
	s, v := 0.0, cfg.InitVelocityMPS
	accel := 1.0
	for i := 0; i < horizon.N; i++ {
		t := float64(i) * horizon.Dt
		if v < cfg.CruiseSpeedMPS {
			v += accel * horizon.Dt
			if v > cfg.CruiseSpeedMPS {
				v = cfg.CruiseSpeedMPS
			}
		}
		s += v * horizon.Dt
		out[i] = speedplan.Point{S: s, T: t, V: v, A: accel, J: 0}
	}
	return out
}
