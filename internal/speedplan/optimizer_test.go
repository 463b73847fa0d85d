package speedplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedopt-core/internal/path"
	"speedopt-core/internal/speedplan"
	"speedopt-core/internal/stbound"
)

type fakePathData struct {
	d *path.Discretized
}

func (f *fakePathData) DiscretizedPath() *path.Discretized { return f.d }

func flatPath(length float64) *fakePathData {
	n := int(length) + 1
	pts := make([]path.Point, n)
	for i := 0; i < n; i++ {
		s := float64(i)
		pts[i] = path.Point{S: s, X: s, Y: 0, Kappa: 0, VLimit: 20}
	}
	return &fakePathData{d: path.NewDiscretized(pts)}
}

func curvedPath(length, kappa float64) *fakePathData {
	n := int(length) + 1
	pts := make([]path.Point, n)
	for i := 0; i < n; i++ {
		s := float64(i)
		pts[i] = path.Point{S: s, X: s, Y: 0, Kappa: kappa, VLimit: 20}
	}
	return &fakePathData{d: path.NewDiscretized(pts)}
}

type fakeSTGraph struct {
	length     float64
	totalTime  float64
	speedLimit float64
	v0, a0     float64
	boundaries []stbound.Boundary
}

func (g *fakeSTGraph) PathLength() float64 { return g.length }
func (g *fakeSTGraph) TotalTimeByConf() float64 { return g.totalTime }
func (g *fakeSTGraph) InitPoint() (float64, float64) { return g.v0, g.a0 }
func (g *fakeSTGraph) STBoundaries() []stbound.Boundary { return g.boundaries }
func (g *fakeSTGraph) SpeedLimit(float64) float64 { return g.speedLimit }
func (g *fakeSTGraph) IsSTBoundariesEmpty() bool { return len(g.boundaries) == 0 }

type fakeRefLine struct {
	maxSpeed, cruiseSpeed float64
	reached               bool
	graph                 *fakeSTGraph
}

func (r *fakeRefLine) MaxSpeed() float64                       { return r.maxSpeed }
func (r *fakeRefLine) CruiseSpeed() float64                    { return r.cruiseSpeed }
func (r *fakeRefLine) ReachedDestination() bool                { return r.reached }
func (r *fakeRefLine) EmergencyBrakeSpeedData() speedplan.Data { return nil }
func (r *fakeRefLine) STGraph() speedplan.STGraphData          { return r.graph }

func baseOptCfg(n int, dt float64) speedplan.Config {
	return speedplan.Config{
		Horizon: speedplan.Horizon{N: n, Dt: dt, TotalSec: float64(n-1) * dt},
		Vehicle: speedplan.VehicleParams{MaxAcceleration: 2, MaxDeceleration: 2},
		Features: speedplan.FeatureFlags{
			LongitudinalJerkLowerBound: -5,
			LongitudinalJerkUpperBound: 5,
			FollowMinDistance:          5,
			FollowTimeBuffer:           1,
			UseSmoothedDPGuideLine:     true,
		},
		Tuning: speedplan.Tuning{
			AccWeight:        1,
			JerkWeight:       1,
			LatAccWeight:     1,
			RefSWeight:       0.05,
			RefVWeight:       1,
			SPotentialWeight: 0.01,
			SoftSBoundWeight: 1,
			ALatMax:          2,
		},
		QPMaxIter:  4000,
		NLPMaxIter: 1000,
	}
}

func roughRamp(n int, dt, v0, cruise float64) speedplan.Data {
	out := make(speedplan.Data, n)
	s, v := 0.0, v0
	for i := 0; i < n; i++ {
		if v < cruise {
			v += 1.0 * dt
			if v > cruise {
				v = cruise
			}
		}
		s += v * dt
		out[i] = speedplan.Point{S: s, T: float64(i) * dt, V: v, A: 1, J: 0}
	}
	return out
}

func TestProcessNoBoundariesProducesFeasiblePlan(t *testing.T) {
	const n, dt = 6, 1.0
	graph := &fakeSTGraph{length: 50, totalTime: float64(n-1) * dt, speedLimit: 10, v0: 2, a0: 0}
	ref := &fakeRefLine{maxSpeed: 10, cruiseSpeed: 8, graph: graph}

	opt := speedplan.New(nil)
	out, dbg, st := opt.Process(flatPath(50), speedplan.InitState{S: 0, V: 2, A: 0}, roughRamp(n, dt, 2, 8), ref, baseOptCfg(n, dt))

	require.Nil(t, st)
	require.NotEmpty(t, out)
	assert.InDelta(t, 0.0, out[0].S, 1e-6)
	assert.NotEmpty(t, dbg.QPSpeedPlan)
	assert.NotEmpty(t, dbg.STDriveBoundaryPolyline)
	assert.Empty(t, dbg.NLPSpeedPlan)
}

func TestProcessWithNLPRefinementKeepsPlanOnSuccessOrFallback(t *testing.T) {
	const n, dt = 6, 1.0
	graph := &fakeSTGraph{length: 50, totalTime: float64(n-1) * dt, speedLimit: 10, v0: 2, a0: 0}
	ref := &fakeRefLine{maxSpeed: 10, cruiseSpeed: 8, graph: graph}

	cfg := baseOptCfg(n, dt)
	cfg.Features.EnableNLPRefinement = true

	opt := speedplan.New(nil)
	out, _, st := opt.Process(flatPath(50), speedplan.InitState{S: 0, V: 2, A: 0}, roughRamp(n, dt, 2, 8), ref, cfg)

	require.Nil(t, st)
	require.NotEmpty(t, out)
}

func TestProcessWithNLPRefinementRespectsCurvatureBound(t *testing.T) {
	const n, dt = 8, 1.0
	const kappa = 0.1 // v^2*kappa <= ALatMax(2) => |v| <= sqrt(20) =~ 4.47
	graph := &fakeSTGraph{length: 60, totalTime: float64(n-1) * dt, speedLimit: 10, v0: 2, a0: 0}
	ref := &fakeRefLine{maxSpeed: 10, cruiseSpeed: 8, graph: graph}

	cfg := baseOptCfg(n, dt)
	cfg.Features.EnableNLPRefinement = true

	opt := speedplan.New(nil)
	out, dbg, st := opt.Process(curvedPath(60, kappa), speedplan.InitState{S: 0, V: 2, A: 0}, roughRamp(n, dt, 2, 8), ref, cfg)

	require.Nil(t, st)
	require.NotEmpty(t, out)
	if len(dbg.NLPSpeedPlan) == 0 {
		t.Skip("NLP refinement fell back to the QP plan; curvature bound isn't enforced there")
	}
	for _, pt := range out {
		assert.LessOrEqual(t, pt.V, 4.6, "curvature should cap speed well below the 8 m/s cruise target")
	}
}

func TestProcessStopBoundaryTightensPlan(t *testing.T) {
	const n, dt = 6, 1.0
	stop := &stbound.Interval{Kind: stbound.Stop, Upper: func(float64) float64 { return 10 }, ValidFrom: 0}
	graph := &fakeSTGraph{length: 50, totalTime: float64(n-1) * dt, speedLimit: 10, v0: 2, a0: 0, boundaries: []stbound.Boundary{stop}}
	ref := &fakeRefLine{maxSpeed: 10, cruiseSpeed: 8, graph: graph}

	opt := speedplan.New(nil)
	out, _, st := opt.Process(flatPath(50), speedplan.InitState{S: 0, V: 2, A: 0}, roughRamp(n, dt, 2, 8), ref, baseOptCfg(n, dt))

	require.Nil(t, st)
	for _, pt := range out {
		assert.LessOrEqual(t, pt.S, 10.2)
	}
}

func TestProcessRejectsNilPathData(t *testing.T) {
	ref := &fakeRefLine{graph: &fakeSTGraph{}}
	opt := speedplan.New(nil)
	_, _, st := opt.Process(nil, speedplan.InitState{}, nil, ref, speedplan.Config{})
	require.NotNil(t, st)
	assert.Equal(t, "InvalidInput", st.Kind.String())
}

func TestProcessRejectsEmptyPath(t *testing.T) {
	ref := &fakeRefLine{graph: &fakeSTGraph{}}
	empty := &fakePathData{d: path.NewDiscretized(nil)}
	opt := speedplan.New(nil)
	_, _, st := opt.Process(empty, speedplan.InitState{}, nil, ref, speedplan.Config{})
	require.NotNil(t, st)
	assert.Equal(t, "InvalidInput", st.Kind.String())
}

func TestProcessRejectsNilReferenceLine(t *testing.T) {
	opt := speedplan.New(nil)
	_, _, st := opt.Process(flatPath(10), speedplan.InitState{}, nil, nil, speedplan.Config{})
	require.NotNil(t, st)
	assert.Equal(t, "InvalidInput", st.Kind.String())
}

func TestProcessReachedDestinationReturnsEmptySuccess(t *testing.T) {
	ref := &fakeRefLine{reached: true, graph: &fakeSTGraph{}}
	opt := speedplan.New(nil)
	out, dbg, st := opt.Process(flatPath(10), speedplan.InitState{}, nil, ref, speedplan.Config{})
	require.Nil(t, st)
	assert.Empty(t, out)
	assert.Empty(t, dbg.QPSpeedPlan)
}
