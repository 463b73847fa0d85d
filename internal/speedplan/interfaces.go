package speedplan

import (
	"speedopt-core/internal/path"
	"speedopt-core/internal/stbound"
)

// PathData is the out-of-scope path-data collaborator from spec.md
// §1/§6: discretized_path().Evaluate(s) plus front()/back() access.
type PathData interface {
	DiscretizedPath() *path.Discretized
}

// STGraphData is the ST-graph façade consumed via
// mutable_st_graph_data() in spec.md §6.
type STGraphData interface {
	PathLength() float64
	TotalTimeByConf() float64
	InitPoint() (v, a float64)
	STBoundaries() []stbound.Boundary
	// SpeedLimit returns the reference line's speed limit as a
	// function of station, independent of the path's own per-point
	// VLimit (a reference line can tighten it further).
	SpeedLimit(s float64) float64
	IsSTBoundariesEmpty() bool
}

// ReferenceLineInfo is the reference-line metadata collaborator from
// spec.md §6.
type ReferenceLineInfo interface {
	MaxSpeed() float64
	CruiseSpeed() float64
	ReachedDestination() bool
	EmergencyBrakeSpeedData() Data
	STGraph() STGraphData
}

// VehicleParams carries the two vehicle-dynamics limits spec.md §6
// lists as consumed inputs.
type VehicleParams struct {
	MaxAcceleration float64
	MaxDeceleration float64 // positive magnitude; AMin = -MaxDeceleration
}

// FeatureFlags are the configuration toggles from spec.md §6, each
// with an enumerated effect.
type FeatureFlags struct {
	EnableNLPRefinement           bool
	UseSoftBoundInNonlinearSpeedOpt bool
	UseWarmStart                  bool
	UseSmoothedDPGuideLine        bool
	LongitudinalJerkLowerBound    float64
	LongitudinalJerkUpperBound    float64
	FollowMinDistance             float64
	FollowTimeBuffer              float64
}

// Tuning are the scalar weight knobs from spec.md §6.
type Tuning struct {
	AccWeight        float64
	JerkWeight       float64
	LatAccWeight     float64
	RefSWeight       float64
	RefVWeight       float64
	SPotentialWeight float64
	SoftSBoundWeight float64
	ALatMax          float64
}

// Horizon is the discretization spec.md §3 fixes for tests:
// Δt=0.1s, total_time=7.0s, N=71.
type Horizon struct {
	N        int
	Dt       float64
	TotalSec float64
}

func DefaultHorizon() Horizon {
	return Horizon{N: 71, Dt: 0.1, TotalSec: 7.0}
}

// Config bundles everything SetUpStatesAndBounds and the solver calls
// need beyond the path/reference-line collaborators themselves.
type Config struct {
	Horizon  Horizon
	Vehicle  VehicleParams
	Features FeatureFlags
	Tuning   Tuning
	QPMaxIter  int
	NLPMaxIter int
}

// InitState is the planning cycle's initial kinematic triple.
type InitState struct {
	S, V, A float64
}
