// Package stbound defines the ST (station-time) boundary interface the
// BoundsBuilder folds into per-knot s bounds. Boundary construction and
// the underlying obstacle/ST-graph machinery are upstream collaborators;
// this package only carries the query contract plus a concrete
// interval-function implementation good enough to drive simulation and
// tests.
package stbound

// Type classifies how a boundary's edge constrains ego's station.
type Type int

const (
	Stop Type = iota
	Yield
	Follow
	Overtake
)

func (t Type) String() string {
	switch t {
	case Stop:
		return "STOP"
	case Yield:
		return "YIELD"
	case Follow:
		return "FOLLOW"
	case Overtake:
		return "OVERTAKE"
	default:
		return "UNKNOWN"
	}
}

// EndInteraction is the optional point at which a boundary's gap
// requirement is overridden — e.g. the gap the FOLLOW/YIELD boundary's
// characteristic length should widen to as ego nears the interaction.
type EndInteraction struct {
	T             float64
	SGapOverride  float64
}

// Boundary is the interface the core consumes; ST-graph construction,
// obstacle prediction and polygon geometry all live upstream of it.
type Boundary interface {
	Type() Type
	// GetUnblockSRange returns the drivable corridor's (upper, lower)
	// station edges at time t, and whether the boundary applies at t
	// at all (ok=false means "skip this boundary at this knot").
	GetUnblockSRange(t float64) (u, l float64, ok bool)
	CharacteristicLength() float64
	EndInteractionPoint() (EndInteraction, bool)
}

// Interval is a Boundary defined by two closures over time, sufficient
// to express every case in the end-to-end scenarios (a fixed wall, a
// linearly receding leader, a linearly advancing overtaken vehicle).
type Interval struct {
	Kind       Type
	Upper      func(t float64) float64
	Lower      func(t float64) float64
	ValidFrom  float64
	ValidTo    float64 // ValidTo <= ValidFrom means "no upper bound on validity"
	GapLength  float64
	EndPoint   *EndInteraction
}

func (b *Interval) Type() Type { return b.Kind }

func (b *Interval) GetUnblockSRange(t float64) (u, l float64, ok bool) {
	if t < b.ValidFrom {
		return 0, 0, false
	}
	if b.ValidTo > b.ValidFrom && t > b.ValidTo {
		return 0, 0, false
	}
	if b.Upper != nil {
		u = b.Upper(t)
	}
	if b.Lower != nil {
		l = b.Lower(t)
	}
	return u, l, true
}

func (b *Interval) CharacteristicLength() float64 { return b.GapLength }

func (b *Interval) EndInteractionPoint() (EndInteraction, bool) {
	if b.EndPoint == nil {
		return EndInteraction{}, false
	}
	return *b.EndPoint, true
}
