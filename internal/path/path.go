// Package path holds the read-only geometric path container the speed
// optimizer consumes. It is owned and built upstream; this package only
// provides storage and the Evaluate/Length/MaxS query surface.
package path

import "sort"

// Point is one sample along the path: station s, pose, and the
// curvature triple the NLP's centripetal constraint needs.
type Point struct {
	S       float64
	X       float64
	Y       float64
	Heading float64
	Kappa   float64 // dθ/ds
	DKappa  float64 // dκ/ds
	DDKappa float64 // d²κ/ds²
	VLimit  float64 // reference-line speed limit at this point
}

// Discretized is an ordered, non-decreasing-in-s sequence of Points.
// It is composition over a slice rather than embedding, per the design
// note that collapses the original's vector-inheritance container into
// an ordered-sequence-plus-query contract.
type Discretized struct {
	points []Point
}

// NewDiscretized takes ownership of points; callers must not mutate the
// slice afterward.
func NewDiscretized(points []Point) *Discretized {
	return &Discretized{points: points}
}

func (d *Discretized) Len() int          { return len(d.points) }
func (d *Discretized) Empty() bool       { return len(d.points) == 0 }
func (d *Discretized) At(i int) Point    { return d.points[i] }
func (d *Discretized) Front() Point      { return d.points[0] }
func (d *Discretized) Back() Point       { return d.points[len(d.points)-1] }
func (d *Discretized) Points() []Point   { return d.points }

// Length returns back().S - front().S, zero on an empty path.
func (d *Discretized) Length() float64 {
	if d.Empty() {
		return 0
	}
	return d.Back().S - d.Front().S
}

// MaxS returns the last point's station, zero on an empty path.
func (d *Discretized) MaxS() float64 {
	if d.Empty() {
		return 0
	}
	return d.Back().S
}

// Evaluate returns the interpolated Point at station s, clamping to
// Front()/Back() outside the path's range. Mirrors
// DiscretizedPath::Evaluate: a lower_bound search for the first point
// with S >= s, then linear interpolation against the preceding point.
func (d *Discretized) Evaluate(s float64) Point {
	lo := d.queryLowerBound(s)
	if lo == 0 {
		return d.Front()
	}
	if lo == len(d.points) {
		return d.Back()
	}
	return interpolate(d.points[lo-1], d.points[lo], s)
}

// EvaluateReverse mirrors EvaluateReverse/QueryUpperBound: the same
// interpolation but located via the first point strictly greater than
// s, used by callers that walk the path backward.
func (d *Discretized) EvaluateReverse(s float64) Point {
	up := d.queryUpperBound(s)
	if up == 0 {
		return d.Front()
	}
	if up == len(d.points) {
		return d.Back()
	}
	return interpolate(d.points[up-1], d.points[up], s)
}

func (d *Discretized) queryLowerBound(s float64) int {
	return sort.Search(len(d.points), func(i int) bool { return d.points[i].S >= s })
}

func (d *Discretized) queryUpperBound(s float64) int {
	return sort.Search(len(d.points), func(i int) bool { return d.points[i].S > s })
}

// interpolate linearly blends every scalar field of a and b at station
// s, weighted by s's position between a.S and b.S.
func interpolate(a, b Point, s float64) Point {
	span := b.S - a.S
	if span <= 0 {
		return a
	}
	w := (s - a.S) / span
	lerp := func(x, y float64) float64 { return x + w*(y-x) }
	return Point{
		S:       s,
		X:       lerp(a.X, b.X),
		Y:       lerp(a.Y, b.Y),
		Heading: lerp(a.Heading, b.Heading),
		Kappa:   lerp(a.Kappa, b.Kappa),
		DKappa:  lerp(a.DKappa, b.DKappa),
		DDKappa: lerp(a.DDKappa, b.DDKappa),
		VLimit:  lerp(a.VLimit, b.VLimit),
	}
}
