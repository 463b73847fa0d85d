// Package speedplan implements the SpeedOptimizer top-level
// coordinator from spec.md §4.5: it builds bounds, runs the QP,
// optionally refines with curvature/speed-limit smoothing and the
// NLP, and emits a SpeedData.
package speedplan

import "sort"

// Point is one (s,t,v,a,j) sample of a speed profile.
type Point struct {
	S, T, V, A, J float64
}

// Data is an ordered-by-t sequence of Points.
type Data []Point

// EvaluateByTime linearly interpolates Data at time t, clamping to the
// first/last sample outside [t0, tN-1]. Returns false on an empty Data.
func (d Data) EvaluateByTime(t float64) (Point, bool) {
	if len(d) == 0 {
		return Point{}, false
	}
	idx := sort.Search(len(d), func(i int) bool { return d[i].T >= t })
	if idx == 0 {
		return d[0], true
	}
	if idx == len(d) {
		return d[len(d)-1], true
	}
	a, b := d[idx-1], d[idx]
	span := b.T - a.T
	if span <= 0 {
		return a, true
	}
	w := (t - a.T) / span
	lerp := func(x, y float64) float64 { return x + w*(y-x) }
	return Point{
		S: lerp(a.S, b.S),
		T: t,
		V: lerp(a.V, b.V),
		A: lerp(a.A, b.A),
		J: lerp(a.J, b.J),
	}, true
}
