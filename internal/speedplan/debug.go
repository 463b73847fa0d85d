package speedplan

// STPolylinePoint is one vertex of the closed ST drive-boundary band:
// the lower edge walked forward in time, then the upper edge walked
// back, per spec.md §6.
type STPolylinePoint struct {
	T, S float64
}

// DebugRecords collects the per-cycle debug output spec.md §6 lists:
// both solver stages' speed plans, the closed ST drive-boundary band,
// and the smoothed speed-limit samples used by the NLP.
type DebugRecords struct {
	QPSpeedPlan             Data
	NLPSpeedPlan            Data
	STDriveBoundaryPolyline []STPolylinePoint
	SmoothedSpeedLimit      []float64
}

// buildSTPolyline walks the hard-bound lower edge forward in time then
// the upper edge in reverse, forming one closed band per spec.md §6.
func buildSTPolyline(dt float64, lower, upper []float64) []STPolylinePoint {
	n := len(lower)
	out := make([]STPolylinePoint, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, STPolylinePoint{T: float64(i) * dt, S: lower[i]})
	}
	for i := n - 1; i >= 0; i-- {
		out = append(out, STPolylinePoint{T: float64(i) * dt, S: upper[i]})
	}
	return out
}
