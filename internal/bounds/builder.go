// Package bounds implements the BoundsBuilder from spec.md §4.3: for
// each time knot, folds a heterogeneous set of ST boundaries into a
// nested hard/soft pair of station bounds.
package bounds

import (
	"speedopt-core/internal/kinematic"
	"speedopt-core/internal/status"
	"speedopt-core/internal/stbound"
)

const collapseEpsilon = 0.1

// DPPoint is one sample of the rough DP speed profile the soft-bound
// construction reads for FOLLOW's time-buffer term.
type DPPoint struct {
	S float64
	V float64
}

// Config bundles the per-cycle parameters BoundsBuilder needs beyond
// the boundary list itself.
type Config struct {
	N                  int
	Dt                 float64
	TotalLength        float64
	FollowMinDistance  float64
	FollowTimeBuffer   float64
	EmergencyBrake     func(t float64) (s float64, ok bool)
	DPProfile          func(t float64) (DPPoint, bool)
}

// Result is the pair of per-knot hard and soft bound arrays.
type Result struct {
	Hard []kinematic.Bound
	Soft []kinematic.Bound
}

// Build folds boundaries into Result per spec.md §4.3's per-type
// dispatch, collapse repair, and emergency-brake envelope coupling.
func Build(cfg Config, boundaries []stbound.Boundary) (Result, *status.Status) {
	hard := make([]kinematic.Bound, cfg.N)
	soft := make([]kinematic.Bound, cfg.N)

	for i := 0; i < cfg.N; i++ {
		currT := float64(i) * cfg.Dt

		sLow, sHigh := 0.0, cfg.TotalLength
		sLowSoft, sHighSoft := 0.0, cfg.TotalLength

		if len(boundaries) > 0 {
			var ebkS float64
			hasEbk := false
			if cfg.EmergencyBrake != nil {
				if s, ok := cfg.EmergencyBrake(currT); ok {
					ebkS, hasEbk = s, true
				}
			}

			var dp DPPoint
			if cfg.DPProfile != nil {
				d, ok := cfg.DPProfile(currT)
				if !ok {
					return Result{}, status.New(status.InfeasibleBounds,
						"InfeasibleSoftBounds: DP speed profile lookup failed at t=%.3f", currT)
				}
				dp = d
			}

			for _, b := range boundaries {
				u, l, ok := b.GetUnblockSRange(currT)
				if !ok {
					continue
				}

				switch b.Type() {
				case stbound.Stop:
					sHigh = min(sHigh, u)
					sHighSoft = min(sHighSoft, u)

				case stbound.Yield:
					gap := followGap(b, currT)
					sHigh = min(sHigh, u-gap)
					sHighSoft = min(sHighSoft, u)

				case stbound.Follow:
					gap := followGap(b, currT)
					sHigh = min(sHigh, u-gap)
					softFollowDist := cfg.FollowMinDistance + min(7.0, cfg.FollowTimeBuffer*dp.V)
					sHighSoft = min(sHighSoft, u-softFollowDist)

				case stbound.Overtake:
					sLow = max(sLow, l)
					sLowSoft = max(sLowSoft, l+10.0)
				}

				// Collapse repair: STOP/YIELD/FOLLOW only tighten the
				// upper edge, so a collapse is repaired by relaxing
				// the lower edge down; OVERTAKE only tightens the
				// lower edge, repaired by relaxing the upper edge up.
				// Per the Open Question in spec.md §9, the original's
				// OVERTAKE repair checks the soft pair where the hard
				// pair would be natural; this implementation checks
				// each pair against itself, independently, as directed.
				if b.Type() == stbound.Overtake {
					if sHigh <= sLow {
						sHigh = sLow + collapseEpsilon
					}
					if sHighSoft <= sLowSoft {
						sHighSoft = sLowSoft + collapseEpsilon
					}
				} else {
					if sHigh <= sLow {
						sLow = sHigh - collapseEpsilon
					}
					if sHighSoft <= sLowSoft {
						sLowSoft = sHighSoft - collapseEpsilon
					}
				}
			}

			if hasEbk {
				sHigh = max(sHigh, ebkS+0.2)
			}
		}

		if sLow > sHigh {
			return Result{}, status.New(status.InfeasibleBounds,
				"InfeasibleBounds: knot %d s_low=%.3f > s_high=%.3f", i, sLow, sHigh)
		}

		hard[i] = kinematic.Bound{Lower: sLow, Upper: sHigh}
		soft[i] = kinematic.Bound{Lower: sLowSoft, Upper: sHighSoft}
	}

	return Result{Hard: hard, Soft: soft}, nil
}

// followGap computes the YIELD/FOLLOW gap: characteristic_length,
// widened to the end-interaction override when ego is within 0.05s of
// the interaction point.
func followGap(b stbound.Boundary, currT float64) float64 {
	gap := b.CharacteristicLength()
	if ep, ok := b.EndInteractionPoint(); ok {
		if absDiff(ep.T, currT) < 0.05 {
			gap = max(gap, ep.SGapOverride)
		}
	}
	return gap
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
