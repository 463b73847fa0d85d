package bounds_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedopt-core/internal/bounds"
	"speedopt-core/internal/stbound"
)

func baseConfig() bounds.Config {
	return bounds.Config{
		N:                 3,
		Dt:                1.0,
		TotalLength:       100,
		FollowMinDistance: 5,
		FollowTimeBuffer:  1.0,
	}
}

func TestBuildNoBoundariesGivesFullCorridor(t *testing.T) {
	res, st := bounds.Build(baseConfig(), nil)
	require.Nil(t, st)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, res.Hard[i].Lower)
		assert.Equal(t, 100.0, res.Hard[i].Upper)
	}
}

func TestBuildStopTightensUpperEdgeOnly(t *testing.T) {
	stop := &stbound.Interval{
		Kind:      stbound.Stop,
		Upper:     func(t float64) float64 { return 20 },
		ValidFrom: 0,
	}
	res, st := bounds.Build(baseConfig(), []stbound.Boundary{stop})
	require.Nil(t, st)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, res.Hard[i].Lower)
		assert.Equal(t, 20.0, res.Hard[i].Upper)
		assert.Equal(t, 20.0, res.Soft[i].Upper)
	}
}

func TestBuildOvertakeTightensLowerEdgeOnly(t *testing.T) {
	overtake := &stbound.Interval{
		Kind:      stbound.Overtake,
		Lower:     func(t float64) float64 { return 30 },
		ValidFrom: 0,
	}
	res, st := bounds.Build(baseConfig(), []stbound.Boundary{overtake})
	require.Nil(t, st)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 30.0, res.Hard[i].Lower)
		assert.Equal(t, 100.0, res.Hard[i].Upper)
		assert.Equal(t, 40.0, res.Soft[i].Lower) // +10 soft offset
	}
}

func TestBuildFollowWidensWithDPSpeed(t *testing.T) {
	cfg := baseConfig()
	cfg.DPProfile = func(t float64) (bounds.DPPoint, bool) {
		return bounds.DPPoint{S: 0, V: 3}, true
	}
	follow := &stbound.Interval{
		Kind:      stbound.Follow,
		Upper:     func(t float64) float64 { return 50 },
		GapLength: 2,
		ValidFrom: 0,
	}
	res, st := bounds.Build(cfg, []stbound.Boundary{follow})
	require.Nil(t, st)
	// hard: u - gap = 50 - 2 = 48
	assert.Equal(t, 48.0, res.Hard[0].Upper)
	// soft: u - (FollowMinDistance + min(7, TimeBuffer*V)) = 50 - (5+3) = 42
	assert.Equal(t, 42.0, res.Soft[0].Upper)
}

func TestBuildDPProfileLookupFailureIsInfeasible(t *testing.T) {
	cfg := baseConfig()
	cfg.DPProfile = func(t float64) (bounds.DPPoint, bool) { return bounds.DPPoint{}, false }
	follow := &stbound.Interval{Kind: stbound.Follow, Upper: func(t float64) float64 { return 50 }, ValidFrom: 0}
	_, st := bounds.Build(cfg, []stbound.Boundary{follow})
	require.NotNil(t, st)
	assert.Equal(t, "InfeasibleBounds", st.Kind.String())
}

func TestBuildCollapseRepairRelaxesLowerForStop(t *testing.T) {
	// Stop wall at s=5, but a simultaneous overtake boundary already
	// pushed the lower edge above it; STOP's repair branch should relax
	// the lower edge back down instead of reporting infeasible.
	stop := &stbound.Interval{Kind: stbound.Stop, Upper: func(t float64) float64 { return 5 }, ValidFrom: 0}
	overtake := &stbound.Interval{Kind: stbound.Overtake, Lower: func(t float64) float64 { return 10 }, ValidFrom: 0}

	res, st := bounds.Build(baseConfig(), []stbound.Boundary{overtake, stop})
	require.Nil(t, st)
	assert.True(t, res.Hard[0].Lower <= res.Hard[0].Upper)
}

func TestBuildEmergencyBrakeWidensUpperEdge(t *testing.T) {
	cfg := baseConfig()
	cfg.EmergencyBrake = func(t float64) (float64, bool) { return 60, true }
	stop := &stbound.Interval{Kind: stbound.Stop, Upper: func(t float64) float64 { return 20 }, ValidFrom: 0}
	res, st := bounds.Build(cfg, []stbound.Boundary{stop})
	require.Nil(t, st)
	assert.Equal(t, 60.2, res.Hard[0].Upper)
}

func TestBuildInfeasibleWhenLowerExceedsUpper(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalLength = -1 // negative corridor length with no boundaries to repair it
	_, st := bounds.Build(cfg, nil)
	require.NotNil(t, st)
	assert.Equal(t, "InfeasibleBounds", st.Kind.String())
}
