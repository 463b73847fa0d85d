package stbound_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"speedopt-core/internal/stbound"
)

func TestTypeString(t *testing.T) {
	cases := map[stbound.Type]string{
		stbound.Stop:     "STOP",
		stbound.Yield:    "YIELD",
		stbound.Follow:   "FOLLOW",
		stbound.Overtake: "OVERTAKE",
		stbound.Type(99):  "UNKNOWN",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestIntervalValidityWindow(t *testing.T) {
	b := &stbound.Interval{
		Kind:      stbound.Stop,
		Upper:     func(t float64) float64 { return 50.0 },
		ValidFrom: 1.0,
		ValidTo:   5.0,
		GapLength: 3.0,
	}

	_, _, ok := b.GetUnblockSRange(0.5)
	assert.False(t, ok, "before ValidFrom should not apply")

	_, _, ok = b.GetUnblockSRange(6.0)
	assert.False(t, ok, "after ValidTo should not apply")

	u, l, ok := b.GetUnblockSRange(3.0)
	assert.True(t, ok)
	assert.Equal(t, 50.0, u)
	assert.Equal(t, 0.0, l)
}

func TestIntervalNoValidToMeansUnbounded(t *testing.T) {
	b := &stbound.Interval{
		Kind:      stbound.Overtake,
		Lower:     func(t float64) float64 { return 10.0 + t },
		ValidFrom: 0,
		ValidTo:   0, // ValidTo <= ValidFrom -> unbounded
	}

	_, l, ok := b.GetUnblockSRange(1000.0)
	assert.True(t, ok)
	assert.Equal(t, 1010.0, l)
}

func TestIntervalCharacteristicLengthAndEndPoint(t *testing.T) {
	b := &stbound.Interval{Kind: stbound.Follow, GapLength: 7.5}
	assert.Equal(t, 7.5, b.CharacteristicLength())

	_, ok := b.EndInteractionPoint()
	assert.False(t, ok)

	b.EndPoint = &stbound.EndInteraction{T: 4.0, SGapOverride: 2.0}
	ep, ok := b.EndInteractionPoint()
	assert.True(t, ok)
	assert.Equal(t, 4.0, ep.T)
	assert.Equal(t, 2.0, ep.SGapOverride)
}

func TestIntervalTypeAccessor(t *testing.T) {
	b := &stbound.Interval{Kind: stbound.Yield}
	assert.Equal(t, stbound.Yield, b.Type())
}
