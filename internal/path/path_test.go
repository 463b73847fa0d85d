package path_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedopt-core/internal/path"
)

func samplePath() *path.Discretized {
	return path.NewDiscretized([]path.Point{
		{S: 0, X: 0, Y: 0, Kappa: 0.0, VLimit: 10},
		{S: 10, X: 10, Y: 0, Kappa: 0.1, VLimit: 12},
		{S: 20, X: 20, Y: 0, Kappa: 0.2, VLimit: 8},
	})
}

func TestLengthAndMaxS(t *testing.T) {
	p := samplePath()
	assert.Equal(t, 20.0, p.Length())
	assert.Equal(t, 20.0, p.MaxS())
	assert.Equal(t, 3, p.Len())
	assert.False(t, p.Empty())
}

func TestEmptyPath(t *testing.T) {
	p := path.NewDiscretized(nil)
	assert.True(t, p.Empty())
	assert.Equal(t, 0.0, p.Length())
	assert.Equal(t, 0.0, p.MaxS())
}

func TestEvaluateInterior(t *testing.T) {
	p := samplePath()
	pt := p.Evaluate(5)
	assert.Equal(t, 5.0, pt.S)
	assert.InDelta(t, 5.0, pt.X, 1e-9)
	assert.InDelta(t, 0.05, pt.Kappa, 1e-9)
	assert.InDelta(t, 11.0, pt.VLimit, 1e-9)
}

func TestEvaluateClampsOutOfRange(t *testing.T) {
	p := samplePath()
	require.Equal(t, p.Front(), p.Evaluate(-5))
	require.Equal(t, p.Back(), p.Evaluate(100))
}

func TestEvaluateAtExactKnot(t *testing.T) {
	p := samplePath()
	pt := p.Evaluate(10)
	assert.Equal(t, 10.0, pt.S)
	assert.InDelta(t, 0.1, pt.Kappa, 1e-9)
}

func TestEvaluateReverse(t *testing.T) {
	p := samplePath()
	pt := p.EvaluateReverse(5)
	assert.Equal(t, 5.0, pt.S)
	assert.InDelta(t, 0.05, pt.Kappa, 1e-9)

	require.Equal(t, p.Front(), p.EvaluateReverse(-5))
	require.Equal(t, p.Back(), p.EvaluateReverse(100))
}
