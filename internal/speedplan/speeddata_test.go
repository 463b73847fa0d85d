package speedplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedopt-core/internal/speedplan"
)

func sampleData() speedplan.Data {
	return speedplan.Data{
		{S: 0, T: 0, V: 1, A: 0, J: 0},
		{S: 1, T: 1, V: 2, A: 0, J: 0},
		{S: 3, T: 2, V: 3, A: 0, J: 0},
	}
}

func TestEvaluateByTimeEmpty(t *testing.T) {
	var d speedplan.Data
	_, ok := d.EvaluateByTime(0)
	assert.False(t, ok)
}

func TestEvaluateByTimeInterior(t *testing.T) {
	d := sampleData()
	pt, ok := d.EvaluateByTime(0.5)
	require.True(t, ok)
	assert.InDelta(t, 0.5, pt.S, 1e-9)
	assert.InDelta(t, 1.5, pt.V, 1e-9)
}

func TestEvaluateByTimeClampsBeforeStart(t *testing.T) {
	d := sampleData()
	pt, ok := d.EvaluateByTime(-5)
	require.True(t, ok)
	assert.Equal(t, d[0], pt)
}

func TestEvaluateByTimeClampsAfterEnd(t *testing.T) {
	d := sampleData()
	pt, ok := d.EvaluateByTime(100)
	require.True(t, ok)
	assert.Equal(t, d[len(d)-1], pt)
}

func TestEvaluateByTimeAtExactSample(t *testing.T) {
	d := sampleData()
	pt, ok := d.EvaluateByTime(1)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pt.S, 1e-9)
	assert.InDelta(t, 2.0, pt.V, 1e-9)
}
