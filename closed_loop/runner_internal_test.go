package simrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"speedopt-core/internal/speedplan"
)

func polylineFor(lower, upper []float64) speedplan.DebugRecords {
	n := len(lower)
	poly := make([]speedplan.STPolylinePoint, 0, 2*n)
	for i := 0; i < n; i++ {
		poly = append(poly, speedplan.STPolylinePoint{T: float64(i), S: lower[i]})
	}
	for i := n - 1; i >= 0; i-- {
		poly = append(poly, speedplan.STPolylinePoint{T: float64(i), S: upper[i]})
	}
	return speedplan.DebugRecords{STDriveBoundaryPolyline: poly}
}

func TestDriveBoundAtRecoversLowerAndUpperEdges(t *testing.T) {
	r := &Runner{speedPlanDebug: polylineFor([]float64{0, 1, 2}, []float64{10, 11, 12})}

	sLow, sHigh, ok := r.driveBoundAt(0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, sLow)
	assert.Equal(t, 10.0, sHigh)

	sLow, sHigh, ok = r.driveBoundAt(2)
	assert.True(t, ok)
	assert.Equal(t, 2.0, sLow)
	assert.Equal(t, 12.0, sHigh)
}

func TestDriveBoundAtOutOfRangeIsNotOK(t *testing.T) {
	r := &Runner{speedPlanDebug: polylineFor([]float64{0, 1}, []float64{5, 6})}

	_, _, ok := r.driveBoundAt(-1)
	assert.False(t, ok)

	_, _, ok = r.driveBoundAt(2)
	assert.False(t, ok)
}

func TestDriveBoundAtEmptyPolylineIsNotOK(t *testing.T) {
	r := &Runner{}
	_, _, ok := r.driveBoundAt(0)
	assert.False(t, ok)
}
