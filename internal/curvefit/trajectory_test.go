package curvefit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedopt-core/internal/curvefit"
)

func TestFromKnotsDerivesJerkFromDdxDelta(t *testing.T) {
	// ddx goes 0 -> 2 -> 2 over two steps of 1.0: jerk=2 then jerk=0.
	traj, err := curvefit.FromKnots(0, 1.0, []float64{0, 1, 3}, []float64{0, 1, 2}, []float64{0, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.0, traj.ParamStart())
	assert.Equal(t, 2.0, traj.ParamEnd())
}

func TestFromKnotsRejectsLengthMismatch(t *testing.T) {
	_, err := curvefit.FromKnots(0, 1.0, []float64{0, 1}, []float64{0}, []float64{0, 1})
	assert.Error(t, err)
}

func TestFromKnotsRejectsEmpty(t *testing.T) {
	_, err := curvefit.FromKnots(0, 1.0, nil, nil, nil)
	assert.Error(t, err)
}

func TestEvaluateConstantJerkSegment(t *testing.T) {
	// single segment: x0=0, dx0=1, ddx0=0, jerk=6, duration=1
	traj := curvefit.NewTrajectory1d(0, 0, 1, 0, []curvefit.Segment{{Jerk: 6, Duration: 1}})

	// x(t) = 0 + 1*t + 0 + 6*t^3/6 = t + t^3
	assert.InDelta(t, 0.0, traj.Evaluate(0, 0), 1e-9)
	assert.InDelta(t, 2.0, traj.Evaluate(0, 1), 1e-9) // 1 + 1
	assert.InDelta(t, 1.0, traj.Evaluate(1, 0), 1e-9)  // dx(0) = 1
	assert.InDelta(t, 4.0, traj.Evaluate(1, 1), 1e-9)  // dx(1) = 1 + 0 + 0.5*6*1 = 4
	assert.InDelta(t, 6.0, traj.Evaluate(2, 1), 1e-9)  // ddx(1) = 0 + 6*1
	assert.InDelta(t, 6.0, traj.Evaluate(3, 0.5), 1e-9)
}

func TestEvaluateClampsBeforeStart(t *testing.T) {
	traj := curvefit.NewTrajectory1d(5, 10, 2, 0, []curvefit.Segment{{Jerk: 0, Duration: 1}})
	assert.Equal(t, 10.0, traj.Evaluate(0, 0))
	assert.Equal(t, 2.0, traj.Evaluate(1, 5))
}

func TestEvaluateClampsAfterEnd(t *testing.T) {
	traj := curvefit.NewTrajectory1d(0, 0, 1, 0, []curvefit.Segment{{Jerk: 0, Duration: 1}})
	atEnd := traj.Evaluate(0, 1)
	pastEnd := traj.Evaluate(0, 100)
	assert.Equal(t, atEnd, pastEnd)
}

func TestParamEndWithNoSegments(t *testing.T) {
	traj := curvefit.NewTrajectory1d(3, 0, 0, 0, nil)
	assert.Equal(t, 3.0, traj.ParamEnd())
	assert.Equal(t, 0.0, traj.Evaluate(3, 0))
}
