package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	control "speedopt-core/closed_loop/longitudinal_control"
)

func pidCfg() control.PIDConfig {
	return control.PIDConfig{
		TargetVelocityMPS: 10,
		Kp:                500,
		Ki:                50,
		Kd:                10,
		MaxTorqueNm:       5000,
		MinTorqueNm:       -5000,
		IntegralLimit:     100,
	}
}

func TestPIDFirstUpdateReturnsHalfMaxTorque(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	out := pid.Update(0, 0.1)
	assert.Equal(t, pidCfg().MaxTorqueNm*0.5, out.TorqueNm)
	assert.True(t, out.IsAccel)
	assert.False(t, out.IsBrake)
}

func TestPIDAcceleratesTowardTargetWhenBelow(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	pid.Update(0, 0.1) // prime prevError/prevVelocity
	out := pid.Update(2, 0.1)
	assert.True(t, out.IsAccel)
	assert.Equal(t, 0.0, out.BrakePct)
}

func TestPIDBrakesWhenAboveTarget(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	pid.Update(10, 0.1)
	out := pid.Update(20, 0.1)
	assert.True(t, out.IsBrake)
	assert.Equal(t, 0.0, out.TorqueNm)
}

func TestPIDSustainedOvershootForcesAggressiveBrake(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	pid.Update(10, 0.1)
	// Feed enough overshoot ticks to cross the 2s threshold.
	var out control.ControlOutput
	for i := 0; i < 25; i++ {
		out = pid.Update(20, 0.1)
	}
	assert.True(t, out.IsBrake)
	assert.Equal(t, 0.0, out.TorqueNm)
}

func TestPIDResetClearsState(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	pid.Update(0, 0.1)
	pid.Update(2, 0.1)
	require.NotEqual(t, 0.0, pid.GetIntegral())
	pid.Reset()
	assert.Equal(t, 0.0, pid.GetIntegral())
	assert.Equal(t, 0.0, pid.GetError())
}

func TestPIDSetAndGetTargetVelocity(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	pid.SetTargetVelocity(15)
	assert.Equal(t, 15.0, pid.GetTargetVelocity())
}

func TestPIDGetDiagnostics(t *testing.T) {
	pid := control.NewPIDController(pidCfg())
	pid.Update(0, 0.1)
	pid.Update(5, 0.1)
	diag := pid.GetDiagnostics()
	assert.Equal(t, pid.GetError(), diag.Error)
	assert.Equal(t, pid.GetIntegral(), diag.Integral)
}
