package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	control "speedopt-core/closed_loop/longitudinal_control"
)

func autoMPCCfg() control.AutoMPCConfig {
	return control.AutoMPCConfig{TargetVelocityMPS: 10}
}

func TestAutoMPCFirstUpdateAccelerates(t *testing.T) {
	amc := control.NewAutoMPCController(autoMPCCfg())
	out := amc.Update(0, 0.1)
	assert.True(t, out.IsAccel)
	assert.Equal(t, 0.0, out.BrakePct)
}

func TestAutoMPCBrakesWellAboveTarget(t *testing.T) {
	amc := control.NewAutoMPCController(autoMPCCfg())
	out := amc.Update(50, 0.1)
	assert.True(t, out.IsBrake)
	assert.Equal(t, 0.0, out.TorqueNm)
}

func TestAutoMPCLearningRateDefaultsWhenZero(t *testing.T) {
	amc := control.NewAutoMPCController(control.AutoMPCConfig{TargetVelocityMPS: 10})
	// LearningRate defaults internally; confirm construction and a call
	// don't panic and produce a bounded output.
	out := amc.Update(5, 0.1)
	assert.GreaterOrEqual(t, out.BrakePct, 0.0)
	assert.LessOrEqual(t, out.BrakePct, 100.0)
}

func TestAutoMPCResetRestoresInitialEstimates(t *testing.T) {
	amc := control.NewAutoMPCController(autoMPCCfg())
	for i := 0; i < 5; i++ {
		amc.Update(float64(i), 0.1)
	}
	amc.Reset()
	diag := amc.GetDiagnostics()
	assert.Equal(t, 0, diag.IterationCount)
	assert.Equal(t, 220000.0, diag.EstimatedMass)
	assert.Equal(t, 9.5, diag.EstimatedDrag)
	assert.Equal(t, 0.05, diag.MassConfidence)
}

func TestAutoMPCSetAndGetTargetVelocity(t *testing.T) {
	amc := control.NewAutoMPCController(autoMPCCfg())
	amc.SetTargetVelocity(20)
	assert.Equal(t, 20.0, amc.GetTargetVelocity())
}

func TestAutoMPCSaturationDetectionRaisesTorqueEstimate(t *testing.T) {
	amc := control.NewAutoMPCController(autoMPCCfg())
	amc.SetTargetVelocity(2000) // large error saturates torque at its current estimate
	before := amc.GetDiagnostics().EstimatedMaxTorque
	amc.Update(0, 0.1)
	after := amc.GetDiagnostics().EstimatedMaxTorque
	assert.Greater(t, after, before)
}
