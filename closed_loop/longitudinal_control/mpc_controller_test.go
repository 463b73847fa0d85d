package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	control "speedopt-core/closed_loop/longitudinal_control"
)

func mpcCfg() control.MPCConfig {
	return control.MPCConfig{
		TargetVelocityMPS: 10,
		PredictionHorizon: 10,
		ControlHorizon:    5,
		TimeStep:          0.1,
		MaxTorque:         5000,
		MaxBrakeForce:     180,
		MaxAccel:          2,
		MaxDecel:          3,
	}
}

func TestMPCAcceleratesTowardHigherTarget(t *testing.T) {
	mpc := control.NewMPCController(mpcCfg())
	out := mpc.Update(0, 0.1)
	assert.True(t, out.IsAccel)
	assert.Equal(t, 0.0, out.BrakePct)
}

func TestMPCBrakesWhenAboveTarget(t *testing.T) {
	mpc := control.NewMPCController(mpcCfg())
	mpc.Update(20, 0.1)
	out := mpc.Update(20, 0.1)
	assert.True(t, out.IsBrake)
	assert.Equal(t, 0.0, out.TorqueNm)
}

func TestMPCOutputRespectsTorqueAndBrakeLimits(t *testing.T) {
	mpc := control.NewMPCController(mpcCfg())
	out := mpc.Update(0, 0.1)
	assert.LessOrEqual(t, out.TorqueNm, mpcCfg().MaxTorque)
	assert.GreaterOrEqual(t, out.TorqueNm, 0.0)
	assert.LessOrEqual(t, out.BrakePct, 100.0)
}

func TestMPCAdaptationIncreasesConfidenceOverIterations(t *testing.T) {
	cfg := mpcCfg()
	cfg.EnableAdaptation = true
	cfg.AdaptationRate = 0.01
	mpc := control.NewMPCController(cfg)
	before := mpc.GetDiagnostics().ModelConfidence
	for i := 0; i < 10; i++ {
		mpc.Update(float64(i)*0.2, 0.1)
	}
	after := mpc.GetDiagnostics().ModelConfidence
	assert.GreaterOrEqual(t, after, before)
}

func TestMPCResetClearsHistoryAndConfidence(t *testing.T) {
	mpc := control.NewMPCController(mpcCfg())
	mpc.Update(0, 0.1)
	mpc.Update(1, 0.1)
	mpc.Reset()
	diag := mpc.GetDiagnostics()
	assert.Equal(t, 0, diag.IterationCount)
	assert.InDelta(t, 0.1, diag.ModelConfidence, 1e-9)
}

func TestMPCSetAndGetTargetVelocity(t *testing.T) {
	mpc := control.NewMPCController(mpcCfg())
	mpc.SetTargetVelocity(12)
	assert.Equal(t, 12.0, mpc.GetTargetVelocity())
}
