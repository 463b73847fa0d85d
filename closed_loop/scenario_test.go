package simrunner_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	simrunner "speedopt-core/closed_loop"
	control "speedopt-core/closed_loop/longitudinal_control"
)

func writeScenario(t *testing.T, scen simrunner.Scenario) string {
	t.Helper()
	data, err := json.Marshal(scen)
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func minimalScenario() simrunner.Scenario {
	return simrunner.Scenario{
		Meta:   simrunner.ScenarioMeta{Name: "test"},
		Timing: simrunner.ScenarioTiming{DtS: 0.01, DurationS: 5},
	}
}

func TestLoadScenarioDefaultsToOpenLoop(t *testing.T) {
	p := writeScenario(t, minimalScenario())
	scen, err := simrunner.LoadScenario(p)
	require.NoError(t, err)
	assert.Equal(t, "open_loop", scen.Meta.ControlMode)
}

func TestLoadScenarioRejectsNonPositiveDuration(t *testing.T) {
	scen := minimalScenario()
	scen.Timing.DurationS = 0
	p := writeScenario(t, scen)
	_, err := simrunner.LoadScenario(p)
	assert.Error(t, err)
}

func TestLoadScenarioRejectsMissingReadFile(t *testing.T) {
	_, err := simrunner.LoadScenario(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadScenarioVelocityPIDRequiresConfig(t *testing.T) {
	scen := minimalScenario()
	scen.Meta.ControlMode = "velocity_pid"
	p := writeScenario(t, scen)
	_, err := simrunner.LoadScenario(p)
	assert.Error(t, err)
}

func TestLoadScenarioVelocityPIDRejectsNonPositiveTarget(t *testing.T) {
	scen := minimalScenario()
	scen.Meta.ControlMode = "velocity_pid"
	scen.PIDConfig = &control.PIDConfig{TargetVelocityMPS: 0}
	p := writeScenario(t, scen)
	_, err := simrunner.LoadScenario(p)
	assert.Error(t, err)
}

func TestLoadScenarioVelocityPIDAccepted(t *testing.T) {
	scen := minimalScenario()
	scen.Meta.ControlMode = "velocity_pid"
	scen.PIDConfig = &control.PIDConfig{TargetVelocityMPS: 10}
	p := writeScenario(t, scen)
	out, err := simrunner.LoadScenario(p)
	require.NoError(t, err)
	assert.Equal(t, "velocity_pid", out.Meta.ControlMode)
}

func TestLoadScenarioSpeedPlanRequiresPositivePathAndSpeed(t *testing.T) {
	scen := minimalScenario()
	scen.Meta.ControlMode = "speed_plan"
	scen.SpeedPlanConfig = &simrunner.SpeedPlanConfig{PathLengthM: 0, SpeedLimitMPS: 10}
	p := writeScenario(t, scen)
	_, err := simrunner.LoadScenario(p)
	assert.Error(t, err)
}

func TestLoadScenarioAutoMPCRequiresConfig(t *testing.T) {
	scen := minimalScenario()
	scen.Meta.ControlMode = "auto_mpc"
	p := writeScenario(t, scen)
	_, err := simrunner.LoadScenario(p)
	assert.Error(t, err)
}

func TestEvalActCmdUsesDefaultsOutsideAnySegment(t *testing.T) {
	scen := &simrunner.Scenario{
		Defaults: simrunner.ActuatorCmd{TorqueNm: 500, BrakePct: 0},
		Timing:   simrunner.ScenarioTiming{DurationS: 10},
	}
	cmd := simrunner.EvalActCmd(scen, 100)
	assert.Equal(t, 500.0, cmd.TorqueNm)
}

func TestEvalActCmdAppliesMatchingSegment(t *testing.T) {
	scen := &simrunner.Scenario{
		Defaults: simrunner.ActuatorCmd{TorqueNm: 0},
		Timing:   simrunner.ScenarioTiming{DurationS: 10},
		Segments: []simrunner.ScenarioSegment{
			{T0: 0, T1: 5, TorqueNm: 1000, BrakePct: 0},
			{T0: 5, T1: -1, TorqueNm: 0, BrakePct: 50},
		},
	}
	cmd := simrunner.EvalActCmd(scen, 2)
	assert.Equal(t, 1000.0, cmd.TorqueNm)

	cmd = simrunner.EvalActCmd(scen, 7)
	assert.Equal(t, 50.0, cmd.BrakePct)
}

func TestEvalActCmdClosedLoopModeKeepsDefaultTorqueWhenSegmentOmitsIt(t *testing.T) {
	scen := &simrunner.Scenario{
		Meta:     simrunner.ScenarioMeta{ControlMode: "velocity_pid"},
		Defaults: simrunner.ActuatorCmd{TorqueNm: 42},
		Timing:   simrunner.ScenarioTiming{DurationS: 10},
		Segments: []simrunner.ScenarioSegment{
			{T0: 0, T1: -1, BrakePct: 0}, // TorqueNm left zero-valued in JSON
		},
	}
	cmd := simrunner.EvalActCmd(scen, 1)
	assert.Equal(t, 42.0, cmd.TorqueNm)
}
