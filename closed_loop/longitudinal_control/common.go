package control

// Controller is the common surface every longitudinal controller in
// this package exposes, so a driver loop can run any of them
// identically, including tracking a time-varying setpoint via
// SetTargetVelocity.
type Controller interface {
	Update(currentVelocity, dt float64) ControlOutput
	SetTargetVelocity(target float64)
	GetTargetVelocity() float64
	Reset()
}

// ControlOutput contains both throttle and brake commands
// Used by MPC and Auto-MPC controllers
type ControlOutput struct {
	TorqueNm   float64
	BrakePct   float64
	IsAccel    bool
	IsBrake    bool
	Confidence float64 // Model confidence (0-1)
}

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// BoolToFloat converts bool to float64 (for CAN encoding)
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// BoolToInt converts bool to int (for CSV logging)
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetControlModeStr returns a string describing the control mode
func GetControlModeStr(output ControlOutput) string {
	if output.IsAccel {
		return "[ACCEL]"
	} else if output.IsBrake {
		return "[BRAKE]"
	}
	return "[COAST]"
}

// VehicleLimits is the one place a controller's actuation ceiling is
// described: how hard the vehicle can accelerate/decelerate, and the
// geometry (mass, wheel radius, gear ratio, max brake force) needed to
// turn a torque or an acceleration into the other. A speed plan's own
// AMax/AMin flow into this through the same fields a controller reads,
// instead of each controller carrying its own disconnected torque
// ceiling pulled from scenario JSON.
type VehicleLimits struct {
	MassKg         float64 `json:"mass_kg,omitempty"`
	WheelRadiusM   float64 `json:"wheel_radius_m,omitempty"`
	GearRatio      float64 `json:"gear_ratio,omitempty"`
	MaxBrakeForceN float64 `json:"max_brake_force_n,omitempty"`
	MaxAccelMPS2   float64 `json:"max_accel_mps2,omitempty"`
	MaxDecelMPS2   float64 `json:"max_decel_mps2,omitempty"`
}

// DefaultVehicleLimits is the heavy-haul geometry this package's
// controllers were originally tuned against: 180 kN max brake force on
// a 1.95m wheel through a 28:1 gear ratio. Used whenever a config
// leaves VehicleLimits zero-valued rather than specifying its own.
func DefaultVehicleLimits() VehicleLimits {
	return VehicleLimits{
		MassKg:         20000,
		WheelRadiusM:   1.95,
		GearRatio:      28.0,
		MaxBrakeForceN: 180000,
		MaxAccelMPS2:   2,
		MaxDecelMPS2:   3,
	}
}

// orDefault fills in any zero-valued field from DefaultVehicleLimits
// without disturbing fields the caller did set — a caller that only
// cares about, say, MaxAccelMPS2/MaxDecelMPS2 shouldn't have those
// silently overwritten just because it left the geometry fields unset.
func (v VehicleLimits) orDefault() VehicleLimits {
	d := DefaultVehicleLimits()
	if v.MassKg == 0 {
		v.MassKg = d.MassKg
	}
	if v.WheelRadiusM == 0 {
		v.WheelRadiusM = d.WheelRadiusM
	}
	if v.GearRatio == 0 {
		v.GearRatio = d.GearRatio
	}
	if v.MaxBrakeForceN == 0 {
		v.MaxBrakeForceN = d.MaxBrakeForceN
	}
	if v.MaxAccelMPS2 == 0 {
		v.MaxAccelMPS2 = d.MaxAccelMPS2
	}
	if v.MaxDecelMPS2 == 0 {
		v.MaxDecelMPS2 = d.MaxDecelMPS2
	}
	return v
}

// BrakeTorqueCapacity is the torque equivalent of max brake force: the
// denominator every controller in this package divides a braking
// torque by to get a brake percentage.
func (v VehicleLimits) BrakeTorqueCapacity() float64 {
	v = v.orDefault()
	return v.MaxBrakeForceN * v.WheelRadiusM / v.GearRatio
}

// TorqueLimits derives a motor-torque ceiling from
// mass*MaxAccel*radius/gear and a floor from -mass*MaxDecel*radius/gear
// (the two are equal in magnitude only when MaxAccel equals MaxDecel),
// so a controller's saturation point tracks
// the same AMax/AMin a speed plan was built against rather than an
// independently hand-tuned number.
func (v VehicleLimits) TorqueLimits() (maxTorqueNm, minTorqueNm float64) {
	v = v.orDefault()
	maxTorqueNm = v.MassKg * v.MaxAccelMPS2 * v.WheelRadiusM / v.GearRatio
	minTorqueNm = -v.MassKg * v.MaxDecelMPS2 * v.WheelRadiusM / v.GearRatio
	return maxTorqueNm, minTorqueNm
}

// TorqueToActuators is the shared torque/brake-percentage conversion
// every controller in this package uses: positive torque drives the
// motor, negative torque is clamped to zero motor torque and converted
// to a brake percentage against maxBrakeTorqueNm.
func TorqueToActuators(controlTorque, maxBrakeTorqueNm float64) ControlOutput {
	var out ControlOutput
	out.Confidence = 1.0
	if controlTorque >= 0 {
		out.TorqueNm = controlTorque
		out.BrakePct = 0
		out.IsAccel = true
		out.IsBrake = false
		return out
	}
	out.TorqueNm = 0
	magnitude := controlTorque
	if magnitude < 0 {
		magnitude = -magnitude
	}
	out.BrakePct = ClampFloat((magnitude/maxBrakeTorqueNm)*100.0, 0, 100)
	out.IsAccel = false
	out.IsBrake = true
	return out
}
