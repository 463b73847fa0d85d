package simrunner

import (
	"context"
	"fmt"
	"time"

	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"

	"speedopt-core/closed_loop/longitudinal_control"
	"speedopt-core/internal/speedplan"
	"speedopt-core/utils"
)

type RunnerConfig struct {
	Interface    string
	MapPath      string
	ScenarioPath string
	FrameName    string
}

type Runner struct {
	cfg        RunnerConfig
	log        *utils.Logger
	cmap       *utils.CANMap
	scen       Scenario
	writer     utils.CANWriter
	reader     utils.CANReader // for receiving sensor feedback
	fd         *utils.FrameDef
	controller control.Controller // nil in open_loop / validation-only modes
	speedPlan  speedplan.Data     // populated once up front in speed_plan mode

	speedPlanDebug speedplan.DebugRecords // drive-boundary polyline etc., for telemetry
	speedPlanDt    float64                // horizon step used to build speedPlanDebug
	telemetryFd    *utils.FrameDef        // drivable-band telemetry frame, nil if not in the CAN map
}

// telemetryFrameName is the conventional name of the CAN frame the
// drivable-band polyline is republished on in speed_plan mode, used as
// a fallback when the map defines no utils.TelemetryFrame-kind frame
// by that name's keywords. A map defining neither just means telemetry
// is skipped, not a startup failure.
const telemetryFrameName = "ST_DRIVE_BOUND_1"

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	fd, err := cmap.FrameByName(cfg.FrameName)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	if fd.CycleMS <= 0 {
		return nil, fmt.Errorf("frame %s has invalid cycle_ms %d", fd.Name, fd.CycleMS)
	}
	if fd.Kind != utils.ActuatorFrame {
		log.Warn("frame %s classified as %s, not an actuator command; double check -frame", fd.Name, fd.Kind)
	}

	// Create CAN writer (TX)
	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}

	// Create CAN reader (RX) for sensor feedback
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		log:    log,
		cmap:   cmap,
		scen:   scen,
		writer: writer,
		reader: reader,
		fd:     fd,
	}

	switch scen.Meta.ControlMode {
	case "velocity_pid":
		if scen.PIDConfig == nil {
			return nil, fmt.Errorf("velocity_pid mode requires pid_config in scenario")
		}
		r.controller = control.NewPIDController(*scen.PIDConfig)
		log.Info("PID controller initialized: target=%.2f m/s, Kp=%.1f, Ki=%.1f, Kd=%.1f",
			scen.PIDConfig.TargetVelocityMPS, scen.PIDConfig.Kp, scen.PIDConfig.Ki, scen.PIDConfig.Kd)

	case "velocity_mpc":
		if scen.MPCConfig == nil {
			return nil, fmt.Errorf("velocity_mpc mode requires mpc_config in scenario")
		}
		r.controller = control.NewMPCController(*scen.MPCConfig)
		log.Info("MPC controller initialized: target=%.2f m/s, horizon=%d",
			scen.MPCConfig.TargetVelocityMPS, scen.MPCConfig.PredictionHorizon)

	case "auto_mpc":
		if scen.AutoMPCConfig == nil {
			return nil, fmt.Errorf("auto_mpc mode requires auto_mpc_config in scenario")
		}
		r.controller = control.NewAutoMPCController(*scen.AutoMPCConfig)
		log.Info("Auto-MPC controller initialized: target=%.2f m/s, aggressive=%v",
			scen.AutoMPCConfig.TargetVelocityMPS, scen.AutoMPCConfig.AggressiveTuning)

	case "speed_plan":
		if scen.SpeedPlanConfig == nil {
			return nil, fmt.Errorf("speed_plan mode requires speed_plan_config in scenario")
		}
		horizon := speedplan.DefaultHorizon()
		plan, dbg, err := buildSpeedPlan(*scen.SpeedPlanConfig, horizon)
		if err != nil {
			writer.Close()
			reader.Close()
			return nil, fmt.Errorf("speed plan: %w", err)
		}
		r.speedPlan = plan
		r.speedPlanDebug = dbg
		r.speedPlanDt = horizon.Dt
		if tfds := cmap.FramesByKind(utils.TelemetryFrame); len(tfds) > 0 {
			r.telemetryFd = tfds[0]
		} else if tfd, terr := cmap.FrameByName(telemetryFrameName); terr == nil {
			r.telemetryFd = tfd
		} else {
			log.Warn("no telemetry-kind frame and no %s fallback in CAN map; skipping telemetry", telemetryFrameName)
		}
		vehicle := scen.SpeedPlanConfig.vehicleLimits()
		switch scen.SpeedPlanConfig.ControllerType {
		case "mpc":
			r.controller = control.NewMPCController(control.MPCConfig{
				TargetVelocityMPS: scen.SpeedPlanConfig.CruiseSpeedMPS,
				PredictionHorizon: 10, ControlHorizon: 5, TimeStep: 0.1,
				MaxTorque: 3000, MaxBrakeForce: 20,
				MaxAccel: vehicle.MaxAccelMPS2, MaxDecel: vehicle.MaxDecelMPS2,
			})
		case "auto_mpc":
			r.controller = control.NewAutoMPCController(control.AutoMPCConfig{
				TargetVelocityMPS: scen.SpeedPlanConfig.CruiseSpeedMPS,
				WheelRadiusM:      vehicle.WheelRadiusM,
				GearRatio:         vehicle.GearRatio,
			})
		default:
			// MaxTorqueNm/MinTorqueNm are left zero so NewPIDController
			// derives them from the same vehicle mass/accel limits the
			// speed plan itself was bounded by, instead of a hardcoded
			// torque figure disconnected from the plan's own dynamics.
			r.controller = control.NewPIDController(control.PIDConfig{
				TargetVelocityMPS: scen.SpeedPlanConfig.CruiseSpeedMPS,
				Kp: 800, Ki: 50, Kd: 20,
				IntegralLimit: 50,
				Vehicle:       vehicle,
			})
		}
		log.Info("Speed-plan controller initialized: controller=%s points=%d",
			scen.SpeedPlanConfig.ControllerType, len(plan))

	case "adaptive_velocity_pid":
		// Accepted and validated (AdaptivePIDConfig above) but there is no
		// AdaptivePIDController implementation to drive; the mode stays
		// validation-only until one exists.
		log.Warn("adaptive_velocity_pid selected but no adaptive PID controller exists; running open loop")
	}

	return r, nil
}

// driveBoundAt returns the hard ST-drive-boundary band's (sLow, sHigh)
// at tick index i, read back out of the closed polyline debug.go built
// (lower edge walked forward, then upper edge walked back).
func (r *Runner) driveBoundAt(i int) (sLow, sHigh float64, ok bool) {
	poly := r.speedPlanDebug.STDriveBoundaryPolyline
	n := len(poly) / 2
	if n == 0 || i < 0 || i >= n {
		return 0, 0, false
	}
	return poly[i].S, poly[len(poly)-1-i].S, true
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

func (r *Runner) Run(ctx context.Context) error {
	controlModeStr := r.scen.Meta.ControlMode
	if controlModeStr == "" {
		controlModeStr = "open_loop"
	}

	r.log.Info("Starting TX: frame=%s id=0x%X dlc=%d cycle_ms=%d iface=%s scenario=%s duration=%.2fs mode=%s",
		r.fd.Name, r.fd.ID, r.fd.DLC, r.fd.CycleMS, r.cfg.Interface,
		r.scen.Meta.Name, r.scen.Timing.DurationS, controlModeStr)

	// The receive loop and the tick/publish loop are managed by one
	// errgroup: a reader failure cancels the tick loop instead of it
	// looping forever deaf to RX, and a tick-loop failure stops RX too.
	g, gctx := errgroup.WithContext(ctx)
	rxChan := make(chan SensorFeedback, 100)
	g.Go(func() error { return r.receiveLoop(gctx, rxChan) })
	g.Go(func() error { return r.tickLoop(gctx, rxChan) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// tickLoop drives the per-cycle plan/publish loop: it evaluates the
// scenario and, if a controller is active, the running speed plan,
// then encodes and transmits one CAN frame per tick.
func (r *Runner) tickLoop(ctx context.Context, rxChan <-chan SensorFeedback) error {
	start := time.Now()
	ticker := time.NewTicker(time.Duration(r.fd.CycleMS) * time.Millisecond)
	defer ticker.Stop()

	endAfter := time.Duration(r.scen.Timing.DurationS * float64(time.Second))
	var sent uint64

	currentVelocity := 0.0
	lastRxTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping TX")
			r.log.Info("Completed TX. frames_sent=%d", sent)
			return ctx.Err()

		case feedback := <-rxChan:
			currentVelocity = feedback.VelocityMPS
			lastRxTime = time.Now()
			r.log.Trace("RX velocity=%.3f m/s", currentVelocity)

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > endAfter {
				r.log.Info("Completed TX. frames_sent=%d", sent)
				return nil
			}

			t := elapsed.Seconds()
			dt := float64(r.fd.CycleMS) / 1000.0

			rxAge := now.Sub(lastRxTime)
			if rxAge > 500*time.Millisecond && r.controller != nil {
				r.log.Warn("No sensor feedback for %.1f ms - control loop may be unreliable", rxAge.Seconds()*1000)
			}

			cmd := EvalActCmd(&r.scen, t)

			if r.controller != nil {
				if r.speedPlan != nil {
					if pt, ok := r.speedPlan.EvaluateByTime(t); ok {
						r.controller.SetTargetVelocity(pt.V)
					}
				}
				out := r.controller.Update(currentVelocity, dt)
				cmd.TorqueNm = out.TorqueNm
				cmd.BrakePct = out.BrakePct

				if sent%100 == 0 {
					r.log.Debug("control: v=%.2f target=%.2f torque=%.1f brake=%.1f %s",
						currentVelocity, r.controller.GetTargetVelocity(), out.TorqueNm, out.BrakePct,
						control.GetControlModeStr(out))
				}
			}

			values := map[string]float64{
				"system_enable":       control.BoolToFloat(cmd.SystemEnable),
				"mode":                cmd.Mode,
				"steer_cmd_deg":       cmd.SteerDeg,
				"drive_torque_cmd_nm": cmd.TorqueNm,
				"brake_cmd_pct":       cmd.BrakePct,
			}

			frame, err := r.cmap.EncodeEinrideFrame(r.fd.Name, values)
			if err != nil {
				r.log.Error("Encode failed at t=%.3f: %v", t, err)
				return err
			}

			if err := r.writer.WriteFrame(ctx, frame); err != nil {
				r.log.Critical("Transmit failed at t=%.3f: %v", t, err)
				return err
			}

			sent++
			r.log.Trace("TX t=%.3f id=0x%X len=%d data=% X enable=%v mode=%.0f steer=%.2f torque=%.2f brake=%.2f",
				t, uint32(frame.ID), frame.Length, frame.Data[:frame.Length],
				cmd.SystemEnable, cmd.Mode, cmd.SteerDeg, cmd.TorqueNm, cmd.BrakePct)

			if r.telemetryFd != nil && r.speedPlanDt > 0 {
				r.publishDriveBound(ctx, t)
			}
		}
	}
}

// publishDriveBound republishes the current tick's drivable-band
// (sLow, sHigh) onto the telemetry frame. Errors are logged, not
// returned: losing one telemetry frame shouldn't take the tick loop
// down.
func (r *Runner) publishDriveBound(ctx context.Context, t float64) {
	idx := int(t/r.speedPlanDt + 0.5)
	sLow, sHigh, ok := r.driveBoundAt(idx)
	if !ok {
		return
	}

	values := map[string]float64{
		"s_low_m":  sLow,
		"s_high_m": sHigh,
	}
	frame, err := r.cmap.EncodeEinrideFrame(r.telemetryFd.Name, values)
	if err != nil {
		r.log.Warn("telemetry encode failed at t=%.3f: %v", t, err)
		return
	}
	if err := r.writer.WriteFrame(ctx, frame); err != nil {
		r.log.Warn("telemetry transmit failed at t=%.3f: %v", t, err)
	}
}

// SensorFeedback contains decoded sensor data from CAN RX
type SensorFeedback struct {
	VelocityMPS float64
	YawRateRPS  float64
	Timestamp   time.Time
}

// receiveLoop continuously reads CAN frames and decodes sensor data.
// It returns ctx.Err() on context cancellation and the read error on
// any other read failure, so it fits errgroup.Group.Go's func() error shape.
func (r *Runner) receiveLoop(ctx context.Context, feedback chan<- SensorFeedback) error {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			frame, err := r.reader.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Error("RX error: %v", err)
				return fmt.Errorf("rx: %w", err)
			}

			// Decode relevant sensor frames
			// Use VEHICLE_STATE_1 (0x300) for truth velocity feedback
			// This is more reliable than GNSS during PID tuning

			if frame.ID == 0x300 { // VEHICLE_STATE_1 frame contains truth velocity
				// Decode velocity from VEHICLE_STATE_1 frame
				// vehicle_speed_mps: start_bit=0, length=16, signed, factor=0.01

				velocity := r.decodeSignal(frame.Data[:], 0, 16, true, 0.01, 0.0)

				select {
				case feedback <- SensorFeedback{
					VelocityMPS: velocity,
					Timestamp:   time.Now(),
				}:
				default:
					// Channel full, skip
				}
			}

			r.log.Trace("RX id=0x%X len=%d data=% X", uint32(frame.ID), frame.Length, frame.Data[:frame.Length])
		}
	}
}

// decodeSignal extracts a signal value from CAN data using DBC parameters
func (r *Runner) decodeSignal(data []byte, startBit, bitLength int, isSigned bool, factor, offset float64) float64 {
	// Extract raw value (little-endian bit extraction)
	var rawValue int64

	startByte := startBit / 8
	startBitInByte := startBit % 8

	// Simple extraction for aligned signals
	if bitLength <= 16 && startBitInByte == 0 {
		if bitLength == 8 {
			rawValue = int64(data[startByte])
		} else if bitLength == 16 {
			rawValue = int64(data[startByte]) | (int64(data[startByte+1]) << 8)
		}
	} else if bitLength == 32 && startBitInByte == 0 {
		rawValue = int64(data[startByte]) |
			(int64(data[startByte+1]) << 8) |
			(int64(data[startByte+2]) << 16) |
			(int64(data[startByte+3]) << 24)
	}

	// Handle signed values
	if isSigned {
		signBit := int64(1) << (bitLength - 1)
		if rawValue&signBit != 0 {
			rawValue |= ^((int64(1) << bitLength) - 1)
		}
	}

	// Apply scaling
	return float64(rawValue)*factor + offset
}

// compile-time assurance the transmitted frame type is what we expect
var _ can.Frame
