// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package flight is the quadrotor control core: it turns one telemetry
// snapshot plus pilot demand into four motor thrusts per tick.
package flight

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/flight_core/internal/fusion"
	"github.com/relabs-tech/flight_core/internal/input"
	"github.com/relabs-tech/flight_core/internal/orientation"
	"github.com/relabs-tech/flight_core/internal/pid"
)

// ErrInvalidTelemetry is returned for ticks carrying NaN or infinite values.
// The previous thrusts are returned along with it.
var ErrInvalidTelemetry = errors.New("invalid telemetry")

// Position hold sources reported in Snapshot.
const (
	HoldNone = ""
	HoldGPS  = "gps"
	HoldFlow = "flow"
)

// Vec3 is a simulator-frame vector.
type Vec3 struct {
	X, Y, Z float64
}

// Telemetry is one tick of sensor input. Optional sensors are nil when the
// mission does not provide them.
type Telemetry struct {
	Timestep float64 // seconds
	Attitude orientation.Attitude

	Altitude *float64         // meters
	GPS      *fusion.LatLon   // decimal degrees
	Flow     *fusion.Velocity // optical-flow velocity, m/s

	// Position and Orientation are the simulator's ground truth; the core
	// only reports them.
	Position    *Vec3
	Orientation *Vec3
}

// Validate rejects non-finite values.
func (t Telemetry) Validate() error {
	if !finite(t.Timestep) {
		return fmt.Errorf("timestep %v", t.Timestep)
	}
	if !t.Attitude.Finite() {
		return fmt.Errorf("attitude %+v", t.Attitude)
	}
	if t.Altitude != nil && !finite(*t.Altitude) {
		return fmt.Errorf("altitude %v", *t.Altitude)
	}
	if t.GPS != nil && !(finite(t.GPS.Lat) && finite(t.GPS.Lon)) {
		return fmt.Errorf("gps %v", *t.GPS)
	}
	if t.Flow != nil && !(finite(t.Flow.Leftward) && finite(t.Flow.Forward)) {
		return fmt.Errorf("flow %+v", *t.Flow)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Snapshot describes the last computed tick.
type Snapshot struct {
	Climb      float64 `json:"climb"`
	Thrust     float64 `json:"thrust"`
	Demand     Axes    `json:"demand"`
	Correction Axes    `json:"correction"`

	AltitudeHold   bool    `json:"altitude_hold"`
	AltitudeTarget float64 `json:"altitude_target"`
	AltitudeCorr   float64 `json:"altitude_correction"`

	PositionHold   string        `json:"position_hold,omitempty"`
	PositionTarget fusion.LatLon `json:"position_target"`
	HoldCorrection Axes          `json:"hold_correction"`

	Thrusts Thrusts `json:"thrusts"`
}

// Core is the flight control core. It owns every correction channel and is
// driven by one goroutine.
type Core struct {
	cfg    Config
	policy ThrustPolicy
	mixer  Mixer

	pitch    *pid.Stability
	roll     *pid.Stability
	yaw      *pid.Yaw
	altitude *pid.Hover
	lat      *pid.Hover
	lon      *pid.Hover

	altitudeLatch Latch
	positionLatch PositionLatch
	gpsLost       bool

	last     Thrusts
	snapshot Snapshot
}

// New builds a core from a validated tuning.
func New(cfg Config) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flight config: %w", err)
	}
	policy, err := cfg.Thrust.Build()
	if err != nil {
		return nil, err
	}

	return &Core{
		cfg:      cfg,
		policy:   policy,
		mixer:    Mixer{Signs: XConfiguration, MaxThrust: cfg.MaxThrust},
		pitch:    pid.NewStability(cfg.PitchRoll),
		roll:     pid.NewStability(cfg.PitchRoll),
		yaw:      pid.NewYaw(cfg.Yaw),
		altitude: pid.NewHover(cfg.Altitude),
		lat:      pid.NewHover(cfg.Position),
		lon:      pid.NewHover(cfg.Position),
	}, nil
}

// Config returns the tuning the core runs with.
func (c *Core) Config() Config { return c.cfg }

// Policy returns the thrust mapping in use.
func (c *Core) Policy() ThrustPolicy { return c.policy }

// Snapshot returns the intermediate values of the last accepted tick.
func (c *Core) Snapshot() Snapshot { return c.snapshot }

// Update runs one control tick. On invalid telemetry it returns the previous
// thrusts and an error wrapping ErrInvalidTelemetry; no controller state is
// touched in that case.
func (c *Core) Update(t Telemetry, d input.Demand) (Thrusts, error) {
	if err := t.Validate(); err != nil {
		return c.last, fmt.Errorf("%w: %w", ErrInvalidTelemetry, err)
	}

	d = d.Clamped()
	modes := d.Modes()
	dt := t.Timestep
	att := t.Attitude

	demand := Axes{
		Pitch: d.Pitch * c.cfg.Demand.Pitch,
		Roll:  d.Roll * c.cfg.Demand.Roll,
		Yaw:   d.Yaw * c.cfg.Demand.Yaw,
	}

	var snap Snapshot

	// Altitude hold. The altitude controller is only polled while engaged
	// and starts fresh on every engage edge.
	var altitude float64
	if t.Altitude != nil {
		altitude = *t.Altitude
	}
	engage := modes.AltitudeHold && c.cfg.Channels.AltitudeHold && t.Altitude != nil
	target, edge := c.altitudeLatch.Update(engage, altitude)
	if edge == EdgeEngaged {
		c.altitude.Reset()
	}
	if c.altitudeLatch.Engaged() {
		snap.AltitudeCorr = c.altitude.Correct(altitude, target, dt)
	}
	snap.AltitudeHold = c.altitudeLatch.Engaged()
	snap.AltitudeTarget = target

	climb := c.cfg.Deadband.Blend(d.Throttle, snap.AltitudeCorr, snap.AltitudeHold)

	// Position hold, resolved by the sensors this tick carries.
	hold := c.positionHold(t, modes, demand, &snap)

	pitchCorrection := c.pitch.Correct(att.Pitch, dt)
	rollCorrection := c.roll.Correct(-att.Roll, dt)

	if modes.Autopilot && c.cfg.Channels.Autopilot {
		demand.Yaw = c.cfg.AutopilotYawDemand
	}
	yawCorrection := c.yaw.Correct(att.Yaw, demand.Yaw, dt)

	correction := Axes{
		Pitch: pitchCorrection + hold.Pitch,
		Roll:  rollCorrection + hold.Roll,
		Yaw:   yawCorrection,
	}

	thrust := c.policy.Thrust(climb)
	out := c.mixer.Mix(thrust, demand, correction)

	snap.Climb = climb
	snap.Thrust = thrust
	snap.Demand = demand
	snap.Correction = correction
	snap.HoldCorrection = hold
	snap.Thrusts = out

	c.last = out
	c.snapshot = snap
	return out, nil
}

func (c *Core) positionHold(t Telemetry, modes input.Flags, demand Axes, snap *Snapshot) Axes {
	wanted := modes.PositionHold && c.cfg.Channels.PositionHold

	switch {
	case wanted && t.GPS == nil && c.positionLatch.Engaged():
		// Fix lost: keep the target and skip the GPS correction until a fix
		// returns.
		c.gpsLost = true
		snap.PositionTarget = c.positionLatch.Target()

	case wanted && t.GPS != nil:
		gps := *t.GPS
		target, edge := c.positionLatch.Update(true, gps)
		if edge == EdgeEngaged || c.gpsLost {
			c.lat.Reset()
			c.lon.Reset()
			c.gpsLost = false
		}
		// While the pilot is flying the vehicle somewhere the hold point
		// follows it.
		if demand.Pitch != 0 || demand.Roll != 0 {
			c.positionLatch.Anchor(gps)
			target = gps
		}

		latCorrection := c.lat.Correct(gps.Lat, target.Lat, t.Timestep)
		lonCorrection := c.lon.Correct(gps.Lon, target.Lon, t.Timestep)

		x, y := fusion.Rotate(latCorrection, lonCorrection, -t.Attitude.Yaw)

		snap.PositionHold = HoldGPS
		snap.PositionTarget = target
		return Axes{Pitch: -x, Roll: y}

	default:
		c.positionLatch.Update(false, fusion.LatLon{})
		c.gpsLost = false
	}

	if modes.PositionHold && c.cfg.Channels.HoverInPlace && t.Flow != nil {
		snap.PositionHold = HoldFlow
		return Axes{
			Pitch: -t.Flow.Forward * c.cfg.FlowHoverFactor,
			Roll:  -t.Flow.Leftward * c.cfg.FlowHoverFactor,
		}
	}
	return Axes{}
}
