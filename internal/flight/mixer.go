// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flight

import "math"

// NumMotors is the number of actuators of the vehicle.
const NumMotors = 4

// Thrusts holds one command per motor.
type Thrusts [NumMotors]float64

// Float32s returns the thrusts in wire precision.
func (t Thrusts) Float32s() []float32 {
	out := make([]float32, NumMotors)
	for i, v := range t {
		out[i] = float32(v)
	}
	return out
}

// Axes is a pitch/roll/yaw triple.
type Axes struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// MotorSigns tells how a positive pitch, roll or yaw command affects one
// motor.
type MotorSigns struct {
	Pitch, Roll, Yaw float64
}

// SignMatrix holds the signs of every motor.
type SignMatrix [NumMotors]MotorSigns

// XConfiguration is the sign matrix of an X-frame quadrotor. A positive pitch
// raises the two back propellers; roll and yaw follow the same convention.
var XConfiguration = SignMatrix{
	{Pitch: +1, Roll: -1, Yaw: +1},
	{Pitch: -1, Roll: -1, Yaw: -1},
	{Pitch: -1, Roll: +1, Yaw: +1},
	{Pitch: +1, Roll: +1, Yaw: -1},
}

// Mixer distributes collective thrust, demand and correction over the motors.
// Corrections modulate the demand-adjusted thrust multiplicatively so they
// scale with the thrust level.
type Mixer struct {
	Signs SignMatrix

	// MaxThrust is the upper bound of a motor command; zero disables it.
	MaxThrust float64
}

// Mix returns the four motor commands. Every command is finite and within
// [0, MaxThrust].
func (m Mixer) Mix(thrust float64, demand, correction Axes) Thrusts {
	var out Thrusts
	for i, s := range m.Signs {
		base := thrust + s.Roll*demand.Roll + s.Pitch*demand.Pitch + s.Yaw*demand.Yaw
		gain := 1 + s.Roll*correction.Roll + s.Pitch*correction.Pitch + s.Yaw*correction.Yaw
		out[i] = m.clamp(base * gain)
	}
	return out
}

// clamp maps non-finite and negative commands to 0 and caps the rest at
// MaxThrust.
func (m Mixer) clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if m.MaxThrust > 0 && v > m.MaxThrust {
		return m.MaxThrust
	}
	return v
}
