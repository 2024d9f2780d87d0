// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pid implements the scalar correctors used by the flight core.
//
// Three flavors share the same term bookkeeping:
//
//	Stability  target is implicitly zero, derivative of the measured angle
//	Yaw        explicit target, error wrapped into (-π, π]
//	Hover      explicit target (altitude, GPS degrees), derivative of the error
//
// A controller is owned by exactly one correction channel and is not safe for
// concurrent use.
package pid

import "math"

// Gains holds the tuning of one controller. Ki may be zero.
// IntegralLimit bounds the integral accumulator; zero leaves it unbounded.
type Gains struct {
	Kp            float64 `yaml:"kp" json:"kp"`
	Kd            float64 `yaml:"kd" json:"kd"`
	Ki            float64 `yaml:"ki" json:"ki"`
	IntegralLimit float64 `yaml:"integralLimit" json:"integral_limit"`
}

// terms carries the state every flavor needs between calls.
type terms struct {
	gains    Gains
	previous float64 // previous measurement or error, flavor dependent
	integral float64
	primed   bool
}

func (t *terms) reset() {
	t.previous = 0
	t.integral = 0
	t.primed = false
}

// usable reports whether dt can be used as a divisor / integration step.
func usable(dt float64) bool {
	return dt > 0 && !math.IsInf(dt, 0) && !math.IsNaN(dt)
}

// rate returns (value - previous)/dt, or zero on the first call or when dt
// cannot be used.
func (t *terms) rate(delta, dt float64) float64 {
	if !t.primed || !usable(dt) {
		return 0
	}
	return delta / dt
}

func (t *terms) accumulate(err, dt float64) float64 {
	if t.gains.Ki == 0 {
		return 0
	}
	if usable(dt) {
		t.integral += err * dt
		if lim := t.gains.IntegralLimit; lim > 0 {
			t.integral = math.Max(-lim, math.Min(lim, t.integral))
		}
	}
	return t.gains.Ki * t.integral
}

// Integral returns the current integral accumulator.
func (t *terms) Integral() float64 { return t.integral }

// Stability drives a measured angle back to zero.
type Stability struct {
	terms
}

// NewStability returns a stability controller.
func NewStability(g Gains) *Stability {
	return &Stability{terms{gains: g}}
}

// Reset forgets the derivative history and the integral.
func (s *Stability) Reset() { s.reset() }

// Correct returns the correction for the measured angle current.
// The derivative acts on the measurement so that it has the same sign as the
// derivative of the error -current.
func (s *Stability) Correct(current, dt float64) float64 {
	err := -current

	p := s.gains.Kp * err
	d := -s.gains.Kd * s.rate(current-s.previous, dt)
	i := s.accumulate(err, dt)

	s.previous = current
	s.primed = true

	return p + i + d
}

// Yaw tracks a heading target with wraparound at ±π.
type Yaw struct {
	terms
}

// NewYaw returns a yaw controller.
func NewYaw(g Gains) *Yaw {
	return &Yaw{terms{gains: g}}
}

// Reset forgets the derivative history and the integral.
func (y *Yaw) Reset() { y.reset() }

// Error returns target - current wrapped into (-π, π].
func (y *Yaw) Error(current, target float64) float64 {
	return NormalizeAngle(target - current)
}

// Correct returns the correction that turns current towards target.
func (y *Yaw) Correct(current, target, dt float64) float64 {
	err := y.Error(current, target)

	p := y.gains.Kp * err
	d := y.gains.Kd * y.rate(NormalizeAngle(err-y.previous), dt)
	i := y.accumulate(err, dt)

	y.previous = err
	y.primed = true

	return p + i + d
}

// Hover holds an externally supplied target such as an altitude or a GPS
// coordinate.
type Hover struct {
	terms
}

// NewHover returns a hold-type controller.
func NewHover(g Gains) *Hover {
	return &Hover{terms{gains: g}}
}

// Reset forgets the derivative history and the integral.
func (h *Hover) Reset() { h.reset() }

// Correct returns the correction that moves current towards target.
func (h *Hover) Correct(current, target, dt float64) float64 {
	err := target - current

	p := h.gains.Kp * err
	d := h.gains.Kd * h.rate(err-h.previous, dt)
	i := h.accumulate(err, dt)

	h.previous = err
	h.primed = true

	return p + i + d
}

// NormalizeAngle maps a (finite) angle in radians into (-π, π].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
