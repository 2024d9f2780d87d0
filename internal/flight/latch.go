// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flight

import "github.com/relabs-tech/flight_core/internal/fusion"

// Edge is the transition observed by a latch on one tick.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeEngaged
	EdgeDisengaged
)

func (e Edge) String() string {
	switch e {
	case EdgeEngaged:
		return "engaged"
	case EdgeDisengaged:
		return "disengaged"
	default:
		return "none"
	}
}

// Latch captures a hold target on the tick a hold switch is engaged and
// releases it when the switch is released.
type Latch struct {
	previous bool
	target   float64
}

// Update feeds one switch sample. value is captured as the target on the
// rising edge. While the switch is off the target is zero.
func (l *Latch) Update(engage bool, value float64) (float64, Edge) {
	edge := EdgeNone
	switch {
	case engage && !l.previous:
		l.target = value
		edge = EdgeEngaged
	case !engage:
		if l.previous {
			edge = EdgeDisengaged
		}
		l.target = 0
	}
	l.previous = engage
	return l.target, edge
}

// Engaged reports whether the switch was on at the last Update.
func (l *Latch) Engaged() bool { return l.previous }

// Target returns the held value, zero while disengaged.
func (l *Latch) Target() float64 { return l.target }

// PositionLatch is a Latch for a geodetic hold target.
type PositionLatch struct {
	previous bool
	target   fusion.LatLon
}

// Update feeds one switch sample; p is captured on the rising edge.
func (l *PositionLatch) Update(engage bool, p fusion.LatLon) (fusion.LatLon, Edge) {
	edge := EdgeNone
	switch {
	case engage && !l.previous:
		l.target = p
		edge = EdgeEngaged
	case !engage:
		if l.previous {
			edge = EdgeDisengaged
		}
		l.target = fusion.LatLon{}
	}
	l.previous = engage
	return l.target, edge
}

// Anchor moves the held target while engaged, e.g. when the pilot flies
// the vehicle to a new spot.
func (l *PositionLatch) Anchor(p fusion.LatLon) {
	if l.previous {
		l.target = p
	}
}

// Engaged reports whether the switch was on at the last Update.
func (l *PositionLatch) Engaged() bool { return l.previous }

// Target returns the held position, zero while disengaged.
func (l *PositionLatch) Target() fusion.LatLon { return l.target }

// Deadband is the throttle range in which altitude hold may override the
// pilot's throttle.
type Deadband struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Contains reports whether throttle lies strictly inside the band.
func (d Deadband) Contains(throttle float64) bool {
	return throttle > d.Low && throttle < d.High
}

// Blend returns the climb demand: 0.5 + correction while hold is engaged and
// the throttle is inside the band, the raw throttle otherwise.
func (d Deadband) Blend(throttle, correction float64, holdEngaged bool) float64 {
	if holdEngaged && d.Contains(throttle) {
		return 0.5 + correction
	}
	return throttle
}
