// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/fusion"
)

// Mission selects which sensor values follow the core frame on every tick.
type Mission string

const (
	// MissionCore carries only timestep and attitude.
	MissionCore Mission = "core"
	// MissionGPS adds altitude, latitude and longitude.
	MissionGPS Mission = "gps"
	// MissionFlow adds altitude and one grayscale camera frame.
	MissionFlow Mission = "flow"
	// MissionSim adds altitude, position[3] and orientation[3].
	MissionSim Mission = "sim"
)

// CoreFloats is the arity of the core frame: dt, pitch, roll, yaw.
const CoreFloats = 4

// ParseMission accepts the mission names used in flight_config.txt.
func ParseMission(s string) (Mission, error) {
	m := Mission(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MissionCore, MissionGPS, MissionFlow, MissionSim:
		return m, nil
	case "":
		return MissionCore, nil
	default:
		return "", fmt.Errorf("unknown mission %q", s)
	}
}

// ExtraFloats is the number of floats that follow the core frame.
func (m Mission) ExtraFloats() int {
	switch m {
	case MissionGPS:
		return 3
	case MissionFlow:
		return 1
	case MissionSim:
		return 7
	default:
		return 0
	}
}

// decode builds the telemetry of one tick from the received floats.
func (m Mission) decode(values []float32) flight.Telemetry {
	f := func(i int) float64 { return float64(values[i]) }

	t := flight.Telemetry{Timestep: f(0)}
	t.Attitude.Pitch = f(1)
	t.Attitude.Roll = f(2)
	t.Attitude.Yaw = f(3)

	if m == MissionCore {
		return t
	}

	altitude := f(4)
	t.Altitude = &altitude

	switch m {
	case MissionGPS:
		t.GPS = &fusion.LatLon{Lat: f(5), Lon: f(6)}
	case MissionSim:
		t.Position = &flight.Vec3{X: f(5), Y: f(6), Z: f(7)}
		t.Orientation = &flight.Vec3{X: f(8), Y: f(9), Z: f(10)}
	}
	return t
}
