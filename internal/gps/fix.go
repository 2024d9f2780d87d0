package gps

import "github.com/relabs-tech/flight_core/internal/fusion"

// Validity values reported by RMC sentences.
const (
	ValidityActive = "A"
	ValidityVoid   = "V"
)

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "23/03/94"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void)

	// From the last GGA sentence.
	AltitudeM  float64 `json:"altitude_m"`
	Satellites int64   `json:"satellites"`
	Quality    string  `json:"quality,omitempty"`
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool {
	return f.Validity == ValidityActive
}

// Position returns the fix as a coordinate for the flight core.
func (f Fix) Position() fusion.LatLon {
	return fusion.LatLon{Lat: f.Latitude, Lon: f.Longitude}
}
