// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"fmt"
	"math"
)

// LatLon is a geodetic coordinate in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (c LatLon) String() string {
	return fmt.Sprintf("%6.4f %6.4f", c.Lat, c.Lon)
}

// Calculator converts between degree offsets and meter offsets around a
// reference coordinate. The scale factors depend on the reference latitude.
type Calculator struct {
	origin LatLon

	LatMetersPerDeg float64
	LonMetersPerDeg float64
}

// NewCalculator returns a calculator anchored at origin.
func NewCalculator(origin LatLon) *Calculator {
	c := &Calculator{}
	c.SetOrigin(origin)
	return c
}

// Origin returns the reference coordinate.
func (c *Calculator) Origin() LatLon { return c.origin }

// SetOrigin moves the reference coordinate and recomputes the scale factors.
func (c *Calculator) SetOrigin(origin LatLon) {
	c.origin = origin
	c.LatMetersPerDeg, c.LonMetersPerDeg = MetersPerDegree(origin.Lat)
}

// MetersPerDegree returns the length of one degree of latitude and of
// longitude at the given latitude.
func MetersPerDegree(latDeg float64) (lat, lon float64) {
	phi := latDeg * math.Pi / 180
	lat = 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi)
	lon = 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi)
	return lat, lon
}

// MetersToDegrees returns the coordinate north/east meters away from the
// origin.
func (c *Calculator) MetersToDegrees(north, east float64) LatLon {
	return LatLon{
		Lat: c.origin.Lat + north/c.LatMetersPerDeg,
		Lon: c.origin.Lon + east/c.LonMetersPerDeg,
	}
}

// DegreesToMeters returns the north/east offset in meters of p from the
// origin. It is the inverse of MetersToDegrees.
func (c *Calculator) DegreesToMeters(p LatLon) (north, east float64) {
	return c.OffsetToMeters(p.Lat-c.origin.Lat, p.Lon-c.origin.Lon)
}

// OffsetToMeters scales a raw degree offset to meters.
func (c *Calculator) OffsetToMeters(dLat, dLon float64) (north, east float64) {
	return dLat * c.LatMetersPerDeg, dLon * c.LonMetersPerDeg
}

// Rotate returns (x, y) rotated by theta radians.
func Rotate(x, y, theta float64) (float64, float64) {
	sin, cos := math.Sincos(theta)
	return cos*x + sin*y, -sin*x + cos*y
}
