package gps

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Reader turns a stream of NMEA sentences into fixes. RMC sentences complete
// a fix; GGA sentences update altitude and satellite data in between.
type Reader struct {
	scanner *bufio.Scanner
	current Fix

	// Skipped counts lines that were not parseable NMEA.
	Skipped int
}

// NewReader reads sentences from r, typically a serial port.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the fix completed by the next RMC sentence. It returns io.EOF
// when the stream ends.
func (r *Reader) Next() (Fix, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())

		// NMEA sentences usually start with '$'
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy GPS or partial sentences
			r.Skipped++
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)
			r.current.AltitudeM = m.Altitude
			r.current.Satellites = m.NumSatellites
			r.current.Quality = m.FixQuality

		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)
			r.current.Time = m.Time.String()
			r.current.Date = m.Date.String()
			r.current.Latitude = m.Latitude
			r.current.Longitude = m.Longitude
			r.current.SpeedKnots = m.Speed
			r.current.CourseDeg = m.Course
			r.current.Validity = string(m.Validity)
			return r.current, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Fix{}, fmt.Errorf("gps: read: %w", err)
	}
	return Fix{}, io.EOF
}
