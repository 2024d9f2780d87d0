// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	defaultWorkingWidth = 64
	defaultSearchRadius = 4
)

// Velocity is a planar velocity estimate in meters/second, vehicle frame.
type Velocity struct {
	Leftward float64 `json:"leftward"`
	Forward  float64 `json:"forward"`
}

// WithWorkingWidth sets the width frames are scaled to before matching.
// The height follows the frame aspect ratio.
func WithWorkingWidth(width int) func(*FlowEstimator) {
	return func(f *FlowEstimator) {
		f.workW = width
	}
}

// WithSearchRadius sets the largest shift, in working pixels, that is searched
// for between consecutive frames.
func WithSearchRadius(radius int) func(*FlowEstimator) {
	return func(f *FlowEstimator) {
		f.radius = radius
	}
}

// FlowEstimator estimates planar velocity from consecutive downward-looking
// grayscale frames by global block matching.
type FlowEstimator struct {
	width, height int
	perspective   float64 // full horizontal field of view, radians

	workW, workH int
	radius       int

	prev *image.Gray
}

// NewFlowEstimator creates an estimator for width x height 8-bit grayscale
// frames taken by a camera with the given horizontal field of view.
func NewFlowEstimator(width, height int, perspectiveDeg float64, options ...func(*FlowEstimator)) (*FlowEstimator, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if perspectiveDeg <= 0 || perspectiveDeg >= 180 {
		return nil, fmt.Errorf("invalid perspective angle %.1f°", perspectiveDeg)
	}

	f := FlowEstimator{
		width:       width,
		height:      height,
		perspective: perspectiveDeg * math.Pi / 180,
		workW:       min(width, defaultWorkingWidth),
		radius:      defaultSearchRadius,
	}

	for _, option := range options {
		option(&f)
	}

	if f.workW <= 0 || f.workW > width {
		return nil, fmt.Errorf("invalid working width %d for frame width %d", f.workW, width)
	}
	f.workH = max(1, height*f.workW/width)

	if f.radius <= 0 || 2*f.radius >= min(f.workW, f.workH) {
		return nil, fmt.Errorf("search radius %d too large for %dx%d working frame", f.radius, f.workW, f.workH)
	}

	return &f, nil
}

// FrameSize returns the number of bytes Process expects per frame.
func (f *FlowEstimator) FrameSize() int {
	return f.width * f.height
}

// Reset drops the previous frame.
func (f *FlowEstimator) Reset() {
	f.prev = nil
}

// Process consumes one frame taken at the given distance above ground, dt
// seconds after the previous one, and returns the estimated velocity. The
// first frame, or a frame with an unusable dt, yields zero velocity.
func (f *FlowEstimator) Process(frame []byte, distance, dt float64) (Velocity, error) {
	if len(frame) != f.FrameSize() {
		return Velocity{}, fmt.Errorf("frame has %d bytes, expected %d", len(frame), f.FrameSize())
	}

	cur := f.scale(frame)
	prev := f.prev
	f.prev = cur

	if prev == nil || !(dt > 0) || math.IsInf(dt, 0) || !(distance > 0) || math.IsInf(distance, 0) {
		return Velocity{}, nil
	}

	dx, dy := f.match(prev, cur)

	// Ground footprint of one full-resolution pixel at this distance.
	metersPerPixel := 2 * distance * math.Tan(f.perspective/2) / float64(f.width)
	scale := float64(f.width) / float64(f.workW)

	// Image content moving right means the vehicle moved left; content moving
	// down means the vehicle moved forward (top of the image is the nose).
	return Velocity{
		Leftward: float64(dx) * scale * metersPerPixel / dt,
		Forward:  float64(dy) * scale * metersPerPixel / dt,
	}, nil
}

func (f *FlowEstimator) scale(frame []byte) *image.Gray {
	src := &image.Gray{
		Pix:    frame,
		Stride: f.width,
		Rect:   image.Rect(0, 0, f.width, f.height),
	}

	dst := image.NewGray(image.Rect(0, 0, f.workW, f.workH))
	if f.workW == f.width && f.workH == f.height {
		copy(dst.Pix, frame)
		return dst
	}

	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// match returns the shift (dx, dy) minimizing the mean absolute difference
// between cur(x, y) and prev(x-dx, y-dy) over the frame interior.
func (f *FlowEstimator) match(prev, cur *image.Gray) (int, int) {
	r := f.radius
	best := math.MaxFloat64
	var bestX, bestY int

	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			var sad int
			for y := r; y < f.workH-r; y++ {
				cRow := cur.Pix[y*cur.Stride:]
				pRow := prev.Pix[(y-dy)*prev.Stride:]
				for x := r; x < f.workW-r; x++ {
					d := int(cRow[x]) - int(pRow[x-dx])
					if d < 0 {
						d = -d
					}
					sad += d
				}
			}

			// Prefer the smaller shift on ties so a featureless frame reads
			// as stationary.
			score := float64(sad)
			if score < best || (score == best && dx*dx+dy*dy < bestX*bestX+bestY*bestY) {
				best, bestX, bestY = score, dx, dy
			}
		}
	}

	return bestX, bestY
}
