// Package depth implements the acquisition and raw-encoding-correction
// stages (C1 DepthSource, C2 FrameConverter) of the Sound Room engine.
package depth

import (
	"context"
	"errors"
	"time"
)

// Frame is a dense depth map in millimetres, width W by height H, with a
// capture timestamp. Values are stored in a single flat slice reused
// across ticks by the caller; Frame itself never allocates on a hot path.
// A value of 0 denotes "no measurement."
type Frame struct {
	Width, Height int
	Timestamp     time.Time
	Values        []uint16 // len == Width*Height
}

// At returns the depth at pixel (x, y) in millimetres.
func (f *Frame) At(x, y int) uint16 {
	return f.Values[y*f.Width+x]
}

var (
	// ErrUnavailable is returned by Poll when the device is disconnected.
	ErrUnavailable = errors.New("depth source unavailable")
)

// Properties describes the fixed characteristics of a depth stream.
type Properties struct {
	Width, Height  int
	ScaleMMPerUnit float64
}

// Source is the capability interface a concrete sensor SDK adapter
// implements. There is deliberately one interface and one adapter per
// SDK rather than runtime probing of method names: see spec.md §9.
type Source interface {
	// Start opens the device. It must be called before Poll.
	Start(ctx context.Context) error
	// Stop closes the device. Safe to call more than once.
	Stop() error
	// Poll returns the next frame if one becomes ready before timeout
	// elapses, nil if it times out (not an error), or ErrUnavailable if
	// the device has been disconnected.
	Poll(ctx context.Context, timeout time.Duration) (*Frame, error)
	Properties() Properties
}

// Converter corrects a sensor's raw encoding into a uniform depth map.
// Some sensors encode depth as raw<<Shift; Convert right-shifts by Shift,
// clips to the uint16 range, and optionally runs a bounded-cost bilateral
// smoothing pass. Convert writes its result into dst and keeps no state
// between calls; the smoothing pass allocates one scratch copy of the
// frame per call.
type Converter struct {
	Shift    uint
	Smoothed bool
}

// Convert corrects raw into dst in place. raw and dst may be the same
// slice. Both must already be sized Width*Height.
func (c Converter) Convert(raw []uint16, dst []uint16) {
	for i, v := range raw {
		shifted := uint32(v) >> c.Shift
		if shifted > 65535 {
			shifted = 65535
		}
		dst[i] = uint16(shifted)
	}

	if c.Smoothed {
		bilateralSmooth(dst)
	}
}

// bilateralSmooth applies a cheap 3-tap edge-preserving smoothing pass
// along scanlines only (bounded cost: one pass, no neighbourhood search),
// skipping "no measurement" zeros so they don't bleed into real depth.
func bilateralSmooth(values []uint16) {
	const sigma = 200 // mm; values further apart than this don't blend

	out := make([]uint16, len(values))
	copy(out, values)

	for i := 1; i < len(values)-1; i++ {
		center := values[i]
		if center == 0 {
			continue
		}

		var sum, weight uint32
		for _, n := range [3]uint16{values[i-1], center, values[i+1]} {
			if n == 0 {
				continue
			}
			diff := int(center) - int(n)
			if diff < 0 {
				diff = -diff
			}
			if diff > sigma {
				continue
			}
			w := uint32(sigma - diff + 1)
			sum += uint32(n) * w
			weight += w
		}

		if weight > 0 {
			out[i] = uint16(sum / weight)
		}
	}

	copy(values, out)
}
