package depth

import (
	"context"
	"time"
)

// SimulatedSource synthesizes depth frames of a single rectangular
// "body" silhouette walking a scripted path, for integration tests and
// the --simulated mode of cmd/soundroom-engine. It is not a vendor SDK adapter: the real
// adapter is out of scope (spec.md §1), the Source interface is the
// deliverable.
type SimulatedSource struct {
	Width, Height int
	// Waypoints, camera-frame pixel column + depth (millimetres) pairs the
	// source walks through one per Poll call, holding the last one once
	// exhausted.
	Waypoints []SimWaypoint

	step      int
	started   bool
	available bool
}

// SimWaypoint places a five-pixel-wide "person" column centred on pixel X
// with depth DepthMM for one simulated frame.
type SimWaypoint struct {
	X       int
	DepthMM uint16
}

func (s *SimulatedSource) Start(ctx context.Context) error {
	s.started = true
	s.available = true
	return nil
}

func (s *SimulatedSource) Stop() error {
	s.started = false
	return nil
}

func (s *SimulatedSource) Properties() Properties {
	return Properties{Width: s.Width, Height: s.Height, ScaleMMPerUnit: 1}
}

// SetAvailable lets tests simulate a disconnect/reconnect.
func (s *SimulatedSource) SetAvailable(available bool) {
	s.available = available
}

func (s *SimulatedSource) Poll(ctx context.Context, timeout time.Duration) (*Frame, error) {
	if !s.started {
		return nil, ErrUnavailable
	}
	if !s.available {
		return nil, ErrUnavailable
	}
	if len(s.Waypoints) == 0 {
		return nil, nil
	}

	wp := s.Waypoints[s.step]
	if s.step < len(s.Waypoints)-1 {
		s.step++
	}

	values := make([]uint16, s.Width*s.Height)
	if wp.X >= 0 && wp.X < s.Width {
		// A narrow vertical "person" column, several pixels wide, spanning
		// the middle half of the frame height, matching the >=20-point
		// floor the localizer requires.
		for dx := -2; dx <= 2; dx++ {
			x := wp.X + dx
			if x < 0 || x >= s.Width {
				continue
			}
			for y := s.Height / 4; y < 3*s.Height/4; y++ {
				values[y*s.Width+x] = wp.DepthMM
			}
		}
	}

	return &Frame{
		Width:     s.Width,
		Height:    s.Height,
		Timestamp: time.Now(),
		Values:    values,
	}, nil
}
