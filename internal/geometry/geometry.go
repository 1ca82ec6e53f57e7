// Package geometry implements the 3D reconstruction and ground
// projection stage (C3 SpatialMapper) and the person-localization stage
// (C4 Localizer).
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/soundroom/engine/internal/depth"
	"github.com/soundroom/engine/internal/grid"
)

// Intrinsics holds the pinhole camera intrinsics, constant for a session.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Pose holds the camera's mounting geometry, mutable only via
// configuration reload or calibration.
type Pose struct {
	HeightM    float64 // camera height above the floor, metres, >0
	PitchDeg   float64 // downward-positive pitch, degrees, domain [-30, 90]
	WallDistM  float64 // distance from the side wall, metres, >=0
	Offset     Offset  // calibration offset, applied additively
	MinDepthM  float64 // usable camera-depth band, default 0.2
	MaxDepthM  float64 // usable camera-depth band, default 6.0
}

// DefaultPose returns a Pose with the spec's documented defaults.
func DefaultPose() Pose {
	return Pose{
		HeightM:   1.8,
		PitchDeg:  10,
		WallDistM: 0.30,
		MinDepthM: 0.2,
		MaxDepthM: 6.0,
	}
}

// Offset is the calibration offset (dx, dy) in metres, applied to a
// ground point before cell mapping.
type Offset struct {
	DX, DY float64
}

const minValidDepthM = 0.2

// Mapper performs pinhole back-projection and ground projection,
// reconciling sensor-local coordinates with room-absolute coordinates.
// It is pure over (frame, pose, room): it holds no state between ticks.
type Mapper struct {
	Intrinsics Intrinsics
}

// rotationMatrix returns R(pitch), rotation about the camera's x-axis.
func rotationMatrix(pitchDeg float64) (cosP, sinP float64) {
	rad := pitchDeg * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// Project converts a depth frame into room-frame ground points, per
// spec.md §4.3. Points outside the usable camera-depth band or the room
// volume are discarded; the empty slice is returned (not an error) when
// nothing survives.
func (m Mapper) Project(frame *depth.Frame, pose Pose, room grid.RoomConfig) []r2.Point {
	out := make([]r2.Point, 0, len(frame.Values)/4)

	cosP, sinP := rotationMatrix(pose.PitchDeg)

	minDepth := pose.MinDepthM
	if minDepth < minValidDepthM {
		minDepth = minValidDepthM
	}
	maxDepth := pose.MaxDepthM
	if maxDepth <= 0 {
		maxDepth = 6.0
	}

	yBandMin, yBandMax := room.UsableYBand()

	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			mm := frame.At(x, y)
			if mm == 0 {
				continue
			}
			d := float64(mm) / 1000.0
			if d <= minValidDepthM {
				continue
			}

			xc := (float64(x) - m.Intrinsics.Cx) * d / m.Intrinsics.Fx
			yc := (float64(y) - m.Intrinsics.Cy) * d / m.Intrinsics.Fy
			zc := d

			cam := r3.Vector{X: xc, Y: yc, Z: zc}
			tilted := tiltPitch(cam, cosP, sinP)

			if tilted.Z <= minDepth || tilted.Z >= maxDepth {
				continue
			}

			xRoom := pose.WallDistM + tilted.X + pose.Offset.DX
			yRoom := tilted.Z + pose.Offset.DY

			if !isFinite(xRoom) || !isFinite(yRoom) {
				continue
			}
			if xRoom <= 0 || xRoom >= room.WidthM {
				continue
			}
			if yRoom <= yBandMin || yRoom >= yBandMax {
				continue
			}
			if yRoom <= 0 || yRoom >= room.DepthM {
				continue
			}

			out = append(out, r2.Point{X: xRoom, Y: yRoom})
		}
	}

	return out
}

// tiltPitch rotates a camera-frame point about the camera's x-axis by the
// pitch angle (cosP, sinP already computed once per Project call).
func tiltPitch(p r3.Vector, cosP, sinP float64) r3.Vector {
	return r3.Vector{
		X: p.X,
		Y: p.Y*cosP - p.Z*sinP,
		Z: p.Y*sinP + p.Z*cosP,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
