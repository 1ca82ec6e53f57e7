package grid

import (
	"testing"

	"pgregory.net/rapid"
)

// TestValidateResultAlwaysInBounds is the §8 "Validate is always safe"
// property: for any requested room/grid, the corrected result obeys the
// same bounds a hand-checked call would.
func TestValidateResultAlwaysInBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		width := rapid.Float64Range(-5, 20).Draw(rt, "width")
		depth := rapid.Float64Range(-5, 20).Draw(rt, "depth")
		cols := rapid.IntRange(-5, 50).Draw(rt, "cols")
		rows := rapid.IntRange(-5, 50).Draw(rt, "rows")

		r := Validate(width, depth, cols, rows)

		if r.Width < 1.0 {
			rt.Fatalf("width %v below floor", r.Width)
		}
		if r.Depth < 1.0 {
			rt.Fatalf("depth %v below floor", r.Depth)
		}
		if r.Cols < 1 || float64(r.Cols) > r.Width+1e-9 {
			rt.Fatalf("cols %d inconsistent with width %v", r.Cols, r.Width)
		}
		if r.Rows < 1 || float64(r.Rows) > r.Depth+1e-9 {
			rt.Fatalf("rows %d inconsistent with depth %v", r.Rows, r.Depth)
		}
	})
}

// TestRegistryRebuildCellBoundsAlwaysWithinRoom is the §8 "ground point
// room-bounds" property applied to recomputed cell bounds: every cell's
// world bounds must nest inside the RoomConfig that produced them.
func TestRegistryRebuildCellBoundsAlwaysWithinRoom(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		room := RoomConfig{
			WidthM: rapid.Float64Range(1, 20).Draw(rt, "width"),
			DepthM: rapid.Float64Range(1, 20).Draw(rt, "depth"),
			Cols:   rapid.IntRange(1, 12).Draw(rt, "cols"),
			Rows:   rapid.IntRange(1, 12).Draw(rt, "rows"),
		}

		reg := NewRegistry()
		reg.Rebuild(room, false)

		for cell, cfg := range reg.All() {
			if cfg.MinX < -1e-9 || cfg.MaxX > room.WidthM+1e-9 {
				rt.Fatalf("cell %v x-bounds [%v,%v] escape room width %v", cell, cfg.MinX, cfg.MaxX, room.WidthM)
			}
			if cfg.MinY < -1e-9 || cfg.MaxY > room.DepthM+1e-9 {
				rt.Fatalf("cell %v y-bounds [%v,%v] escape room depth %v", cell, cfg.MinY, cfg.MaxY, room.DepthM)
			}
		}
	})
}
