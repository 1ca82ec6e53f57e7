// Package grid implements room geometry and the cell grid (C5 GridModel)
// and the per-cell configuration store (C6 CellRegistry).
package grid

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// RoomConfig describes the physical room and its subdivision into a
// rows x cols grid of (conceptually) 1m x 1m cells.
type RoomConfig struct {
	WidthM float64
	DepthM float64
	Rows   int
	Cols   int
}

// Cell addresses one grid position.
type Cell struct {
	Row, Col int
}

// CellWidth and CellHeight are the physical size of one grid cell.
func (r RoomConfig) CellWidth() float64  { return r.WidthM / float64(r.Cols) }
func (r RoomConfig) CellHeight() float64 { return r.DepthM / float64(r.Rows) }

// UsableYBand returns the room-frame y band SpatialMapper filters ground
// points against, derived from DepthM rather than a hardcoded constant
// (spec.md §9 open question; see DESIGN.md). Defaults to a 0.5 m margin
// on each side, narrowing to the full depth for small rooms.
func (r RoomConfig) UsableYBand() (min, max float64) {
	margin := 0.5
	if r.DepthM < 2*margin {
		return 0, r.DepthM
	}
	return margin, r.DepthM - margin
}

// PositionToCell maps a room-frame position to a cell, per spec.md §4.5,
// using floor(x/cellWidth), floor(y/cellHeight). Returns ok=false when pos
// lies outside [0, width) x [0, depth) -- the bounds are half-open, so a
// position exactly at the room boundary maps to no cell.
func (r RoomConfig) PositionToCell(pos r2.Point) (Cell, bool) {
	if pos.X < 0 || pos.X >= r.WidthM || pos.Y < 0 || pos.Y >= r.DepthM {
		return Cell{}, false
	}

	col := int(math.Floor(pos.X / r.CellWidth()))
	row := int(math.Floor(pos.Y / r.CellHeight()))

	if col >= r.Cols {
		col = r.Cols - 1
	}
	if row >= r.Rows {
		row = r.Rows - 1
	}

	return Cell{Row: row, Col: col}, true
}

// ValidationResult is the corrected room/grid tuple and human-readable
// message produced by Validate, per spec.md §4.5 and §6.
type ValidationResult struct {
	Width, Depth float64
	Cols, Rows   int
	Message      string
}

// Validate implements validate_room_and_matrix: width and depth are
// clamped to >=1.0, cols/rows are clamped to floor(width)/floor(depth),
// and any correction is named in the returned message. Grounded
// line-for-line on original_source/src/validate_room_and_matrix.py.
func Validate(width, depth float64, colsReq, rowsReq int) ValidationResult {
	var message string

	if width < 1.0 {
		width = 1.0
		message = "Width too small, clamped to 1.0."
	}
	if depth < 1.0 {
		depth = 1.0
		if message == "" {
			message = "Depth too small, clamped to 1.0."
		} else {
			message += " Depth too small, clamped to 1.0."
		}
	}

	colsMax := int(math.Floor(width))
	rowsMax := int(math.Floor(depth))

	cols := colsReq
	rows := rowsReq

	if colsReq > colsMax {
		cols = colsMax
		if message != "" {
			message += fmt.Sprintf(" Width overflow (%d columns requested); clamped to %d.", colsReq, colsMax)
		} else {
			message = fmt.Sprintf("Width overflow (%d columns requested); clamped to %d.", colsReq, colsMax)
		}
	}

	if rowsReq > rowsMax {
		if message != "" {
			message += fmt.Sprintf(" Room is %.1fm deep; rows clamped to %d.", depth, rowsMax)
		} else {
			message = fmt.Sprintf("Room is %.1fm deep; rows clamped to %d.", depth, rowsMax)
		}
		rows = rowsMax
	}

	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return ValidationResult{Width: width, Depth: depth, Cols: cols, Rows: rows, Message: message}
}

// ToRoomConfig converts a (already-validated) result into a RoomConfig.
func (v ValidationResult) ToRoomConfig() RoomConfig {
	return RoomConfig{WidthM: v.Width, DepthM: v.Depth, Rows: v.Rows, Cols: v.Cols}
}
