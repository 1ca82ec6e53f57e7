package engine

import (
	"fmt"
	"time"

	"github.com/soundroom/engine/internal/grid"
)

// The methods below implement internal/control.Handler, translating
// control-surface commands into engine state changes under the coarse
// reconfiguration lock (spec.md §5), never by calling back into the tick
// goroutine directly.

// ReloadConfig re-reads the configuration document and replaces the
// engine's pose/room/registry, matching the same path Store.Watch
// triggers on an external edit.
func (e *Engine) ReloadConfig() error {
	if e.store == nil {
		return fmt.Errorf("no configuration store attached")
	}
	state, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}

	e.mu.Lock()
	e.pose = state.Pose
	e.room = state.Room
	e.mu.Unlock()

	e.registry.Rebuild(state.Room, false)
	for cell, cfg := range state.Cells {
		e.registry.Set(cell, cfg)
	}

	if state.Message != "" {
		e.emit("reload_config: %s", state.Message)
	}
	return nil
}

// RebuildGrid recomputes every cell's world bounds, inheriting existing
// per-cell audio/DMX fields when keepExisting is true. If newRoom is
// non-nil the engine's RoomConfig is replaced first, so the grid is
// actually resized rather than only re-derived from its current
// dimensions -- spec.md §6's rebuild_grid(room, rows, cols).
func (e *Engine) RebuildGrid(newRoom *grid.RoomConfig, keepExisting bool) error {
	room := e.currentRoom()
	if newRoom != nil {
		room = *newRoom
		e.mu.Lock()
		e.room = room
		e.mu.Unlock()
	}
	e.registry.Rebuild(room, keepExisting)
	return nil
}

// SetCell stores cfg for cell.
func (e *Engine) SetCell(cell grid.Cell, cfg grid.CellConfig) error {
	room := e.currentRoom()
	cw := room.CellWidth()
	ch := room.CellHeight()
	cfg.MinX = float64(cell.Col) * cw
	cfg.MaxX = float64(cell.Col+1) * cw
	cfg.MinY = float64(cell.Row) * ch
	cfg.MaxY = float64(cell.Row+1) * ch
	e.registry.Set(cell, cfg)
	return nil
}

// StartCalibration begins a calibration cycle, the same external trigger
// named in spec.md §4.10 (here reachable via the control surface or the
// physical CalibrationButton).
func (e *Engine) StartCalibration() error {
	e.calibrator.Start(time.Now())
	return nil
}

// TestCell briefly activates cell's audio and DMX fixture outside the
// normal ActivationFilter path, for commissioning.
func (e *Engine) TestCell(cell grid.Cell) error {
	if _, ok := e.registry.Get(cell); !ok {
		return fmt.Errorf("cell %d,%d has no configuration", cell.Row, cell.Col)
	}
	now := time.Now()
	e.activateCell(now, cell)
	go func() {
		time.Sleep(2 * time.Second)
		e.deactivateCell(time.Now(), cell)
	}()
	return nil
}

// Blackout zeroes and flushes every known DMX universe and releases every
// audio voice.
func (e *Engine) Blackout() error {
	now := time.Now()
	e.audioEngine.StopAll()

	e.dmxMu.Lock()
	defer e.dmxMu.Unlock()
	for universe, eng := range e.dmxEngines {
		if err := eng.Blackout(now); err != nil {
			return fmt.Errorf("blackout universe %d: %w", universe, err)
		}
	}
	return nil
}

// Stop requests a graceful shutdown; Run observes the flag at its next
// tick boundary.
func (e *Engine) Stop() error {
	e.stopping.Store(true)
	return nil
}
