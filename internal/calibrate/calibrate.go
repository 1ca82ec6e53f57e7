// Package calibrate implements the multi-phase capture state machine
// (C10 Calibrator) that derives a CameraPose offset from a subject
// standing at a known target cell.
package calibrate

import (
	"time"

	"github.com/golang/geo/r2"

	"github.com/soundroom/engine/internal/errs"
	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
)

// Phase identifies where the state machine currently is, per spec.md
// §4.10.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseCounting
	PhaseComputing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePreparing:
		return "Preparing"
	case PhaseCounting:
		return "Counting"
	case PhaseComputing:
		return "Computing"
	default:
		return "Unknown"
	}
}

const (
	// DefaultPrepareDuration is the grace period before averaging begins.
	DefaultPrepareDuration = 5 * time.Second
	// DefaultCountDuration is how long ground points are averaged.
	DefaultCountDuration = 10 * time.Second
)

// PersistFunc commits a derived CalibrationOffset to the configuration
// collaborator, per spec.md §4.10's "persist via the configuration
// collaborator" step.
type PersistFunc func(offset geometry.Offset) error

// Result reports the outcome of a completed Computing phase, surfaced to
// callers (e.g. the control surface) that want to know why a calibration
// did or didn't commit.
type Result struct {
	Committed bool
	Offset    geometry.Offset
	NoData    bool
}

// Calibrator drives the Idle -> Preparing -> Counting -> Computing -> Idle
// cycle. It is driven entirely by Advance, called once per engine tick; it
// never blocks and never spawns goroutines.
type Calibrator struct {
	prepareDuration time.Duration
	countDuration   time.Duration
	persist         PersistFunc
	reporter        *errs.Reporter

	phase       Phase
	phaseUntil  time.Time
	retainedSet r2.Point
	haveRetained bool
	lastResult  *Result
}

// New builds a Calibrator. persist may be nil if the caller wants to read
// LastResult instead of auto-persisting.
func New(persist PersistFunc, reporter *errs.Reporter) *Calibrator {
	return &Calibrator{
		prepareDuration: DefaultPrepareDuration,
		countDuration:   DefaultCountDuration,
		persist:         persist,
		reporter:        reporter,
		phase:           PhaseIdle,
	}
}

// Phase returns the current state.
func (c *Calibrator) Phase() Phase { return c.phase }

// SecondsLeft returns the remaining time in the current timed phase, or
// zero when Idle or Computing.
func (c *Calibrator) SecondsLeft(now time.Time) time.Duration {
	if c.phase != PhasePreparing && c.phase != PhaseCounting {
		return 0
	}
	d := c.phaseUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Running reports whether a calibration cycle is in progress.
func (c *Calibrator) Running() bool { return c.phase != PhaseIdle }

// Start begins a calibration cycle from Idle. It is a no-op if a cycle is
// already running.
func (c *Calibrator) Start(now time.Time) {
	if c.phase != PhaseIdle {
		return
	}
	c.phase = PhasePreparing
	c.phaseUntil = now.Add(c.prepareDuration)
	c.haveRetained = false
	c.lastResult = nil
}

// Target returns the room-frame point the subject should stand on,
// midway between cells (1,1) and (1,2). Per spec.md §8 scenario 5 this is
// the midpoint of the cells' floor anchor corners (col*cellWidth,
// row*cellHeight), not their centers -- for a uniform grid it works out
// to (1.5*cellWidth, 1.0*cellHeight). For grids too small to contain both
// cells, it falls back to the room's centroid (see DESIGN.md, spec open
// question on calibration targets for small grids).
func Target(room grid.RoomConfig) r2.Point {
	if room.Rows < 2 || room.Cols < 3 {
		return r2.Point{X: room.WidthM / 2, Y: room.DepthM / 2}
	}

	cw := room.CellWidth()
	ch := room.CellHeight()

	c11 := r2.Point{X: 1 * cw, Y: 1 * ch}
	c12 := r2.Point{X: 2 * cw, Y: 1 * ch}

	return r2.Point{X: (c11.X + c12.X) / 2, Y: (c11.Y + c12.Y) / 2}
}

// Advance drives the state machine by one tick. lastGround is the
// engine's last retained non-empty ground cloud (room-frame points); room
// supplies the current grid for Target. Advance consumes lastGround only
// during Counting, per spec.md §4.11 step 8.
func (c *Calibrator) Advance(now time.Time, lastGround []r2.Point, room grid.RoomConfig) *Result {
	switch c.phase {
	case PhaseIdle:
		return nil

	case PhasePreparing:
		if !now.Before(c.phaseUntil) {
			c.phase = PhaseCounting
			c.phaseUntil = now.Add(c.countDuration)
		}
		return nil

	case PhaseCounting:
		if len(lastGround) > 0 {
			if pos, ok := geometry.Locate(lastGround); ok {
				c.retainedSet = pos
				c.haveRetained = true
			}
		}
		if !now.Before(c.phaseUntil) {
			c.phase = PhaseComputing
		}
		return nil

	case PhaseComputing:
		result := c.compute(now, room)
		c.lastResult = result
		c.phase = PhaseIdle
		return result
	}

	return nil
}

func (c *Calibrator) compute(now time.Time, room grid.RoomConfig) *Result {
	if !c.haveRetained {
		if c.reporter != nil {
			c.reporter.Report(now, errs.New("Calibrator", errs.KindCalibrationNoData, nil))
		}
		return &Result{NoData: true}
	}

	target := Target(room)
	offset := geometry.Offset{
		DX: target.X - c.retainedSet.X,
		DY: target.Y - c.retainedSet.Y,
	}

	if c.persist != nil {
		if err := c.persist(offset); err != nil {
			if c.reporter != nil {
				c.reporter.Report(now, errs.New("Calibrator", errs.KindConfigInvalid, err))
			}
			return &Result{NoData: false, Committed: false, Offset: offset}
		}
	}

	return &Result{Committed: true, Offset: offset}
}

// LastResult returns the outcome of the most recently completed
// calibration cycle, or nil if none has completed yet.
func (c *Calibrator) LastResult() *Result { return c.lastResult }
