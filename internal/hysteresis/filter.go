// Package hysteresis implements the per-tick debouncing stage (C7
// ActivationFilter) that turns a noisy raw cell decision into a stable
// active cell, grounded on the on/off sample-counter squelch idiom used
// for DCD (carrier) detection in the teacher's demodulator.
package hysteresis

import "github.com/soundroom/engine/internal/grid"

const (
	DefaultActivateN   = 3
	DefaultDeactivateN = 6
)

// Transition describes a single active-cell change emitted by Update. At
// most one of Deactivated/Activated is set per tick, since Update checks
// activation (requires the previous active cell to already be none)
// before deactivation within the same tick -- a Some->Some' handover is
// therefore always two consecutive Transitions (a deactivation followed,
// ticks later, by an activation), never one Transition with both fields
// set. Callers issue the note-off for Deactivated before any note-on for
// Activated, per spec.md §4.7.
type Transition struct {
	Deactivated *grid.Cell
	Activated   *grid.Cell
}

// Filter holds the per-cell on/off counters and the current active cell.
// It is the sole stateful component in the engine's hot path; its state
// transitions are totally ordered by tick index (one Update call per
// tick).
type Filter struct {
	ActivateN   int
	DeactivateN int

	onCount  map[grid.Cell]uint8
	offCount map[grid.Cell]uint8
	active   *grid.Cell
}

// NewFilter builds a Filter with the given thresholds, defaulting to
// ActivateN=3, DeactivateN=6 (spec.md §4.7) when zero is passed.
func NewFilter(activateN, deactivateN int) *Filter {
	if activateN <= 0 {
		activateN = DefaultActivateN
	}
	if deactivateN <= 0 {
		deactivateN = DefaultDeactivateN
	}
	return &Filter{
		ActivateN:   activateN,
		DeactivateN: deactivateN,
		onCount:     make(map[grid.Cell]uint8),
		offCount:    make(map[grid.Cell]uint8),
	}
}

// Active returns the current active cell, if any.
func (f *Filter) Active() (grid.Cell, bool) {
	if f.active == nil {
		return grid.Cell{}, false
	}
	return *f.active, true
}

func satIncr(v uint8) uint8 {
	if v == 255 {
		return 255
	}
	return v + 1
}

// Update advances the filter by one tick given the raw cell decision (or
// none), and returns at most one Transition. Activation requires no cell
// to currently be active, so a handover from one active cell to another
// is always two consecutive Transitions -- a deactivation, then, ticks
// later, an activation -- never one Transition with both fields set.
// Update itself does not call out to audio/DMX, it only reports what
// changed.
func (f *Filter) Update(raw *grid.Cell) *Transition {
	// Step 1 & 2: update counters for the raw cell and every other known
	// cell. We only need to track cells we have ever seen plus the raw
	// cell, since an unseen cell's off_count is implicitly 0 and does not
	// affect any threshold comparison below.
	if raw != nil {
		f.onCount[*raw] = satIncr(f.onCount[*raw])
		f.offCount[*raw] = 0
	}

	for c := range f.onCount {
		if raw != nil && c == *raw {
			continue
		}
		f.offCount[c] = satIncr(f.offCount[c])
		f.onCount[c] = 0
	}
	// A cell that has only ever appeared via offCount (never onCount)
	// cannot reach ActivateN, so it needs no bookkeeping here; but it
	// must still accumulate offCount once active, so seed it lazily.
	if raw != nil {
		if _, ok := f.offCount[*raw]; !ok {
			f.offCount[*raw] = 0
		}
	}

	var deactivated, activated *grid.Cell

	// Step 3: activate. Steps 1-2 left at most one cell (raw, if any)
	// with a nonzero on_count, so raw is the only candidate; ties with
	// other cells cannot arise because every other cell's on_count was
	// just reset to zero.
	if f.active == nil && raw != nil && f.onCount[*raw] >= uint8(minInt(f.ActivateN, 255)) {
		c := *raw
		activated = &c
	}

	// Step 4: deactivate. Evaluated against the active cell from before
	// this tick, so activation and deactivation never both fire in the
	// same Update call -- a handover is two consecutive Transitions.
	if f.active != nil && f.offCount[*f.active] >= uint8(minInt(f.DeactivateN, 255)) {
		c := *f.active
		deactivated = &c
	}

	if deactivated == nil && activated == nil {
		return nil
	}

	if deactivated != nil {
		f.active = nil
	}
	if activated != nil {
		f.active = activated
	}

	return &Transition{Deactivated: deactivated, Activated: activated}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
