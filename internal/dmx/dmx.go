// Package dmx implements the lighting actuator fan-out (C9 DmxEngine): a
// single 512-byte universe buffer, flushed to a transport that degrades
// gracefully after repeated failures and recovers only on explicit reset.
package dmx

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/soundroom/engine/internal/errs"
)

// UniverseSize is the fixed DMX512 channel count.
const UniverseSize = 512

// DefaultDegradeAfter is the number of consecutive transport failures that
// trip the Degraded state, per spec.md §4.9.
const DefaultDegradeAfter = 5

// Transport is the single collaborator boundary of spec.md §6: one
// send(universe, data) call, with no assumed transport semantics.
type Transport interface {
	Send(universe int, data [UniverseSize]byte) error
}

// state is the engine's internal health state machine.
type state int

const (
	stateNormal state = iota
	stateDegraded
)

// Engine owns one universe buffer exclusively; all mutation goes through
// SetChannels/Blackout, matching the "DMX buffer is owned exclusively by
// DmxEngine" resource-model rule.
type Engine struct {
	transport    Transport
	universe     int
	degradeAfter int
	logger       *log.Logger
	reporter     *errs.Reporter

	mu            sync.Mutex
	buf           [UniverseSize]byte
	state         state
	consecFailure int
}

// NewEngine builds an Engine addressing one DMX universe over transport.
func NewEngine(transport Transport, universe int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		transport:    transport,
		universe:     universe,
		degradeAfter: DefaultDegradeAfter,
		logger:       logger,
		reporter:     errs.NewReporter(logger, nil),
	}
}

// SetChannels clamps each value to [0,255] and writes them into the
// buffer starting at address-1 (DMX addresses are 1-based on the wire),
// silently ignoring writes past index 511 per spec.md §4.9. Values are
// plain ints (not already byte) since callers often derive them from
// scaled float gains or configured colour triples that may fall outside
// the wire range before clamping.
func (e *Engine) SetChannels(address int, values []int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := address - 1
	for _, v := range values {
		if idx < 0 {
			idx++
			continue
		}
		if idx >= UniverseSize {
			break
		}
		e.buf[idx] = clampByte(v)
		idx++
	}
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Flush transmits the current buffer. In the Degraded state it is a
// no-op that logs at a reduced rate, per spec.md §4.9.
func (e *Engine) Flush(now time.Time) error {
	e.mu.Lock()
	if e.state == stateDegraded {
		e.mu.Unlock()
		e.reporter.Report(now, errs.New("DmxEngine", errs.KindDmxTransport, nil))
		return nil
	}
	buf := e.buf
	universe := e.universe
	e.mu.Unlock()

	err := e.transport.Send(universe, buf)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.consecFailure++
		if e.consecFailure >= e.degradeAfter {
			e.state = stateDegraded
		}
		e.reporter.Report(now, errs.New("DmxEngine", errs.KindDmxTransport, err))
		return err
	}
	e.consecFailure = 0
	return nil
}

// Blackout zeroes the buffer and flushes, per spec.md §4.9. Calling it
// twice in a row flushes twice but leaves the buffer all-zero both times
// (the §8 idempotence property).
func (e *Engine) Blackout(now time.Time) error {
	e.mu.Lock()
	e.buf = [UniverseSize]byte{}
	e.mu.Unlock()
	return e.Flush(now)
}

// Reset clears the Degraded state and failure counter. The first flush
// after Reset carries the engine's current buffer contents, never stale
// data, since Flush always reads e.buf fresh.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = stateNormal
	e.consecFailure = 0
}

// Degraded reports whether the engine is currently refusing to flush.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateDegraded
}

// Snapshot returns a copy of the current buffer, for tests and
// diagnostics.
func (e *Engine) Snapshot() [UniverseSize]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf
}

// ApplyActivation writes the per-cell channel triple for an activation
// (accent colour) or deactivation (black), per spec.md §4.9.
func (e *Engine) ApplyActivation(address int, color [3]byte) {
	e.SetChannels(address, []int{int(color[0]), int(color[1]), int(color[2])})
}

// AccentColor is the fixed activation accent used when a cell has no
// explicit configured colour override.
var AccentColor = [3]byte{255, 50, 0}

// OffColor is written to a cell's channels on deactivation.
var OffColor = [3]byte{0, 0, 0}
