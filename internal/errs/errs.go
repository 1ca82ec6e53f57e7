// Package errs defines the error taxonomy shared by every stage of the
// engine and a stage-tagged logging helper built on charmbracelet/log.
package errs

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Kind identifies one of the error categories a stage can report. Every
// tick, every stage recovers locally and yields a neutral output; Kind is
// recorded for diagnostics, never propagated as a panic or process exit.
type Kind string

const (
	KindSensorUnavailable Kind = "SensorUnavailable"
	KindFrameTimeout      Kind = "FrameTimeout"
	KindFrameMalformed    Kind = "FrameMalformed"
	KindConfigInvalid     Kind = "ConfigInvalid"
	KindVoiceExhausted    Kind = "VoiceExhausted"
	KindDmxTransport      Kind = "DmxTransport"
	KindCalibrationNoData Kind = "CalibrationNoData"
)

// Sentinel errors usable with errors.Is.
var (
	ErrSensorUnavailable = errors.New("depth sensor unavailable")
	ErrFrameTimeout      = errors.New("depth frame poll timed out")
	ErrFrameMalformed    = errors.New("depth frame malformed")
	ErrConfigInvalid     = errors.New("configuration invalid")
	ErrVoiceExhausted    = errors.New("no audio voice available")
	ErrDmxTransport      = errors.New("dmx transport failure")
	ErrCalibrationNoData = errors.New("no ground cloud retained for calibration")
)

// StageError associates a Kind and the originating stage/component name
// with an underlying cause, so the logger can attach both as fields.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Stage + ": " + string(e.Kind)
	}
	return e.Stage + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func New(stage string, kind Kind, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: cause}
}

// Reporter logs StageErrors with per-Kind rate limiting, so a degraded
// sensor or a flapping DMX transport cannot flood the log, per spec's
// "logged at a reduced rate" requirement for FrameTimeout.
type Reporter struct {
	logger *log.Logger

	mu       sync.Mutex
	lastSeen map[Kind]time.Time
	minGap   map[Kind]time.Duration
}

// NewReporter builds a Reporter. minGap overrides the default rate-limit
// gap (zero means "log every occurrence") per error Kind.
func NewReporter(logger *log.Logger, minGap map[Kind]time.Duration) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	gaps := map[Kind]time.Duration{
		KindFrameTimeout: time.Second,
		KindDmxTransport: 5 * time.Second,
	}
	for k, v := range minGap {
		gaps[k] = v
	}
	return &Reporter{
		logger:   logger,
		lastSeen: make(map[Kind]time.Time),
		minGap:   gaps,
	}
}

// Report logs a StageError, suppressing repeats of the same Kind within
// its configured rate-limit window. now is passed in so callers (and
// tests) control time rather than relying on wall-clock reads mid-tick.
func (r *Reporter) Report(now time.Time, err *StageError) {
	if err == nil {
		return
	}

	r.mu.Lock()
	gap := r.minGap[err.Kind]
	last, seen := r.lastSeen[err.Kind]
	suppressed := seen && gap > 0 && now.Sub(last) < gap
	if !suppressed {
		r.lastSeen[err.Kind] = now
	}
	r.mu.Unlock()

	if suppressed {
		return
	}

	r.logger.With("stage", err.Stage, "kind", string(err.Kind)).
		Error("stage error", "err", err.Err)
}
