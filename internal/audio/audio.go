// Package audio implements the actuator fan-out for sound (C8
// AudioEngine): at most one looping voice per cell, with fade-in/fade-out
// envelopes and a bounded channel pool with voice stealing.
package audio

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/soundroom/engine/internal/errs"
	"github.com/soundroom/engine/internal/grid"
)

const (
	DefaultAttack  = 5 * time.Millisecond
	DefaultRelease = 120 * time.Millisecond
)

// envelopeState is a Voice's fade phase.
type envelopeState int

const (
	envAttack envelopeState = iota
	envSustain
	envRelease
	envDone
)

// Voice is the engine's handle for one cell's playback, grounded on the
// teacher's per-device/per-channel audio table in src/audio.go.
type Voice struct {
	Cell      grid.Cell
	Channel   int
	Volume    float64
	Pan       float64
	envelope  envelopeState
	releaseAt time.Time
}

// Backend is the external audio playback contract of spec.md §6.
type Backend interface {
	Load(path string) (SampleHandle, error)
	PlayLooping(handle SampleHandle, attack time.Duration) (ChannelHandle, error)
	SetGains(channel ChannelHandle, left, right float64)
	FadeOut(channel ChannelHandle, d time.Duration)
	Stop(channel ChannelHandle)
}

type SampleHandle int
type ChannelHandle int

// Engine manages at most one live voice per cell id, matching spec.md
// §4.8/§8's at-most-one invariant, over a bounded pool of backend
// channels with voice stealing when the pool is exhausted.
type Engine struct {
	backend    Backend
	numVoices  int
	attack     time.Duration
	release    time.Duration
	logger     *log.Logger
	reporter   *errs.Reporter

	mu       sync.Mutex
	byCell   map[grid.Cell]*liveVoice
	channels []*liveVoice // index == ChannelHandle; nil == free
}

type liveVoice struct {
	voice       Voice
	handle      ChannelHandle
	sample      SampleHandle
	released    bool
	drainAt     time.Time
	attackUntil time.Time
}

// NewEngine builds an Engine with numVoices backend channels.
func NewEngine(backend Backend, numVoices int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		backend:   backend,
		numVoices: numVoices,
		attack:    DefaultAttack,
		release:   DefaultRelease,
		logger:    logger,
		reporter:  errs.NewReporter(logger, nil),
		byCell:    make(map[grid.Cell]*liveVoice),
		channels:  make([]*liveVoice, numVoices),
	}
}

// PlayForCell starts (or updates) the voice for cell, per spec.md §4.8: if
// the cell has no live voice, acquire a free channel, load the sample,
// start looped playback with a fade-in; if it already has a live voice,
// only its volume and pan are updated.
func (e *Engine) PlayForCell(now time.Time, cell grid.Cell, samplePath string, volume, pan float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lv, ok := e.byCell[cell]; ok && !lv.released {
		lv.voice.Volume = volume
		lv.voice.Pan = pan
		e.applyGains(lv)
		return
	}

	idx := e.acquireChannelLocked(now)
	if idx < 0 {
		e.reporter.Report(now, errs.New("AudioEngine", errs.KindVoiceExhausted, nil))
		return
	}

	sample, err := e.backend.Load(samplePath)
	if err != nil {
		e.reporter.Report(now, errs.New("AudioEngine", errs.KindVoiceExhausted, err))
		e.channels[idx] = nil
		return
	}

	handle, err := e.backend.PlayLooping(sample, e.attack)
	if err != nil {
		e.reporter.Report(now, errs.New("AudioEngine", errs.KindVoiceExhausted, err))
		e.channels[idx] = nil
		return
	}

	lv := &liveVoice{
		voice: Voice{
			Cell:     cell,
			Channel:  idx,
			Volume:   volume,
			Pan:      pan,
			envelope: envAttack,
		},
		handle:      handle,
		sample:      sample,
		attackUntil: now.Add(e.attack),
	}
	e.channels[idx] = lv
	e.byCell[cell] = lv
	e.applyGains(lv)
}

// ReleaseCell begins a fade-out for cell's voice; the voice frees its
// channel once the envelope reaches zero (drained by Tick).
func (e *Engine) ReleaseCell(now time.Time, cell grid.Cell) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lv, ok := e.byCell[cell]
	if !ok || lv.released {
		return
	}

	lv.released = true
	lv.voice.envelope = envRelease
	lv.drainAt = now.Add(e.release)
	delete(e.byCell, cell)

	e.backend.FadeOut(lv.handle, e.release)
}

// StopAll immediately silences every voice, per spec.md §4.8, used on
// graceful shutdown and blackout.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, lv := range e.channels {
		if lv == nil {
			continue
		}
		e.backend.Stop(lv.handle)
		e.channels[i] = nil
	}
	e.byCell = make(map[grid.Cell]*liveVoice)
}

// Tick advances voices past their attack envelope into sustain, and reaps
// voices whose release envelope has fully drained, freeing their channel
// for reuse. It must be called periodically (e.g. once per engine tick)
// but never blocks.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, lv := range e.channels {
		if lv == nil {
			continue
		}
		if lv.voice.envelope == envAttack && !now.Before(lv.attackUntil) {
			lv.voice.envelope = envSustain
		}
		if !lv.released {
			continue
		}
		if !now.Before(lv.drainAt) {
			e.channels[i] = nil
		}
	}
}

// acquireChannelLocked returns a free channel index, stealing the oldest
// released-but-undrained voice if the pool is full, or -1 if none exists
// (VoiceExhausted). Caller holds e.mu.
func (e *Engine) acquireChannelLocked(now time.Time) int {
	for i, lv := range e.channels {
		if lv == nil {
			return i
		}
	}

	var oldest = -1
	var oldestDrain time.Time
	for i, lv := range e.channels {
		if lv == nil || !lv.released {
			continue
		}
		if oldest == -1 || lv.drainAt.Before(oldestDrain) {
			oldest = i
			oldestDrain = lv.drainAt
		}
	}
	if oldest == -1 {
		return -1
	}

	e.backend.Stop(e.channels[oldest].handle)
	e.channels[oldest] = nil
	return oldest
}

func (e *Engine) applyGains(lv *liveVoice) {
	left := (1 - lv.voice.Pan) * lv.voice.Volume
	right := lv.voice.Pan * lv.voice.Volume
	e.backend.SetGains(lv.handle, left, right)
}

// LiveVoiceCount reports how many channels currently hold a voice
// (released or not); exposed for tests asserting the at-most-one-per-cell
// and bounded-pool invariants.
func (e *Engine) LiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, lv := range e.channels {
		if lv != nil {
			n++
		}
	}
	return n
}
