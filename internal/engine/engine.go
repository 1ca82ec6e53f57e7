// Package engine implements the Engine handle and the single-threaded
// tick loop (C11 EngineLoop) that ties every other component together.
// There is no package-level singleton: every subsystem is owned by one
// Engine value, constructed explicitly by the caller (cmd/soundroom-engine),
// per spec.md §9's design note on avoiding global state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang/geo/r2"

	"github.com/soundroom/engine/internal/audio"
	"github.com/soundroom/engine/internal/calibrate"
	"github.com/soundroom/engine/internal/depth"
	"github.com/soundroom/engine/internal/dmx"
	"github.com/soundroom/engine/internal/errs"
	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
	"github.com/soundroom/engine/internal/hysteresis"
	"github.com/soundroom/engine/internal/roomconfig"
	"github.com/soundroom/engine/internal/sessionlog"
)

// DefaultRate is the tick period chosen when Config.Rate is zero: 20 Hz,
// the midpoint of spec.md §4.11's "default 15-30 Hz."
const DefaultRate = time.Second / 20

// TransportFactory opens (or reuses) the DMX transport for a universe,
// since CellConfig.Dmx.Universe ranges 0..10 and each universe owns its
// own 512-byte buffer (spec.md §4.9), unlike the teacher's single serial
// TNC link.
type TransportFactory func(universe int) (dmx.Transport, error)

// Config gathers every collaborator an Engine needs. All fields are
// required except Logger and Rate, which fall back to log.Default and
// DefaultRate, and SessionLog, Store and Transport, whose absence turns
// off session logging, calibration persistence and DMX output.
type Config struct {
	Source      depth.Source
	Converter   depth.Converter
	Mapper      geometry.Mapper
	Pose        geometry.Pose
	Room        grid.RoomConfig
	Registry    *grid.Registry
	Filter      *hysteresis.Filter
	AudioEngine *audio.Engine
	Transport   TransportFactory
	Store       *roomconfig.Store
	SessionLog  *sessionlog.Logger
	Logger      *log.Logger
	Rate        time.Duration
}

// Engine owns every subsystem for one installation instance. There is no
// global/package-level state; two Engines can run side by side in the
// same process (e.g. in tests).
type Engine struct {
	source      depth.Source
	converter   depth.Converter
	mapper      geometry.Mapper
	registry    *grid.Registry
	filter      *hysteresis.Filter
	audioEngine *audio.Engine
	transportFn TransportFactory
	store       *roomconfig.Store
	sessionLog  *sessionlog.Logger
	logger      *log.Logger
	reporter    *errs.Reporter
	rate        time.Duration

	// mu is the coarse lock of spec.md §5: the configuration store is
	// read-only during ticks; reconfiguration happens between ticks
	// under this lock, taken only outside the tick's hot path.
	mu    sync.Mutex
	pose  geometry.Pose
	room  grid.RoomConfig

	calibrator *calibrate.Calibrator

	stopping atomic.Bool

	lastGround []r2.Point
	depthBuf   []uint16

	dmxMu      sync.Mutex
	dmxEngines map[int]*dmx.Engine
	dmxWorkers map[int]*dmx.Worker

	runCtx context.Context

	onEvent func(string)
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = DefaultRate
	}

	e := &Engine{
		source:      cfg.Source,
		converter:   cfg.Converter,
		mapper:      cfg.Mapper,
		registry:    cfg.Registry,
		filter:      cfg.Filter,
		audioEngine: cfg.AudioEngine,
		transportFn: cfg.Transport,
		store:       cfg.Store,
		sessionLog:  cfg.SessionLog,
		logger:      logger,
		reporter:    errs.NewReporter(logger, nil),
		rate:        rate,
		pose:        cfg.Pose,
		room:        cfg.Room,
		dmxEngines:  make(map[int]*dmx.Engine),
		dmxWorkers:  make(map[int]*dmx.Worker),
	}
	e.calibrator = calibrate.New(e.persistCalibration, e.reporter)
	return e
}

// OnEvent registers a callback invoked with a short human-readable
// string whenever a cell is activated or deactivated, a calibration cycle
// ends (committed or with no data), or reload_config auto-corrects the
// configuration, used by cmd/soundroom-engine to feed internal/control's
// event broadcast. Calibration phase changes and stage errors are not
// passed to the callback; stage errors go only to the logger.
func (e *Engine) OnEvent(fn func(string)) { e.onEvent = fn }

func (e *Engine) emit(format string, args ...any) {
	if e.onEvent != nil {
		e.onEvent(fmt.Sprintf(format, args...))
	}
}

// Run executes the tick loop until ctx is cancelled or Stop is called. On
// return, every voice has been released, every DMX universe blacked out,
// and DepthSource stopped, per spec.md §4.11's graceful-shutdown rule.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	if err := e.source.Start(ctx); err != nil {
		return fmt.Errorf("starting depth source: %w", err)
	}

	period := e.rate
	deadline := time.Now()

	for {
		if ctx.Err() != nil || e.stopping.Load() {
			break
		}

		now := time.Now()
		if now.After(deadline.Add(period)) {
			// Tick overran; rebase rather than accumulate drift.
			deadline = now
		} else {
			deadline = deadline.Add(period)
		}

		e.tick(ctx, now)

		sleep := time.Until(deadline)
		if sleep > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(sleep):
			}
		}
	}

	e.shutdown()
	return nil
}

// tick runs exactly one iteration of spec.md §4.11's numbered sequence.
// Every stage failure is caught at its boundary, logged with stage name,
// and treated as an empty output for that stage; a depth-source failure
// is never fatal.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	pollTimeout := e.rate
	if pollTimeout <= 0 {
		pollTimeout = 50 * time.Millisecond
	}

	frame, err := e.source.Poll(ctx, pollTimeout)
	if err != nil {
		e.reporter.Report(now, errs.New("DepthSource", errs.KindSensorUnavailable, err))
		e.audioEngine.Tick(now)
		e.advanceCalibrator(now)
		return
	}
	if frame == nil {
		// Heartbeat only; no new data this tick.
		e.audioEngine.Tick(now)
		e.advanceCalibrator(now)
		return
	}

	if e.depthBuf == nil || len(e.depthBuf) != len(frame.Values) {
		e.depthBuf = make([]uint16, len(frame.Values))
	}
	e.converter.Convert(frame.Values, e.depthBuf)
	converted := &depth.Frame{Width: frame.Width, Height: frame.Height, Timestamp: frame.Timestamp, Values: e.depthBuf}

	e.mu.Lock()
	pose := e.pose
	room := e.room
	e.mu.Unlock()

	cloud := e.mapper.Project(converted, pose, room)
	if len(cloud) > 0 {
		e.lastGround = cloud
	}

	var raw *grid.Cell
	if pos, ok := geometry.Locate(cloud); ok {
		if cell, ok := room.PositionToCell(pos); ok {
			raw = &cell
		}
	}

	transition := e.filter.Update(raw)
	if transition != nil {
		e.applyTransition(now, transition)
	}

	e.audioEngine.Tick(now)
	e.advanceCalibrator(now)
}

func (e *Engine) advanceCalibrator(now time.Time) {
	if !e.calibrator.Running() {
		return
	}
	e.mu.Lock()
	room := e.room
	e.mu.Unlock()

	if result := e.calibrator.Advance(now, e.lastGround, room); result != nil {
		if result.NoData {
			e.emit("calibration: no data")
		} else if result.Committed {
			e.emit("calibration: committed offset dx=%.3f dy=%.3f", result.Offset.DX, result.Offset.DY)
		}
	}
}

// applyTransition issues the AudioEngine/DmxEngine commands for a cell
// change and flushes every touched universe, per spec.md §4.9/§4.11 step 7.
func (e *Engine) applyTransition(now time.Time, t *hysteresis.Transition) {
	if t.Deactivated != nil {
		e.deactivateCell(now, *t.Deactivated)
		e.emit("deactivated %d,%d", t.Deactivated.Row, t.Deactivated.Col)
	}
	if t.Activated != nil {
		e.activateCell(now, *t.Activated)
		e.emit("activated %d,%d", t.Activated.Row, t.Activated.Col)
	}
}

func (e *Engine) activateCell(now time.Time, cell grid.Cell) {
	cfg, ok := e.registry.Get(cell)
	if !ok {
		return
	}

	if cfg.AudioPath != "" {
		pan := panForCell(cell, e.currentRoom())
		e.audioEngine.PlayForCell(now, cell, cfg.AudioPath, cfg.Volume, pan)
	}

	color := dmx.AccentColor
	if cfg.Dmx.Color != (grid.Color{}) {
		color = [3]byte{cfg.Dmx.Color.R, cfg.Dmx.Color.G, cfg.Dmx.Color.B}
	}
	eng := e.dmxEngineFor(cfg.Dmx.Universe)
	if eng != nil {
		eng.ApplyActivation(cfg.Dmx.Address, color)
		e.flushUniverse(now, cfg.Dmx.Universe)
	}

	if e.sessionLog != nil {
		e.sessionLog.Activation(now, "activate", cell, cfg.Name)
	}
}

func (e *Engine) deactivateCell(now time.Time, cell grid.Cell) {
	cfg, ok := e.registry.Get(cell)
	if !ok {
		return
	}

	e.audioEngine.ReleaseCell(now, cell)

	eng := e.dmxEngineFor(cfg.Dmx.Universe)
	if eng != nil {
		eng.ApplyActivation(cfg.Dmx.Address, dmx.OffColor)
		e.flushUniverse(now, cfg.Dmx.Universe)
	}

	if e.sessionLog != nil {
		e.sessionLog.Activation(now, "deactivate", cell, cfg.Name)
	}
}

func (e *Engine) currentRoom() grid.RoomConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room
}

// panForCell derives a stereo pan in [0,1] from the cell's x position
// across the room width, per spec.md's "no acoustic spatialization beyond
// stereo pan" non-goal.
func panForCell(cell grid.Cell, room grid.RoomConfig) float64 {
	if room.Cols <= 1 {
		return 0.5
	}
	return (float64(cell.Col) + 0.5) / float64(room.Cols)
}

func (e *Engine) dmxEngineFor(universe int) *dmx.Engine {
	e.dmxMu.Lock()
	defer e.dmxMu.Unlock()

	if eng, ok := e.dmxEngines[universe]; ok {
		return eng
	}
	if e.transportFn == nil {
		return nil
	}
	transport, err := e.transportFn(universe)
	if err != nil {
		e.reporter.Report(time.Now(), errs.New("DmxEngine", errs.KindDmxTransport, err))
		return nil
	}
	eng := dmx.NewEngine(transport, universe, e.logger)
	worker := dmx.NewWorker(eng, 4)
	workerCtx := e.runCtx
	if workerCtx == nil {
		workerCtx = context.Background()
	}
	worker.Start(workerCtx)
	e.dmxEngines[universe] = eng
	e.dmxWorkers[universe] = worker
	return eng
}

func (e *Engine) flushUniverse(now time.Time, universe int) {
	e.dmxMu.Lock()
	worker, ok := e.dmxWorkers[universe]
	e.dmxMu.Unlock()
	if ok {
		worker.Enqueue(now)
	}
}

// shutdown releases every voice, blackouts every known DMX universe, and
// stops the depth source, per spec.md §4.11's graceful-shutdown rule. A
// tick already in progress always runs to completion before shutdown is
// reached, since Run only calls shutdown after its loop exits.
func (e *Engine) shutdown() {
	e.audioEngine.StopAll()

	now := time.Now()
	e.dmxMu.Lock()
	for _, eng := range e.dmxEngines {
		eng.Blackout(now)
	}
	e.dmxMu.Unlock()

	if err := e.source.Stop(); err != nil {
		e.logger.Error("stopping depth source", "err", err)
	}
	if e.sessionLog != nil {
		e.sessionLog.Close()
	}
}

func (e *Engine) persistCalibration(offset geometry.Offset) error {
	e.mu.Lock()
	e.pose.Offset = offset
	pose := e.pose
	room := e.room
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	state := &roomconfig.State{Pose: pose, Room: room, Cells: e.registry.All()}
	return e.store.Save(state)
}
