// Command soundroom-engine runs the real-time perception-and-dispatch
// loop for the Sound Room installation: it owns one Engine, wiring the
// depth sensor, audio and DMX actuators, configuration store, and control
// surface together, grounded on the teacher's cmd/direwolf entrypoint
// (flag parsing, version banner, signal-driven shutdown) and its
// KissUtilMain pflag idiom in src/kissutil.go.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/soundroom/engine/internal/audio"
	"github.com/soundroom/engine/internal/control"
	"github.com/soundroom/engine/internal/depth"
	"github.com/soundroom/engine/internal/dmx"
	"github.com/soundroom/engine/internal/engine"
	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
	"github.com/soundroom/engine/internal/hysteresis"
	"github.com/soundroom/engine/internal/roomconfig"
	"github.com/soundroom/engine/internal/sessionlog"
)

// SoundroomVersion is set at build time via
// -ldflags "-X main.SoundroomVersion=X", mirroring the teacher's
// SAMOYED_VERSION convention.
var SoundroomVersion string

func main() {
	var (
		configPath   = pflag.StringP("config", "c", "roomconfig.yaml", "Path to the room configuration document")
		controlAddr  = pflag.StringP("control-addr", "l", ":7880", "Listen address for the control surface")
		dmxDevice    = pflag.StringP("dmx-device", "d", "", "Serial device for the DMX transport (e.g. /dev/ttyUSB0); empty disables DMX output")
		dmxBaud      = pflag.IntP("dmx-baud", "b", 57600, "Baud rate for the DMX serial transport")
		sessionDir   = pflag.StringP("session-log-dir", "L", "", "Directory for daily activation CSV logs; empty disables session logging")
		simulated    = pflag.Bool("simulated", false, "Use a simulated depth source instead of a real sensor")
		rateHz       = pflag.Float64P("rate", "r", 20, "Engine tick rate in Hz")
		mdnsName     = pflag.String("mdns-name", "Sound Room", "Service name advertised via mDNS/DNS-SD")
		noMdns       = pflag.Bool("no-mdns", false, "Disable mDNS/DNS-SD advertisement")
		verbose      = pflag.BoolP("verbose", "v", false, "Verbose logging")
		showVersion  = pflag.Bool("version", false, "Print version and exit")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *showVersion {
		printVersion()
		return
	}

	if err := run(logger, *configPath, *controlAddr, *dmxDevice, *dmxBaud, *sessionDir, *simulated, *rateHz, *mdnsName, *noMdns); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, configPath, controlAddr, dmxDevice string, dmxBaud int, sessionDir string, simulated bool, rateHz float64, mdnsName string, noMdns bool) error {
	store := roomconfig.NewStore(configPath)
	state, err := store.Load()
	if err != nil {
		logger.Warn("could not load configuration, using defaults", "err", err)
		state = &roomconfig.State{
			Pose: geometry.DefaultPose(),
			Room: grid.RoomConfig{WidthM: 4, DepthM: 4, Rows: 4, Cols: 4},
		}
	} else if state.Message != "" {
		logger.Warn("configuration auto-corrected", "message", state.Message)
	}

	registry := grid.NewRegistry()
	registry.Rebuild(state.Room, false)
	for cell, cfg := range state.Cells {
		registry.Set(cell, cfg)
	}

	var source depth.Source
	if simulated {
		source = &depth.SimulatedSource{
			Width:  80,
			Height: 60,
			Waypoints: []depth.SimWaypoint{
				{X: 10, DepthMM: 1500},
				{X: 40, DepthMM: 2200},
				{X: 65, DepthMM: 1800},
			},
		}
	} else {
		return fmt.Errorf("no real DepthSource adapter configured; run with --simulated for now")
	}

	loader := audio.NewSampleLoader()
	backend, err := audio.NewPortAudioBackend(loader)
	if err != nil {
		return fmt.Errorf("initializing audio backend: %w", err)
	}
	if err := backend.Start(); err != nil {
		return fmt.Errorf("starting audio stream: %w", err)
	}
	defer backend.Close()

	audioEngine := audio.NewEngine(backend, 8, logger.With("component", "audio"))

	var transportFactory engine.TransportFactory
	if dmxDevice != "" {
		transportFactory = func(universe int) (dmx.Transport, error) {
			return dmx.OpenSerialTransport(dmxDevice, dmxBaud)
		}
	}

	var sessLog *sessionlog.Logger
	if sessionDir != "" {
		sessLog, err = sessionlog.NewLogger(sessionDir, sessionlog.DefaultPattern)
		if err != nil {
			return fmt.Errorf("initializing session log: %w", err)
		}
	}

	eng := engine.New(engine.Config{
		Source:      source,
		Converter:   depth.Converter{Shift: 0, Smoothed: true},
		Mapper:      geometry.Mapper{Intrinsics: geometry.Intrinsics{Fx: 525, Fy: 525, Cx: 40, Cy: 30}},
		Pose:        state.Pose,
		Room:        state.Room,
		Registry:    registry,
		Filter:      hysteresis.NewFilter(hysteresis.DefaultActivateN, hysteresis.DefaultDeactivateN),
		AudioEngine: audioEngine,
		Transport:   transportFactory,
		Store:       store,
		SessionLog:  sessLog,
		Logger:      logger.With("component", "engine"),
		Rate:        time.Duration(float64(time.Second) / rateHz),
	})

	controlServer := control.NewServer(controlAddr, eng, logger.With("component", "control"))
	eng.OnEvent(func(msg string) {
		logger.Info("event", "msg", msg)
		controlServer.Broadcast(msg)
	})
	if err := controlServer.Start(); err != nil {
		return fmt.Errorf("starting control surface: %w", err)
	}
	defer controlServer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !noMdns {
		if _, portStr, splitErr := net.SplitHostPort(controlAddr); splitErr == nil {
			if port, convErr := strconv.Atoi(portStr); convErr == nil {
				if err := control.Announce(ctx, mdnsName, port, logger.With("component", "dnssd")); err != nil {
					logger.Warn("mDNS announcement failed", "err", err)
				}
			}
		}
	}

	logger.Info("sound room engine starting", "config", configPath, "control_addr", controlAddr)
	return eng.Run(ctx)
}

func printVersion() {
	bi, _ := debug.ReadBuildInfo()
	version := SoundroomVersion
	if version == "" {
		version = "!UNKNOWN!"
	}
	revision := "UNKNOWN"
	if bi != nil {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				revision = s.Value
			}
		}
	}
	fmt.Printf("soundroom-engine - Version %s (revision %s)\n", version, revision)
}
