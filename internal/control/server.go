// Package control implements the ControlSurface (A2, expansion): a small
// newline-delimited TCP protocol exposing spec.md §6's commands plus a
// subscribe mode streaming engine events, grounded on the teacher's
// KISS-over-TCP accept-loop-per-client pattern (src/kissnet.go),
// generalized from a binary AX.25 framing to a plain-text command
// protocol and from a single broadcast stream to command + subscribe
// modes.
package control

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/soundroom/engine/internal/grid"
)

// Handler is implemented by the engine; the control surface never calls
// back into the tick directly: each command becomes one Handler method
// call, which changes engine state under the engine's own locks, matching
// spec.md §9's message/command-channel inversion (no UI-to-engine
// callback cycles).
type Handler interface {
	ReloadConfig() error
	RebuildGrid(newRoom *grid.RoomConfig, keepExisting bool) error
	SetCell(cell grid.Cell, cfg grid.CellConfig) error
	StartCalibration() error
	TestCell(cell grid.Cell) error
	Blackout() error
	Stop() error
}

// Server accepts TCP clients and dispatches line-based commands to a
// Handler, mirroring the teacher's per-port, per-client goroutine model
// (one goroutine accepting, one per connected client).
type Server struct {
	addr    string
	handler Handler
	logger  *log.Logger

	mu          sync.Mutex
	subscribers map[net.Conn]struct{}
	listener    net.Listener
}

// NewServer builds a Server listening on addr (e.g. ":7880").
func NewServer(addr string, handler Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		addr:        addr,
		handler:     handler,
		logger:      logger,
		subscribers: make(map[net.Conn]struct{}),
	}
}

// Start begins listening and accepting clients on its own goroutine,
// mirroring connect_listen_thread's accept loop in src/kissnet.go.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleClient(conn)
	}
}

// Close stops accepting new clients and disconnects any subscribers.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.subscribers {
		conn.Close()
	}
	s.subscribers = make(map[net.Conn]struct{})
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Broadcast writes line to every subscribed client, closing and
// forgetting any connection whose write fails, matching
// kissnet_send_rec_packet's disconnect-on-error behaviour.
func (s *Server) Broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.subscribers {
		if _, err := fmt.Fprintln(conn, line); err != nil {
			conn.Close()
			delete(s.subscribers, conn)
		}
	}
}

func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "subscribe" {
			s.mu.Lock()
			s.subscribers[conn] = struct{}{}
			s.mu.Unlock()
			continue
		}

		reply := s.dispatch(line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}

	s.mu.Lock()
	delete(s.subscribers, conn)
	s.mu.Unlock()
}

func (s *Server) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	var err error
	switch fields[0] {
	case "reload_config":
		err = s.handler.ReloadConfig()

	case "rebuild_grid":
		var newRoom *grid.RoomConfig
		var keep bool
		newRoom, keep, err = parseRebuildGrid(fields[1:])
		if err == nil {
			err = s.handler.RebuildGrid(newRoom, keep)
		}

	case "set_cell":
		var cell grid.Cell
		var cfg grid.CellConfig
		cell, cfg, err = parseSetCell(fields[1:])
		if err == nil {
			err = s.handler.SetCell(cell, cfg)
		}

	case "start_calibration":
		err = s.handler.StartCalibration()

	case "test_cell":
		var cell grid.Cell
		cell, err = parseCellArg(fields[1:])
		if err == nil {
			err = s.handler.TestCell(cell)
		}

	case "blackout":
		err = s.handler.Blackout()

	case "stop":
		err = s.handler.Stop()

	default:
		return "ERR unknown command " + fields[0]
	}

	if err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

// parseRebuildGrid parses "rebuild_grid [width depth rows cols] [keep]",
// matching spec.md §6's rebuild_grid(room, rows, cols). With no room
// dimensions given, only the trailing keep flag (default true) applies
// and the grid is rebuilt from the engine's current RoomConfig. With all
// four dimensions given, they are run through validate_room_and_matrix
// before being returned as the new room.
func parseRebuildGrid(args []string) (newRoom *grid.RoomConfig, keep bool, err error) {
	keep = true

	switch len(args) {
	case 0:
		return nil, keep, nil

	case 1:
		return nil, args[0] != "false", nil

	case 4, 5:
		width, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, false, fmt.Errorf("bad width %q: %w", args[0], err)
		}
		depth, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, false, fmt.Errorf("bad depth %q: %w", args[1], err)
		}
		rowsReq, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, false, fmt.Errorf("bad rows %q: %w", args[2], err)
		}
		colsReq, err := strconv.Atoi(args[3])
		if err != nil {
			return nil, false, fmt.Errorf("bad cols %q: %w", args[3], err)
		}

		if len(args) == 5 {
			keep = args[4] != "false"
		}

		// protocol order is "rows cols"; Validate wants (cols, rows).
		room := grid.Validate(width, depth, colsReq, rowsReq).ToRoomConfig()
		return &room, keep, nil

	default:
		return nil, false, fmt.Errorf("expected [width depth rows cols] [keep], got %d args", len(args))
	}
}

func parseCellArg(args []string) (grid.Cell, error) {
	if len(args) != 2 {
		return grid.Cell{}, fmt.Errorf("expected row col, got %d args", len(args))
	}
	row, err := strconv.Atoi(args[0])
	if err != nil {
		return grid.Cell{}, fmt.Errorf("bad row %q: %w", args[0], err)
	}
	col, err := strconv.Atoi(args[1])
	if err != nil {
		return grid.Cell{}, fmt.Errorf("bad col %q: %w", args[1], err)
	}
	return grid.Cell{Row: row, Col: col}, nil
}

// parseSetCell parses "row col name volume audio_path". Name and
// audio_path must not contain spaces in this minimal protocol.
func parseSetCell(args []string) (grid.Cell, grid.CellConfig, error) {
	if len(args) < 4 {
		return grid.Cell{}, grid.CellConfig{}, fmt.Errorf("expected row col name volume [audio_path], got %d args", len(args))
	}

	cell, err := parseCellArg(args[:2])
	if err != nil {
		return grid.Cell{}, grid.CellConfig{}, err
	}

	volume, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return grid.Cell{}, grid.CellConfig{}, fmt.Errorf("bad volume %q: %w", args[3], err)
	}

	cfg := grid.CellConfig{Name: args[2], Volume: volume}
	if len(args) > 4 {
		cfg.AudioPath = args[4]
	}
	return cell, cfg, nil
}
