package roomconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
)

// State is the parsed, validated configuration handed to the engine by
// Load, grounded on the teacher's tocalls.yaml-at-startup idiom in
// src/deviceid.go, generalized from a static reference table to a
// read/write/watch-capable document.
type State struct {
	Pose    geometry.Pose
	Room    grid.RoomConfig
	Cells   map[grid.Cell]grid.CellConfig
	Message string // validation correction message, if any
}

// Store loads, saves, and watches the YAML configuration document at
// Path. All mutation happens between engine ticks under its mutex, matching the
// "configuration store is read-only during ticks" resource-model rule.
type Store struct {
	Path string

	mu sync.Mutex
}

// NewStore builds a Store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load parses the document at Path, validates the room/grid dimensions
// via grid.Validate (auto-correcting rather than failing hard, per
// spec.md §4.5/§6), and zeros the legacy cam_offset_m field before it
// reaches geometry.Pose.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.Path, err)
	}

	result := grid.Validate(doc.Room.WidthM, doc.Room.DepthM, doc.Room.Cols, doc.Room.Rows)
	room := result.ToRoomConfig()

	doc.Camera.CamOffsetM = 0
	pose := cameraDocToPose(doc.Camera)

	cells := make(map[grid.Cell]grid.CellConfig, len(doc.Cells))
	for key, cellDoc := range doc.Cells {
		cell, err := parseCellKey(key)
		if err != nil {
			continue
		}
		cells[cell] = cellDocToConfig(cellDoc)
	}

	return &State{Pose: pose, Room: room, Cells: cells, Message: result.Message}, nil
}

// Save writes state to Path atomically: it writes to a sibling temp file
// and renames over Path, so a crash mid-write never corrupts the document
// a pending calibration commit depends on.
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := Document{
		Camera: poseToCameraDoc(state.Pose),
		Room:   roomConfigToDoc(state.Room),
		Cells:  make(map[string]CellDoc, len(state.Cells)),
	}
	for cell, cfg := range state.Cells {
		doc.Cells[cellKey(cell)] = cellConfigToDoc(cfg)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".roomconfig-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Watch notifies onChange whenever Path is modified externally (e.g. by
// the out-of-scope configuration UI), using fsnotify so the engine can
// apply the same reload path as an explicit reload_config command. It
// runs until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.Path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}

func cellKey(c grid.Cell) string {
	return fmt.Sprintf("%d,%d", c.Row, c.Col)
}

func parseCellKey(key string) (grid.Cell, error) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 {
		return grid.Cell{}, fmt.Errorf("malformed cell key %q", key)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return grid.Cell{}, fmt.Errorf("malformed cell row in %q: %w", key, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return grid.Cell{}, fmt.Errorf("malformed cell col in %q: %w", key, err)
	}
	return grid.Cell{Row: row, Col: col}, nil
}
