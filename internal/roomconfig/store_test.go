package roomconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
)

const sampleDoc = `
camera:
  height_m: 1.9
  pitch_deg: 12
  wall_dist_m: 0.4
  cam_offset_m: 0.3
  calibration_offset_dx: 0.1
  calibration_offset_dy: -0.2
room:
  width_m: 4.2
  depth_m: 3.8
  rows: 4
  cols: 5
cells:
  "1,1":
    name: chime
    audio_path: chime.wav
    volume: 1.1
    active: true
    dmx:
      universe: 0
      address: 1
      channel_count: 3
      color: [255, 50, 0]
`

func writeTempDoc(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomconfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesAndValidates(t *testing.T) {
	path := writeTempDoc(t, sampleDoc)
	store := NewStore(path)

	state, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, 3, state.Room.Rows, "rows=4 overflows a 3.8m-deep room and is clamped to 3")
	assert.Equal(t, 4, state.Room.Cols, "cols=5 overflows a 4.2m-wide room and is clamped to 4")
	assert.NotEmpty(t, state.Message)

	assert.InDelta(t, 0.1, state.Pose.Offset.DX, 1e-9)
	assert.InDelta(t, -0.2, state.Pose.Offset.DY, 1e-9)

	cell, ok := state.Cells[grid.Cell{Row: 1, Col: 1}]
	require.True(t, ok)
	assert.Equal(t, "chime", cell.Name)
	assert.Equal(t, uint8(255), cell.Dmx.Color.R)
}

func TestLoadZeroesLegacyCamOffset(t *testing.T) {
	path := writeTempDoc(t, sampleDoc)
	store := NewStore(path)

	state, err := store.Load()
	require.NoError(t, err)

	// cam_offset_m must never leak into the pose's calibration offset.
	assert.InDelta(t, 0.1, state.Pose.Offset.DX, 1e-9)
}

func TestLoadSkipsMalformedCellKeys(t *testing.T) {
	doc := `
room:
  width_m: 4
  depth_m: 4
  rows: 4
  cols: 4
cells:
  "not-a-cell":
    name: bad
`
	path := writeTempDoc(t, doc)
	store := NewStore(path)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Cells)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomconfig.yaml")
	store := NewStore(path)

	state := &State{
		Pose: geometry.Pose{HeightM: 2.0, PitchDeg: 15, WallDistM: 0.5, Offset: geometry.Offset{DX: 0.3, DY: 0.1}, MinDepthM: 0.2, MaxDepthM: 6},
		Room: grid.RoomConfig{WidthM: 4, DepthM: 4, Rows: 4, Cols: 4},
		Cells: map[grid.Cell]grid.CellConfig{
			{Row: 2, Col: 3}: {Name: "drone", AudioPath: "drone.wav", Volume: 0.7, Active: true},
		},
	}

	require.NoError(t, store.Save(state))

	loaded, err := store.Load()
	require.NoError(t, err)

	assert.InDelta(t, state.Pose.HeightM, loaded.Pose.HeightM, 1e-9)
	assert.InDelta(t, state.Pose.Offset.DX, loaded.Pose.Offset.DX, 1e-9)
	assert.Equal(t, state.Room, loaded.Room)

	cell, ok := loaded.Cells[grid.Cell{Row: 2, Col: 3}]
	require.True(t, ok)
	assert.Equal(t, "drone", cell.Name)
	assert.InDelta(t, 0.7, cell.Volume, 1e-9)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roomconfig.yaml")
	store := NewStore(path)

	require.NoError(t, store.Save(&State{Room: grid.RoomConfig{WidthM: 1, DepthM: 1, Rows: 1, Cols: 1}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "roomconfig.yaml", entries[0].Name())
}

func TestWatchTriggersOnChangeAfterWrite(t *testing.T) {
	path := writeTempDoc(t, sampleDoc)
	store := NewStore(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggered := make(chan struct{}, 1)
	require.NoError(t, store.Watch(ctx, func() {
		select {
		case triggered <- struct{}{}:
		default:
		}
	}))

	// Give the watcher goroutine a moment to register before editing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not observe the file write")
	}
}

func TestCellKeyRoundTrip(t *testing.T) {
	cell := grid.Cell{Row: 3, Col: 7}
	key := cellKey(cell)
	parsed, err := parseCellKey(key)
	require.NoError(t, err)
	assert.Equal(t, cell, parsed)
}

func TestParseCellKeyRejectsMalformed(t *testing.T) {
	_, err := parseCellKey("nope")
	assert.Error(t, err)
	_, err = parseCellKey("a,b")
	assert.Error(t, err)
}
