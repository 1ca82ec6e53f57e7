package control

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundroom/engine/internal/grid"
)

type fakeHandler struct {
	reloadErr error
	calls     []string
	lastCell  grid.Cell
	lastCfg   grid.CellConfig
	keepLast  bool
	lastRoom  *grid.RoomConfig
}

func (h *fakeHandler) ReloadConfig() error {
	h.calls = append(h.calls, "reload_config")
	return h.reloadErr
}
func (h *fakeHandler) RebuildGrid(newRoom *grid.RoomConfig, keepExisting bool) error {
	h.calls = append(h.calls, "rebuild_grid")
	h.keepLast = keepExisting
	h.lastRoom = newRoom
	return nil
}
func (h *fakeHandler) SetCell(cell grid.Cell, cfg grid.CellConfig) error {
	h.calls = append(h.calls, "set_cell")
	h.lastCell, h.lastCfg = cell, cfg
	return nil
}
func (h *fakeHandler) StartCalibration() error {
	h.calls = append(h.calls, "start_calibration")
	return nil
}
func (h *fakeHandler) TestCell(cell grid.Cell) error {
	h.calls = append(h.calls, "test_cell")
	h.lastCell = cell
	return nil
}
func (h *fakeHandler) Blackout() error {
	h.calls = append(h.calls, "blackout")
	return nil
}
func (h *fakeHandler) Stop() error {
	h.calls = append(h.calls, "stop")
	return nil
}

func TestDispatchKnownCommands(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer(":0", h, nil)

	assert.Equal(t, "OK", s.dispatch("blackout"))
	assert.Equal(t, "OK", s.dispatch("start_calibration"))
	assert.Equal(t, "OK", s.dispatch("set_cell 1 2 chime 1.0 chime.wav"))
	assert.Equal(t, grid.Cell{Row: 1, Col: 2}, h.lastCell)
	assert.Equal(t, "chime", h.lastCfg.Name)
	assert.InDelta(t, 1.0, h.lastCfg.Volume, 1e-9)
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := NewServer(":0", &fakeHandler{}, nil)
	reply := s.dispatch("do_a_barrel_roll")
	assert.Contains(t, reply, "ERR")
	assert.Contains(t, reply, "unknown command")
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	h := &fakeHandler{reloadErr: assertError("no config")}
	s := NewServer(":0", h, nil)
	reply := s.dispatch("reload_config")
	assert.Contains(t, reply, "ERR")
	assert.Contains(t, reply, "no config")
}

func TestRebuildGridDefaultsToKeepingExisting(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer(":0", h, nil)
	s.dispatch("rebuild_grid")
	assert.True(t, h.keepLast)
	assert.Nil(t, h.lastRoom)

	s.dispatch("rebuild_grid false")
	assert.False(t, h.keepLast)
	assert.Nil(t, h.lastRoom)
}

func TestRebuildGridResizesRoom(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer(":0", h, nil)

	reply := s.dispatch("rebuild_grid 6 5 4 3")
	assert.Equal(t, "OK", reply)
	require.NotNil(t, h.lastRoom)
	assert.Equal(t, 6.0, h.lastRoom.WidthM)
	assert.Equal(t, 5.0, h.lastRoom.DepthM)
	assert.Equal(t, 4, h.lastRoom.Rows)
	assert.Equal(t, 3, h.lastRoom.Cols)
	assert.True(t, h.keepLast)
}

func TestRebuildGridResizesRoomAndDropsExisting(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer(":0", h, nil)

	s.dispatch("rebuild_grid 6 5 4 3 false")
	require.NotNil(t, h.lastRoom)
	assert.Equal(t, 3, h.lastRoom.Cols)
	assert.False(t, h.keepLast)
}

func TestRebuildGridResizeClampsOverflowingRequest(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer(":0", h, nil)

	s.dispatch("rebuild_grid 4.2 3.8 4 5")
	require.NotNil(t, h.lastRoom)
	assert.Equal(t, 3, h.lastRoom.Rows, "rows=4 overflows a 3.8m-deep room and is clamped to 3")
	assert.Equal(t, 4, h.lastRoom.Cols, "cols=5 overflows a 4.2m-wide room and is clamped to 4")
}

func TestRebuildGridRejectsWrongArgCount(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer(":0", h, nil)

	reply := s.dispatch("rebuild_grid 6 5 4")
	assert.Contains(t, reply, "ERR")
}

func TestParseSetCellRejectsTooFewArgs(t *testing.T) {
	_, _, err := parseSetCell([]string{"1", "2"})
	assert.Error(t, err)
}

func TestServerAcceptsClientsAndRepliesOverTCP(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer("127.0.0.1:0", h, nil)
	require.NoError(t, s.Start())
	defer s.Close()

	addr := s.listener.Addr().String()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("blackout\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK\n", line)
}

func TestServerSubscribeReceivesBroadcast(t *testing.T) {
	h := &fakeHandler{}
	s := NewServer("127.0.0.1:0", h, nil)
	require.NoError(t, s.Start())
	defer s.Close()

	addr := s.listener.Addr().String()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("subscribe\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subscribers) == 1
	}, time.Second, 10*time.Millisecond)

	s.Broadcast("cell 1,1 activated")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "cell 1,1 activated\n", line)
}

type assertError string

func (e assertError) Error() string { return string(e) }
