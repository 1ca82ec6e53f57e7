package calibrate

import (
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
)

func TestTargetMidpointForRegularGrid(t *testing.T) {
	room := grid.RoomConfig{WidthM: 4, DepthM: 4, Rows: 4, Cols: 4}
	target := Target(room)
	assert.InDelta(t, 1.5, target.X, 1e-9)
	assert.InDelta(t, 1.0, target.Y, 1e-9)
}

func TestTargetFallsBackToCentroidForSmallGrid(t *testing.T) {
	room := grid.RoomConfig{WidthM: 2, DepthM: 2, Rows: 1, Cols: 2}
	target := Target(room)
	assert.InDelta(t, 1.0, target.X, 1e-9)
	assert.InDelta(t, 1.0, target.Y, 1e-9)
}

func cloudAround(n int, x, y float64) []r2.Point {
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{X: x, Y: y}
	}
	return pts
}

func TestCalibratorFullCycleCommits(t *testing.T) {
	room := grid.RoomConfig{WidthM: 4, DepthM: 4, Rows: 4, Cols: 4}

	var persistedDX, persistedDY float64
	persisted := false
	c := New(func(offset geometry.Offset) error {
		persisted = true
		persistedDX, persistedDY = offset.DX, offset.DY
		return nil
	}, nil)

	now := time.Unix(0, 0)
	c.Start(now)
	assert.Equal(t, PhasePreparing, c.Phase())

	now = now.Add(DefaultPrepareDuration)
	r1 := c.Advance(now, nil, room)
	assert.Nil(t, r1)
	assert.Equal(t, PhaseCounting, c.Phase())

	cloud := cloudAround(25, 1.0, 1.0)
	c.Advance(now.Add(time.Second), cloud, room)

	now = now.Add(DefaultCountDuration)
	assert.Nil(t, c.Advance(now, cloud, room))
	assert.Equal(t, PhaseComputing, c.Phase())

	r2res := c.Advance(now.Add(time.Millisecond), cloud, room)
	require.NotNil(t, r2res)
	assert.True(t, r2res.Committed)
	assert.False(t, r2res.NoData)

	assert.True(t, persisted)
	assert.InDelta(t, 0.5, persistedDX, 1e-9)
	assert.InDelta(t, 0.0, persistedDY, 1e-9)

	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestCalibratorNoDataWhenNoGroundEverSeen(t *testing.T) {
	room := grid.RoomConfig{WidthM: 4, DepthM: 4, Rows: 4, Cols: 4}
	c := New(nil, nil)

	now := time.Unix(0, 0)
	c.Start(now)
	now = now.Add(DefaultPrepareDuration)
	c.Advance(now, nil, room)
	now = now.Add(DefaultCountDuration)
	assert.Nil(t, c.Advance(now, nil, room))
	result := c.Advance(now.Add(time.Millisecond), nil, room)

	require.NotNil(t, result)
	assert.True(t, result.NoData)
	assert.False(t, result.Committed)
}

func TestCalibratorStartIsNoopWhileRunning(t *testing.T) {
	c := New(nil, nil)
	now := time.Unix(0, 0)
	c.Start(now)
	c.Start(now.Add(time.Second))
	assert.Equal(t, now.Add(DefaultPrepareDuration), c.phaseUntil)
}

func TestCalibratorSecondsLeftZeroWhenIdle(t *testing.T) {
	c := New(nil, nil)
	assert.Equal(t, time.Duration(0), c.SecondsLeft(time.Now()))
}
