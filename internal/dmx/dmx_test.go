package dmx

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every Send call and can be made to fail on demand.
type fakeTransport struct {
	mu      sync.Mutex
	sends   [][UniverseSize]byte
	failing bool
}

func (t *fakeTransport) Send(universe int, data [UniverseSize]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failing {
		return errors.New("transport down")
	}
	t.sends = append(t.sends, data)
	return nil
}

func (t *fakeTransport) sendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

func TestSetChannelsClampsAndOffsets(t *testing.T) {
	e := NewEngine(&fakeTransport{}, 0, nil)
	e.SetChannels(1, []int{-10, 300, 128})

	buf := e.Snapshot()
	assert.Equal(t, byte(0), buf[0])
	assert.Equal(t, byte(255), buf[1])
	assert.Equal(t, byte(128), buf[2])
}

func TestSetChannelsIgnoresOutOfRangeAddress(t *testing.T) {
	e := NewEngine(&fakeTransport{}, 0, nil)
	e.SetChannels(511, []int{1, 2, 3, 4})

	buf := e.Snapshot()
	assert.Equal(t, byte(1), buf[510])
	assert.Equal(t, byte(2), buf[511])
	// values 3 and 4 fall past index 511 and must be silently dropped.
}

func TestFlushSendsCurrentBuffer(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(transport, 3, nil)
	e.SetChannels(1, []int{10, 20, 30})

	require.NoError(t, e.Flush(time.Unix(0, 0)))
	require.Equal(t, 1, transport.sendCount())
	assert.Equal(t, byte(10), transport.sends[0][0])
}

func TestDegradesAfterConsecutiveFailures(t *testing.T) {
	transport := &fakeTransport{failing: true}
	e := NewEngine(transport, 0, nil)

	var lastErr error
	for i := 0; i < DefaultDegradeAfter; i++ {
		lastErr = e.Flush(time.Unix(int64(i), 0))
		require.Error(t, lastErr)
	}
	assert.True(t, e.Degraded())

	// Once degraded, Flush is a no-op that returns nil and sends nothing.
	before := transport.sendCount()
	require.NoError(t, e.Flush(time.Unix(100, 0)))
	assert.Equal(t, before, transport.sendCount())
}

func TestResetRecoversFromDegraded(t *testing.T) {
	transport := &fakeTransport{failing: true}
	e := NewEngine(transport, 0, nil)
	for i := 0; i < DefaultDegradeAfter; i++ {
		e.Flush(time.Unix(int64(i), 0))
	}
	require.True(t, e.Degraded())

	e.Reset()
	assert.False(t, e.Degraded())

	transport.mu.Lock()
	transport.failing = false
	transport.mu.Unlock()

	require.NoError(t, e.Flush(time.Unix(200, 0)))
	assert.Equal(t, 1, transport.sendCount())
}

func TestBlackoutIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	e := NewEngine(transport, 0, nil)
	e.SetChannels(1, []int{255, 255, 255})

	require.NoError(t, e.Blackout(time.Unix(0, 0)))
	first := e.Snapshot()
	require.NoError(t, e.Blackout(time.Unix(1, 0)))
	second := e.Snapshot()

	assert.Equal(t, first, second)
	for _, b := range second {
		assert.Equal(t, byte(0), b)
	}
	assert.Equal(t, 2, transport.sendCount())
}

func TestApplyActivationWritesAccentAndOffColors(t *testing.T) {
	e := NewEngine(&fakeTransport{}, 0, nil)
	e.ApplyActivation(1, AccentColor)
	buf := e.Snapshot()
	assert.Equal(t, AccentColor[0], buf[0])
	assert.Equal(t, AccentColor[1], buf[1])
	assert.Equal(t, AccentColor[2], buf[2])

	e.ApplyActivation(1, OffColor)
	buf = e.Snapshot()
	assert.Equal(t, byte(0), buf[0])
	assert.Equal(t, byte(0), buf[1])
	assert.Equal(t, byte(0), buf[2])
}
