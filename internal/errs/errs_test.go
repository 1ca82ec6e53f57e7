package errs

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	se := New("depth", KindFrameMalformed, cause)

	assert.True(t, errors.Is(se, cause))
	assert.Contains(t, se.Error(), "depth")
	assert.Contains(t, se.Error(), string(KindFrameMalformed))
}

func TestStageErrorNilCause(t *testing.T) {
	se := New("dmx", KindDmxTransport, nil)
	assert.Equal(t, "dmx: DmxTransport", se.Error())
	assert.Nil(t, se.Unwrap())
}

func TestReporterRateLimitsRepeatedKind(t *testing.T) {
	logger := log.New(io.Discard)
	r := NewReporter(logger, map[Kind]time.Duration{KindFrameTimeout: time.Second})

	var calls int
	logger.SetLevel(log.DebugLevel)

	base := time.Unix(0, 0)
	// First report always goes through.
	require.NotPanics(t, func() { r.Report(base, New("depth", KindFrameTimeout, nil)) })
	calls++

	// A second report inside the same rate-limit window should be suppressed;
	// we can't observe log output directly without a custom writer, so this
	// test exercises the suppression bookkeeping instead.
	r.mu.Lock()
	last := r.lastSeen[KindFrameTimeout]
	r.mu.Unlock()
	assert.Equal(t, base, last)

	r.Report(base.Add(500*time.Millisecond), New("depth", KindFrameTimeout, nil))
	r.mu.Lock()
	stillLast := r.lastSeen[KindFrameTimeout]
	r.mu.Unlock()
	assert.Equal(t, base, stillLast, "suppressed report must not advance lastSeen")

	r.Report(base.Add(2*time.Second), New("depth", KindFrameTimeout, nil))
	r.mu.Lock()
	advanced := r.lastSeen[KindFrameTimeout]
	r.mu.Unlock()
	assert.Equal(t, base.Add(2*time.Second), advanced, "report past the gap must advance lastSeen")
}

func TestReporterNilErrorIsNoop(t *testing.T) {
	r := NewReporter(nil, nil)
	assert.NotPanics(t, func() { r.Report(time.Now(), nil) })
}

func TestReporterDefaultGapsForUnspecifiedKind(t *testing.T) {
	r := NewReporter(nil, nil)
	now := time.Unix(100, 0)

	r.Report(now, New("grid", KindConfigInvalid, nil))
	r.Report(now, New("grid", KindConfigInvalid, nil))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, now, r.lastSeen[KindConfigInvalid], "kinds with no configured gap are never suppressed")
}
