package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/cwbudde/wav"
)

// Sample is a decoded mono or stereo PCM buffer, resampled to the output
// stream's sample rate by the caller, if needed.
type Sample struct {
	Rate     int
	Channels int
	Data     []float32 // interleaved
}

// FrameLen returns the number of frames (samples per channel) in s.
func (s Sample) FrameLen() int {
	if s.Channels == 0 {
		return 0
	}
	return len(s.Data) / s.Channels
}

// SampleLoader decodes and caches WAV files by path, grounded on
// CWBudde-go-pocket-tts's cwbudde/wav decode helper, generalized from a
// fixed 24kHz mono TTS format to the room's voice assets (any sample
// rate/channel count; the backend's mix stage adapts at playback time).
type SampleLoader struct {
	mu    sync.Mutex
	cache map[string]*Sample
}

func NewSampleLoader() *SampleLoader {
	return &SampleLoader{cache: make(map[string]*Sample)}
}

// Load decodes path on first use and serves subsequent calls from cache.
func (l *SampleLoader) Load(path string) (*Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.cache[path]; ok {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	data := make([]float32, len(buf.Data))
	scale := float32(1) / float32(int(1)<<(uint(dec.BitDepth)-1))
	for i, v := range buf.Data {
		data[i] = float32(v) * scale
	}

	s := &Sample{
		Rate:     int(dec.SampleRate),
		Channels: int(dec.NumChans),
		Data:     data,
	}
	l.cache[path] = s
	return s, nil
}
