package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	outputSampleRate = 44100
	outputBufferSize = 512
)

// PortAudioBackend is the concrete Backend over a single stereo output
// stream, grounded on the mix-in-callback shape used for ambient pad
// synthesis in the pack's portaudio-based audio processor: one
// OpenDefaultStream callback mixes every live voice into the shared
// stereo buffer each period, rather than one OS stream per voice.
type PortAudioBackend struct {
	loader *SampleLoader
	stream *portaudio.Stream

	mu       sync.Mutex
	voices   map[ChannelHandle]*playback
	samples  map[SampleHandle]*Sample
	nextChan int
	nextSamp int
}

type playback struct {
	sample             *Sample
	pos                float64
	rateRatio          float64
	leftGain           float64
	rightGain          float64
	fadeGain           float64
	fadeStepPerFrame   float64
	fading             bool
	attacking          bool
	attackStepPerFrame float64
}

// NewPortAudioBackend initializes PortAudio and opens the output-only
// default stream. Callers must call Close when done.
func NewPortAudioBackend(loader *SampleLoader) (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	b := &PortAudioBackend{
		loader:  loader,
		voices:  make(map[ChannelHandle]*playback),
		samples: make(map[SampleHandle]*Sample),
	}

	stream, err := portaudio.OpenDefaultStream(0, 2, outputSampleRate, outputBufferSize, b.mix)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening output stream: %w", err)
	}
	b.stream = stream
	return b, nil
}

// Start begins streaming.
func (b *PortAudioBackend) Start() error {
	return b.stream.Start()
}

// Close stops the stream and releases PortAudio.
func (b *PortAudioBackend) Close() error {
	err := b.stream.Stop()
	b.stream.Close()
	portaudio.Terminate()
	return err
}

func (b *PortAudioBackend) Load(path string) (SampleHandle, error) {
	s, err := b.loader.Load(path)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h := SampleHandle(b.nextSamp)
	b.nextSamp++
	b.samples[h] = s
	return h, nil
}

// PlayLooping starts handle looping with a linear fade-in over attack,
// symmetric to FadeOut's release ramp, per spec.md §4.8's "start looped
// playback with linear fade-in over a short attack."
func (b *PortAudioBackend) PlayLooping(handle SampleHandle, attack time.Duration) (ChannelHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples[handle]
	if !ok {
		return 0, fmt.Errorf("unknown sample handle %d", handle)
	}

	frames := attack.Seconds() * outputSampleRate
	if frames < 1 {
		frames = 1
	}

	ch := ChannelHandle(b.nextChan)
	b.nextChan++
	b.voices[ch] = &playback{
		sample:             s,
		rateRatio:          float64(s.Rate) / float64(outputSampleRate),
		fadeGain:           0,
		attacking:          true,
		attackStepPerFrame: 1 / frames,
	}
	return ch, nil
}

func (b *PortAudioBackend) SetGains(channel ChannelHandle, left, right float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.voices[channel]; ok {
		v.leftGain = left
		v.rightGain = right
	}
}

func (b *PortAudioBackend) FadeOut(channel ChannelHandle, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.voices[channel]
	if !ok {
		return
	}
	frames := d.Seconds() * outputSampleRate
	if frames < 1 {
		frames = 1
	}
	v.attacking = false
	v.fading = true
	v.fadeStepPerFrame = 1 / frames
}

func (b *PortAudioBackend) Stop(channel ChannelHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.voices, channel)
}

// mix is the PortAudio callback: it sums every active voice into the
// shared stereo buffer, advancing each voice's read position (looping at
// the sample's end) and applying its current stereo gains and fade
// envelope. It never allocates; it holds the backend mutex while mixing,
// so it waits only for the short critical sections of the other methods.
func (b *PortAudioBackend) mix(out [][]float32) {
	left := out[0]
	right := out[1]
	for i := range left {
		left[i] = 0
		right[i] = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, v := range b.voices {
		frameCount := v.sample.FrameLen()
		if frameCount == 0 {
			continue
		}

		for i := range left {
			if v.attacking {
				v.fadeGain += v.attackStepPerFrame
				if v.fadeGain >= 1 {
					v.fadeGain = 1
					v.attacking = false
				}
			} else if v.fading {
				v.fadeGain -= v.fadeStepPerFrame
				if v.fadeGain <= 0 {
					delete(b.voices, ch)
					break
				}
			}

			frame := int(v.pos) % frameCount
			var sample float32
			if v.sample.Channels == 1 {
				sample = v.sample.Data[frame]
			} else {
				sample = v.sample.Data[frame*v.sample.Channels]
			}

			left[i] += sample * float32(v.leftGain*v.fadeGain)
			right[i] += sample * float32(v.rightGain*v.fadeGain)

			v.pos += v.rateRatio
			if int(v.pos) >= frameCount {
				v.pos -= float64(frameCount)
			}
		}
	}
}
