package audio

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// Waveform selects the oscillator used for reference tones.
type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Triangle Waveform = "triangle"
	Sawtooth Waveform = "sawtooth"
)

// ParseWaveform accepts a case-insensitive waveform name.
func ParseWaveform(name string) (Waveform, error) {
	switch w := Waveform(strings.ToLower(strings.TrimSpace(name))); w {
	case Sine, Square, Triangle, Sawtooth:
		return w, nil
	case "":
		return Sine, nil
	default:
		return "", fmt.Errorf("unknown waveform %q", name)
	}
}

// ToneConfig is owned by the caller and passed to every playback call.
type ToneConfig struct {
	Waveform Waveform
	Slow     bool    // doubles every duration
	Volume   float64 // master gain, 0..1
}

// DefaultToneConfig returns a sine at half volume.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{Waveform: Sine, Volume: 0.5}
}

// Tone is a single pitched note.
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Volume    float64 // 0..1, scaled by ToneConfig.Volume
}

// Phrase is a list of steps played one after another; the tones in a step
// sound together.
type Phrase [][]Tone

// Player produces audible output for a phrase.
type Player interface {
	Play(ctx context.Context, phrase Phrase, cfg ToneConfig) error
}

const fadeDuration = 5 * time.Millisecond

// Render synthesizes phrase into mono samples at sampleRate.
func Render(phrase Phrase, cfg ToneConfig, sampleRate int) []float32 {
	var out []float32
	fadeSamples := int(float64(sampleRate) * fadeDuration.Seconds())

	for _, step := range phrase {
		length := 0
		for _, tone := range step {
			d := tone.Duration
			if cfg.Slow {
				d *= 2
			}
			if n := int(float64(sampleRate) * d.Seconds()); n > length {
				length = n
			}
		}

		segment := make([]float32, length)
		for _, tone := range step {
			d := tone.Duration
			if cfg.Slow {
				d *= 2
			}
			n := int(float64(sampleRate) * d.Seconds())
			gain := tone.Volume * cfg.Volume / float64(len(step))

			for i := 0; i < n; i++ {
				// Envelope to avoid clicks
				envelope := 1.0
				if i < fadeSamples {
					envelope = float64(i) / float64(fadeSamples)
				} else if i > n-fadeSamples {
					envelope = float64(n-i) / float64(fadeSamples)
				}

				phase := math.Mod(tone.Frequency*float64(i)/float64(sampleRate), 1)
				segment[i] += float32(oscillate(cfg.Waveform, phase) * gain * envelope)
			}
		}
		out = append(out, segment...)
	}
	return out
}

// oscillate evaluates one period of the waveform at phase in [0, 1).
func oscillate(w Waveform, phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	case Sawtooth:
		return 2*phase - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// PortAudioPlayer writes rendered phrases to the default output device.
type PortAudioPlayer struct {
	sampleRate int
	frames     int
	log        *zap.Logger
}

// NewPortAudioPlayer creates a player; the device is opened per Play call.
func NewPortAudioPlayer(sampleRate int, log *zap.Logger) *PortAudioPlayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &PortAudioPlayer{sampleRate: sampleRate, frames: 1024, log: log}
}

// Play blocks until the phrase has been written or ctx is done.
func (p *PortAudioPlayer) Play(ctx context.Context, phrase Phrase, cfg ToneConfig) error {
	samples := Render(phrase, cfg, p.sampleRate)
	if len(samples) == 0 {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
	}
	defer portaudio.Terminate()

	buf := make([]float32, p.frames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), len(buf), &buf)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", ErrAudioUnavailable, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: start output stream: %v", ErrAudioUnavailable, err)
	}
	defer stream.Stop()

	p.log.Debug("playing phrase",
		zap.Int("steps", len(phrase)),
		zap.String("waveform", string(cfg.Waveform)),
		zap.Bool("slow", cfg.Slow))

	for start := 0; start < len(samples); start += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[start:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}
