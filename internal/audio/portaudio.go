package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// PortAudioSource captures the default input device using PortAudio
type PortAudioSource struct {
	mu            sync.Mutex
	isCapturing   bool
	stream        *portaudio.Stream
	handler       Handler
	bufferSize    int
	sampleRate    int
	channels      int
	mono          []float32
	amplification float32 // Audio signal amplification factor
	log           *zap.Logger
}

// NewPortAudioSource creates a capture source. The device is not touched until Start.
func NewPortAudioSource(bufferSize, sampleRate, channels int, log *zap.Logger) *PortAudioSource {
	if channels < 1 {
		channels = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PortAudioSource{
		bufferSize:    bufferSize,
		sampleRate:    sampleRate,
		channels:      channels,
		mono:          make([]float32, bufferSize),
		amplification: 1.0,
		log:           log,
	}
}

// Start opens the default input stream and begins delivering buffers
func (c *PortAudioSource) Start(handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil || device == nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: no default input device: %v", ErrAudioUnavailable, err)
	}

	c.handler = handler
	stream, err := portaudio.OpenDefaultStream(
		c.channels, // input channels
		0,          // output channels (we don't need output)
		float64(c.sampleRate),
		c.bufferSize, // frames per buffer
		c.processAudio,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open input stream: %v", ErrAudioUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start input stream: %v", ErrAudioUnavailable, err)
	}

	c.log.Info("audio capture started",
		zap.String("device", device.Name),
		zap.Int("sample_rate", c.sampleRate),
		zap.Int("buffer_size", c.bufferSize))

	c.stream = stream
	c.isCapturing = true
	return nil
}

// Stop ends audio capture and releases the device
func (c *PortAudioSource) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return nil
	}
	c.isCapturing = false

	stream := c.stream
	c.stream = nil

	var firstErr error
	if err := stream.Stop(); err != nil {
		firstErr = err
	}
	if err := stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}

	c.log.Info("audio capture stopped")
	return firstErr
}

// processAudio is the PortAudio callback
func (c *PortAudioSource) processAudio(in []float32) {
	frames := len(in) / c.channels
	if cap(c.mono) < frames {
		c.mono = make([]float32, frames)
	}
	mono := c.mono[:frames]

	// Average the channels and apply amplification
	for i := range mono {
		sum := float32(0)
		for ch := 0; ch < c.channels; ch++ {
			sum += in[i*c.channels+ch]
		}
		mono[i] = clamp(sum / float32(c.channels) * c.amplification)
	}

	if c.handler != nil {
		c.handler(mono)
	}
}

// SampleRate returns the capture rate in Hz
func (c *PortAudioSource) SampleRate() int {
	return c.sampleRate
}

// BufferSize returns the frames delivered per callback
func (c *PortAudioSource) BufferSize() int {
	return c.bufferSize
}

// SetAmplification sets the audio amplification factor. Call before Start.
func (c *PortAudioSource) SetAmplification(factor float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Ensure amplification is positive
	if factor < 0.1 {
		factor = 0.1
	}

	c.amplification = factor
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
