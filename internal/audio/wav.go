package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// WAVSource replays a WAV file as if it were a live input. Buffers are
// delivered from a goroutine, paced at real time unless pacing is disabled.
type WAVSource struct {
	samples    []float32
	sampleRate int
	bufferSize int
	paced      bool

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// NewWAVSource decodes path into memory and downmixes it to mono.
func NewWAVSource(path string, bufferSize int, paced bool) (*WAVSource, error) {
	if bufferSize < 1 {
		return nil, fmt.Errorf("%s: buffer size must be positive, got %d", path, bufferSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file: %v", path, decoder.Err())
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}

	if buffer.Format == nil || buffer.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: missing sample rate", path)
	}

	channels := buffer.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	mono := make([]float32, len(buffer.Data)/channels)
	for i := range mono {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += buffer.Data[i*channels+ch]
		}
		mono[i] = float32(sum) / float32(channels) / scale
	}

	done := make(chan struct{})
	close(done)
	return &WAVSource{
		samples:    mono,
		sampleRate: buffer.Format.SampleRate,
		bufferSize: bufferSize,
		paced:      paced,
		done:       done,
	}, nil
}

// Start begins replay from the beginning of the file.
func (s *WAVSource) Start(handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go s.replay(handler, s.quit, s.done)
	return nil
}

func (s *WAVSource) replay(handler Handler, quit, done chan struct{}) {
	defer close(done)

	interval := time.Duration(float64(time.Second) * float64(s.bufferSize) / float64(s.sampleRate))
	buf := make([]float32, s.bufferSize)

	for start := 0; start+s.bufferSize <= len(s.samples); start += s.bufferSize {
		select {
		case <-quit:
			return
		default:
		}

		copy(buf, s.samples[start:start+s.bufferSize])
		handler(buf)

		if s.paced {
			select {
			case <-quit:
				return
			case <-time.After(interval):
			}
		}
	}

	s.mu.Lock()
	if s.done == done {
		s.running = false
	}
	s.mu.Unlock()
}

// Stop halts replay. It does not wait for the replay goroutine.
func (s *WAVSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.quit)
	return nil
}

// Done is closed once replay reaches the end of the file or is stopped.
func (s *WAVSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// SampleRate returns the file's sample rate
func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}

// BufferSize returns the samples per delivered buffer
func (s *WAVSource) BufferSize() int {
	return s.bufferSize
}

// Duration returns the length of the decoded audio.
func (s *WAVSource) Duration() time.Duration {
	if s.sampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(s.samples)) / float64(s.sampleRate) * float64(time.Second))
}
