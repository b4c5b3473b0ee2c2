package audio

import (
	"errors"
	"math"
)

// ErrAudioUnavailable is returned when no capture or playback device can be
// opened (permission denied, no device, driver failure).
var ErrAudioUnavailable = errors.New("audio device unavailable")

// Handler receives one mono buffer of samples in [-1, 1]. The slice is only
// valid for the duration of the call. Handlers run on the device thread and
// must not block or call Stop.
type Handler func(samples []float32)

// Source delivers fixed-size mono buffers asynchronously until stopped.
type Source interface {
	// Start acquires the device and begins calling handler. It fails with
	// ErrAudioUnavailable when the device cannot be opened.
	Start(handler Handler) error

	// Stop releases the device. It is safe to call more than once.
	Stop() error

	// SampleRate returns the rate of delivered buffers in Hz.
	SampleRate() int

	// BufferSize returns the number of samples per delivered buffer.
	BufferSize() int
}

// Level calculates RMS and dB level of a buffer
func Level(samples []float32) (rms, db float32) {
	if len(samples) == 0 {
		return 0, -100
	}

	sumSquares := float32(0)
	for _, sample := range samples {
		sumSquares += sample * sample
	}

	rms = float32(math.Sqrt(float64(sumSquares / float32(len(samples)))))

	// Calculate dB (with protection against log(0))
	if rms > 0.0000001 {
		db = 20 * float32(math.Log10(float64(rms)))
	} else {
		db = -100
	}

	return rms, db
}
