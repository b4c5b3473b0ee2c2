package pitch

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/0xlemi/earnote/internal/note"
)

// ErrUnknownEstimator is returned by New for an unrecognized estimator name.
var ErrUnknownEstimator = errors.New("unknown pitch estimator")

// Detectable frequency range shared by the estimators
const (
	defaultMinFrequency = 60.0   // just below B1
	defaultMaxFrequency = 1600.0 // around G6
)

// Result is the outcome of analyzing one buffer.
type Result struct {
	Frequency float64 // Hz, 0 when no periodic signal was found
	Clarity   float64 // 0..1, higher means more tonal
}

// Detected reports whether a frequency was found.
func (r Result) Detected() bool {
	return r.Frequency > 0
}

// PitchClass resolves the detected frequency, or note.None.
func (r Result) PitchClass() note.PitchClass {
	return note.FrequencyToPitchClass(r.Frequency)
}

// Estimator finds the fundamental frequency of a mono buffer.
// Implementations hold no per-call state and are deterministic.
type Estimator interface {
	Estimate(samples []float32, sampleRate int) Result
}

// New returns an estimator by name: "nsdf" (default) or "spectrum".
func New(name string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "nsdf", "mpm":
		return NewNSDFEstimator(), nil
	case "spectrum", "fft":
		return NewSpectrumEstimator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEstimator, name)
	}
}

// centered removes the mean of samples and returns the RMS of the result.
func centered(samples []float32) (x []float64, rms float64) {
	x = make([]float64, len(samples))
	mean := 0.0
	for _, s := range samples {
		mean += float64(s)
	}
	mean /= float64(len(samples))

	sumSquares := 0.0
	for i, s := range samples {
		v := float64(s) - mean
		x[i] = v
		sumSquares += v * v
	}
	return x, math.Sqrt(sumSquares / float64(len(samples)))
}
