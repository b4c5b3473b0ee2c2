package pitch

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// NSDFEstimator implements the McLeod pitch method: a normalized square
// difference function computed from an FFT autocorrelation, followed by key
// maximum picking. Clarity is the NSDF value at the chosen period.
type NSDFEstimator struct {
	minFrequency    float64 // Lowest frequency to report (Hz)
	maxFrequency    float64 // Highest frequency to report (Hz)
	cutoff          float64 // Fraction of the highest key maximum a peak must reach
	volumeThreshold float64 // Minimum RMS to attempt detection
	minBufferSize   int
}

// NewNSDFEstimator creates an NSDF estimator with defaults tuned for voice and
// acoustic instruments.
func NewNSDFEstimator() *NSDFEstimator {
	return &NSDFEstimator{
		minFrequency:    defaultMinFrequency,
		maxFrequency:    defaultMaxFrequency,
		cutoff:          0.93,
		volumeThreshold: 0.001,
		minBufferSize:   64,
	}
}

// Estimate analyzes one buffer. Empty, short or silent buffers yield Result{}.
func (e *NSDFEstimator) Estimate(samples []float32, sampleRate int) Result {
	if len(samples) < e.minBufferSize || sampleRate <= 0 {
		return Result{}
	}

	x, rms := centered(samples)
	if rms < e.volumeThreshold {
		return Result{}
	}

	nsdf := e.normalizedSquareDifference(x, sampleRate)
	peaks := keyMaxima(nsdf)

	// Discard periods shorter than the highest frequency allows.
	minLag := int(float64(sampleRate) / e.maxFrequency)
	candidates := peaks[:0]
	for _, p := range peaks {
		if p >= minLag && p > 0 && p < len(nsdf)-1 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Result{}
	}

	highest := math.Inf(-1)
	for _, p := range candidates {
		highest = math.Max(highest, nsdf[p])
	}
	if highest <= 0 {
		return Result{}
	}

	threshold := e.cutoff * highest
	chosen := candidates[0]
	for _, p := range candidates {
		if nsdf[p] >= threshold {
			chosen = p
			break
		}
	}

	period, clarity := parabolicPeak(nsdf, chosen)
	clarity = math.Max(0, math.Min(1, clarity))
	if period <= 0 {
		return Result{}
	}

	frequency := float64(sampleRate) / period
	if frequency < e.minFrequency || frequency > e.maxFrequency {
		return Result{Clarity: clarity}
	}
	return Result{Frequency: frequency, Clarity: clarity}
}

// normalizedSquareDifference returns n'(tau) = 2r(tau)/m(tau) for lags up to
// half the buffer or the period of minFrequency, whichever is smaller.
func (e *NSDFEstimator) normalizedSquareDifference(x []float64, sampleRate int) []float64 {
	n := len(x)
	maxLag := n / 2
	if lag := int(float64(sampleRate)/e.minFrequency) + 2; lag < maxLag {
		maxLag = lag
	}

	r := autocorrelate(x)

	nsdf := make([]float64, maxLag)
	m := 2 * r[0]
	for tau := 0; tau < maxLag; tau++ {
		if tau > 0 {
			m -= x[tau-1]*x[tau-1] + x[n-tau]*x[n-tau]
		}
		if m > 0 {
			nsdf[tau] = 2 * r[tau] / m
		}
	}
	return nsdf
}

// autocorrelate computes r(tau) = sum x[j]*x[j+tau] via a zero-padded FFT.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	size := 1
	for size < 2*n {
		size <<= 1
	}

	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	back := fft.IFFT(spectrum)

	energy := 0.0
	for _, v := range x {
		energy += v * v
	}

	// Rescale so r[0] equals the signal energy exactly.
	scale := 1.0
	if r0 := real(back[0]); r0 != 0 {
		scale = energy / r0
	}

	r := make([]float64, n)
	for i := range r {
		r[i] = real(back[i]) * scale
	}
	return r
}

// keyMaxima returns the index of the highest value in each positive region
// of nsdf, skipping the initial lobe around lag zero.
func keyMaxima(nsdf []float64) []int {
	var peaks []int

	pos := 0
	for pos < len(nsdf) && nsdf[pos] > 0 {
		pos++
	}
	for pos < len(nsdf) && nsdf[pos] <= 0 {
		pos++
	}
	if pos == 0 {
		pos = 1
	}

	best := -1
	for ; pos < len(nsdf); pos++ {
		if nsdf[pos] > 0 {
			if best < 0 || nsdf[pos] > nsdf[best] {
				best = pos
			}
		} else if nsdf[pos-1] > 0 && best >= 0 {
			peaks = append(peaks, best)
			best = -1
		}
	}
	if best >= 0 {
		peaks = append(peaks, best)
	}
	return peaks
}

// parabolicPeak refines a maximum at index i using its neighbours.
func parabolicPeak(y []float64, i int) (position, value float64) {
	if i <= 0 || i >= len(y)-1 {
		return float64(i), y[i]
	}
	a, b, c := y[i-1], y[i], y[i+1]
	denominator := a - 2*b + c
	if denominator == 0 {
		return float64(i), b
	}
	delta := 0.5 * (a - c) / denominator
	return float64(i) + delta, b - 0.25*(a-c)*delta
}
