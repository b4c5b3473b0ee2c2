package pitch

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// SpectrumEstimator implements pitch estimation by picking the strongest
// peak of a Hann-windowed magnitude spectrum. Clarity is the share of
// in-range spectral energy that sits around the chosen peak.
type SpectrumEstimator struct {
	minFrequency    float64 // Lowest frequency to detect (Hz)
	maxFrequency    float64 // Highest frequency to detect (Hz)
	peakThreshold   float64 // Minimum peak height as fraction of highest peak
	volumeThreshold float64 // Minimum RMS volume level for note detection
	peakWidth       int     // Bins on each side counted as part of the peak
}

// NewSpectrumEstimator creates an FFT-based pitch estimator
func NewSpectrumEstimator() *SpectrumEstimator {
	return &SpectrumEstimator{
		minFrequency:    defaultMinFrequency,
		maxFrequency:    defaultMaxFrequency,
		peakThreshold:   0.2,
		volumeThreshold: 0.005,
		peakWidth:       2,
	}
}

// Peak represents a peak in the frequency spectrum
type Peak struct {
	Bin       int
	Magnitude float64
	Frequency float64
}

// Estimate analyzes one buffer. Quiet buffers yield Result{}.
func (d *SpectrumEstimator) Estimate(samples []float32, sampleRate int) Result {
	if len(samples) < 2 || sampleRate <= 0 {
		return Result{}
	}

	x, rms := centered(samples)
	if rms < d.volumeThreshold {
		return Result{}
	}

	// Apply windowing function (Hann window)
	window.Apply(x, window.Hann)

	spectrum := fft.FFTReal(x)
	magnitudes := make([]float64, len(spectrum)/2)
	for i := range magnitudes {
		magnitudes[i] = cmplx.Abs(spectrum[i])
	}

	// Calculate frequency resolution (Hz per bin)
	binSizeHz := float64(sampleRate) / float64(len(spectrum))

	minBin := int(d.minFrequency / binSizeHz)
	if minBin < 1 {
		minBin = 1 // Avoid DC component
	}
	maxBin := int(d.maxFrequency / binSizeHz)
	if maxBin >= len(magnitudes)-1 {
		maxBin = len(magnitudes) - 2
	}
	if maxBin <= minBin {
		return Result{}
	}

	peaks := d.findPeaks(magnitudes, minBin, maxBin, binSizeHz)
	if len(peaks) == 0 {
		return Result{}
	}

	// Sort peaks by magnitude (descending)
	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].Magnitude > peaks[j].Magnitude
	})
	best := peaks[0]

	total, around := 0.0, 0.0
	for i := minBin; i <= maxBin; i++ {
		energy := magnitudes[i] * magnitudes[i]
		total += energy
		if i >= best.Bin-d.peakWidth && i <= best.Bin+d.peakWidth {
			around += energy
		}
	}
	clarity := 0.0
	if total > 0 {
		clarity = around / total
	}

	if best.Frequency < d.minFrequency || best.Frequency > d.maxFrequency {
		return Result{Clarity: clarity}
	}
	return Result{Frequency: best.Frequency, Clarity: clarity}
}

// findPeaks returns local maxima above peakThreshold of the in-range maximum,
// with their frequency refined by quadratic interpolation.
func (d *SpectrumEstimator) findPeaks(magnitudes []float64, minBin, maxBin int, binSizeHz float64) []Peak {
	maxMagnitude := 0.0
	for i := minBin; i <= maxBin; i++ {
		maxMagnitude = math.Max(maxMagnitude, magnitudes[i])
	}
	if maxMagnitude == 0 {
		return nil
	}

	var peaks []Peak
	for i := minBin; i <= maxBin; i++ {
		prev, current, next := magnitudes[i-1], magnitudes[i], magnitudes[i+1]
		if current <= prev || current <= next || current < maxMagnitude*d.peakThreshold {
			continue
		}

		// x = 0.5 * (R[k-1] - R[k+1]) / (R[k-1] - 2*R[k] + R[k+1]) + k
		freq := float64(i) * binSizeHz
		if denominator := prev - 2*current + next; denominator != 0 {
			delta := 0.5 * (prev - next) / denominator
			freq = (float64(i) + delta) * binSizeHz
		}

		peaks = append(peaks, Peak{
			Bin:       i,
			Magnitude: current,
			Frequency: freq,
		})
	}
	return peaks
}
