package note

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyRoundTripIsOctaveIndependent(t *testing.T) {
	for _, pc := range PitchClasses() {
		for octave := 0; octave <= 8; octave++ {
			freq, err := PitchClassFrequency(pc, octave)
			require.NoError(t, err)
			assert.Equal(t, pc, FrequencyToPitchClass(freq), "%s%d (%.2f Hz)", pc, octave, freq)
		}
	}
}

func TestPitchClassFrequencyReferences(t *testing.T) {
	a4, err := PitchClassFrequency(A, 4)
	require.NoError(t, err)
	assert.InDelta(t, 440.0, a4, 1e-9)

	c4, err := PitchClassFrequency(C, 4)
	require.NoError(t, err)
	assert.InDelta(t, 261.6256, c4, 1e-3)

	a3, err := MustParse("A3").Frequency()
	require.NoError(t, err)
	assert.InDelta(t, 220.0, a3, 1e-9)
}

func TestPitchClassFrequencyRejectsUnknownClass(t *testing.T) {
	_, err := PitchClassFrequency(PitchClass(12), 4)
	assert.True(t, errors.Is(err, ErrUnknownPitchClass))

	_, err = PitchClassFrequency(None, 4)
	assert.True(t, errors.Is(err, ErrUnknownPitchClass))
}

func TestFrequencyToPitchClassNonPositive(t *testing.T) {
	assert.Equal(t, None, FrequencyToPitchClass(0))
	assert.Equal(t, None, FrequencyToPitchClass(-440))
	assert.Equal(t, None, FrequencyToPitchClass(math.NaN()))
}

func TestFrequencyToPitchClassRoundsToNearest(t *testing.T) {
	// 45 cents sharp of A4 is still A, 55 cents sharp rounds to A#.
	assert.Equal(t, A, FrequencyToPitchClass(440*math.Pow(2, 0.45/12)))
	assert.Equal(t, ASharp, FrequencyToPitchClass(440*math.Pow(2, 0.55/12)))
}

func TestFrequencyToNamed(t *testing.T) {
	n, ok := FrequencyToNamed(261.63)
	require.True(t, ok)
	assert.Equal(t, Named{PitchClass: C, Octave: 4}, n)

	n, ok = FrequencyToNamed(27.5)
	require.True(t, ok)
	assert.Equal(t, "A0", n.String())

	_, ok = FrequencyToNamed(0)
	assert.False(t, ok)
}

func TestParseNoteName(t *testing.T) {
	tests := []struct {
		in   string
		want Named
	}{
		{"C4", Named{C, 4}},
		{"c4", Named{C, 4}},
		{"F#3", Named{FSharp, 3}},
		{"Ab5", Named{GSharp, 5}},
		{"Bb2", Named{ASharp, 2}},
		{"Cb4", Named{B, 4}},
		{"E#4", Named{F, 4}},
		{"G-1", Named{G, -1}},
		{"D+2", Named{D, 2}},
		{" A4 ", Named{A, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNoteName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNoteNameEnharmonic(t *testing.T) {
	flat, err := ParseNoteName("Ab5")
	require.NoError(t, err)
	sharp, err := ParseNoteName("G#5")
	require.NoError(t, err)

	assert.Equal(t, sharp.PitchClass, flat.PitchClass)
	assert.Equal(t, 5, flat.Octave)
	assert.Equal(t, 5, sharp.Octave)
}

func TestParseNoteNameInvalid(t *testing.T) {
	for _, in := range []string{"", "H4", "C", "C##4", "Cx4", "4C", "C4.5", "Ebb3", "A 4"} {
		_, err := ParseNoteName(in)
		assert.True(t, errors.Is(err, ErrInvalidNoteName), "input %q", in)
	}
}

func TestParsePitchClass(t *testing.T) {
	pc, err := ParsePitchClass("db")
	require.NoError(t, err)
	assert.Equal(t, CSharp, pc)

	_, err = ParsePitchClass("X")
	assert.True(t, errors.Is(err, ErrUnknownPitchClass))
}

func TestSemitoneDistance(t *testing.T) {
	for _, f := range []float64{55, 130.81, 261.63, 440, 1046.5} {
		assert.Equal(t, 0, SemitoneDistance(f, f))
		assert.Equal(t, 0, SemitoneDistance(f, 2*f))
	}

	c4, _ := MustParse("C4").Frequency()
	g4, _ := MustParse("G4").Frequency()
	f3, _ := MustParse("F3").Frequency()
	assert.Equal(t, 7, SemitoneDistance(c4, g4))
	assert.Equal(t, 5, SemitoneDistance(g4, c4))
	assert.Equal(t, 5, SemitoneDistance(c4, f3))
	assert.Equal(t, 0, SemitoneDistance(0, g4))
}

func TestDistanceAscends(t *testing.T) {
	assert.Equal(t, 7, Distance(C, G))
	assert.Equal(t, 5, Distance(G, C))
	assert.Equal(t, 0, Distance(E, E))
	assert.Equal(t, 11, Distance(C, B))
}

func TestIntervalName(t *testing.T) {
	assert.Equal(t, "pryma czysta", IntervalName(0))
	assert.Equal(t, "kwarta czysta", IntervalName(5))
	assert.Equal(t, "kwinta czysta", IntervalName(7))
	assert.Equal(t, IntervalName(0), IntervalName(12%12))
	assert.Equal(t, "13 półtonów", IntervalName(13))
}

func TestNaturalFolding(t *testing.T) {
	assert.Equal(t, C, CSharp.Natural())
	assert.Equal(t, F, FSharp.Natural())
	assert.Equal(t, E, E.Natural())
	assert.True(t, GSharp.Sharp())
	assert.False(t, B.Sharp())
}

func TestCents(t *testing.T) {
	assert.InDelta(t, 0, Cents(440), 1e-9)
	assert.InDelta(t, 10, Cents(440*math.Pow(2, 0.1/12)), 1e-6)
	assert.Equal(t, 0.0, Cents(0))
}
