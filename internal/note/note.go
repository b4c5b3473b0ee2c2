package note

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Errors
var (
	ErrUnknownPitchClass = errors.New("unknown pitch class")
	ErrInvalidNoteName   = errors.New("invalid note name")
)

// Reference tuning
const (
	ReferenceFrequency = 440.0 // A4
	ReferenceMIDI      = 69
)

// PitchClass is one of the 12 equivalence classes of pitch modulo octave.
// The zero value is C; use None for "no detectable pitch".
type PitchClass int

// Canonical pitch classes, sharps only.
const (
	C PitchClass = iota
	CSharp
	D
	DSharp
	E
	F
	FSharp
	G
	GSharp
	A
	ASharp
	B

	None PitchClass = -1
)

// All note names in chromatic order
var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClasses lists the 12 canonical classes in chromatic order.
func PitchClasses() []PitchClass {
	out := make([]PitchClass, 12)
	for i := range out {
		out[i] = PitchClass(i)
	}
	return out
}

// Valid reports whether pc is one of the 12 canonical classes.
func (pc PitchClass) Valid() bool {
	return pc >= C && pc <= B
}

func (pc PitchClass) String() string {
	if !pc.Valid() {
		return "-"
	}
	return names[pc]
}

// Sharp reports whether the class is spelled with an accidental.
func (pc PitchClass) Sharp() bool {
	return pc.Valid() && len(names[pc]) > 1
}

// Natural drops the accidental, so C# folds to C and F# to F.
func (pc PitchClass) Natural() PitchClass {
	if pc.Sharp() {
		return pc - 1
	}
	return pc
}

// Transpose moves the class by n semitones with wraparound.
func (pc PitchClass) Transpose(n int) PitchClass {
	if !pc.Valid() {
		return None
	}
	return PitchClass(mod12(int(pc) + n))
}

// ParsePitchClass accepts a letter with an optional '#' or 'b'.
func ParsePitchClass(text string) (PitchClass, error) {
	m := pitchClassPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return None, fmt.Errorf("%w: %q", ErrUnknownPitchClass, text)
	}
	return resolve(m[1], m[2]), nil
}

// Named is a pitch class in a specific octave. Octave 4 starts at MIDI 60.
type Named struct {
	PitchClass PitchClass
	Octave     int
}

func (n Named) String() string {
	return fmt.Sprintf("%s%d", n.PitchClass, n.Octave)
}

// MIDI returns the MIDI note number.
func (n Named) MIDI() int {
	return int(n.PitchClass) + (n.Octave+1)*12
}

// Frequency returns the equal-tempered frequency of the note.
func (n Named) Frequency() (float64, error) {
	return PitchClassFrequency(n.PitchClass, n.Octave)
}

var (
	pitchClassPattern = regexp.MustCompile(`^([A-Ga-g])([#b]?)$`)
	noteNamePattern   = regexp.MustCompile(`^([A-Ga-g])([#b]?)([+-]?\d+)$`)
)

// ParseNoteName parses names such as "C4", "f#3", "Ab5" or "B-1".
// Flats are normalized to the enharmonic sharp.
func ParseNoteName(text string) (Named, error) {
	m := noteNamePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Named{}, fmt.Errorf("%w: %q", ErrInvalidNoteName, text)
	}
	octave, err := strconv.Atoi(m[3])
	if err != nil {
		return Named{}, fmt.Errorf("%w: %q: %v", ErrInvalidNoteName, text, err)
	}
	return Named{PitchClass: resolve(m[1], m[2]), Octave: octave}, nil
}

// MustParse is ParseNoteName for static tables; it panics on malformed input.
func MustParse(text string) Named {
	n, err := ParseNoteName(text)
	if err != nil {
		panic(err)
	}
	return n
}

func resolve(letter, accidental string) PitchClass {
	pc := letterClass(strings.ToUpper(letter))
	switch accidental {
	case "#":
		pc = pc.Transpose(1)
	case "b":
		pc = pc.Transpose(-1)
	}
	return pc
}

func letterClass(letter string) PitchClass {
	for i, name := range names {
		if name == letter {
			return PitchClass(i)
		}
	}
	return None
}

// FrequencyToMIDI returns the nearest MIDI number for freq.
// ok is false when freq is not positive.
func FrequencyToMIDI(freq float64) (midi int, ok bool) {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return 0, false
	}
	return int(math.Round(12*math.Log2(freq/ReferenceFrequency) + ReferenceMIDI)), true
}

// FrequencyToPitchClass rounds freq to the nearest semitone and drops the octave.
func FrequencyToPitchClass(freq float64) PitchClass {
	midi, ok := FrequencyToMIDI(freq)
	if !ok {
		return None
	}
	return PitchClass(mod12(midi))
}

// FrequencyToNamed rounds freq to the nearest equal-tempered note.
func FrequencyToNamed(freq float64) (Named, bool) {
	midi, ok := FrequencyToMIDI(freq)
	if !ok {
		return Named{}, false
	}
	return Named{PitchClass: PitchClass(mod12(midi)), Octave: floorDiv(midi, 12) - 1}, true
}

// Cents returns the deviation of freq from its nearest semitone (-50 to +50).
func Cents(freq float64) float64 {
	if !(freq > 0) {
		return 0
	}
	semitones := 12 * math.Log2(freq/ReferenceFrequency)
	return 100 * (semitones - math.Round(semitones))
}

// PitchClassFrequency returns 440 * 2^((pc + (octave+1)*12 - 69) / 12).
func PitchClassFrequency(pc PitchClass, octave int) (float64, error) {
	if !pc.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownPitchClass, int(pc))
	}
	semitones := float64(int(pc) + (octave+1)*12 - ReferenceMIDI)
	return ReferenceFrequency * math.Pow(2, semitones/12), nil
}

// SemitoneDistance is the ascending pitch-class distance from a to b in [0,11].
// Octaves are discarded, so a and 2a are distance 0. Non-positive input yields 0.
func SemitoneDistance(a, b float64) int {
	ma, okA := FrequencyToMIDI(a)
	mb, okB := FrequencyToMIDI(b)
	if !okA || !okB {
		return 0
	}
	return mod12(mb - ma)
}

// Distance is the ascending distance from one pitch class to another.
func Distance(from, to PitchClass) int {
	return mod12(int(to) - int(from))
}

var intervalNames = [12]string{
	"pryma czysta",
	"sekunda mała",
	"sekunda wielka",
	"tercja mała",
	"tercja wielka",
	"kwarta czysta",
	"tryton",
	"kwinta czysta",
	"seksta mała",
	"seksta wielka",
	"septyma mała",
	"septyma wielka",
}

// IntervalName labels a semitone distance in [0,11].
func IntervalName(semitones int) string {
	if semitones < 0 || semitones >= len(intervalNames) {
		return fmt.Sprintf("%d półtonów", semitones)
	}
	return intervalNames[semitones]
}

func mod12(n int) int {
	return ((n % 12) + 12) % 12
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
