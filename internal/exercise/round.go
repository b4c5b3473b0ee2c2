package exercise

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/note"
)

// Kind of exercise
type Kind string

const (
	KindSingle   Kind = "single"
	KindSequence Kind = "sequence"
	KindChord    Kind = "chord"
	KindInterval Kind = "interval"
	KindMixed    Kind = "mixed"
)

// Kinds lists the concrete exercise kinds.
var Kinds = []Kind{KindSingle, KindSequence, KindChord, KindInterval}

// ParseKind accepts a kind name; the empty string means mixed.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	switch k {
	case "":
		return KindMixed, nil
	case KindSingle, KindSequence, KindChord, KindInterval, KindMixed:
		return k, nil
	default:
		return "", fmt.Errorf("unknown exercise kind %q", name)
	}
}

// Round is one exercise: what to ask, what to play and how to judge.
// It is immutable once built.
type Round struct {
	Kind   Kind
	Prompt string
	Answer string
	// Notes are the reference notes, played in turn or together.
	Notes        []note.Named
	Simultaneous bool

	newMatcher func(start time.Time) (Matcher, error)
}

// NewMatcher opens a fresh matching session starting at start.
func (r Round) NewMatcher(start time.Time) Matcher {
	m, err := r.newMatcher(start)
	if err != nil {
		// Targets are validated when the round is built.
		panic(err)
	}
	return m
}

// Phrase renders the reference notes for playback.
func (r Round) Phrase(duration time.Duration, volume float64) audio.Phrase {
	tones := make([]audio.Tone, 0, len(r.Notes))
	for _, n := range r.Notes {
		freq, err := n.Frequency()
		if err != nil {
			continue
		}
		tones = append(tones, audio.Tone{Frequency: freq, Duration: duration, Volume: volume})
	}
	if r.Simultaneous {
		return audio.Phrase{tones}
	}
	phrase := make(audio.Phrase, len(tones))
	for i, t := range tones {
		phrase[i] = []audio.Tone{t}
	}
	return phrase
}

func build(r Round, newMatcher func(start time.Time) (Matcher, error)) (Round, error) {
	if _, err := newMatcher(time.Time{}); err != nil {
		return Round{}, err
	}
	r.newMatcher = newMatcher
	return r, nil
}

func pitchClasses(notes []note.Named) []note.PitchClass {
	out := make([]note.PitchClass, len(notes))
	for i, n := range notes {
		out[i] = n.PitchClass
	}
	return out
}

func joinNotes(notes []note.Named) string {
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = n.String()
	}
	return strings.Join(parts, " ")
}

// NewSingleNoteRound asks the learner to sing or play n.
func NewSingleNoteRound(n note.Named, naturalOnly bool) (Round, error) {
	shown := n
	if naturalOnly {
		shown.PitchClass = n.PitchClass.Natural()
	}
	return build(Round{
		Kind:   KindSingle,
		Prompt: fmt.Sprintf("Sing or play %s", shown),
		Answer: shown.String(),
		Notes:  []note.Named{shown},
	}, func(start time.Time) (Matcher, error) {
		return NewSingleNoteMatcher(n.PitchClass, naturalOnly, start)
	})
}

// NewSequenceRound asks the learner to repeat a melody by ear.
func NewSequenceRound(notes []note.Named) (Round, error) {
	notes = append([]note.Named(nil), notes...)
	target := pitchClasses(notes)
	return build(Round{
		Kind:   KindSequence,
		Prompt: fmt.Sprintf("Listen, then repeat the %d-note melody", len(notes)),
		Answer: joinNotes(notes),
		Notes:  notes,
	}, func(start time.Time) (Matcher, error) {
		return NewOrderedSequenceMatcher(target, start)
	})
}

// NewChordRound asks for every note of a chord, in any order.
func NewChordRound(chord Chord) (Round, error) {
	notes := append([]note.Named(nil), chord.Notes...)
	target := pitchClasses(notes)
	return build(Round{
		Kind:         KindChord,
		Prompt:       fmt.Sprintf("Play the notes of %s, one at a time, in any order", chord.Name),
		Answer:       fmt.Sprintf("%s: %s", chord.Name, joinNotes(notes)),
		Notes:        notes,
		Simultaneous: true,
	}, func(start time.Time) (Matcher, error) {
		return NewUnorderedSetMatcher(target, start)
	})
}

// NewIntervalRound asks the learner to reproduce the interval low→high.
// Unisons and octaves are rejected.
func NewIntervalRound(pair IntervalPair) (Round, error) {
	return build(Round{
		Kind:   KindInterval,
		Prompt: "Listen, then sing or play the same interval from any note",
		Answer: fmt.Sprintf("%s (%s → %s)", pair.Name(), pair.Low, pair.High),
		Notes:  []note.Named{pair.Low, pair.High},
	}, func(start time.Time) (Matcher, error) {
		return NewIntervalMatcher(pair.Low, pair.High, start)
	})
}

// Chord is a named catalog entry.
type Chord struct {
	Name  string
	Notes []note.Named
}

// IntervalPair is an interval catalog entry.
type IntervalPair struct {
	Low  note.Named
	High note.Named
}

// Name returns the interval label of the pair.
func (p IntervalPair) Name() string {
	return note.IntervalName(note.Distance(p.Low.PitchClass, p.High.PitchClass))
}

// Catalog is the static exercise data.
type Catalog struct {
	Intervals []IntervalPair
	Chords    []Chord
}

// DefaultCatalog returns every interval within the octave above C4 and the
// common triads.
func DefaultCatalog() Catalog {
	c4 := note.MustParse("C4")
	var intervals []IntervalPair
	for semitones := 1; semitones < 12; semitones++ {
		midi := c4.MIDI() + semitones
		intervals = append(intervals, IntervalPair{
			Low:  c4,
			High: note.Named{PitchClass: note.PitchClass(midi % 12), Octave: midi/12 - 1},
		})
	}

	chord := func(name string, names ...string) Chord {
		notes := make([]note.Named, len(names))
		for i, n := range names {
			notes[i] = note.MustParse(n)
		}
		return Chord{Name: name, Notes: notes}
	}

	return Catalog{
		Intervals: intervals,
		Chords: []Chord{
			chord("C-dur", "C4", "E4", "G4"),
			chord("F-dur", "F4", "A4", "C5"),
			chord("G-dur", "G3", "B3", "D4"),
			chord("D-dur", "D4", "F#4", "A4"),
			chord("a-moll", "A3", "C4", "E4"),
			chord("d-moll", "D4", "F4", "A4"),
			chord("e-moll", "E4", "G4", "B4"),
		},
	}
}

// Settings are the difficulty parameters.
type Settings struct {
	SequenceLength int
	Octave         int
	NaturalOnly    bool
}

// DefaultSettings returns three-note melodies around middle C.
func DefaultSettings() Settings {
	return Settings{SequenceLength: 3, Octave: 4}
}

// Generator picks rounds at random from a catalog.
type Generator struct {
	rng      *rand.Rand
	catalog  Catalog
	settings Settings
}

// NewGenerator validates the catalog up front so a bad entry never surfaces
// mid-exercise.
func NewGenerator(catalog Catalog, settings Settings, rng *rand.Rand) (*Generator, error) {
	if settings.SequenceLength < 1 {
		return nil, fmt.Errorf("%w: sequence length %d", ErrInvalidTarget, settings.SequenceLength)
	}
	for _, pair := range catalog.Intervals {
		if _, err := NewIntervalRound(pair); err != nil {
			return nil, err
		}
	}
	for _, c := range catalog.Chords {
		if _, err := NewChordRound(c); err != nil {
			return nil, fmt.Errorf("chord %q: %w", c.Name, err)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng, catalog: catalog, settings: settings}, nil
}

// Next builds a round of the given kind; KindMixed picks one at random among
// the kinds the catalog can serve.
func (g *Generator) Next(kind Kind) (Round, error) {
	if kind == KindMixed || kind == "" {
		available := []Kind{KindSingle, KindSequence}
		if len(g.catalog.Chords) > 0 {
			available = append(available, KindChord)
		}
		if len(g.catalog.Intervals) > 0 {
			available = append(available, KindInterval)
		}
		kind = available[g.rng.Intn(len(available))]
	}

	switch kind {
	case KindSingle:
		return NewSingleNoteRound(g.randomNote(), g.settings.NaturalOnly)
	case KindSequence:
		notes := make([]note.Named, g.settings.SequenceLength)
		for i := range notes {
			notes[i] = g.randomNote()
		}
		return NewSequenceRound(notes)
	case KindChord:
		if len(g.catalog.Chords) == 0 {
			return Round{}, fmt.Errorf("%w: chord catalog is empty", ErrInvalidTarget)
		}
		return NewChordRound(g.catalog.Chords[g.rng.Intn(len(g.catalog.Chords))])
	case KindInterval:
		if len(g.catalog.Intervals) == 0 {
			return Round{}, fmt.Errorf("%w: interval catalog is empty", ErrInvalidTarget)
		}
		return NewIntervalRound(g.catalog.Intervals[g.rng.Intn(len(g.catalog.Intervals))])
	default:
		return Round{}, fmt.Errorf("unknown exercise kind %q", kind)
	}
}

func (g *Generator) randomNote() note.Named {
	classes := note.PitchClasses()
	if g.settings.NaturalOnly {
		classes = classes[:0]
		for _, pc := range note.PitchClasses() {
			if !pc.Sharp() {
				classes = append(classes, pc)
			}
		}
	}
	return note.Named{PitchClass: classes[g.rng.Intn(len(classes))], Octave: g.settings.Octave}
}
