// Package exercise decides whether a stream of heard notes answers a round.
package exercise

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/note"
)

// Errors
var (
	// ErrInsufficientEvents means the matcher is still collecting.
	ErrInsufficientEvents = errors.New("not enough notes heard yet")
	// ErrInvalidTarget means the exercise data is malformed.
	ErrInvalidTarget = errors.New("invalid exercise target")
)

// State of a matching session
type State int

const (
	Collecting State = iota
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Success || s == Failure
}

// Verdict is the outcome of a finished session.
type Verdict struct {
	State    State
	Expected string
	Heard    string
	Message  string
	Observed []note.PitchClass
	Elapsed  time.Duration
	Reward   int // 1..3 on success, 0 on failure
}

// Matcher consumes note events until it reaches a verdict.
type Matcher interface {
	// Feed consumes one event and returns the resulting state. Events fed
	// after a terminal state are ignored.
	Feed(event listen.NoteEvent) State
	State() State
	// Observed returns a copy of the pitch classes that were counted.
	Observed() []note.PitchClass
	// Verdict returns ErrInsufficientEvents while still collecting.
	Verdict() (Verdict, error)
}

// RewardTiers maps completion time to stars: up to Fast earns 3, up to
// Medium earns 2, anything slower earns 1.
type RewardTiers struct {
	Fast   time.Duration
	Medium time.Duration
}

// Reward returns the star count for a successful attempt.
func (t RewardTiers) Reward(elapsed time.Duration) int {
	switch {
	case elapsed <= t.Fast:
		return 3
	case elapsed <= t.Medium:
		return 2
	default:
		return 1
	}
}

// scaled multiplies both cutoffs by n.
func (t RewardTiers) scaled(n int) RewardTiers {
	return RewardTiers{Fast: t.Fast * time.Duration(n), Medium: t.Medium * time.Duration(n)}
}

// Reward tiers per exercise type
var (
	SingleNoteTiers = RewardTiers{Fast: 3 * time.Second, Medium: 6 * time.Second}
	PerNoteTiers    = RewardTiers{Fast: 2 * time.Second, Medium: 4 * time.Second}
	PerChordTone    = RewardTiers{Fast: 2500 * time.Millisecond, Medium: 5 * time.Second}
	IntervalTiers   = RewardTiers{Fast: 4 * time.Second, Medium: 8 * time.Second}
)

// session holds the state shared by every matcher.
type session struct {
	mu       sync.Mutex
	start    time.Time
	tiers    RewardTiers
	expected string
	state    State
	observed []note.PitchClass
	verdict  Verdict
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) Observed() []note.PitchClass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]note.PitchClass(nil), s.observed...)
}

func (s *session) Verdict() (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		return Verdict{}, fmt.Errorf("%w: %d heard", ErrInsufficientEvents, len(s.observed))
	}
	v := s.verdict
	v.Observed = append([]note.PitchClass(nil), s.observed...)
	return v, nil
}

func (s *session) contains(pc note.PitchClass) bool {
	for _, o := range s.observed {
		if o == pc {
			return true
		}
	}
	return false
}

// finish records the terminal verdict. Callers hold s.mu.
func (s *session) finish(state State, at time.Time, heard, message string) State {
	elapsed := at.Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	s.state = state
	s.verdict = Verdict{
		State:    state,
		Expected: s.expected,
		Heard:    heard,
		Message:  message,
		Elapsed:  elapsed,
	}
	if state == Success {
		s.verdict.Reward = s.tiers.Reward(elapsed)
	}
	return state
}

func validate(targets ...note.PitchClass) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: no notes", ErrInvalidTarget)
	}
	for _, pc := range targets {
		if !pc.Valid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidTarget, note.ErrUnknownPitchClass, int(pc))
		}
	}
	return nil
}

func spell(pcs []note.PitchClass) string {
	parts := make([]string, len(pcs))
	for i, pc := range pcs {
		parts[i] = pc.String()
	}
	return strings.Join(parts, " ")
}

// SingleNoteMatcher judges the first heard note and then stops listening.
type SingleNoteMatcher struct {
	session
	target      note.PitchClass
	naturalOnly bool
}

// NewSingleNoteMatcher expects target. With naturalOnly, accidentals are
// ignored on both sides, so C# counts as C.
func NewSingleNoteMatcher(target note.PitchClass, naturalOnly bool, start time.Time) (*SingleNoteMatcher, error) {
	if err := validate(target); err != nil {
		return nil, err
	}
	expected := target.String()
	if naturalOnly {
		expected = target.Natural().String()
	}
	return &SingleNoteMatcher{
		session:     session{start: start, tiers: SingleNoteTiers, expected: expected},
		target:      target,
		naturalOnly: naturalOnly,
	}, nil
}

// Feed judges the first event only.
func (m *SingleNoteMatcher) Feed(event listen.NoteEvent) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return m.state
	}
	m.observed = append(m.observed, event.PitchClass)

	heard, want := event.PitchClass, m.target
	if m.naturalOnly {
		heard, want = heard.Natural(), want.Natural()
	}
	if heard == want {
		return m.finish(Success, event.At, heard.String(), fmt.Sprintf("Correct: %s", want))
	}
	return m.finish(Failure, event.At, heard.String(), fmt.Sprintf("Expected %s, heard %s", want, heard))
}

// OrderedSequenceMatcher waits for as many notes as the target has, then
// compares position by position.
type OrderedSequenceMatcher struct {
	session
	target []note.PitchClass
}

// NewOrderedSequenceMatcher expects target in order.
func NewOrderedSequenceMatcher(target []note.PitchClass, start time.Time) (*OrderedSequenceMatcher, error) {
	if err := validate(target...); err != nil {
		return nil, err
	}
	tiers := PerNoteTiers.scaled(len(target))
	return &OrderedSequenceMatcher{
		session: session{start: start, tiers: tiers, expected: spell(target)},
		target:  append([]note.PitchClass(nil), target...),
	}, nil
}

// Feed appends one note and judges once the sequence is complete.
func (m *OrderedSequenceMatcher) Feed(event listen.NoteEvent) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return m.state
	}
	m.observed = append(m.observed, event.PitchClass)
	if len(m.observed) < len(m.target) {
		return m.state
	}

	var wrong []string
	for i, want := range m.target {
		if m.observed[i] != want {
			wrong = append(wrong, fmt.Sprint(i+1))
		}
	}
	heard := spell(m.observed)
	if len(wrong) == 0 {
		return m.finish(Success, event.At, heard, fmt.Sprintf("Correct: %s", heard))
	}
	return m.finish(Failure, event.At, heard, fmt.Sprintf("Expected %s, heard %s (wrong at position %s)",
		m.expected, heard, strings.Join(wrong, ", ")))
}

// UnorderedSetMatcher succeeds once every target pitch class has been heard,
// in any order. Repeats are ignored; one distinct note too many fails.
type UnorderedSetMatcher struct {
	session
	target []note.PitchClass
}

// NewUnorderedSetMatcher expects the distinct pitch classes of target.
func NewUnorderedSetMatcher(target []note.PitchClass, start time.Time) (*UnorderedSetMatcher, error) {
	if err := validate(target...); err != nil {
		return nil, err
	}
	var distinct []note.PitchClass
	for _, pc := range target {
		dup := false
		for _, d := range distinct {
			dup = dup || d == pc
		}
		if !dup {
			distinct = append(distinct, pc)
		}
	}
	tiers := PerChordTone.scaled(len(distinct))
	return &UnorderedSetMatcher{
		session: session{start: start, tiers: tiers, expected: spell(distinct)},
		target:  distinct,
	}, nil
}

// Feed records a new distinct note and checks coverage.
func (m *UnorderedSetMatcher) Feed(event listen.NoteEvent) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() || m.contains(event.PitchClass) {
		return m.state
	}
	m.observed = append(m.observed, event.PitchClass)

	covered := true
	for _, pc := range m.target {
		covered = covered && m.contains(pc)
	}
	heard := spell(m.observed)
	if covered {
		return m.finish(Success, event.At, heard, fmt.Sprintf("Correct: %s", heard))
	}
	if len(m.observed) > len(m.target) {
		var missing []note.PitchClass
		for _, pc := range m.target {
			if !m.contains(pc) {
				missing = append(missing, pc)
			}
		}
		return m.finish(Failure, event.At, heard, fmt.Sprintf("Expected %s, heard %s (too many notes, missing %s)",
			m.expected, heard, spell(missing)))
	}
	return m.state
}

// IntervalMatcher compares the ascending distance between the first two
// distinct heard pitch classes with the target interval.
type IntervalMatcher struct {
	session
	semitones int
}

// NewIntervalMatcher derives the target distance from two reference notes.
// Unisons and octaves are rejected.
func NewIntervalMatcher(low, high note.Named, start time.Time) (*IntervalMatcher, error) {
	lowFreq, err := low.Frequency()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	highFreq, err := high.Frequency()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	semitones := note.SemitoneDistance(lowFreq, highFreq)
	if semitones == 0 {
		// Two distinct pitch classes are needed to judge.
		return nil, fmt.Errorf("%w: %s and %s share a pitch class", ErrInvalidTarget, low, high)
	}
	return &IntervalMatcher{
		session:   session{start: start, tiers: IntervalTiers, expected: note.IntervalName(semitones)},
		semitones: semitones,
	}, nil
}

// Semitones returns the expected distance.
func (m *IntervalMatcher) Semitones() int {
	return m.semitones
}

// Feed records distinct notes and judges on the second one.
func (m *IntervalMatcher) Feed(event listen.NoteEvent) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() || m.contains(event.PitchClass) {
		return m.state
	}
	m.observed = append(m.observed, event.PitchClass)
	if len(m.observed) < 2 {
		return m.state
	}

	first, second := m.observed[0], m.observed[1]
	distance := note.Distance(first, second)
	heard := note.IntervalName(distance)
	if distance == m.semitones {
		return m.finish(Success, event.At, heard, fmt.Sprintf("Correct: %s (%s → %s)", heard, first, second))
	}
	return m.finish(Failure, event.At, heard, fmt.Sprintf("Expected %s, heard %s (%s → %s)",
		m.expected, heard, first, second))
}
