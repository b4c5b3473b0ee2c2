package listen

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/note"
	"github.com/0xlemi/earnote/internal/pitch"
)

type fakeSource struct {
	mu      sync.Mutex
	handler audio.Handler
	err     error
	starts  int
	stops   int
	active  bool
}

func (f *fakeSource) Start(handler audio.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.handler = handler
	f.starts++
	f.active = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.active = false
	return nil
}

func (f *fakeSource) SampleRate() int { return 44100 }
func (f *fakeSource) BufferSize() int { return 2048 }

func (f *fakeSource) push(samples []float32) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(samples)
}

func (f *fakeSource) counts() (starts, stops int, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.active
}

func tone(name string) []float32 {
	freq, err := note.MustParse(name).Frequency()
	if err != nil {
		panic(err)
	}
	samples := make([]float32, 2048)
	for i := range samples {
		samples[i] = float32(0.6 * math.Sin(2*math.Pi*freq*float64(i)/44100))
	}
	return samples
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func tonal(freq float64) pitch.Result {
	return pitch.Result{Frequency: freq, Clarity: 0.95}
}

func TestAcceptDebouncesWithinInterval(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig())
	var events []NoteEvent
	s.OnNote(func(e NoteEvent) { events = append(events, e) })

	t0 := time.Now()
	_, ok := s.Accept(tonal(440), t0)
	assert.True(t, ok)
	_, ok = s.Accept(tonal(440), t0.Add(100*time.Millisecond))
	assert.False(t, ok)

	require.Len(t, events, 1)
	assert.Equal(t, note.A, events[0].PitchClass)
	assert.Equal(t, t0, events[0].At)
}

func TestAcceptEmitsAfterInterval(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig())
	var events []NoteEvent
	s.OnNote(func(e NoteEvent) { events = append(events, e) })

	t0 := time.Now()
	s.Accept(tonal(440), t0)
	s.Accept(tonal(440), t0.Add(300*time.Millisecond))

	require.Len(t, events, 2)
	assert.Equal(t, events[0].PitchClass, events[1].PitchClass)
}

func TestAcceptDebounceIsGlobal(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig())

	t0 := time.Now()
	_, ok := s.Accept(tonal(440), t0)
	require.True(t, ok)

	// A different pitch class inside the window is still suppressed.
	_, ok = s.Accept(tonal(261.63), t0.Add(200*time.Millisecond))
	assert.False(t, ok)

	// Exactly one interval later is accepted.
	e, ok := s.Accept(tonal(261.63), t0.Add(250*time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, note.C, e.PitchClass)
}

func TestAcceptGatesOnClarityAndPitch(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DetectionConfig{ClarityThreshold: 0.85})
	t0 := time.Now()

	_, ok := s.Accept(pitch.Result{Frequency: 440, Clarity: 0.84}, t0)
	assert.False(t, ok)
	_, ok = s.Accept(pitch.Result{Clarity: 0.99}, t0)
	assert.False(t, ok)

	// Rejected frames do not start the debounce window.
	_, ok = s.Accept(pitch.Result{Frequency: 440, Clarity: 0.85}, t0.Add(time.Millisecond))
	assert.True(t, ok)
}

func TestAcceptZeroDebounce(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DetectionConfig{ClarityThreshold: 0.5})
	t0 := time.Now()
	for i := 0; i < 3; i++ {
		_, ok := s.Accept(tonal(440), t0)
		assert.True(t, ok)
	}
}

func TestProcessReportsLevels(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig())
	var dbs []float32
	s.OnLevel(func(_, db float32) { dbs = append(dbs, db) })

	e, ok := s.Process(tone("E4"), 44100, time.Now())
	require.True(t, ok)
	assert.Equal(t, note.E, e.PitchClass)

	_, ok = s.Process(make([]float32, 2048), 44100, time.Now().Add(time.Second))
	assert.False(t, ok)

	require.Len(t, dbs, 2)
	assert.Greater(t, dbs[0], float32(-10))
	assert.Equal(t, float32(-100), dbs[1])
}

func TestStartReportsUnavailableSource(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig(), WithLogger(zaptest.NewLogger(t)))
	source := &fakeSource{err: fmt.Errorf("%w: permission denied", audio.ErrAudioUnavailable)}

	err := s.Start(source)
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrAudioUnavailable))
	assert.False(t, s.Listening())

	// Stop after a failed start is harmless.
	s.Stop()
}

func TestStreamDeliversEventsInOrderAndStopsFromObserver(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig(),
		WithClock(steppingClock(300*time.Millisecond)))
	source := &fakeSource{}

	events := make(chan NoteEvent, 8)
	seen := 0
	s.OnNote(func(e NoteEvent) {
		events <- e
		seen++
		if seen == 3 {
			s.Stop()
			s.Stop()
		}
	})

	require.NoError(t, s.Start(source))
	assert.True(t, s.Listening())

	for _, name := range []string{"C4", "E4", "G4"} {
		source.push(tone(name))
	}

	var got []note.PitchClass
	for i := 0; i < 3; i++ {
		select {
		case e := <-events:
			got = append(got, e.PitchClass)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	assert.Equal(t, []note.PitchClass{note.C, note.E, note.G}, got)

	require.Eventually(t, func() bool { return !s.Listening() }, time.Second, 10*time.Millisecond)
	starts, stops, active := source.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.False(t, active)

	// Buffers after Stop are ignored.
	source.push(tone("A4"))
	select {
	case e := <-events:
		t.Fatalf("unexpected event after stop: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRestartReleasesPreviousSource(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig())
	first, second := &fakeSource{}, &fakeSource{}

	require.NoError(t, s.Start(first))
	require.NoError(t, s.Start(second))

	_, stops, active := first.counts()
	assert.Equal(t, 1, stops)
	assert.False(t, active)

	starts, _, active := second.counts()
	assert.Equal(t, 1, starts)
	assert.True(t, active)

	s.Stop()
	s.Stop()
	_, stops, _ = second.counts()
	assert.Equal(t, 1, stops)
}

func TestPendingDrainsAfterAnalysis(t *testing.T) {
	s := NewStream(pitch.NewNSDFEstimator(), DefaultDetectionConfig(),
		WithClock(steppingClock(300*time.Millisecond)), WithQueueSize(16))
	source := &fakeSource{}

	var mu sync.Mutex
	var got []note.PitchClass
	s.OnNote(func(e NoteEvent) {
		mu.Lock()
		got = append(got, e.PitchClass)
		mu.Unlock()
	})
	require.NoError(t, s.Start(source))
	defer s.Stop()

	for _, name := range []string{"D4", "F4", "A4", "C5"} {
		source.push(tone(name))
	}
	require.Eventually(t, func() bool { return s.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []note.PitchClass{note.D, note.F, note.A, note.C}, got)
}

// gatedEstimator holds the capture loop inside Estimate until released.
type gatedEstimator struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedEstimator() *gatedEstimator {
	return &gatedEstimator{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedEstimator) Estimate(samples []float32, sampleRate int) pitch.Result {
	g.entered <- struct{}{}
	<-g.release
	return pitch.NewNSDFEstimator().Estimate(samples, sampleRate)
}

func (g *gatedEstimator) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never started analyzing")
	}
}

func TestStopDropsFrameBeingAnalyzed(t *testing.T) {
	gate := newGatedEstimator()
	s := NewStream(gate, DefaultDetectionConfig(), WithLogger(zaptest.NewLogger(t)))
	source := &fakeSource{}

	var mu sync.Mutex
	var got []note.PitchClass
	s.OnNote(func(e NoteEvent) {
		mu.Lock()
		got = append(got, e.PitchClass)
		mu.Unlock()
	})
	require.NoError(t, s.Start(source))

	source.push(tone("A4"))
	gate.waitEntered(t)
	s.Stop()
	close(gate.release)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestStartWaitsForPreviousLoop(t *testing.T) {
	gate := newGatedEstimator()
	s := NewStream(gate, DefaultDetectionConfig(), WithLogger(zaptest.NewLogger(t)))
	first, second := &fakeSource{}, &fakeSource{}

	require.NoError(t, s.Start(first))
	first.push(tone("A4"))
	gate.waitEntered(t)

	var mu sync.Mutex
	var got []note.PitchClass
	s.OnNote(func(e NoteEvent) {
		mu.Lock()
		got = append(got, e.PitchClass)
		mu.Unlock()
	})

	started := make(chan error, 1)
	go func() { started <- s.Start(second) }()

	select {
	case <-started:
		t.Fatal("Start returned while the previous loop was analyzing")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start never returned")
	}
	defer s.Stop()

	mu.Lock()
	assert.Empty(t, got, "frame of the first capture reached the new observer")
	mu.Unlock()

	second.push(tone("D4"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, note.D, got[0])
	mu.Unlock()
}

func TestStopClearsQueuedFrames(t *testing.T) {
	gate := newGatedEstimator()
	s := NewStream(gate, DefaultDetectionConfig(), WithQueueSize(8))
	source := &fakeSource{}
	require.NoError(t, s.Start(source))

	for _, name := range []string{"C4", "E4", "G4"} {
		source.push(tone(name))
	}
	gate.waitEntered(t)
	assert.Equal(t, 3, s.Pending())

	s.mu.Lock()
	stopped := s.current
	s.mu.Unlock()

	s.Stop()
	assert.Zero(t, s.Pending())
	close(gate.release)

	select {
	case <-stopped.done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit")
	}
	assert.Zero(t, stopped.pending.Load())

	// A restart sees none of the old frames.
	require.NoError(t, s.Start(source))
	defer s.Stop()
	assert.Zero(t, s.Pending())
}
