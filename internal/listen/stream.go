// Package listen turns live audio into a sparse stream of note events.
package listen

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/note"
	"github.com/0xlemi/earnote/internal/pitch"
)

// Defaults for DetectionConfig
const (
	DefaultClarityThreshold = 0.85
	DefaultDebounceInterval = 250 * time.Millisecond
)

// DetectionConfig governs how aggressively estimator output is filtered.
type DetectionConfig struct {
	ClarityThreshold float64       // 0..1
	DebounceInterval time.Duration // >= 0, global across pitch classes
}

// DefaultDetectionConfig returns the stock thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		ClarityThreshold: DefaultClarityThreshold,
		DebounceInterval: DefaultDebounceInterval,
	}
}

// NoteEvent is an immutable note onset.
type NoteEvent struct {
	PitchClass note.PitchClass
	Frequency  float64
	Clarity    float64
	At         time.Time
}

// Observer receives note events in capture order. It may call Stream.Stop.
type Observer func(NoteEvent)

// LevelObserver receives the level of every analyzed buffer.
type LevelObserver func(rms, db float32)

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Stream) {
		s.log = log
	}
}

// WithClock replaces time.Now as the frame timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) {
		s.now = now
	}
}

// WithQueueSize sets how many captured buffers may wait for analysis before
// new ones are dropped.
func WithQueueSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

type frame struct {
	samples []float32
	at      time.Time
}

// session is one capture loop. A Stream owns at most one at a time.
type session struct {
	source  audio.Source
	frames  chan frame
	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	pending atomic.Int64
}

// drain discards frames the loop will never analyze.
func (sess *session) drain() {
	for {
		select {
		case <-sess.frames:
			sess.pending.Add(-1)
		default:
			return
		}
	}
}

// Stream samples an audio source, estimates pitch per buffer and emits
// debounced note events to its observer.
type Stream struct {
	estimator pitch.Estimator
	config    DetectionConfig
	log       *zap.Logger
	now       func() time.Time
	queueSize int

	mu         sync.Mutex
	current    *session
	last       *session
	observer   Observer
	levels     LevelObserver
	lastEmit   time.Time
	hasEmitted bool

	// dispatching is set while a loop goroutine is inside the note observer.
	dispatching atomic.Pointer[session]
}

// NewStream creates a stopped stream.
func NewStream(estimator pitch.Estimator, config DetectionConfig, opts ...Option) *Stream {
	s := &Stream{
		estimator: estimator,
		config:    config,
		log:       zap.NewNop(),
		now:       time.Now,
		queueSize: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnNote registers the note observer, replacing any previous one.
func (s *Stream) OnNote(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = observer
}

// OnLevel registers the level observer, replacing any previous one.
func (s *Stream) OnLevel(observer LevelObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = observer
}

// Config returns the detection thresholds in use.
func (s *Stream) Config() DetectionConfig {
	return s.config
}

// Start stops any running capture and waits for its loop to exit, then
// begins pulling buffers from source. Called from the note observer, it does
// not wait for the loop that is running that observer. Device failures are
// returned wrapped in audio.ErrAudioUnavailable and leave the stream stopped.
func (s *Stream) Start(source audio.Source) error {
	s.Stop()
	s.waitPrevious()

	sess := &session{
		source: source,
		frames: make(chan frame, s.queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.current = sess
	s.hasEmitted = false
	s.mu.Unlock()

	if err := source.Start(func(samples []float32) { s.capture(sess, samples) }); err != nil {
		s.mu.Lock()
		if s.current == sess {
			s.current = nil
		}
		s.mu.Unlock()
		close(sess.done)
		s.log.Warn("cannot start listening", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.last = sess
	s.mu.Unlock()

	go s.loop(sess)
	s.log.Debug("listening started",
		zap.Float64("clarity_threshold", s.config.ClarityThreshold),
		zap.Duration("debounce", s.config.DebounceInterval))
	return nil
}

// Stop halts capture and releases the source. It is idempotent and may be
// called from within an Observer. Once it returns, no buffer of the stopped
// capture reaches the observer; only a delivery already underway completes.
func (s *Stream) Stop() {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil || !sess.stopped.CompareAndSwap(false, true) {
		return
	}

	close(sess.quit)
	if err := sess.source.Stop(); err != nil {
		s.log.Warn("error releasing audio source", zap.Error(err))
	}
	s.log.Debug("listening stopped")
}

// Listening reports whether a capture loop is active.
func (s *Stream) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Pending returns how many buffers of the running capture are queued or
// being analyzed.
func (s *Stream) Pending() int {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return 0
	}
	return int(sess.pending.Load())
}

// waitPrevious blocks until the last stopped loop has exited, unless that
// loop is inside its observer. Analysis never runs while dispatching is set,
// so a loop found there has no frame left to deliver.
func (s *Stream) waitPrevious() {
	s.mu.Lock()
	prev := s.last
	s.mu.Unlock()

	if prev == nil || s.dispatching.Load() == prev {
		return
	}
	<-prev.done
}

// capture runs on the device thread; it copies and enqueues without blocking.
func (s *Stream) capture(sess *session, samples []float32) {
	if sess.stopped.Load() {
		return
	}
	buf := make([]float32, len(samples))
	copy(buf, samples)

	sess.pending.Add(1)
	select {
	case sess.frames <- frame{samples: buf, at: s.now()}:
	default:
		sess.pending.Add(-1)
		s.log.Debug("dropping audio buffer, analysis is behind")
	}
}

func (s *Stream) loop(sess *session) {
	defer close(sess.done)
	defer sess.drain()

	for {
		select {
		case <-sess.quit:
			return
		case f := <-sess.frames:
			if !sess.stopped.Load() {
				s.process(sess, f.samples, sess.source.SampleRate(), f.at)
			}
			sess.pending.Add(-1)
		}
	}
}

// Process analyzes one buffer captured at the given time and emits a
// NoteEvent if it passes the clarity gate and the debounce interval.
func (s *Stream) Process(samples []float32, sampleRate int, at time.Time) (NoteEvent, bool) {
	return s.process(nil, samples, sampleRate, at)
}

// Accept applies the clarity gate and global debounce to one estimator
// result and notifies the observer when it yields an event.
func (s *Stream) Accept(result pitch.Result, at time.Time) (NoteEvent, bool) {
	return s.accept(nil, result, at)
}

// process and accept drop the frame when sess is no longer the running
// capture. A nil sess is a direct call and is never dropped.
func (s *Stream) process(sess *session, samples []float32, sampleRate int, at time.Time) (NoteEvent, bool) {
	result := s.estimator.Estimate(samples, sampleRate)
	if sess != nil && sess.stopped.Load() {
		return NoteEvent{}, false
	}

	s.mu.Lock()
	levels := s.levels
	s.mu.Unlock()
	if levels != nil {
		levels(audio.Level(samples))
	}

	return s.accept(sess, result, at)
}

func (s *Stream) accept(sess *session, result pitch.Result, at time.Time) (NoteEvent, bool) {
	if result.Clarity < s.config.ClarityThreshold {
		return NoteEvent{}, false
	}
	pc := result.PitchClass()
	if pc == note.None {
		return NoteEvent{}, false
	}

	s.mu.Lock()
	if sess != nil && (sess.stopped.Load() || s.current != sess) {
		s.mu.Unlock()
		s.log.Debug("dropping note from stopped capture", zap.String("pitch_class", pc.String()))
		return NoteEvent{}, false
	}
	if s.hasEmitted && at.Sub(s.lastEmit) < s.config.DebounceInterval {
		s.mu.Unlock()
		return NoteEvent{}, false
	}
	s.lastEmit = at
	s.hasEmitted = true
	observer := s.observer
	s.mu.Unlock()

	event := NoteEvent{
		PitchClass: pc,
		Frequency:  result.Frequency,
		Clarity:    result.Clarity,
		At:         at,
	}
	s.log.Debug("note detected",
		zap.String("pitch_class", pc.String()),
		zap.Float64("frequency", result.Frequency),
		zap.Float64("clarity", result.Clarity))

	if observer != nil {
		if sess != nil {
			s.dispatching.Store(sess)
			defer s.dispatching.CompareAndSwap(sess, nil)
		}
		observer(event)
	}
	return event, true
}
