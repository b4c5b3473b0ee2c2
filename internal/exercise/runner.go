package exercise

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/note"
	"github.com/0xlemi/earnote/internal/score"
)

// Callbacks are invoked from the listening goroutine.
type Callbacks struct {
	// OnNote sees every counted event with the pitch classes observed so far.
	OnNote func(event listen.NoteEvent, observed []note.PitchClass)
	// OnVerdict is called once, after listening has stopped.
	OnVerdict func(v Verdict)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// WithRunnerClock replaces time.Now as the session start source.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner drives one round at a time: it listens on the source, feeds the
// round's matcher and books the reward when the learner gets it right.
type Runner struct {
	stream *listen.Stream
	source audio.Source
	store  score.Store
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	matcher Matcher
	// live is the matcher still accepting notes; nil once cancelled.
	live    Matcher
	release func() bool
}

// NewRunner wires a stream to a source. store may be nil.
func NewRunner(stream *listen.Stream, source audio.Source, store score.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		stream: stream,
		source: source,
		store:  store,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin abandons any running round and starts listening for round. When the
// device cannot be opened the new matcher stays collecting and the error is
// returned. Cancelling ctx abandons the round.
func (r *Runner) Begin(ctx context.Context, round Round, cb Callbacks) error {
	r.Cancel()

	begun := r.now()
	m := round.NewMatcher(begun)
	log := r.log.With(zap.String("round", uuid.NewString()), zap.String("kind", string(round.Kind)))
	r.mu.Lock()
	r.matcher = m
	r.live = m
	r.mu.Unlock()

	r.stream.OnNote(func(event listen.NoteEvent) {
		// Frames captured for an earlier round may still be in flight.
		if event.At.Before(begun) {
			return
		}
		r.feed(m, log, event, cb)
	})
	if err := r.stream.Start(r.source); err != nil {
		r.detach(m)
		return fmt.Errorf("cannot listen for %s round: %w", round.Kind, err)
	}

	release := context.AfterFunc(ctx, func() {
		if r.detach(m) {
			log.Debug("round abandoned", zap.Error(ctx.Err()))
			r.stream.Stop()
		}
	})
	r.mu.Lock()
	r.release = release
	r.mu.Unlock()

	log.Info("round started", zap.String("answer", round.Answer))
	return nil
}

// Cancel stops listening. The current matcher, if any, keeps its state and
// ignores notes still in flight.
func (r *Runner) Cancel() {
	r.mu.Lock()
	release := r.release
	r.release = nil
	r.live = nil
	r.mu.Unlock()

	if release != nil {
		release()
	}
	r.stream.Stop()
}

// Matcher returns the matcher of the latest round, or nil before the first.
func (r *Runner) Matcher() Matcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matcher
}

// detach stops m from accepting notes and reports whether it was live.
func (r *Runner) detach(m Matcher) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live != m {
		return false
	}
	r.live = nil
	return true
}

func (r *Runner) feed(m Matcher, log *zap.Logger, event listen.NoteEvent, cb Callbacks) {
	r.mu.Lock()
	if r.live != m {
		r.mu.Unlock()
		return
	}
	state := m.Feed(event)
	if state.Terminal() {
		r.live = nil
	}
	r.mu.Unlock()

	if cb.OnNote != nil {
		cb.OnNote(event, m.Observed())
	}
	if !state.Terminal() {
		return
	}

	r.stream.Stop()
	v, err := m.Verdict()
	if err != nil {
		log.Error("terminal matcher without verdict", zap.Error(err))
		return
	}

	if v.State == Success && r.store != nil {
		total, err := r.store.Add(v.Reward)
		if err != nil {
			log.Warn("failed to save stars", zap.Error(err))
		} else {
			log.Info("stars awarded", zap.Int("reward", v.Reward), zap.Int("total", total))
		}
	}
	log.Info("round finished",
		zap.Stringer("state", v.State),
		zap.String("expected", v.Expected),
		zap.String("heard", v.Heard),
		zap.Duration("elapsed", v.Elapsed))

	if cb.OnVerdict != nil {
		cb.OnVerdict(v)
	}
}
