// Package ui is the interactive practice screen.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/exercise"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/note"
	"github.com/0xlemi/earnote/internal/score"
)

// Constants for UI behavior
const (
	tickInterval = 100 * time.Millisecond

	// How often the level meter is refreshed
	levelInterval = 200 * time.Millisecond

	meterWidth = 30
)

// Listener runs one exercise round against the microphone.
type Listener interface {
	Begin(ctx context.Context, round exercise.Round, cb exercise.Callbacks) error
	Cancel()
}

// Deps are the collaborators of the practice screen.
type Deps struct {
	Generator    *exercise.Generator
	Listener     Listener
	Player       audio.Player
	Store        score.Store
	Tone         audio.ToneConfig
	NoteDuration time.Duration
	Kind         exercise.Kind
}

// TickMsg represents a timer tick
type TickMsg time.Time

// RoundMsg carries a freshly generated round.
type RoundMsg struct {
	Round exercise.Round
	Err   error
}

// ListeningMsg means the microphone is open for the current round.
type ListeningMsg struct {
	At time.Time
}

// AudioErrorMsg means the microphone could not be opened.
type AudioErrorMsg struct {
	Err error
}

// NoteMsg is a counted note and the progress so far.
type NoteMsg struct {
	Event    listen.NoteEvent
	Observed []note.PitchClass
}

// VerdictMsg ends the round.
type VerdictMsg exercise.Verdict

// LevelMsg is the input level in dBFS.
type LevelMsg struct {
	RMS float32
	DB  float32
}

// PlayedMsg is sent when reference playback ends.
type PlayedMsg struct {
	Err error
}

// StarsMsg carries the stored star total.
type StarsMsg struct {
	Total int
	Err   error
}

// Model represents the UI state
type Model struct {
	deps   Deps
	msgs   chan tea.Msg
	ctx    context.Context
	cancel context.CancelFunc

	round     exercise.Round
	hasRound  bool
	listening bool
	playing   bool
	started   time.Time
	now       time.Time

	observed []note.PitchClass
	lastNote *listen.NoteEvent
	verdict  *exercise.Verdict
	stars    int
	db       float32
	status   string
	err      error

	width  int
	height int
}

// NewModel creates a new UI model
func NewModel(deps Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		deps:   deps,
		msgs:   make(chan tea.Msg, 64),
		ctx:    ctx,
		cancel: cancel,
		db:     -100,
		now:    time.Now(),
	}
}

// LevelObserver returns a level callback for the note stream that feeds the
// meter at most every levelInterval.
func (m Model) LevelObserver() listen.LevelObserver {
	var last time.Time
	return func(rms, db float32) {
		if time.Since(last) < levelInterval {
			return
		}
		last = time.Now()
		select {
		case m.msgs <- LevelMsg{RMS: rms, DB: db}:
		default:
		}
	}
}

// Init initializes the UI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.wait(), m.nextRound(), m.loadStars())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// wait delivers the next message posted by the listening goroutine.
func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.msgs:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) post(msg tea.Msg) {
	select {
	case m.msgs <- msg:
	case <-m.ctx.Done():
	}
}

func (m Model) nextRound() tea.Cmd {
	return func() tea.Msg {
		round, err := m.deps.Generator.Next(m.deps.Kind)
		return RoundMsg{Round: round, Err: err}
	}
}

func (m Model) loadStars() tea.Cmd {
	return func() tea.Msg {
		if m.deps.Store == nil {
			return StarsMsg{}
		}
		total, err := m.deps.Store.Total()
		return StarsMsg{Total: total, Err: err}
	}
}

func (m Model) listen() tea.Cmd {
	round := m.round
	return func() tea.Msg {
		err := m.deps.Listener.Begin(m.ctx, round, exercise.Callbacks{
			OnNote: func(event listen.NoteEvent, observed []note.PitchClass) {
				m.post(NoteMsg{Event: event, Observed: observed})
			},
			OnVerdict: func(v exercise.Verdict) {
				m.post(VerdictMsg(v))
			},
		})
		if err != nil {
			return AudioErrorMsg{Err: err}
		}
		return ListeningMsg{At: time.Now()}
	}
}

func (m Model) play() tea.Cmd {
	phrase := m.round.Phrase(m.deps.NoteDuration, 1)
	return func() tea.Msg {
		return PlayedMsg{Err: m.deps.Player.Play(m.ctx, phrase, m.deps.Tone)}
	}
}

// Update updates the UI model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.now = time.Time(msg)
		return m, tick()

	case RoundMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.round = msg.Round
		m.hasRound = true
		m.resetAttempt()
		m.status = "Press p to hear it, space when you are ready"

	case ListeningMsg:
		m.listening = true
		m.started = msg.At
		m.err = nil
		m.status = "Listening..."

	case AudioErrorMsg:
		m.listening = false
		m.err = msg.Err
		m.status = "Cannot listen: check the microphone"

	case NoteMsg:
		event := msg.Event
		m.lastNote = &event
		m.observed = msg.Observed
		return m, m.wait()

	case VerdictMsg:
		v := exercise.Verdict(msg)
		m.verdict = &v
		m.listening = false
		m.status = "Press n for the next round, space to try again"
		return m, tea.Batch(m.wait(), m.loadStars())

	case LevelMsg:
		m.db = msg.DB
		return m, m.wait()

	case PlayedMsg:
		m.playing = false
		if msg.Err != nil {
			m.err = msg.Err
			m.status = "Cannot play the reference"
		}

	case StarsMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.stars = msg.Total
	}

	return m, nil
}

func (m *Model) resetAttempt() {
	m.listening = false
	m.observed = nil
	m.lastNote = nil
	m.verdict = nil
	m.err = nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.deps.Listener.Cancel()
		m.cancel()
		return m, tea.Quit

	case " ":
		if !m.hasRound || m.playing {
			return m, nil
		}
		m.resetAttempt()
		m.status = "Opening microphone..."
		return m, m.listen()

	case "p":
		if !m.hasRound || m.playing || m.deps.Player == nil {
			return m, nil
		}
		// The reference must not be heard as an answer.
		m.deps.Listener.Cancel()
		m.listening = false
		m.playing = true
		m.status = "Playing..."
		return m, m.play()

	case "n":
		m.deps.Listener.Cancel()
		m.listening = false
		return m, m.nextRound()
	}
	return m, nil
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("EarNote - Ear Trainer"))
	b.WriteString("  ")
	b.WriteString(stars(1))
	b.WriteString(infoStyle.Render(fmt.Sprintf(" %d", m.stars)))
	b.WriteString("\n")

	if !m.hasRound {
		if m.err != nil {
			b.WriteString(failureStyle.Render(m.err.Error()))
		} else {
			b.WriteString(infoStyle.Render("Preparing exercise..."))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(infoStyle.Render(string(m.round.Kind)))
	b.WriteString("\n")
	b.WriteString(promptStyle.Render(m.round.Prompt))
	b.WriteString("\n\n")

	if m.lastNote != nil {
		b.WriteString(renderNote(m.lastNote.PitchClass))
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("Frequency: %.2f Hz | Cents: %+.1f",
			m.lastNote.Frequency, note.Cents(m.lastNote.Frequency))))
		b.WriteString("\n")
	}

	if len(m.observed) > 0 {
		heard := make([]string, len(m.observed))
		for i, pc := range m.observed {
			heard[i] = renderSmall(pc)
		}
		b.WriteString(infoStyle.Render("Heard: "))
		b.WriteString(strings.Join(heard, " "))
		b.WriteString("\n")
	}

	if m.verdict != nil {
		b.WriteString("\n")
		if m.verdict.State == exercise.Success {
			b.WriteString(successStyle.Render(m.verdict.Message))
			b.WriteString(" ")
			b.WriteString(stars(m.verdict.Reward))
		} else {
			b.WriteString(failureStyle.Render(m.verdict.Message))
			b.WriteString("\n")
			b.WriteString(infoStyle.Render("Answer: " + m.round.Answer))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.listening {
		elapsed := m.now.Sub(m.started)
		if elapsed < 0 {
			elapsed = 0
		}
		b.WriteString(infoStyle.Render(fmt.Sprintf("%s %.1fs ", meter(m.db, meterWidth), elapsed.Seconds())))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(infoStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(failureStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(infoStyle.Render("space listen • p play • n next • q quit"))
	return b.String()
}
