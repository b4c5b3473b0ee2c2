package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/note"
)

func TestPhraseFor(t *testing.T) {
	tone := audio.Tone{Duration: time.Second, Volume: 1}

	melody, err := phraseFor([]string{"A4", "C5"}, false, tone)
	require.NoError(t, err)
	require.Len(t, melody, 2)
	assert.InDelta(t, 440, melody[0][0].Frequency, 1e-9)
	assert.Equal(t, time.Second, melody[1][0].Duration)

	chord, err := phraseFor([]string{"C4", "E4", "G4"}, true, tone)
	require.NoError(t, err)
	require.Len(t, chord, 1)
	assert.Len(t, chord[0], 3)

	_, err = phraseFor([]string{"C4", "X9"}, false, tone)
	assert.True(t, errors.Is(err, note.ErrInvalidNoteName))
}

func TestBufferClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := bufferClock(start, 50*time.Millisecond)

	assert.Equal(t, start, clock())
	assert.Equal(t, start.Add(50*time.Millisecond), clock())
	assert.Equal(t, start.Add(100*time.Millisecond), clock())
}

func TestFormatEvent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	line := formatEvent(listen.NoteEvent{
		PitchClass: note.A,
		Frequency:  440,
		Clarity:    0.97,
		At:         start.Add(1500 * time.Millisecond),
	}, start)

	assert.Contains(t, line, "1.500s")
	assert.Contains(t, line, "440.00 Hz")
	assert.Contains(t, line, "+0.0 cents")
	assert.Contains(t, line, "clarity 0.97")
}
