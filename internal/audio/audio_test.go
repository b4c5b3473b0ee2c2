package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	rms, db := Level(nil)
	assert.Equal(t, float32(0), rms)
	assert.Equal(t, float32(-100), db)

	rms, db = Level(make([]float32, 512))
	assert.Equal(t, float32(0), rms)
	assert.Equal(t, float32(-100), db)

	full := make([]float32, 512)
	for i := range full {
		full[i] = 1
	}
	rms, db = Level(full)
	assert.InDelta(t, 1, rms, 1e-6)
	assert.InDelta(t, 0, db, 1e-4)

	half := make([]float32, 512)
	for i := range half {
		half[i] = -0.5
	}
	_, db = Level(half)
	assert.InDelta(t, -6.02, db, 0.01)
}

func TestParseWaveform(t *testing.T) {
	for in, want := range map[string]Waveform{"": Sine, "SINE": Sine, "square": Square, " triangle ": Triangle, "Sawtooth": Sawtooth} {
		got, err := ParseWaveform(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseWaveform("organ")
	assert.Error(t, err)
}

func TestRenderLengths(t *testing.T) {
	const rate = 8000
	tone := Tone{Frequency: 440, Duration: 250 * time.Millisecond, Volume: 1}

	sequence := Render(Phrase{{tone}, {tone}}, DefaultToneConfig(), rate)
	assert.Len(t, sequence, 4000)

	slow := DefaultToneConfig()
	slow.Slow = true
	assert.Len(t, Render(Phrase{{tone}}, slow, rate), 4000)

	long := tone
	long.Duration = time.Second
	chord := Render(Phrase{{tone, long}}, DefaultToneConfig(), rate)
	assert.Len(t, chord, 8000)

	assert.Empty(t, Render(nil, DefaultToneConfig(), rate))
}

func TestRenderStaysInRange(t *testing.T) {
	cfg := ToneConfig{Volume: 1}
	step := []Tone{
		{Frequency: 261.63, Duration: 100 * time.Millisecond, Volume: 1},
		{Frequency: 329.63, Duration: 100 * time.Millisecond, Volume: 1},
		{Frequency: 392.00, Duration: 100 * time.Millisecond, Volume: 1},
	}
	for _, w := range []Waveform{Sine, Square, Triangle, Sawtooth} {
		cfg.Waveform = w
		for _, s := range Render(Phrase{step}, cfg, 44100) {
			require.LessOrEqual(t, math.Abs(float64(s)), 1.0+1e-6, "waveform %s", w)
		}
	}
}

func TestRenderFadesInFromSilence(t *testing.T) {
	samples := Render(Phrase{{{Frequency: 440, Duration: 100 * time.Millisecond, Volume: 1}}}, ToneConfig{Waveform: Square, Volume: 1}, 44100)
	require.NotEmpty(t, samples)
	assert.Equal(t, float32(0), samples[0])
	_, db := Level(samples)
	assert.Greater(t, db, float32(-3))
}

func TestOscillate(t *testing.T) {
	assert.InDelta(t, 1, oscillate(Sine, 0.25), 1e-9)
	assert.Equal(t, 1.0, oscillate(Square, 0.1))
	assert.Equal(t, -1.0, oscillate(Square, 0.6))
	assert.InDelta(t, 1, oscillate(Triangle, 0.5), 1e-9)
	assert.InDelta(t, -1, oscillate(Triangle, 0), 1e-9)
	assert.InDelta(t, 0, oscillate(Sawtooth, 0.5), 1e-9)
}

func writeWAV(t *testing.T, samples []float32, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, 0, len(samples)*channels)
	for _, s := range samples {
		for ch := 0; ch < channels; ch++ {
			data = append(data, int(s*32767))
		}
	}

	encoder := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	return path
}

func TestWAVSourceReplaysFile(t *testing.T) {
	tone := Render(Phrase{{{Frequency: 440, Duration: 200 * time.Millisecond, Volume: 1}}}, ToneConfig{Volume: 0.8}, 16000)
	path := writeWAV(t, tone, 16000, 2)

	source, err := NewWAVSource(path, 1024, false)
	require.NoError(t, err)
	assert.Equal(t, 16000, source.SampleRate())
	assert.Equal(t, 1024, source.BufferSize())
	assert.InDelta(t, 0.2, source.Duration().Seconds(), 0.001)

	buffers := make(chan []float32, 16)
	require.NoError(t, source.Start(func(samples []float32) {
		buffers <- append([]float32(nil), samples...)
	}))

	select {
	case <-source.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
	close(buffers)

	count := 0
	for b := range buffers {
		assert.Len(t, b, 1024)
		count++
	}
	assert.Equal(t, 3200/1024, count)
	assert.NoError(t, source.Stop())
}

func TestWAVSourceStopHaltsReplay(t *testing.T) {
	path := writeWAV(t, make([]float32, 44100), 44100, 1)
	source, err := NewWAVSource(path, 512, true)
	require.NoError(t, err)

	require.NoError(t, source.Start(func([]float32) {}))
	require.NoError(t, source.Stop())
	require.NoError(t, source.Stop())

	select {
	case <-source.Done():
	case <-time.After(time.Second):
		t.Fatal("replay did not stop")
	}
}

func TestNewWAVSourceRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav"), 0o644))

	_, err := NewWAVSource(path, 1024, false)
	assert.Error(t, err)
}

func TestNewWAVSourceRejectsBadParameters(t *testing.T) {
	path := writeWAV(t, make([]float32, 4096), 16000, 1)
	for _, size := range []int{0, -1} {
		_, err := NewWAVSource(path, size, false)
		assert.Error(t, err, "buffer size %d", size)
	}

	noRate := writeWAV(t, make([]float32, 4096), 0, 1)
	_, err := NewWAVSource(noRate, 1024, false)
	assert.Error(t, err)
}
