// Package config loads earnote settings from viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/exercise"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/note"
	"github.com/0xlemi/earnote/internal/pitch"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Detection DetectionConfig `mapstructure:"detection"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Exercise  ExerciseConfig  `mapstructure:"exercise"`
	Score     ScoreConfig     `mapstructure:"score"`
	Log       LogConfig       `mapstructure:"log"`

	waveform audio.Waveform
	catalog  exercise.Catalog
}

// DetectionConfig contains pitch detection settings
type DetectionConfig struct {
	ClarityThreshold float64       `mapstructure:"clarity_threshold"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
	Estimator        string        `mapstructure:"estimator"`
}

// AudioConfig contains capture settings
type AudioConfig struct {
	SampleRate    int     `mapstructure:"sample_rate"`
	BufferSize    int     `mapstructure:"buffer_size"`
	Channels      int     `mapstructure:"channels"`
	Amplification float64 `mapstructure:"amplification"`
}

// PlaybackConfig contains reference tone settings
type PlaybackConfig struct {
	Waveform     string        `mapstructure:"waveform"`
	Slow         bool          `mapstructure:"slow"`
	Volume       float64       `mapstructure:"volume"`
	NoteDuration time.Duration `mapstructure:"note_duration"`
}

// ExerciseConfig contains difficulty settings and the exercise catalogs.
// Empty catalogs fall back to exercise.DefaultCatalog.
type ExerciseConfig struct {
	SequenceLength int           `mapstructure:"sequence_length"`
	Octave         int           `mapstructure:"octave"`
	NaturalOnly    bool          `mapstructure:"natural_only"`
	Intervals      [][]string    `mapstructure:"intervals"`
	Chords         []ChordConfig `mapstructure:"chords"`
}

// ChordConfig is one chord catalog entry.
type ChordConfig struct {
	Name  string   `mapstructure:"name"`
	Notes []string `mapstructure:"notes"`
}

// ScoreConfig points at the stars file
type ScoreConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("detection.clarity_threshold", listen.DefaultClarityThreshold)
	v.SetDefault("detection.debounce_interval", listen.DefaultDebounceInterval)
	v.SetDefault("detection.estimator", "nsdf")

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.buffer_size", 2048)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.amplification", 1.0)

	v.SetDefault("playback.waveform", "sine")
	v.SetDefault("playback.slow", false)
	v.SetDefault("playback.volume", 0.5)
	v.SetDefault("playback.note_duration", 600*time.Millisecond)

	settings := exercise.DefaultSettings()
	v.SetDefault("exercise.sequence_length", settings.SequenceLength)
	v.SetDefault("exercise.octave", settings.Octave)
	v.SetDefault("exercise.natural_only", settings.NaturalOnly)

	home, _ := os.UserHomeDir()
	v.SetDefault("score.file", filepath.Join(home, ".local", "share", "earnote", "score.yaml"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: unable to decode: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and parses every note name in the catalogs.
func (c *Config) Validate() error {
	d := c.Detection
	if d.ClarityThreshold < 0 || d.ClarityThreshold > 1 {
		return invalid("detection.clarity_threshold must be between 0 and 1, got %v", d.ClarityThreshold)
	}
	if d.DebounceInterval < 0 {
		return invalid("detection.debounce_interval cannot be negative")
	}
	if _, err := pitch.New(d.Estimator); err != nil {
		return fmt.Errorf("%w: detection.estimator: %w", ErrInvalidConfig, err)
	}

	a := c.Audio
	if a.SampleRate <= 0 {
		return invalid("audio.sample_rate must be positive")
	}
	if a.BufferSize < 64 {
		return invalid("audio.buffer_size must be at least 64, got %d", a.BufferSize)
	}
	if a.Channels < 1 {
		return invalid("audio.channels must be positive")
	}
	if a.Amplification <= 0 {
		return invalid("audio.amplification must be positive")
	}

	p := c.Playback
	waveform, err := audio.ParseWaveform(p.Waveform)
	if err != nil {
		return fmt.Errorf("%w: playback.waveform: %w", ErrInvalidConfig, err)
	}
	if p.Volume < 0 || p.Volume > 1 {
		return invalid("playback.volume must be between 0 and 1, got %v", p.Volume)
	}
	if p.NoteDuration <= 0 {
		return invalid("playback.note_duration must be positive")
	}

	if c.Exercise.Octave < 0 || c.Exercise.Octave > 8 {
		return invalid("exercise.octave must be between 0 and 8, got %d", c.Exercise.Octave)
	}
	catalog, err := c.Exercise.catalog()
	if err != nil {
		return err
	}
	if _, err := exercise.NewGenerator(catalog, c.ExerciseSettings(), nil); err != nil {
		return fmt.Errorf("%w: exercise: %w", ErrInvalidConfig, err)
	}

	if c.Score.File == "" {
		return invalid("score.file must be set")
	}

	c.waveform = waveform
	c.catalog = catalog
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (e ExerciseConfig) catalog() (exercise.Catalog, error) {
	catalog := exercise.DefaultCatalog()

	if len(e.Intervals) > 0 {
		catalog.Intervals = nil
		for i, pair := range e.Intervals {
			if len(pair) != 2 {
				return exercise.Catalog{}, invalid("exercise.intervals[%d] needs two notes, got %d", i, len(pair))
			}
			low, err := note.ParseNoteName(pair[0])
			if err != nil {
				return exercise.Catalog{}, fmt.Errorf("%w: exercise.intervals[%d]: %w", ErrInvalidConfig, i, err)
			}
			high, err := note.ParseNoteName(pair[1])
			if err != nil {
				return exercise.Catalog{}, fmt.Errorf("%w: exercise.intervals[%d]: %w", ErrInvalidConfig, i, err)
			}
			catalog.Intervals = append(catalog.Intervals, exercise.IntervalPair{Low: low, High: high})
		}
	}

	if len(e.Chords) > 0 {
		catalog.Chords = nil
		for i, c := range e.Chords {
			if c.Name == "" {
				return exercise.Catalog{}, invalid("exercise.chords[%d] has no name", i)
			}
			chord := exercise.Chord{Name: c.Name}
			for _, name := range c.Notes {
				n, err := note.ParseNoteName(name)
				if err != nil {
					return exercise.Catalog{}, fmt.Errorf("%w: chord %q: %w", ErrInvalidConfig, c.Name, err)
				}
				chord.Notes = append(chord.Notes, n)
			}
			catalog.Chords = append(catalog.Chords, chord)
		}
	}
	return catalog, nil
}

// DetectionSettings returns the note stream thresholds.
func (c *Config) DetectionSettings() listen.DetectionConfig {
	return listen.DetectionConfig{
		ClarityThreshold: c.Detection.ClarityThreshold,
		DebounceInterval: c.Detection.DebounceInterval,
	}
}

// Estimator builds the configured pitch estimator.
func (c *Config) Estimator() pitch.Estimator {
	estimator, err := pitch.New(c.Detection.Estimator)
	if err != nil {
		// Validate has already accepted the name.
		return pitch.NewNSDFEstimator()
	}
	return estimator
}

// ToneConfig returns the playback rendering options.
func (c *Config) ToneConfig() audio.ToneConfig {
	return audio.ToneConfig{
		Waveform: c.waveform,
		Slow:     c.Playback.Slow,
		Volume:   c.Playback.Volume,
	}
}

// ExerciseSettings returns the generator difficulty.
func (c *Config) ExerciseSettings() exercise.Settings {
	return exercise.Settings{
		SequenceLength: c.Exercise.SequenceLength,
		Octave:         c.Exercise.Octave,
		NaturalOnly:    c.Exercise.NaturalOnly,
	}
}

// Catalog returns the validated exercise catalog.
func (c *Config) Catalog() exercise.Catalog {
	return c.catalog
}
