package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/config"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/logging"
)

var (
	configFile string

	cfg    *config.Config
	logger = zap.NewNop()
)

// flagKeys maps command line flags to their configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-file":      "log.file",
	"estimator":     "detection.estimator",
	"clarity":       "detection.clarity_threshold",
	"debounce":      "detection.debounce_interval",
	"amplification": "audio.amplification",
	"waveform":      "playback.waveform",
	"slow":          "playback.slow",
	"volume":        "playback.volume",
	"natural-only":  "exercise.natural_only",
	"length":        "exercise.sequence_length",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "earnote",
	Short: "Ear training in the terminal",
	Long: `EarNote plays a note, a melody, a chord or an interval and listens
through the microphone while you sing or play it back.

Exercises:
- single note, with an optional natural-notes-only mode
- ordered melodies of configurable length
- chords, answered one note at a time in any order
- intervals, answered from any starting note

Correct answers earn up to three stars depending on how quickly they come.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is $HOME/.config/earnote/earnote.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "",
		"log file (default is earnote.log in the temp directory)")
}

// addDetectionFlags registers the flags shared by commands that listen.
func addDetectionFlags(flags *pflag.FlagSet) {
	flags.String("estimator", "nsdf", "pitch estimator (nsdf, spectrum)")
	flags.Float64("clarity", listen.DefaultClarityThreshold, "minimum clarity for a note to count (0-1)")
	flags.Duration("debounce", listen.DefaultDebounceInterval, "minimum time between two notes")
	flags.Float64("amplification", 1.0, "microphone gain")
}

// addPlaybackFlags registers the flags shared by commands that play.
func addPlaybackFlags(flags *pflag.FlagSet) {
	flags.String("waveform", "sine", "reference waveform (sine, square, triangle, sawtooth)")
	flags.Bool("slow", false, "play reference notes at half speed")
	flags.Float64("volume", 0.5, "playback volume (0-1)")
}

// initializeConfig loads configuration after flags are parsed
func initializeConfig(cmd *cobra.Command) error {
	v := viper.GetViper()
	if err := config.Init(v, configFile); err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	logger = log
	logger.Debug("configuration loaded", zap.String("file", v.ConfigFileUsed()))
	return nil
}

// bindFlags binds each changed cobra flag to its configuration key so that
// flags take precedence over the file and the environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// newMicrophone returns the configured capture source.
func newMicrophone() *audio.PortAudioSource {
	source := audio.NewPortAudioSource(cfg.Audio.BufferSize, cfg.Audio.SampleRate, cfg.Audio.Channels, logger)
	source.SetAmplification(float32(cfg.Audio.Amplification))
	return source
}
