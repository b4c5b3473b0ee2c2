package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/exercise"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/score"
	"github.com/0xlemi/earnote/internal/ui"
)

var practiceKind string

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Start an interactive ear training session",
	Long: `Start an interactive ear training session.

Keys:
  space  listen for your answer
  p      play the reference
  n      next exercise
  q      quit

Examples:
  # Mixed exercises
  earnote practice

  # Four-note melodies, natural notes only
  earnote practice --kind sequence --length 4 --natural-only`,
	Args: cobra.NoArgs,
	RunE: runPractice,
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().StringVarP(&practiceKind, "kind", "k", "mixed",
		"exercise kind (single, sequence, chord, interval, mixed)")
	practiceCmd.Flags().Bool("natural-only", false, "use natural notes only")
	practiceCmd.Flags().Int("length", 3, "melody length")
	addDetectionFlags(practiceCmd.Flags())
	addPlaybackFlags(practiceCmd.Flags())
}

func runPractice(cmd *cobra.Command, args []string) error {
	kind, err := exercise.ParseKind(practiceKind)
	if err != nil {
		return err
	}
	generator, err := exercise.NewGenerator(cfg.Catalog(), cfg.ExerciseSettings(), nil)
	if err != nil {
		return err
	}

	store := score.NewFileStore(cfg.Score.File)
	stream := listen.NewStream(cfg.Estimator(), cfg.DetectionSettings(), listen.WithLogger(logger))
	runner := exercise.NewRunner(stream, newMicrophone(), store, exercise.WithRunnerLogger(logger))
	defer runner.Cancel()

	model := ui.NewModel(ui.Deps{
		Generator:    generator,
		Listener:     runner,
		Player:       audio.NewPortAudioPlayer(cfg.Audio.SampleRate, logger),
		Store:        store,
		Tone:         cfg.ToneConfig(),
		NoteDuration: cfg.Playback.NoteDuration,
		Kind:         kind,
	})
	stream.OnLevel(model.LevelObserver())

	logger.Info("practice started", zap.String("kind", string(kind)))
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
