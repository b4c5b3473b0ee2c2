package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/note"
)

var playChord bool

var playCmd = &cobra.Command{
	Use:   "play NOTE...",
	Short: "Play reference notes",
	Long: `Play one or more notes through the default output device, one after
another or together as a chord.

Examples:
  earnote play A4
  earnote play C4 E4 G4 --chord --waveform triangle
  earnote play C4 D4 E4 F4 G4 --slow`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().BoolVarP(&playChord, "chord", "c", false, "play the notes together")
	addPlaybackFlags(playCmd.Flags())
}

// phraseFor parses note names into a phrase of sequential or simultaneous tones.
func phraseFor(names []string, chord bool, tone audio.Tone) (audio.Phrase, error) {
	var tones []audio.Tone
	for _, name := range names {
		n, err := note.ParseNoteName(name)
		if err != nil {
			return nil, err
		}
		freq, err := n.Frequency()
		if err != nil {
			return nil, err
		}
		t := tone
		t.Frequency = freq
		tones = append(tones, t)
	}

	if chord {
		return audio.Phrase{tones}, nil
	}
	phrase := make(audio.Phrase, len(tones))
	for i, t := range tones {
		phrase[i] = []audio.Tone{t}
	}
	return phrase, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	phrase, err := phraseFor(args, playChord, audio.Tone{Duration: cfg.Playback.NoteDuration, Volume: 1})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	player := audio.NewPortAudioPlayer(cfg.Audio.SampleRate, logger)
	if err := player.Play(ctx, phrase, cfg.ToneConfig()); err != nil {
		return fmt.Errorf("cannot play: %w", err)
	}
	return nil
}
