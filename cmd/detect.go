package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xlemi/earnote/internal/audio"
	"github.com/0xlemi/earnote/internal/listen"
	"github.com/0xlemi/earnote/internal/note"
)

var (
	detectWAV     string
	detectVerbose bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print detected notes as they are heard",
	Long: `Print every note event produced by the detection pipeline.

Without --wav the microphone is used until interrupted. With --wav the file is
replayed as fast as possible with timestamps taken from its position.

Examples:
  # Live, with input levels
  earnote detect -v

  # Offline, with the spectrum estimator
  earnote detect --wav scale.wav --estimator spectrum`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectWAV, "wav", "", "replay a WAV file instead of the microphone")
	detectCmd.Flags().BoolVarP(&detectVerbose, "verbose", "v", false, "also print input levels")
	addDetectionFlags(detectCmd.Flags())
}

// bufferClock stamps consecutive buffers one buffer duration apart.
func bufferClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at := next
		next = next.Add(step)
		return at
	}
}

func formatEvent(e listen.NoteEvent, since time.Time) string {
	return fmt.Sprintf("%8.3fs  %-2s  %8.2f Hz  %+6.1f cents  clarity %.2f",
		e.At.Sub(since).Seconds(), e.PitchClass, e.Frequency, note.Cents(e.Frequency), e.Clarity)
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := []listen.Option{listen.WithLogger(logger)}
	var source audio.Source
	var replay *audio.WAVSource
	start := time.Now()

	if detectWAV != "" {
		wav, err := audio.NewWAVSource(detectWAV, cfg.Audio.BufferSize, false)
		if err != nil {
			return err
		}
		step := time.Duration(wav.BufferSize()) * time.Second / time.Duration(wav.SampleRate())
		opts = append(opts, listen.WithClock(bufferClock(start, step)),
			listen.WithQueueSize(int(wav.Duration()/step)+1))
		source, replay = wav, wav
		logger.Info("replaying file", zap.String("path", detectWAV), zap.Duration("duration", wav.Duration()))
	} else {
		source = newMicrophone()
	}

	stream := listen.NewStream(cfg.Estimator(), cfg.DetectionSettings(), opts...)
	out := cmd.OutOrStdout()
	stream.OnNote(func(e listen.NoteEvent) {
		fmt.Fprintln(out, formatEvent(e, start))
	})
	if detectVerbose {
		stream.OnLevel(func(rms, db float32) {
			fmt.Fprintf(cmd.ErrOrStderr(), "level %6.1f dB  rms %.4f\n", db, rms)
		})
	}

	if err := stream.Start(source); err != nil {
		return fmt.Errorf("cannot listen: %w", err)
	}
	defer stream.Stop()

	var finished <-chan struct{}
	if replay != nil {
		finished = replay.Done()
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Listening... press Ctrl+C to stop")
	}

	select {
	case <-ctx.Done():
	case <-finished:
		// Let the analysis loop drain what the replay queued.
		drain(ctx, stream)
	}
	return nil
}

func drain(ctx context.Context, stream *listen.Stream) {
	for stream.Pending() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
