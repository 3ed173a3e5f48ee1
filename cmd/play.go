package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/drgolem/resonantmix/pkg/geom"
	"github.com/drgolem/resonantmix/pkg/panconfig"
	"github.com/drgolem/resonantmix/pkg/panner"

	"github.com/drgolem/resonantmix/internal/player"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

var (
	playDeviceIdx       int
	playDeviceChannels  int
	playFramesPerBuffer int
	playPanConfig       string
	playLimiterThresh   float64
	playAttackSamples   int
	playReleaseSamples  int
	playVerbose         bool
)

// playCmd plays one audio file through a graph.Root: a single AudioTransfer
// source, routed through the configured Panner and clamped per channel by a
// look-ahead limiter.
var playCmd = &cobra.Command{
	Use:   "play <audio_file>",
	Short: "Play an audio file through the panner and limiter graph",
	Long: `Play an audio file through the full mixing pipeline: decoder ->
AudioTransfer -> spatial Panner -> per-channel look-ahead limiter ->
PortAudio output device.

Without --pan-config the file plays in Radial mode through one loudspeaker
per --channels output channel, all at the origin, so the source is placed
on-axis at distance 0 for unity gain on every channel.

Examples:
  # Play a file on the default device
  resonantmix play song.flac

  # Play through a saved panner layout
  resonantmix play song.mp3 --pan-config studio.yaml -d 2`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVarP(&playDeviceIdx, "device", "d", 1, "Audio output device index")
	playCmd.Flags().IntVarP(&playDeviceChannels, "channels", "c", 2, "Output device channel count (ignored when --pan-config is given)")
	playCmd.Flags().IntVarP(&playFramesPerBuffer, "frames", "f", 512, "PortAudio frames per buffer")
	playCmd.Flags().StringVar(&playPanConfig, "pan-config", "", "Path to a panner configuration YAML document")
	playCmd.Flags().Float64Var(&playLimiterThresh, "limiter-threshold", 0.9, "Look-ahead limiter threshold (linear, 0-1)")
	playCmd.Flags().IntVar(&playAttackSamples, "limiter-attack", 64, "Look-ahead limiter attack window, in samples")
	playCmd.Flags().IntVar(&playReleaseSamples, "limiter-release", 2000, "Look-ahead limiter release time, in samples")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func runPlay(cmd *cobra.Command, args []string) {
	logLevel := slog.LevelInfo
	if playVerbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	fileName := args[0]

	p, channels, err := buildPanner()
	if err != nil {
		slog.Error("failed to build panner configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	pl := player.New(playDeviceIdx, p, channels, playFramesPerBuffer,
		playLimiterThresh, playAttackSamples, playReleaseSamples)

	if err := pl.OpenFile(fileName); err != nil {
		slog.Error("failed to open file", "file", fileName, "error", err)
		os.Exit(1)
	}

	sourceID := filepath.Base(fileName)
	p.SetSourceLocation(sourceID, "default", geom.NewPoint(0, 0))

	if err := pl.PlayFile(); err != nil {
		slog.Error("failed to start playback", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusDone := make(chan struct{})
	go monitorPlayback(pl, statusDone)

	done := make(chan struct{})
	go func() {
		pl.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("playback complete")
	case sig := <-sigChan:
		slog.Info("signal received, stopping", "signal", sig)
	}
	close(statusDone)

	if err := pl.Stop(); err != nil {
		slog.Error("failed to stop player", "error", err)
	}
}

// buildPanner loads a Panner from --pan-config if given, otherwise builds a
// Radial-mode default with one loudspeaker per --channels output channel,
// all at the origin.
func buildPanner() (*panner.Panner, int, error) {
	if playPanConfig != "" {
		doc, err := panconfig.Load(playPanConfig)
		if err != nil {
			return nil, 0, err
		}
		p := panner.New(doc.MaxRadius)
		if err := doc.ApplyTo(p); err != nil {
			return nil, 0, err
		}
		return p, p.ChannelCount(), nil
	}

	p := panner.New(1000)
	speakers := make([]panner.Loudspeaker, playDeviceChannels)
	for c := range speakers {
		speakers[c] = panner.Loudspeaker{Location: geom.NewPoint(0, 0)}
	}
	p.ReplaceSpeakers(speakers)
	return p, p.ChannelCount(), nil
}

