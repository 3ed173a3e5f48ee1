package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/drgolem/resonantmix/pkg/geom"
	"github.com/drgolem/resonantmix/pkg/panconfig"
	"github.com/drgolem/resonantmix/pkg/panner"
	"github.com/drgolem/resonantmix/pkg/types"

	"github.com/drgolem/resonantmix/internal/player"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

var (
	playlistDeviceIdx      int
	playlistChannels       int
	playlistPAFrames       int
	playlistPanConfig      string
	playlistLimiterThresh  float64
	playlistAttackSamples  int
	playlistReleaseSamples int
	playlistVerbose        bool
)

// playlistCmd represents the playlist command
var playlistCmd = &cobra.Command{
	Use:   "playlist <audio_file> [audio_file...]",
	Short: "Play multiple audio files sequentially through the panner and limiter graph",
	Long: `Play a list of audio files one after another, each through its own
graph.Root: decoder -> AudioTransfer -> spatial Panner -> per-channel
look-ahead limiter -> PortAudio output device. The panner configuration
(or the default layout of one loudspeaker per --channels output channel,
all at the origin) is shared across the whole list.

Examples:
  # Play multiple files
  resonantmix playlist song1.mp3 song2.flac song3.wav

  # Play all MP3 files in current directory
  resonantmix playlist *.mp3

  # Use a specific device and panner layout
  resonantmix playlist -d 0 --pan-config studio.yaml music/*.flac

Supported Formats:
  MP3:  .mp3 (16-bit lossy)
  FLAC: .flac, .fla (16/24/32-bit lossless)
  WAV:  .wav (16-bit PCM; files of other bit depths are rejected)`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPlaylist,
}

func init() {
	rootCmd.AddCommand(playlistCmd)

	playlistCmd.Flags().IntVarP(&playlistDeviceIdx, "device", "d", 1, "Audio output device index")
	playlistCmd.Flags().IntVarP(&playlistChannels, "channels", "c", 2, "Output device channel count (ignored when --pan-config is given)")
	playlistCmd.Flags().IntVarP(&playlistPAFrames, "frames", "f", 512, "PortAudio frames per buffer")
	playlistCmd.Flags().StringVar(&playlistPanConfig, "pan-config", "", "Path to a panner configuration YAML document")
	playlistCmd.Flags().Float64Var(&playlistLimiterThresh, "limiter-threshold", 0.9, "Look-ahead limiter threshold (linear, 0-1)")
	playlistCmd.Flags().IntVar(&playlistAttackSamples, "limiter-attack", 64, "Look-ahead limiter attack window, in samples")
	playlistCmd.Flags().IntVar(&playlistReleaseSamples, "limiter-release", 2000, "Look-ahead limiter release time, in samples")
	playlistCmd.Flags().BoolVarP(&playlistVerbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func runPlaylist(cmd *cobra.Command, args []string) {
	logLevel := slog.LevelInfo
	if playlistVerbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	files := args

	p, channels, err := buildPlaylistPanner()
	if err != nil {
		slog.Error("failed to build panner configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())
	slog.Info("Configuration",
		"device_index", playlistDeviceIdx,
		"channels", channels,
		"pa_frames_per_buffer", playlistPAFrames,
		"file_count", len(files))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	interrupted := false

	for i, fileName := range files {
		if interrupted {
			break
		}

		slog.Info("Playing file", "index", i+1, "total", len(files), "file", fileName)

		pl := player.New(playlistDeviceIdx, p, channels, playlistPAFrames,
			playlistLimiterThresh, playlistAttackSamples, playlistReleaseSamples)

		if err := pl.OpenFile(fileName); err != nil {
			slog.Error("Failed to open file", "file", fileName, "error", err)
			continue
		}
		// The panner is shared across files while each Player's graph.Root
		// is new, so drop this file's source once it is done; otherwise the
		// next file's root would be paired with this file's panner source.
		sourceID := filepath.Base(fileName)
		p.SetSourceLocation(sourceID, "default", geom.NewPoint(0, 0))

		if err := pl.PlayFile(); err != nil {
			slog.Error("Failed to start playback", "file", fileName, "error", err)
			p.RemoveSource(sourceID)
			continue
		}

		statusDone := make(chan struct{})
		go monitorPlayback(pl, statusDone)

		done := make(chan struct{})
		go func() {
			pl.Wait()
			close(done)
		}()

		select {
		case <-done:
			slog.Info("File completed", "file", fileName)
			close(statusDone)
			if err := pl.Stop(); err != nil {
				slog.Error("Failed to stop player", "error", err)
			}
		case sig := <-sigChan:
			slog.Info("Signal received, stopping", "signal", sig)
			interrupted = true
			close(statusDone)
			if err := pl.Stop(); err != nil {
				slog.Error("Failed to stop player", "error", err)
			}
		}
		p.RemoveSource(sourceID)
	}

	if interrupted {
		slog.Info("Playback interrupted")
	} else {
		slog.Info("All files completed", "total", len(files))
	}

	slog.Info("Exiting")
}

// buildPlaylistPanner loads a Panner from --pan-config if given, otherwise
// builds a Radial-mode default with one loudspeaker per --channels output
// channel, all at the origin.
func buildPlaylistPanner() (*panner.Panner, int, error) {
	if playlistPanConfig != "" {
		doc, err := panconfig.Load(playlistPanConfig)
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
	speakers := make([]panner.Loudspeaker, playlistChannels)
	for c := range speakers {
		speakers[c] = panner.Loudspeaker{Location: geom.NewPoint(0, 0)}
	}
	p.ReplaceSpeakers(speakers)
	return p, p.ChannelCount(), nil
}

// monitorPlayback monitors and logs playback status every 2 seconds for any PlaybackMonitor
func monitorPlayback(monitor types.PlaybackMonitor, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := monitor.GetPlaybackStatus()

			// Calculate played audio time from samples (actually sent to speakers)
			playedTimeSeconds := float64(status.PlayedSamples) / float64(status.SampleRate)

			// Calculate buffered audio time (decoded but not yet played)
			bufferedTimeSeconds := float64(status.BufferedSamples) / float64(status.SampleRate)

			// Format elapsed time as hh:mm:ss.msec
			totalMilliseconds := status.ElapsedTime.Milliseconds()
			hours := totalMilliseconds / 3600000
			minutes := (totalMilliseconds % 3600000) / 60000
			seconds := (totalMilliseconds % 60000) / 1000
			milliseconds := totalMilliseconds % 1000
			elapsedStr := fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)

			// Format played time as hh:mm:ss.msec (same format as elapsed)
			playedMilliseconds := int64(playedTimeSeconds * 1000)
			playedHours := playedMilliseconds / 3600000
			playedMinutes := (playedMilliseconds % 3600000) / 60000
			playedSeconds := (playedMilliseconds % 60000) / 1000
			playedMsec := playedMilliseconds % 1000
			playedTimeStr := fmt.Sprintf("%02d:%02d:%02d.%03d", playedHours, playedMinutes, playedSeconds, playedMsec)

			bufferedTimeStr := fmt.Sprintf("%.3fs", bufferedTimeSeconds)

			formatStr := fmt.Sprintf("%d:%d:%d",
				status.SampleRate, status.BitsPerSample, status.Channels)

			slog.Info("Playback status",
				"file", status.FileName,
				"format", formatStr,
				"played", playedTimeStr,
				"buffered", bufferedTimeStr,
				"elapsed", elapsedStr,
				"limiter_gain", status.LimiterGain,
				"underruns", status.UnderrunCount)
		case <-done:
			return
		}
	}
}
