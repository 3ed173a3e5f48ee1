package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "resonantmix",
	Short: "Realtime spatial audio mixer with look-ahead limiting",
	Long: `resonantmix - a realtime audio mixing pipeline: lock-free decoder-to-
callback transfer, 2-D spatial panning across an arbitrary loudspeaker
layout, and per-channel look-ahead peak limiting.

Features:
  - Lock-free SPSC ring transfer between decoder and audio callback threads
  - Radial and rectangle-based spatial panning with gain ramping
  - Look-ahead peak limiter with attack/release planning per output channel
  - Support for MP3, FLAC, and WAV audio formats
  - YAML panner configuration documents
  - Sample rate transformation and format conversion

Commands:
  - play: Play an audio file through the panner and limiter graph
  - playlist: Play several audio files sequentially through the same graph
  - panner: Inspect and edit a panner configuration document
  - transform: Convert audio files to different sample rates and WAV format`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
