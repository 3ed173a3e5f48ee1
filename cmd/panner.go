package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/resonantmix/pkg/panconfig"
	"github.com/drgolem/resonantmix/pkg/panner"

	"github.com/spf13/cobra"
)

// pannerCmd groups subcommands that inspect and edit a panner configuration
// document on disk, realizing the control-to-Panner interface as CLI verbs
// instead of a running process's RPCs.
var pannerCmd = &cobra.Command{
	Use:   "panner",
	Short: "Inspect and edit a panner configuration document",
}

func init() {
	rootCmd.AddCommand(pannerCmd)

	pannerCmd.AddCommand(pannerShowCmd)
	pannerCmd.AddCommand(pannerSetModeCmd)
	pannerCmd.AddCommand(pannerAddSpeakerCmd)
	pannerCmd.AddCommand(pannerAddRectangleCmd)
}

func loadOrNewDocument(path string) (*panconfig.Document, error) {
	if _, err := os.Stat(path); err == nil {
		return panconfig.Load(path)
	}
	return &panconfig.Document{Mode: "radial", MaxRadius: 1000}, nil
}

var pannerShowCmd = &cobra.Command{
	Use:   "show <config.yaml>",
	Short: "Print a panner configuration document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := panconfig.Load(args[0])
		if err != nil {
			slog.Error("failed to load panner config", "error", err)
			os.Exit(1)
		}
		fmt.Printf("mode: %s\n", doc.Mode)
		fmt.Printf("max_radius: %g\n", doc.MaxRadius)
		for i, s := range doc.Speakers {
			fmt.Printf("speaker[%d]: (%g, %g)\n", i, s.X, s.Y)
		}
		for i, r := range doc.Rectangles {
			fmt.Printf("rectangle[%d]: location=(%g,%g) size=(%g,%g) stereo_pan=%g fade_width=%g left=%d right=%d\n",
				i, r.Location.X, r.Location.Y, r.Size.X, r.Size.Y, r.StereoPan, r.FadeWidth, r.LeftChannel, r.RightChannel)
		}
	},
}

var pannerSetModeCmd = &cobra.Command{
	Use:   "set-mode <config.yaml> <radial|rectangles>",
	Short: "Set the panner's mode and validate it against a live Panner",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := loadOrNewDocument(args[0])
		if err != nil {
			slog.Error("failed to load panner config", "error", err)
			os.Exit(1)
		}

		mode := args[1]
		if mode != "radial" && mode != "rectangles" {
			slog.Error("unknown mode", "mode", mode, "valid", "radial, rectangles")
			os.Exit(1)
		}
		doc.Mode = mode

		if err := validateDocument(doc); err != nil {
			slog.Error("invalid panner configuration", "error", err)
			os.Exit(1)
		}
		if err := doc.Save(args[0]); err != nil {
			slog.Error("failed to save panner config", "error", err)
			os.Exit(1)
		}
		slog.Info("mode updated", "mode", mode, "file", args[0])
	},
}

var pannerAddSpeakerCmd = &cobra.Command{
	Use:   "add-speaker <config.yaml> <x> <y>",
	Short: "Append a loudspeaker to a panner configuration document",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := loadOrNewDocument(args[0])
		if err != nil {
			slog.Error("failed to load panner config", "error", err)
			os.Exit(1)
		}

		var x, y float64
		if _, err := fmt.Sscanf(args[1], "%g", &x); err != nil {
			slog.Error("invalid x", "value", args[1], "error", err)
			os.Exit(1)
		}
		if _, err := fmt.Sscanf(args[2], "%g", &y); err != nil {
			slog.Error("invalid y", "value", args[2], "error", err)
			os.Exit(1)
		}

		doc.Speakers = append(doc.Speakers, panconfig.Point{X: x, Y: y})

		if err := validateDocument(doc); err != nil {
			slog.Error("invalid panner configuration", "error", err)
			os.Exit(1)
		}
		if err := doc.Save(args[0]); err != nil {
			slog.Error("failed to save panner config", "error", err)
			os.Exit(1)
		}
		slog.Info("speaker added", "x", x, "y", y, "total_speakers", len(doc.Speakers), "file", args[0])
	},
}

var (
	rectStereoPan    float64
	rectFadeWidth    float64
	rectLeftChannel  int
	rectRightChannel int
)

var pannerAddRectangleCmd = &cobra.Command{
	Use:   "add-rectangle <config.yaml> <x> <y> <width> <height>",
	Short: "Append a sound rectangle to a panner configuration document",
	Args:  cobra.ExactArgs(5),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := loadOrNewDocument(args[0])
		if err != nil {
			slog.Error("failed to load panner config", "error", err)
			os.Exit(1)
		}

		var x, y, w, h float64
		for i, v := range []*float64{&x, &y, &w, &h} {
			if _, err := fmt.Sscanf(args[i+1], "%g", v); err != nil {
				slog.Error("invalid numeric argument", "value", args[i+1], "error", err)
				os.Exit(1)
			}
		}

		doc.Rectangles = append(doc.Rectangles, panconfig.Rectangle{
			Location:     panconfig.Point{X: x, Y: y},
			Size:         panconfig.Point{X: w, Y: h},
			StereoPan:    rectStereoPan,
			FadeWidth:    rectFadeWidth,
			LeftChannel:  rectLeftChannel,
			RightChannel: rectRightChannel,
		})

		if err := validateDocument(doc); err != nil {
			slog.Error("invalid panner configuration", "error", err)
			os.Exit(1)
		}
		if err := doc.Save(args[0]); err != nil {
			slog.Error("failed to save panner config", "error", err)
			os.Exit(1)
		}
		slog.Info("rectangle added", "x", x, "y", y, "width", w, "height", h, "file", args[0])
	},
}

func init() {
	pannerAddRectangleCmd.Flags().Float64Var(&rectStereoPan, "stereo-pan", 0.5, "Stereo pan split between left/right channel, 0-1")
	pannerAddRectangleCmd.Flags().Float64Var(&rectFadeWidth, "fade-width", 50, "Fade envelope width at the rectangle boundary")
	pannerAddRectangleCmd.Flags().IntVar(&rectLeftChannel, "left-channel", 0, "Output channel index for the left side of the fade")
	pannerAddRectangleCmd.Flags().IntVar(&rectRightChannel, "right-channel", 1, "Output channel index for the right side of the fade")
}

// validateDocument exercises ApplyTo against a scratch Panner to catch
// malformed documents (e.g. an unknown mode string) before saving.
func validateDocument(doc *panconfig.Document) error {
	p := panner.New(doc.MaxRadius)
	return doc.ApplyTo(p)
}
