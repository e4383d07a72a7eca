package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/spf13/cobra"
)

var allowedExtensions = []string{".mp4", ".avi", ".mov", ".webm", ".mkv", ".m4v"}

type convertOptions struct {
	fps    int
	width  int
	preset string
	output string
}

func newConvertCmd(a *app) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert <video>",
		Short: "Convert a video file to an animated GIF",
		Long: `Convert a video file to an animated GIF.

Frame rate and width are clamped to 1-30 fps and 100-800 pixels. The
height follows the video's aspect ratio. Without --output the GIF is
written next to the video with a .gif extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, a, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.fps, "fps", convert.DefaultFPS, "Frames per second")
	cmd.Flags().IntVar(&opts.width, "width", convert.DefaultWidth, "Output width in pixels")
	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "", "Named preset (see 'gifmaker presets')")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output GIF path")

	return cmd
}

func runConvert(cmd *cobra.Command, a *app, opts *convertOptions, input string) error {
	ext := strings.ToLower(filepath.Ext(input))
	if !isAllowed(ext) {
		return fmt.Errorf("invalid file type %q, allowed types: %s", ext, strings.Join(allowedExtensions, ", "))
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	params, err := resolveParams(cmd, a, opts)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".gif"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Converting %s (fps=%d, width=%d)...\n", filepath.Base(input), params.FPS, params.Width)
	if err := a.converter().Convert(cmd.Context(), input, output, params); err != nil {
		return err
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("reading output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "GIF created: %s (%s)\n", output, convert.HumanSize(info.Size()))
	return nil
}

// resolveParams applies the preset first; flags set explicitly on the
// command line override it.
func resolveParams(cmd *cobra.Command, a *app, opts *convertOptions) (convert.Params, error) {
	params := convert.Params{FPS: opts.fps, Width: opts.width}

	if opts.preset != "" {
		set, err := a.presets()
		if err != nil {
			return convert.Params{}, err
		}
		p, ok := set.Lookup(opts.preset)
		if !ok {
			return convert.Params{}, fmt.Errorf("unknown preset %q", opts.preset)
		}
		params = p.Params()
		if cmd.Flags().Changed("fps") {
			params.FPS = opts.fps
		}
		if cmd.Flags().Changed("width") {
			params.Width = opts.width
		}
	}

	return convert.DefaultLimits().Clamp(params), nil
}

func isAllowed(ext string) bool {
	for _, a := range allowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}
