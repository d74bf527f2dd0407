package main

import (
	"fmt"

	"github.com/kikiluvv/gravityedits/internal/config"
	"github.com/kikiluvv/gravityedits/internal/logging"
	"github.com/kikiluvv/gravityedits/internal/pipeline"
	"github.com/kikiluvv/gravityedits/internal/subtitle"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	renderOutput  string
	renderProject string
	noSubtitles   bool
	subtitleOut   string
)

var renderCmd = &cobra.Command{
	Use:   "render [timeline.json]",
	Short: "Render a timeline to a video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if noSubtitles {
			cfg.Render.WriteSubtitles = false
		}

		tl, err := timeline.Load(args[0])
		if err != nil {
			return err
		}
		if renderProject != "" {
			tl.Name = renderProject
		}

		renderer, err := pipeline.NewFromConfig(log.Logger, cfg)
		if err != nil {
			return err
		}

		progress := logging.WithComponent("cli")
		res, err := renderer.Render(cmd.Context(), tl, pipeline.RenderOptions{
			OutputPath: renderOutput,
			OnProgress: func(e pipeline.Event) {
				// terminal states are logged by the renderer itself
				if e.State.Terminal() {
					return
				}
				progress.Info().
					Str("state", string(e.State)).
					Float64("progress", e.Progress).
					Msg(e.Message)
			},
		})
		if err != nil {
			return err
		}

		log.Info().
			Str("output", res.OutputPath).
			Str("subtitles", res.SubtitlePath).
			Str("url", res.URL).
			Dur("duration", res.Duration).
			Int("warnings", len(res.Warnings)).
			Msg("render finished")
		fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
		return nil
	},
}

var subtitlesCmd = &cobra.Command{
	Use:   "subtitles [timeline.json]",
	Short: "Write the caption track of a timeline as SRT",
	Long:  "Projects clip captions with their declared lengths. Renders write subtitles with the assembled lengths instead.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tl, err := timeline.Load(args[0])
		if err != nil {
			return err
		}

		track := subtitle.Project(tl, nil)
		if subtitleOut == "" || subtitleOut == "-" {
			return subtitle.WriteSRT(cmd.OutOrStdout(), track)
		}
		if err := subtitle.WriteFile(subtitleOut, track); err != nil {
			return err
		}
		log.Info().Str("path", subtitleOut).Int("cues", len(track.Cues)).Msg("subtitles written")
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output file (default: <export_dir>/<name>_final_<unix>.mp4)")
	renderCmd.Flags().StringVar(&renderProject, "project", "", "project name used for media lookup")
	renderCmd.Flags().BoolVar(&noSubtitles, "no-subtitles", false, "skip writing the .srt file")

	subtitlesCmd.Flags().StringVarP(&subtitleOut, "output", "o", "", "output file (default: stdout)")
}
