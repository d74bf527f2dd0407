package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kikiluvv/gravityedits/internal/config"
	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/grading"
	"github.com/kikiluvv/gravityedits/internal/overlay"
	"github.com/kikiluvv/gravityedits/internal/resolver"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/kikiluvv/gravityedits/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newResolver(cfg *config.Config) *resolver.Resolver {
	return resolver.New(log.Logger, resolver.Options{
		UploadDir:    cfg.Media.UploadDir,
		ProjectsDir:  cfg.Media.ProjectsDir,
		FallbackRoot: cfg.Media.FallbackRoot,
		Extensions:   cfg.Media.Extensions,
	})
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [timeline.json]",
	Short: "Show where each source of a timeline is found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		tl, err := timeline.Load(args[0])
		if err != nil {
			return err
		}

		r := newResolver(cfg)
		pc := resolver.ProjectContext{Name: tl.Name}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tPATH")

		missing := 0
		names := tl.Stats().Sources
		if tl.Music != nil {
			names = append(names, tl.Music.Source)
		}
		for _, a := range tl.AudioClips {
			names = append(names, a.Source)
		}
		for _, name := range names {
			p, err := r.Resolve(name, pc)
			if err != nil {
				missing++
				p = "NOT FOUND"
			}
			fmt.Fprintf(w, "%s\t%s\n", name, p)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if missing > 0 {
			return fmt.Errorf("%d of %d sources not found (strategies: %s)", missing, len(names), strings.Join(r.Strategies(), ", "))
		}
		return nil
	},
}

var (
	gradeAt       string
	gradeOut      string
	gradePreset   string
	gradeTemp     float64
	gradeExposure float64
	gradeContrast float64
	gradeSat      float64
	gradeMaxSize  uint
)

var gradeCmd = &cobra.Command{
	Use:   "grade [video]",
	Short: "Preview a color grade on a single frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		preset, ok := grading.ParsePreset(gradePreset)
		if !ok {
			return fmt.Errorf("unknown preset %q", gradePreset)
		}
		params := grading.Params{
			Temperature: gradeTemp,
			Exposure:    gradeExposure,
			Contrast:    gradeContrast,
			Saturation:  gradeSat,
			Preset:      preset,
		}
		at, err := util.ParseTimestamp(gradeAt)
		if err != nil {
			return err
		}

		exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.ProbePath,
			KillGrace:   time.Duration(cfg.FFmpeg.KillGraceMS) * time.Millisecond,
		})
		if err != nil {
			return err
		}

		frame := filepath.Join(cfg.TempDir, "frame-"+uuid.NewString()+".png")
		defer util.CleanupFiles(frame)
		if err := exec.ExtractFrame(cmd.Context(), args[0], frame, at); err != nil {
			return err
		}

		img, err := readPNG(frame)
		if err != nil {
			return err
		}
		graded := grading.Preview(img, params, gradeMaxSize, gradeMaxSize)

		out := gradeOut
		if out == "" {
			out = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + "_graded.png"
		}
		if err := writePNG(out, graded); err != nil {
			return err
		}
		log.Info().Str("output", out).Str("grade", params.String()).Msg("preview written")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:       "list [presets|fonts|strategies]",
	Short:     "List available resources",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"presets", "fonts", "strategies"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		out := cmd.OutOrStdout()

		switch args[0] {
		case "presets":
			for _, p := range grading.Presets() {
				fmt.Fprintln(out, p)
			}
		case "fonts":
			fonts := overlay.NewFontRegistry()
			if err := fonts.LoadDir(cfg.Overlays.FontDir); err != nil {
				return err
			}
			for _, name := range fonts.List() {
				p, _ := fonts.Get(name)
				fmt.Fprintf(out, "%s\t%s\n", name, p)
			}
		case "strategies":
			for _, s := range newResolver(cfg).Strategies() {
				fmt.Fprintln(out, s)
			}
		default:
			return fmt.Errorf("unknown resource %q", args[0])
		}
		return nil
	},
}

func init() {
	gradeCmd.Flags().StringVar(&gradeAt, "at", "0", "frame timestamp (SS.mmm, MM:SS or HH:MM:SS.mmm)")
	gradeCmd.Flags().StringVarP(&gradeOut, "output", "o", "", "output PNG (default: <video>_graded.png)")
	gradeCmd.Flags().StringVar(&gradePreset, "preset", "", "grading preset")
	gradeCmd.Flags().Float64Var(&gradeTemp, "temperature", grading.DefaultTemperature, "white balance in Kelvin")
	gradeCmd.Flags().Float64Var(&gradeExposure, "exposure", grading.DefaultExposure, "exposure in EV")
	gradeCmd.Flags().Float64Var(&gradeContrast, "contrast", grading.DefaultContrast, "contrast in percent")
	gradeCmd.Flags().Float64Var(&gradeSat, "saturation", grading.DefaultSaturation, "saturation in percent")
	gradeCmd.Flags().UintVar(&gradeMaxSize, "max-size", 960, "longest preview edge in pixels, 0 keeps the frame size")
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
