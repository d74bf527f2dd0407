// Package pipeline drives a render from timeline to finished file: base
// track encode, overlay assets, final composite, subtitles.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kikiluvv/gravityedits/internal/assembler"
	"github.com/kikiluvv/gravityedits/internal/audio"
	"github.com/kikiluvv/gravityedits/internal/config"
	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/logging"
	"github.com/kikiluvv/gravityedits/internal/overlay"
	"github.com/kikiluvv/gravityedits/internal/resolver"
	"github.com/kikiluvv/gravityedits/internal/subtitle"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/kikiluvv/gravityedits/pkg/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Renderer orchestrates renders. Each Render call is an independent job
// with its own work directory, so one Renderer may serve concurrent calls.
type Renderer struct {
	logger    zerolog.Logger
	assembler *assembler.Assembler
	mixer     *audio.Mixer
	overlays  *overlay.Compositor
	encoder   ffmpeg.Encoder
	opts      Options
}

// New creates a renderer from its collaborators.
func New(logger zerolog.Logger, asm *assembler.Assembler, mixer *audio.Mixer, overlays *overlay.Compositor, enc ffmpeg.Encoder, opts Options) *Renderer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Renderer{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		assembler: asm,
		mixer:     mixer,
		overlays:  overlays,
		encoder:   enc,
		opts:      opts,
	}
}

// NewFromConfig wires a renderer on top of the ffmpeg executor.
func NewFromConfig(logger zerolog.Logger, cfg *config.Config) (*Renderer, error) {
	exec, err := ffmpeg.New(logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
		KillGrace:   time.Duration(cfg.FFmpeg.KillGraceMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	res := resolver.New(logger, resolver.Options{
		UploadDir:    cfg.Media.UploadDir,
		ProjectsDir:  cfg.Media.ProjectsDir,
		FallbackRoot: cfg.Media.FallbackRoot,
		Extensions:   cfg.Media.Extensions,
	})

	comp, err := overlay.New(logger, overlay.Options{
		OutputDir:   cfg.TempDir,
		FontDir:     cfg.Overlays.FontDir,
		MinFontSize: cfg.Overlays.MinFontSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize overlays: %w", err)
	}

	asm := assembler.New(logger, res, exec, assembler.Options{
		DefaultWidth:  cfg.Render.DefaultWidth,
		DefaultHeight: cfg.Render.DefaultHeight,
		FPS:           cfg.Render.FPS,
	})

	return New(logger, asm, audio.New(logger, res, exec), comp, exec, Options{
		TempDir:        cfg.TempDir,
		ExportDir:      cfg.ExportDir,
		URLPrefix:      cfg.Render.URLPrefix,
		Concurrency:    cfg.Concurrency,
		WriteSubtitles: cfg.Render.WriteSubtitles,
		Settings: ffmpeg.EncodeSettings{
			CRF:    cfg.FFmpeg.CRF,
			Preset: cfg.FFmpeg.Preset,
			FPS:    cfg.Render.FPS,
		},
	}), nil
}

// Render produces the output file for tl. The returned error is ErrCancelled
// when ctx ends the job, ErrEmptyTimeline when no clip survives assembly,
// and otherwise wraps the failing stage's error. Temporary files are
// removed on every path, and so is a partial output on failure.
func (r *Renderer) Render(ctx context.Context, tl *timeline.Timeline, opts RenderOptions) (*Result, error) {
	jobID := uuid.NewString()
	logger := logging.WithJob(r.logger, jobID)
	j := newJob(logger, opts.OnProgress)
	if tl == nil {
		return nil, r.fail(ctx, j, fmt.Errorf("%w: nil timeline", timeline.ErrInvalidTimeline))
	}

	output := opts.OutputPath
	if output == "" {
		output = r.defaultOutput(tl.Name)
	}

	workDir := filepath.Join(r.opts.TempDir, "render-"+jobID)
	if err := util.EnsureDir(workDir); err != nil {
		return nil, r.fail(ctx, j, fmt.Errorf("failed to create work dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn().Err(err).Str("dir", workDir).Msg("failed to remove work dir")
		}
	}()

	res, asm, err := r.render(ctx, j, tl, workDir, output)
	if err != nil {
		return nil, r.fail(ctx, j, err)
	}
	res.Warnings = j.collected()

	if r.opts.WriteSubtitles {
		res.SubtitlePath = writeSubtitles(logger, tl, asm, output)
	}

	res.URL = r.opts.URLPrefix + filepath.Base(output)
	j.finish(StateCompleted, "render complete", res.URL)
	logger.Info().
		Str("output", output).
		Int64("bytes", util.FileSize(output)).
		Dur("duration", res.Duration).
		Int("warnings", len(res.Warnings)).
		Msg("render complete")
	return res, nil
}

func (r *Renderer) render(ctx context.Context, j *job, tl *timeline.Timeline, workDir, output string) (*Result, *assembler.Assembly, error) {
	j.enter(StateResolvingSources, 0, "resolving sources")
	if err := tl.Validate(); err != nil {
		return nil, nil, err
	}
	for _, w := range tl.Warnings {
		j.warn(assembler.Warning{Item: "timeline", Err: errors.New(w)})
	}
	stats := tl.Stats()
	j.logger.Info().
		Str("timeline", tl.Name).
		Int("clips", stats.KeptClips).
		Int("overlays", stats.Overlays).
		Int("audio_clips", stats.AudioClips).
		Bool("music", stats.HasMusic).
		Dur("declared", stats.DeclaredDuration).
		Strs("sources", stats.Sources).
		Msg("render requested")

	asm, err := r.assembler.Assemble(ctx, tl)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range asm.Warnings {
		j.warn(w)
	}
	if len(asm.Segments) == 0 {
		return nil, nil, ErrEmptyTimeline
	}

	j.enter(StateAssemblingBase, 5, fmt.Sprintf("assembling %d segments", len(asm.Segments)))
	g := ffmpeg.NewGraph()
	maps := []string{asm.AddTo(g)}
	audioLabel, audioWarnings, err := r.mixer.Mix(ctx, tl, asm, g)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range audioWarnings {
		j.warn(w)
	}
	if audioLabel != "" {
		maps = append(maps, audioLabel)
	}

	j.enter(StateEncodingBase, 10, "encoding base track")
	base := filepath.Join(workDir, "base.mp4")
	err = r.encoder.Encode(ctx, ffmpeg.Job{
		Graph:         g,
		Maps:          maps,
		Output:        base,
		Settings:      r.opts.Settings,
		TotalDuration: asm.Duration(),
		ScriptDir:     workDir,
	}, encoderProgress(j.band(10, baseBandEnd, "encoding base track")))
	if err != nil {
		return nil, nil, err
	}

	res := &Result{
		OutputPath: output,
		Duration:   asm.Duration(),
		Width:      asm.Width,
		Height:     asm.Height,
	}

	if err := util.EnsureDir(filepath.Dir(output)); err != nil {
		return nil, nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	if len(tl.Overlays) == 0 {
		j.writing(output)
		if err := util.MoveFile(base, output); err != nil {
			return nil, nil, fmt.Errorf("failed to move base track: %w", err)
		}
		return res, asm, nil
	}

	j.enter(StateRenderingOverlays, baseBandEnd, fmt.Sprintf("rendering %d overlays", len(tl.Overlays)))
	assets, err := r.renderOverlays(ctx, j, tl.Overlays, asm, workDir)
	if err != nil {
		return nil, nil, err
	}

	if len(assets) == 0 {
		j.writing(output)
		if err := util.MoveFile(base, output); err != nil {
			return nil, nil, fmt.Errorf("failed to move base track: %w", err)
		}
		return res, asm, nil
	}

	j.enter(StateCompositingFinal, overlayBandEnd, "compositing overlays")
	cg, cmaps := compositePlan(base, assets, asm.Height, asm.FPS)
	j.writing(output)
	err = r.encoder.Encode(ctx, ffmpeg.Job{
		Graph:         cg,
		Maps:          cmaps,
		Output:        output,
		Settings:      r.opts.Settings,
		TotalDuration: asm.Duration(),
		ScriptDir:     workDir,
	}, encoderProgress(j.band(overlayBandEnd, 100, "compositing overlays")))
	if err != nil {
		return nil, nil, err
	}
	return res, asm, nil
}

// renderOverlays rasterizes every overlay concurrently into workDir and
// returns the usable assets in timeline order. Overlays that cannot be
// rendered at all are dropped with a warning; a placeholder asset is kept.
func (r *Renderer) renderOverlays(ctx context.Context, j *job, overlays []timeline.Overlay, asm *assembler.Assembly, workDir string) ([]overlay.Asset, error) {
	total := asm.Duration()
	assets := make([]overlay.Asset, len(overlays))
	usable := make([]bool, len(overlays))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, o := range overlays {
		if o.Start >= total {
			j.warn(assembler.Warning{
				Item: o.ID,
				Err:  fmt.Errorf("%w: starts at %s, after the timeline ends at %s", overlay.ErrOverlayRender, o.Start, total),
			})
			done.Add(1)
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			asset, err := r.overlays.Render(gctx, o, workDir, i, asm.Width, asm.Height)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				j.warn(assembler.Warning{Item: o.ID, Err: err})
			}
			if asset.Path != "" {
				assets[i], usable[i] = asset, true
			}
			n := done.Add(1)
			j.report(baseBandEnd+(overlayBandEnd-baseBandEnd)*float64(n)/float64(len(overlays)),
				fmt.Sprintf("rendered overlay %d/%d", n, len(overlays)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []overlay.Asset
	for i, ok := range usable {
		if ok {
			out = append(out, assets[i])
		}
	}
	return out, nil
}

// writeSubtitles projects captions with the assembled clip lengths and
// writes them next to output. Failures are logged only.
func writeSubtitles(logger zerolog.Logger, tl *timeline.Timeline, asm *assembler.Assembly, output string) string {
	path := strings.TrimSuffix(output, filepath.Ext(output)) + ".srt"
	track := subtitle.Project(tl, asm.Durations())
	if len(track.Cues) == 0 {
		return ""
	}
	if err := subtitle.WriteFile(path, track); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write subtitles")
		return ""
	}
	logger.Debug().Str("path", path).Int("cues", len(track.Cues)).Msg("subtitles written")
	return path
}

// fail moves the job to its terminal state and cleans the partial output.
func (r *Renderer) fail(ctx context.Context, j *job, err error) error {
	if p := j.partialOutput(); p != "" {
		util.CleanupFiles(p)
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		j.finish(StateCancelled, "render cancelled", "")
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	j.logger.Error().Err(err).Msg("render failed")
	j.finish(StateFailed, err.Error(), "")
	return err
}

func (r *Renderer) defaultOutput(name string) string {
	base := resolver.SanitizeProjectName(name)
	base = strings.ReplaceAll(base, " ", "_")
	if base == "" {
		base = "render"
	}
	return filepath.Join(r.opts.ExportDir, fmt.Sprintf("%s_final_%d.mp4", base, time.Now().Unix()))
}

func encoderProgress(fn func(pct float64)) ffmpeg.ProgressFunc {
	return func(p *ffmpeg.Progress) {
		if p.Done {
			fn(100)
			return
		}
		fn(p.Percentage)
	}
}
