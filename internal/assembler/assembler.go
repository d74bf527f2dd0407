// Package assembler turns the kept clips of a timeline into trimmed,
// graded and size-normalized segments ready to be concatenated.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/grading"
	"github.com/kikiluvv/gravityedits/internal/resolver"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/rs/zerolog"
)

// ErrInvalidTrimRange marks a clip whose start lies at or past the end of
// its source.
var ErrInvalidTrimRange = errors.New("invalid trim range")

// Portrait output size.
const (
	PortraitWidth  = 1080
	PortraitHeight = 1920
)

// Fallback output size when no source can be probed.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// SourceResolver maps timeline media names to files.
type SourceResolver interface {
	Resolve(name string, pc resolver.ProjectContext) (string, error)
}

// Warning is a non-fatal problem with one timeline item.
type Warning struct {
	Item string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Item, w.Err)
}

// Crop is a source-space rectangle.
type Crop struct {
	Width, Height int
	X, Y          int
}

// Segment is one kept clip after resolution and trim repair.
type Segment struct {
	ClipID string
	// ClipIndex is the clip's position in Timeline.Clips. IDs may repeat.
	ClipIndex int
	Path    string
	Start   time.Duration
	End     time.Duration
	Grading grading.Params
	Crop    *Crop
	// HasAudio reports whether the source carries an audio stream.
	HasAudio bool
	Text     string
	// Input is the segment's input index once added to a graph.
	Input int
}

// Duration is the segment length on the output timeline.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Assembly is the ordered segment list and the output frame size.
type Assembly struct {
	Segments []Segment
	Width    int
	Height   int
	FPS      float64
	Warnings []Warning
}

// Duration is the total length of the base track.
func (a *Assembly) Duration() time.Duration {
	var d time.Duration
	for _, s := range a.Segments {
		d += s.Duration()
	}
	return d
}

// Durations returns each segment's length keyed by its clip index.
func (a *Assembly) Durations() map[int]time.Duration {
	out := make(map[int]time.Duration, len(a.Segments))
	for _, s := range a.Segments {
		out[s.ClipIndex] = s.Duration()
	}
	return out
}

// Options configures the assembler
type Options struct {
	DefaultWidth  int
	DefaultHeight int
	FPS           float64
}

// Assembler resolves, probes and trims clips.
type Assembler struct {
	logger   zerolog.Logger
	resolver SourceResolver
	prober   ffmpeg.Prober
	opts     Options
}

// New creates an assembler
func New(logger zerolog.Logger, r SourceResolver, p ffmpeg.Prober, opts Options) *Assembler {
	if opts.DefaultWidth <= 0 || opts.DefaultHeight <= 0 {
		opts.DefaultWidth, opts.DefaultHeight = DefaultWidth, DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = ffmpeg.DefaultFPS
	}
	return &Assembler{
		logger:   logger.With().Str("component", "assembler").Logger(),
		resolver: r,
		prober:   p,
		opts:     opts,
	}
}

// Assemble builds the segment list for tl. Clips that cannot be resolved,
// probed or trimmed are skipped with a warning. The only errors returned
// are cancellation and a nil timeline.
func (a *Assembler) Assemble(ctx context.Context, tl *timeline.Timeline) (*Assembly, error) {
	if tl == nil {
		return nil, fmt.Errorf("%w: nil timeline", timeline.ErrInvalidTimeline)
	}

	out := &Assembly{FPS: a.opts.FPS}
	pc := resolver.ProjectContext{Name: tl.Name}
	sized := false

	for i, c := range tl.Clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.Keep {
			continue
		}

		path, err := a.resolver.Resolve(c.Source, pc)
		if err != nil {
			a.skip(out, c.ID, err)
			continue
		}

		info, err := a.prober.ProbeVideo(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.skip(out, c.ID, fmt.Errorf("probe %s: %w", path, err))
			continue
		}
		if !info.HasVideo {
			a.skip(out, c.ID, fmt.Errorf("%s has no video stream", path))
			continue
		}

		if !sized {
			out.Width, out.Height = a.frameSize(tl.RenderMode, info)
			sized = true
		}

		start, end, err := trimRange(c, info.Duration)
		if err != nil {
			a.skip(out, c.ID, err)
			continue
		}
		if declared, ok := c.DeclaredEnd(); ok && declared != end {
			a.logger.Debug().
				Str("clip", c.ID).
				Dur("declared_end", declared).
				Dur("end", end).
				Msg("clip end adjusted to source")
		}

		seg := Segment{
			ClipID:    c.ID,
			ClipIndex: i,
			Path:      path,
			Start:     start,
			End:       end,
			Grading:   tl.GlobalGrading.Merge(c.Grading).Resolve(),
			HasAudio:  info.HasAudio,
			Text:      c.Text,
			Input:     -1,
		}
		if tl.RenderMode == timeline.Portrait {
			seg.Crop = portraitCrop(info.DisplaySize())
		}
		out.Segments = append(out.Segments, seg)
	}

	if !sized {
		out.Width, out.Height = a.frameSize(tl.RenderMode, nil)
	}

	a.logger.Info().
		Int("segments", len(out.Segments)).
		Int("skipped", len(out.Warnings)).
		Int("width", out.Width).
		Int("height", out.Height).
		Dur("duration", out.Duration()).
		Msg("timeline assembled")
	return out, nil
}

func (a *Assembler) skip(out *Assembly, clipID string, err error) {
	a.logger.Warn().Err(err).Str("clip", clipID).Msg("skipping clip")
	out.Warnings = append(out.Warnings, Warning{Item: clipID, Err: err})
}

func (a *Assembler) frameSize(mode timeline.RenderMode, info *ffmpeg.VideoInfo) (int, int) {
	if mode == timeline.Portrait {
		return PortraitWidth, PortraitHeight
	}
	if info != nil {
		w, h := info.DisplaySize()
		if w > 0 && h > 0 {
			return even(w), even(h)
		}
	}
	return a.opts.DefaultWidth, a.opts.DefaultHeight
}

// trimRange works out [start,end) for c within a source of length total.
// An unknown total (zero) disables clamping.
func trimRange(c timeline.Clip, total time.Duration) (time.Duration, time.Duration, error) {
	start := max(c.Start, 0)
	end, ok := c.DeclaredEnd()
	if !ok {
		end = total
	}
	if total > 0 && end > total {
		end = total
	}
	if start >= end {
		if total > 0 && start < total {
			return start, total, nil
		}
		return 0, 0, fmt.Errorf("%w: start %s, end %s, source %s", ErrInvalidTrimRange, start, end, total)
	}
	return start, end, nil
}

// portraitCrop centers a 9:16 window horizontally. Sources already
// narrower than 9:16 are not cropped.
func portraitCrop(w, h int) *Crop {
	if w <= 0 || h <= 0 {
		return nil
	}
	cw := even(int(math.Round(float64(h) * 9 / 16)))
	if cw >= w {
		return nil
	}
	return &Crop{Width: cw, Height: h, X: (w - cw) / 2, Y: 0}
}

// even rounds down to an even number; yuv420p needs even dimensions.
func even(v int) int {
	return v &^ 1
}
