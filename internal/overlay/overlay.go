// Package overlay rasterizes timeline text overlays into transparent PNG
// assets and works out where and when each one is composited.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/rs/zerolog"
)

// ErrOverlayRender marks an overlay that fell back to the placeholder.
var ErrOverlayRender = errors.New("overlay render failed")

// Placeholder asset size.
const (
	PlaceholderWidth  = 500
	PlaceholderHeight = 100
)

// Animation timings.
const (
	FadeDuration  = 500 * time.Millisecond
	SlideDuration = 300 * time.Millisecond
	// SlideDistance is the slide_up start offset as a share of frame height.
	SlideDistance = 0.10
	// fontScaleFactor converts the normalized font scale to pixels of
	// frame height.
	fontScaleFactor = 1.5
)

// DefaultMinFontSize is the smallest font size in pixels.
const DefaultMinFontSize = 24

// Options configures the compositor
type Options struct {
	// OutputDir receives the rendered PNG assets.
	OutputDir   string
	FontDir     string
	MinFontSize int
}

// Asset is a rendered overlay with its resolved geometry.
type Asset struct {
	OverlayID string
	Path      string
	Width     int
	Height    int
	// X and Y are the top-left corner in frame pixels.
	X, Y        int
	Start       time.Duration
	Duration    time.Duration
	Style       timeline.Style
	FontSize    float64
	Placeholder bool
	Clamped     bool
}

// Placement returns the compositing parameters for a frame of height
// frameH, with the style's animation applied.
func (a Asset) Placement(frameH int) ffmpeg.OverlayOptions {
	opts := ffmpeg.OverlayOptions{
		X:     a.X,
		Y:     a.Y,
		Start: a.Start,
		End:   a.Start + a.Duration,
	}
	switch a.Style {
	case timeline.StyleFade:
		fade := FadeDuration
		if 2*fade > a.Duration {
			fade = a.Duration / 2
		}
		opts.FadeIn, opts.FadeOut = fade, fade
	case timeline.StyleSlideUp:
		opts.SlideFrom = int(math.Round(SlideDistance * float64(frameH)))
		opts.SlideDuration = min(SlideDuration, a.Duration)
	}
	return opts
}

// Compositor renders overlay assets. It is safe for concurrent use.
type Compositor struct {
	logger zerolog.Logger
	opts   Options
	fonts  *FontRegistry
}

// New creates a compositor and registers the fonts found in FontDir.
func New(logger zerolog.Logger, opts Options) (*Compositor, error) {
	if opts.MinFontSize <= 0 {
		opts.MinFontSize = DefaultMinFontSize
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	fonts := NewFontRegistry()
	if err := fonts.LoadDir(opts.FontDir); err != nil {
		return nil, err
	}
	return &Compositor{
		logger: logger.With().Str("component", "overlay").Logger(),
		opts:   opts,
		fonts:  fonts,
	}, nil
}

// FontSize returns the pixel size for a normalized scale in a frame of
// height frameH.
func (c *Compositor) FontSize(scale float64, frameH int) float64 {
	return math.Max(float64(frameH)*scale*fontScaleFactor, float64(c.opts.MinFontSize))
}

// Render rasterizes o for a frameW x frameH output and writes the asset as
// overlay_<index>.png in dir, or in OutputDir when dir is empty. When the text cannot be rendered a placeholder box
// is written instead and the returned error wraps ErrOverlayRender; the
// asset is still usable. A zero Path means nothing could be written.
func (c *Compositor) Render(ctx context.Context, o timeline.Overlay, dir string, index, frameW, frameH int) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	if dir == "" {
		dir = c.opts.OutputDir
	}

	o.Normalize()
	asset := Asset{
		OverlayID: o.ID,
		Path:      filepath.Join(dir, fmt.Sprintf("overlay_%d.png", index)),
		Start:     o.Start,
		Duration:  o.Duration,
		Style:     o.Style,
		FontSize:  c.FontSize(o.FontScale, frameH),
	}

	img, renderErr := c.rasterizeText(o, asset.FontSize, frameW)
	if renderErr != nil {
		c.logger.Warn().
			Err(renderErr).
			Str("overlay", o.ID).
			Msg("overlay text failed, using placeholder")
		img = placeholder()
		asset.Placeholder = true
		renderErr = fmt.Errorf("%w: %s: %v", ErrOverlayRender, o.ID, renderErr)
	}

	b := img.Bounds()
	asset.Width, asset.Height = b.Dx(), b.Dy()
	cx, cy := o.Center()
	asset.X, asset.Y, asset.Clamped = position(cx, cy, asset.Width, asset.Height, frameW, frameH)
	if asset.Clamped {
		c.logger.Warn().
			Str("overlay", o.ID).
			Float64("x", cx).
			Float64("y", cy).
			Int("left", asset.X).
			Int("top", asset.Y).
			Msg("overlay clamped to frame bounds")
	}

	if err := writePNG(asset.Path, img); err != nil {
		return Asset{}, errors.Join(fmt.Errorf("%w: %s: %v", ErrOverlayRender, o.ID, err), renderErr)
	}

	c.logger.Debug().
		Str("overlay", o.ID).
		Str("path", asset.Path).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Int("x", asset.X).
		Int("y", asset.Y).
		Msg("overlay rendered")
	return asset, renderErr
}

func (c *Compositor) rasterizeText(o timeline.Overlay, fontSize float64, frameW int) (image.Image, error) {
	if strings.TrimSpace(o.Content) == "" {
		return nil, errors.New("empty content")
	}

	fill, ok := ParseColor(o.Color)
	if !ok {
		c.logger.Warn().Str("overlay", o.ID).Str("color", o.Color).Msg("unknown text color, using white")
		fill, _ = ParseColor(timeline.DefaultTextColor)
	}

	face, fellBack, err := c.fonts.Face(o.FontFamily, fontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()
	if fellBack && o.FontFamily != "" {
		c.logger.Debug().Str("overlay", o.ID).Str("font", o.FontFamily).Msg("font not found, using bundled font")
	}

	block := layoutText(face, o.Content, frameW)
	if block.width <= 0 {
		return nil, errors.New("text has no visible glyphs")
	}
	return rasterize(face, block, fontSize, fill), nil
}

// position converts a normalized center into a top-left corner that keeps
// a w x h box inside the frame.
func position(cx, cy float64, w, h, frameW, frameH int) (x, y int, clamped bool) {
	x = int(math.Round(cx*float64(frameW) - float64(w)/2))
	y = int(math.Round(cy*float64(frameH) - float64(h)/2))

	cx2, okX := clampInt(x, 0, frameW-w)
	cy2, okY := clampInt(y, 0, frameH-h)
	return cx2, cy2, !okX || !okY
}

func clampInt(v, lo, hi int) (int, bool) {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo, false
	}
	if v > hi {
		return hi, false
	}
	return v, true
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
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
