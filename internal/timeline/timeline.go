// Package timeline holds the edit decision list a render consumes and its
// JSON ingestion. All loosely typed and legacy inputs are normalized here,
// once, so downstream packages only see resolved values.
package timeline

import (
	"time"

	"github.com/kikiluvv/gravityedits/internal/grading"
)

// RenderMode selects the output framing.
type RenderMode string

const (
	Landscape RenderMode = "landscape"
	Portrait  RenderMode = "portrait"
)

// Timeline is an immutable description of one finished edit.
type Timeline struct {
	Name          string
	RenderMode    RenderMode
	GlobalGrading Grading
	Clips         []Clip
	Overlays      []Overlay
	Music         *Music
	AudioClips    []AudioClip
	// Warnings collects non-fatal problems found during ingestion.
	Warnings []string
}

// Clip is one segment of a source file. End and Duration are zero when
// absent; the assembler falls back to the source length.
type Clip struct {
	ID       string
	Source   string
	Start    time.Duration
	End      time.Duration
	Duration time.Duration
	Keep     bool
	Grading  Grading
	// Text is the caption line spoken during this clip.
	Text string
}

// DeclaredEnd returns the explicit end, else start+duration. ok is false
// when neither is set.
func (c Clip) DeclaredEnd() (end time.Duration, ok bool) {
	if c.End > 0 {
		return c.End, true
	}
	if c.Duration > 0 {
		return c.Start + c.Duration, true
	}
	return 0, false
}

// Grading is a partial grading tuple. Nil fields inherit.
type Grading struct {
	Temperature *float64
	Exposure    *float64
	Contrast    *float64
	Saturation  *float64
	Preset      *grading.Preset
}

// Merge returns g with every field set in override replaced.
func (g Grading) Merge(override Grading) Grading {
	if override.Temperature != nil {
		g.Temperature = override.Temperature
	}
	if override.Exposure != nil {
		g.Exposure = override.Exposure
	}
	if override.Contrast != nil {
		g.Contrast = override.Contrast
	}
	if override.Saturation != nil {
		g.Saturation = override.Saturation
	}
	if override.Preset != nil {
		g.Preset = override.Preset
	}
	return g
}

// Resolve fills unset fields with neutral defaults.
func (g Grading) Resolve() grading.Params {
	p := grading.Default()
	if g.Temperature != nil {
		p.Temperature = *g.Temperature
	}
	if g.Exposure != nil {
		p.Exposure = *g.Exposure
	}
	if g.Contrast != nil {
		p.Contrast = *g.Contrast
	}
	if g.Saturation != nil {
		p.Saturation = *g.Saturation
	}
	if g.Preset != nil {
		p.Preset = *g.Preset
	}
	return p
}

// Style is the entrance animation of a text overlay.
type Style string

const (
	StylePop        Style = "pop"
	StyleSlideUp    Style = "slide_up"
	StyleFade       Style = "fade"
	StyleTypewriter Style = "typewriter"
)

// Overlay defaults.
const (
	DefaultOverlayDuration = 2 * time.Second
	DefaultFontScale       = 0.05
	DefaultTextColor       = "white"
)

// Overlay is a text element drawn over the assembled base track.
type Overlay struct {
	ID       string
	Content  string
	Start    time.Duration
	Duration time.Duration
	Style    Style
	// FontScale is the font size as a fraction of frame height.
	FontScale float64
	// X and Y are the normalized center of the overlay. They are only
	// meaningful when HasPosition is true.
	X, Y        float64
	HasPosition bool
	Color       string
	FontFamily  string

	normalized bool
}

// End is when the overlay disappears.
func (o Overlay) End() time.Duration {
	return o.Start + o.Duration
}

// Center returns the overlay center, falling back to the default spot for
// its style when no position was given.
func (o Overlay) Center() (x, y float64) {
	if o.HasPosition {
		return o.X, o.Y
	}
	switch o.Style {
	case StyleSlideUp:
		return 0.5, 0.8
	case StyleTypewriter:
		return 0.3, 0.9
	default:
		return 0.5, 0.5
	}
}

// Normalized reports whether legacy 0..100 values have been rescaled.
func (o Overlay) Normalized() bool {
	return o.normalized
}

// Normalize rescales legacy percentages to fractions and clamps to [0,1].
// Values above 1 are divided by 100 exactly once; calling Normalize again
// is a no-op.
func (o *Overlay) Normalize() {
	if o.normalized {
		return
	}
	o.FontScale = unitScale(o.FontScale)
	if o.HasPosition {
		o.X = unitScale(o.X)
		o.Y = unitScale(o.Y)
	}
	o.normalized = true
}

func unitScale(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Audio layer defaults.
const (
	DefaultMusicVolume = 0.5
	DefaultClipVolume  = 1.0
)

// Music is the background track, looped or trimmed to fit.
type Music struct {
	Source string
	Start  time.Duration
	// Duration of zero plays until the end of the timeline.
	Duration time.Duration
	Volume   float64
}

// AudioClip is a secondary sound placed at an offset.
type AudioClip struct {
	ID     string
	Source string
	Start  time.Duration
	// Duration of zero plays the whole file.
	Duration time.Duration
	Volume   float64
	Track    string
}

// KeptClips returns the clips marked to keep, in order.
func (t *Timeline) KeptClips() []Clip {
	out := make([]Clip, 0, len(t.Clips))
	for _, c := range t.Clips {
		if c.Keep {
			out = append(out, c)
		}
	}
	return out
}
