package assembler

import (
	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/grading"
)

// VideoFilter is the per-segment chain: trim, crop, scale to the output
// size, grade and normalize the pixel format so concat accepts it.
func (a *Assembly) VideoFilter(s Segment) string {
	fb := ffmpeg.NewFilterBuilder().
		Trim(s.Start, s.End).
		ResetPTS()
	if s.Crop != nil {
		fb.Crop(s.Crop.Width, s.Crop.Height, s.Crop.X, s.Crop.Y)
	}
	return fb.
		Scale(a.Width, a.Height).
		SquarePixels().
		FPS(a.FPS).
		Custom(grading.FilterExpr(s.Grading)).
		Format(ffmpeg.DefaultPixFmt).
		Build()
}

// AddTo registers every segment as a graph input, chains its video filter
// and concatenates the results. It records each segment's input index and
// returns the label of the joined video stream. With no segments nothing
// is added and the label is empty.
func (a *Assembly) AddTo(g *ffmpeg.Graph) string {
	if len(a.Segments) == 0 {
		return ""
	}

	labels := make([]string, len(a.Segments))
	for i := range a.Segments {
		s := &a.Segments[i]
		s.Input = g.AddInput(ffmpeg.Input{Path: s.Path})
		labels[i] = g.Label("v")
		g.Chain([]string{ffmpeg.VideoStream(s.Input)}, a.VideoFilter(*s), labels[i])
	}

	out := g.Label("vbase")
	g.Chain(labels, ffmpeg.Concat(len(labels), 1, 0), out)
	return out
}
