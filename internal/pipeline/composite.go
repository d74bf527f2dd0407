package pipeline

import (
	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/overlay"
)

// compositePlan layers each asset onto the base file, one overlay filter
// per asset, each enabled only inside its own window. It returns the graph
// and the streams to map.
func compositePlan(base string, assets []overlay.Asset, frameH int, fps float64) (*ffmpeg.Graph, []string) {
	g := ffmpeg.NewGraph()
	b := g.AddInput(ffmpeg.Input{Path: base})
	cur := ffmpeg.VideoStream(b)

	for _, a := range assets {
		p := a.Placement(frameH)
		idx := g.AddInput(ffmpeg.StillInput(a.Path, a.Duration, fps))

		ov := g.Label("ov")
		f := ffmpeg.NewFilterBuilder().
			Format("rgba").
			AlphaFade(p.FadeIn, p.FadeOut, a.Duration).
			ShiftPTS(a.Start).
			Build()
		g.Chain([]string{ffmpeg.VideoStream(idx)}, f, ov)

		next := g.Label("vov")
		g.Chain([]string{cur, ov}, ffmpeg.OverlayFilter(p), next)
		cur = next
	}

	return g, []string{cur, ffmpeg.AudioStream(b)}
}
