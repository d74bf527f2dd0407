package overlay

import (
	"image"
	"image/color"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

const (
	// wrapThreshold is the content length in runes above which text wraps.
	wrapThreshold = 20
	// wrapWidth is the share of frame width wrapped text may use.
	wrapWidth   = 0.85
	lineSpacing = 1.2

	shadowOffsetRatio = 0.05
	strokeWidthRatio  = 0.08
	strokeSteps       = 16
)

var (
	shadowColor = color.NRGBA{0, 0, 0, 160}
	strokeColor = color.NRGBA{0, 0, 0, 255}
)

// textBlock is laid-out text ready to draw.
type textBlock struct {
	lines      []string
	width      float64
	lineHeight float64
	ascent     float64
	descent    float64
}

func (b textBlock) height() float64 {
	return float64(len(b.lines)) * b.lineHeight
}

func layoutText(face font.Face, content string, frameW int) textBlock {
	dc := gg.NewContext(1, 1)
	dc.SetFontFace(face)

	var lines []string
	for _, para := range strings.Split(content, "\n") {
		if utf8.RuneCountInString(content) > wrapThreshold {
			wrapped := dc.WordWrap(para, float64(frameW)*wrapWidth)
			if len(wrapped) == 0 {
				wrapped = []string{""}
			}
			lines = append(lines, wrapped...)
		} else {
			lines = append(lines, para)
		}
	}

	m := face.Metrics()
	b := textBlock{
		lines:   lines,
		ascent:  float64(m.Ascent.Ceil()),
		descent: float64(m.Descent.Ceil()),
	}
	b.lineHeight = (b.ascent + b.descent) * lineSpacing
	for _, l := range lines {
		if w, _ := dc.MeasureString(l); w > b.width {
			b.width = w
		}
	}
	return b
}

// drawLayer renders one layer of the text on its own transparent context.
// Offsets are sampled on a circle of the given radius to dilate the glyphs
// outward; radius 0 draws the plain text.
func drawLayer(face font.Face, b textBlock, w, h int, originX, originY, radius float64, c color.Color) image.Image {
	dc := gg.NewContext(w, h)
	dc.SetFontFace(face)
	dc.SetColor(c)

	offsets := [][2]float64{{0, 0}}
	if radius > 0 {
		offsets = offsets[:0]
		for _, r := range []float64{radius / 2, radius} {
			for i := 0; i < strokeSteps; i++ {
				a := 2 * math.Pi * float64(i) / strokeSteps
				offsets = append(offsets, [2]float64{r * math.Cos(a), r * math.Sin(a)})
			}
		}
	}

	cx := originX + b.width/2
	lead := (b.lineHeight - b.ascent - b.descent) / 2
	for i, line := range b.lines {
		baseline := originY + float64(i)*b.lineHeight + lead + b.ascent
		for _, o := range offsets {
			dc.DrawStringAnchored(line, cx+o[0], baseline+o[1], 0.5, 0)
		}
	}
	return dc.Image()
}

// rasterize draws shadow, stroke and fill on separate contexts and
// composites them in that order onto a canvas sized to the largest layer
// plus padding.
func rasterize(face font.Face, b textBlock, fontSize float64, fill color.Color) image.Image {
	stroke := strokeWidthRatio * fontSize
	shadow := math.Round(shadowOffsetRatio * fontSize)
	pad := math.Ceil(stroke) + 2

	layerW := int(math.Ceil(b.width + 2*pad))
	layerH := int(math.Ceil(b.height() + 2*pad))

	shadowLayer := drawLayer(face, b, layerW, layerH, pad, pad, stroke, shadowColor)
	strokeLayer := drawLayer(face, b, layerW, layerH, pad, pad, stroke, strokeColor)
	fillLayer := drawLayer(face, b, layerW, layerH, pad, pad, 0, fill)

	canvas := gg.NewContext(layerW+int(shadow), layerH+int(shadow))
	canvas.DrawImage(shadowLayer, int(shadow), int(shadow))
	canvas.DrawImage(strokeLayer, 0, 0)
	canvas.DrawImage(fillLayer, 0, 0)
	return canvas.Image()
}

// placeholder is the fixed translucent red box used when text cannot be
// rendered.
func placeholder() image.Image {
	dc := gg.NewContext(PlaceholderWidth, PlaceholderHeight)
	dc.SetColor(color.NRGBA{255, 0, 0, 128})
	dc.Clear()
	return dc.Image()
}
