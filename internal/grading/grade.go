package grading

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// Grade applies p to every pixel of img. Channels are processed as floats
// and clamped to 0..255 only after the last stage. The identity tuple
// returns img itself.
func Grade(img image.Image, p Params) image.Image {
	if p.IsIdentity() {
		return img
	}
	stages := p.pipeline()
	if len(stages) == 0 {
		return img
	}

	b := img.Bounds()
	src, ok := img.(*image.NRGBA)
	if !ok {
		src = image.NewNRGBA(b)
		draw.Draw(src, b, img, b.Min, draw.Src)
	}
	dst := image.NewNRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			dst.SetNRGBA(x, y, gradePixel(c, stages))
		}
	}
	return dst
}

// gradePixel runs one pixel through stages, keeping its alpha.
func gradePixel(c color.NRGBA, stages []stage) color.NRGBA {
	v := [3]float64{float64(c.R), float64(c.G), float64(c.B)}
	for _, s := range stages {
		v = s.apply(v)
	}
	return color.NRGBA{
		R: uint8(math.Round(clamp(v[0]))),
		G: uint8(math.Round(clamp(v[1]))),
		B: uint8(math.Round(clamp(v[2]))),
		A: c.A,
	}
}

// FilterExpr compiles p into an ffmpeg filter fragment computing the same
// transform with geq. The identity tuple yields "".
func FilterExpr(p Params) string {
	if p.IsIdentity() {
		return ""
	}
	stages := p.pipeline()
	if len(stages) == 0 {
		return ""
	}

	e := [3]string{"r(X,Y)", "g(X,Y)", "b(X,Y)"}
	for _, s := range stages {
		e = s.expr(e)
	}
	return "format=gbrp,geq=r='clip(" + e[0] + ",0,255)':g='clip(" + e[1] + ",0,255)':b='clip(" + e[2] + ",0,255)'"
}

// Preview downscales img to fit within maxWidth x maxHeight and grades the
// result, so large frames can be inspected quickly.
func Preview(img image.Image, p Params, maxWidth, maxHeight uint) image.Image {
	b := img.Bounds()
	if maxWidth > 0 && maxHeight > 0 && (uint(b.Dx()) > maxWidth || uint(b.Dy()) > maxHeight) {
		img = resize.Thumbnail(maxWidth, maxHeight, img, resize.Bilinear)
	}
	return Grade(img, p)
}
