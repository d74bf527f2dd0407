package grading

import (
	"math"
	"strconv"
	"strings"
)

// stage is one step of the grading pipeline on float RGB in 0..255 space.
type stage interface {
	apply(c [3]float64) [3]float64
	expr(e [3]string) [3]string
}

// affine maps rgb to M·rgb + t. Column 3 holds the offset.
type affine [3][4]float64

func identityAffine() affine {
	return affine{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
}

func scaleChannels(r, g, b float64) affine {
	return affine{{r, 0, 0, 0}, {0, g, 0, 0}, {0, 0, b, 0}}
}

func uniformScale(f float64) affine {
	return scaleChannels(f, f, f)
}

// contrastAround128 is (x-128)*f+128 on every channel.
func contrastAround128(f float64) affine {
	o := 128 * (1 - f)
	return affine{{f, 0, 0, o}, {0, f, 0, o}, {0, 0, f, o}}
}

func offset(v float64) affine {
	return affine{{1, 0, 0, v}, {0, 1, 0, v}, {0, 0, 1, v}}
}

// saturate is gray+(x-gray)*f with gray the channel mean.
func saturate(f float64) affine {
	k := (1 - f) / 3
	return affine{
		{f + k, k, k, 0},
		{k, f + k, k, 0},
		{k, k, f + k, 0},
	}
}

func grayscale() affine {
	return saturate(0)
}

// then returns the affine equivalent to applying a followed by b.
func (a affine) then(b affine) affine {
	var out affine
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += b[i][k] * a[k][j]
			}
		}
		out[i][3] = b[i][3]
		for k := 0; k < 3; k++ {
			out[i][3] += b[i][k] * a[k][3]
		}
	}
	return out
}

func (a affine) isIdentity() bool {
	return a == identityAffine()
}

func (a affine) apply(c [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = a[i][0]*c[0] + a[i][1]*c[1] + a[i][2]*c[2] + a[i][3]
	}
	return out
}

func (a affine) expr(e [3]string) [3]string {
	var out [3]string
	for i := 0; i < 3; i++ {
		var terms []string
		for j := 0; j < 3; j++ {
			switch a[i][j] {
			case 0:
			case 1:
				terms = append(terms, e[j])
			default:
				terms = append(terms, num(a[i][j])+"*"+e[j])
			}
		}
		if a[i][3] != 0 || len(terms) == 0 {
			terms = append(terms, num(a[i][3]))
		}
		out[i] = "(" + strings.Join(terms, "+") + ")"
	}
	return out
}

// tealOrange pushes red highlights warm and blue shadows cool, clipping
// both channels before anything that follows.
type tealOrange struct{}

func (tealOrange) apply(c [3]float64) [3]float64 {
	r, b := c[0], c[2]
	if r > 128 {
		r *= 1.2
	} else {
		r *= 0.9
	}
	if b < 128 {
		b *= 1.2
	} else {
		b *= 0.9
	}
	return [3]float64{clamp(r), c[1], clamp(b)}
}

func (tealOrange) expr(e [3]string) [3]string {
	return [3]string{
		"clip(if(gt(" + e[0] + ",128),1.2,0.9)*" + e[0] + ",0,255)",
		e[1],
		"clip(if(lt(" + e[2] + ",128),1.2,0.9)*" + e[2] + ",0,255)",
	}
}

func (p Params) numericStages() []affine {
	var out []affine
	if p.Temperature != DefaultTemperature {
		v := (p.Temperature - DefaultTemperature) / 5000
		out = append(out, scaleChannels(1+v*0.2, 1, 1-v*0.2))
	}
	if p.Exposure != DefaultExposure {
		out = append(out, uniformScale(math.Pow(2, p.Exposure)))
	}
	if p.Contrast != DefaultContrast {
		out = append(out, contrastAround128(1+p.Contrast/100))
	}
	if p.Saturation != DefaultSaturation {
		out = append(out, saturate(p.Saturation/100))
	}
	return out
}

func (p Params) presetStages() []stage {
	switch p.Preset {
	case Cinematic:
		return []stage{contrastAround128(1.2), uniformScale(0.95)}
	case TealOrange:
		return []stage{tealOrange{}, contrastAround128(1.1)}
	case Vintage:
		return []stage{scaleChannels(1.1, 1, 0.85), contrastAround128(0.9), offset(10)}
	case Noir:
		return []stage{grayscale(), contrastAround128(1.5)}
	case Vivid:
		return []stage{saturate(1.5)}
	case VividWarm:
		return []stage{saturate(1.3), scaleChannels(1.1, 1, 0.9)}
	case VividCool:
		return []stage{saturate(1.3), scaleChannels(0.9, 1, 1.1)}
	case Dramatic:
		return []stage{saturate(0.8), contrastAround128(1.4)}
	case Mono:
		return []stage{grayscale()}
	case Silvertone:
		return []stage{grayscale(), contrastAround128(1.2), uniformScale(1.1)}
	}
	return nil
}

// pipeline returns the ordered stages with consecutive affine steps folded
// into a single matrix.
func (p Params) pipeline() []stage {
	var all []stage
	for _, a := range p.numericStages() {
		all = append(all, a)
	}
	all = append(all, p.presetStages()...)

	var out []stage
	acc := identityAffine()
	pending := false
	for _, s := range all {
		if a, ok := s.(affine); ok {
			acc = acc.then(a)
			pending = true
			continue
		}
		if pending && !acc.isIdentity() {
			out = append(out, acc)
		}
		acc, pending = identityAffine(), false
		out = append(out, s)
	}
	if pending && !acc.isIdentity() {
		out = append(out, acc)
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
