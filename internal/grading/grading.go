// Package grading implements the color grading transform shared by the
// in-process preview path and the ffmpeg render path.
package grading

import (
	"fmt"
	"strings"
)

// Preset is a named look layered after the numeric adjustments.
type Preset string

const (
	None       Preset = "None"
	Cinematic  Preset = "Cinematic"
	TealOrange Preset = "Teal & Orange"
	Vintage    Preset = "Vintage"
	Noir       Preset = "Noir"
	Vivid      Preset = "Vivid"
	VividWarm  Preset = "Vivid Warm"
	VividCool  Preset = "Vivid Cool"
	Dramatic   Preset = "Dramatic"
	Mono       Preset = "Mono"
	Silvertone Preset = "Silvertone"
)

var presets = []Preset{None, Cinematic, TealOrange, Vintage, Noir, Vivid, VividWarm, VividCool, Dramatic, Mono, Silvertone}

// Presets lists every supported preset.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ParsePreset matches a preset name case-insensitively. "B&W" is an alias
// of Mono and the empty string means None. Unknown names report false.
func ParsePreset(name string) (Preset, bool) {
	n := strings.TrimSpace(name)
	if n == "" {
		return None, true
	}
	if strings.EqualFold(n, "B&W") {
		return Mono, true
	}
	for _, p := range presets {
		if strings.EqualFold(n, string(p)) {
			return p, true
		}
	}
	return None, false
}

// Neutral values of the numeric parameters.
const (
	DefaultTemperature = 5600.0
	DefaultExposure    = 0.0
	DefaultContrast    = 0.0
	DefaultSaturation  = 100.0
)

// Params is a fully resolved grading tuple.
type Params struct {
	// Temperature in Kelvin.
	Temperature float64
	// Exposure in EV stops.
	Exposure float64
	// Contrast in percent, 0 is neutral.
	Contrast float64
	// Saturation in percent, 100 is neutral.
	Saturation float64
	Preset     Preset
}

// Default returns the identity tuple.
func Default() Params {
	return Params{
		Temperature: DefaultTemperature,
		Exposure:    DefaultExposure,
		Contrast:    DefaultContrast,
		Saturation:  DefaultSaturation,
		Preset:      None,
	}
}

// IsIdentity reports whether p leaves every pixel unchanged.
func (p Params) IsIdentity() bool {
	return p.Temperature == DefaultTemperature &&
		p.Exposure == DefaultExposure &&
		p.Contrast == DefaultContrast &&
		p.Saturation == DefaultSaturation &&
		(p.Preset == None || p.Preset == "")
}

func (p Params) String() string {
	return fmt.Sprintf("T:%g E:%g C:%g S:%g F:%s", p.Temperature, p.Exposure, p.Contrast, p.Saturation, p.Preset)
}
