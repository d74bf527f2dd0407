package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kikiluvv/gravityedits/internal/grading"
	"github.com/kikiluvv/gravityedits/pkg/util"
)

// ErrInvalidTimeline is returned when the document cannot be ingested.
var ErrInvalidTimeline = errors.New("invalid timeline")

// number accepts a JSON number or a numeric string. Empty strings and
// null leave it unset.
type number struct {
	v   float64
	set bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		n.v, n.set = f, true
		return nil
	}
	if err := json.Unmarshal(b, &n.v); err != nil {
		return err
	}
	n.set = true
	return nil
}

func (n *number) ptr() *float64 {
	if n == nil || !n.set {
		return nil
	}
	v := n.v
	return &v
}

func (n *number) or(def float64) float64 {
	if n == nil || !n.set {
		return def
	}
	return n.v
}

// flag accepts a bool or the strings "true"/"false".
type flag struct {
	v   bool
	set bool
}

func (f *flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("not a boolean: %q", s)
		}
		f.v, f.set = v, true
		return nil
	}
	if err := json.Unmarshal(b, &f.v); err != nil {
		return err
	}
	f.set = true
	return nil
}

// ident accepts a string or a JSON number and keeps its text.
type ident string

func (id *ident) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ident(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("not an id: %s", b)
	}
	*id = ident(n.String())
	return nil
}

type gradingDoc struct {
	Temperature      *number `json:"temperature"`
	Exposure         *number `json:"exposure"`
	Contrast         *number `json:"contrast"`
	Saturation       *number `json:"saturation"`
	Preset           *string `json:"preset"`
	FilterSuggestion *string `json:"filterSuggestion"`
}

type clipDoc struct {
	ID           ident       `json:"id"`
	Source       string      `json:"source"`
	Start        number      `json:"start"`
	End          number      `json:"end"`
	Duration     number      `json:"duration"`
	Keep         flag        `json:"keep"`
	ColorGrading *gradingDoc `json:"colorGrading"`
	Grading      *gradingDoc `json:"grading"`
	Text         string      `json:"text"`
}

type overlayDoc struct {
	ID         ident  `json:"id"`
	Content    string `json:"content"`
	Start      number `json:"start"`
	Duration   number `json:"duration"`
	Style      string `json:"style"`
	FontSize   number `json:"fontSize"`
	PositionX  number `json:"positionX"`
	PositionY  number `json:"positionY"`
	TextColor  string `json:"textColor"`
	FontFamily string `json:"fontFamily"`
}

type musicDoc struct {
	Source   string `json:"source"`
	Start    number `json:"start"`
	Duration number `json:"duration"`
	Volume   number `json:"volume"`
}

type audioClipDoc struct {
	ID       ident  `json:"id"`
	Source   string `json:"source"`
	Start    number `json:"start"`
	Duration number `json:"duration"`
	Volume   number `json:"volume"`
	Track    string `json:"track"`
}

type document struct {
	Name           string         `json:"name"`
	RenderMode     string         `json:"renderMode"`
	GlobalGrading  *gradingDoc    `json:"globalGrading"`
	GlobalSettings *struct {
		ColorGrading     *gradingDoc `json:"colorGrading"`
		FilterSuggestion *string     `json:"filterSuggestion"`
	} `json:"globalSettings"`
	Clips      []clipDoc      `json:"clips"`
	EDL        []clipDoc      `json:"edl"`
	Overlays   []overlayDoc   `json:"overlays"`
	BgMusic    *musicDoc      `json:"bgMusic"`
	AudioClips []audioClipDoc `json:"audioClips"`
}

// Load reads and parses a timeline document from disk.
func Load(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	tl, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tl, nil
}

// Parse ingests a timeline document. It accepts the legacy "edl" and
// "globalSettings" keys ("edl" wins over "clips" when both are present), normalizes legacy overlay scales and applies
// documented defaults, then validates the result.
func Parse(data []byte) (*Timeline, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeline, err)
	}

	tl := &Timeline{
		Name:       strings.TrimSpace(doc.Name),
		RenderMode: Landscape,
	}

	switch strings.ToLower(strings.TrimSpace(doc.RenderMode)) {
	case "", string(Landscape):
	case string(Portrait):
		tl.RenderMode = Portrait
	default:
		tl.warnf("unknown render mode %q, using landscape", doc.RenderMode)
	}

	if doc.GlobalGrading != nil {
		tl.GlobalGrading = tl.convertGrading(doc.GlobalGrading, "global")
	} else if gs := doc.GlobalSettings; gs != nil {
		g := gs.ColorGrading
		if g == nil {
			g = &gradingDoc{}
		}
		if g.Preset == nil && g.FilterSuggestion == nil {
			g.FilterSuggestion = gs.FilterSuggestion
		}
		tl.GlobalGrading = tl.convertGrading(g, "global")
	}

	clips := doc.EDL
	if clips == nil {
		clips = doc.Clips
	}
	for i, cd := range clips {
		c := Clip{
			ID:       string(cd.ID),
			Source:   strings.TrimSpace(cd.Source),
			Start:    util.Seconds(cd.Start.or(0)),
			End:      util.Seconds(cd.End.or(0)),
			Duration: util.Seconds(cd.Duration.or(0)),
			Keep:     !cd.Keep.set || cd.Keep.v,
			Text:     strings.TrimSpace(cd.Text),
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("clip-%d", i+1)
		}
		override := cd.ColorGrading
		if override == nil {
			override = cd.Grading
		}
		if override != nil {
			c.Grading = tl.convertGrading(override, c.ID)
		}
		tl.Clips = append(tl.Clips, c)
	}

	for i, od := range doc.Overlays {
		o := Overlay{
			ID:         string(od.ID),
			Content:    od.Content,
			Start:      util.Seconds(od.Start.or(0)),
			Duration:   util.Seconds(od.Duration.or(DefaultOverlayDuration.Seconds())),
			Style:      tl.convertStyle(od.Style),
			FontScale:  od.FontSize.or(DefaultFontScale),
			Color:      strings.TrimSpace(od.TextColor),
			FontFamily: strings.TrimSpace(od.FontFamily),
		}
		if o.ID == "" {
			o.ID = fmt.Sprintf("overlay-%d", i+1)
		}
		if o.Duration <= 0 {
			o.Duration = DefaultOverlayDuration
		}
		if o.Color == "" {
			o.Color = DefaultTextColor
		}
		if od.PositionX.set && od.PositionY.set {
			o.X, o.Y, o.HasPosition = od.PositionX.v, od.PositionY.v, true
		}
		o.Normalize()
		tl.Overlays = append(tl.Overlays, o)
	}

	if m := doc.BgMusic; m != nil && strings.TrimSpace(m.Source) != "" {
		tl.Music = &Music{
			Source:   strings.TrimSpace(m.Source),
			Start:    util.Seconds(m.Start.or(0)),
			Duration: util.Seconds(m.Duration.or(0)),
			Volume:   m.Volume.or(DefaultMusicVolume),
		}
	}

	for i, ad := range doc.AudioClips {
		if strings.TrimSpace(ad.Source) == "" {
			tl.warnf("audio clip %d has no source, skipping", i+1)
			continue
		}
		a := AudioClip{
			ID:       string(ad.ID),
			Source:   strings.TrimSpace(ad.Source),
			Start:    util.Seconds(ad.Start.or(0)),
			Duration: util.Seconds(ad.Duration.or(0)),
			Volume:   ad.Volume.or(DefaultClipVolume),
			Track:    ad.Track,
		}
		if a.ID == "" {
			a.ID = fmt.Sprintf("audio-%d", i+1)
		}
		tl.AudioClips = append(tl.AudioClips, a)
	}

	if err := tl.Validate(); err != nil {
		return nil, err
	}
	return tl, nil
}

func (t *Timeline) convertGrading(d *gradingDoc, owner string) Grading {
	g := Grading{
		Temperature: d.Temperature.ptr(),
		Exposure:    d.Exposure.ptr(),
		Contrast:    d.Contrast.ptr(),
		Saturation:  d.Saturation.ptr(),
	}
	name := d.Preset
	if name == nil {
		name = d.FilterSuggestion
	}
	if name != nil {
		p, ok := grading.ParsePreset(*name)
		if !ok {
			t.warnf("%s: unknown grading preset %q, ignoring", owner, *name)
		}
		g.Preset = &p
	}
	return g
}

func (t *Timeline) convertStyle(s string) Style {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case StylePop, StyleSlideUp, StyleFade, StyleTypewriter:
		return st
	case "":
		return StylePop
	default:
		t.warnf("unknown overlay style %q, using pop", s)
		return StylePop
	}
}

func (t *Timeline) warnf(format string, args ...any) {
	t.Warnings = append(t.Warnings, fmt.Sprintf(format, args...))
}
