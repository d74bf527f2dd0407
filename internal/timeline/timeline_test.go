package timeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kikiluvv/gravityedits/internal/grading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTimeline = `{
	"name": "Beach Trip",
	"renderMode": "portrait",
	"globalGrading": {"temperature": 6500, "contrast": 10, "preset": "Cinematic"},
	"clips": [
		{"id": "c1", "source": "beach.mp4", "start": 1.5, "end": 4, "text": "Hello"},
		{"id": "c2", "source": "waves.mov", "start": 0, "duration": 3, "keep": "false"},
		{"id": "c3", "source": "sunset", "start": "2", "colorGrading": {"saturation": 120}}
	],
	"overlays": [
		{"content": "Day one", "start": 0.5, "style": "slide_up", "fontSize": 8, "positionX": 50, "positionY": 20},
		{"content": "fin", "start": 6, "duration": 1, "style": "wobble"}
	],
	"bgMusic": {"source": "theme.mp3", "start": 1},
	"audioClips": [{"source": "whoosh.wav", "start": 2.25, "volume": 0.8, "track": "sfx"}]
}`

func TestParse(t *testing.T) {
	tl, err := Parse([]byte(sampleTimeline))
	require.NoError(t, err)

	assert.Equal(t, "Beach Trip", tl.Name)
	assert.Equal(t, Portrait, tl.RenderMode)

	require.Len(t, tl.Clips, 3)
	c1 := tl.Clips[0]
	assert.Equal(t, 1500*time.Millisecond, c1.Start)
	assert.Equal(t, 4*time.Second, c1.End)
	assert.True(t, c1.Keep)
	assert.Equal(t, "Hello", c1.Text)

	assert.False(t, tl.Clips[1].Keep, "string \"false\" must drop the clip")
	assert.Equal(t, 2*time.Second, tl.Clips[2].Start)
	_, ok := tl.Clips[2].DeclaredEnd()
	assert.False(t, ok)

	require.Len(t, tl.Overlays, 2)
	o := tl.Overlays[0]
	assert.Equal(t, StyleSlideUp, o.Style)
	assert.InDelta(t, 0.08, o.FontScale, 1e-9)
	assert.InDelta(t, 0.5, o.X, 1e-9)
	assert.InDelta(t, 0.2, o.Y, 1e-9)
	assert.Equal(t, DefaultOverlayDuration, o.Duration)
	assert.Equal(t, DefaultTextColor, o.Color)
	assert.Equal(t, StylePop, tl.Overlays[1].Style)

	require.NotNil(t, tl.Music)
	assert.Equal(t, DefaultMusicVolume, tl.Music.Volume)
	assert.Equal(t, time.Second, tl.Music.Start)

	require.Len(t, tl.AudioClips, 1)
	assert.Equal(t, 2250*time.Millisecond, tl.AudioClips[0].Start)
	assert.Equal(t, 0.8, tl.AudioClips[0].Volume)

	assert.Len(t, tl.Warnings, 1)
	assert.Contains(t, tl.Warnings[0], "wobble")
}

func TestParseLegacyKeys(t *testing.T) {
	doc := `{
		"name": "legacy",
		"globalSettings": {"colorGrading": {"exposure": 0.5}, "filterSuggestion": "Teal & Orange"},
		"edl": [{"source": "a.mp4", "start": 0, "end": 2, "keep": true}]
	}`
	tl, err := Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, tl.Clips, 1)
	assert.Equal(t, "clip-1", tl.Clips[0].ID)

	p := tl.GlobalGrading.Resolve()
	assert.Equal(t, 0.5, p.Exposure)
	assert.Equal(t, grading.TealOrange, p.Preset)
	assert.Equal(t, Landscape, tl.RenderMode)
}

func TestParseEDLWinsOverClips(t *testing.T) {
	doc := `{
		"clips": [{"id": "new", "source": "b.mp4", "end": 1}],
		"edl": [{"id": "old", "source": "a.mp4", "end": 2}]
	}`
	tl, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, tl.Clips, 1)
	assert.Equal(t, "old", tl.Clips[0].ID)
}

func TestParseNumericIDs(t *testing.T) {
	doc := `{
		"clips": [
			{"id": 1, "source": "a.mp4", "end": 2},
			{"id": "2", "source": "a.mp4", "end": 4},
			{"id": null, "source": "a.mp4", "end": 6}
		],
		"overlays": [{"id": 7, "content": "hi"}],
		"audioClips": [{"id": 12.5, "source": "pop.wav"}]
	}`
	tl, err := Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, tl.Clips, 3)
	assert.Equal(t, "1", tl.Clips[0].ID)
	assert.Equal(t, "2", tl.Clips[1].ID)
	assert.Equal(t, "clip-3", tl.Clips[2].ID)
	assert.Equal(t, "7", tl.Overlays[0].ID)
	assert.Equal(t, "12.5", tl.AudioClips[0].ID)

	_, err = Parse([]byte(`{"clips": [{"id": true, "source": "a.mp4"}]}`))
	assert.ErrorIs(t, err, ErrInvalidTimeline)
}

func TestGradingMergeIsPerField(t *testing.T) {
	temp, sat, contrast := 7000.0, 50.0, 30.0
	global := Grading{Temperature: &temp, Contrast: &contrast}
	override := Grading{Saturation: &sat}

	p := global.Merge(override).Resolve()
	assert.Equal(t, 7000.0, p.Temperature)
	assert.Equal(t, 30.0, p.Contrast)
	assert.Equal(t, 50.0, p.Saturation)
	assert.Equal(t, grading.None, p.Preset)

	assert.True(t, Grading{}.Resolve().IsIdentity())
}

func TestUnknownPresetWarns(t *testing.T) {
	tl, err := Parse([]byte(`{"globalGrading": {"preset": "Sepia Dream"}, "clips": []}`))
	require.NoError(t, err)
	assert.Equal(t, grading.None, tl.GlobalGrading.Resolve().Preset)
	require.Len(t, tl.Warnings, 1)
}

func TestOverlayNormalizeOnce(t *testing.T) {
	// 150 on the legacy scale becomes 1.5, which lands on the frame edge
	legacy := Overlay{X: 150, Y: 20, HasPosition: true, FontScale: 5}
	legacy.Normalize()
	assert.Equal(t, 1.0, legacy.X)
	assert.InDelta(t, 0.2, legacy.Y, 1e-9)
	assert.InDelta(t, 0.05, legacy.FontScale, 1e-9)
	assert.True(t, legacy.Normalized())

	legacy.Normalize()
	assert.Equal(t, 1.0, legacy.X)
	assert.InDelta(t, 0.2, legacy.Y, 1e-9, "second pass must not divide again")

	fraction := Overlay{X: 0.4, Y: 0.6, HasPosition: true, FontScale: 0.1}
	fraction.Normalize()
	assert.Equal(t, 0.4, fraction.X)
	assert.Equal(t, 0.6, fraction.Y)
	assert.Equal(t, 0.1, fraction.FontScale)
}

func TestOverlayDefaultCenters(t *testing.T) {
	tests := map[Style][2]float64{
		StylePop:        {0.5, 0.5},
		StyleFade:       {0.5, 0.5},
		StyleSlideUp:    {0.5, 0.8},
		StyleTypewriter: {0.3, 0.9},
	}
	for style, want := range tests {
		x, y := Overlay{Style: style}.Center()
		assert.Equal(t, want[0], x, style)
		assert.Equal(t, want[1], y, style)
	}

	x, y := Overlay{Style: StyleSlideUp, X: 0.1, Y: 0.2, HasPosition: true}.Center()
	assert.Equal(t, 0.1, x)
	assert.Equal(t, 0.2, y)
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte(`{"clips": [{"id": "x", "start": -1, "end": 2}]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTimeline))
	assert.Contains(t, err.Error(), "source is required")
	assert.Contains(t, err.Error(), "negative time")

	_, err = Parse([]byte(`{"clips": [{"source": "a.mp4", "start": "soon"}]}`))
	assert.ErrorIs(t, err, ErrInvalidTimeline)

	_, err = Parse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidTimeline)
}

func TestStats(t *testing.T) {
	tl, err := Parse([]byte(sampleTimeline))
	require.NoError(t, err)

	s := tl.Stats()
	assert.Equal(t, 3, s.Clips)
	assert.Equal(t, 2, s.KeptClips)
	assert.Equal(t, 2500*time.Millisecond, s.DeclaredDuration)
	assert.Equal(t, 1, s.OpenEnded)
	assert.Equal(t, []string{"beach.mp4", "sunset"}, s.Sources)
	assert.True(t, s.HasMusic)
	assert.Len(t, tl.KeptClips(), 2)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTimeline), 0o644))

	tl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Beach Trip", tl.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
