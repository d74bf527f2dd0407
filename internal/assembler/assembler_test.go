package assembler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/grading"
	"github.com/kikiluvv/gravityedits/internal/resolver"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]string

func (f fakeResolver) Resolve(name string, _ resolver.ProjectContext) (string, error) {
	if p, ok := f[name]; ok {
		return p, nil
	}
	return "", resolver.ErrSourceNotFound
}

type fakeProber map[string]*ffmpeg.VideoInfo

func (f fakeProber) ProbeVideo(_ context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if info, ok := f[path]; ok {
		return info, nil
	}
	return nil, errors.New("ffprobe failed")
}

func newAssembler(files map[string]*ffmpeg.VideoInfo) *Assembler {
	r := fakeResolver{}
	for path := range files {
		r[strings.TrimPrefix(path, "/media/")] = path
	}
	return New(zerolog.Nop(), r, fakeProber(files), Options{})
}

func landscape(d time.Duration) *ffmpeg.VideoInfo {
	return &ffmpeg.VideoInfo{Duration: d, Width: 1280, Height: 720, HasVideo: true, HasAudio: true}
}

func ptr[T any](v T) *T { return &v }

func TestAssembleKeepsOrderAndSkipsDropped(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{
		"/media/a.mp4": landscape(20 * time.Second),
		"/media/b.mp4": landscape(10 * time.Second),
	})
	tl := &timeline.Timeline{Clips: []timeline.Clip{
		{ID: "c1", Source: "a.mp4", Start: 0, End: 5 * time.Second, Keep: true},
		{ID: "c2", Source: "b.mp4", Start: time.Second, End: 3 * time.Second, Keep: false},
		{ID: "c3", Source: "b.mp4", Start: 2 * time.Second, Duration: 4 * time.Second, Keep: true},
	}}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	require.Len(t, asm.Segments, 2)
	assert.Equal(t, "c1", asm.Segments[0].ClipID)
	assert.Equal(t, "c3", asm.Segments[1].ClipID)
	assert.Equal(t, 6*time.Second, asm.Segments[1].End)
	assert.Equal(t, 9*time.Second, asm.Duration())
	assert.Equal(t, 1280, asm.Width)
	assert.Equal(t, 720, asm.Height)
	assert.Empty(t, asm.Warnings)
}

func TestAssembleRepeatedClipIDs(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{"/media/a.mp4": landscape(30 * time.Second)})
	tl := &timeline.Timeline{Clips: []timeline.Clip{
		{ID: "x", Source: "a.mp4", Start: 0, End: 5 * time.Second, Keep: true},
		{ID: "dropped", Source: "a.mp4", End: time.Second, Keep: false},
		{ID: "x", Source: "a.mp4", Start: 10 * time.Second, End: 12 * time.Second, Keep: true},
	}}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	require.Len(t, asm.Segments, 2)
	assert.Equal(t, 2, asm.Segments[1].ClipIndex)
	assert.Equal(t, map[int]time.Duration{0: 5 * time.Second, 2: 2 * time.Second}, asm.Durations())
}

func TestAssembleClampsAndRepairs(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{"/media/a.mp4": landscape(10 * time.Second)})
	tl := &timeline.Timeline{Clips: []timeline.Clip{
		{ID: "long", Source: "a.mp4", Start: 8 * time.Second, End: 30 * time.Second, Keep: true},
		{ID: "open", Source: "a.mp4", Start: 4 * time.Second, Keep: true},
		{ID: "backwards", Source: "a.mp4", Start: 6 * time.Second, End: 2 * time.Second, Keep: true},
		{ID: "past", Source: "a.mp4", Start: 12 * time.Second, End: 15 * time.Second, Keep: true},
	}}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	require.Len(t, asm.Segments, 3)
	assert.Equal(t, 10*time.Second, asm.Segments[0].End)
	assert.Equal(t, 10*time.Second, asm.Segments[1].End)
	assert.Equal(t, 6*time.Second, asm.Segments[2].Start)
	assert.Equal(t, 10*time.Second, asm.Segments[2].End)

	require.Len(t, asm.Warnings, 1)
	assert.Equal(t, "past", asm.Warnings[0].Item)
	assert.ErrorIs(t, asm.Warnings[0].Err, ErrInvalidTrimRange)
}

func TestAssembleSkipsMissingSources(t *testing.T) {
	a := New(zerolog.Nop(),
		fakeResolver{"a.mp4": "/media/a.mp4", "broken.mp4": "/media/broken.mp4"},
		fakeProber{"/media/a.mp4": landscape(5 * time.Second)},
		Options{})
	tl := &timeline.Timeline{Clips: []timeline.Clip{
		{ID: "gone", Source: "nope.mp4", End: time.Second, Keep: true},
		{ID: "broken", Source: "broken.mp4", End: time.Second, Keep: true},
		{ID: "ok", Source: "a.mp4", End: time.Second, Keep: true},
	}}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	require.Len(t, asm.Segments, 1)
	require.Len(t, asm.Warnings, 2)
	assert.ErrorIs(t, asm.Warnings[0].Err, resolver.ErrSourceNotFound)
	assert.Equal(t, "broken", asm.Warnings[1].Item)
}

func TestAssembleResolutionFromRotatedSource(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{
		"/media/phone.mov": {Duration: 5 * time.Second, Width: 1920, Height: 1080, Rotation: 90, HasVideo: true},
	})
	tl := &timeline.Timeline{Clips: []timeline.Clip{{ID: "c", Source: "phone.mov", End: 2 * time.Second, Keep: true}}}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	assert.Equal(t, 1080, asm.Width)
	assert.Equal(t, 1920, asm.Height)
}

func TestAssembleDefaultResolution(t *testing.T) {
	a := newAssembler(nil)
	asm, err := a.Assemble(context.Background(), &timeline.Timeline{})
	require.NoError(t, err)
	assert.Empty(t, asm.Segments)
	assert.Equal(t, DefaultWidth, asm.Width)
	assert.Equal(t, DefaultHeight, asm.Height)
}

func TestAssemblePortraitCrop(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{"/media/a.mp4": {
		Duration: 5 * time.Second, Width: 1920, Height: 1080, HasVideo: true,
	}})
	tl := &timeline.Timeline{
		RenderMode: timeline.Portrait,
		Clips:      []timeline.Clip{{ID: "c", Source: "a.mp4", End: 2 * time.Second, Keep: true}},
	}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	assert.Equal(t, PortraitWidth, asm.Width)
	assert.Equal(t, PortraitHeight, asm.Height)
	require.NotNil(t, asm.Segments[0].Crop)
	assert.Equal(t, Crop{Width: 608, Height: 1080, X: 656, Y: 0}, *asm.Segments[0].Crop)
}

func TestAssembleMergesGrading(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{"/media/a.mp4": landscape(5 * time.Second)})
	tl := &timeline.Timeline{
		GlobalGrading: timeline.Grading{Contrast: ptr(20.0), Preset: ptr(grading.Cinematic)},
		Clips: []timeline.Clip{{
			ID: "c", Source: "a.mp4", End: time.Second, Keep: true,
			Grading: timeline.Grading{Exposure: ptr(0.5)},
		}},
	}

	asm, err := a.Assemble(context.Background(), tl)
	require.NoError(t, err)
	g := asm.Segments[0].Grading
	assert.Equal(t, 20.0, g.Contrast)
	assert.Equal(t, 0.5, g.Exposure)
	assert.Equal(t, grading.Cinematic, g.Preset)
	assert.Equal(t, grading.DefaultSaturation, g.Saturation)
}

func TestAssembleCancelled(t *testing.T) {
	a := newAssembler(map[string]*ffmpeg.VideoInfo{"/media/a.mp4": landscape(5 * time.Second)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Assemble(ctx, &timeline.Timeline{Clips: []timeline.Clip{{ID: "c", Source: "a.mp4", Keep: true}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddToGraph(t *testing.T) {
	asm := &Assembly{
		Width: 1280, Height: 720, FPS: 30,
		Segments: []Segment{
			{ClipID: "a", Path: "/media/a.mp4", Start: time.Second, End: 3 * time.Second, Grading: grading.Default()},
			{ClipID: "b", Path: "/media/b.mp4", End: 2 * time.Second, Grading: grading.Params{
				Temperature: grading.DefaultTemperature, Saturation: 0,
			}, Crop: &Crop{Width: 400, Height: 720, X: 10}},
		},
	}

	g := ffmpeg.NewGraph()
	label := asm.AddTo(g)
	assert.Equal(t, "vbase0", label)
	assert.Equal(t, 0, asm.Segments[0].Input)
	assert.Equal(t, 1, asm.Segments[1].Input)

	script := g.Script()
	assert.Contains(t, script, "[0:v:0]trim=start=1.000:end=3.000,setpts=PTS-STARTPTS,scale=1280:720,setsar=1,fps=30.000000,format=yuv420p[v0]")
	assert.Contains(t, script, "crop=400:720:10:0,scale=1280:720")
	assert.Contains(t, script, "geq=")
	assert.Contains(t, script, "[v0][v1]concat=n=2:v=1:a=0[vbase0]")
}

func TestTrimRange(t *testing.T) {
	start, end, err := trimRange(timeline.Clip{Start: 2 * time.Second}, 0)
	assert.ErrorIs(t, err, ErrInvalidTrimRange)
	assert.Zero(t, start+end)

	start, end, err = trimRange(timeline.Clip{Start: 2 * time.Second, End: 5 * time.Second}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, start)
	assert.Equal(t, 5*time.Second, end)
}
