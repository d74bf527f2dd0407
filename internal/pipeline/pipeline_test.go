package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kikiluvv/gravityedits/internal/assembler"
	"github.com/kikiluvv/gravityedits/internal/audio"
	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/overlay"
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
	return "", fmt.Errorf("%w: %s", resolver.ErrSourceNotFound, name)
}

type fakeProber map[string]*ffmpeg.VideoInfo

func (f fakeProber) ProbeVideo(_ context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if info, ok := f[path]; ok {
		return info, nil
	}
	return nil, errors.New("ffprobe failed")
}

// fakeEncoder records jobs and writes a stub output file. The encode
// numbered blockOn (1-based) writes a partial file and then waits for
// cancellation the way an interrupted ffmpeg would.
type fakeEncoder struct {
	mu      sync.Mutex
	jobs    []ffmpeg.Job
	scripts []string
	blockOn int
	fail    func(n int) error
}

func (f *fakeEncoder) Encode(ctx context.Context, job ffmpeg.Job, onProgress ffmpeg.ProgressFunc) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.scripts = append(f.scripts, job.Graph.Script())
	n := len(f.jobs)
	f.mu.Unlock()

	if err := os.WriteFile(job.Output, []byte("video"), 0o644); err != nil {
		return err
	}
	onProgress(&ffmpeg.Progress{Percentage: 50})
	if n == f.blockOn {
		<-ctx.Done()
		return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
	}
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return err
		}
	}
	onProgress(&ffmpeg.Progress{Percentage: 100, Done: true})
	return nil
}

func (f *fakeEncoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, e := range r.events {
		if len(out) == 0 || out[len(out)-1] != e.State {
			out = append(out, e.State)
		}
	}
	return out
}

type fixture struct {
	renderer *Renderer
	encoder  *fakeEncoder
	tempDir  string
	export   string
}

func newFixture(t *testing.T, enc *fakeEncoder) fixture {
	t.Helper()
	logger := zerolog.Nop()
	res := fakeResolver{"a.mp4": "/media/a.mp4", "b.mp4": "/media/b.mp4"}
	probe := fakeProber{
		"/media/a.mp4": {Duration: 10 * time.Second, Width: 1280, Height: 720, HasVideo: true, HasAudio: true},
		"/media/b.mp4": {Duration: 10 * time.Second, Width: 1280, Height: 720, HasVideo: true},
	}
	comp, err := overlay.New(logger, overlay.Options{})
	require.NoError(t, err)

	tempDir, export := t.TempDir(), t.TempDir()
	r := New(logger,
		assembler.New(logger, res, probe, assembler.Options{FPS: 30}),
		audio.New(logger, res, probe),
		comp, enc,
		Options{TempDir: tempDir, ExportDir: export, URLPrefix: "/exports/", Concurrency: 2, WriteSubtitles: true})
	return fixture{renderer: r, encoder: enc, tempDir: tempDir, export: export}
}

func (f fixture) assertClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dir should be removed")
}

func twoClips() *timeline.Timeline {
	return &timeline.Timeline{
		Name: "My Trip",
		Clips: []timeline.Clip{
			{ID: "c1", Source: "a.mp4", Start: 0, End: 4 * time.Second, Keep: true, Text: "hello"},
			{ID: "c2", Source: "b.mp4", Start: 2 * time.Second, End: 5 * time.Second, Keep: true},
		},
	}
}

func TestRenderEmptyTimeline(t *testing.T) {
	f := newFixture(t, &fakeEncoder{})
	var rec recorder
	tl := &timeline.Timeline{Clips: []timeline.Clip{
		{ID: "gone", Source: "missing.mp4", End: time.Second, Keep: true},
		{ID: "dropped", Source: "a.mp4", End: time.Second, Keep: false},
	}}

	_, err := f.renderer.Render(context.Background(), tl, RenderOptions{OnProgress: rec.record})
	require.ErrorIs(t, err, ErrEmptyTimeline)
	assert.Zero(t, f.encoder.calls())

	last := rec.last()
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, StatusFailed, last.Status)
	assert.True(t, last.State.Terminal())
	f.assertClean(t)
}

func TestRenderWithoutOverlays(t *testing.T) {
	f := newFixture(t, &fakeEncoder{})
	var rec recorder
	out := filepath.Join(f.export, "out.mp4")

	res, err := f.renderer.Render(context.Background(), twoClips(), RenderOptions{OutputPath: out, OnProgress: rec.record})
	require.NoError(t, err)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, "/exports/out.mp4", res.URL)
	assert.Equal(t, 7*time.Second, res.Duration)
	assert.Equal(t, 1280, res.Width)
	assert.FileExists(t, out)

	require.Equal(t, 1, f.encoder.calls())
	job := f.encoder.jobs[0]
	assert.Equal(t, []string{"vbase0", "abase0"}, job.Maps)
	assert.Equal(t, 7*time.Second, job.TotalDuration)

	// the second clip has no audio stream and gets silence instead
	assert.Contains(t, f.encoder.scripts[0], "anullsrc=r=48000:cl=stereo,atrim=duration=3.000")

	assert.Equal(t, filepath.Join(f.export, "out.srt"), res.SubtitlePath)
	srt, err := os.ReadFile(res.SubtitlePath)
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:04,000\nhello\n", string(srt))

	last := rec.last()
	assert.Equal(t, StateCompleted, last.State)
	assert.Equal(t, 100.0, last.Progress)
	assert.Equal(t, "/exports/out.mp4", last.URL)
	assert.Equal(t, []State{StateResolvingSources, StateAssemblingBase, StateEncodingBase, StateCompleted}, rec.states())
	f.assertClean(t)
}

func TestRenderWithOverlays(t *testing.T) {
	f := newFixture(t, &fakeEncoder{})
	var rec recorder
	tl := twoClips()
	tl.Overlays = []timeline.Overlay{
		{ID: "o1", Content: "Title", Start: time.Second, Duration: 2 * time.Second, Style: timeline.StyleFade, FontScale: 0.05, Color: "white"},
		{ID: "o2", Content: "Later", Start: 4 * time.Second, Duration: time.Second, Style: timeline.StyleSlideUp, FontScale: 0.05, Color: "yellow"},
		{ID: "late", Content: "Never", Start: 30 * time.Second, Duration: time.Second, Style: timeline.StylePop},
	}

	res, err := f.renderer.Render(context.Background(), tl, RenderOptions{OnProgress: rec.record})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(res.OutputPath), "My_Trip_final_"))
	assert.Equal(t, f.export, filepath.Dir(res.OutputPath))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "late")

	require.Equal(t, 2, f.encoder.calls())
	final := f.encoder.jobs[1]
	script := f.encoder.scripts[1]
	assert.Equal(t, res.OutputPath, final.Output)
	assert.Equal(t, []string{"vov1", "0:a:0"}, final.Maps)
	require.Len(t, final.Graph.Inputs(), 3)
	assert.Equal(t, "1", final.Graph.Inputs()[1].Options[1])
	assert.Contains(t, script, "enable='between(t,1.000,3.000)'")
	assert.Contains(t, script, "enable='between(t,4.000,5.000)'")
	assert.Contains(t, script, "fade=t=in:st=0:d=0.500:alpha=1")
	assert.Contains(t, script, "setpts=PTS-STARTPTS+4.000/TB")
	assert.Contains(t, script, "eval=frame")
	assert.NotContains(t, script, "30.000")

	assert.Equal(t, []State{
		StateResolvingSources, StateAssemblingBase, StateEncodingBase,
		StateRenderingOverlays, StateCompositingFinal, StateCompleted,
	}, rec.states())

	prev := 0.0
	for _, e := range rec.events {
		assert.GreaterOrEqual(t, e.Progress, prev)
		prev = e.Progress
	}
	f.assertClean(t)
}

func TestRenderCancelled(t *testing.T) {
	f := newFixture(t, &fakeEncoder{blockOn: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rec recorder
	onProgress := func(e Event) {
		rec.record(e)
		if e.State == StateEncodingBase && e.Progress > 10 {
			cancel()
		}
	}
	out := filepath.Join(f.export, "out.mp4")

	_, err := f.renderer.Render(ctx, twoClips(), RenderOptions{OutputPath: out, OnProgress: onProgress})
	require.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, rec.last().State)
	assert.Equal(t, StatusCancelled, rec.last().Status)
	assert.NoFileExists(t, out)
	f.assertClean(t)
}

func TestRenderCancelledDuringComposite(t *testing.T) {
	f := newFixture(t, &fakeEncoder{blockOn: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rec recorder
	onProgress := func(e Event) {
		rec.record(e)
		if e.State == StateCompositingFinal && e.Progress > overlayBandEnd {
			cancel()
		}
	}
	tl := twoClips()
	tl.Overlays = []timeline.Overlay{{ID: "o", Content: "Hi", Start: time.Second, Duration: time.Second, FontScale: 0.05, Color: "white"}}
	out := filepath.Join(f.export, "out.mp4")

	_, err := f.renderer.Render(ctx, tl, RenderOptions{OutputPath: out, OnProgress: onProgress})
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, 2, f.encoder.calls())
	assert.Equal(t, out, f.encoder.jobs[1].Output)
	assert.Equal(t, StateCancelled, rec.last().State)
	assert.Equal(t, StatusCancelled, rec.last().Status)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, filepath.Join(f.export, "out.srt"))
	f.assertClean(t)
}

func TestRenderNilTimeline(t *testing.T) {
	f := newFixture(t, &fakeEncoder{})
	var rec recorder

	_, err := f.renderer.Render(context.Background(), nil, RenderOptions{OnProgress: rec.record})
	require.ErrorIs(t, err, timeline.ErrInvalidTimeline)
	assert.Equal(t, StateFailed, rec.last().State)
	assert.Zero(t, f.encoder.calls())
	f.assertClean(t)
}

func TestRenderEncoderFailureRemovesPartialOutput(t *testing.T) {
	enc := &fakeEncoder{fail: func(n int) error {
		if n == 2 {
			return &ffmpeg.EncoderError{ExitCode: 1, Tail: []string{"Invalid argument"}, Err: errors.New("exit status 1")}
		}
		return nil
	}}
	f := newFixture(t, enc)
	var rec recorder
	tl := twoClips()
	tl.Overlays = []timeline.Overlay{{ID: "o", Content: "Hi", Start: 0, Duration: time.Second, FontScale: 0.05, Color: "white"}}
	out := filepath.Join(f.export, "out.mp4")

	_, err := f.renderer.Render(context.Background(), tl, RenderOptions{OutputPath: out, OnProgress: rec.record})
	require.ErrorIs(t, err, ffmpeg.ErrEncoderFailure)
	assert.Equal(t, StateFailed, rec.last().State)
	assert.Contains(t, rec.last().Message, "Invalid argument")
	assert.NoFileExists(t, out)
	f.assertClean(t)
}

func TestRenderInvalidTimelineKeepsExistingOutput(t *testing.T) {
	f := newFixture(t, &fakeEncoder{})
	out := filepath.Join(f.export, "existing.mp4")
	require.NoError(t, os.WriteFile(out, []byte("keep me"), 0o644))

	tl := &timeline.Timeline{Clips: []timeline.Clip{{ID: "c", Keep: true}}}
	_, err := f.renderer.Render(context.Background(), tl, RenderOptions{OutputPath: out})
	require.ErrorIs(t, err, timeline.ErrInvalidTimeline)
	assert.FileExists(t, out)
	assert.Zero(t, f.encoder.calls())
}

func TestCompositePlan(t *testing.T) {
	assets := []overlay.Asset{
		{Path: "/w/overlay_0.png", X: 10, Y: 20, Start: time.Second, Duration: 2 * time.Second, Style: timeline.StylePop},
	}
	g, maps := compositePlan("/w/base.mp4", assets, 1080, 30)

	assert.Equal(t, []string{"vov0", "0:a:0"}, maps)
	assert.Equal(t,
		"[1:v:0]format=rgba,setpts=PTS-STARTPTS+1.000/TB[ov0];\n"+
			"[0:v:0][ov0]overlay=x=10:y=20:enable='between(t,1.000,3.000)':eof_action=pass[vov0]",
		g.Script())
	assert.Equal(t, []string{"-loop", "1", "-framerate", "30", "-t", "2.000"}, g.Inputs()[1].Options)
}
