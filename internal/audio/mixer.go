// Package audio builds the audio side of a render: the source audio of the
// assembled segments, background music and secondary clips, summed into
// one stream.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kikiluvv/gravityedits/internal/assembler"
	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
	"github.com/kikiluvv/gravityedits/internal/resolver"
	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/rs/zerolog"
)

// ErrAudioLayer marks a music or audio clip layer that was left out.
var ErrAudioLayer = errors.New("audio layer failed")

// Mix format every layer is converted to before summing.
const (
	SampleRate    = 48000
	ChannelLayout = "stereo"
)

// Mixer plans audio layers into a filter graph.
type Mixer struct {
	logger   zerolog.Logger
	resolver assembler.SourceResolver
	prober   ffmpeg.Prober
}

// New creates a mixer
func New(logger zerolog.Logger, r assembler.SourceResolver, p ffmpeg.Prober) *Mixer {
	return &Mixer{
		logger:   logger.With().Str("component", "audio").Logger(),
		resolver: r,
		prober:   p,
	}
}

// Mix adds the audio layers of tl to g and returns the label of the mixed
// stream. The segments of asm must already be inputs of g (see
// Assembly.AddTo). Layers that cannot be used are skipped and reported as
// warnings. The mix lasts as long as the base track; music and clips add
// on top of it without normalization or ducking.
func (m *Mixer) Mix(ctx context.Context, tl *timeline.Timeline, asm *assembler.Assembly, g *ffmpeg.Graph) (string, []assembler.Warning, error) {
	if len(asm.Segments) == 0 {
		return "", nil, nil
	}

	var warnings []assembler.Warning
	layers := []string{m.base(asm, g)}
	total := asm.Duration()
	pc := resolver.ProjectContext{Name: tl.Name}

	if tl.Music != nil {
		label, err := m.music(ctx, *tl.Music, total, pc, g)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			warnings = append(warnings, m.skip("music", err))
		} else {
			layers = append(layers, label)
		}
	}

	for _, c := range tl.AudioClips {
		label, err := m.clip(ctx, c, total, pc, g)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			warnings = append(warnings, m.skip(c.ID, err))
			continue
		}
		layers = append(layers, label)
	}

	if len(layers) == 1 {
		return layers[0], warnings, nil
	}
	out := g.Label("aout")
	g.Chain(layers, fmt.Sprintf("amix=inputs=%d:normalize=0:duration=first", len(layers)), out)

	m.logger.Debug().
		Int("layers", len(layers)).
		Int("skipped", len(warnings)).
		Msg("audio mix planned")
	return out, warnings, nil
}

// base concatenates the source audio of each segment. Every chunk is padded
// to its segment length, and segments without an audio stream contribute
// silence, so the concat stays aligned with the video cuts.
func (m *Mixer) base(asm *assembler.Assembly, g *ffmpeg.Graph) string {
	labels := make([]string, len(asm.Segments))
	for i, s := range asm.Segments {
		labels[i] = g.Label("a")
		if s.HasAudio && s.Input >= 0 {
			f := ffmpeg.NewFilterBuilder().
				AudioTrim(s.Start, s.End).
				AudioResetPTS().
				AudioFormat(SampleRate, ChannelLayout).
				AudioFit(s.Duration()).
				Build()
			g.Chain([]string{ffmpeg.AudioStream(s.Input)}, f, labels[i])
			continue
		}
		f := ffmpeg.NewFilterBuilder().
			Custom(ffmpeg.Silence(s.Duration(), SampleRate)).
			AudioFormat(SampleRate, ChannelLayout).
			Build()
		g.Chain(nil, f, labels[i])
	}

	out := g.Label("abase")
	g.Chain(labels, ffmpeg.Concat(len(labels), 0, 1), out)
	return out
}

// music loops the track, trims it to its play length and delays it to its
// start offset.
func (m *Mixer) music(ctx context.Context, mu timeline.Music, total time.Duration, pc resolver.ProjectContext, g *ffmpeg.Graph) (string, error) {
	if mu.Start >= total {
		return "", fmt.Errorf("%w: starts at %s, after the timeline ends at %s", ErrAudioLayer, mu.Start, total)
	}
	path, err := m.open(ctx, mu.Source, pc)
	if err != nil {
		return "", err
	}

	length := mu.Duration
	if length <= 0 {
		length = total - mu.Start
	}

	idx := g.AddInput(ffmpeg.LoopedInput(path))
	out := g.Label("amus")
	f := ffmpeg.NewFilterBuilder().
		AudioTrim(0, length).
		AudioResetPTS().
		AudioFormat(SampleRate, ChannelLayout).
		AudioDelay(mu.Start).
		Volume(mu.Volume).
		Build()
	g.Chain([]string{ffmpeg.AudioStream(idx)}, f, out)

	m.logger.Debug().
		Str("path", path).
		Dur("start", mu.Start).
		Dur("length", length).
		Float64("volume", mu.Volume).
		Msg("music layer added")
	return out, nil
}

// clip places a secondary sound at its offset, optionally cut short.
func (m *Mixer) clip(ctx context.Context, c timeline.AudioClip, total time.Duration, pc resolver.ProjectContext, g *ffmpeg.Graph) (string, error) {
	if c.Start >= total {
		return "", fmt.Errorf("%w: starts at %s, after the timeline ends at %s", ErrAudioLayer, c.Start, total)
	}
	path, err := m.open(ctx, c.Source, pc)
	if err != nil {
		return "", err
	}

	fb := ffmpeg.NewFilterBuilder()
	if c.Duration > 0 {
		fb.AudioTrim(0, c.Duration)
	}
	f := fb.AudioResetPTS().
		AudioFormat(SampleRate, ChannelLayout).
		AudioDelay(c.Start).
		Volume(c.Volume).
		Build()

	idx := g.AddInput(ffmpeg.Input{Path: path})
	out := g.Label("asfx")
	g.Chain([]string{ffmpeg.AudioStream(idx)}, f, out)
	return out, nil
}

// open resolves name and checks that it carries audio.
func (m *Mixer) open(ctx context.Context, name string, pc resolver.ProjectContext) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: no source", ErrAudioLayer)
	}
	path, err := m.resolver.Resolve(name, pc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAudioLayer, err)
	}
	info, err := m.prober.ProbeVideo(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: probe %s: %w", ErrAudioLayer, path, err)
	}
	if !info.HasAudio {
		return "", fmt.Errorf("%w: %s has no audio stream", ErrAudioLayer, path)
	}
	return path, nil
}

func (m *Mixer) skip(item string, err error) assembler.Warning {
	m.logger.Warn().Err(err).Str("layer", item).Msg("skipping audio layer")
	return assembler.Warning{Item: item, Err: err}
}
