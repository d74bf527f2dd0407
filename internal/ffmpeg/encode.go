package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Job is one encoder invocation: a filter graph, the pads to map into the
// output, and how to encode them.
type Job struct {
	Graph *Graph
	// Maps are graph output labels ("vout") or stream specifiers ("0:a").
	Maps     []string
	Output   string
	Settings EncodeSettings
	// TotalDuration is the expected output length; progress percentages
	// are computed against it.
	TotalDuration time.Duration
	// ScriptDir receives the filter script file; defaults to the output's
	// directory.
	ScriptDir string
}

// Encoder runs encode jobs. Executor is the ffmpeg-backed implementation.
type Encoder interface {
	Encode(ctx context.Context, job Job, onProgress ProgressFunc) error
}

// Prober reads media metadata.
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*VideoInfo, error)
}

var (
	_ Encoder = (*Executor)(nil)
	_ Prober  = (*Executor)(nil)
)

// Encode writes the job's graph to a filter script and runs ffmpeg on it.
func (e *Executor) Encode(ctx context.Context, job Job, onProgress ProgressFunc) error {
	if job.Graph == nil || job.Graph.Len() == 0 {
		return fmt.Errorf("filter graph is empty")
	}
	if job.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if len(job.Maps) == 0 {
		return fmt.Errorf("at least one output stream must be mapped")
	}

	dir := job.ScriptDir
	if dir == "" {
		dir = filepath.Dir(job.Output)
	}
	scriptPath := filepath.Join(dir, strings.TrimSuffix(filepath.Base(job.Output), filepath.Ext(job.Output))+".filtergraph")
	if err := os.WriteFile(scriptPath, []byte(job.Graph.Script()), 0o644); err != nil {
		return fmt.Errorf("failed to write filter script: %w", err)
	}
	defer os.Remove(scriptPath)

	args := encodeArgs(job, scriptPath)

	e.logger.Info().
		Str("output", job.Output).
		Int("inputs", len(job.Graph.Inputs())).
		Dur("duration", job.TotalDuration).
		Msg("starting encode")

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: onProgress,
		TotalDuration:   job.TotalDuration,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("encode output")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("encode %s failed: %w", filepath.Base(job.Output), err)
	}

	e.logger.Info().Str("output", job.Output).Msg("encode completed")
	return nil
}

func encodeArgs(job Job, scriptPath string) []string {
	s := job.Settings.withDefaults()

	args := job.Graph.InputArgs()
	args = append(args, "-filter_complex_script", scriptPath)

	hasAudio := false
	for _, m := range job.Maps {
		if strings.Contains(m, ":") {
			args = append(args, "-map", m)
		} else {
			args = append(args, "-map", "["+m+"]")
		}
		if strings.HasPrefix(m, "a") || strings.Contains(m, ":a") {
			hasAudio = true
		}
	}

	args = append(args,
		"-c:v", s.VideoCodec,
		"-crf", strconv.Itoa(s.CRF),
		"-preset", s.Preset,
		"-pix_fmt", s.PixFmt,
	)
	if s.FPS > 0 {
		args = append(args, "-r", fmt.Sprintf("%g", s.FPS))
	}
	if hasAudio {
		args = append(args, "-c:a", s.AudioCodec, "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	if job.TotalDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(job.TotalDuration.Seconds(), 'f', 3, 64))
	}
	args = append(args, "-movflags", "+faststart", job.Output)
	return args
}
