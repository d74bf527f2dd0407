package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kikiluvv/gravityedits/pkg/util"
	"github.com/rs/zerolog"
)

// DefaultKillGrace is how long a cancelled ffmpeg gets to exit after
// SIGINT before it is killed.
const DefaultKillGrace = 5 * time.Second

// Options locates the binaries and tunes process handling.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
	KillGrace   time.Duration
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	killGrace   time.Duration
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegBin := opts.FFmpegPath
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	ffprobeBin := opts.FFprobePath
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	grace := opts.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
		killGrace:   grace,
	}, nil
}

// Run executes ffmpeg with the given arguments and streams progress.
// Cancelling ctx interrupts the process and kills it if it has not exited
// within the kill grace period; Run only returns once it is gone.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-hide_banner", "-nostdin", "-nostats", "-loglevel", "info"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", strconv.Itoa(e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Cancel = func() error {
		// SIGINT lets ffmpeg close the output cleanly; WaitDelay escalates.
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = e.killGrace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := newTailBuffer(8)

	var wg sync.WaitGroup
	wg.Add(1)

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.TotalDuration, opts.ProgressHandler, func(line string) {
			tail.add(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.logger.Info().Err(ctxErr).Msg("ffmpeg interrupted")
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &EncoderError{ExitCode: code, Tail: tail.snapshot(), Err: err}
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// statsTime matches the elapsed marker of classic stats lines
// ("frame= 120 fps= 30 ... time=00:00:04.00 bitrate=...").
var statsTime = regexp.MustCompile(`time=(\d+:\d{2}:\d{2}(?:\.\d+)?)`)

func isProgressKey(line string) bool {
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return false
	}
	switch line[:i] {
	case "frame", "fps", "bitrate", "total_size", "out_time_us", "out_time_ms", "out_time",
		"dup_frames", "drop_frames", "speed", "progress":
		return true
	}
	return strings.HasPrefix(line, "stream_")
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, total time.Duration, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	progressData := &Progress{}

	emit := func(p *Progress) {
		if progressHandler == nil {
			return
		}
		if total > 0 {
			pct := float64(p.OutTime) / float64(total) * 100
			if pct > 100 {
				pct = 100
			}
			if pct < 0 {
				pct = 0
			}
			p.Percentage = pct
		}
		progressHandler(p)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if logHandler != nil {
			logHandler(line)
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		switch key {
		case "frame":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				progressData.Frame = n
			} else if m := statsTime.FindStringSubmatch(line); m != nil {
				// classic stats line, not a -progress block
				if d, err := util.ParseTimestamp(m[1]); err == nil {
					emit(&Progress{OutTime: d})
				}
			}
		case "fps":
			if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				progressData.FPS = f
			}
		case "bitrate":
			progressData.Bitrate = strings.TrimSpace(value)
		case "out_time_us":
			if us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && us >= 0 {
				progressData.OutTime = time.Duration(us) * time.Microsecond
			}
		case "out_time":
			if progressData.OutTime == 0 {
				if d, err := util.ParseTimestamp(value); err == nil && d > 0 {
					progressData.OutTime = d
				}
			}
		case "speed":
			progressData.Speed = strings.TrimSpace(value)
		case "progress":
			// End of progress block
			progressData.Done = strings.TrimSpace(value) == "end"
			emit(progressData)
			progressData = &Progress{}
		}
	}
}
