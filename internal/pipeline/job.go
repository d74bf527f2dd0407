package pipeline

import (
	"sync"

	"github.com/kikiluvv/gravityedits/internal/assembler"
	"github.com/rs/zerolog"
)

// job tracks one render's state and progress. Progress never moves
// backwards.
type job struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	state    State
	progress float64
	warnings []string
	notify   ProgressFunc
	// partial is the output path once this job has started writing it.
	partial string
}

func newJob(logger zerolog.Logger, notify ProgressFunc) *job {
	return &job{logger: logger, state: StateIdle, notify: notify}
}

// enter transitions to s and reports it.
func (j *job) enter(s State, progress float64, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logger.Info().Str("state", string(s)).Float64("progress", max(progress, j.progress)).Msg(msg)
	j.state = s
	j.emitLocked(progress, msg, "")
}

// report updates progress within the current state.
func (j *job) report(progress float64, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.emitLocked(progress, msg, "")
}

// band maps a 0..100 encoder percentage into [lo, hi].
func (j *job) band(lo, hi float64, msg string) func(pct float64) {
	return func(pct float64) {
		j.report(lo+(hi-lo)*min(max(pct, 0), 100)/100, msg)
	}
}

func (j *job) warn(w assembler.Warning) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.warnings = append(j.warnings, w.String())
	j.emitLocked(j.progress, "warning: "+w.String(), "")
}

func (j *job) finish(s State, msg, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
	progress := j.progress
	if s == StateCompleted {
		progress = 100
	}
	j.emitLocked(progress, msg, url)
}

func (j *job) writing(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.partial = path
}

func (j *job) partialOutput() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.partial
}

func (j *job) collected() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.warnings...)
}

func (j *job) emitLocked(progress float64, msg, url string) {
	if progress > j.progress {
		j.progress = progress
	}
	if j.notify == nil {
		return
	}
	j.notify(Event{
		State:    j.state,
		Status:   status(j.state),
		Progress: j.progress,
		Message:  msg,
		URL:      url,
	})
}

func status(s State) string {
	switch s {
	case StateCompleted:
		return StatusCompleted
	case StateFailed:
		return StatusFailed
	case StateCancelled:
		return StatusCancelled
	default:
		return StatusProcessing
	}
}
