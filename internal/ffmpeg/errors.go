package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrEncoderFailure is returned when ffmpeg exits non-zero or is killed for
// any reason other than context cancellation.
var ErrEncoderFailure = errors.New("encoder failure")

// EncoderError carries the exit status and the last lines ffmpeg wrote to
// stderr, which is usually where the actual reason is.
type EncoderError struct {
	ExitCode int
	Tail     []string
	Err      error
}

func (e *EncoderError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	if len(e.Tail) > 0 {
		msg += ": " + strings.Join(e.Tail, " | ")
	}
	return msg
}

func (e *EncoderError) Unwrap() []error {
	return []error{ErrEncoderFailure, e.Err}
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || isProgressKey(line) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tailBuffer) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}
