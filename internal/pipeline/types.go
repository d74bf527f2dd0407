package pipeline

import (
	"errors"
	"time"

	"github.com/kikiluvv/gravityedits/internal/ffmpeg"
)

// Terminal errors of a render.
var (
	ErrEmptyTimeline = errors.New("no clips survived assembly")
	ErrCancelled     = errors.New("render cancelled")
)

// State is a render job's position in its lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StateResolvingSources  State = "resolving_sources"
	StateAssemblingBase    State = "assembling_base"
	StateEncodingBase      State = "encoding_base"
	StateRenderingOverlays State = "rendering_overlays"
	StateCompositingFinal  State = "compositing_final"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
	StateCancelled         State = "cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Status values carried by events.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Progress bands, in percent.
const (
	baseBandEnd    = 20.0
	overlayBandEnd = 50.0
)

// Event is one progress report.
type Event struct {
	State    State
	Status   string
	Progress float64
	Message  string
	// URL is set on completion.
	URL string
}

// ProgressFunc receives events on every state transition and on encoder
// ticks. It may be called from several goroutines, but never concurrently.
type ProgressFunc func(Event)

// Options configures a Renderer
type Options struct {
	// TempDir holds the per-job work directories.
	TempDir string
	// ExportDir receives outputs when no path is given.
	ExportDir   string
	URLPrefix   string
	Concurrency int
	// WriteSubtitles emits an .srt next to the output.
	WriteSubtitles bool
	Settings       ffmpeg.EncodeSettings
}

// RenderOptions configures one render
type RenderOptions struct {
	// OutputPath defaults to <ExportDir>/<name>_final_<unix>.mp4.
	OutputPath string
	OnProgress ProgressFunc
}

// Result describes a finished render.
type Result struct {
	OutputPath   string
	SubtitlePath string
	URL          string
	Duration     time.Duration
	Width        int
	Height       int
	Warnings     []string
}
