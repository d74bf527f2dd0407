package ffmpeg

import "time"

// VideoInfo contains metadata about a media file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	Rotation   int
	FPS        float64
	Bitrate    int64
	VideoCodec string
	HasVideo   bool
	HasAudio   bool
	AudioCodec string
}

// DisplaySize returns the frame size as it is presented, with 90/270
// degree rotation metadata applied.
func (v *VideoInfo) DisplaySize() (int, int) {
	switch ((v.Rotation % 360) + 360) % 360 {
	case 90, 270:
		return v.Height, v.Width
	default:
		return v.Width, v.Height
	}
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	OutTime time.Duration
	Speed   string
	// Percentage is OutTime relative to RunOptions.TotalDuration, in [0,100].
	// Zero when the total is unknown.
	Percentage float64
	Done       bool
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
	// TotalDuration is the expected output duration, used to turn elapsed
	// time markers into a percentage.
	TotalDuration time.Duration
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPixFmt     = "yuv420p"
	DefaultFPS        = 30.0
)

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// OverlayOptions configures compositing of one still overlay asset.
type OverlayOptions struct {
	X     int
	Y     int
	Start time.Duration
	End   time.Duration
	// FadeIn/FadeOut fade the asset's alpha channel.
	FadeIn  time.Duration
	FadeOut time.Duration
	// SlideFrom, when non-zero, animates Y from Y+SlideFrom up to Y over
	// SlideDuration after Start.
	SlideFrom     int
	SlideDuration time.Duration
}

// EncodeSettings selects codecs and quality for an encode job.
type EncodeSettings struct {
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
	PixFmt     string
	FPS        float64
}

func (s EncodeSettings) withDefaults() EncodeSettings {
	if s.VideoCodec == "" {
		s.VideoCodec = DefaultVideoCodec
	}
	if s.AudioCodec == "" {
		s.AudioCodec = DefaultAudioCodec
	}
	if s.CRF == 0 {
		s.CRF = DefaultCRF
	}
	if s.Preset == "" {
		s.Preset = DefaultPreset
	}
	if s.PixFmt == "" {
		s.PixFmt = DefaultPixFmt
	}
	return s
}
