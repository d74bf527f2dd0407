package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/gravityedits/pkg/util"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Trim cuts the video stream to [start, end) of the input timeline.
func (fb *FilterBuilder) Trim(start, end time.Duration) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("trim=start=%s:end=%s", util.FormatSeconds(start), util.FormatSeconds(end)))
	return fb
}

// ResetPTS rebases video timestamps to zero after a trim.
func (fb *FilterBuilder) ResetPTS() *FilterBuilder {
	fb.filters = append(fb.filters, "setpts=PTS-STARTPTS")
	return fb
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// SquarePixels resets the sample aspect ratio so concat accepts the stream.
func (fb *FilterBuilder) SquarePixels() *FilterBuilder {
	fb.filters = append(fb.filters, "setsar=1")
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%f", fps))
	return fb
}

// Crop adds a crop filter
func (fb *FilterBuilder) Crop(width, height, x, y int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("crop=%d:%d:%d:%d", width, height, x, y))
	return fb
}

// Format converts to the given pixel format.
func (fb *FilterBuilder) Format(pixFmt string) *FilterBuilder {
	if pixFmt == "" {
		return fb
	}
	fb.filters = append(fb.filters, "format="+pixFmt)
	return fb
}

// AlphaFade fades the alpha channel in at the start and out before total.
func (fb *FilterBuilder) AlphaFade(fadeIn, fadeOut, total time.Duration) *FilterBuilder {
	if fadeIn > 0 {
		fb.filters = append(fb.filters,
			fmt.Sprintf("fade=t=in:st=0:d=%s:alpha=1", util.FormatSeconds(fadeIn)))
	}
	if fadeOut > 0 && total > fadeOut {
		fb.filters = append(fb.filters,
			fmt.Sprintf("fade=t=out:st=%s:d=%s:alpha=1", util.FormatSeconds(total-fadeOut), util.FormatSeconds(fadeOut)))
	}
	return fb
}

// ShiftPTS delays a stream so its first frame lands at offset.
func (fb *FilterBuilder) ShiftPTS(offset time.Duration) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("setpts=PTS-STARTPTS+%s/TB", util.FormatSeconds(offset)))
	return fb
}

// AudioTrim cuts the audio stream to [start, end).
func (fb *FilterBuilder) AudioTrim(start, end time.Duration) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("atrim=start=%s:end=%s", util.FormatSeconds(start), util.FormatSeconds(end)))
	return fb
}

// AudioFit pads the audio stream with silence and cuts it to exactly d.
func (fb *FilterBuilder) AudioFit(d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, "apad", "atrim=duration="+util.FormatSeconds(d))
	return fb
}

// AudioResetPTS rebases audio timestamps to zero after a trim.
func (fb *FilterBuilder) AudioResetPTS() *FilterBuilder {
	fb.filters = append(fb.filters, "asetpts=PTS-STARTPTS")
	return fb
}

// AudioDelay shifts every channel by offset.
func (fb *FilterBuilder) AudioDelay(offset time.Duration) *FilterBuilder {
	if offset <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("adelay=%d:all=1", offset.Milliseconds()))
	return fb
}

// AudioFormat normalizes sample rate and layout so streams can be mixed.
func (fb *FilterBuilder) AudioFormat(sampleRate int, layout string) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=%s", sampleRate, layout))
	return fb
}

// Volume applies a linear gain multiplier.
func (fb *FilterBuilder) Volume(gain float64) *FilterBuilder {
	if gain == 1 {
		return fb
	}
	fb.filters = append(fb.filters, "volume="+strconv.FormatFloat(gain, 'f', -1, 64))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	if filter == "" {
		return fb
	}
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// Len reports how many filters have been added.
func (fb *FilterBuilder) Len() int {
	return len(fb.filters)
}
