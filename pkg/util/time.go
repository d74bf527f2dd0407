package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatSRT formats a duration as an SRT cue timestamp (HH:MM:SS,mmm).
func FormatSRT(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	secs := ms / 1000
	ms -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

// ParseTimestamp parses a timestamp string (HH:MM:SS.mmm or SS.mmm or MM:SS)
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	parts := strings.Split(s, ":")

	var hours, minutes, seconds float64
	var err error

	switch len(parts) {
	case 1:
		seconds, err = strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}

	case 2:
		minutes, err = strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}
		seconds, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}

	case 3:
		hours, err = strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}
		minutes, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}
		seconds, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}

	default:
		return 0, fmt.Errorf("invalid timestamp format: %s", s)
	}

	totalSeconds := hours*3600 + minutes*60 + seconds
	return time.Duration(totalSeconds * float64(time.Second)), nil
}

// Seconds converts float seconds from the timeline into a Duration,
// rounded to the microsecond so 0.1+0.2 style drift never leaks into
// filter arguments.
func Seconds(s float64) time.Duration {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}

// FormatSeconds renders a duration as plain seconds with millisecond
// precision, the form ffmpeg filter options expect (trim=start=1.500).
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// ParseFrameRate parses frame rate from ffprobe format (e.g., "30/1")
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
