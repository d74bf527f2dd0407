// Package subtitle projects clip captions onto the output timeline and
// writes them as SRT.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kikiluvv/gravityedits/internal/timeline"
	"github.com/kikiluvv/gravityedits/pkg/util"
)

// Cue is one caption on the output timeline.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Track is an ordered list of cues.
type Track struct {
	Cues []Cue
	// Duration is where the output clock stopped.
	Duration time.Duration
}

// Project walks the kept clips of tl in order, advancing an output clock
// by each clip's length and emitting a cue for every clip with text.
//
// When durations is non-nil it holds the assembled length of each clip by
// its index in tl.Clips, and clips missing from it are treated as dropped.
// Otherwise lengths come from the declared trim.
func Project(tl *timeline.Timeline, durations map[int]time.Duration) Track {
	var track Track
	var clock time.Duration

	for i, c := range tl.Clips {
		if !c.Keep {
			continue
		}
		var length time.Duration
		if durations != nil {
			d, ok := durations[i]
			if !ok {
				continue
			}
			length = d
		} else {
			end, ok := c.DeclaredEnd()
			if !ok || end <= c.Start {
				continue
			}
			length = end - c.Start
		}

		if text := strings.TrimSpace(c.Text); text != "" {
			track.Cues = append(track.Cues, Cue{
				Index: len(track.Cues) + 1,
				Start: clock,
				End:   clock + length,
				Text:  text,
			})
		}
		clock += length
	}

	track.Duration = clock
	return track
}

// WriteSRT writes track in SubRip format.
func WriteSRT(w io.Writer, track Track) error {
	bw := bufio.NewWriter(w)
	for i, c := range track.Cues {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n", c.Index, util.FormatSRT(c.Start), util.FormatSRT(c.End), c.Text)
	}
	return bw.Flush()
}

// WriteFile writes track to path as SRT.
func WriteFile(path string, track Track) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create subtitle file: %w", err)
	}
	if err := WriteSRT(f, track); err != nil {
		f.Close()
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	return f.Close()
}
