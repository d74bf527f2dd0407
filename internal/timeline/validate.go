package timeline

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks structural constraints. Trim ranges that are merely
// inconsistent with the source are left for the assembler to repair.
func (t *Timeline) Validate() error {
	var errs []error

	for _, c := range t.Clips {
		if c.Source == "" {
			errs = append(errs, fmt.Errorf("clip %s: source is required", c.ID))
		}
		if c.Start < 0 || c.End < 0 || c.Duration < 0 {
			errs = append(errs, fmt.Errorf("clip %s: negative time", c.ID))
		}
		if g := c.Grading; g.Saturation != nil && *g.Saturation < 0 {
			errs = append(errs, fmt.Errorf("clip %s: saturation must not be negative", c.ID))
		}
	}
	if g := t.GlobalGrading; g.Saturation != nil && *g.Saturation < 0 {
		errs = append(errs, errors.New("global grading: saturation must not be negative"))
	}

	for _, o := range t.Overlays {
		if o.Start < 0 {
			errs = append(errs, fmt.Errorf("overlay %s: negative start", o.ID))
		}
	}

	if m := t.Music; m != nil {
		if m.Start < 0 || m.Duration < 0 {
			errs = append(errs, errors.New("background music: negative time"))
		}
		if m.Volume < 0 {
			errs = append(errs, errors.New("background music: negative volume"))
		}
	}

	for _, a := range t.AudioClips {
		if a.Start < 0 || a.Duration < 0 {
			errs = append(errs, fmt.Errorf("audio clip %s: negative time", a.ID))
		}
		if a.Volume < 0 {
			errs = append(errs, fmt.Errorf("audio clip %s: negative volume", a.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTimeline, errors.Join(errs...))
	}
	return nil
}

// Stats summarizes a timeline before any media is touched.
type Stats struct {
	Clips      int
	KeptClips  int
	Overlays   int
	AudioClips int
	HasMusic   bool
	// DeclaredDuration sums the declared lengths of kept clips. Clips
	// without an end or duration are counted in OpenEnded instead.
	DeclaredDuration time.Duration
	OpenEnded        int
	Sources          []string
}

// Stats computes the pre-flight summary.
func (t *Timeline) Stats() Stats {
	s := Stats{
		Clips:      len(t.Clips),
		Overlays:   len(t.Overlays),
		AudioClips: len(t.AudioClips),
		HasMusic:   t.Music != nil,
	}
	seen := make(map[string]bool)
	kept := t.KeptClips()
	s.KeptClips = len(kept)
	for _, c := range kept {
		if end, ok := c.DeclaredEnd(); ok && end > c.Start {
			s.DeclaredDuration += end - c.Start
		} else {
			s.OpenEnded++
		}
		if !seen[c.Source] {
			seen[c.Source] = true
			s.Sources = append(s.Sources, c.Source)
		}
	}
	return s
}
