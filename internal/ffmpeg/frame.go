package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/gravityedits/pkg/util"
)

// ExtractFrame writes the frame at timestamp to output as a still image.
// The image format follows the output extension.
func (e *Executor) ExtractFrame(ctx context.Context, input, output string, timestamp time.Duration) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("extracting frame")

	args := []string{
		"-ss", util.FormatSeconds(timestamp),
		"-i", input,
		"-frames:v", "1",
		"-update", "1",
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("frame extraction failed: %w", err)
	}
	return nil
}
