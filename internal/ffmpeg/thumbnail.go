package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/keagan/highlightreel/pkg/util"
)

// GenerateThumbnail writes a single JPEG frame at timestamp
func (e *Executor) GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("generating thumbnail")

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2", // high quality JPEG
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("thumbnail generation")
		},
	}

	return e.Run(ctx, opts)
}
