package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/keagan/highlightreel/pkg/util"
)

// ErrInvalidClip is returned for clip ranges with a negative start or a
// non-positive length
var ErrInvalidClip = errors.New("invalid clip range")

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start        time.Duration
	End          time.Duration
	Output       string
	CopyCodec    bool // If true, use -c copy for fast extraction
	VideoCodec   string
	AudioCodec   string
	CRF          int // Quality (0-51, lower = better)
	Preset       string
	ProgressFunc ProgressFunc
}

// Validate checks the clip range and output path
func (o ClipOptions) Validate() error {
	if o.Start < 0 {
		return fmt.Errorf("%w: start %s is negative", ErrInvalidClip, o.Start)
	}
	if o.End <= o.Start {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalidClip, o.End, o.Start)
	}
	if o.Output == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// ExtractClip cuts a segment from a video
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	duration := opts.End - opts.Start

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Bool("copy_codec", opts.CopyCodec).
		Msg("extracting clip")

	args := clipArgs(input, opts)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("clip extraction complete")
	return nil
}

// clipArgs seeks before the input for speed; re-encoding keeps the cut exact
func clipArgs(input string, opts ClipOptions) []string {
	args := []string{
		"-ss", util.FormatDuration(opts.Start),
		"-i", input,
		"-t", util.FormatDuration(opts.End - opts.Start),
	}

	if opts.CopyCodec {
		return append(args, "-c", "copy", opts.Output)
	}

	codec := opts.VideoCodec
	if codec == "" {
		codec = DefaultVideoCodec
	}
	audioCodec := opts.AudioCodec
	if audioCodec == "" {
		audioCodec = DefaultAudioCodec
	}
	crf := opts.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	args = append(args,
		"-c:v", codec,
		"-crf", strconv.Itoa(crf),
		"-preset", preset,
		"-c:a", audioCodec,
	)
	return append(args, opts.Output)
}
