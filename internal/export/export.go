// Package export cuts highlight segments out of the source video.
package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/keagan/highlightreel/internal/ffmpeg"
	"github.com/keagan/highlightreel/internal/segment"
	"github.com/keagan/highlightreel/pkg/util"
	"github.com/rs/zerolog"
)

// DefaultWorkers bounds concurrent exports when none is configured
const DefaultWorkers = 2

// Report describes one written clip
type Report struct {
	Path      string
	Thumbnail string
	// Trim is the time spent cutting the clip itself
	Trim time.Duration
}

// Exporter writes one segment of input to disk
type Exporter interface {
	Export(ctx context.Context, input string, index int, seg segment.Segment) (Report, error)
}

// Outcome is the per-segment result of an export run
type Outcome struct {
	Index     int             `json:"index" yaml:"index"`
	Segment   segment.Segment `json:"segment" yaml:"segment"`
	Path      string          `json:"path,omitempty" yaml:"path,omitempty"`
	Thumbnail string          `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Trim      time.Duration   `json:"trim" yaml:"trim"`
	Elapsed   time.Duration   `json:"elapsed" yaml:"elapsed"`
	Err       error           `json:"-" yaml:"-"`
}

// OK reports whether the clip was written
func (o Outcome) OK() bool { return o.Err == nil }

// Clipper is the subset of ffmpeg.Executor used for exporting
type Clipper interface {
	ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error
	GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration) error
}

// Options configures clip files
type Options struct {
	OutputDir  string
	Prefix     string // file name prefix, defaults to the input base name
	Container  string // file extension, defaults to .mp4
	CopyCodec  bool
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
	Thumbnails bool
}

// ClipExporter writes each segment as its own video file
type ClipExporter struct {
	logger  zerolog.Logger
	clipper Clipper
	opts    Options
}

// NewClipExporter creates an exporter writing into opts.OutputDir
func NewClipExporter(logger zerolog.Logger, clipper Clipper, opts Options) *ClipExporter {
	if opts.Container == "" {
		opts.Container = ".mp4"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &ClipExporter{
		logger:  logger.With().Str("component", "export").Logger(),
		clipper: clipper,
		opts:    opts,
	}
}

// ClipPath returns the output path for the clip at index
func (e *ClipExporter) ClipPath(input string, index int) string {
	prefix := e.opts.Prefix
	if prefix == "" {
		prefix = util.BaseName(input)
	}
	return filepath.Join(e.opts.OutputDir, fmt.Sprintf("%s_highlight_%03d%s", prefix, index+1, e.opts.Container))
}

func (e *ClipExporter) Export(ctx context.Context, input string, index int, seg segment.Segment) (Report, error) {
	if err := seg.Validate(); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ffmpeg.ErrInvalidClip, err)
	}
	if err := util.EnsureDir(e.opts.OutputDir); err != nil {
		return Report{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	report := Report{Path: e.ClipPath(input, index)}
	start := time.Now()
	err := e.clipper.ExtractClip(ctx, input, ffmpeg.ClipOptions{
		Start:      seg.StartTime(),
		End:        seg.EndTime(),
		Output:     report.Path,
		CopyCodec:  e.opts.CopyCodec,
		VideoCodec: e.opts.VideoCodec,
		AudioCodec: e.opts.AudioCodec,
		CRF:        e.opts.CRF,
		Preset:     e.opts.Preset,
	})
	report.Trim = time.Since(start)
	if err != nil {
		// ffmpeg leaves a truncated file behind when it fails mid-write
		util.CleanupFiles(report.Path)
		return report, err
	}

	if e.opts.Thumbnails {
		thumb := report.Path[:len(report.Path)-len(filepath.Ext(report.Path))] + ".jpg"
		mid := seg.StartTime() + (seg.EndTime()-seg.StartTime())/2
		if err := e.clipper.GenerateThumbnail(ctx, input, thumb, mid); err != nil {
			// the clip is usable without its thumbnail
			e.logger.Warn().Err(err).Int("segment", index).Msg("thumbnail generation failed")
		} else {
			report.Thumbnail = thumb
		}
	}

	return report, nil
}

// Failed returns the outcomes that carry an error
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err joins the per-segment errors, nil when every export succeeded
func Err(outcomes []Outcome) error {
	var errs []error
	for _, o := range Failed(outcomes) {
		errs = append(errs, fmt.Errorf("segment %d (%s-%s): %w", o.Index,
			util.FormatDuration(o.Segment.StartTime()), util.FormatDuration(o.Segment.EndTime()), o.Err))
	}
	return errors.Join(errs...)
}
