// Package pipeline wires frame sources, scoring, and segment extraction into
// a single analysis run, and fans exports out over a bounded pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/highlightreel/internal/export"
	"github.com/keagan/highlightreel/internal/frame"
	"github.com/keagan/highlightreel/internal/progress"
	"github.com/keagan/highlightreel/internal/scoring"
	"github.com/keagan/highlightreel/internal/segment"
	"github.com/keagan/highlightreel/internal/source"
	"github.com/keagan/highlightreel/internal/stream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pipeline orchestrates the analysis workflow
type Pipeline struct {
	logger    zerolog.Logger
	config    Config
	opener    source.Opener
	scorer    *scoring.Scorer
	extractor *segment.Extractor
}

// New creates a new pipeline instance. Zero config fields take defaults.
func New(logger zerolog.Logger, cfg Config, opener source.Opener, scorer *scoring.Scorer, extractor *segment.Extractor) *Pipeline {
	return &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		config:    cfg.withDefaults(),
		opener:    opener,
		scorer:    scorer,
		extractor: extractor,
	}
}

// Config returns the effective configuration
func (p *Pipeline) Config() Config {
	return p.config
}

// Analyze scores every frame of input in order and extracts highlight
// segments. When ctx is cancelled the scores gathered so far are returned in
// a partial Result together with ctx.Err().
func (p *Pipeline) Analyze(ctx context.Context, input string, stats *Stats, obs progress.Observer) (*Result, error) {
	if input == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}
	if stats == nil {
		stats = NewStats()
	}

	src, err := p.opener.Open(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer src.Close()

	fps := src.FPS()
	if !(fps > 0) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("%w: %s has no usable frame rate", source.ErrInvalidFormat, input)
	}
	total := int(math.Round(src.Duration().Seconds() * fps))

	result := &Result{
		RunID:     uuid.NewString(),
		Input:     input,
		Backend:   p.scorer.Backend().Name(),
		FPS:       fps,
		StartedAt: time.Now(),
	}

	p.logger.Info().
		Str("run_id", result.RunID).
		Str("input", input).
		Float64("fps", fps).
		Int("expected_frames", total).
		Str("backend", result.Backend).
		Int("batch_size", p.config.BatchSize).
		Int("workers", p.config.Workers).
		Msg("starting analysis")

	scores := stream.New(total)
	batch := make([]*frame.Frame, 0, p.config.BatchSize)
	metrics := make([]scoring.FrameMetrics, p.config.BatchSize)
	timings := make([]time.Duration, p.config.BatchSize)

	for {
		if err := ctx.Err(); err != nil {
			return p.partial(result, scores, stats, err)
		}

		var eof bool
		batch, eof, err = readBatch(ctx, src, batch[:0])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.partial(result, scores, stats, ctxErr)
			}
			return p.partial(result, scores, stats,
				fmt.Errorf("failed to read %s at frame %d: %w", input, scores.Len()+len(batch), err))
		}

		if len(batch) > 0 {
			p.scoreBatch(batch, metrics, timings)

			var spent time.Duration
			for i := range batch {
				m := metrics[i]
				scores.Push(m.Score)
				spent += timings[i]
				if m.Fallback {
					stats.AddFallback()
					result.Fallbacks++
				}

				elapsed := time.Since(result.StartedAt)
				progress.Notify(obs, progress.Update{
					Frame:   scores.Len(),
					Total:   total,
					Elapsed: elapsed,
					FPS:     float64(scores.Len()) / math.Max(elapsed.Seconds(), 1e-9),
				})
			}
			stats.AddAnalysis(len(batch), spent)
		}

		if eof {
			break
		}
	}

	p.finish(result, scores, stats)

	segments, threshold, err := p.extractor.ExtractWithThreshold(result.Normalized, fps)
	if err != nil {
		return result, fmt.Errorf("failed to extract segments: %w", err)
	}
	result.Threshold = threshold
	result.Segments = segments

	if len(segments) == 0 && p.config.FallbackWindows && result.Duration > 0 {
		result.Segments = segment.Windows(result.Duration, p.config.WindowLength, p.config.WindowStride)
		result.Windowed = true
		p.logger.Info().
			Int("windows", len(result.Segments)).
			Msg("no highlights found, using fixed windows")
	}

	result.Stats = stats.Snapshot()
	result.FinishedAt = time.Now()

	p.logger.Info().
		Str("run_id", result.RunID).
		Int("frames", result.Frames).
		Int("fallbacks", result.Fallbacks).
		Float64("threshold", threshold).
		Int("segments", len(result.Segments)).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("analysis complete")

	return result, nil
}

// readBatch fills batch up to its capacity. eof reports that the source is
// exhausted; frames read before the end are still returned.
func readBatch(ctx context.Context, src source.FrameSource, batch []*frame.Frame) ([]*frame.Frame, bool, error) {
	for len(batch) < cap(batch) {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return batch, true, nil
		}
		if err != nil {
			return batch, false, err
		}
		batch = append(batch, f)
	}
	return batch, false, nil
}

// scoreBatch scores frames concurrently; each worker writes only its own slot
func (p *Pipeline) scoreBatch(batch []*frame.Frame, metrics []scoring.FrameMetrics, timings []time.Duration) {
	var g errgroup.Group
	g.SetLimit(p.config.Workers)
	for i, f := range batch {
		i, f := i, f
		g.Go(func() error {
			start := time.Now()
			metrics[i] = p.scorer.Score(f)
			timings[i] = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()
}

// finish fills the result from the complete score sequence
func (p *Pipeline) finish(result *Result, scores *stream.Stream, stats *Stats) {
	result.Frames = scores.Len()
	result.Duration = time.Duration(float64(result.Frames) / result.FPS * float64(time.Second))
	result.RawMin = scores.Min()
	result.RawMax = scores.Max()
	result.Scores = scores.Raw()
	result.Normalized = scores.Normalize()
	result.Stats = stats.Snapshot()
	result.FinishedAt = time.Now()
}

func (p *Pipeline) partial(result *Result, scores *stream.Stream, stats *Stats, err error) (*Result, error) {
	p.finish(result, scores, stats)
	result.Partial = true
	result.Normalized = nil

	p.logger.Warn().
		Err(err).
		Str("run_id", result.RunID).
		Int("frames", result.Frames).
		Msg("analysis stopped early")

	return result, err
}

// Export writes every segment of result through exporter. Failed segments
// are reported in their Outcome and never abort the others.
func (p *Pipeline) Export(ctx context.Context, result *Result, exporter export.Exporter, stats *Stats) []export.Outcome {
	if stats == nil {
		stats = NewStats()
	}
	if result == nil || len(result.Segments) == 0 {
		return []export.Outcome{}
	}

	p.logger.Info().
		Str("run_id", result.RunID).
		Int("segments", len(result.Segments)).
		Int("workers", p.config.ExportWorkers).
		Msg("exporting segments")

	outcomes := export.Run(ctx, p.logger, exporter, result.Input, result.Segments, p.config.ExportWorkers)
	for _, o := range outcomes {
		if !o.OK() {
			stats.AddFailure()
			continue
		}
		stats.AddTrim(o.Trim)
		stats.AddExport(o.Elapsed)
	}

	p.logger.Info().
		Int("exported", len(outcomes)-len(export.Failed(outcomes))).
		Int("failed", len(export.Failed(outcomes))).
		Msg("export complete")

	return outcomes
}
