package export

import (
	"context"
	"time"

	"github.com/keagan/highlightreel/internal/segment"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Run exports every segment through a bounded worker pool. A failed segment
// is recorded in its Outcome and never stops the others; once ctx is done no
// new exports are scheduled and the remaining outcomes carry ctx.Err().
// Outcomes are returned in segment order.
func Run(ctx context.Context, logger zerolog.Logger, exporter Exporter, input string, segments []segment.Segment, workers int) []Outcome {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	outcomes := make([]Outcome, len(segments))
	for i, seg := range segments {
		outcomes[i] = Outcome{Index: i, Segment: seg}
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i := range segments {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(outcomes); j++ {
				outcomes[j].Err = err
			}
			break
		}

		i := i
		g.Go(func() error {
			out := &outcomes[i]
			start := time.Now()
			report, err := exporter.Export(ctx, input, i, out.Segment)
			out.Elapsed = time.Since(start)
			out.Path = report.Path
			out.Thumbnail = report.Thumbnail
			out.Trim = report.Trim
			out.Err = err

			if err != nil {
				logger.Error().
					Err(err).
					Int("segment", i).
					Float64("start", out.Segment.Start).
					Float64("end", out.Segment.End).
					Msg("segment export failed")
				out.Path = ""
				return nil
			}
			logger.Info().
				Int("segment", i).
				Str("path", report.Path).
				Dur("elapsed", out.Elapsed).
				Msg("segment exported")
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}
