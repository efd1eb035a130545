// Package segment turns a normalized score sequence into highlight time ranges.
package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/keagan/highlightreel/pkg/util"
)

// durationEpsilon absorbs float error when comparing run lengths in seconds
const durationEpsilon = 1e-9

// ErrInvalidFPS is returned when the frame rate cannot convert frames to time
var ErrInvalidFPS = errors.New("frame rate must be positive")

// Segment is a highlight time range in seconds
type Segment struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	// Score is the mean normalized score of the run
	Score float64 `json:"score" yaml:"score"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// StartTime returns the start as a time.Duration
func (s Segment) StartTime() time.Duration {
	return util.Seconds(s.Start)
}

// EndTime returns the end as a time.Duration
func (s Segment) EndTime() time.Duration {
	return util.Seconds(s.End)
}

// Validate checks start >= 0 and end > start
func (s Segment) Validate() error {
	if s.Start < 0 || math.IsNaN(s.Start) {
		return fmt.Errorf("invalid segment start %.3f", s.Start)
	}
	if !(s.End > s.Start) {
		return fmt.Errorf("invalid segment: end %.3f must be after start %.3f", s.End, s.Start)
	}
	return nil
}

// Config controls thresholding and duration policy
type Config struct {
	Percentile  float64
	MinDuration time.Duration
	MaxDuration time.Duration
	TopN        int
}

// DefaultConfig returns the 75th percentile with 60s to 90s clips
func DefaultConfig() Config {
	return Config{
		Percentile:  75,
		MinDuration: 60 * time.Second,
		MaxDuration: 90 * time.Second,
	}
}

// Validate checks the configuration bounds
func (c Config) Validate() error {
	if c.Percentile < 0 || c.Percentile > 100 || math.IsNaN(c.Percentile) {
		return fmt.Errorf("percentile must be within [0,100], got %v", c.Percentile)
	}
	if c.MinDuration < 0 {
		return fmt.Errorf("min duration must be >= 0, got %s", c.MinDuration)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be > 0, got %s", c.MaxDuration)
	}
	if c.MaxDuration < c.MinDuration {
		return fmt.Errorf("max duration %s is shorter than min duration %s", c.MaxDuration, c.MinDuration)
	}
	if c.TopN < 0 {
		return fmt.Errorf("top n must be >= 0, got %d", c.TopN)
	}
	return nil
}

// Extractor finds above-threshold runs. It holds no state between calls.
type Extractor struct {
	config Config
}

// NewExtractor validates cfg and returns an extractor
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{config: cfg}, nil
}

// Config returns the extractor configuration
func (e *Extractor) Config() Config {
	return e.config
}

// Extract returns the highlight segments for scores sampled at fps
func (e *Extractor) Extract(scores []float64, fps float64) ([]Segment, error) {
	segments, _, err := e.ExtractWithThreshold(scores, fps)
	return segments, err
}

// ExtractWithThreshold is Extract that also reports the threshold used
func (e *Extractor) ExtractWithThreshold(scores []float64, fps float64) ([]Segment, float64, error) {
	if !(fps > 0) || math.IsInf(fps, 0) {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidFPS, fps)
	}

	segments := make([]Segment, 0)
	if len(scores) == 0 {
		return segments, 0, nil
	}

	threshold := Percentile(scores, e.config.Percentile)
	minSec := e.config.MinDuration.Seconds()
	maxSec := e.config.MaxDuration.Seconds()

	emit := func(start, end int) {
		startTime := float64(start) / fps
		endTime := float64(end) / fps
		if endTime-startTime+durationEpsilon < minSec {
			return
		}
		if endTime-startTime > maxSec {
			endTime = startTime + maxSec
		}
		segments = append(segments, Segment{
			Start: startTime,
			End:   endTime,
			Score: mean(scores[start:end]),
		})
	}

	start := -1
	for i, v := range scores {
		above := v > threshold
		switch {
		case above && start < 0:
			start = i
		case !above && start >= 0:
			emit(start, i)
			start = -1
		}
	}
	if start >= 0 {
		emit(start, len(scores))
	}

	if e.config.TopN > 0 && len(segments) > e.config.TopN {
		segments = topN(segments, e.config.TopN)
	}
	return segments, threshold, nil
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Windows splits [0,total) into fixed windows of length advancing by
// stride. The last window is cut at total.
func Windows(total, length, stride time.Duration) []Segment {
	windows := make([]Segment, 0)
	if total <= 0 || length <= 0 || stride <= 0 {
		return windows
	}

	for start := time.Duration(0); start < total; start += stride {
		end := start + length
		if end > total {
			end = total
		}
		windows = append(windows, Segment{Start: start.Seconds(), End: end.Seconds()})
		if end == total {
			break
		}
	}
	return windows
}

// topN keeps the n best-scoring segments in their original time order
func topN(segments []Segment, n int) []Segment {
	ranked := make([]int, len(segments))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return segments[ranked[a]].Score > segments[ranked[b]].Score
	})

	keep := ranked[:n]
	sort.Ints(keep)

	out := make([]Segment, 0, n)
	for _, i := range keep {
		out = append(out, segments[i])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
