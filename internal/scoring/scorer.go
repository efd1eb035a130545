package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/keagan/highlightreel/internal/frame"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
)

// NeutralValue is reported for every metric of a frame that could not be scored
const NeutralValue = 0.5

// FrameMetrics is the scored result for one frame
type FrameMetrics struct {
	Brightness  float64
	Contrast    float64
	EdgeDensity float64
	Score       float64
	Fallback    bool
}

// Neutral returns the fallback metrics used when scoring fails
func Neutral() FrameMetrics {
	return FrameMetrics{
		Brightness:  NeutralValue,
		Contrast:    NeutralValue,
		EdgeDensity: NeutralValue,
		Score:       NeutralValue,
		Fallback:    true,
	}
}

// Weights for combining features into a score
type Weights struct {
	Brightness float64 `yaml:"brightness"`
	Contrast   float64 `yaml:"contrast"`
	Edges      float64 `yaml:"edges"`
}

// DefaultWeights returns the 0.3/0.4/0.3 policy
func DefaultWeights() Weights {
	return Weights{
		Brightness: 0.3,
		Contrast:   0.4,
		Edges:      0.3,
	}
}

// Validate rejects negative or all-zero weights
func (w Weights) Validate() error {
	if w.Brightness < 0 || w.Contrast < 0 || w.Edges < 0 {
		return fmt.Errorf("scoring weights must be non-negative: %+v", w)
	}
	if w.Brightness+w.Contrast+w.Edges == 0 {
		return errors.New("scoring weights must not all be zero")
	}
	return nil
}

// Combine applies the weights to a feature set
func (w Weights) Combine(f Features) float64 {
	return w.Brightness*f.Brightness + w.Contrast*f.Contrast + w.Edges*f.EdgeDensity
}

// Options configures a Scorer
type Options struct {
	Weights Weights
	// AnalysisWidth downscales wider frames before scoring; 0 disables it
	AnalysisWidth int
}

// Scorer maps frames to interest scores. It never fails: any error
// produces Neutral metrics.
type Scorer struct {
	logger  zerolog.Logger
	backend Backend
	opts    Options
}

// NewScorer creates a scorer on top of a backend
func NewScorer(logger zerolog.Logger, backend Backend, opts Options) (*Scorer, error) {
	if backend == nil {
		return nil, errors.New("scoring backend is required")
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.AnalysisWidth < 0 {
		return nil, fmt.Errorf("analysis width must be >= 0, got %d", opts.AnalysisWidth)
	}

	return &Scorer{
		logger:  logger.With().Str("component", "scorer").Str("backend", backend.Name()).Logger(),
		backend: backend,
		opts:    opts,
	}, nil
}

// Backend returns the configured backend
func (s *Scorer) Backend() Backend {
	return s.backend
}

// Score computes the metrics for one frame
func (s *Scorer) Score(f *frame.Frame) (m FrameMetrics) {
	index := -1
	if f != nil {
		index = f.Index
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Int("frame", index).Interface("panic", r).Msg("frame scoring panicked, using neutral score")
			m = Neutral()
		}
	}()

	metrics, err := s.score(f)
	if err != nil {
		s.logger.Warn().Err(err).Int("frame", index).Msg("frame scoring failed, using neutral score")
		return Neutral()
	}
	return metrics
}

func (s *Scorer) score(f *frame.Frame) (FrameMetrics, error) {
	if err := f.Validate(); err != nil {
		return FrameMetrics{}, err
	}

	if s.opts.AnalysisWidth > 0 && f.Width > s.opts.AnalysisWidth {
		scaled, err := downscale(f, s.opts.AnalysisWidth)
		if err != nil {
			return FrameMetrics{}, fmt.Errorf("downscale: %w", err)
		}
		f = scaled
	}

	feat, err := s.backend.Features(f)
	if err != nil {
		return FrameMetrics{}, err
	}

	score := s.opts.Weights.Combine(feat)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return FrameMetrics{}, fmt.Errorf("non-finite score %v", score)
	}

	return FrameMetrics{
		Brightness:  feat.Brightness,
		Contrast:    feat.Contrast,
		EdgeDensity: feat.EdgeDensity,
		Score:       score,
	}, nil
}

func downscale(f *frame.Frame, width int) (*frame.Frame, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	resized := resize.Resize(uint(width), 0, img, resize.Bilinear)
	return frame.FromImage(f.Index, resized), nil
}
