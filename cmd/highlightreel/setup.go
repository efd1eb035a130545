package main

import (
	"fmt"
	"os"

	"github.com/keagan/highlightreel/internal/config"
	"github.com/keagan/highlightreel/internal/ffmpeg"
	"github.com/keagan/highlightreel/internal/pipeline"
	"github.com/keagan/highlightreel/internal/progress"
	"github.com/keagan/highlightreel/internal/scoring"
	"github.com/keagan/highlightreel/internal/segment"
	"github.com/keagan/highlightreel/internal/source"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// analysisFlags are shared by detect and export
type analysisFlags struct {
	framesFPS  float64
	framesDir  bool
	backend    string
	percentile float64
	minDur     string
	maxDur     string
	topN       int
	windows    bool
	noProgress bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&f.framesDir, "frames-dir", false, "treat the input as a directory of PNG/JPEG frames")
	fs.Float64Var(&f.framesFPS, "fps", 30, "frame rate of a --frames-dir input")
	fs.StringVar(&f.backend, "backend", "", "scoring backend (cpu, accelerated)")
	fs.Float64Var(&f.percentile, "percentile", 0, "score percentile a frame must exceed")
	fs.StringVar(&f.minDur, "min", "", "minimum highlight length (e.g. 60s or 01:00)")
	fs.StringVar(&f.maxDur, "max", "", "maximum highlight length (e.g. 90s or 01:30)")
	fs.IntVar(&f.topN, "top", -1, "keep only the N best highlights (0 = all)")
	fs.BoolVar(&f.windows, "windows", false, "fall back to fixed windows when nothing stands out")
	fs.BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
}

// apply layers the flags over the loaded configuration
func (f *analysisFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("backend") {
		cfg.Scoring.Backend = f.backend
	}
	if fs.Changed("percentile") {
		cfg.Segments.Percentile = f.percentile
	}
	if fs.Changed("min") {
		d, err := parseLength(f.minDur)
		if err != nil {
			return fmt.Errorf("--min: %w", err)
		}
		cfg.Segments.MinDuration = d
	}
	if fs.Changed("max") {
		d, err := parseLength(f.maxDur)
		if err != nil {
			return fmt.Errorf("--max: %w", err)
		}
		cfg.Segments.MaxDuration = d
	}
	if fs.Changed("top") {
		cfg.Segments.TopN = f.topN
	}
	if fs.Changed("windows") {
		cfg.Segments.FallbackWindows = f.windows
	}
	return cfg.Validate()
}

// app bundles what a command needs to run an analysis
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	executor *ffmpeg.Executor // nil for --frames-dir inputs
	pipeline *pipeline.Pipeline
}

func newApp(logger zerolog.Logger, cfg *config.Config, flags *analysisFlags, needFFmpeg bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if !flags.framesDir || needFFmpeg {
		exec, err := ffmpeg.New(logger, cfg.FFmpegOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
		}
		a.executor = exec
	}

	var opener source.Opener
	if flags.framesDir {
		opener = source.ImageDirOpener(logger, flags.framesFPS)
	} else {
		opener = a.executor.Opener(cfg.FrameOptions())
	}

	pipeCfg := cfg.PipelineConfig()
	backend, err := scoring.NewBackend(cfg.Scoring.Backend, cfg.BackendWorkers())
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(logger, backend, cfg.ScoringOptions())
	if err != nil {
		return nil, err
	}
	extractor, err := segment.NewExtractor(cfg.SegmentConfig())
	if err != nil {
		return nil, err
	}

	a.pipeline = pipeline.New(logger, pipeCfg, opener, scorer, extractor)
	return a, nil
}

// observer shows a bar on the terminal and debug lines in the log
func (a *app) observer(flags *analysisFlags) (progress.Observer, func()) {
	logObs := progress.NewLog(a.logger, 500)
	if flags.noProgress || quiet || jsonLog {
		return logObs, func() {}
	}
	bar := progress.NewBar(os.Stderr, "Scoring", 0)
	return progress.Multi{bar, logObs}, func() { _ = bar.Finish() }
}
