package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/keagan/highlightreel/internal/export"
	"github.com/keagan/highlightreel/internal/ffmpeg"
	"github.com/keagan/highlightreel/internal/pipeline"
	"github.com/keagan/highlightreel/internal/scoring"
	"github.com/keagan/highlightreel/internal/segment"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix prefixes every environment override
const EnvPrefix = "HIGHLIGHTREEL_"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	Concurrency int    `yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`

	Scoring  ScoringConfig  `yaml:"scoring"`
	Decode   DecodeConfig   `yaml:"decode"`
	Segments SegmentsConfig `yaml:"segments"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Export   ExportConfig   `yaml:"export"`
}

type ScoringConfig struct {
	Backend       string          `yaml:"backend"`
	Weights       scoring.Weights `yaml:"weights"`
	AnalysisWidth int             `yaml:"analysis_width"`
}

// DecodeConfig controls how frames leave ffmpeg
type DecodeConfig struct {
	Width     int     `yaml:"width"`
	SampleFPS float64 `yaml:"sample_fps"`
	// Filter is an extra ffmpeg filter chain applied before scaling
	Filter string `yaml:"filter,omitempty"`
}

type SegmentsConfig struct {
	Percentile      float64       `yaml:"percentile"`
	MinDuration     time.Duration `yaml:"min_duration"`
	MaxDuration     time.Duration `yaml:"max_duration"`
	TopN            int           `yaml:"top_n"`
	FallbackWindows bool          `yaml:"fallback_windows"`
	WindowLength    time.Duration `yaml:"window_length"`
	WindowStride    time.Duration `yaml:"window_stride"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
	VideoCodec string `yaml:"video_codec"`
	AudioCodec string `yaml:"audio_codec"`
	CRF        int    `yaml:"crf"`
	Preset     string `yaml:"preset"`
	CopyCodec  bool   `yaml:"copy_codec"`
}

type ExportConfig struct {
	OutputDir  string `yaml:"output_dir"`
	Workers    int    `yaml:"workers"`
	Thumbnails bool   `yaml:"thumbnails"`
	Playlist   bool   `yaml:"playlist"`
	Reel       bool   `yaml:"reel"`
}

// Load reads configuration from file or returns defaults, then applies
// .env and HIGHLIGHTREEL_* environment overrides
func Load(path string) (*Config, error) {
	return load(path, ".env", os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	dotenv, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	// the real environment wins over .env
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// applyEnv overrides fields from HIGHLIGHTREEL_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err == nil {
				*dst = n
			}
			return err
		}
	}
	float := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err == nil {
				*dst = f
			}
			return err
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err == nil {
				*dst = d
			}
			return err
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err == nil {
				*dst = b
			}
			return err
		}
	}

	overrides := []struct {
		key string
		set func(string) error
	}{
		{"WORK_DIR", str(&c.WorkDir)},
		{"CONCURRENCY", integer(&c.Concurrency)},
		{"BATCH_SIZE", integer(&c.BatchSize)},
		{"BACKEND", str(&c.Scoring.Backend)},
		{"ANALYSIS_WIDTH", integer(&c.Scoring.AnalysisWidth)},
		{"WEIGHT_BRIGHTNESS", float(&c.Scoring.Weights.Brightness)},
		{"WEIGHT_CONTRAST", float(&c.Scoring.Weights.Contrast)},
		{"WEIGHT_EDGES", float(&c.Scoring.Weights.Edges)},
		{"DECODE_WIDTH", integer(&c.Decode.Width)},
		{"SAMPLE_FPS", float(&c.Decode.SampleFPS)},
		{"DECODE_FILTER", str(&c.Decode.Filter)},
		{"PERCENTILE", float(&c.Segments.Percentile)},
		{"MIN_DURATION", duration(&c.Segments.MinDuration)},
		{"MAX_DURATION", duration(&c.Segments.MaxDuration)},
		{"TOP_N", integer(&c.Segments.TopN)},
		{"FALLBACK_WINDOWS", boolean(&c.Segments.FallbackWindows)},
		{"FFMPEG_PATH", str(&c.FFmpeg.BinaryPath)},
		{"FFPROBE_PATH", str(&c.FFmpeg.ProbePath)},
		{"FFMPEG_THREADS", integer(&c.FFmpeg.Threads)},
		{"COPY_CODEC", boolean(&c.FFmpeg.CopyCodec)},
		{"OUTPUT_DIR", str(&c.Export.OutputDir)},
		{"EXPORT_WORKERS", integer(&c.Export.Workers)},
	}

	for _, o := range overrides {
		v, ok := lookup(EnvPrefix + o.key)
		if !ok {
			continue
		}
		if err := o.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, o.key, v, err)
		}
	}
	return nil
}

// Validate checks the values the pipeline depends on
func (c *Config) Validate() error {
	if _, err := scoring.NewBackend(c.Scoring.Backend, 1); err != nil {
		return err
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return err
	}
	if c.Scoring.AnalysisWidth < 0 || c.Decode.Width < 0 || c.Decode.SampleFPS < 0 {
		return fmt.Errorf("decode and analysis sizes must be >= 0")
	}
	if err := c.SegmentConfig().Validate(); err != nil {
		return err
	}
	if c.Concurrency < 0 || c.BatchSize < 0 || c.Export.Workers < 0 || c.FFmpeg.Threads < 0 {
		return fmt.Errorf("worker counts must be >= 0")
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return fmt.Errorf("crf must be within [0,51], got %d", c.FFmpeg.CRF)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ScoringOptions returns the scorer settings
func (c *Config) ScoringOptions() scoring.Options {
	return scoring.Options{
		Weights:       c.Scoring.Weights,
		AnalysisWidth: c.Scoring.AnalysisWidth,
	}
}

// SegmentConfig returns the extractor settings
func (c *Config) SegmentConfig() segment.Config {
	return segment.Config{
		Percentile:  c.Segments.Percentile,
		MinDuration: c.Segments.MinDuration,
		MaxDuration: c.Segments.MaxDuration,
		TopN:        c.Segments.TopN,
	}
}

// PipelineConfig returns the orchestrator settings
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		BatchSize:       c.BatchSize,
		Workers:         c.Concurrency,
		ExportWorkers:   c.Export.Workers,
		FallbackWindows: c.Segments.FallbackWindows,
		WindowLength:    c.Segments.WindowLength,
		WindowStride:    c.Segments.WindowStride,
	}
}

// BackendWorkers is the band parallelism for one frame. Batches already
// score Concurrency frames at once, so bands only get the CPUs left over.
func (c *Config) BackendWorkers() int {
	procs := runtime.GOMAXPROCS(0)
	frames := c.Concurrency
	if frames <= 0 {
		frames = procs
	}
	if n := procs / frames; n > 1 {
		return n
	}
	return 1
}

// FFmpegOptions locates the ffmpeg binaries
func (c *Config) FFmpegOptions() ffmpeg.Options {
	return ffmpeg.Options{
		FFmpegPath:  c.FFmpeg.BinaryPath,
		FFprobePath: c.FFmpeg.ProbePath,
		Threads:     c.FFmpeg.Threads,
	}
}

// FrameOptions returns the decode settings
func (c *Config) FrameOptions() ffmpeg.FrameOptions {
	return ffmpeg.FrameOptions{
		Width:     c.Decode.Width,
		SampleFPS: c.Decode.SampleFPS,
		Filter:    c.Decode.Filter,
	}
}

// ExportOptions returns clip settings writing into dir
func (c *Config) ExportOptions(dir string) export.Options {
	return export.Options{
		OutputDir:  dir,
		CopyCodec:  c.FFmpeg.CopyCodec,
		VideoCodec: c.FFmpeg.VideoCodec,
		AudioCodec: c.FFmpeg.AudioCodec,
		CRF:        c.FFmpeg.CRF,
		Preset:     c.FFmpeg.Preset,
		Thumbnails: c.Export.Thumbnails,
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	seg := segment.DefaultConfig()
	return &Config{
		WorkDir:     "./work",
		Concurrency: 0, // one per CPU
		BatchSize:   64,
		Scoring: ScoringConfig{
			Backend:       scoring.BackendReference,
			Weights:       scoring.DefaultWeights(),
			AnalysisWidth: 640,
		},
		Decode: DecodeConfig{
			Width: 640,
		},
		Segments: SegmentsConfig{
			Percentile:   seg.Percentile,
			MinDuration:  seg.MinDuration,
			MaxDuration:  seg.MaxDuration,
			WindowLength: 90 * time.Second,
			WindowStride: 60 * time.Second,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			VideoCodec: ffmpeg.DefaultVideoCodec,
			AudioCodec: ffmpeg.DefaultAudioCodec,
			CRF:        ffmpeg.DefaultCRF,
			Preset:     ffmpeg.DefaultPreset,
		},
		Export: ExportConfig{
			OutputDir: "./highlights",
			Workers:   export.DefaultWorkers,
			Playlist:  true,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./highlightreel.yaml",
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".highlightreel", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
