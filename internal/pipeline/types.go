package pipeline

import (
	"runtime"
	"time"

	"github.com/keagan/highlightreel/internal/export"
	"github.com/keagan/highlightreel/internal/segment"
)

// Config holds pipeline-specific configuration
type Config struct {
	// BatchSize is the number of frames scored between cancellation checks
	BatchSize int
	// Workers bounds concurrent frame scoring within a batch
	Workers int
	// ExportWorkers bounds concurrent clip exports
	ExportWorkers int

	// FallbackWindows emits fixed windows when no highlight survives
	FallbackWindows bool
	WindowLength    time.Duration
	WindowStride    time.Duration
}

// DefaultConfig returns batches of 64 frames scored on every CPU
func DefaultConfig() Config {
	return Config{
		BatchSize:     64,
		Workers:       runtime.NumCPU(),
		ExportWorkers: export.DefaultWorkers,
		WindowLength:  90 * time.Second,
		WindowStride:  60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.ExportWorkers <= 0 {
		c.ExportWorkers = def.ExportWorkers
	}
	if c.WindowLength <= 0 {
		c.WindowLength = def.WindowLength
	}
	if c.WindowStride <= 0 {
		c.WindowStride = def.WindowStride
	}
	return c
}

// Result is the outcome of analyzing one input
type Result struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Input    string        `json:"input" yaml:"input"`
	Backend  string        `json:"backend" yaml:"backend"`
	FPS      float64       `json:"fps" yaml:"fps"`
	Frames   int           `json:"frames" yaml:"frames"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	// RawMin and RawMax bound the unnormalized frame scores
	RawMin    float64 `json:"raw_min" yaml:"raw_min"`
	RawMax    float64 `json:"raw_max" yaml:"raw_max"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Fallbacks int     `json:"fallbacks" yaml:"fallbacks"`

	Segments []segment.Segment `json:"segments" yaml:"segments"`
	// Windowed is set when Segments are fixed windows rather than highlights
	Windowed bool `json:"windowed,omitempty" yaml:"windowed,omitempty"`
	// Partial is set when analysis stopped before the end of the input;
	// a partial result never carries segments
	Partial bool `json:"partial,omitempty" yaml:"partial,omitempty"`

	Scores     []float64 `json:"-" yaml:"-"`
	Normalized []float64 `json:"-" yaml:"-"`

	Stats      StatsSnapshot `json:"stats" yaml:"stats"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
}
