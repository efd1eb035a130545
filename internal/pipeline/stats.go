package pipeline

import (
	"sync"
	"time"
)

// Stats accumulates processing timings across a run. It is safe for
// concurrent use.
type Stats struct {
	mu sync.Mutex

	frames   int
	analysis time.Duration
	trims    int
	trim     time.Duration
	exports  int
	export   time.Duration

	fallbacks int
	failures  int
}

// NewStats creates an empty stats accumulator
func NewStats() *Stats {
	return &Stats{}
}

// StatsSnapshot is a point-in-time copy of Stats with means derived
type StatsSnapshot struct {
	Frames    int `json:"frames" yaml:"frames"`
	Fallbacks int `json:"fallbacks" yaml:"fallbacks"`
	Exports   int `json:"exports" yaml:"exports"`
	Failures  int `json:"failures" yaml:"failures"`

	MeanAnalysis time.Duration `json:"mean_analysis" yaml:"mean_analysis"`
	MeanTrim     time.Duration `json:"mean_trim" yaml:"mean_trim"`
	MeanExport   time.Duration `json:"mean_export" yaml:"mean_export"`
}

// AddAnalysis records the scoring time spent on frames frames
func (s *Stats) AddAnalysis(frames int, d time.Duration) {
	if frames <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames += frames
	s.analysis += max(d, 0)
}

func (s *Stats) AddTrim(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trims++
	s.trim += max(d, 0)
}

func (s *Stats) AddExport(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports++
	s.export += max(d, 0)
}

// AddFallback counts a frame scored with the neutral fallback
func (s *Stats) AddFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks++
}

// AddFailure counts a failed export
func (s *Stats) AddFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

// Snapshot returns the current totals; a mean is 0 until something was counted
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Frames:       s.frames,
		Fallbacks:    s.fallbacks,
		Exports:      s.exports,
		Failures:     s.failures,
		MeanAnalysis: meanDuration(s.analysis, s.frames),
		MeanTrim:     meanDuration(s.trim, s.trims),
		MeanExport:   meanDuration(s.export, s.exports),
	}
}

func meanDuration(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
