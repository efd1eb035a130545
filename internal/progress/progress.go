// Package progress reports per-frame analysis progress.
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Update describes the analysis state after one frame has been scored
type Update struct {
	Frame   int // frames processed so far, 1-based
	Total   int // expected frames, 0 when unknown
	Elapsed time.Duration
	FPS     float64 // processing rate, frames per second of wall time
}

// Percent returns completion in [0,100], or -1 when the total is unknown
func (u Update) Percent() float64 {
	if u.Total <= 0 {
		return -1
	}
	p := float64(u.Frame) / float64(u.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Observer receives one Update per frame, in frame order
type Observer interface {
	Observe(Update)
}

// Func adapts a plain function to Observer
type Func func(Update)

func (f Func) Observe(u Update) { f(u) }

// Multi fans updates out to several observers; nil entries are skipped
type Multi []Observer

func (m Multi) Observe(u Update) {
	for _, o := range m {
		if o != nil {
			o.Observe(u)
		}
	}
}

// Notify calls obs if it is non-nil
func Notify(obs Observer, u Update) {
	if obs != nil {
		obs.Observe(u)
	}
}

// Log writes a debug line every N frames and on the last frame
type Log struct {
	logger zerolog.Logger
	every  int
}

// NewLog creates a log observer. every <= 0 defaults to 100 frames.
func NewLog(logger zerolog.Logger, every int) *Log {
	if every <= 0 {
		every = 100
	}
	return &Log{
		logger: logger.With().Str("component", "progress").Logger(),
		every:  every,
	}
}

func (l *Log) Observe(u Update) {
	if u.Frame%l.every != 0 && u.Frame != u.Total {
		return
	}
	l.logger.Debug().
		Int("frame", u.Frame).
		Int("total", u.Total).
		Dur("elapsed", u.Elapsed).
		Float64("fps", u.FPS).
		Msg("analysis progress")
}

// Bar renders progress on a terminal
type Bar struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	total int
}

// NewBar creates a progress bar writing to w. A total of 0 renders a spinner
// until the first update that carries a total.
func NewBar(w io.Writer, description string, total int) *Bar {
	limit := total
	if limit <= 0 {
		limit = -1
	}
	bar := progressbar.NewOptions(limit,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &Bar{bar: bar, total: total}
}

func (b *Bar) Observe(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// probed frame counts are estimates, grow the bar instead of overflowing
	if (u.Total > 0 && u.Total != b.total) || (b.total > 0 && u.Frame > b.total) {
		b.total = max(u.Total, u.Frame)
		b.bar.ChangeMax(b.total)
	}
	_ = b.bar.Set(u.Frame)
}

// Finish completes and clears the bar
func (b *Bar) Finish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bar.Finish()
}
