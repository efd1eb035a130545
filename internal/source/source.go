// Package source defines how the pipeline reads decoded frames.
package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/keagan/highlightreel/internal/frame"
)

var (
	// ErrNotFound is returned when the input does not exist
	ErrNotFound = errors.New("video not found")
	// ErrInvalidFormat is returned when the input cannot be decoded as video
	ErrInvalidFormat = errors.New("invalid video format")
	// ErrClosed is returned by Next after Close
	ErrClosed = errors.New("frame source closed")
)

// FrameSource is a forward-only, finite sequence of frames. Next returns
// io.EOF after the last frame. Restarting requires opening the input again.
type FrameSource interface {
	FPS() float64
	Duration() time.Duration
	Next(ctx context.Context) (*frame.Frame, error)
	Close() error
}

// Opener opens a frame source for an input path
type Opener interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, path string) (FrameSource, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (FrameSource, error) {
	return f(ctx, path)
}

// Slice serves frames from memory
type Slice struct {
	mu     sync.Mutex
	frames []*frame.Frame
	fps    float64
	pos    int
	closed bool
}

// NewSlice creates an in-memory source. Frame indices are rewritten to
// their position in frames.
func NewSlice(fps float64, frames []*frame.Frame) *Slice {
	for i, f := range frames {
		if f != nil {
			f.Index = i
		}
	}
	return &Slice{frames: frames, fps: fps}
}

func (s *Slice) FPS() float64 { return s.fps }

func (s *Slice) Duration() time.Duration {
	if s.fps <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.frames)) / s.fps * float64(time.Second))
}

func (s *Slice) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *Slice) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Generate builds a Slice of n frames produced by fn
func Generate(fps float64, n int, fn func(i int) *frame.Frame) *Slice {
	frames := make([]*frame.Frame, n)
	for i := range frames {
		frames[i] = fn(i)
	}
	return NewSlice(fps, frames)
}
