package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/keagan/highlightreel/internal/frame"
	"github.com/keagan/highlightreel/internal/source"
	"github.com/rs/zerolog"
)

// FrameOptions controls how frames are decoded for analysis
type FrameOptions struct {
	// Width scales frames to this width (aspect preserved); 0 keeps the source size
	Width int
	// SampleFPS decodes at a lower frame rate; 0 keeps every frame
	SampleFPS float64
	// Filter is an extra ffmpeg filter chain run before scaling, e.g.
	// "hqdn3d" or a crop that hides a scoreboard. The result is always
	// rescaled to the decode size.
	Filter string
}

// FrameReader streams raw BGR24 frames out of an ffmpeg process
type FrameReader struct {
	logger zerolog.Logger
	info   *VideoInfo
	fps    float64
	width  int
	height int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc

	mu     sync.Mutex
	index  int
	done   bool
	err    error // set when the decoder exited non-zero
	closed bool
}

// Opener returns a source.Opener decoding through this executor
func (e *Executor) Opener(opts FrameOptions) source.Opener {
	return source.OpenerFunc(func(ctx context.Context, path string) (source.FrameSource, error) {
		r, err := e.OpenFrames(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}

// OpenFrames probes the input and starts decoding it to raw frames
func (e *Executor) OpenFrames(ctx context.Context, path string, opts FrameOptions) (*FrameReader, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}

	width, height := outputSize(info.Width, info.Height, opts.Width)
	fps := info.FPS
	if opts.SampleFPS > 0 && opts.SampleFPS < info.FPS {
		fps = opts.SampleFPS
	}

	args := e.baseArgs()
	args = append(args, "-i", path, "-an", "-sn")
	if vf := decodeFilter(info, width, height, fps, opts.Filter); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", "bgr24", "pipe:1")

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, e.ffmpegPath, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.logger.Info().
		Str("input", path).
		Int("width", width).
		Int("height", height).
		Float64("fps", fps).
		Msg("decoding frames")

	return &FrameReader{
		logger: e.logger.With().Str("input", path).Logger(),
		info:   info,
		fps:    fps,
		width:  width,
		height: height,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		cancel: cancel,
	}, nil
}

// decodeFilter builds the -vf chain. A custom filter may change the
// geometry, so the chain then always ends in an explicit scale.
func decodeFilter(info *VideoInfo, width, height int, fps float64, custom string) string {
	custom = strings.TrimSpace(custom)
	filters := NewFilterBuilder().Custom(custom)
	if custom != "" || width != info.Width || height != info.Height {
		filters.Scale(width, height)
	}
	if fps != info.FPS {
		filters.FPS(fps)
	}
	return filters.Build()
}

// outputSize keeps the aspect ratio and rounds the height to an even number
func outputSize(srcW, srcH, width int) (int, int) {
	if width <= 0 || width >= srcW {
		return srcW, srcH
	}
	h := int(float64(srcH)*float64(width)/float64(srcW)/2+0.5) * 2
	if h < 2 {
		h = 2
	}
	return width, h
}

// Info returns the probed metadata
func (r *FrameReader) Info() *VideoInfo { return r.info }

func (r *FrameReader) FPS() float64 { return r.fps }

func (r *FrameReader) Duration() time.Duration { return r.info.Duration }

// Next reads one frame. A truncated trailing frame is treated as the end
// of the stream.
func (r *FrameReader) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, source.ErrClosed
	}
	if r.done {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}

	buf := make([]uint8, r.width*r.height*3)
	_, err := io.ReadFull(r.stdout, buf)
	switch {
	case err == nil:
		f := frame.NewBGR(r.index, r.width, r.height, buf)
		r.index++
		return f, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		r.done = true
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.logger.Warn().Int("frame", r.index).Msg("discarding truncated trailing frame")
		}
		if r.err = r.exitError(r.cmd.Wait()); r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame %d: %w", r.index, err)
	}
}

// exitError reports a decoder that exited non-zero. Frames read before the
// failure stay valid but the stream is incomplete.
func (r *FrameReader) exitError(werr error) error {
	if werr == nil {
		return nil
	}
	msg := strings.TrimSpace(r.stderr.String())
	if r.index == 0 {
		return fmt.Errorf("%w: ffmpeg decode failed: %v: %s", source.ErrInvalidFormat, werr, msg)
	}
	r.logger.Error().Err(werr).Int("frames", r.index).Msg("decoder exited early")
	return fmt.Errorf("%w: ffmpeg exited after %d frames: %v: %s", source.ErrInvalidFormat, r.index, werr, msg)
}

// Close stops the decoder process
func (r *FrameReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	_ = r.stdout.Close()
	if !r.done {
		// killed by cancel, exit status is expected to be non-zero
		_ = r.cmd.Wait()
	}
	return nil
}
