package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/keagan/highlightreel/internal/source"
	"github.com/rs/zerolog"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	skipIfNoFFmpeg(t)

	e, err := New(zerolog.New(io.Discard), Options{Threads: 2})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	return e
}

// makeTestVideo renders a short lavfi test pattern
func makeTestVideo(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-t", strconv.Itoa(seconds),
		"-pix_fmt", "yuv420p", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("could not generate test video: %v: %s", err, out)
	}
	return path
}

func TestFilterBuilder(t *testing.T) {
	filter := NewFilterBuilder().Scale(1920, 1080).FPS(30).Build()

	expected := "scale=1920:1080,fps=30.000000"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderSkipsInvalid(t *testing.T) {
	filter := NewFilterBuilder().Scale(0, 10).FPS(-1).Custom("").Build()
	if filter != "" {
		t.Errorf("expected empty string, got %q", filter)
	}
}

func TestDecodeFilter(t *testing.T) {
	info := &VideoInfo{Width: 1920, Height: 1080, FPS: 30}
	tests := []struct {
		name          string
		width, height int
		fps           float64
		custom        string
		want          string
	}{
		{"source size", 1920, 1080, 30, "", ""},
		{"scaled and sampled", 320, 180, 10, "", "scale=320:180,fps=10.000000"},
		{"custom filter pins the size", 1920, 1080, 30, "crop=iw:ih*0.8:0:0", "crop=iw:ih*0.8:0:0,scale=1920:1080"},
		{"custom filter before scaling", 320, 180, 30, " hqdn3d ", "hqdn3d,scale=320:180"},
		{"blank custom filter", 1920, 1080, 30, "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeFilter(info, tt.width, tt.height, tt.fps, tt.custom); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// shellReader runs script as a stand-in decoder emitting 1x1 BGR frames
func shellReader(t *testing.T, script string) *FrameReader {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, sh, "-c", script)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}

	r := &FrameReader{
		logger: zerolog.Nop(),
		info:   &VideoInfo{Width: 1, Height: 1, FPS: 1},
		fps:    1,
		width:  1,
		height: 1,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		cancel: cancel,
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestFrameReaderDecoderExit(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		frames  int
		wantErr string // empty means a clean io.EOF
	}{
		{"clean exit", "printf abcdef", 2, ""},
		{"truncated trailing frame", "printf abcdefg", 2, ""},
		{"failure after frames", "printf abcdef; echo 'corrupt packet' >&2; exit 1", 2, "after 2 frames"},
		{"failure before any frame", "echo 'invalid data' >&2; exit 1", 0, "decode failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := shellReader(t, tt.script)
			ctx := context.Background()

			for i := 0; i < tt.frames; i++ {
				f, err := r.Next(ctx)
				if err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
				if f.Index != i {
					t.Errorf("expected index %d, got %d", i, f.Index)
				}
			}

			_, err := r.Next(ctx)
			if tt.wantErr == "" {
				if err != io.EOF {
					t.Fatalf("expected io.EOF, got %v", err)
				}
				return
			}
			if !errors.Is(err, source.ErrInvalidFormat) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected ErrInvalidFormat mentioning %q, got %v", tt.wantErr, err)
			}
			// the failure sticks instead of turning into a clean end
			if _, again := r.Next(ctx); again == io.EOF || !errors.Is(again, source.ErrInvalidFormat) {
				t.Errorf("expected the decoder error again, got %v", again)
			}
		})
	}
}

func TestOutputSize(t *testing.T) {
	tests := []struct {
		srcW, srcH, width int
		wantW, wantH      int
	}{
		{1920, 1080, 0, 1920, 1080},
		{1920, 1080, 320, 320, 180},
		{1920, 1080, 4000, 1920, 1080},
		{640, 480, 100, 100, 76},
		{1000, 10, 10, 10, 2},
	}

	for _, tt := range tests {
		w, h := outputSize(tt.srcW, tt.srcH, tt.width)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("outputSize(%d,%d,%d) = %dx%d, want %dx%d", tt.srcW, tt.srcH, tt.width, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestParseProbe(t *testing.T) {
	output := `{
		"format": {"duration": "12.5", "bit_rate": "800000"},
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 320, "height": 240,
			 "r_frame_rate": "60/1", "avg_frame_rate": "30000/1001", "nb_frames": "374"}
		]
	}`

	info, err := parseProbe("in.mp4", []byte(output))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("expected 320x240, got %dx%d", info.Width, info.Height)
	}
	if info.FPS < 29.96 || info.FPS > 29.98 {
		t.Errorf("expected avg frame rate 29.97, got %f", info.FPS)
	}
	if info.FrameCount != 374 || !info.HasAudio {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Duration != 12500*time.Millisecond {
		t.Errorf("expected 12.5s, got %v", info.Duration)
	}
}

func TestParseProbeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"garbage", "not json"},
		{"audio only", `{"streams":[{"codec_type":"audio"}]}`},
		{"no fps", `{"streams":[{"codec_type":"video","width":2,"height":2,"r_frame_rate":"0/0"}]}`},
		{"no size", `{"streams":[{"codec_type":"video","r_frame_rate":"25/1"}]}`},
	}

	for _, tt := range tests {
		if _, err := parseProbe("x", []byte(tt.output)); !errors.Is(err, source.ErrInvalidFormat) {
			t.Errorf("%s: expected ErrInvalidFormat, got %v", tt.name, err)
		}
	}
}

func TestParseProbeEstimatesFrameCount(t *testing.T) {
	output := `{"format":{"duration":"4"},"streams":[{"codec_type":"video","width":2,"height":2,"r_frame_rate":"25/1"}]}`
	info, err := parseProbe("x", []byte(output))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.FrameCount != 100 {
		t.Errorf("expected 100 frames, got %d", info.FrameCount)
	}
}

func TestClipOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts ClipOptions
		want error
	}{
		{"negative start", ClipOptions{Start: -time.Second, End: time.Second, Output: "o.mp4"}, ErrInvalidClip},
		{"end before start", ClipOptions{Start: 2 * time.Second, End: time.Second, Output: "o.mp4"}, ErrInvalidClip},
		{"empty", ClipOptions{Start: time.Second, End: time.Second, Output: "o.mp4"}, ErrInvalidClip},
	}
	for _, tt := range tests {
		if err := tt.opts.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}

	if err := (ClipOptions{Start: 0, End: time.Second}).Validate(); err == nil {
		t.Error("expected error for missing output")
	}
}

func TestClipArgs(t *testing.T) {
	args := clipArgs("in.mp4", ClipOptions{Start: 90 * time.Second, End: 150 * time.Second, Output: "out.mp4"})
	want := []string{
		"-ss", "00:01:30.000", "-i", "in.mp4", "-t", "00:01:00.000",
		"-c:v", DefaultVideoCodec, "-crf", "23", "-preset", DefaultPreset, "-c:a", DefaultAudioCodec,
		"out.mp4",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("expected %v, got %v", want, args)
	}

	copyArgs := clipArgs("in.mp4", ClipOptions{Start: 0, End: time.Second, Output: "o.mp4", CopyCodec: true})
	if strings.Join(copyArgs[len(copyArgs)-3:], " ") != "-c copy o.mp4" {
		t.Errorf("expected stream copy, got %v", copyArgs)
	}
}

func TestWriteConcatList(t *testing.T) {
	path, err := writeConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	if err != nil {
		t.Fatalf("writeConcatList: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n"
	if string(data) != want {
		t.Errorf("expected %q, got %q", want, string(data))
	}
}

func TestStreamOutputProgress(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	input := strings.Join([]string{
		"frame=12", "fps=24.5", "out_time=00:00:00.500000", "speed=2.1x", "progress=continue",
		"some log line",
		"frame=30", "progress=end",
	}, "\n")

	var updates []Progress
	var logs []string
	e.streamOutput(strings.NewReader(input),
		func(p *Progress) { updates = append(updates, *p) },
		func(line string) { logs = append(logs, line) })

	if len(updates) != 2 {
		t.Fatalf("expected 2 progress updates, got %d", len(updates))
	}
	if updates[0].Frame != 12 || updates[0].FPS != 24.5 || updates[0].Speed != "2.1x" {
		t.Errorf("unexpected first update: %+v", updates[0])
	}
	if updates[1].Frame != 30 {
		t.Errorf("unexpected second update: %+v", updates[1])
	}
	if len(logs) != 1 || logs[0] != "some log line" {
		t.Errorf("expected one log line, got %v", logs)
	}
}

func TestProbeVideoMissing(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.ProbeVideo(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, source.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProbeVideoInvalidFile(t *testing.T) {
	e := newTestExecutor(t)

	path := filepath.Join(t.TempDir(), "invalid.mp4")
	if err := os.WriteFile(path, []byte("not a video file"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := e.ProbeVideo(context.Background(), path)
	if !errors.Is(err, source.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestOpenFrames(t *testing.T) {
	e := newTestExecutor(t)
	input := makeTestVideo(t, 2)

	reader, err := e.OpenFrames(context.Background(), input, FrameOptions{Width: 32})
	if err != nil {
		t.Fatalf("OpenFrames: %v", err)
	}
	defer reader.Close()

	if reader.FPS() != 10 {
		t.Errorf("expected 10 fps, got %f", reader.FPS())
	}

	count := 0
	for {
		f, err := reader.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("frame %d: %v", count, err)
		}
		if f.Index != count || f.Width != 32 || f.Height != 24 {
			t.Fatalf("unexpected frame %d: %dx%d index %d", count, f.Width, f.Height, f.Index)
		}
		count++
	}

	if count < 19 || count > 21 {
		t.Errorf("expected about 20 frames, got %d", count)
	}
}

func TestOpenFramesCloseEarly(t *testing.T) {
	e := newTestExecutor(t)
	input := makeTestVideo(t, 5)

	reader, err := e.OpenFrames(context.Background(), input, FrameOptions{SampleFPS: 5})
	if err != nil {
		t.Fatalf("OpenFrames: %v", err)
	}
	if reader.FPS() != 5 {
		t.Errorf("expected sampled 5 fps, got %f", reader.FPS())
	}
	if _, err := reader.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := reader.Next(context.Background()); !errors.Is(err, source.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestExtractClip(t *testing.T) {
	e := newTestExecutor(t)
	input := makeTestVideo(t, 3)

	outputPath := filepath.Join(t.TempDir(), "clip_output.mp4")
	opts := ClipOptions{
		Start:  500 * time.Millisecond,
		End:    1500 * time.Millisecond,
		Output: outputPath,
		Preset: "ultrafast",
	}

	if err := e.ExtractClip(context.Background(), input, opts); err != nil {
		t.Fatalf("ExtractClip failed: %v", err)
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("output file was not created: %v", err)
	}
	t.Logf("Clip created: %s (size: %d bytes)", outputPath, stat.Size())
}

func TestConcatValidation(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	if err := e.Concat(context.Background(), ConcatOptions{Output: "x.mp4"}); err == nil {
		t.Error("expected error with no inputs")
	}
	if err := e.Concat(context.Background(), ConcatOptions{Inputs: []string{"a.mp4"}}); err == nil {
		t.Error("expected error with no output")
	}
}
