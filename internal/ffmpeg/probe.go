package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/keagan/highlightreel/internal/source"
	"github.com/keagan/highlightreel/pkg/util"
)

// ProbeVideo extracts metadata from a video file. Missing files wrap
// source.ErrNotFound; anything ffprobe cannot read as video wraps
// source.ErrInvalidFormat.
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: file path is required", source.ErrNotFound)
	}
	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", source.ErrNotFound, filePath)
		}
		return nil, err
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffprobe failed on %s: %v", source.ErrInvalidFormat, filePath, err)
	}

	info, err := parseProbe(filePath, output)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("file", filePath).
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("probed video")

	return info, nil
}

func parseProbe(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ffprobe output: %v", source.ErrInvalidFormat, err)
	}

	info := &VideoInfo{
		FilePath: filePath,
	}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	foundVideo := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName

			// prefer avg_frame_rate, r_frame_rate can be a timebase multiple
			info.FPS = util.ParseFrameRate(stream.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
			if n, err := strconv.Atoi(stream.NbFrames); err == nil {
				info.FrameCount = n
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	if !foundVideo {
		return nil, fmt.Errorf("%w: no video stream in %s", source.ErrInvalidFormat, filePath)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: unknown frame size in %s", source.ErrInvalidFormat, filePath)
	}
	if info.FPS <= 0 {
		return nil, fmt.Errorf("%w: unknown frame rate in %s", source.ErrInvalidFormat, filePath)
	}
	if info.FrameCount == 0 && info.Duration > 0 {
		info.FrameCount = int(info.Duration.Seconds()*info.FPS + 0.5)
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}
