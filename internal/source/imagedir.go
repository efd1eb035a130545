package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/keagan/highlightreel/internal/frame"
	"github.com/rs/zerolog"
)

// ImageDir reads a directory of numbered PNG/JPEG frames in name order
type ImageDir struct {
	logger zerolog.Logger
	files  []string
	fps    float64
	pos    int
}

// OpenImageDir lists the frames in dir
func OpenImageDir(logger zerolog.Logger, dir string, fps float64) (*ImageDir, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidFormat, dir)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: frame rate required for image sequences", ErrInvalidFormat)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrInvalidFormat, dir)
	}
	sort.Strings(files)

	return &ImageDir{
		logger: logger.With().Str("component", "source").Str("dir", dir).Logger(),
		files:  files,
		fps:    fps,
	}, nil
}

// ImageDirOpener opens image directories at a fixed frame rate
func ImageDirOpener(logger zerolog.Logger, fps float64) Opener {
	return OpenerFunc(func(ctx context.Context, path string) (FrameSource, error) {
		dir, err := OpenImageDir(logger, path, fps)
		if err != nil {
			return nil, err
		}
		return dir, nil
	})
}

func (d *ImageDir) FPS() float64 { return d.fps }

func (d *ImageDir) Duration() time.Duration {
	return time.Duration(float64(len(d.files)) / d.fps * float64(time.Second))
}

// Next decodes the next image. A file that fails to decode is returned as
// an empty frame so the scorer can fall back without shifting later indices.
func (d *ImageDir) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.pos >= len(d.files) {
		return nil, io.EOF
	}

	index := d.pos
	path := d.files[index]
	d.pos++

	img, err := decodeImage(path)
	if err != nil {
		d.logger.Warn().Err(err).Str("path", path).Int("frame", index).Msg("unreadable frame, scoring as empty")
		return &frame.Frame{Index: index}, nil
	}
	return frame.FromImage(index, img), nil
}

func (d *ImageDir) Close() error {
	d.pos = len(d.files)
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
