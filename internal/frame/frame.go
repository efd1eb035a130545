package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Depth identifies the sample type of a frame
type Depth int

const (
	// Uint8 frames carry samples in Pix
	Uint8 Depth = iota
	// Float32 frames carry samples in Float, intensity range 0-255
	Float32
)

func (d Depth) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

var (
	// ErrEmpty is returned for frames with no pixels
	ErrEmpty = errors.New("frame has no pixels")
	// ErrUnsupported is returned for channel counts or depths the scorer cannot read
	ErrUnsupported = errors.New("unsupported frame layout")
	// ErrShortBuffer is returned when the sample buffer does not match the dimensions
	ErrShortBuffer = errors.New("frame buffer size mismatch")
)

// Frame is one decoded picture. Multi-channel samples are interleaved
// in BGR (3 channels) or BGRA (4 channels) order.
type Frame struct {
	Index    int
	Width    int
	Height   int
	Channels int
	Depth    Depth
	Pix      []uint8
	Float    []float32
}

// NewBGR wraps an interleaved BGR24 buffer
func NewBGR(index, width, height int, pix []uint8) *Frame {
	return &Frame{Index: index, Width: width, Height: height, Channels: 3, Depth: Uint8, Pix: pix}
}

// NewGray wraps an 8-bit single-channel buffer
func NewGray(index, width, height int, pix []uint8) *Frame {
	return &Frame{Index: index, Width: width, Height: height, Channels: 1, Depth: Uint8, Pix: pix}
}

// Samples returns the expected number of samples
func (f *Frame) Samples() int {
	return f.Width * f.Height * f.Channels
}

// Validate checks that the frame can be read as described
func (f *Frame) Validate() error {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return ErrEmpty
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: %d channels", ErrUnsupported, f.Channels)
	}

	switch f.Depth {
	case Uint8:
		if len(f.Pix) != f.Samples() {
			return fmt.Errorf("%w: have %d uint8 samples, want %d", ErrShortBuffer, len(f.Pix), f.Samples())
		}
	case Float32:
		if len(f.Float) != f.Samples() {
			return fmt.Errorf("%w: have %d float32 samples, want %d", ErrShortBuffer, len(f.Float), f.Samples())
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, f.Depth)
	}
	return nil
}

// Sample returns channel c of pixel i as a float in the 0-255 range
func (f *Frame) Sample(i, c int) float64 {
	idx := i*f.Channels + c
	if f.Depth == Float32 {
		return float64(f.Float[idx])
	}
	return float64(f.Pix[idx])
}

// Luma returns the grayscale intensity of pixel i using the BT.601
// weights applied to BGR order.
func (f *Frame) Luma(i int) float64 {
	if f.Channels == 1 {
		return f.Sample(i, 0)
	}
	return 0.114*f.Sample(i, 0) + 0.587*f.Sample(i, 1) + 0.299*f.Sample(i, 2)
}

// Gray returns the luma plane in row-major order
func (f *Frame) Gray() []float64 {
	n := f.Width * f.Height
	gray := make([]float64, n)
	for i := 0; i < n; i++ {
		gray[i] = f.Luma(i)
	}
	return gray
}

// FromImage converts any image to a BGR frame (or a gray frame for
// *image.Gray sources).
func FromImage(index int, img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := img.(*image.Gray); ok {
		pix := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			copy(pix[y*w:(y+1)*w], g.Pix[(y)*g.Stride:(y)*g.Stride+w])
		}
		return NewGray(index, w, h, pix)
	}

	pix := make([]uint8, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix[i] = uint8(bl >> 8)
			pix[i+1] = uint8(g >> 8)
			pix[i+2] = uint8(r >> 8)
			i += 3
		}
	}
	return NewBGR(index, w, h, pix)
}

// Image renders the frame as an image.Image. Gray frames become
// *image.Gray, everything else *image.RGBA.
func (f *Frame) Image() (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	n := f.Width * f.Height
	if f.Channels == 1 {
		img := image.NewGray(rect)
		for i := 0; i < n; i++ {
			img.Pix[i] = clamp8(f.Sample(i, 0))
		}
		return img, nil
	}

	img := image.NewRGBA(rect)
	for i := 0; i < n; i++ {
		img.SetRGBA(i%f.Width, i/f.Width, color.RGBA{
			R: clamp8(f.Sample(i, 2)),
			G: clamp8(f.Sample(i, 1)),
			B: clamp8(f.Sample(i, 0)),
			A: 255,
		})
	}
	return img, nil
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
