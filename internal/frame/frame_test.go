package frame

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  error
	}{
		{"nil", nil, ErrEmpty},
		{"zero size", &Frame{Channels: 3}, ErrEmpty},
		{"bad channels", &Frame{Width: 1, Height: 1, Channels: 2, Pix: []uint8{1, 2}}, ErrUnsupported},
		{"short uint8", &Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 11)}, ErrShortBuffer},
		{"short float", &Frame{Width: 2, Height: 2, Channels: 1, Depth: Float32, Float: make([]float32, 3)}, ErrShortBuffer},
		{"bad depth", &Frame{Width: 1, Height: 1, Channels: 1, Depth: Depth(9)}, ErrUnsupported},
		{"ok bgr", NewBGR(0, 2, 1, make([]uint8, 6)), nil},
		{"ok bgra", &Frame{Width: 1, Height: 1, Channels: 4, Pix: make([]uint8, 4)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLumaUsesBGROrder(t *testing.T) {
	// pure red in BGR order
	f := NewBGR(0, 1, 1, []uint8{0, 0, 255})
	if got := f.Luma(0); got != 0.299*255 {
		t.Errorf("expected red luma %f, got %f", 0.299*255, got)
	}

	bgra := &Frame{Width: 1, Height: 1, Channels: 4, Pix: []uint8{255, 0, 0, 0}}
	if got := bgra.Luma(0); got != 0.114*255 {
		t.Errorf("expected blue luma %f, got %f", 0.114*255, got)
	}
}

func TestImageRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 200, G: 10, B: 30, A: 255})
	src.SetRGBA(2, 1, color.RGBA{R: 5, G: 250, B: 90, A: 255})

	f := FromImage(4, src)
	if f.Index != 4 || f.Channels != 3 || f.Width != 3 || f.Height != 2 {
		t.Fatalf("unexpected frame layout: %+v", f)
	}
	if f.Pix[0] != 30 || f.Pix[2] != 200 {
		t.Errorf("expected BGR order, got %v", f.Pix[:3])
	}

	img, err := f.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	r, g, b, _ := img.At(2, 1).RGBA()
	if r>>8 != 5 || g>>8 != 250 || b>>8 != 90 {
		t.Errorf("round trip mismatch: %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestFromGrayImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 2))
	src.Pix = []uint8{1, 2, 3, 4}

	f := FromImage(0, src)
	if f.Channels != 1 || f.Pix[3] != 4 {
		t.Errorf("expected single-channel copy, got %+v", f)
	}
	if gray := f.Gray(); gray[2] != 3 {
		t.Errorf("expected gray plane value 3, got %f", gray[2])
	}
}
