package scoring

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/keagan/highlightreel/internal/frame"
	"golang.org/x/sync/errgroup"
)

// Backend names accepted by NewBackend
const (
	BackendReference   = "cpu"
	BackendAccelerated = "accelerated"
)

// maxEdgeMagnitude is the largest response of one Sobel kernel on 8-bit input
const maxEdgeMagnitude = 4 * 255.0

// Features are the normalized low-level measurements of one frame
type Features struct {
	Brightness  float64
	Contrast    float64
	EdgeDensity float64
}

// Backend computes frame features. Implementations must agree with
// ReferenceBackend up to floating-point tolerance.
type Backend interface {
	Name() string
	Features(f *frame.Frame) (Features, error)
}

// NewBackend selects a backend by name
func NewBackend(name string, workers int) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendReference, "reference":
		return ReferenceBackend{}, nil
	case BackendAccelerated, "gpu", "parallel":
		return NewParallelBackend(workers), nil
	default:
		return nil, fmt.Errorf("unknown scoring backend %q", name)
	}
}

// ReferenceBackend is the straightforward single-threaded implementation
type ReferenceBackend struct{}

func (ReferenceBackend) Name() string { return BackendReference }

func (ReferenceBackend) Features(f *frame.Frame) (Features, error) {
	if err := f.Validate(); err != nil {
		return Features{}, err
	}

	gray := f.Gray()
	var sum, sumSq float64
	for _, v := range gray {
		sum += v
		sumSq += v * v
	}

	var edges float64
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			edges += sobel(gray, f.Width, f.Height, x, y)
		}
	}

	return features(sum, sumSq, edges, len(gray)), nil
}

// ParallelBackend splits the frame into row bands processed concurrently.
// Partial sums are reduced in band order so results are deterministic.
type ParallelBackend struct {
	workers int
}

// NewParallelBackend creates a banded backend; workers <= 0 uses GOMAXPROCS
func NewParallelBackend(workers int) *ParallelBackend {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ParallelBackend{workers: workers}
}

func (p *ParallelBackend) Name() string { return BackendAccelerated }

type bandSums struct {
	sum, sumSq, edges float64
}

func (p *ParallelBackend) Features(f *frame.Frame) (Features, error) {
	if err := f.Validate(); err != nil {
		return Features{}, err
	}

	w, h := f.Width, f.Height
	bands := p.workers
	if bands > h {
		bands = h
	}
	rowsPer := (h + bands - 1) / bands

	gray := make([]float64, w*h)
	var g errgroup.Group
	g.SetLimit(p.workers)
	for b := 0; b < bands; b++ {
		y0, y1 := bandRows(b, rowsPer, h)
		g.Go(func() error {
			for i := y0 * w; i < y1*w; i++ {
				gray[i] = f.Luma(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Features{}, err
	}

	partial := make([]bandSums, bands)
	for b := 0; b < bands; b++ {
		b := b
		y0, y1 := bandRows(b, rowsPer, h)
		g.Go(func() error {
			var s bandSums
			for y := y0; y < y1; y++ {
				for x := 0; x < w; x++ {
					v := gray[y*w+x]
					s.sum += v
					s.sumSq += v * v
					s.edges += sobel(gray, w, h, x, y)
				}
			}
			partial[b] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Features{}, err
	}

	var total bandSums
	for _, s := range partial {
		total.sum += s.sum
		total.sumSq += s.sumSq
		total.edges += s.edges
	}
	return features(total.sum, total.sumSq, total.edges, w*h), nil
}

func bandRows(b, rowsPer, h int) (int, int) {
	y0 := b * rowsPer
	y1 := y0 + rowsPer
	if y0 > h {
		y0 = h
	}
	if y1 > h {
		y1 = h
	}
	return y0, y1
}

// sobel returns the gradient magnitude at (x, y) with replicated borders
func sobel(gray []float64, w, h, x, y int) float64 {
	at := func(dx, dy int) float64 {
		xx := clampInt(x+dx, 0, w-1)
		yy := clampInt(y+dy, 0, h-1)
		return gray[yy*w+xx]
	}

	gx := at(1, -1) + 2*at(1, 0) + at(1, 1) - at(-1, -1) - 2*at(-1, 0) - at(-1, 1)
	gy := at(-1, 1) + 2*at(0, 1) + at(1, 1) - at(-1, -1) - 2*at(0, -1) - at(1, -1)
	return math.Sqrt(gx*gx + gy*gy)
}

func features(sum, sumSq, edges float64, n int) Features {
	count := float64(n)
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}

	return Features{
		Brightness:  clamp01(mean / 255.0),
		Contrast:    clamp01(math.Sqrt(variance) / 127.5),
		EdgeDensity: clamp01(edges / count / maxEdgeMagnitude),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
