// Package stream accumulates per-frame scores for one video and
// normalizes them once the sequence is complete.
package stream

import "math"

// ConstantFallback is the normalized value assigned to every frame when
// all raw scores are equal. With every value at the minimum no frame can
// exceed the percentile threshold, so a flat video yields no highlights.
const ConstantFallback = 0.0

// neutralScore replaces NaN and infinite scores on arrival
const neutralScore = 0.5

// Stream holds the raw score sequence in arrival order
type Stream struct {
	raw []float64
	min float64
	max float64
}

// New creates a stream with room for sizeHint scores
func New(sizeHint int) *Stream {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Stream{
		raw: make([]float64, 0, sizeHint),
		min: math.Inf(1),
		max: math.Inf(-1),
	}
}

// Push appends the next frame's score
func (s *Stream) Push(score float64) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = neutralScore
	}
	s.raw = append(s.raw, score)
	if score < s.min {
		s.min = score
	}
	if score > s.max {
		s.max = score
	}
}

// Len returns the number of scores pushed
func (s *Stream) Len() int {
	return len(s.raw)
}

// Min returns the smallest score, or 0 for an empty stream
func (s *Stream) Min() float64 {
	if len(s.raw) == 0 {
		return 0
	}
	return s.min
}

// Max returns the largest score, or 0 for an empty stream
func (s *Stream) Max() float64 {
	if len(s.raw) == 0 {
		return 0
	}
	return s.max
}

// Raw returns a copy of the raw sequence
func (s *Stream) Raw() []float64 {
	out := make([]float64, len(s.raw))
	copy(out, s.raw)
	return out
}

// Normalize min-max scales the sequence into [0,1]
func (s *Stream) Normalize() []float64 {
	out := make([]float64, len(s.raw))
	if len(s.raw) == 0 {
		return out
	}

	span := s.max - s.min
	if span == 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		for i := range out {
			out[i] = ConstantFallback
		}
		return out
	}

	for i, v := range s.raw {
		n := (v - s.min) / span
		// guard rounding at the edges
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		out[i] = n
	}
	return out
}
