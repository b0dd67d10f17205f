// Package record defines the segment record produced by temporal segmentation
// tasks and stored in a pixel's record slots.
package record

import "math"

// Valid reports whether an observation is usable: finite, not NaN or ±Inf.
func Valid(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Segment is one stable period of a pixel's history.
//
// Field order is the persisted layout: start, end, break, coef, rmse, nobs,
// row, col. Encoders must keep it.
type Segment struct {
	Start float64     `json:"start"`
	End   float64     `json:"end"`
	Break *float64    `json:"break"` // nil while the segment is open
	Coef  [][]float64 `json:"coef"`  // Coef[band][term]
	RMSE  []float64   `json:"rmse"`
	NObs  int         `json:"nobs"`
	Row   int         `json:"row"`
	Col   int         `json:"col"`
}

// Open reports whether the segment ended without a detected break.
func (s Segment) Open() bool { return s.Break == nil }

// BreakAt returns the break date, or NaN for an open segment.
func (s Segment) BreakAt() float64 {
	if s.Break == nil {
		return math.NaN()
	}
	return *s.Break
}

// Close sets the break date.
func (s *Segment) Close(at float64) {
	b := at
	s.Break = &b
}

// Contains reports whether t lies within [Start, End].
func (s Segment) Contains(t float64) bool {
	return t >= s.Start && t <= s.End
}

// Clone returns a deep copy so callers can hand records across slot
// boundaries without sharing backing arrays.
func (s Segment) Clone() Segment {
	out := s
	if s.Break != nil {
		b := *s.Break
		out.Break = &b
	}
	if s.Coef != nil {
		out.Coef = make([][]float64, len(s.Coef))
		for i, c := range s.Coef {
			out.Coef[i] = append([]float64(nil), c...)
		}
	}
	if s.RMSE != nil {
		out.RMSE = append([]float64(nil), s.RMSE...)
	}
	return out
}

// CloneAll deep-copies a record sequence. A nil input yields a non-nil empty
// slice so an empty result is distinguishable from a missing slot.
func CloneAll(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = s.Clone()
	}
	return out
}

// Stamp sets pixel coordinates on every segment in place.
func Stamp(segs []Segment, row, col int) {
	for i := range segs {
		segs[i].Row = row
		segs[i].Col = col
	}
}
