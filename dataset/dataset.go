// Package dataset describes raw band inputs and reads per-pixel observation
// series from them.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Descriptor describes one input dataset.
type Descriptor struct {
	Name       string    `yaml:"-"`
	Reader     string    `yaml:"reader"`
	BandNames  []string  `yaml:"band_names"`
	MaskBand   string    `yaml:"mask_band"`
	MaskValues []float64 `yaml:"mask_values"`
	MinValues  []float64 `yaml:"min_values"`
	MaxValues  []float64 `yaml:"max_values"`
	DateFormat string    `yaml:"date_format"`
	InputFile  string    `yaml:"input_file"`
}

// Validate checks band name, range and mask settings for consistency.
func (d *Descriptor) Validate() error {
	if len(d.BandNames) == 0 {
		return fmt.Errorf("dataset %q: no band names", d.Name)
	}
	seen := make(map[string]bool, len(d.BandNames))
	for _, b := range d.BandNames {
		if b == "" {
			return fmt.Errorf("dataset %q: empty band name", d.Name)
		}
		if seen[b] {
			return fmt.Errorf("dataset %q: duplicate band %q", d.Name, b)
		}
		seen[b] = true
	}
	if d.MinValues != nil && len(d.MinValues) != len(d.BandNames) {
		return fmt.Errorf("dataset %q: %d min_values for %d bands", d.Name, len(d.MinValues), len(d.BandNames))
	}
	if d.MaxValues != nil && len(d.MaxValues) != len(d.BandNames) {
		return fmt.Errorf("dataset %q: %d max_values for %d bands", d.Name, len(d.MaxValues), len(d.BandNames))
	}
	for i := range d.MinValues {
		if d.MaxValues != nil && d.MinValues[i] > d.MaxValues[i] {
			return fmt.Errorf("dataset %q: band %q min %v > max %v", d.Name, d.BandNames[i], d.MinValues[i], d.MaxValues[i])
		}
	}
	if d.MaskBand != "" && !seen[d.MaskBand] {
		return fmt.Errorf("dataset %q: mask band %q is not a band", d.Name, d.MaskBand)
	}
	return nil
}

// Ranges returns the valid [min, max] of each band that has both bounds.
func (d *Descriptor) Ranges() map[string][2]float64 {
	out := make(map[string][2]float64)
	if d.MinValues == nil || d.MaxValues == nil {
		return out
	}
	for i, b := range d.BandNames {
		out[b] = [2]float64{d.MinValues[i], d.MaxValues[i]}
	}
	return out
}

// Series is one pixel's observations. Dates are ordinal days in
// non-decreasing order; invalid values are NaN so every band stays aligned
// with Dates.
type Series struct {
	Dates []float64
	Bands map[string][]float64
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Dates) }

// Pixel is the series of one pixel location.
type Pixel struct {
	Row, Col int
	Series
}

// Mask marks out-of-range values as NaN, then marks every band NaN at
// observations whose mask band value is one of MaskValues. It works in
// place.
func (d *Descriptor) Mask(s *Series) {
	n := s.Len()
	for i, b := range d.BandNames {
		vals, ok := s.Bands[b]
		if !ok {
			continue
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if d.MinValues != nil {
			lo = d.MinValues[i]
		}
		if d.MaxValues != nil {
			hi = d.MaxValues[i]
		}
		for j, v := range vals {
			if v < lo || v > hi {
				vals[j] = math.NaN()
			}
		}
	}
	if d.MaskBand == "" || len(d.MaskValues) == 0 {
		return
	}
	mask, ok := s.Bands[d.MaskBand]
	if !ok {
		return
	}
	for j := 0; j < n; j++ {
		if !slices.Contains(d.MaskValues, mask[j]) {
			continue
		}
		for _, b := range d.BandNames {
			if vals, ok := s.Bands[b]; ok {
				vals[j] = math.NaN()
			}
		}
	}
}

// AllInvalid reports whether every value of every band is NaN.
func (s *Series) AllInvalid() bool {
	for _, vals := range s.Bands {
		for _, v := range vals {
			if !math.IsNaN(v) {
				return false
			}
		}
	}
	return true
}

// ErrMismatch is returned by Join for pixels that cannot be combined.
var ErrMismatch = errors.New("dataset: pixels do not align")

// Join merges the bands of pixels read from different datasets for the
// same location. Locations and dates must match and band names must not
// collide.
func Join(pixels ...*Pixel) (*Pixel, error) {
	if len(pixels) == 0 {
		return nil, fmt.Errorf("%w: nothing to join", ErrMismatch)
	}
	first := pixels[0]
	out := &Pixel{Row: first.Row, Col: first.Col, Series: Series{
		Dates: first.Dates,
		Bands: make(map[string][]float64),
	}}
	for _, p := range pixels {
		if p.Row != first.Row || p.Col != first.Col {
			return nil, fmt.Errorf("%w: pixel (%d, %d) vs (%d, %d)", ErrMismatch, p.Row, p.Col, first.Row, first.Col)
		}
		if !slices.Equal(p.Dates, first.Dates) {
			return nil, fmt.Errorf("%w: dates differ at pixel (%d, %d)", ErrMismatch, p.Row, p.Col)
		}
		for name, vals := range p.Bands {
			if _, dup := out.Bands[name]; dup {
				return nil, fmt.Errorf("%w: band %q in more than one dataset", ErrMismatch, name)
			}
			out.Bands[name] = vals
		}
	}
	return out, nil
}
