package design

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"
)

const defaultCacheSize = 128

// Cache memoizes parsed formulas by text. Safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, *Formula]
}

// NewCache returns a cache holding up to size parsed formulas.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, *Formula](size)
	if err != nil {
		// only returned for non-positive sizes
		panic(err)
	}
	return &Cache{lru: c}
}

// Parse returns the cached formula for text, parsing it on a miss. Parse
// failures are not cached.
func (c *Cache) Parse(text string) (*Formula, error) {
	if f, ok := c.lru.Get(text); ok {
		return f, nil
	}
	f, err := Parse(text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(text, f)
	return f, nil
}

// Len returns the number of cached formulas.
func (c *Cache) Len() int { return c.lru.Len() }

var formulas = NewCache(defaultCacheSize)

// Lookup parses text through the package formula cache.
func Lookup(text string) (*Formula, error) {
	return formulas.Parse(text)
}

// Build evaluates formula text at each date and returns the design matrix
// (one row per date).
func Build(dates []float64, text string) (*mat.Dense, error) {
	f, err := Lookup(text)
	if err != nil {
		return nil, err
	}
	return f.Matrix(dates)
}

// Matrix evaluates the formula at each date.
func (f *Formula) Matrix(dates []float64) (*mat.Dense, error) {
	if len(dates) == 0 {
		return nil, ErrNoObservations
	}
	ncol := f.NumCols()
	data := make([]float64, len(dates)*ncol)
	for i, t := range dates {
		f.Row(t, data[i*ncol:(i+1)*ncol])
	}
	return mat.NewDense(len(dates), ncol, data), nil
}
