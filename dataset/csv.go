package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

// CSVReader streams pixels from a long-format CSV file with the header
// row,col,date,<band>... Rows of one pixel must be contiguous; they are
// sorted by date on read. Empty cells and "NaN" are invalid observations.
type CSVReader struct {
	desc   *Descriptor
	r      *csv.Reader
	closer io.Closer
	cols   []int // band index -> csv column
	next   []string
	done   bool
	line   int
}

// OpenCSV opens the descriptor's input file.
func OpenCSV(desc *Descriptor) (*CSVReader, error) {
	f, err := os.Open(desc.InputFile)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", desc.Name, err)
	}
	r, err := NewCSVReader(desc, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewCSVReader reads pixels for desc from r.
func NewCSVReader(desc *Descriptor, r io.Reader) (*CSVReader, error) {
	if _, err := Layout(desc.DateFormat); err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset %q: read header: %w", desc.Name, err)
	}
	for i, want := range []string{"row", "col", "date"} {
		if i >= len(header) || !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, fmt.Errorf("dataset %q: header must start with row,col,date", desc.Name)
		}
	}
	cols := make([]int, len(desc.BandNames))
	for i, b := range desc.BandNames {
		cols[i] = slices.Index(header, b)
		if cols[i] < 0 {
			return nil, fmt.Errorf("dataset %q: band %q missing from header", desc.Name, b)
		}
	}
	return &CSVReader{desc: desc, r: cr, cols: cols, line: 1}, nil
}

// Next returns the next pixel, with the descriptor's mask applied, or
// io.EOF when the input is exhausted.
func (r *CSVReader) Next() (*Pixel, error) {
	if r.next == nil {
		if r.done {
			return nil, io.EOF
		}
		rec, err := r.read()
		if err != nil {
			r.done = errors.Is(err, io.EOF)
			return nil, err
		}
		r.next = rec
	}
	rec := r.next
	r.next = nil
	row, col, err := r.location(rec)
	if err != nil {
		return nil, err
	}
	px := &Pixel{Row: row, Col: col, Series: Series{Bands: make(map[string][]float64, len(r.cols))}}
	for {
		if err := r.append(px, rec); err != nil {
			return nil, err
		}
		rec, err = r.read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		rr, cc, err := r.location(rec)
		if err != nil {
			return nil, err
		}
		if rr != row || cc != col {
			r.next = rec
			break
		}
	}
	sortByDate(&px.Series)
	r.desc.Mask(&px.Series)
	return px, nil
}

func (r *CSVReader) read() ([]string, error) {
	rec, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("dataset %q: %w", r.desc.Name, err)
	}
	r.line++
	if len(rec) < 3 {
		return nil, fmt.Errorf("dataset %q line %d: too few fields", r.desc.Name, r.line)
	}
	return rec, nil
}

func (r *CSVReader) location(rec []string) (int, int, error) {
	row, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("dataset %q line %d: row: %w", r.desc.Name, r.line, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("dataset %q line %d: col: %w", r.desc.Name, r.line, err)
	}
	return row, col, nil
}

func (r *CSVReader) append(px *Pixel, rec []string) error {
	d, err := ParseDate(r.desc.DateFormat, rec[2])
	if err != nil {
		return fmt.Errorf("dataset %q line %d: %w", r.desc.Name, r.line, err)
	}
	px.Dates = append(px.Dates, d)
	for i, b := range r.desc.BandNames {
		v, err := parseValue(rec[r.cols[i]])
		if err != nil {
			return fmt.Errorf("dataset %q line %d: band %q: %w", r.desc.Name, r.line, b, err)
		}
		px.Bands[b] = append(px.Bands[b], v)
	}
	return nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Close releases the underlying file, if any.
func (r *CSVReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func sortByDate(s *Series) {
	if slices.IsSorted(s.Dates) {
		return
	}
	idx := make([]int, len(s.Dates))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case s.Dates[a] < s.Dates[b]:
			return -1
		case s.Dates[a] > s.Dates[b]:
			return 1
		}
		return 0
	})
	s.Dates = permute(s.Dates, idx)
	for name, vals := range s.Bands {
		s.Bands[name] = permute(vals, idx)
	}
}

func permute(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
