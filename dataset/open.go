package dataset

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// PixelReader yields pixels until io.EOF.
type PixelReader interface {
	Next() (*Pixel, error)
	Close() error
}

// Open returns a reader over every dataset, joining bands per pixel.
// Datasets are opened in name order and must list pixels in the same order.
func Open(descs map[string]*Descriptor) (PixelReader, error) {
	names := make([]string, 0, len(descs))
	for name := range descs {
		names = append(names, name)
	}
	sort.Strings(names)
	m := &multiReader{}
	for _, name := range names {
		d := descs[name]
		if err := d.Validate(); err != nil {
			m.Close()
			return nil, err
		}
		switch d.Reader {
		case "", "csv":
		default:
			m.Close()
			return nil, fmt.Errorf("dataset %q: unknown reader %q", name, d.Reader)
		}
		r, err := OpenCSV(d)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.readers = append(m.readers, r)
	}
	if len(m.readers) == 0 {
		return nil, errors.New("dataset: no datasets configured")
	}
	if len(m.readers) == 1 {
		return m.readers[0], nil
	}
	return m, nil
}

type multiReader struct {
	readers []*CSVReader
}

func (m *multiReader) Next() (*Pixel, error) {
	pixels := make([]*Pixel, len(m.readers))
	eof := 0
	for i, r := range m.readers {
		px, err := r.Next()
		if errors.Is(err, io.EOF) {
			eof++
			continue
		}
		if err != nil {
			return nil, err
		}
		pixels[i] = px
	}
	switch eof {
	case 0:
		return Join(pixels...)
	case len(m.readers):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: datasets hold different pixel counts", ErrMismatch)
	}
}

func (m *multiReader) Close() error {
	var errs []error
	for _, r := range m.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
