package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxLine bounds one stored result when scanning an existing file.
const maxLine = 16 << 20

// JSONLines writes one JSON object per result per line.
type JSONLines struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	seen   map[key]bool
}

// NewJSONLines writes to w. Close flushes but does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: bufio.NewWriter(w), seen: make(map[key]bool)}
}

// OpenJSONLines opens path for writing. With overwrite the file is
// truncated; otherwise results already in it are indexed for Exists and
// new results are appended. An unterminated last line, left by an
// interrupted run, is cut off so its pixel runs again.
func OpenJSONLines(path string, overwrite bool) (*JSONLines, error) {
	seen := make(map[key]bool)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if err := index(path, seen); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &JSONLines{w: bufio.NewWriter(f), closer: f, seen: seen}, nil
}

// index records the pixels stored in path and truncates a trailing
// partial line.
func index(path string, seen map[key]bool) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var complete int64 // end of the last newline-terminated line
	line := 0
	for {
		b, err := r.ReadBytes('\n')
		if len(b) > maxLine {
			return fmt.Errorf("%s line %d: longer than %d bytes", path, line+1, maxLine)
		}
		if errors.Is(err, io.EOF) {
			if len(b) == 0 {
				return nil
			}
			if err := os.Truncate(path, complete); err != nil {
				return fmt.Errorf("truncate partial line: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read output: %w", err)
		}
		line++
		complete += int64(len(b))
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var loc struct {
			Row int `json:"row"`
			Col int `json:"col"`
		}
		if err := json.Unmarshal(b, &loc); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		seen[key{loc.Row, loc.Col}] = true
	}
}

func (j *JSONLines) Exists(_ context.Context, row, col int) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seen[key{row, col}], nil
}

func (j *JSONLines) Write(ctx context.Context, r *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode pixel (%d, %d): %w", r.Row, r.Col, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(b, '\n')); err != nil {
		return err
	}
	j.seen[key{r.Row, r.Col}] = true
	return nil
}

func (j *JSONLines) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.w.Flush()
	if j.closer != nil {
		err = errors.Join(err, j.closer.Close())
		j.closer = nil
	}
	return err
}
