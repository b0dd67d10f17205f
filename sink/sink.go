// Package sink stores per-pixel pipeline results.
package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/dcshock/pixelpipe/record"
)

// Result is the output of one pixel: every record slot the pipeline
// declares, keyed by slot name.
type Result struct {
	Row      int                         `json:"row"`
	Col      int                         `json:"col"`
	RunID    string                      `json:"run_id,omitempty"`
	Pipeline string                      `json:"pipeline,omitempty"`
	Records  map[string][]record.Segment `json:"records"`
}

// Sink receives results. Implementations must be safe for concurrent use.
type Sink interface {
	// Exists reports whether a result for (row, col) is already stored.
	Exists(ctx context.Context, row, col int) (bool, error)
	Write(ctx context.Context, r *Result) error
	Close() error
}

type key struct{ row, col int }

// Memory keeps results in memory, replacing any earlier result for the
// same pixel.
type Memory struct {
	mu      sync.RWMutex
	results map[key]*Result
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{results: make(map[key]*Result)}
}

func (m *Memory) Exists(_ context.Context, row, col int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.results[key{row, col}]
	return ok, nil
}

func (m *Memory) Write(ctx context.Context, r *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key{r.Row, r.Col}] = r
	return nil
}

func (m *Memory) Close() error { return nil }

// Get returns the result stored for (row, col).
func (m *Memory) Get(row, col int) (*Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[key{row, col}]
	return r, ok
}

// Results returns every stored result ordered by row then column.
func (m *Memory) Results() []*Result {
	m.mu.RLock()
	out := make([]*Result, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}
