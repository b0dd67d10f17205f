package pipeline

import (
	"context"
	"slices"

	"github.com/dcshock/pixelpipe/record"
)

// Contract lists slot names by kind. Data slots hold one value per
// observation date; record slots hold segment sequences.
type Contract struct {
	Data   []string `yaml:"data"`
	Record []string `yaml:"record"`
}

// Empty reports whether the contract names no slots.
func (c Contract) Empty() bool { return len(c.Data) == 0 && len(c.Record) == 0 }

func (c Contract) clone() Contract {
	return Contract{Data: slices.Clone(c.Data), Record: slices.Clone(c.Record)}
}

// Spec is one configured task: its unique name, registered type, the slots
// it reads and writes, and its type-specific configuration.
type Spec struct {
	Name    string
	Type    string
	Require Contract
	Output  Contract
	Config  map[string]any
}

func (s Spec) clone() Spec {
	s.Require = s.Require.clone()
	s.Output = s.Output.clone()
	return s
}

// Pixel is the raw input of one location. Data holds the masked bands,
// NaN where invalid, aligned with Dates.
type Pixel struct {
	Row, Col int
	Dates    []float64
	Data     map[string][]float64
}

// Slots is the accumulated state of one pixel run.
type Slots struct {
	Dates  []float64
	Data   map[string][]float64
	Record map[string][]record.Segment
}

func newSlots(px *Pixel) *Slots {
	s := &Slots{
		Dates:  px.Dates,
		Data:   make(map[string][]float64, len(px.Data)),
		Record: make(map[string][]record.Segment),
	}
	for k, v := range px.Data {
		s.Data[k] = v
	}
	return s
}

// View is the read-only input of a task: copies of the slots it requires.
type View struct {
	Row, Col int
	Dates    []float64
	Data     map[string][]float64
	Record   map[string][]record.Segment
}

// Band returns a required data slot.
func (v *View) Band(name string) []float64 { return v.Data[name] }

func (s *Slots) view(px *Pixel, req Contract) *View {
	v := &View{
		Row:    px.Row,
		Col:    px.Col,
		Dates:  slices.Clone(s.Dates),
		Data:   make(map[string][]float64, len(req.Data)),
		Record: make(map[string][]record.Segment, len(req.Record)),
	}
	for _, name := range req.Data {
		v.Data[name] = slices.Clone(s.Data[name])
	}
	for _, name := range req.Record {
		v.Record[name] = record.CloneAll(s.Record[name])
	}
	return v
}

// Output is what a task returns. It must name exactly the task's output
// contract.
type Output struct {
	Data   map[string][]float64
	Record map[string][]record.Segment
}

// NewOutput returns an empty output.
func NewOutput() *Output {
	return &Output{Data: map[string][]float64{}, Record: map[string][]record.Segment{}}
}

// TaskFunc computes a task's outputs for one pixel.
type TaskFunc func(ctx context.Context, in *View) (*Output, error)

// Env is what factories may consult besides the task spec.
type Env struct {
	// Ranges holds the valid [min, max] of each band with configured bounds.
	Ranges map[string][2]float64
}

// Factory builds a TaskFunc from a spec. Configuration is decoded and
// validated here, once, so bad settings fail before any pixel runs.
type Factory func(spec Spec, env Env) (TaskFunc, error)

// Task is an instantiated, ordered pipeline step.
type Task struct {
	Spec
	Run TaskFunc
}
