package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dcshock/pixelpipe/record"
)

// Observer provides pre/post hooks around each pixel and each task, for
// logging and metrics. BeforePixel is called before any task runs;
// AfterPixel when the pixel finishes (success or error). BeforeTask and
// AfterTask are called around every task with its index in run order.
// An error from a hook fails the pixel unless the pixel already failed.
type Observer interface {
	BeforePixel(ctx context.Context, runID string, px *Pixel) error
	AfterPixel(ctx context.Context, runID string, px *Pixel, result *Slots, err error) error
	BeforeTask(ctx context.Context, runID string, px *Pixel, index int, task string) error
	AfterTask(ctx context.Context, runID string, px *Pixel, index int, task string, taskErr error, duration time.Duration) error
}

// RunOptions is optional and used to attach an Observer and RunID. If
// Observer is set and RunID is empty, a new UUID is generated.
type RunOptions struct {
	Observer Observer
	RunID    string
}

type runMetaKey struct{}

// RunMeta identifies the running task to code holding only a context.
type RunMeta struct {
	RunID    string
	Pipeline string
	Task     string
	Row, Col int
}

// MetaFromContext returns the run metadata injected for the current task.
func MetaFromContext(ctx context.Context) (RunMeta, bool) {
	m, ok := ctx.Value(runMetaKey{}).(RunMeta)
	return m, ok
}

// Pipeline runs resolved tasks in order over one pixel at a time. Build it
// with New (or config.BuildPipeline) so task order is valid.
type Pipeline struct {
	Name string
	// Initial names the data slots datasets supply.
	Initial []string
	Tasks   []Task
}

// New resolves tasks into run order and returns the pipeline.
func New(name string, initial []string, tasks []Task) (*Pipeline, error) {
	specs := make([]Spec, len(tasks))
	byName := make(map[string]TaskFunc, len(tasks))
	for i, t := range tasks {
		if t.Run == nil {
			return nil, fmt.Errorf("task %q: nil TaskFunc", t.Name)
		}
		specs[i] = t.Spec
		byName[t.Name] = t.Run
	}
	order, err := Resolve(specs, initial)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Name: name, Initial: slices.Clone(initial), Tasks: make([]Task, len(order))}
	for i, s := range order {
		p.Tasks[i] = Task{Spec: s, Run: byName[s.Name]}
	}
	return p, nil
}

// RecordSlots returns every record slot some task declares, sorted.
func (p *Pipeline) RecordSlots() []string {
	var out []string
	for _, t := range p.Tasks {
		out = append(out, t.Output.Record...)
	}
	sort.Strings(out)
	return out
}

// RunPixel runs every task over px and returns the final slots. Records
// are stamped with the pixel location.
//
// A pixel with no dates, or whose initial data slots are all NaN, runs no
// task; every declared record slot is set to an empty sequence.
//
// If opts is non-nil and opts.Observer is set, pre/post hooks are called
// for the pixel and each task.
func (p *Pipeline) RunPixel(ctx context.Context, px *Pixel, opts *RunOptions) (*Slots, error) {
	if opts == nil || opts.Observer == nil {
		return p.runTasks(ctx, px, nil, "")
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	if err := opts.Observer.BeforePixel(ctx, runID, px); err != nil {
		return nil, fmt.Errorf("before pixel: %w", err)
	}
	result, err := p.runTasks(ctx, px, opts.Observer, runID)
	if postErr := opts.Observer.AfterPixel(ctx, runID, px, result, err); postErr != nil {
		// don't mask the pixel error
		if err == nil {
			err = fmt.Errorf("after pixel: %w", postErr)
		}
	}
	return result, err
}

func (p *Pipeline) runTasks(ctx context.Context, px *Pixel, obs Observer, runID string) (*Slots, error) {
	for _, name := range p.Initial {
		vals, ok := px.Data[name]
		if !ok {
			return nil, fmt.Errorf("pixel (%d, %d): missing band %q", px.Row, px.Col, name)
		}
		if len(vals) != len(px.Dates) {
			return nil, fmt.Errorf("pixel (%d, %d): band %q has %d values for %d dates", px.Row, px.Col, name, len(vals), len(px.Dates))
		}
	}
	slots := newSlots(px)
	if p.allInvalid(px) {
		for _, name := range p.RecordSlots() {
			slots.Record[name] = []record.Segment{}
		}
		return slots, nil
	}

	for i, task := range p.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if obs != nil {
			if err := obs.BeforeTask(ctx, runID, px, i, task.Name); err != nil {
				return nil, fmt.Errorf("before task %q: %w", task.Name, err)
			}
		}
		start := time.Now()
		taskCtx := context.WithValue(ctx, runMetaKey{}, RunMeta{
			RunID: runID, Pipeline: p.Name, Task: task.Name, Row: px.Row, Col: px.Col,
		})
		out, taskErr := task.Run(taskCtx, slots.view(px, task.Require))
		if taskErr != nil && IsInsufficient(taskErr) {
			out, taskErr = emptyOutput(task, len(px.Dates)), nil
		}
		if taskErr == nil {
			taskErr = checkContract(task, out, len(px.Dates))
		}
		duration := time.Since(start)
		if obs != nil {
			if postErr := obs.AfterTask(ctx, runID, px, i, task.Name, taskErr, duration); postErr != nil {
				if taskErr == nil {
					taskErr = fmt.Errorf("after task: %w", postErr)
				}
			}
		}
		if taskErr != nil {
			return nil, &TaskError{Task: task.Name, Err: taskErr}
		}
		for k, v := range out.Data {
			slots.Data[k] = v
		}
		for k, v := range out.Record {
			record.Stamp(v, px.Row, px.Col)
			slots.Record[k] = v
		}
	}
	return slots, nil
}

func (p *Pipeline) allInvalid(px *Pixel) bool {
	if len(px.Dates) == 0 {
		return true
	}
	for _, name := range p.Initial {
		for _, v := range px.Data[name] {
			if record.Valid(v) {
				return false
			}
		}
	}
	return len(p.Initial) > 0
}

func emptyOutput(task Task, n int) *Output {
	out := NewOutput()
	for _, name := range task.Output.Data {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = math.NaN()
		}
		out.Data[name] = vals
	}
	for _, name := range task.Output.Record {
		out.Record[name] = []record.Segment{}
	}
	return out
}

func checkContract(task Task, out *Output, n int) error {
	if out == nil {
		out = &Output{}
	}
	v := &OutputContractViolationError{Task: task.Name}
	for k := range out.Data {
		if !slices.Contains(task.Output.Data, k) {
			v.Unexpected = append(v.Unexpected, "data:"+k)
		}
	}
	for k := range out.Record {
		if !slices.Contains(task.Output.Record, k) {
			v.Unexpected = append(v.Unexpected, "record:"+k)
		}
	}
	for _, k := range task.Output.Data {
		vals, ok := out.Data[k]
		if !ok {
			v.Missing = append(v.Missing, "data:"+k)
			continue
		}
		if len(vals) != n {
			v.Reason = fmt.Sprintf("data slot %q has %d values for %d dates", k, len(vals), n)
		}
	}
	for _, k := range task.Output.Record {
		if recs, ok := out.Record[k]; !ok || recs == nil {
			v.Missing = append(v.Missing, "record:"+k)
		}
	}
	if len(v.Unexpected) == 0 && len(v.Missing) == 0 && v.Reason == "" {
		return nil
	}
	sort.Strings(v.Unexpected)
	return v
}

// Select returns the named record slots of a finished run, or every record
// slot when names is empty.
func Select(slots *Slots, names []string) (map[string][]record.Segment, error) {
	if len(names) == 0 {
		out := make(map[string][]record.Segment, len(slots.Record))
		for k, v := range slots.Record {
			out[k] = v
		}
		return out, nil
	}
	out := make(map[string][]record.Segment, len(names))
	for _, name := range names {
		v, ok := slots.Record[name]
		if !ok {
			return nil, fmt.Errorf("no record slot %q", name)
		}
		out[name] = v
	}
	return out, nil
}

// MultiObserver fans hooks out to several observers in order. Every
// observer sees every hook; errors are joined.
type MultiObserver []Observer

func (m MultiObserver) BeforePixel(ctx context.Context, runID string, px *Pixel) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.BeforePixel(ctx, runID, px))
	}
	return errors.Join(errs...)
}

func (m MultiObserver) AfterPixel(ctx context.Context, runID string, px *Pixel, result *Slots, err error) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.AfterPixel(ctx, runID, px, result, err))
	}
	return errors.Join(errs...)
}

func (m MultiObserver) BeforeTask(ctx context.Context, runID string, px *Pixel, index int, task string) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.BeforeTask(ctx, runID, px, index, task))
	}
	return errors.Join(errs...)
}

func (m MultiObserver) AfterTask(ctx context.Context, runID string, px *Pixel, index int, task string, taskErr error, d time.Duration) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.AfterTask(ctx, runID, px, index, task, taskErr, d))
	}
	return errors.Join(errs...)
}
