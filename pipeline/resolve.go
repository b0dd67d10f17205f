package pipeline

import (
	"container/heap"
	"fmt"
	"slices"
)

// Resolve orders specs so every task runs after the producers of the slots
// it requires. initial names the data slots supplied by datasets.
//
// Among tasks whose requirements are met, configuration order wins, so a
// pipeline without dependencies keeps its configured order. The input is
// not modified.
func Resolve(specs []Spec, initial []string) ([]Spec, error) {
	type slotKey struct{ kind, name string }
	producer := make(map[slotKey]int) // -1 for datasets

	for _, name := range initial {
		k := slotKey{KindData, name}
		if _, dup := producer[k]; dup {
			return nil, &DuplicateOutputError{Kind: KindData, Slot: name, First: DatasetProducer, Second: DatasetProducer}
		}
		producer[k] = -1
	}
	producerName := func(i int) string {
		if i < 0 {
			return DatasetProducer
		}
		return fmt.Sprintf("task %q", specs[i].Name)
	}

	names := make(map[string]int, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: task %d has no name", ErrInvalidPipeline, i)
		}
		if _, dup := names[s.Name]; dup {
			return nil, &DuplicateOutputError{Kind: KindTask, Slot: s.Name, First: s.Name, Second: s.Name}
		}
		names[s.Name] = i
		for _, out := range outputs(s) {
			k := slotKey{out[0], out[1]}
			if prev, dup := producer[k]; dup {
				return nil, &DuplicateOutputError{Kind: k.kind, Slot: k.name, First: producerName(prev), Second: producerName(i)}
			}
			producer[k] = i
		}
	}

	outgoing := make([][]int, len(specs))
	indeg := make([]int, len(specs))
	for j, s := range specs {
		var deps []int
		for _, req := range requirements(s) {
			p, ok := producer[slotKey{req[0], req[1]}]
			if !ok {
				return nil, &UnsatisfiedRequirementError{Task: s.Name, Slot: req[1], Kind: req[0]}
			}
			if p == j {
				return nil, &CyclicPipelineError{Path: []string{s.Name, s.Name}}
			}
			if p >= 0 && !slices.Contains(deps, p) {
				deps = append(deps, p)
			}
		}
		for _, p := range deps {
			outgoing[p] = append(outgoing[p], j)
			indeg[j]++
		}
	}
	for i := range outgoing {
		slices.Sort(outgoing[i])
	}

	order := topoOrder(outgoing, indeg)
	if len(order) < len(specs) {
		return nil, &CyclicPipelineError{Path: findCycle(specs, outgoing)}
	}
	out := make([]Spec, len(order))
	for i, idx := range order {
		out[i] = specs[idx].clone()
	}
	return out, nil
}

func outputs(s Spec) [][2]string {
	out := make([][2]string, 0, len(s.Output.Data)+len(s.Output.Record))
	for _, n := range s.Output.Data {
		out = append(out, [2]string{KindData, n})
	}
	for _, n := range s.Output.Record {
		out = append(out, [2]string{KindRecord, n})
	}
	return out
}

func requirements(s Spec) [][2]string {
	out := make([][2]string, 0, len(s.Require.Data)+len(s.Require.Record))
	for _, n := range s.Require.Data {
		out = append(out, [2]string{KindData, n})
	}
	for _, n := range s.Require.Record {
		out = append(out, [2]string{KindRecord, n})
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with the ready set keyed on configuration
// index.
func topoOrder(outgoing [][]int, indeg []int) []int {
	indeg = slices.Clone(indeg)
	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	order := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return order
}

// findCycle returns one cycle as task names, found by a DFS in
// configuration order.
func findCycle(specs []Spec, outgoing [][]int) []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(specs))
	parent := make([]int, len(specs))
	for i := range parent {
		parent[i] = -1
	}
	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}
	for i := range specs {
		if color[i] == white && dfs(i) {
			break
		}
	}
	path := make([]string, len(cycle))
	for i, idx := range cycle {
		path[len(cycle)-1-i] = specs[idx].Name
	}
	return path
}
