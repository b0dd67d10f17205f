package record

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestSegment_JSONFieldOrder(t *testing.T) {
	s := Segment{Start: 1, End: 2, Coef: [][]float64{{1, 2}}, RMSE: []float64{0.5}, NObs: 3, Row: 4, Col: 5}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	want := []string{`"start"`, `"end"`, `"break":null`, `"coef"`, `"rmse"`, `"nobs"`, `"row"`, `"col"`}
	last := -1
	for _, key := range want {
		idx := strings.Index(got, key)
		if idx < 0 {
			t.Fatalf("missing %s in %s", key, got)
		}
		if idx < last {
			t.Errorf("%s out of order in %s", key, got)
		}
		last = idx
	}
}

func TestSegment_CloseAndClone(t *testing.T) {
	s := Segment{Start: 10, End: 20, Coef: [][]float64{{1}}, RMSE: []float64{1}}
	if !s.Open() || !math.IsNaN(s.BreakAt()) {
		t.Fatal("new segment should be open")
	}
	s.Close(21)
	c := s.Clone()
	*s.Break = 99
	s.Coef[0][0] = 42
	if c.BreakAt() != 21 {
		t.Errorf("clone break: got %v", c.BreakAt())
	}
	if c.Coef[0][0] != 1 {
		t.Errorf("clone coef shares storage")
	}
}

func TestValid(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if Valid(v) {
			t.Errorf("Valid(%v) = true", v)
		}
	}
	if !Valid(0) || !Valid(-3.5) {
		t.Error("finite values should be valid")
	}
}

func TestCloneAll_NilIsEmpty(t *testing.T) {
	out := CloneAll(nil)
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", out)
	}
}
