package design

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// DaysPerYear is the harmonic base period in the ordinal-day time unit.
const DaysPerYear = 365.25

// TermKind identifies a design term.
type TermKind int

const (
	Intercept TermKind = iota
	Linear
	Harmonic
)

// Term is one parsed formula term. Freq is set for harmonics only.
type Term struct {
	Kind TermKind
	Freq int
}

// Width is the number of columns the term contributes.
func (t Term) Width() int {
	if t.Kind == Harmonic {
		return 2
	}
	return 1
}

func (t Term) String() string {
	switch t.Kind {
	case Intercept:
		return "1"
	case Linear:
		return "x"
	default:
		return fmt.Sprintf("harm(x, %d)", t.Freq)
	}
}

// Formula is the parsed, immutable form of a design formula.
type Formula struct {
	Terms []Term
	text  string
}

// Text returns the formula text it was parsed from.
func (f *Formula) Text() string { return f.text }

// String returns the canonical spelling of the formula.
func (f *Formula) String() string {
	parts := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

// NumCols returns the number of design columns.
func (f *Formula) NumCols() int {
	n := 0
	for _, t := range f.Terms {
		n += t.Width()
	}
	return n
}

// Columns returns column labels in design order.
func (f *Formula) Columns() []string {
	cols := make([]string, 0, f.NumCols())
	for _, t := range f.Terms {
		switch t.Kind {
		case Intercept:
			cols = append(cols, "1")
		case Linear:
			cols = append(cols, "x")
		case Harmonic:
			k := strconv.Itoa(t.Freq)
			cols = append(cols, "cos("+k+")", "sin("+k+")")
		}
	}
	return cols
}

// HasHarmonic reports whether any term is seasonal.
func (f *Formula) HasHarmonic() bool {
	for _, t := range f.Terms {
		if t.Kind == Harmonic {
			return true
		}
	}
	return false
}

// InterceptIndex returns the column index of the intercept, or -1.
func (f *Formula) InterceptIndex() int {
	col := 0
	for _, t := range f.Terms {
		if t.Kind == Intercept {
			return col
		}
		col += t.Width()
	}
	return -1
}

// Row evaluates the design row at time t into dst and returns it. A dst
// shorter than NumCols is replaced by a new slice.
func (f *Formula) Row(t float64, dst []float64) []float64 {
	if len(dst) < f.NumCols() {
		dst = make([]float64, f.NumCols())
	}
	w := 2 * math.Pi / DaysPerYear
	col := 0
	for _, term := range f.Terms {
		switch term.Kind {
		case Intercept:
			dst[col] = 1
		case Linear:
			dst[col] = t
		case Harmonic:
			arg := float64(term.Freq) * w * t
			dst[col] = math.Cos(arg)
			dst[col+1] = math.Sin(arg)
		}
		col += term.Width()
	}
	return dst
}

// Parse parses formula text without consulting the cache.
func Parse(text string) (*Formula, error) {
	p := &parser{src: text}
	terms, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Formula{Terms: terms, text: text}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &InvalidFormulaError{Formula: p.src, Pos: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) eof() bool {
	p.skipSpace()
	return p.pos >= len(p.src)
}

func (p *parser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *parser) expect(tok string) error {
	if !p.accept(tok) {
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *parser) parse() ([]Term, error) {
	if p.eof() {
		return nil, p.errorf("empty formula")
	}
	var terms []Term
	seen := make(map[Term]bool)
	for {
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		if seen[t] {
			return nil, p.errorf("duplicate term %s", t)
		}
		seen[t] = true
		terms = append(terms, t)
		if p.eof() {
			return terms, nil
		}
		if err := p.expect("+"); err != nil {
			return nil, err
		}
	}
}

func (p *parser) term() (Term, error) {
	switch {
	case p.accept("harm"):
		if err := p.expect("("); err != nil {
			return Term{}, err
		}
		if err := p.expect("x"); err != nil {
			return Term{}, err
		}
		if err := p.expect(","); err != nil {
			return Term{}, err
		}
		k, err := p.integer()
		if err != nil {
			return Term{}, err
		}
		if k <= 0 {
			return Term{}, p.errorf("harmonic frequency must be positive, got %d", k)
		}
		if err := p.expect(")"); err != nil {
			return Term{}, err
		}
		return Term{Kind: Harmonic, Freq: k}, nil
	case p.accept("x"):
		return Term{Kind: Linear}, nil
	case p.accept("1"):
		return Term{Kind: Intercept}, nil
	default:
		p.skipSpace()
		return Term{}, p.errorf("unexpected input %q", p.rest())
	}
}

func (p *parser) integer() (int, error) {
	p.skipSpace()
	start := p.pos
	if p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	lit := p.src[start:p.pos]
	k, err := strconv.Atoi(lit)
	if err != nil {
		p.pos = start
		return 0, p.errorf("expected integer frequency")
	}
	return k, nil
}

func (p *parser) rest() string {
	r := p.src[p.pos:]
	if len(r) > 16 {
		r = r[:16] + "..."
	}
	return r
}
