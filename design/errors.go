package design

import (
	"errors"
	"fmt"
)

// ErrNoObservations is returned by Build for an empty date vector.
var ErrNoObservations = errors.New("design: no observations")

// InvalidFormulaError reports an unparseable formula or an invalid term.
type InvalidFormulaError struct {
	Formula string
	Pos     int
	Reason  string
}

func (e *InvalidFormulaError) Error() string {
	return fmt.Sprintf("invalid formula %q at offset %d: %s", e.Formula, e.Pos, e.Reason)
}
