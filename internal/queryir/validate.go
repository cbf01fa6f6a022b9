package queryir

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/pulseledger/internal/ir"
)

// Schema lists the tables a query may read and the columns each exposes.
type Schema map[string][]string

// Validate checks that q reads a known table and references only known
// columns. Backends interpolate identifiers, so every query must pass
// Validate before compilation.
//
// Validate returns every problem found, joined.
func Validate(q Query, schema Schema) error {
	v := &validator{schema: schema}
	v.validateQuery(q)
	return errors.Join(v.errs...)
}

type validator struct {
	schema  Schema
	columns []string
	errs    []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	sel, ok := q.(Select)
	if !ok {
		v.addError("unsupported query type %T", q)
		return
	}

	cols, ok := v.schema[sel.From]
	if !ok {
		v.addError("unknown table %q", sel.From)
		return
	}
	v.columns = cols

	for _, c := range sel.Columns {
		v.checkField(c)
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.checkField(pred.Field)
		v.checkValue(pred.Field, pred.Value)
	case In:
		v.checkField(pred.Field)
		for _, val := range pred.Values {
			v.checkValue(pred.Field, val)
		}
	case AtLeast:
		v.checkField(pred.Field)
		if _, ok := pred.Value.(ir.Int); !ok {
			v.addError("field %q: AtLeast needs an integer, got %T", pred.Field, pred.Value)
		}
	case And:
		for _, inner := range pred.Predicates {
			if inner == nil {
				v.addError("nil predicate in And")
				continue
			}
			v.validatePredicate(inner)
		}
	default:
		v.addError("unsupported predicate type %T", p)
	}
}

func (v *validator) checkField(field string) {
	if !slices.Contains(v.columns, field) {
		v.addError("unknown column %q", field)
	}
}

func (v *validator) checkValue(field string, val ir.Value) {
	switch val.(type) {
	case ir.String, ir.Int, ir.Bool:
	default:
		v.addError("field %q: value of type %T cannot be compared", field, val)
	}
}
