package queryir

import "github.com/roach88/pulseledger/internal/ir"

// Query is a read over one table.
type Query interface {
	queryNode()
}

// Predicate is a row filter.
type Predicate interface {
	predicateNode()
}

// Select reads Columns from From, keeping rows that satisfy Filter.
//
//	Select{
//	  From:    "events",
//	  Columns: []string{"seq", "kind"},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "pulse_id", Value: ir.Int(1)},
//	    AtLeast{Field: "seq", Value: ir.Int(10)},
//	  }},
//	  Limit: 50,
//	}
//
// A nil Filter keeps every row. A zero Limit means no limit. Results are
// always ordered by the table's stable key.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate
	Limit   int
}

func (Select) queryNode() {}

// Equals keeps rows where Field = Value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// In keeps rows where Field equals any of Values. An empty Values list
// matches nothing.
type In struct {
	Field  string
	Values []ir.Value
}

func (In) predicateNode() {}

// AtLeast keeps rows where Field >= Value. Used for cursors (seq, id).
type AtLeast struct {
	Field string
	Value ir.Value
}

func (AtLeast) predicateNode() {}

// And keeps rows satisfying every predicate. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All combines predicates, dropping nils. It returns nil when nothing
// remains and the single predicate when only one does.
func All(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
