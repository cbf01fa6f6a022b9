// Package queryir is the filter representation for ledger reads.
//
// Audit log queries and list projections are built as a Select over one
// table with a predicate tree, then handed to a backend compiler (see
// internal/querysql). Keeping the representation separate from SQL lets
// callers build filters from CLI flags or scenario files without touching
// query text.
//
// Query and Predicate are sealed interfaces: only this package implements
// them, so backends can switch exhaustively.
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case AtLeast:
//	case And:
//	}
//
// Literal values are ir.Value, so floats and null cannot appear in a filter.
// Field names are checked against a Schema by Validate before compilation;
// backends interpolate field names and parameterize values.
package queryir
