package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
	"github.com/roach88/pulseledger/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so only this shape is allowed.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // included for trace assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s by %s %v\n", event.Seq, event.Kind, event.Actor, event.Fields)
		}
	}
	return buf.String()
}

// assertTraceContains checks for an event of the given kind whose fields
// include every expected field.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := convertArgs(assertion.Fields)
	if err != nil {
		return fmt.Errorf("trace_contains fields: %w", err)
	}
	for _, event := range trace {
		if string(event.Kind) == assertion.Kind && matchFields(event.Fields, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s with fields %v", assertion.Kind, want),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrence of each kind appears in
// the listed order. Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		kind := string(event.Kind)
		if _, seen := positions[kind]; !seen {
			positions[kind] = i + 1
		}
	}

	for _, kind := range assertion.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all kinds present: %v", assertion.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Kinds); i++ {
		prev, curr := assertion.Kinds[i-1], assertion.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("kinds in order: %v", assertion.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events of Kind were logged.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if string(event.Kind) == assertion.Kind {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries one row of a ledger table with a parameterized
// WHERE clause and checks the expected columns (subset match).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	where, err := convertArgs(assertion.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}
	expect, err := convertArgs(assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}

	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	for _, key := range expect.SortedKeys() {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("columns are %v", columns),
			}
		}
		if !stateValuesEqual(expect[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Table, key, expect[key]),
				Actual:   fmt.Sprintf("%s.%s = %v (type %T)", assertion.Table, key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause builds a parameterized conjunction in sorted key order.
func buildWhereClause(where ir.Object) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := where.SortedKeys()
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		param, err := toSQLValue(where[key])
		if err != nil {
			return "", nil, fmt.Errorf("where %s: %w", key, err)
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, param)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func toSQLValue(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func formatWhereClause(where ir.Object) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range where.SortedKeys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected value with a scanned SQLite value.
// Booleans are stored as 0/1 integers.
func stateValuesEqual(expected ir.Value, actual any) bool {
	switch exp := expected.(type) {
	case ir.String:
		switch a := actual.(type) {
		case string:
			return string(exp) == a
		case []byte:
			return string(exp) == string(a)
		}
	case ir.Int:
		if a, ok := actual.(int64); ok {
			return int64(exp) == a
		}
	case ir.Bool:
		switch a := actual.(type) {
		case int64:
			return bool(exp) == (a != 0)
		case bool:
			return bool(exp) == a
		}
	}
	return false
}

// matchFields reports whether actual contains every key of expected with an
// equal value. Extra keys in actual are ignored.
func matchFields(actual, expected ir.Object) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// AssertionContext provides what state and chain assertions need.
type AssertionContext struct {
	Store  *store.Store
	Ledger *ledger.Ledger
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		case AssertChainIntact:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: chain_intact requires a ledger", i)
			} else if _, verr := actx.Ledger.VerifyChain(actx.Ctx); verr != nil {
				err = &AssertionError{Type: AssertChainIntact, Expected: "hash chain verifies", Actual: verr.Error()}
			}
		case AssertReplayConsistent:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: replay_consistent requires a ledger", i)
			} else {
				err = assertReplayConsistent(actx.Ctx, actx.Ledger)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertReplayConsistent(ctx context.Context, l *ledger.Ledger) error {
	report, err := l.Replay(ctx)
	if err != nil {
		return err
	}
	if !report.Consistent() {
		return &AssertionError{
			Type:     AssertReplayConsistent,
			Expected: "replayed state equals stored state",
			Actual:   strings.Join(report.Mismatches, "; "),
		}
	}
	return nil
}
