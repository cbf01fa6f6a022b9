package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/queryir"
)

// SQLCompiler compiles queryir to parameterized SQLite SQL.
//
// Every query gets an ORDER BY on the table's stable key so results are
// identical across runs. Values are always bound as parameters; identifiers
// come from a validated Select.
type SQLCompiler struct {
	// OrderKeys maps table name to its ORDER BY clause. Tables without an
	// entry order by "id ASC".
	OrderKeys map[string]string
}

// NewSQLCompiler creates a compiler with the given per-table order keys.
func NewSQLCompiler(orderKeys map[string]string) *SQLCompiler {
	if orderKeys == nil {
		orderKeys = map[string]string{}
	}
	return &SQLCompiler{OrderKeys: orderKeys}
}

// Compile converts a query to (sql, params).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}

	var sb strings.Builder
	var params []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, q.From)

	if q.Filter != nil {
		where, whereParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = whereParams
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(c.stableOrderKey(q.From))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
	}

	return sb.String(), params, nil
}

func (c *SQLCompiler) stableOrderKey(table string) string {
	if key, ok := c.OrderKeys[table]; ok {
		return key
	}
	return "id ASC"
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil

	case queryir.AtLeast:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", pred.Field, err)
		}
		return pred.Field + " >= ?", []any{param}, nil

	case queryir.In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		marks := make([]string, len(pred.Values))
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			param, err := valueToParam(v)
			if err != nil {
				return "", nil, fmt.Errorf("field %s[%d]: %w", pred.Field, i, err)
			}
			marks[i] = "?"
			params[i] = param
		}
		return fmt.Sprintf("%s IN (%s)", pred.Field, strings.Join(marks, ", ")), params, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, inner := range pred.Predicates {
			sql, innerParams, err := c.compilePredicate(inner)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, innerParams...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// valueToParam converts an ir.Value to a database/sql parameter.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
