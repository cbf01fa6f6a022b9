package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/pulseledger/internal/queryir"
	"github.com/roach88/pulseledger/internal/querysql"
)

// querySchema lists the tables and columns reachable through queryir.
var querySchema = queryir.Schema{
	"programs": splitColumns(programColumns),
	"pulses":   splitColumns(pulseColumns),
	"events":   splitColumns(eventColumns),
}

var compiler = querysql.NewSQLCompiler(map[string]string{
	"programs": "id ASC",
	"pulses":   "id ASC",
	"events":   "seq ASC",
})

// selectRows validates, compiles and runs q.
func (r reader) selectRows(ctx context.Context, q queryir.Select) (*sql.Rows, error) {
	if err := queryir.Validate(q, querySchema); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	query, params, err := compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	return r.q.QueryContext(ctx, query, params...)
}

func splitColumns(list string) []string {
	parts := strings.Split(list, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.TrimSpace(p); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
