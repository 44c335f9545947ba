package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ExportFlat reads the full incidents_flat view and renders every value
// as a string, ready for CSV serialization. NULLs become empty fields.
func (s *SQLStore) ExportFlat(ctx context.Context) ([]string, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM incidents_flat`)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying incidents_flat: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading export columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("error scanning export row: %w", err)
		}

		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = renderValue(v)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating export rows: %w", err)
	}

	return columns, out, nil
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
