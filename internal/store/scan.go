package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/roach88/storekit/internal/backend"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// scanRecords reads every row into a Record. Column values are decoded by
// the model's declared kinds; columns listed in jsonCols always hold JSON
// text. Dotted column names are nested.
func scanRecords(rows *sql.Rows, m backend.Model, jsonCols []string) ([]backend.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	isJSON := make(map[string]bool, len(jsonCols))
	for _, c := range jsonCols {
		isJSON[c] = true
	}

	out := []backend.Record{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(backend.Record, len(cols))
		for i, c := range cols {
			kind := m.KindOf(c)
			if isJSON[c] {
				kind = backend.KindJSON
			}
			rec[c] = decodeValue(kind, vals[i])
		}
		out = append(out, backend.Nest(rec))
	}
	return out, rows.Err()
}

func decodeValue(kind backend.Kind, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch kind {
	case backend.KindJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	case backend.KindBool:
		switch b := v.(type) {
		case int64:
			return b != 0
		case string:
			return b == "1" || b == "true" || b == "t"
		}
	case backend.KindTime:
		if s, ok := v.(string); ok {
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return v
}
