package mongostore

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/querymongo"
)

// toDocument converts a record to a document. The model key is stored as
// _id; fields are written in name order.
func toDocument(m backend.Model, rec backend.Record) bson.D {
	names := make([]string, 0, len(rec))
	for k := range rec {
		names = append(names, k)
	}
	sort.Strings(names)

	key := m.KeyColumn()
	doc := make(bson.D, 0, len(rec))
	for _, k := range names {
		name := k
		if k == key {
			name = querymongo.KeyField
		}
		doc = append(doc, bson.E{Key: name, Value: rec[k]})
	}
	return doc
}

// fromDocument converts a decoded document to a record, renaming _id to
// the model key.
func fromDocument(m backend.Model, doc bson.M) backend.Record {
	key := m.KeyColumn()
	rec := make(backend.Record, len(doc))
	for k, v := range doc {
		if k == querymongo.KeyField {
			k = key
		}
		rec[k] = normalize(v)
	}
	return rec
}

// normalize converts driver types to the portable record forms: nested
// documents become maps, arrays []any, dates UTC time.Time and int32
// int64.
func normalize(v any) any {
	switch x := v.(type) {
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.M:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case bson.A:
		return normalizeSlice(x)
	case []any:
		return normalizeSlice(x)
	case bson.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case int32:
		return int64(x)
	case int:
		return int64(x)
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalize(v)
	}
	return out
}
