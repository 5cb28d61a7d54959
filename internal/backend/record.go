package backend

import (
	"sort"
	"strings"

	"github.com/roach88/storekit/internal/operator"
)

// Get reads a dotted path from a record.
func Get(r Record, path []string) (any, bool) {
	var cur any = r
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Put writes v at a dotted path, creating intermediate maps.
func Put(r Record, path []string, v any) {
	cur := r
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = v
}

// Nest turns flat dotted keys into nested maps:
// {"profile.city": "Oslo"} becomes {"profile": {"city": "Oslo"}}.
func Nest(flat Record) Record {
	out := make(Record, len(flat))
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		Put(out, strings.Split(k, "."), flat[k])
	}
	return out
}

// EmptyReduction returns the result of reducers over zero rows: SUM and
// COUNT are 0, everything else nil.
func EmptyReduction(reducers []Reducer) Record {
	out := make(Record, len(reducers))
	for _, r := range reducers {
		switch r.Func {
		case operator.Sum, operator.Count:
			out[r.Alias] = int64(0)
		default:
			out[r.Alias] = nil
		}
	}
	return out
}
