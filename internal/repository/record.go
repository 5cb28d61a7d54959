package repository

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
)

// toRecord normalizes an entity into a record: structs become maps keyed
// by column name, nested maps and slices are normalized recursively, nil
// pointers become nil and times are stored in UTC. Zero-valued fields
// tagged omitempty are left out.
func toRecord(v any) (backend.Record, error) {
	n := normalize(reflect.ValueOf(v))
	rec, ok := n.(map[string]any)
	if !ok {
		return nil, errs.Validation("entity must be a struct or map, got %T", v)
	}
	return rec, nil
}

func normalize(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC()
	}

	switch v.Kind() {
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for _, f := range reflect.VisibleFields(t) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			name, opts := columnOf(f)
			if name == "-" {
				continue
			}
			fv := v.FieldByIndex(f.Index)
			if opts["omitempty"] && fv.IsZero() {
				continue
			}
			out[name] = normalize(fv)
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value())
		}
		return out

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = normalize(v.Index(i))
		}
		return out
	}
	return v.Interface()
}

// fromRecord decodes a record into T by db tag. Number widths, 0/1
// booleans and RFC 3339 strings are converted as needed.
func fromRecord[T any](rec backend.Record) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tagName,
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(rec); err != nil {
		return out, errs.Backend(fmt.Errorf("decode %T: %w", out, err))
	}
	return out, nil
}

func fromRecords[T any](recs []backend.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := fromRecord[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// wrap tags err with the failing operation. Errors outside the taxonomy
// become BACKEND.
func wrap(op string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.WithOp(op)
	}
	return errs.Backend(err).WithOp(op)
}
