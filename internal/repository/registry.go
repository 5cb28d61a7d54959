package repository

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gobuffalo/flect"
	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
)

// tagName is the struct tag naming columns. The option "key" marks the
// primary key: `db:"uid,key"`.
const tagName = "db"

// Registry maps entity types to their models.
type Registry struct {
	mu     sync.RWMutex
	models map[reflect.Type]backend.Model
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[reflect.Type]backend.Model)}
}

// Register records the model of T. Zero fields of m are derived from T:
// the name from the type name, the table by pluralizing it in snake case
// (OrderItem becomes order_items), the key from a "key" tag option or
// "id", and the fields and kinds from the db tags.
func Register[T any](r *Registry, m backend.Model) backend.Model {
	t := reflect.TypeOf((*T)(nil)).Elem()
	m = describe(t, m)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[t] = m
	return m
}

// Model returns the registered model of T.
func Model[T any](r *Registry) (backend.Model, bool) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[t]
	return m, ok
}

// New resolves T in the registry and returns its repository.
func New[T any](c *Connection, r *Registry) (*Repository[T], error) {
	m, ok := Model[T](r)
	if !ok {
		var zero T
		return nil, errs.Validation("entity %T is not registered", zero)
	}
	return NewWithModel[T](c, m), nil
}

// NewWithModel returns a repository over an explicit model.
func NewWithModel[T any](c *Connection, m backend.Model) *Repository[T] {
	return &Repository[T]{
		conn:       c,
		model:      m,
		softDelete: c.softDelete,
		log:        c.log.With(zap.String("table", m.Table)),
	}
}

var timeType = reflect.TypeOf(time.Time{})

func describe(t reflect.Type, m backend.Model) backend.Model {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if m.Name == "" {
		m.Name = t.Name()
	}
	if m.Table == "" {
		m.Table = flect.Pluralize(flect.Underscore(m.Name))
	}
	if t.Kind() != reflect.Struct {
		return m
	}

	derive := len(m.Fields) == 0
	if m.Kinds == nil {
		m.Kinds = make(map[string]backend.Kind)
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, opts := columnOf(f)
		if name == "-" {
			continue
		}
		if derive {
			m.Fields = append(m.Fields, name)
		}
		if m.Key == "" && opts["key"] {
			m.Key = name
		}
		if _, set := m.Kinds[name]; !set {
			if k := kindOf(f.Type); k != "" {
				m.Kinds[name] = k
			}
		}
	}
	return m
}

func columnOf(f reflect.StructField) (string, map[string]bool) {
	tag := f.Tag.Get(tagName)
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = f.Name
	}
	opts := make(map[string]bool, len(parts)-1)
	for _, p := range parts[1:] {
		opts[p] = true
	}
	return name, opts
}

func kindOf(t reflect.Type) backend.Kind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return backend.KindTime
	case t.Kind() == reflect.Bool:
		return backend.KindBool
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return ""
	case t.Kind() == reflect.Map, t.Kind() == reflect.Slice, t.Kind() == reflect.Array, t.Kind() == reflect.Struct:
		return backend.KindJSON
	}
	return ""
}
