// Package optdoc reads option documents: YAML (or JSON) files that
// describe one repository call, such as a filtered find, an update or an
// aggregation pipeline.
//
// A document is first checked against an embedded CUE schema, then
// decoded into queryir, expr and pipeline values:
//
//	entity: users
//	operation: aggregate
//	pipeline:
//	  - where: {field: age, op: GTE, value: 18}
//	  - group:
//	      by: [status]
//	      functions: [{func: COUNT, alias: n}]
//	  - order: [{field: n, direction: desc}]
//
// Filters are written as {field, eq} for equality, {field, op, value} for
// operators, {and: [...]}, {or: [...]} and {nested, where} for relation
// or sub-document scopes. Expression operands are literals, {field: name}
// references or nested {math|string|date|case} expressions.
package optdoc

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

//go:embed schema.cue
var schemaSource string

// Operation names the repository call a document describes.
type Operation string

const (
	OpFindMany       Operation = "findMany"
	OpFindOne        Operation = "findOne"
	OpCount          Operation = "count"
	OpExists         Operation = "exists"
	OpDistinct       Operation = "distinct"
	OpSum            Operation = "sum"
	OpAverage        Operation = "average"
	OpMinimum        Operation = "minimum"
	OpMaximum        Operation = "maximum"
	OpAggregate      Operation = "aggregate"
	OpUpdateMany     Operation = "updateMany"
	OpDeleteMany     Operation = "deleteMany"
	OpSoftDeleteMany Operation = "softDeleteMany"
	OpRestoreMany    Operation = "restoreMany"
)

// Document is a decoded option document.
type Document struct {
	Entity      string
	Key         string
	Fields      []string
	Operation   Operation
	Where       queryir.Filter
	Select      []string
	Order       []queryir.Sort
	Skip        int
	Limit       int
	Field       string
	Update      queryir.Update
	Pipeline    []pipeline.Stage
	WithDeleted bool
}

// Model returns the model the document targets. The table is the entity
// name as written.
func (d *Document) Model() backend.Model {
	return backend.Model{Name: d.Entity, Table: d.Entity, Key: d.Key, Fields: d.Fields}
}

// ReadFile parses the document at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Parse(data)
}

// Parse checks data against the document schema and decodes it. Errors
// are VALIDATION errors.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Validation("invalid document: %v", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errs.Validation("invalid document: top level must be a mapping")
	}

	op, err := check(m)
	if err != nil {
		return nil, err
	}

	d := &Document{Operation: Operation(op)}
	if err := d.decode(m); err != nil {
		return nil, err
	}
	return d, nil
}

// check unifies the document with the schema and returns the resolved
// operation, which defaults to findMany.
func check(m map[string]any) (string, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return "", fmt.Errorf("document schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Document")).Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return "", formatCUEError(err)
	}
	op, _ := v.LookupPath(cue.ParsePath("operation")).Default()
	return op.String()
}

// formatCUEError keeps the first CUE error, which names the offending
// path.
func formatCUEError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return errs.Validation("invalid document: %v", err)
	}
	return errs.Validation("invalid document: %v", list[0])
}

func (d *Document) decode(m map[string]any) error {
	d.Entity, _ = m["entity"].(string)
	d.Key, _ = m["key"].(string)
	d.Field, _ = m["field"].(string)
	d.WithDeleted, _ = m["with_deleted"].(bool)
	d.Fields = stringList(m["fields"])
	d.Select = stringList(m["select"])
	d.Skip, _ = toInt(m["skip"])
	d.Limit, _ = toInt(m["limit"])

	var err error
	if w, ok := m["where"]; ok {
		if d.Where, err = decodeFilter(w, "where"); err != nil {
			return err
		}
	}
	if o, ok := m["order"]; ok {
		if d.Order, err = decodeSorts(o, "order"); err != nil {
			return err
		}
	}
	if u, ok := m["update"]; ok {
		if d.Update, err = decodeUpdate(u); err != nil {
			return err
		}
	}
	if p, ok := m["pipeline"]; ok {
		if d.Pipeline, err = decodePipeline(p); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the decoded values the way the repository would before
// touching a backend.
func (d *Document) Validate() error {
	if d.Where != nil {
		if err := queryir.Validate(d.Where); err != nil {
			return err
		}
	}

	switch d.Operation {
	case OpAggregate:
		_, err := d.Plan()
		return err
	case OpUpdateMany:
		if d.Update.IsEmpty() {
			return errs.Validation(errs.MsgUpdateRequired)
		}
		return queryir.ValidateUpdate(d.Update)
	case OpDistinct, OpSum, OpAverage, OpMinimum, OpMaximum:
		if d.Field == "" {
			return errs.Validation("%s requires field", d.Operation)
		}
	}
	return nil
}

// Plan builds the document's pipeline against its declared fields.
func (d *Document) Plan() (pipeline.Plan, error) {
	if len(d.Pipeline) == 0 {
		return pipeline.Plan{}, errs.Validation("%s requires pipeline", OpAggregate)
	}
	return pipeline.Build(d.Pipeline, d.Fields)
}
