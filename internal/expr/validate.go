package expr

import (
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
)

// Validate checks an expression tree structurally before compilation.
//
// It rejects unknown operators and functions, EXTRACT without a part,
// interval functions without a unit, non-numeric interval amounts and
// operands of unsupported Go types. It does not check field names.
func Validate(e Expression) error {
	if e == nil {
		return errs.Validation("expression is required")
	}
	return validateExpr(e)
}

func validateExpr(e Expression) error {
	switch x := e.(type) {
	case Math:
		if !x.Op.Valid() {
			return errs.UnsupportedOperator(x.Op)
		}
		if err := validateOperand(x.Left); err != nil {
			return err
		}
		return validateOperand(x.Right)

	case String:
		if !x.Func.Valid() {
			return errs.UnsupportedFunction(x.Func)
		}
		if len(x.Args) == 0 {
			return errs.Validation("%s requires at least one argument", x.Func)
		}
		if x.Func == operator.FnSubstring && len(x.Args) > 3 {
			return errs.Validation("SUBSTRING takes at most 3 arguments")
		}
		for _, a := range x.Args {
			if err := validateOperand(a); err != nil {
				return err
			}
		}
		return nil

	case Date:
		return validateDate(x)

	case Conditional:
		for _, c := range x.Cases {
			if !c.When.Op.Valid() {
				return errs.UnsupportedOperator(c.When.Op)
			}
			for _, o := range []Operand{c.When.Left, c.When.Right, c.Then} {
				if err := validateOperand(o); err != nil {
					return err
				}
			}
		}
		return validateOperand(x.Else)

	case *Math:
		return validateExpr(*x)
	case *String:
		return validateExpr(*x)
	case *Date:
		return validateExpr(*x)
	case *Conditional:
		return validateExpr(*x)
	}
	return errs.Validation("unknown expression type %T", e)
}

func validateDate(d Date) error {
	if !d.Func.Valid() {
		return errs.UnsupportedFunction(d.Func)
	}
	if d.Field.Field == "" {
		return errs.Validation("date %s requires a field", d.Func)
	}
	switch d.Func {
	case operator.DateExtract:
		if d.Part == "" {
			return errs.Validation("EXTRACT requires a date part")
		}
		if !d.Part.Valid() {
			return errs.Validation("unknown date part %q", d.Part)
		}
	case operator.DateAdd, operator.DateSubtract:
		if !d.Unit.Valid() {
			return errs.Validation("date %s requires a valid unit", d.Func)
		}
		if !IsNumber(d.Value) {
			return errs.Validation("date %s requires a numeric value", d.Func)
		}
	case operator.DateDiff:
		if !d.Unit.Valid() {
			return errs.Validation("date DIFF requires a valid unit")
		}
	case operator.DateFormat:
		if s, ok := d.Value.(string); !ok || s == "" {
			return errs.Validation("date FORMAT requires a pattern")
		}
	}
	return nil
}

func validateOperand(o Operand) error {
	switch v := o.(type) {
	case FieldRef:
		if v.Field == "" {
			return errs.Validation("field reference is empty")
		}
		return nil
	case Expression:
		return validateExpr(v)
	}
	if !IsLiteral(o) {
		return errs.Validation("unsupported operand type %T", o)
	}
	return nil
}
