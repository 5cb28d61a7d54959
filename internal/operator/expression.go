package operator

// MathOperator is an arithmetic operator inside a math expression.
type MathOperator string

const (
	Add      MathOperator = "+"
	Subtract MathOperator = "-"
	Multiply MathOperator = "*"
	Divide   MathOperator = "/"
	Modulo   MathOperator = "%"
)

var mathOperators = []MathOperator{Add, Subtract, Multiply, Divide, Modulo}

func (op MathOperator) Valid() bool { return contains(mathOperators, op) }

// ParseMathOperator decodes a math operator symbol.
func ParseMathOperator(s string) (MathOperator, error) {
	return parse(mathOperators, s, "math operator")
}

// StringFunction is a function inside a string expression.
type StringFunction string

const (
	FnConcat    StringFunction = "CONCAT"
	FnUpper     StringFunction = "UPPER"
	FnLower     StringFunction = "LOWER"
	FnLength    StringFunction = "LENGTH"
	FnSubstring StringFunction = "SUBSTRING"
)

var stringFunctions = []StringFunction{FnConcat, FnUpper, FnLower, FnLength, FnSubstring}

func (fn StringFunction) Valid() bool { return contains(stringFunctions, fn) }

// ParseStringFunction decodes a string function name.
func ParseStringFunction(s string) (StringFunction, error) {
	return parse(stringFunctions, s, "string function")
}

// DateFunction is a function inside a date expression.
type DateFunction string

const (
	DateExtract  DateFunction = "EXTRACT"
	DateAdd      DateFunction = "ADD"
	DateSubtract DateFunction = "SUBTRACT"
	DateDiff     DateFunction = "DIFF"
	DateFormat   DateFunction = "FORMAT"
)

var dateFunctions = []DateFunction{DateExtract, DateAdd, DateSubtract, DateDiff, DateFormat}

func (fn DateFunction) Valid() bool { return contains(dateFunctions, fn) }

// ParseDateFunction decodes a date function name.
func ParseDateFunction(s string) (DateFunction, error) {
	return parse(dateFunctions, s, "date function")
}

// DatePart selects the component EXTRACT returns.
type DatePart string

const (
	PartYear      DatePart = "YEAR"
	PartMonth     DatePart = "MONTH"
	PartDay       DatePart = "DAY"
	PartHour      DatePart = "HOUR"
	PartMinute    DatePart = "MINUTE"
	PartSecond    DatePart = "SECOND"
	PartDayOfWeek DatePart = "DAY_OF_WEEK" // 0 = Sunday
)

var dateParts = []DatePart{PartYear, PartMonth, PartDay, PartHour, PartMinute, PartSecond, PartDayOfWeek}

func (p DatePart) Valid() bool { return contains(dateParts, p) }

// ParseDatePart decodes a date part name.
func ParseDatePart(s string) (DatePart, error) {
	return parse(dateParts, s, "date part")
}

// DateUnit is the interval unit of ADD, SUBTRACT and DIFF.
type DateUnit string

const (
	UnitSecond DateUnit = "SECOND"
	UnitMinute DateUnit = "MINUTE"
	UnitHour   DateUnit = "HOUR"
	UnitDay    DateUnit = "DAY"
	UnitWeek   DateUnit = "WEEK"
	UnitMonth  DateUnit = "MONTH"
	UnitYear   DateUnit = "YEAR"
)

var dateUnits = []DateUnit{UnitSecond, UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth, UnitYear}

func (u DateUnit) Valid() bool { return contains(dateUnits, u) }

// ParseDateUnit decodes a date unit name.
func ParseDateUnit(s string) (DateUnit, error) {
	return parse(dateUnits, s, "date unit")
}

// CompareOperator is the comparison allowed inside a conditional predicate.
// Pattern and set operators are intentionally absent.
type CompareOperator string

const (
	CmpEQ  CompareOperator = "EQ"
	CmpNE  CompareOperator = "NE"
	CmpGT  CompareOperator = "GT"
	CmpGTE CompareOperator = "GTE"
	CmpLT  CompareOperator = "LT"
	CmpLTE CompareOperator = "LTE"
)

var compareOperators = []CompareOperator{CmpEQ, CmpNE, CmpGT, CmpGTE, CmpLT, CmpLTE}

func (op CompareOperator) Valid() bool { return contains(compareOperators, op) }

// ParseCompareOperator decodes a comparison operator name.
func ParseCompareOperator(s string) (CompareOperator, error) {
	return parse(compareOperators, s, "compare operator")
}
