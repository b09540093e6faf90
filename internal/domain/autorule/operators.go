package autorule

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

type operandKind int

const (
	kindInvalid operandKind = iota
	kindString
	kindNumber
)

// Operand is a comparable value: a lower-cased string, a number, or neither.
type Operand struct {
	kind operandKind
	str  string
	num  decimal.Decimal
	orig any
}

// StringOperand returns a string operand, lower-cased.
func StringOperand(s string) Operand {
	return Operand{kind: kindString, str: strings.ToLower(s), orig: s}
}

// NumberOperand returns a numeric operand.
func NumberOperand(d decimal.Decimal) Operand {
	return Operand{kind: kindNumber, num: d, orig: d.InexactFloat64()}
}

// operandFromValue converts a decoded document value into an operand.
// Anything that is neither a string nor a number yields an invalid operand.
func operandFromValue(v any) Operand {
	switch val := v.(type) {
	case string:
		return StringOperand(val)
	case float64:
		return NumberOperand(decimal.NewFromFloat(val))
	case float32:
		return NumberOperand(decimal.NewFromFloat32(val))
	case int:
		return NumberOperand(decimal.NewFromInt(int64(val)))
	case int64:
		return NumberOperand(decimal.NewFromInt(val))
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return Operand{orig: v}
		}
		return NumberOperand(d)
	case decimal.Decimal:
		return NumberOperand(val)
	default:
		return Operand{orig: v}
	}
}

func (o Operand) raw() any {
	return o.orig
}

// Operator is the sealed set of condition operators.
type Operator interface {
	Name() string
	match(field Operand) bool
	operand() Operand
}

// Equals matches operands of the same kind that are equal.
type Equals struct{ Value Operand }

// Contains matches when the string field contains the string value.
type Contains struct{ Value Operand }

// StartsWith matches when the string field starts with the string value.
type StartsWith struct{ Value Operand }

// GreaterThan matches when both operands are numeric and field > value.
type GreaterThan struct{ Value Operand }

// LessThan matches when both operands are numeric and field < value.
type LessThan struct{ Value Operand }

// Unknown is an operator that was not recognised. It never matches.
type Unknown struct {
	Operator string
	Value    Operand
}

func (Equals) Name() string      { return "equals" }
func (Contains) Name() string    { return "contains" }
func (StartsWith) Name() string  { return "starts_with" }
func (GreaterThan) Name() string { return "greater_than" }
func (LessThan) Name() string    { return "less_than" }
func (u Unknown) Name() string   { return u.Operator }

func (o Equals) operand() Operand      { return o.Value }
func (o Contains) operand() Operand    { return o.Value }
func (o StartsWith) operand() Operand  { return o.Value }
func (o GreaterThan) operand() Operand { return o.Value }
func (o LessThan) operand() Operand    { return o.Value }
func (o Unknown) operand() Operand     { return o.Value }

func (o Equals) match(f Operand) bool {
	switch {
	case f.kind == kindString && o.Value.kind == kindString:
		return f.str == o.Value.str
	case f.kind == kindNumber && o.Value.kind == kindNumber:
		return f.num.Equal(o.Value.num)
	}
	return false
}

func (o Contains) match(f Operand) bool {
	return f.kind == kindString && o.Value.kind == kindString && strings.Contains(f.str, o.Value.str)
}

func (o StartsWith) match(f Operand) bool {
	return f.kind == kindString && o.Value.kind == kindString && strings.HasPrefix(f.str, o.Value.str)
}

func (o GreaterThan) match(f Operand) bool {
	return f.kind == kindNumber && o.Value.kind == kindNumber && f.num.GreaterThan(o.Value.num)
}

func (o LessThan) match(f Operand) bool {
	return f.kind == kindNumber && o.Value.kind == kindNumber && f.num.LessThan(o.Value.num)
}

func (Unknown) match(Operand) bool { return false }

// ParseCondition compiles a stored condition. Unknown operators compile to
// Unknown so that evaluation degrades to no match instead of failing.
func ParseCondition(raw RawCondition) Condition {
	value := operandFromValue(raw.Value)

	var op Operator
	switch raw.Operator {
	case "equals":
		op = Equals{Value: value}
	case "contains":
		op = Contains{Value: value}
	case "starts_with":
		op = StartsWith{Value: value}
	case "greater_than":
		op = GreaterThan{Value: value}
	case "less_than":
		op = LessThan{Value: value}
	default:
		op = Unknown{Operator: raw.Operator, Value: value}
	}

	return Condition{Field: Field(raw.Field), Op: op}
}

// fieldValue extracts the operand for field from rec.
func fieldValue(rec Record, field Field) Operand {
	switch field {
	case FieldDescription:
		return StringOperand(rec.Description)
	case FieldMerchant:
		return StringOperand(rec.Merchant)
	case FieldAccount:
		return StringOperand(rec.Account)
	case FieldAmount:
		return NumberOperand(rec.Amount)
	}
	return Operand{}
}
