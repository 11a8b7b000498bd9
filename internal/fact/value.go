package fact

// ValueKind identifies a Value variant.
type ValueKind int

const (
	ValueStringLiteral ValueKind = iota
	ValueIntegerLiteral
	ValueFloatLiteral
	ValueFunctionCall
	ValueMethodCall
	ValueType
)

func (k ValueKind) String() string {
	switch k {
	case ValueStringLiteral:
		return "StringLiteral"
	case ValueIntegerLiteral:
		return "IntegerLiteral"
	case ValueFloatLiteral:
		return "FloatLiteral"
	case ValueFunctionCall:
		return "FunctionCall"
	case ValueMethodCall:
		return "MethodCall"
	case ValueType:
		return "Type"
	default:
		return "Unknown"
	}
}

// Value is the closed union of elevated expressions.
type Value interface {
	ValueKind() ValueKind
	value()
}

type StringLiteral string

type IntegerLiteral int64

type FloatLiteral float64

// FunctionCall is a call whose callee resolved to Location. Args holds the
// arguments that elevated; InItemID names the enclosing function body.
type FunctionCall struct {
	Location Location
	Args     []Value
	InItemID string
}

// MethodCall is a resolved method call. Origin describes the call as a
// query: its location, and when the receiver is itself a method call, that
// call's origin as Parent.
type MethodCall struct {
	Origin   MethodCallQuery
	Args     []Value
	InItemID string
}

// StaticType is an expression reported only by its static type.
type StaticType struct{ Type TypeValue }

func (StringLiteral) ValueKind() ValueKind  { return ValueStringLiteral }
func (IntegerLiteral) ValueKind() ValueKind { return ValueIntegerLiteral }
func (FloatLiteral) ValueKind() ValueKind   { return ValueFloatLiteral }
func (*FunctionCall) ValueKind() ValueKind  { return ValueFunctionCall }
func (*MethodCall) ValueKind() ValueKind    { return ValueMethodCall }
func (StaticType) ValueKind() ValueKind     { return ValueType }

func (StringLiteral) value()  {}
func (IntegerLiteral) value() {}
func (FloatLiteral) value()   {}
func (*FunctionCall) value()  {}
func (*MethodCall) value()    {}
func (StaticType) value()     {}

// TraitImpl is an implementation of the trait (interface) at TraitLocation
// for ForType.
type TraitImpl struct {
	TraitLocation Location
	ForType       TypeValue
	Functions     []*FunctionTypeValue
}
