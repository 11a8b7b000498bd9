package fact

import "strconv"

// TypeKind identifies a TypeValue variant.
type TypeKind int

const (
	KindString TypeKind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindUsize
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindIsize
	KindF32
	KindF64
	KindBool
	KindMap
	KindList
	KindResult
	KindOption
	KindTuple
	KindStruct
	KindEnum
	KindClosure
	KindFunction
	KindRecursiveRef
)

var kindNames = [...]string{
	KindString:       "String",
	KindU8:           "U8",
	KindU16:          "U16",
	KindU32:          "U32",
	KindU64:          "U64",
	KindU128:         "U128",
	KindUsize:        "Usize",
	KindI8:           "I8",
	KindI16:          "I16",
	KindI32:          "I32",
	KindI64:          "I64",
	KindI128:         "I128",
	KindIsize:        "Isize",
	KindF32:          "F32",
	KindF64:          "F64",
	KindBool:         "Bool",
	KindMap:          "Map",
	KindList:         "List",
	KindResult:       "Result",
	KindOption:       "Option",
	KindTuple:        "Tuple",
	KindStruct:       "Struct",
	KindEnum:         "Enum",
	KindClosure:      "Closure",
	KindFunction:     "Function",
	KindRecursiveRef: "RecursiveRef",
}

// String returns the variant name used in the script encoding.
func (k TypeKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "TypeKind(" + strconv.Itoa(int(k)) + ")"
}

// IsScalar reports whether k is a primitive variant without payload.
func (k TypeKind) IsScalar() bool {
	return k >= KindString && k <= KindBool
}

// TypeValue is the closed union of elevated types. Only types in this
// package implement it.
type TypeValue interface {
	Kind() TypeKind
	typeValue()
}

// Scalar is a primitive type. Kind must satisfy IsScalar.
type Scalar struct{ K TypeKind }

type MapType struct{ Key, Value TypeValue }

type ListType struct{ Elem TypeValue }

type ResultType struct{ Ok, Err TypeValue }

type OptionType struct{ Elem TypeValue }

// TupleType holds the elements that elevated successfully. Elements that
// failed are absent, so len(Elems) may be smaller than the source arity.
type TupleType struct{ Elems []TypeValue }

// FieldName is either a positional index or a name.
type FieldName struct {
	Index int
	Name  string
	Named bool
}

func IndexField(i int) FieldName    { return FieldName{Index: i} }
func NamedField(s string) FieldName { return FieldName{Name: s, Named: true} }

func (f FieldName) String() string {
	if f.Named {
		return f.Name
	}
	return strconv.Itoa(f.Index)
}

type StructTypeValueField struct {
	Name       FieldName
	Type       TypeValue
	DocComment string
	Attributes []Attribute
}

type StructTypeValue struct {
	Location   Location
	Fields     []StructTypeValueField
	DocComment string
	Attributes []Attribute
}

// EnumTypeValueVariant has a nil Payload for unit variants.
type EnumTypeValueVariant struct {
	Name       string
	Payload    TypeValue
	DocComment string
	Attributes []Attribute
}

type EnumTypeValue struct {
	Location   Location
	Variants   []EnumTypeValueVariant
	DocComment string
	Attributes []Attribute
}

// ClosureTypeValue describes a closure or function pointer; Return is nil
// when nothing is returned.
type ClosureTypeValue struct {
	Args   []TypeValue
	Return TypeValue
}

// FunctionTypeValue is a full function descriptor. ArgsStruct holds one
// positional field per parameter. When IsAsync is set, ReturnType is the
// awaited output, not the future wrapper.
type FunctionTypeValue struct {
	Location   Location
	ArgsStruct StructTypeValue
	ReturnType TypeValue
	ItemID     string
	Attributes []Attribute
	DocComment string
	IsAsync    bool
}

// RecursiveRef terminates a cycle: it names a type already being elevated
// further up the same branch.
type RecursiveRef struct{ Location Location }

func (s Scalar) Kind() TypeKind           { return s.K }
func (MapType) Kind() TypeKind            { return KindMap }
func (ListType) Kind() TypeKind           { return KindList }
func (ResultType) Kind() TypeKind         { return KindResult }
func (OptionType) Kind() TypeKind         { return KindOption }
func (TupleType) Kind() TypeKind          { return KindTuple }
func (*StructTypeValue) Kind() TypeKind   { return KindStruct }
func (*EnumTypeValue) Kind() TypeKind     { return KindEnum }
func (ClosureTypeValue) Kind() TypeKind   { return KindClosure }
func (*FunctionTypeValue) Kind() TypeKind { return KindFunction }
func (RecursiveRef) Kind() TypeKind       { return KindRecursiveRef }

func (Scalar) typeValue()             {}
func (MapType) typeValue()            {}
func (ListType) typeValue()           {}
func (ResultType) typeValue()         {}
func (OptionType) typeValue()         {}
func (TupleType) typeValue()          {}
func (*StructTypeValue) typeValue()   {}
func (*EnumTypeValue) typeValue()     {}
func (ClosureTypeValue) typeValue()   {}
func (*FunctionTypeValue) typeValue() {}
func (RecursiveRef) typeValue()       {}

// Scalar shorthands.
var (
	String = Scalar{KindString}
	U8     = Scalar{KindU8}
	U16    = Scalar{KindU16}
	U32    = Scalar{KindU32}
	U64    = Scalar{KindU64}
	U128   = Scalar{KindU128}
	Usize  = Scalar{KindUsize}
	I8     = Scalar{KindI8}
	I16    = Scalar{KindI16}
	I32    = Scalar{KindI32}
	I64    = Scalar{KindI64}
	I128   = Scalar{KindI128}
	Isize  = Scalar{KindIsize}
	F32    = Scalar{KindF32}
	F64    = Scalar{KindF64}
	Bool   = Scalar{KindBool}
)
