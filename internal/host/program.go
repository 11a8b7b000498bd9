package host

// ItemKind classifies a top-level declaration.
type ItemKind int

const (
	ItemFunc ItemKind = iota
	ItemImpl
	ItemOther
)

// Item is a top-level declaration.
type Item struct {
	Kind ItemKind
	Func *Func
	Impl *Impl
	Span Span
}

// Impl is an impl block (a trait implementation when Trait is set).
type Impl struct {
	Trait    *DefPath
	SelfType *Type
	Members  []ImplMember
}

// MemberKind classifies an associated item.
type MemberKind int

const (
	MemberFunc MemberKind = iota
	MemberConst
	MemberType
)

// ImplMember is an associated item of an impl block.
type ImplMember struct {
	Kind MemberKind
	Name string
	Func *Func
	Span Span
}

// ExprKind classifies an expression node.
type ExprKind int

const (
	ExprStringLit ExprKind = iota
	ExprIntLit
	ExprFloatLit
	ExprCall
	ExprMethodCall
	ExprClosure
	ExprPath
	ExprOther
)

// Expr is an expression node. Callee is set for calls, Receiver for
// method calls, Args for both.
type Expr struct {
	Kind     ExprKind
	Str      string
	Int      int64
	Float    float64
	Callee   *Expr
	Receiver *Expr
	Args     []*Expr

	// Owner is the ID of the enclosing function body.
	Owner string
	Span  Span
}

// Program is the oracle over a type-checked program snapshot. It is
// read-only for the duration of a session.
type Program interface {
	// WalkItems calls fn for every top-level declaration, impl blocks included.
	WalkItems(fn func(*Item))
	// WalkExprs calls fn for every expression in every function body.
	WalkExprs(fn func(*Expr))
	// TypeOf returns the resolved static type of e.
	TypeOf(e *Expr) (*Type, bool)
	// ResolvePath returns the declaration a call or method call targets.
	ResolvePath(e *Expr) (DefPath, bool)
}

// Diagnostics is the host's diagnostic channel. Fatal never returns.
type Diagnostics interface {
	Note(msg string)
	Warn(msg string)
	Error(msg string)
	SpanWarn(span Span, msg string)
	Fatal(msg string)
}
