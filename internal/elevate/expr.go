package elevate

import (
	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// ElevateExpr converts an expression. Calls report false when their
// target cannot be resolved; anything without a dedicated shape falls back
// to its static type.
func (e *Elevator) ElevateExpr(x *host.Expr) (fact.Value, bool) {
	if x == nil {
		return nil, false
	}
	switch x.Kind {
	case host.ExprStringLit:
		return fact.StringLiteral(x.Str), true
	case host.ExprIntLit:
		return fact.IntegerLiteral(x.Int), true
	case host.ExprFloatLit:
		return fact.FloatLiteral(x.Float), true
	case host.ExprMethodCall:
		mc, ok := e.MethodCall(x)
		if !ok {
			return nil, false
		}
		return mc, true
	case host.ExprCall:
		fc, ok := e.FunctionCall(x)
		if !ok {
			return nil, false
		}
		return fc, true
	case host.ExprClosure:
		t, ok := e.prog.TypeOf(x)
		if !ok || t.Kind != host.TyClosure || t.Sig == nil {
			e.fatalf("expected closure type for closure at %s, found `%s`", x.Span, t)
		}
		return fact.StaticType{Type: e.closure(t.Sig, visited{})}, true
	default:
		t, ok := e.prog.TypeOf(x)
		if !ok {
			return nil, false
		}
		v, ok := e.ElevateType(t)
		if !ok {
			return nil, false
		}
		return fact.StaticType{Type: v}, true
	}
}

// Resolve returns the location a call or method call targets.
func (e *Elevator) Resolve(x *host.Expr) (fact.Location, bool) {
	p, ok := e.prog.ResolvePath(x)
	if !ok {
		return fact.Location{}, false
	}
	return e.Location(p), true
}

// Origin describes a method call as a query: its target, and the origin
// of its receiver when that is a resolvable method call too.
func (e *Elevator) Origin(x *host.Expr) (fact.MethodCallQuery, bool) {
	loc, ok := e.Resolve(x)
	if !ok {
		return fact.MethodCallQuery{}, false
	}
	q := fact.MethodCallQuery{Location: loc}
	if x.Receiver != nil && x.Receiver.Kind == host.ExprMethodCall {
		if parent, ok := e.Origin(x.Receiver); ok {
			q.Parent = &parent
		}
	}
	return q, true
}

// MethodCall elevates a method-call expression.
func (e *Elevator) MethodCall(x *host.Expr) (*fact.MethodCall, bool) {
	origin, ok := e.Origin(x)
	if !ok {
		return nil, false
	}
	return &fact.MethodCall{
		Origin:   origin,
		Args:     e.args(x.Args),
		InItemID: x.Owner,
	}, true
}

// FunctionCall elevates a plain call expression.
func (e *Elevator) FunctionCall(x *host.Expr) (*fact.FunctionCall, bool) {
	loc, ok := e.Resolve(x)
	if !ok {
		return nil, false
	}
	return &fact.FunctionCall{
		Location: loc,
		Args:     e.args(x.Args),
		InItemID: x.Owner,
	}, true
}

// args elevates each argument independently, dropping those that fail.
func (e *Elevator) args(xs []*host.Expr) []fact.Value {
	out := make([]fact.Value, 0, len(xs))
	for _, a := range xs {
		if v, ok := e.ElevateExpr(a); ok {
			out = append(out, v)
		}
	}
	return out
}
