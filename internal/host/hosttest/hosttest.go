// Package hosttest provides an in-memory host.Program and a recording
// host.Diagnostics for tests of elevation and queries.
package hosttest

import (
	"sync"

	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// Program is a hand-built host.Program. Expressions are walked in the
// order they were added.
type Program struct {
	items []*host.Item
	exprs []*host.Expr
	types map[*host.Expr]*host.Type
	paths map[*host.Expr]host.DefPath
}

var _ host.Program = (*Program)(nil)

func NewProgram() *Program {
	return &Program{
		types: make(map[*host.Expr]*host.Type),
		paths: make(map[*host.Expr]host.DefPath),
	}
}

func (p *Program) WalkItems(fn func(*host.Item)) {
	for _, it := range p.items {
		fn(it)
	}
}

func (p *Program) WalkExprs(fn func(*host.Expr)) {
	for _, e := range p.exprs {
		fn(e)
	}
}

func (p *Program) TypeOf(e *host.Expr) (*host.Type, bool) {
	t, ok := p.types[e]
	return t, ok
}

func (p *Program) ResolvePath(e *host.Expr) (host.DefPath, bool) {
	d, ok := p.paths[e]
	return d, ok
}

// AddFunc registers a top-level function with a body.
func (p *Program) AddFunc(f *host.Func) *host.Item {
	if f.ID == "" {
		f.ID = f.Path.String()
	}
	it := &host.Item{Kind: host.ItemFunc, Func: f, Span: f.Span}
	p.items = append(p.items, it)
	return it
}

// AddImpl registers an impl block.
func (p *Program) AddImpl(impl *host.Impl) *host.Item {
	it := &host.Item{Kind: host.ItemImpl, Impl: impl}
	p.items = append(p.items, it)
	return it
}

// AddExpr registers e with static type t (which may be nil).
func (p *Program) AddExpr(e *host.Expr, t *host.Type) *host.Expr {
	p.exprs = append(p.exprs, e)
	if t != nil {
		p.types[e] = t
	}
	return e
}

// Resolve records the declaration a call expression targets.
func (p *Program) Resolve(e *host.Expr, path host.DefPath) {
	p.paths[e] = path
}

// Str adds a string literal expression.
func (p *Program) Str(owner, s string) *host.Expr {
	return p.AddExpr(&host.Expr{Kind: host.ExprStringLit, Str: s, Owner: owner}, Prim(host.TyStr))
}

// Call adds a resolved call to target with the given arguments.
func (p *Program) Call(owner string, target host.DefPath, ret *host.Type, args ...*host.Expr) *host.Expr {
	callee := p.AddExpr(&host.Expr{Kind: host.ExprPath, Owner: owner}, nil)
	e := p.AddExpr(&host.Expr{Kind: host.ExprCall, Callee: callee, Args: args, Owner: owner}, ret)
	p.Resolve(e, target)
	return e
}

// MethodCall adds a resolved method call on recv.
func (p *Program) MethodCall(owner string, recv *host.Expr, target host.DefPath, ret *host.Type, args ...*host.Expr) *host.Expr {
	e := p.AddExpr(&host.Expr{Kind: host.ExprMethodCall, Receiver: recv, Args: args, Owner: owner}, ret)
	p.Resolve(e, target)
	return e
}

// Local adds an opaque expression (a variable reference) of type t.
func (p *Program) Local(owner string, t *host.Type) *host.Expr {
	return p.AddExpr(&host.Expr{Kind: host.ExprPath, Owner: owner}, t)
}

// Prim returns a type without structure.
func Prim(k host.TypeKind) *host.Type {
	return &host.Type{Kind: k}
}

// Ref wraps t in a reference.
func Ref(t *host.Type) *host.Type {
	return &host.Type{Kind: host.TyRef, Elem: t}
}

// Named returns an ADT type for path, instantiated with args.
func Named(adt *host.Adt, args ...*host.Type) *host.Type {
	return &host.Type{Kind: host.TyAdt, Adt: adt, Args: args}
}

// Known returns an ADT type whose identity and path are both path.
func Known(path host.DefPath, args ...*host.Type) *host.Type {
	return Named(&host.Adt{ID: path.String(), Path: path}, args...)
}

// Struct declares a struct ADT. Fields can be appended after creation to
// build recursive types.
func Struct(path host.DefPath, fields ...host.Field) *host.Adt {
	return &host.Adt{ID: path.String(), Path: path, Kind: host.AdtStruct, Fields: fields}
}

// Enum declares an enum ADT.
func Enum(path host.DefPath, variants ...host.Variant) *host.Adt {
	return &host.Adt{ID: path.String(), Path: path, Kind: host.AdtEnum, Variants: variants}
}

// FatalError is the panic value raised by Diagnostics.Fatal.
type FatalError struct{ Msg string }

func (f FatalError) Error() string { return "fatal: " + f.Msg }

// Diagnostics records every message. Fatal panics with FatalError.
type Diagnostics struct {
	mu       sync.Mutex
	Notes    []string
	Warnings []string
	Errors   []string
}

var _ host.Diagnostics = (*Diagnostics)(nil)

func (d *Diagnostics) Note(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Notes = append(d.Notes, msg)
}

func (d *Diagnostics) Warn(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Warnings = append(d.Warnings, msg)
}

func (d *Diagnostics) Error(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Errors = append(d.Errors, msg)
}

func (d *Diagnostics) SpanWarn(_ host.Span, msg string) {
	d.Warn(msg)
}

func (d *Diagnostics) Fatal(msg string) {
	panic(FatalError{Msg: msg})
}

// CatchFatal runs fn and returns the message of a Fatal raised inside it.
func CatchFatal(fn func()) (msg string, fatal bool) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(FatalError)
			if !ok {
				panic(r)
			}
			msg, fatal = f.Msg, true
		}
	}()
	fn()
	return "", false
}

// Attr is shorthand for a fact.Attribute.
func Attr(name, value string) fact.Attribute {
	return fact.Attribute{Name: name, Value: value}
}
