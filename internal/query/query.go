// Package query answers structural queries against a program snapshot.
// Every query is a single fresh walk; nothing is cached between calls.
package query

import (
	"fmt"

	"github.com/jward/gofacts/internal/elevate"
	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// Engine runs queries over the program an Elevator reads from.
type Engine struct {
	prog host.Program
	el   *elevate.Elevator
	diag host.Diagnostics
}

// New creates an Engine.
func New(el *elevate.Elevator, diag host.Diagnostics) *Engine {
	return &Engine{prog: el.Program(), el: el, diag: diag}
}

// Functions returns every function declared exactly at loc.
func (q *Engine) Functions(loc fact.Location) []*fact.FunctionTypeValue {
	var out []*fact.FunctionTypeValue
	q.prog.WalkItems(func(it *host.Item) {
		if it.Kind != host.ItemFunc || it.Func == nil {
			return
		}
		f := it.Func
		if !q.el.Location(f.Path).Equal(loc) {
			return
		}
		if f.Generic {
			q.diag.SpanWarn(f.Span, "function generic parameters will be ignored")
		}
		if !f.HasBody {
			q.diag.SpanWarn(f.Span, "function without body cannot be queried")
			return
		}
		out = append(out, q.el.ElevateFunction(f))
	})
	return out
}

// TraitImpls returns every implementation of the trait at loc.
func (q *Engine) TraitImpls(loc fact.Location) []*fact.TraitImpl {
	var out []*fact.TraitImpl
	q.prog.WalkItems(func(it *host.Item) {
		if it.Kind != host.ItemImpl || it.Impl == nil || it.Impl.Trait == nil {
			return
		}
		impl := it.Impl
		if !q.el.Location(*impl.Trait).Equal(loc) {
			return
		}
		if impl.SelfType != nil && impl.SelfType.Kind == host.TyAdt &&
			impl.SelfType.Adt != nil && impl.SelfType.Adt.Kind == host.AdtUnion {
			q.diag.Fatal(fmt.Sprintf("trait `%s` is implemented for union type `%s`", loc, impl.SelfType))
			return
		}
		forType, ok := q.el.ElevateType(impl.SelfType)
		if !ok {
			q.diag.SpanWarn(it.Span, "failed to convert self type")
			return
		}

		ti := &fact.TraitImpl{TraitLocation: loc, ForType: forType}
		for _, m := range impl.Members {
			switch m.Kind {
			case host.MemberConst:
				q.diag.SpanWarn(m.Span, "trait impls cannot contain const items currently")
			case host.MemberType:
				q.diag.SpanWarn(m.Span, "trait impls cannot contain type items currently")
			case host.MemberFunc:
				if m.Func != nil {
					ti.Functions = append(ti.Functions, q.el.ElevateFunction(m.Func))
				}
			}
		}
		out = append(out, ti)
	})
	return out
}

// FunctionCalls returns every call whose callee resolves to loc.
func (q *Engine) FunctionCalls(loc fact.Location) []*fact.FunctionCall {
	var (
		out        []*fact.FunctionCall
		unresolved int
	)
	q.prog.WalkExprs(func(x *host.Expr) {
		if x.Kind != host.ExprCall {
			return
		}
		target, ok := q.el.Resolve(x)
		if !ok {
			unresolved++
			return
		}
		if !target.Equal(loc) {
			return
		}
		if fc, ok := q.el.FunctionCall(x); ok {
			out = append(out, fc)
		}
	})
	q.reportUnresolved("function calls", loc, unresolved)
	return out
}

// MethodCalls returns every method call matching mq. A parent constraint
// is checked against the call's immediate receiver only.
func (q *Engine) MethodCalls(mq fact.MethodCallQuery) []*fact.MethodCall {
	m := &methodMatcher{engine: q, hinted: make(map[string]bool)}
	var out []*fact.MethodCall
	q.prog.WalkExprs(func(x *host.Expr) {
		if !m.matches(&mq, x) {
			return
		}
		if mc, ok := q.el.MethodCall(x); ok {
			out = append(out, mc)
		}
	})
	q.reportUnresolved("method calls", mq.Location, m.unresolved)
	return out
}

type methodMatcher struct {
	engine     *Engine
	hinted     map[string]bool
	unresolved int
}

func (m *methodMatcher) matches(mq *fact.MethodCallQuery, x *host.Expr) bool {
	if x == nil || x.Kind != host.ExprMethodCall {
		return false
	}
	if mq.Parent != nil && !m.matches(mq.Parent, x.Receiver) {
		return false
	}
	got, ok := m.engine.el.Resolve(x)
	if !ok {
		m.unresolved++
		return false
	}
	if got.Equal(mq.Location) {
		return true
	}
	if got.Last() == mq.Location.Last() {
		m.hint(mq.Location, got)
	}
	return false
}

// hint suggests the closest location once per distinct pair.
func (m *methodMatcher) hint(want, got fact.Location) {
	key := want.String() + "\x00" + got.String()
	if m.hinted[key] {
		return
	}
	m.hinted[key] = true
	m.engine.diag.Warn(fmt.Sprintf(
		"query for `%s` likely intended to match against `%s`, consider changing the impl block number",
		want, got))
}

func (q *Engine) reportUnresolved(what string, loc fact.Location, n int) {
	if n == 0 {
		return
	}
	q.diag.Warn(fmt.Sprintf("query for %s of `%s`: skipped %d call(s) whose target could not be resolved", what, loc, n))
}
