package rusthost

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/gofacts/internal/host"
)

// body is the scope of one function body walk. Locals are flat per body;
// a nil entry is a binding whose type is unknown.
type body struct {
	owner  string
	env    *env
	locals map[string]*host.Type
}

var exprNodes = map[string]bool{
	"call_expression":    true,
	"string_literal":     true,
	"raw_string_literal": true,
	"integer_literal":    true,
	"float_literal":      true,
	"closure_expression": true,
}

// walkBodies indexes the expressions of every free function and impl
// method body.
func (p *Program) walkBodies() {
	for _, m := range p.modules {
		for _, d := range m.fns {
			path := host.Path(p.crate, append(append([]string(nil), m.path...), d.name)...)
			p.walkFunc(&env{mod: m}, d.node, p.funcs[path.String()], d.generics)
		}
		for _, b := range m.impls {
			e := &env{mod: m, self: b.selfType, generics: make(map[string]*host.Type)}
			for _, g := range b.generics {
				e.generics[g] = nil
			}
			for _, c := range namedChildren(b.node.ChildByFieldName("body")) {
				name := c.ChildByFieldName("name")
				if c.Type() != "function_item" || name == nil {
					continue
				}
				f := p.funcs[b.path(p.crate).Child(m.text(name)).String()]
				p.walkFunc(e, c, f, typeParams(m, c.ChildByFieldName("type_parameters")))
			}
		}
	}
}

func (p *Program) walkFunc(e *env, n *sitter.Node, f *host.Func, generics []string) {
	block := n.ChildByFieldName("body")
	if block == nil || f == nil {
		return
	}
	b := &body{owner: f.ID, env: e.with(generics), locals: make(map[string]*host.Type)}
	i := 0
	for _, c := range namedChildren(n.ChildByFieldName("parameters")) {
		var t *host.Type
		if i < len(f.Sig.Inputs) {
			t = f.Sig.Inputs[i]
		}
		switch c.Type() {
		case "self_parameter":
			b.locals["self"] = t
			i++
		case "parameter":
			p.bind(b, c.ChildByFieldName("pattern"), t)
			i++
		}
	}
	p.walk(b, block)
}

// walk visits a body in source order so let bindings are typed before
// their uses. Macro token trees and nested items are not descended into.
func (p *Program) walk(b *body, n *sitter.Node) {
	switch n.Type() {
	case "token_tree", "function_item", "impl_item", "mod_item", "trait_item":
		return
	case "let_declaration":
		value := n.ChildByFieldName("value")
		if value != nil {
			p.walk(b, value)
		}
		var t *host.Type
		if typ := n.ChildByFieldName("type"); typ != nil {
			t = p.typeOf(b.env, typ)
		} else if value != nil {
			t = p.exprType(b, value)
		}
		p.bind(b, n.ChildByFieldName("pattern"), t)
		return
	}
	if exprNodes[n.Type()] {
		p.expr(b, n)
	}
	for _, c := range namedChildren(n) {
		p.walk(b, c)
	}
}

// bind records the names a pattern introduces.
func (p *Program) bind(b *body, pat *sitter.Node, t *host.Type) {
	if pat == nil {
		return
	}
	switch pat.Type() {
	case "identifier":
		b.locals[b.env.mod.text(pat)] = t
	case "mut_pattern", "ref_pattern":
		for _, c := range namedChildren(pat) {
			p.bind(b, c, t)
		}
	case "tuple_pattern":
		for i, c := range namedChildren(pat) {
			var el *host.Type
			if t != nil && t.Kind == host.TyTuple && i < len(t.Elems) {
				el = t.Elems[i]
			}
			p.bind(b, c, el)
		}
	}
}

func exprKey(file string, n *sitter.Node) string {
	return fmt.Sprintf("%s:%d:%d:%s", file, n.StartByte(), n.EndByte(), n.Type())
}

func (p *Program) exprType(b *body, n *sitter.Node) *host.Type {
	return p.types[p.expr(b, n)]
}

// expr converts an expression node once; receivers and arguments are
// shared with the nodes the body walk reaches on its own.
func (p *Program) expr(b *body, n *sitter.Node) *host.Expr {
	if n.Type() == "parenthesized_expression" && n.NamedChildCount() > 0 {
		return p.expr(b, n.NamedChild(0))
	}
	m := b.env.mod
	key := exprKey(m.file, n)
	if x, ok := p.nodes[key]; ok {
		return x
	}
	x := &host.Expr{Kind: host.ExprOther, Owner: b.owner, Span: m.span(n)}
	p.nodes[key] = x
	p.exprs = append(p.exprs, x)

	var t *host.Type
	switch n.Type() {
	case "string_literal", "raw_string_literal":
		x.Kind = host.ExprStringLit
		x.Str = stringValue(m.text(n))
		t = refTo(prim("str"))

	case "integer_literal":
		lt, digits := literalType(m.text(n), false)
		if v, ok := parseInt(digits); ok {
			x.Kind = host.ExprIntLit
			x.Int = v
		}
		t = lt

	case "float_literal":
		lt, digits := literalType(m.text(n), true)
		if v, err := strconv.ParseFloat(digits, 64); err == nil {
			x.Kind = host.ExprFloatLit
			x.Float = v
		}
		t = lt

	case "boolean_literal":
		t = prim("bool")

	case "closure_expression":
		x.Kind = host.ExprClosure
		t = p.closure(b, n)

	case "call_expression":
		t = p.call(b, x, n)

	case "identifier", "self":
		name := m.text(n)
		if lt, ok := b.locals[name]; ok {
			t = lt
			break
		}
		if _, f, _, ok := p.value(b, []string{name}); ok && f != nil {
			x.Kind = host.ExprPath
			t = fnDef(f)
		}

	case "scoped_identifier":
		path, f, enum, ok := p.value(b, splitPath(m.text(n)))
		switch {
		case !ok:
		case f != nil:
			x.Kind = host.ExprPath
			p.targets[x] = path
			t = fnDef(f)
		case enum != nil:
			t = enum
		}

	case "field_expression":
		value, field := n.ChildByFieldName("value"), n.ChildByFieldName("field")
		if value != nil && field != nil {
			t = fieldType(p.exprType(b, value), m.text(field))
		}

	case "reference_expression":
		if value := n.ChildByFieldName("value"); value != nil {
			if inner := p.exprType(b, value); inner != nil {
				t = refTo(inner)
			}
		}

	case "struct_expression":
		if name := n.ChildByFieldName("name"); name != nil {
			t = p.typeOf(b.env, name)
		}

	case "try_expression":
		if n.NamedChildCount() > 0 {
			t = payload(p.exprType(b, n.NamedChild(0)))
		}

	case "await_expression":
		if n.NamedChildCount() > 0 {
			if ft := p.exprType(b, n.NamedChild(0)); ft != nil && (ft.Kind == host.TyOpaque || ft.Kind == host.TyCoroutine) {
				t = ft.Elem
			}
		}

	case "macro_invocation":
		if mac := n.ChildByFieldName("macro"); mac != nil && m.text(mac) == "format" {
			t = stringType()
		}
	}
	if t != nil {
		p.types[x] = t
	}
	return x
}

// call fills in a call or method call and returns its result type.
func (p *Program) call(b *body, x *host.Expr, n *sitter.Node) *host.Type {
	m := b.env.mod
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	if fn.Type() == "generic_function" {
		if inner := fn.ChildByFieldName("function"); inner != nil {
			fn = inner
		}
	}

	if fn.Type() == "field_expression" {
		x.Kind = host.ExprMethodCall
		value, field := fn.ChildByFieldName("value"), fn.ChildByFieldName("field")
		if value == nil || field == nil {
			return nil
		}
		x.Receiver = p.expr(b, value)
		x.Args = p.args(b, n)
		recv, name := p.types[x.Receiver], m.text(field)
		if path, f, ok := p.method(recv, name); ok {
			p.targets[x] = path
			return output(f)
		}
		return wellKnownMethod(recv, name)
	}

	x.Kind = host.ExprCall
	x.Callee = p.expr(b, fn)
	x.Args = p.args(b, n)
	if fn.Type() != "identifier" && fn.Type() != "scoped_identifier" {
		return nil
	}
	if fn.Type() == "identifier" {
		if _, local := b.locals[m.text(fn)]; local {
			return nil
		}
	}

	segs := splitPath(m.text(fn))
	path, f, enum, ok := p.value(b, segs)
	if !ok {
		return nil
	}
	p.targets[x] = path
	switch {
	case f != nil:
		return output(f)
	case enum != nil:
		return enum
	case path.String() == "core::option::Option::Some" && len(x.Args) == 1:
		if arg := p.types[x.Args[0]]; arg != nil {
			return externalAdt(host.Path("core", "option", "Option"), arg)
		}
	case constructors[segs[len(segs)-1]] && len(path.Segments) > 1:
		owner := host.DefPath{Crate: path.Crate, Segments: path.Segments[:len(path.Segments)-1]}
		if owner.Crate != p.crate {
			return externalAdt(owner)
		}
	}
	return nil
}

func (p *Program) args(b *body, call *sitter.Node) []*host.Expr {
	var out []*host.Expr
	for _, a := range namedChildren(call.ChildByFieldName("arguments")) {
		switch a.Type() {
		case "attribute_item", "line_comment", "block_comment":
			continue
		}
		out = append(out, p.expr(b, a))
	}
	return out
}

// value resolves a path in expression position: a function, an
// associated function of a crate type, or an enum variant constructor
// (whose enum type is returned).
func (p *Program) value(b *body, segs []string) (host.DefPath, *host.Func, *host.Type, bool) {
	m := b.env.mod
	if len(segs) >= 2 {
		owner, last := segs[:len(segs)-1], segs[len(segs)-1]
		var ownerT *host.Type
		if len(owner) == 1 && owner[0] == "Self" {
			ownerT = b.env.self
		} else if path, ok := p.resolve(m, owner, 0); ok {
			if d := p.declAt(path); d != nil && d.kind != declAlias && d.isType() {
				ownerT = p.localAdt(d, path, nil)
			}
		}
		if ownerT != nil && ownerT.Kind == host.TyAdt && ownerT.Adt != nil {
			for _, v := range ownerT.Adt.Variants {
				if v.Name == last {
					return ownerT.Adt.Path.Child(last), nil, ownerT, true
				}
			}
			if path, f, ok := p.method(ownerT, last); ok {
				return path, f, nil, true
			}
		}
	}
	path, ok := p.resolve(m, segs, 0)
	if !ok {
		return host.DefPath{}, nil, nil, false
	}
	return path, p.funcs[path.String()], nil, true
}

// method finds the method a crate type's impl blocks declare for name.
// Inherent impls win over trait impls.
func (p *Program) method(recv *host.Type, name string) (host.DefPath, *host.Func, bool) {
	for recv != nil && recv.Kind == host.TyRef {
		recv = recv.Elem
	}
	if recv == nil || recv.Kind != host.TyAdt || recv.Adt == nil {
		return host.DefPath{}, nil, false
	}
	d := p.declAt(recv.Adt.Path)
	if d == nil {
		return host.DefPath{}, nil, false
	}
	var (
		found host.DefPath
		ok    bool
	)
	for _, m := range p.modules {
		for _, blk := range m.impls {
			if blk.self != d || blk.method(name) == nil {
				continue
			}
			path := blk.path(p.crate).Child(name)
			if blk.trait == nil {
				return path, p.funcs[path.String()], true
			}
			if !ok {
				found, ok = path, true
			}
		}
	}
	if !ok {
		return host.DefPath{}, nil, false
	}
	return found, p.funcs[found.String()], true
}

// closure types a closure expression and binds its parameters in the
// enclosing body.
func (p *Program) closure(b *body, n *sitter.Node) *host.Type {
	m := b.env.mod
	sig := &host.Signature{}
	for _, c := range namedChildren(n.ChildByFieldName("parameters")) {
		var t *host.Type
		pat := c
		if c.Type() == "parameter" {
			pat = c.ChildByFieldName("pattern")
			if typ := c.ChildByFieldName("type"); typ != nil {
				t = p.typeOf(b.env, typ)
			}
		}
		p.bind(b, pat, t)
		if t == nil {
			t = other("_")
		}
		sig.Inputs = append(sig.Inputs, t)
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		sig.Output = p.typeOf(b.env, ret)
	} else if body := n.ChildByFieldName("body"); body != nil {
		sig.Output = p.exprType(b, body)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			sig.Async = true
		}
	}
	return &host.Type{Kind: host.TyClosure, Sig: sig, Name: "closure@" + m.span(n).String()}
}

// constructors are associated functions assumed to return their own type
// when declared outside the crate.
var constructors = map[string]bool{
	"new":           true,
	"default":       true,
	"from":          true,
	"with_capacity": true,
}

// wellKnownMethod types a few standard methods on types whose impls are
// not in the crate.
func wellKnownMethod(recv *host.Type, name string) *host.Type {
	if recv == nil {
		return nil
	}
	inner := recv
	for inner.Kind == host.TyRef && inner.Elem != nil {
		inner = inner.Elem
	}
	switch name {
	case "to_string", "to_owned":
		if name == "to_owned" && inner.Kind != host.TyStr {
			return inner
		}
		return stringType()
	case "clone":
		return inner
	case "as_str":
		return refTo(prim("str"))
	case "len", "count":
		return prim("usize")
	case "is_empty", "is_some", "is_none", "is_ok", "is_err", "contains", "starts_with", "ends_with":
		return prim("bool")
	case "unwrap", "expect", "unwrap_or", "unwrap_or_default", "unwrap_or_else":
		return payload(inner)
	}
	return nil
}

// payload is T for Option<T> and Result<T, E>.
func payload(t *host.Type) *host.Type {
	if t == nil || t.Kind != host.TyAdt || t.Adt == nil || len(t.Args) == 0 {
		return nil
	}
	switch t.Adt.Path.String() {
	case "core::option::Option", "core::result::Result":
		return t.Args[0]
	}
	return nil
}

func fieldType(t *host.Type, name string) *host.Type {
	for t != nil && t.Kind == host.TyRef {
		t = t.Elem
	}
	if t == nil {
		return nil
	}
	switch t.Kind {
	case host.TyAdt:
		if t.Adt == nil {
			return nil
		}
		for _, f := range t.Adt.Fields {
			if f.Name == name || (f.Name == "" && strconv.Itoa(f.Index) == name) {
				return f.Type
			}
		}
	case host.TyTuple:
		if i, err := strconv.Atoi(name); err == nil && i < len(t.Elems) {
			return t.Elems[i]
		}
	}
	return nil
}

func output(f *host.Func) *host.Type {
	if f == nil || f.Sig == nil {
		return nil
	}
	if f.Sig.Output == nil {
		return &host.Type{Kind: host.TyTuple, Name: "()"}
	}
	return f.Sig.Output
}

func fnDef(f *host.Func) *host.Type {
	return &host.Type{Kind: host.TyFnDef, Func: f, Name: f.Path.String()}
}

func externalAdt(path host.DefPath, args ...*host.Type) *host.Type {
	return &host.Type{
		Kind: host.TyAdt,
		Adt:  &host.Adt{ID: path.String(), Path: path},
		Args: args,
		Name: display(path, args),
	}
}

func stringType() *host.Type {
	return externalAdt(host.Path("alloc", "string", "String"))
}

var unicodeEscape = regexp.MustCompile(`\\u\{([0-9a-fA-F_]{1,6})\}`)

// stringValue decodes a string literal. Raw and byte prefixes are
// stripped; escapes that do not decode are kept verbatim.
func stringValue(text string) string {
	s := strings.TrimPrefix(text, "b")
	if strings.HasPrefix(s, "r") {
		s = strings.TrimLeft(s[1:], "#")
		s = strings.TrimRight(s, "#")
		return strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
	goLit := unicodeEscape.ReplaceAllStringFunc(inner, func(esc string) string {
		r, err := strconv.ParseUint(strings.ReplaceAll(esc[3:len(esc)-1], "_", ""), 16, 32)
		if err != nil {
			return esc
		}
		return fmt.Sprintf(`\U%08X`, r)
	})
	goLit = strings.ReplaceAll(goLit, "\n", `\n`)
	if v, err := strconv.Unquote(`"` + goLit + `"`); err == nil {
		return v
	}
	return inner
}
