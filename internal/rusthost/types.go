package rusthost

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/gofacts/internal/host"
)

// env is the scope a written type is read in.
type env struct {
	mod  *module
	self *host.Type
	// generics maps in-scope type parameters to their arguments; a nil
	// value is an unsubstituted parameter.
	generics map[string]*host.Type
}

func (e *env) with(names []string) *env {
	if len(names) == 0 {
		return e
	}
	out := &env{mod: e.mod, self: e.self, generics: make(map[string]*host.Type, len(e.generics)+len(names))}
	for k, v := range e.generics {
		out.generics[k] = v
	}
	for _, n := range names {
		out.generics[n] = nil
	}
	return out
}

var primitives = map[string]host.TypeKind{
	"bool":  host.TyBool,
	"i8":    host.TyI8,
	"i16":   host.TyI16,
	"i32":   host.TyI32,
	"i64":   host.TyI64,
	"i128":  host.TyI128,
	"isize": host.TyIsize,
	"u8":    host.TyU8,
	"u16":   host.TyU16,
	"u32":   host.TyU32,
	"u64":   host.TyU64,
	"u128":  host.TyU128,
	"usize": host.TyUsize,
	"f32":   host.TyF32,
	"f64":   host.TyF64,
	"str":   host.TyStr,
}

func prim(name string) *host.Type {
	if k, ok := primitives[name]; ok {
		return &host.Type{Kind: k, Name: name}
	}
	return &host.Type{Kind: host.TyOther, Name: name}
}

func other(name string) *host.Type {
	return &host.Type{Kind: host.TyOther, Name: name}
}

func refTo(t *host.Type) *host.Type {
	return &host.Type{Kind: host.TyRef, Elem: t, Name: "&" + t.String()}
}

// typeOf reads a written type.
func (p *Program) typeOf(e *env, n *sitter.Node) *host.Type {
	m := e.mod
	switch n.Type() {
	case "primitive_type":
		return prim(m.text(n))

	case "reference_type":
		if inner := n.ChildByFieldName("type"); inner != nil {
			return refTo(p.typeOf(e, inner))
		}

	case "unit_type":
		return &host.Type{Kind: host.TyTuple, Name: "()"}

	case "tuple_type":
		t := &host.Type{Kind: host.TyTuple, Name: m.text(n)}
		for _, c := range namedChildren(n) {
			t.Elems = append(t.Elems, p.typeOf(e, c))
		}
		return t

	case "type_identifier", "scoped_type_identifier":
		name := m.text(n)
		if name == "Self" && e.self != nil {
			return e.self
		}
		if g, ok := e.generics[name]; ok {
			if g != nil {
				return g
			}
			return other(name)
		}
		return p.named(e, n, nil)

	case "generic_type":
		base := n.ChildByFieldName("type")
		if base == nil {
			break
		}
		var args []*host.Type
		for _, c := range namedChildren(n.ChildByFieldName("type_arguments")) {
			switch c.Type() {
			case "lifetime", "type_binding", "line_comment", "block_comment":
				continue
			}
			args = append(args, p.typeOf(e, c))
		}
		return p.named(e, base, args)

	case "abstract_type":
		return p.opaque(e, n)

	case "function_type":
		sig := &host.Signature{}
		for _, c := range namedChildren(n.ChildByFieldName("parameters")) {
			if c.Type() == "parameter" {
				c = c.ChildByFieldName("type")
			}
			if c != nil {
				sig.Inputs = append(sig.Inputs, p.typeOf(e, c))
			}
		}
		if ret := n.ChildByFieldName("return_type"); ret != nil {
			sig.Output = p.typeOf(e, ret)
		}
		return &host.Type{Kind: host.TyFnPtr, Sig: sig, Name: m.text(n)}
	}
	return other(m.text(n))
}

// named resolves a type name with its generic arguments.
func (p *Program) named(e *env, n *sitter.Node, args []*host.Type) *host.Type {
	text := e.mod.text(n)
	path, ok := p.resolve(e.mod, splitPath(text), 0)
	if !ok {
		return other(text)
	}
	if d := p.declAt(path); d != nil {
		switch d.kind {
		case declAlias:
			target := d.node.ChildByFieldName("type")
			if target == nil {
				return other(text)
			}
			ae := &env{mod: d.mod, generics: make(map[string]*host.Type)}
			for i, g := range d.generics {
				ae.generics[g] = argAt(args, i, g)
			}
			return p.typeOf(ae, target)
		case declStruct, declEnum, declUnion:
			return p.localAdt(d, path, args)
		}
		return other(text)
	}
	return &host.Type{
		Kind: host.TyAdt,
		Adt:  &host.Adt{ID: path.String(), Path: path},
		Args: args,
		Name: display(path, args),
	}
}

func argAt(args []*host.Type, i int, name string) *host.Type {
	if i < len(args) {
		return args[i]
	}
	return other(name)
}

func display(path host.DefPath, args []*host.Type) string {
	if len(args) == 0 {
		return path.String()
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return path.String() + "<" + strings.Join(parts, ", ") + ">"
}

// localAdt instantiates a crate struct, enum or union. Instances are
// cached by path and arguments before their fields are filled, so
// recursive types refer back to the same Adt.
func (p *Program) localAdt(d *decl, path host.DefPath, args []*host.Type) *host.Type {
	adt := &host.Adt{ID: path.String(), Path: path, Doc: d.doc, Attrs: d.attrs}
	t := &host.Type{Kind: host.TyAdt, Adt: adt, Args: args, Name: display(path, args)}
	key := t.Key()
	if cached, ok := p.adtCache[key]; ok {
		return cached
	}
	p.adtCache[key] = t

	fe := &env{mod: d.mod, generics: make(map[string]*host.Type)}
	for i, g := range d.generics {
		fe.generics[g] = argAt(args, i, g)
	}
	body := d.node.ChildByFieldName("body")
	switch d.kind {
	case declEnum:
		adt.Kind = host.AdtEnum
		for _, v := range namedChildren(body) {
			if v.Type() != "enum_variant" {
				continue
			}
			name := v.ChildByFieldName("name")
			if name == nil {
				continue
			}
			variant := host.Variant{Name: d.mod.text(name), Fields: p.fields(fe, v.ChildByFieldName("body"))}
			variant.Doc, variant.Attrs = meta(d.mod, v)
			adt.Variants = append(adt.Variants, variant)
		}
	case declUnion:
		adt.Kind = host.AdtUnion
		adt.Fields = p.fields(fe, body)
	default:
		adt.Kind = host.AdtStruct
		adt.Fields = p.fields(fe, body)
	}
	return t
}

// fields reads a named or positional field list.
func (p *Program) fields(e *env, list *sitter.Node) []host.Field {
	if list == nil {
		return nil
	}
	var out []host.Field
	switch list.Type() {
	case "field_declaration_list":
		for _, c := range namedChildren(list) {
			if c.Type() != "field_declaration" {
				continue
			}
			name, typ := c.ChildByFieldName("name"), c.ChildByFieldName("type")
			if name == nil || typ == nil {
				continue
			}
			f := host.Field{Name: e.mod.text(name), Index: len(out), Type: p.typeOf(e, typ)}
			f.Doc, f.Attrs = meta(e.mod, c)
			out = append(out, f)
		}
	case "ordered_field_declaration_list":
		for _, c := range namedChildren(list) {
			switch c.Type() {
			case "visibility_modifier", "attribute_item", "line_comment", "block_comment":
				continue
			}
			out = append(out, host.Field{Index: len(out), Type: p.typeOf(e, c)})
		}
	}
	return out
}

// opaque reads `impl Trait`. For futures the awaited type is the Output
// binding.
func (p *Program) opaque(e *env, n *sitter.Node) *host.Type {
	t := &host.Type{Kind: host.TyOpaque, Name: e.mod.text(n)}
	tr := n.ChildByFieldName("trait")
	if tr == nil || tr.Type() != "generic_type" {
		return t
	}
	base := tr.ChildByFieldName("type")
	if base == nil || !strings.HasSuffix(e.mod.text(base), "Future") {
		return t
	}
	for _, c := range namedChildren(tr.ChildByFieldName("type_arguments")) {
		if c.Type() != "type_binding" {
			continue
		}
		name, typ := c.ChildByFieldName("name"), c.ChildByFieldName("type")
		if name != nil && typ != nil && e.mod.text(name) == "Output" {
			t.Elem = p.typeOf(e, typ)
		}
	}
	return t
}

// funcFrom builds the declaration of a function item. Methods take self
// as their first input.
func (p *Program) funcFrom(e *env, n *sitter.Node, path host.DefPath, generics []string) *host.Func {
	fe := e.with(generics)
	sig := &host.Signature{}
	for _, c := range namedChildren(n.ChildByFieldName("parameters")) {
		switch c.Type() {
		case "self_parameter":
			self := fe.self
			if self == nil {
				self = other("Self")
			}
			if strings.Contains(fe.mod.text(c), "&") {
				self = refTo(self)
			}
			sig.Inputs = append(sig.Inputs, self)
		case "parameter":
			if typ := c.ChildByFieldName("type"); typ != nil {
				sig.Inputs = append(sig.Inputs, p.typeOf(fe, typ))
			}
		}
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		sig.Output = p.typeOf(fe, ret)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "function_modifiers" && strings.Contains(fe.mod.text(c), "async") {
			sig.Async = true
		}
	}
	if sig.Async {
		out := sig.Output
		if out == nil {
			out = &host.Type{Kind: host.TyTuple, Name: "()"}
		}
		sig.Output = &host.Type{Kind: host.TyOpaque, Elem: out, Name: "impl Future<Output = " + out.String() + ">"}
	}
	return &host.Func{
		ID:      path.String(),
		Path:    path,
		Sig:     sig,
		Generic: n.ChildByFieldName("type_parameters") != nil,
		HasBody: n.ChildByFieldName("body") != nil,
		Span:    fe.mod.span(n),
	}
}

// literalType is the type of an integer or float literal: its suffix, or
// the language default.
func literalType(text string, float bool) (*host.Type, string) {
	digits := strings.ReplaceAll(text, "_", "")
	for _, suffix := range []string{"i128", "u128", "isize", "usize", "i16", "i32", "i64", "u16", "u32", "u64", "f32", "f64", "i8", "u8"} {
		if strings.HasSuffix(digits, suffix) && !(strings.HasPrefix(digits, "0x") && suffix[0] != 'i' && suffix[0] != 'u') {
			return prim(suffix), strings.TrimSuffix(digits, suffix)
		}
	}
	if float {
		return prim("f64"), digits
	}
	return prim("i32"), digits
}

func parseInt(digits string) (int64, bool) {
	v, err := strconv.ParseInt(digits, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(digits, 0, 64)
		if uerr != nil {
			return 0, false
		}
		return int64(u), true
	}
	return v, true
}
