package gohost

import (
	"go/types"
	"sort"
	"strconv"
	"strings"

	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// BuiltinCrate holds the synthetic declarations the known-type table folds:
// slice, array, map, error and result.
const BuiltinCrate = "builtin"

var errorType = types.Universe.Lookup("error").Type()

var basicKinds = map[types.BasicKind]host.TypeKind{
	types.Bool:          host.TyBool,
	types.UntypedBool:   host.TyBool,
	types.Int:           host.TyIsize,
	types.UntypedInt:    host.TyIsize,
	types.Int8:          host.TyI8,
	types.Int16:         host.TyI16,
	types.Int32:         host.TyI32,
	types.UntypedRune:   host.TyI32,
	types.Int64:         host.TyI64,
	types.Uint:          host.TyUsize,
	types.Uintptr:       host.TyUsize,
	types.Uint8:         host.TyU8,
	types.Uint16:        host.TyU16,
	types.Uint32:        host.TyU32,
	types.Uint64:        host.TyU64,
	types.Float32:       host.TyF32,
	types.Float64:       host.TyF64,
	types.UntypedFloat:  host.TyF64,
	types.String:        host.TyStr,
	types.UntypedString: host.TyStr,
}

// convert maps a go/types type onto a host type. Results are cached by
// type string; named types are cached before their fields are converted,
// which is what terminates recursive declarations.
func (p *Program) convert(t types.Type) *host.Type {
	if t == nil {
		return nil
	}
	t = types.Unalias(t)
	key := types.TypeString(t, nil)
	if ht, ok := p.typeCache[key]; ok {
		return ht
	}
	if types.Identical(t, errorType) {
		return p.builtin(key, "error")
	}

	switch t := t.(type) {
	case *types.Basic:
		ht := p.basic(t, key)
		p.typeCache[key] = ht
		return ht

	case *types.Pointer:
		ht := &host.Type{Kind: host.TyRef, Name: key}
		p.typeCache[key] = ht
		ht.Elem = p.convert(t.Elem())
		return ht

	case *types.Slice:
		return p.builtin(key, "slice", t.Elem())
	case *types.Array:
		return p.builtin(key, "array", t.Elem())
	case *types.Map:
		return p.builtin(key, "map", t.Key(), t.Elem())

	case *types.Signature:
		ht := &host.Type{Kind: host.TyFnPtr, Name: key}
		p.typeCache[key] = ht
		ht.Sig = p.signature(t, false)
		return ht

	case *types.Named:
		return p.named(t, key)

	default:
		// Channels, interfaces, anonymous structs and type parameters have
		// no fact representation.
		ht := &host.Type{Kind: host.TyOther, Name: key}
		p.typeCache[key] = ht
		return ht
	}
}

func (p *Program) basic(t *types.Basic, name string) *host.Type {
	k, ok := basicKinds[t.Kind()]
	if !ok {
		k = host.TyOther
	}
	return &host.Type{Kind: k, Name: name}
}

// builtin returns a synthetic ADT instance such as builtin::slice[int].
func (p *Program) builtin(key, name string, args ...types.Type) *host.Type {
	ht := p.builtinOf(key, name)
	for _, a := range args {
		ht.Args = append(ht.Args, p.convert(a))
	}
	return ht
}

func (p *Program) builtinOf(key, name string, args ...*host.Type) *host.Type {
	ht := &host.Type{
		Kind: host.TyAdt,
		Adt: &host.Adt{
			ID:   BuiltinCrate + "::" + name,
			Path: host.Path(BuiltinCrate, name),
			Kind: host.AdtStruct,
		},
		Args: args,
		Name: key,
	}
	if key != "" {
		p.typeCache[key] = ht
	}
	return ht
}

func (p *Program) named(t *types.Named, key string) *host.Type {
	obj := t.Obj()
	if obj.Pkg() == nil {
		ht := &host.Type{Kind: host.TyOther, Name: key}
		p.typeCache[key] = ht
		return ht
	}

	switch u := t.Underlying().(type) {
	case *types.Struct:
		ht := &host.Type{Kind: host.TyAdt, Name: key}
		p.typeCache[key] = ht
		doc := p.docs[obj]
		adt := &host.Adt{
			ID:    types.TypeString(t.Origin(), nil),
			Path:  p.objPath(obj),
			Kind:  host.AdtStruct,
			Doc:   doc.text,
			Attrs: doc.attrs,
		}
		ht.Adt = adt
		for i := 0; i < t.TypeArgs().Len(); i++ {
			ht.Args = append(ht.Args, p.convert(t.TypeArgs().At(i)))
		}
		local := p.isLocal(obj.Pkg())
		origin, _ := t.Origin().Underlying().(*types.Struct)
		for i := 0; i < u.NumFields(); i++ {
			f := u.Field(i)
			if !local && !f.Exported() {
				continue
			}
			var fdoc docInfo
			if origin != nil && i < origin.NumFields() {
				fdoc = p.docs[origin.Field(i)]
			}
			adt.Fields = append(adt.Fields, host.Field{
				Name:  f.Name(),
				Index: len(adt.Fields),
				Type:  p.convert(f.Type()),
				Doc:   fdoc.text,
				Attrs: append(parseTag(u.Tag(i)), fdoc.attrs...),
			})
		}
		return ht

	case *types.Basic:
		consts := enumConsts(t)
		if len(consts) == 0 {
			ht := p.basic(u, key)
			p.typeCache[key] = ht
			return ht
		}
		ht := &host.Type{Kind: host.TyAdt, Name: key}
		p.typeCache[key] = ht
		doc := p.docs[obj]
		adt := &host.Adt{
			ID:    types.TypeString(t.Origin(), nil),
			Path:  p.objPath(obj),
			Kind:  host.AdtEnum,
			Doc:   doc.text,
			Attrs: doc.attrs,
		}
		for _, c := range consts {
			cdoc := p.docs[c]
			adt.Variants = append(adt.Variants, host.Variant{Name: c.Name(), Doc: cdoc.text, Attrs: cdoc.attrs})
		}
		ht.Adt = adt
		return ht

	case *types.Interface:
		ht := &host.Type{Kind: host.TyOther, Name: key}
		p.typeCache[key] = ht
		return ht

	default:
		// Named slices, maps, pointers and func types elevate as their
		// underlying type.
		ht := p.convert(u)
		p.typeCache[key] = ht
		return ht
	}
}

// enumConsts returns the constants declared with type t in t's package, in
// declaration order.
func enumConsts(t *types.Named) []*types.Const {
	scope := t.Obj().Pkg().Scope()
	var out []*types.Const
	for _, name := range scope.Names() {
		c, ok := scope.Lookup(name).(*types.Const)
		if ok && types.Identical(c.Type(), t) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos() < out[j].Pos() })
	return out
}

// signature converts a Go signature. withRecv puts the receiver first
// among the inputs. Results become nil, a single type, builtin::result
// when the last result is an error, or a tuple.
func (p *Program) signature(sig *types.Signature, withRecv bool) *host.Signature {
	hs := &host.Signature{}
	if withRecv && sig.Recv() != nil {
		hs.Inputs = append(hs.Inputs, p.convert(sig.Recv().Type()))
	}
	for i := 0; i < sig.Params().Len(); i++ {
		hs.Inputs = append(hs.Inputs, p.convert(sig.Params().At(i).Type()))
	}

	res := sig.Results()
	n := res.Len()
	switch {
	case n == 0:
	case n == 1:
		hs.Output = p.convert(res.At(0).Type())
	case types.Identical(res.At(n-1).Type(), errorType):
		var ok *host.Type
		if n == 2 {
			ok = p.convert(res.At(0).Type())
		} else {
			ok = p.tuple(res, n-1)
		}
		hs.Output = p.builtinOf("", "result", ok, p.convert(errorType))
		hs.Output.Name = types.TypeString(res, nil)
	default:
		hs.Output = p.tuple(res, n)
	}
	return hs
}

func (p *Program) tuple(res *types.Tuple, n int) *host.Type {
	ht := &host.Type{Kind: host.TyTuple}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		ht.Elems = append(ht.Elems, p.convert(res.At(i).Type()))
		names[i] = types.TypeString(res.At(i).Type(), nil)
	}
	ht.Name = "(" + strings.Join(names, ", ") + ")"
	return ht
}

// objPath is the declaration path of a package-level object.
func (p *Program) objPath(obj types.Object) host.DefPath {
	crate, segs := p.mod.crateOf(obj.Pkg().Path())
	return host.Path(crate, append(segs, obj.Name())...)
}

// funcPath is the declaration path of a function or method. Methods sit
// under their receiver's type; Go has no impl block marker.
func (p *Program) funcPath(fn *types.Func) (host.DefPath, bool) {
	fn = fn.Origin()
	sig, ok := fn.Type().(*types.Signature)
	if !ok {
		return host.DefPath{}, false
	}
	if recv := sig.Recv(); recv != nil {
		rt := types.Unalias(recv.Type())
		if ptr, ok := rt.(*types.Pointer); ok {
			rt = types.Unalias(ptr.Elem())
		}
		named, ok := rt.(*types.Named)
		if !ok || named.Obj().Pkg() == nil {
			return host.DefPath{}, false
		}
		return p.objPath(named.Origin().Obj()).Child(fn.Name()), true
	}
	if fn.Pkg() == nil {
		return host.DefPath{}, false
	}
	return p.objPath(fn), true
}

func (p *Program) isLocal(pkg *types.Package) bool {
	_, ok := cutModule(pkg.Path(), p.mod.path)
	return ok
}

// parseTag splits a struct tag into one attribute per key, in order.
func parseTag(tag string) []fact.Attribute {
	var out []fact.Attribute
	for tag != "" {
		i := 0
		for i < len(tag) && tag[i] == ' ' {
			i++
		}
		tag = tag[i:]
		if tag == "" {
			break
		}
		i = 0
		for i < len(tag) && tag[i] > ' ' && tag[i] != ':' && tag[i] != '"' && tag[i] != 0x7f {
			i++
		}
		if i == 0 || i+1 >= len(tag) || tag[i] != ':' || tag[i+1] != '"' {
			break
		}
		name := tag[:i]
		tag = tag[i+1:]

		i = 1
		for i < len(tag) && tag[i] != '"' {
			if tag[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(tag) {
			break
		}
		value, err := strconv.Unquote(tag[:i+1])
		if err != nil {
			break
		}
		tag = tag[i+1:]
		out = append(out, fact.Attribute{Name: name, Value: value})
	}
	return out
}
