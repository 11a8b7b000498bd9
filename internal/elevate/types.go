package elevate

import (
	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// visited holds the (declaration, generic arguments) keys on the current
// recursion stack.
type visited map[string]struct{}

var scalars = map[host.TypeKind]fact.Scalar{
	host.TyBool:  fact.Bool,
	host.TyI8:    fact.I8,
	host.TyI16:   fact.I16,
	host.TyI32:   fact.I32,
	host.TyI64:   fact.I64,
	host.TyI128:  fact.I128,
	host.TyIsize: fact.Isize,
	host.TyU8:    fact.U8,
	host.TyU16:   fact.U16,
	host.TyU32:   fact.U32,
	host.TyU64:   fact.U64,
	host.TyU128:  fact.U128,
	host.TyUsize: fact.Usize,
	host.TyF32:   fact.F32,
	host.TyF64:   fact.F64,
	host.TyStr:   fact.String,
}

// ElevateType converts t. It reports false for constructs the fact model
// cannot represent; a diagnostic explains why.
func (e *Elevator) ElevateType(t *host.Type) (fact.TypeValue, bool) {
	return e.elevateType(t, visited{})
}

// ElevateFunction builds the full descriptor of a function declaration.
func (e *Elevator) ElevateFunction(f *host.Func) *fact.FunctionTypeValue {
	return e.function(f, visited{})
}

func (e *Elevator) elevateType(t *host.Type, seen visited) (fact.TypeValue, bool) {
	if t == nil {
		return nil, false
	}
	if s, ok := scalars[t.Kind]; ok {
		return s, true
	}

	switch t.Kind {
	case host.TyRef:
		return e.elevateType(t.Elem, seen)

	case host.TyTuple:
		elems := make([]fact.TypeValue, 0, len(t.Elems))
		for _, el := range t.Elems {
			if v, ok := e.elevateType(el, seen); ok {
				elems = append(elems, v)
			}
		}
		return fact.TupleType{Elems: elems}, true

	case host.TyAdt:
		return e.elevateAdt(t, seen)

	case host.TyClosure, host.TyFnPtr:
		if t.Sig == nil {
			e.fatalf("expected a closure signature for `%s`", t)
		}
		return e.closure(t.Sig, seen), true

	case host.TyFnDef:
		if t.Func == nil {
			e.warnf("function type `%s` has no declaration", t)
			return nil, false
		}
		f := e.function(t.Func, seen)
		f.ItemID = ""
		return f, true

	default:
		e.warnf("type `%s` cannot be elevated", t)
		return nil, false
	}
}

func (e *Elevator) elevateAdt(t *host.Type, seen visited) (fact.TypeValue, bool) {
	adt := t.Adt
	if adt == nil {
		e.warnf("type `%s` has no declaration", t)
		return nil, false
	}
	if k, ok := e.known[adt.Path.String()]; ok {
		return e.fold(t, k, seen)
	}

	loc := e.Location(adt.Path)
	key := t.Key()
	if _, ok := seen[key]; ok {
		return fact.RecursiveRef{Location: loc}, true
	}
	if adt.Kind == host.AdtUnion {
		e.diag.Error("union types are not supported: `" + loc.String() + "`")
		return nil, false
	}

	seen[key] = struct{}{}
	defer delete(seen, key)

	switch adt.Kind {
	case host.AdtEnum:
		ev := &fact.EnumTypeValue{
			Location:   loc,
			Variants:   make([]fact.EnumTypeValueVariant, 0, len(adt.Variants)),
			DocComment: adt.Doc,
			Attributes: adt.Attrs,
		}
		for _, v := range adt.Variants {
			variant := fact.EnumTypeValueVariant{
				Name:       v.Name,
				DocComment: v.Doc,
				Attributes: v.Attrs,
			}
			if len(v.Fields) > 0 {
				variant.Payload = &fact.StructTypeValue{
					Location: loc,
					Fields:   e.fields(loc, v.Fields, seen),
				}
			}
			ev.Variants = append(ev.Variants, variant)
		}
		return ev, true
	default:
		return &fact.StructTypeValue{
			Location:   loc,
			Fields:     e.fields(loc, adt.Fields, seen),
			DocComment: adt.Doc,
			Attributes: adt.Attrs,
		}, true
	}
}

// fold elevates a known container through its generic arguments.
func (e *Elevator) fold(t *host.Type, k Known, seen visited) (fact.TypeValue, bool) {
	arg := func(i int) (fact.TypeValue, bool) {
		if i >= len(t.Args) {
			e.warnf("`%s` is missing generic argument %d", t, i)
			return nil, false
		}
		return e.elevateType(t.Args[i], seen)
	}

	switch k {
	case KnownString:
		return fact.String, true
	case KnownUnwrap:
		return arg(0)
	case KnownOption:
		v, ok := arg(0)
		if !ok {
			return nil, false
		}
		return fact.OptionType{Elem: v}, true
	case KnownList:
		v, ok := arg(0)
		if !ok {
			return nil, false
		}
		return fact.ListType{Elem: v}, true
	case KnownMap:
		key, ok := arg(0)
		if !ok {
			return nil, false
		}
		val, ok := arg(1)
		if !ok {
			return nil, false
		}
		return fact.MapType{Key: key, Value: val}, true
	case KnownResult:
		okv, ok := arg(0)
		if !ok {
			return nil, false
		}
		errv, ok := arg(1)
		if !ok {
			return nil, false
		}
		return fact.ResultType{Ok: okv, Err: errv}, true
	default:
		e.warnf("unknown fold %s for `%s`", k, t)
		return nil, false
	}
}

func (e *Elevator) fields(owner fact.Location, fs []host.Field, seen visited) []fact.StructTypeValueField {
	out := make([]fact.StructTypeValueField, 0, len(fs))
	for _, f := range fs {
		name := fact.IndexField(f.Index)
		if f.Name != "" {
			name = fact.NamedField(f.Name)
		}
		v, ok := e.elevateType(f.Type, seen)
		if !ok {
			e.warnf("skipping field `%s` of `%s`: its type cannot be elevated", name, owner)
			continue
		}
		out = append(out, fact.StructTypeValueField{
			Name:       name,
			Type:       v,
			DocComment: f.Doc,
			Attributes: f.Attrs,
		})
	}
	return out
}

func (e *Elevator) closure(sig *host.Signature, seen visited) fact.ClosureTypeValue {
	c := fact.ClosureTypeValue{Args: make([]fact.TypeValue, 0, len(sig.Inputs))}
	for _, in := range sig.Inputs {
		if v, ok := e.elevateType(in, seen); ok {
			c.Args = append(c.Args, v)
		}
	}
	c.Return = e.output(sig, seen)
	return c
}

func (e *Elevator) function(f *host.Func, seen visited) *fact.FunctionTypeValue {
	loc := e.Location(f.Path)
	sig := f.Sig
	if sig == nil {
		sig = &host.Signature{}
	}

	args := make([]fact.StructTypeValueField, 0, len(sig.Inputs))
	for i, in := range sig.Inputs {
		v, ok := e.elevateType(in, seen)
		if !ok {
			e.warnf("skipping argument %d of `%s`: its type cannot be elevated", i, loc)
			continue
		}
		args = append(args, fact.StructTypeValueField{Name: fact.IndexField(i), Type: v})
	}

	return &fact.FunctionTypeValue{
		Location: loc,
		ArgsStruct: fact.StructTypeValue{
			Location:   loc,
			Fields:     args,
			DocComment: f.Doc,
			Attributes: f.Attrs,
		},
		ReturnType: e.output(sig, seen),
		ItemID:     f.ID,
		Attributes: f.Attrs,
		DocComment: f.Doc,
		IsAsync:    sig.Async,
	}
}

// output elevates a signature's result, unwrapping the future of async
// callables. A result that cannot be elevated is reported as absent.
func (e *Elevator) output(sig *host.Signature, seen visited) fact.TypeValue {
	if sig.Output == nil {
		return nil
	}
	out := sig.Output
	if sig.Async {
		out = e.peelFuture(out)
	}
	v, ok := e.elevateType(out, seen)
	if !ok {
		return nil
	}
	return v
}

func (e *Elevator) peelFuture(t *host.Type) *host.Type {
	switch {
	case t.Kind == host.TyOpaque && t.Elem != nil && t.Elem.Kind == host.TyCoroutine:
		return e.peelFuture(t.Elem)
	case (t.Kind == host.TyOpaque || t.Kind == host.TyCoroutine) && t.Elem != nil:
		return t.Elem
	}
	e.fatalf("expected coroutine type, found `%s`", t)
	return nil
}
