package runtime

import (
	"github.com/risor-io/risor/object"

	"github.com/jward/gofacts/internal/fact"
)

// Product types marshal to maps keyed by field name. Unions marshal to
// tagged pairs: {"variant_name": <name>, "variant_data": <payload or nil>}.

func taggedPair(name string, data object.Object) *object.Map {
	if data == nil {
		data = object.Nil
	}
	return object.NewMap(map[string]object.Object{
		"variant_name": object.NewString(name),
		"variant_data": data,
	})
}

func optionalString(s string) object.Object {
	if s == "" {
		return object.Nil
	}
	return object.NewString(s)
}

func listOf[T any](xs []T, fn func(T) object.Object) *object.List {
	items := make([]object.Object, 0, len(xs))
	for _, x := range xs {
		items = append(items, fn(x))
	}
	return object.NewList(items)
}

// MarshalLocation encodes a Location as {crate_name, path, impl_block_number}.
func MarshalLocation(l fact.Location) object.Object {
	impl := object.Object(object.Nil)
	if l.ImplBlockNumber != nil {
		impl = object.NewInt(int64(*l.ImplBlockNumber))
	}
	return object.NewMap(map[string]object.Object{
		"crate_name":        object.NewString(l.CrateName),
		"path":              listOf(l.Path, func(s string) object.Object { return object.NewString(s) }),
		"impl_block_number": impl,
	})
}

// MarshalMethodCallQuery encodes a query as {parent, location}.
func MarshalMethodCallQuery(q fact.MethodCallQuery) object.Object {
	parent := object.Object(object.Nil)
	if q.Parent != nil {
		parent = MarshalMethodCallQuery(*q.Parent)
	}
	return object.NewMap(map[string]object.Object{
		"parent":   parent,
		"location": MarshalLocation(q.Location),
	})
}

func marshalAttribute(a fact.Attribute) object.Object {
	return object.NewMap(map[string]object.Object{
		"name":      object.NewString(a.Name),
		"value_str": optionalString(a.Value),
	})
}

func marshalAttributes(as []fact.Attribute) object.Object {
	return listOf(as, marshalAttribute)
}

func marshalFieldName(n fact.FieldName) object.Object {
	if n.Named {
		return taggedPair("Name", object.NewString(n.Name))
	}
	return taggedPair("Index", object.NewInt(int64(n.Index)))
}

// MarshalTypeValue encodes a TypeValue as a tagged pair. Scalars carry no
// data; Map and Result carry a two-element list.
func MarshalTypeValue(t fact.TypeValue) object.Object {
	if t == nil {
		return object.Nil
	}
	name := t.Kind().String()
	switch v := t.(type) {
	case fact.Scalar:
		return taggedPair(name, nil)
	case fact.MapType:
		return taggedPair(name, object.NewList([]object.Object{MarshalTypeValue(v.Key), MarshalTypeValue(v.Value)}))
	case fact.ListType:
		return taggedPair(name, MarshalTypeValue(v.Elem))
	case fact.ResultType:
		return taggedPair(name, object.NewList([]object.Object{MarshalTypeValue(v.Ok), MarshalTypeValue(v.Err)}))
	case fact.OptionType:
		return taggedPair(name, MarshalTypeValue(v.Elem))
	case fact.TupleType:
		return taggedPair(name, listOf(v.Elems, MarshalTypeValue))
	case *fact.StructTypeValue:
		return taggedPair(name, MarshalStruct(v))
	case *fact.EnumTypeValue:
		return taggedPair(name, marshalEnum(v))
	case fact.ClosureTypeValue:
		return taggedPair(name, object.NewMap(map[string]object.Object{
			"args":        listOf(v.Args, MarshalTypeValue),
			"return_type": MarshalTypeValue(v.Return),
		}))
	case *fact.FunctionTypeValue:
		return taggedPair(name, MarshalFunction(v))
	case fact.RecursiveRef:
		return taggedPair(name, MarshalLocation(v.Location))
	default:
		return object.Errorf("runtime: cannot marshal type value %T", t)
	}
}

// MarshalStruct encodes {location, fields, doc_comment, attributes}.
func MarshalStruct(s *fact.StructTypeValue) object.Object {
	fields := listOf(s.Fields, func(f fact.StructTypeValueField) object.Object {
		return object.NewMap(map[string]object.Object{
			"name":        marshalFieldName(f.Name),
			"value":       MarshalTypeValue(f.Type),
			"doc_comment": optionalString(f.DocComment),
			"attributes":  marshalAttributes(f.Attributes),
		})
	})
	return object.NewMap(map[string]object.Object{
		"location":    MarshalLocation(s.Location),
		"fields":      fields,
		"doc_comment": optionalString(s.DocComment),
		"attributes":  marshalAttributes(s.Attributes),
	})
}

func marshalEnum(e *fact.EnumTypeValue) object.Object {
	variants := listOf(e.Variants, func(v fact.EnumTypeValueVariant) object.Object {
		return object.NewMap(map[string]object.Object{
			"name":        object.NewString(v.Name),
			"value":       MarshalTypeValue(v.Payload),
			"doc_comment": optionalString(v.DocComment),
			"attributes":  marshalAttributes(v.Attributes),
		})
	})
	return object.NewMap(map[string]object.Object{
		"location":    MarshalLocation(e.Location),
		"variants":    variants,
		"doc_comment": optionalString(e.DocComment),
		"attributes":  marshalAttributes(e.Attributes),
	})
}

// MarshalFunction encodes a function descriptor as a record.
func MarshalFunction(f *fact.FunctionTypeValue) object.Object {
	return object.NewMap(map[string]object.Object{
		"location":    MarshalLocation(f.Location),
		"args_struct": MarshalStruct(&f.ArgsStruct),
		"return_type": MarshalTypeValue(f.ReturnType),
		"item_id":     object.NewString(f.ItemID),
		"attributes":  marshalAttributes(f.Attributes),
		"doc_comment": optionalString(f.DocComment),
		"is_async":    object.NewBool(f.IsAsync),
	})
}

// MarshalValue encodes an elevated expression as a tagged pair.
func MarshalValue(v fact.Value) object.Object {
	if v == nil {
		return object.Nil
	}
	name := v.ValueKind().String()
	switch x := v.(type) {
	case fact.StringLiteral:
		return taggedPair(name, object.NewString(string(x)))
	case fact.IntegerLiteral:
		return taggedPair(name, object.NewInt(int64(x)))
	case fact.FloatLiteral:
		return taggedPair(name, object.NewFloat(float64(x)))
	case *fact.FunctionCall:
		return taggedPair(name, MarshalFunctionCall(x))
	case *fact.MethodCall:
		return taggedPair(name, MarshalMethodCall(x))
	case fact.StaticType:
		return taggedPair(name, MarshalTypeValue(x.Type))
	default:
		return object.Errorf("runtime: cannot marshal value %T", v)
	}
}

// MarshalFunctionCall encodes {location, args, in_item_id}.
func MarshalFunctionCall(c *fact.FunctionCall) object.Object {
	return object.NewMap(map[string]object.Object{
		"location":   MarshalLocation(c.Location),
		"args":       listOf(c.Args, MarshalValue),
		"in_item_id": object.NewString(c.InItemID),
	})
}

// MarshalMethodCall encodes {origin, args, in_item_id}.
func MarshalMethodCall(c *fact.MethodCall) object.Object {
	return object.NewMap(map[string]object.Object{
		"origin":     MarshalMethodCallQuery(c.Origin),
		"args":       listOf(c.Args, MarshalValue),
		"in_item_id": object.NewString(c.InItemID),
	})
}

// MarshalTraitImpl encodes {trait_location, for_type, functions}.
func MarshalTraitImpl(t *fact.TraitImpl) object.Object {
	return object.NewMap(map[string]object.Object{
		"trait_location": MarshalLocation(t.TraitLocation),
		"for_type":       MarshalTypeValue(t.ForType),
		"functions":      listOf(t.Functions, MarshalFunction),
	})
}
