package runtime

import (
	"testing"

	"github.com/risor-io/risor/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/gofacts/internal/fact"
)

func TestLocationRoundTrip(t *testing.T) {
	t.Parallel()

	for _, loc := range []fact.Location{
		{CrateName: "app", Path: []string{"server", "Handle"}},
		{CrateName: "app", Path: []string{"S", "m"}, ImplBlockNumber: fact.Impl(4)},
		{CrateName: "std", Path: []string{}},
	} {
		got, err := UnmarshalLocation(MarshalLocation(loc))
		require.NoError(t, err)
		assert.True(t, loc.Equal(got), "round trip of %s", loc)
	}
}

func TestMethodCallQueryRoundTrip(t *testing.T) {
	t.Parallel()

	q := fact.MethodCallQuery{
		Location: fact.Location{CrateName: "app", Path: []string{"B", "baz"}},
		Parent: &fact.MethodCallQuery{
			Location: fact.Location{CrateName: "app", Path: []string{"B", "bar"}, ImplBlockNumber: fact.Impl(0)},
			Parent:   &fact.MethodCallQuery{Location: fact.Location{CrateName: "app", Path: []string{"B", "foo"}}},
		},
	}
	got, err := UnmarshalMethodCallQuery(MarshalMethodCallQuery(q))
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestUnmarshalLocationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      object.Object
		wantErr string
	}{
		{"not a map", object.NewString("app"), "expected a map"},
		{"missing crate", object.NewMap(map[string]object.Object{"path": object.NewList(nil)}), "crate_name: expected string, got nothing"},
		{"bad segment", object.NewMap(map[string]object.Object{
			"crate_name": object.NewString("app"),
			"path":       object.NewList([]object.Object{object.NewInt(1)}),
		}), "path[0]: expected string, got int"},
		{"bad impl", object.NewMap(map[string]object.Object{
			"crate_name":        object.NewString("app"),
			"path":              object.NewList(nil),
			"impl_block_number": object.NewString("one"),
		}), "impl_block_number: expected int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalLocation(tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnmarshalMethodCallQueryNamesNestedField(t *testing.T) {
	t.Parallel()

	in := object.NewMap(map[string]object.Object{
		"location": MarshalLocation(fact.Location{CrateName: "app", Path: []string{"x"}}),
		"parent":   object.NewMap(map[string]object.Object{"location": object.NewInt(3)}),
	})
	_, err := UnmarshalMethodCallQuery(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent.location: expected a map")
}

func pairName(t *testing.T, obj object.Object) (string, object.Object) {
	t.Helper()
	m, ok := obj.(*object.Map)
	require.True(t, ok, "expected map, got %s", obj.Type())
	v := m.Value()
	return v["variant_name"].(*object.String).Value(), v["variant_data"]
}

func TestMarshalTypeValueTaggedPairs(t *testing.T) {
	t.Parallel()

	name, data := pairName(t, MarshalTypeValue(fact.U64))
	assert.Equal(t, "U64", name)
	assert.Equal(t, object.Nil, data)

	name, data = pairName(t, MarshalTypeValue(fact.MapType{Key: fact.String, Value: fact.Bool}))
	assert.Equal(t, "Map", name)
	items := data.(*object.List).Value()
	require.Len(t, items, 2)
	k, _ := pairName(t, items[0])
	v, _ := pairName(t, items[1])
	assert.Equal(t, "String", k)
	assert.Equal(t, "Bool", v)

	loc := fact.Location{CrateName: "app", Path: []string{"Node"}}
	name, data = pairName(t, MarshalTypeValue(fact.RecursiveRef{Location: loc}))
	assert.Equal(t, "RecursiveRef", name)
	back, err := UnmarshalLocation(data)
	require.NoError(t, err)
	assert.True(t, loc.Equal(back))

	enum := &fact.EnumTypeValue{
		Location: loc,
		Variants: []fact.EnumTypeValueVariant{
			{Name: "Empty"},
			{Name: "Full", Payload: &fact.StructTypeValue{Location: loc}, Attributes: []fact.Attribute{{Name: "serde", Value: `rename = "full"`}}},
		},
	}
	name, data = pairName(t, MarshalTypeValue(enum))
	assert.Equal(t, "Enum", name)
	variants := data.(*object.Map).Value()["variants"].(*object.List).Value()
	require.Len(t, variants, 2)
	assert.Equal(t, object.Nil, variants[0].(*object.Map).Value()["value"])
	attr := variants[1].(*object.Map).Value()["attributes"].(*object.List).Value()[0].(*object.Map).Value()
	assert.Equal(t, `rename = "full"`, attr["value_str"].(*object.String).Value())
}

func TestMarshalValue(t *testing.T) {
	t.Parallel()

	name, data := pairName(t, MarshalValue(fact.FloatLiteral(1.5)))
	assert.Equal(t, "FloatLiteral", name)
	assert.Equal(t, 1.5, data.(*object.Float).Value())

	name, data = pairName(t, MarshalValue(fact.StaticType{Type: fact.ClosureTypeValue{Args: []fact.TypeValue{fact.I8}}}))
	assert.Equal(t, "Type", name)
	inner, closure := pairName(t, data)
	assert.Equal(t, "Closure", inner)
	assert.Equal(t, object.Nil, closure.(*object.Map).Value()["return_type"])
}
