package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/gofacts/internal/fact"
)

const (
	locationShape        = "{crate_name: string, path: list of string, impl_block_number: optional int}"
	methodCallQueryShape = "{parent: optional method call query, location: " + locationShape + "}"
)

// ConversionError reports a script value that does not have the shape an
// operation expects.
type ConversionError struct {
	// Field is the offending key path, empty for the value itself.
	Field    string
	Expected string
	Got      string
}

func (e *ConversionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("expected %s, got %s", e.Expected, e.Got)
	}
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Got)
}

func typeName(obj object.Object) string {
	if obj == nil {
		return "nothing"
	}
	return string(obj.Type())
}

func isNil(obj object.Object) bool {
	if obj == nil {
		return true
	}
	_, ok := obj.(*object.NilType)
	return ok
}

func field(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func extractMap(obj object.Object, at, shape string) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, &ConversionError{Field: at, Expected: "a map " + shape, Got: typeName(obj)}
	}
	return m.Value(), nil
}

func toString(obj object.Object, at string) (string, error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", &ConversionError{Field: at, Expected: "string", Got: typeName(obj)}
	}
	return s.Value(), nil
}

func toInt64(obj object.Object, at string) (int64, error) {
	switch v := obj.(type) {
	case *object.Int:
		return v.Value(), nil
	case *object.Float:
		if v.Value() == float64(int64(v.Value())) {
			return int64(v.Value()), nil
		}
	}
	return 0, &ConversionError{Field: at, Expected: "int", Got: typeName(obj)}
}

// UnmarshalLocation decodes a Location map.
func UnmarshalLocation(obj object.Object) (fact.Location, error) {
	return unmarshalLocation(obj, "")
}

func unmarshalLocation(obj object.Object, at string) (fact.Location, error) {
	m, err := extractMap(obj, at, locationShape)
	if err != nil {
		return fact.Location{}, err
	}

	var loc fact.Location
	if loc.CrateName, err = toString(m["crate_name"], field(at, "crate_name")); err != nil {
		return fact.Location{}, err
	}

	pathAt := field(at, "path")
	list, ok := m["path"].(*object.List)
	if !ok {
		return fact.Location{}, &ConversionError{Field: pathAt, Expected: "list of string", Got: typeName(m["path"])}
	}
	items := list.Value()
	loc.Path = make([]string, 0, len(items))
	for i, item := range items {
		seg, err := toString(item, fmt.Sprintf("%s[%d]", pathAt, i))
		if err != nil {
			return fact.Location{}, err
		}
		loc.Path = append(loc.Path, seg)
	}

	if v, ok := m["impl_block_number"]; ok && !isNil(v) {
		n, err := toInt64(v, field(at, "impl_block_number"))
		if err != nil {
			return fact.Location{}, err
		}
		loc.ImplBlockNumber = fact.Impl(int(n))
	}
	return loc, nil
}

// UnmarshalMethodCallQuery decodes a MethodCallQuery map, following parent
// links recursively.
func UnmarshalMethodCallQuery(obj object.Object) (fact.MethodCallQuery, error) {
	return unmarshalMethodCallQuery(obj, "")
}

func unmarshalMethodCallQuery(obj object.Object, at string) (fact.MethodCallQuery, error) {
	m, err := extractMap(obj, at, methodCallQueryShape)
	if err != nil {
		return fact.MethodCallQuery{}, err
	}

	loc, err := unmarshalLocation(m["location"], field(at, "location"))
	if err != nil {
		return fact.MethodCallQuery{}, err
	}
	q := fact.MethodCallQuery{Location: loc}

	if p, ok := m["parent"]; ok && !isNil(p) {
		parent, err := unmarshalMethodCallQuery(p, field(at, "parent"))
		if err != nil {
			return fact.MethodCallQuery{}, err
		}
		q.Parent = &parent
	}
	return q, nil
}

// UnmarshalVersion decodes a version string.
func UnmarshalVersion(obj object.Object) (Version, error) {
	s, err := toString(obj, "")
	if err != nil {
		return Version{}, err
	}
	return ParseVersion(s)
}
