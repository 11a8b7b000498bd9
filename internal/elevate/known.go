package elevate

import (
	"fmt"
	"maps"
	"strings"
)

// Known says how a standard container folds into a built-in TypeValue.
// Generic arguments beyond those the fold consumes (allocators) are ignored.
type Known int

const (
	// KnownUnwrap elevates to its first generic argument (owning pointers).
	KnownUnwrap Known = iota
	KnownOption
	KnownResult
	KnownMap
	KnownList
	KnownString
)

var knownNames = map[string]Known{
	"unwrap": KnownUnwrap,
	"option": KnownOption,
	"result": KnownResult,
	"map":    KnownMap,
	"list":   KnownList,
	"string": KnownString,
}

// ParseKnown parses the config spelling of a fold (unwrap, option, result,
// map, list, string).
func ParseKnown(s string) (Known, error) {
	k, ok := knownNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown type fold %q", s)
	}
	return k, nil
}

func (k Known) String() string {
	for name, v := range knownNames {
		if v == k {
			return name
		}
	}
	return fmt.Sprintf("Known(%d)", int(k))
}

var defaultKnown = map[string]Known{
	// Rust standard library.
	"alloc::boxed::Box":                        KnownUnwrap,
	"alloc::sync::Arc":                         KnownUnwrap,
	"alloc::rc::Rc":                            KnownUnwrap,
	"core::option::Option":                     KnownOption,
	"core::result::Result":                     KnownResult,
	"std::collections::hash::map::HashMap":     KnownMap,
	"alloc::collections::btree::map::BTreeMap": KnownMap,
	"hashbrown::map::HashMap":                  KnownMap,
	"alloc::string::String":                    KnownString,
	"alloc::vec::Vec":                          KnownList,

	// Go builtins and standard library.
	"builtin::slice":             KnownList,
	"builtin::array":             KnownList,
	"builtin::map":               KnownMap,
	"builtin::error":             KnownString,
	"builtin::result":            KnownResult,
	"std::sync::atomic::Pointer": KnownUnwrap,
	"std::database::sql::Null":   KnownOption,
	"std::strings::Builder":      KnownString,
}

// DefaultKnownTypes returns a copy of the built-in known-type table, keyed
// by declaration path (crate::seg::seg).
func DefaultKnownTypes() map[string]Known {
	return maps.Clone(defaultKnown)
}
