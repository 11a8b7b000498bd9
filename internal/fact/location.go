// Package fact defines the portable fact model produced by elevation and
// consumed by queries and scripts. Every type here is plain data.
package fact

import (
	"slices"
	"strconv"
	"strings"
)

// Location identifies a declaration within a compiled program.
// ImplBlockNumber disambiguates impl blocks (method sets) that share a
// module path; nil means the declaration is not inside an impl block.
type Location struct {
	CrateName       string
	Path            []string
	ImplBlockNumber *int
}

// Equal reports structural equality over all three fields.
func (l Location) Equal(o Location) bool {
	if l.CrateName != o.CrateName || !slices.Equal(l.Path, o.Path) {
		return false
	}
	if (l.ImplBlockNumber == nil) != (o.ImplBlockNumber == nil) {
		return false
	}
	return l.ImplBlockNumber == nil || *l.ImplBlockNumber == *o.ImplBlockNumber
}

// Last returns the final path segment, or "" for an empty path.
func (l Location) Last() string {
	if len(l.Path) == 0 {
		return ""
	}
	return l.Path[len(l.Path)-1]
}

// String renders the location as crate::a::b{impl#N}.
func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.CrateName)
	for _, seg := range l.Path {
		b.WriteString("::")
		b.WriteString(seg)
	}
	if l.ImplBlockNumber != nil {
		b.WriteString("{impl#")
		b.WriteString(strconv.Itoa(*l.ImplBlockNumber))
		b.WriteString("}")
	}
	return b.String()
}

// Impl returns a pointer to n, for building locations inline.
func Impl(n int) *int { return &n }

// MethodCallQuery matches calls to Location, optionally only when the
// receiver is itself a call matching Parent.
type MethodCallQuery struct {
	Parent   *MethodCallQuery
	Location Location
}

// Attribute is a name/value annotation attached to a declaration
// (a Go struct tag or directive, a Rust #[...] attribute).
type Attribute struct {
	Name  string
	Value string
}
