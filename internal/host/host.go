// Package host defines the oracle interface a compiler front end provides
// to elevation and queries: resolved types, declaration paths, and a walk
// over the program's items and expressions.
package host

import (
	"fmt"
	"strings"

	"github.com/jward/gofacts/internal/fact"
)

// Span is a source position.
type Span struct {
	File string
	Line int
	Col  int
}

func (s Span) String() string {
	if s.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// DefPathSegment is one component of a declaration path: either a name or
// an impl block marker carrying the block's per-module index.
type DefPathSegment struct {
	Name  string
	Impl  bool
	Index int
}

// DefPath is the fully-qualified declaration path the host resolves a node to.
type DefPath struct {
	Crate    string
	Segments []DefPathSegment
}

// Path builds a DefPath from plain name segments.
func Path(crate string, names ...string) DefPath {
	p := DefPath{Crate: crate}
	for _, n := range names {
		p.Segments = append(p.Segments, DefPathSegment{Name: n})
	}
	return p
}

// WithImpl returns a copy of p with an impl block marker appended.
func (p DefPath) WithImpl(index int) DefPath {
	segs := make([]DefPathSegment, len(p.Segments), len(p.Segments)+1)
	copy(segs, p.Segments)
	return DefPath{Crate: p.Crate, Segments: append(segs, DefPathSegment{Impl: true, Index: index})}
}

// Child returns a copy of p with name appended.
func (p DefPath) Child(name string) DefPath {
	segs := make([]DefPathSegment, len(p.Segments), len(p.Segments)+1)
	copy(segs, p.Segments)
	return DefPath{Crate: p.Crate, Segments: append(segs, DefPathSegment{Name: name})}
}

func (p DefPath) String() string {
	var b strings.Builder
	b.WriteString(p.Crate)
	for _, s := range p.Segments {
		b.WriteString("::")
		if s.Impl {
			fmt.Fprintf(&b, "{impl#%d}", s.Index)
			continue
		}
		b.WriteString(s.Name)
	}
	return b.String()
}

// TypeKind classifies a resolved type.
type TypeKind int

const (
	TyBool TypeKind = iota
	TyI8
	TyI16
	TyI32
	TyI64
	TyI128
	TyIsize
	TyU8
	TyU16
	TyU32
	TyU64
	TyU128
	TyUsize
	TyF32
	TyF64
	TyStr
	TyRef
	TyTuple
	TyAdt
	TyClosure
	TyFnPtr
	TyFnDef
	TyOpaque
	TyCoroutine
	TyOther
)

// Type is a resolved type. Which fields are set depends on Kind:
//
//	TyRef                 Elem is the referent
//	TyOpaque, TyCoroutine Elem is the awaited output, when known
//	TyTuple               Elems
//	TyAdt                 Adt and Args
//	TyClosure, TyFnPtr    Sig
//	TyFnDef               Func
type Type struct {
	Kind  TypeKind
	Elem  *Type
	Elems []*Type
	Adt   *Adt
	Args  []*Type
	Sig   *Signature
	Func  *Func

	// Name is a display form used in diagnostics.
	Name string
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Name != "" {
		return t.Name
	}
	if t.Kind == TyAdt && t.Adt != nil {
		return t.Adt.Path.String()
	}
	return fmt.Sprintf("type(%d)", t.Kind)
}

// Key identifies a type by declaration identity and generic arguments.
// Field types are not part of the key, so it is finite for recursive types.
func (t *Type) Key() string {
	if t == nil {
		return "_"
	}
	switch t.Kind {
	case TyAdt:
		var b strings.Builder
		b.WriteString(t.Adt.ID)
		if len(t.Args) > 0 {
			b.WriteByte('[')
			for i, a := range t.Args {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(a.Key())
			}
			b.WriteByte(']')
		}
		return b.String()
	case TyRef, TyOpaque, TyCoroutine:
		return fmt.Sprintf("%d(%s)", t.Kind, t.Elem.Key())
	case TyTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.Key()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return t.String()
	}
}

// AdtKind distinguishes user-defined nominal types.
type AdtKind int

const (
	AdtStruct AdtKind = iota
	AdtEnum
	AdtUnion
)

// Adt is a user-defined nominal type, already instantiated with the
// generic arguments of the Type that refers to it. Fields and Variants may
// refer back to the same Adt through their types.
type Adt struct {
	ID       string
	Path     DefPath
	Kind     AdtKind
	Fields   []Field
	Variants []Variant
	Doc      string
	Attrs    []fact.Attribute
}

// Field is a struct or variant field. Name is empty for positional fields.
type Field struct {
	Name  string
	Index int
	Type  *Type
	Doc   string
	Attrs []fact.Attribute
}

// Variant is an enum variant; unit variants have no fields.
type Variant struct {
	Name   string
	Fields []Field
	Doc    string
	Attrs  []fact.Attribute
}

// Signature describes parameters and result of a callable. Output is nil
// for callables that return nothing. For async callables Output is the
// future wrapper (TyOpaque or TyCoroutine) whose Elem is the awaited type.
type Signature struct {
	Inputs []*Type
	Output *Type
	Async  bool
}

// Func is a function declaration.
type Func struct {
	// ID identifies the function body; calls inside it carry it as Owner.
	ID      string
	Path    DefPath
	Sig     *Signature
	Attrs   []fact.Attribute
	Doc     string
	Generic bool
	HasBody bool
	Span    Span
}
