package rusthost

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// module is one Rust module: a file or an inline mod block.
type module struct {
	path []string
	file string
	src  []byte

	// uses maps a name brought into scope to the path it was imported from,
	// as written.
	uses  map[string][]string
	globs [][]string
	decls map[string]*decl
	impls []*implBlock
	// fns are the free functions in source order.
	fns []*decl
}

func newModule(path []string, file string, src []byte) *module {
	return &module{
		path:  path,
		file:  file,
		src:   src,
		uses:  make(map[string][]string),
		decls: make(map[string]*decl),
	}
}

func (m *module) key() string { return strings.Join(m.path, "::") }

func (m *module) text(n *sitter.Node) string { return n.Content(m.src) }

func (m *module) span(n *sitter.Node) host.Span {
	pt := n.StartPoint()
	return host.Span{File: m.file, Line: int(pt.Row) + 1, Col: int(pt.Column) + 1}
}

type declKind int

const (
	declStruct declKind = iota
	declEnum
	declUnion
	declTrait
	declFunc
	declAlias
)

var declKinds = map[string]declKind{
	"struct_item":   declStruct,
	"enum_item":     declEnum,
	"union_item":    declUnion,
	"trait_item":    declTrait,
	"function_item": declFunc,
	"type_item":     declAlias,
}

// decl is a named item declared in a module.
type decl struct {
	kind     declKind
	name     string
	mod      *module
	node     *sitter.Node
	generics []string
	doc      string
	attrs    []fact.Attribute
	span     host.Span
}

func (d *decl) isType() bool {
	return d.kind == declStruct || d.kind == declEnum || d.kind == declUnion || d.kind == declAlias
}

// implBlock is an impl item. Index numbers impl blocks per module in
// source order.
type implBlock struct {
	mod      *module
	index    int
	node     *sitter.Node
	generics []string
	span     host.Span

	// self is the local type the block is on; nil for foreign types.
	self     *decl
	selfType *host.Type
	trait    *host.DefPath
}

func (b *implBlock) path(crate string) host.DefPath {
	return host.Path(crate, b.mod.path...).WithImpl(b.index)
}

// method finds the function named name in the block's body.
func (b *implBlock) method(name string) *sitter.Node {
	body := b.node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	for _, c := range namedChildren(body) {
		if c.Type() != "function_item" {
			continue
		}
		if n := c.ChildByFieldName("name"); n != nil && b.mod.text(n) == name {
			return c
		}
	}
	return nil
}

// collect records the declarations of a module body and recurses into
// inline modules.
func (p *Program) collect(m *module, list *sitter.Node) {
	for _, n := range namedChildren(list) {
		switch n.Type() {
		case "mod_item":
			name := n.ChildByFieldName("name")
			body := n.ChildByFieldName("body")
			if name == nil || body == nil {
				continue
			}
			child := newModule(append(append([]string(nil), m.path...), m.text(name)), m.file, m.src)
			if p.addModule(child) {
				p.collect(child, body)
			}

		case "impl_item":
			m.impls = append(m.impls, &implBlock{
				mod:      m,
				index:    len(m.impls),
				node:     n,
				generics: typeParams(m, n.ChildByFieldName("type_parameters")),
				span:     m.span(n),
			})

		case "use_declaration":
			if arg := n.ChildByFieldName("argument"); arg != nil {
				m.addUse(nil, normalizeUse(m.text(arg)))
			}

		default:
			kind, ok := declKinds[n.Type()]
			if !ok {
				continue
			}
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			doc, attrs := meta(m, n)
			d := &decl{
				kind:     kind,
				name:     m.text(name),
				mod:      m,
				node:     n,
				generics: typeParams(m, n.ChildByFieldName("type_parameters")),
				doc:      doc,
				attrs:    attrs,
				span:     m.span(n),
			}
			m.decls[d.name] = d
			if kind == declFunc {
				m.fns = append(m.fns, d)
			}
		}
	}
}

// normalizeUse collapses whitespace in a use tree, keeping the spaces
// around `as`.
func normalizeUse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, tok := range []string{"::", "{", "}", ","} {
		s = strings.ReplaceAll(s, " "+tok, tok)
		s = strings.ReplaceAll(s, tok+" ", tok)
	}
	return s
}

// addUse flattens one use tree into the module's import table.
func (m *module) addUse(prefix []string, tree string) {
	if tree == "" {
		return
	}
	if open := strings.Index(tree, "{"); open >= 0 && strings.HasSuffix(tree, "}") {
		head := strings.TrimSuffix(tree[:open], "::")
		base := append(append([]string(nil), prefix...), splitPath(head)...)
		for _, part := range splitTop(tree[open+1:len(tree)-1], ',') {
			m.addUse(base, part)
		}
		return
	}

	path, alias, hasAlias := strings.Cut(tree, " as ")
	segs := append(append([]string(nil), prefix...), splitPath(path)...)
	if len(segs) == 0 {
		return
	}
	last := segs[len(segs)-1]
	switch {
	case last == "*":
		m.globs = append(m.globs, segs[:len(segs)-1])
		return
	case last == "self":
		segs = segs[:len(segs)-1]
		if len(segs) == 0 {
			return
		}
		last = segs[len(segs)-1]
	}
	if hasAlias {
		last = strings.TrimSpace(alias)
	}
	if last == "_" {
		return
	}
	m.uses[last] = segs
}

// splitTop splits s on sep outside of braces.
func splitTop(s string, sep byte) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '<':
			depth++
		case '}', '>':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// splitPath splits a written path on `::`, dropping generic arguments and
// a leading `::`.
func splitPath(s string) []string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>':
			depth--
		case depth == 0 && r != ' ':
			b.WriteRune(r)
		}
	}
	var segs []string
	for _, seg := range strings.Split(b.String(), "::") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

// typeParams lists the type and const parameter names of a
// type_parameters node. Lifetimes are not listed.
func typeParams(m *module, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	var names []string
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "type_identifier":
			names = append(names, m.text(c))
		case "constrained_type_parameter":
			if l := c.ChildByFieldName("left"); l != nil && l.Type() == "type_identifier" {
				names = append(names, m.text(l))
			}
		case "optional_type_parameter", "const_parameter":
			if l := c.ChildByFieldName("name"); l != nil {
				names = append(names, m.text(l))
			}
		}
	}
	return names
}

// meta gathers the outer doc comments and attributes written before n.
func meta(m *module, n *sitter.Node) (string, []fact.Attribute) {
	var (
		docs  []string
		attrs []fact.Attribute
	)
walk:
	for s := n.PrevSibling(); s != nil; s = s.PrevSibling() {
		text := m.text(s)
		switch s.Type() {
		case "attribute_item":
			attrs = append(attrs, parseAttr(text))
		case "line_comment":
			line, ok := strings.CutPrefix(text, "///")
			if !ok || strings.HasPrefix(line, "/") {
				continue
			}
			docs = append(docs, strings.TrimPrefix(strings.TrimRight(line, "\r\n"), " "))
		case "block_comment", ",":
		default:
			break walk
		}
	}
	slices.Reverse(docs)
	slices.Reverse(attrs)
	return strings.Join(docs, "\n"), attrs
}

// parseAttr splits `#[name(args)]` or `#[name = "value"]`.
func parseAttr(text string) fact.Attribute {
	inner := strings.TrimSpace(text)
	inner = strings.TrimPrefix(inner, "#")
	inner = strings.TrimPrefix(inner, "!")
	inner = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(inner, "["), "]"))

	end := strings.IndexAny(inner, "(=[ ")
	if end < 0 {
		return fact.Attribute{Name: inner}
	}
	a := fact.Attribute{Name: inner[:end]}
	rest := strings.TrimSpace(inner[end:])
	switch {
	case strings.HasPrefix(rest, "="):
		a.Value = strings.Trim(strings.TrimSpace(rest[1:]), `"`)
	case strings.HasPrefix(rest, "("):
		a.Value = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	default:
		a.Value = rest
	}
	return a
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}
