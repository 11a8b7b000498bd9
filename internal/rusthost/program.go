package rusthost

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/gofacts/internal/host"
)

// Program is a parsed snapshot of one crate.
type Program struct {
	crate  string
	deps   map[string]bool
	logger *slog.Logger

	trees   []*sitter.Tree
	modules []*module
	byPath  map[string]*module

	items []*host.Item
	exprs []*host.Expr

	nodes   map[string]*host.Expr
	types   map[*host.Expr]*host.Type
	targets map[*host.Expr]host.DefPath

	funcs    map[string]*host.Func
	adtCache map[string]*host.Type
}

var _ host.Program = (*Program)(nil)

// Parse builds a Program from in-memory sources keyed by crate-relative
// slash paths (src/lib.rs, src/net/mod.rs, ...).
func Parse(ctx context.Context, manifest Manifest, sources map[string][]byte, logger *slog.Logger) (*Program, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Program{
		crate:    manifest.Crate,
		deps:     make(map[string]bool, len(manifest.Deps)),
		logger:   logger,
		byPath:   make(map[string]*module),
		nodes:    make(map[string]*host.Expr),
		types:    make(map[*host.Expr]*host.Type),
		targets:  make(map[*host.Expr]host.DefPath),
		funcs:    make(map[string]*host.Func),
		adtCache: make(map[string]*host.Type),
	}
	for _, d := range manifest.Deps {
		p.deps[d] = true
	}

	files := make([]string, 0, len(sources))
	for rel := range sources {
		files = append(files, rel)
	}
	sort.Strings(files)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language())

	for _, rel := range files {
		path, ok := modulePath(rel)
		if !ok {
			continue
		}
		src := sources[rel]
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			return nil, fmt.Errorf("rusthost: parse %s: %w", rel, err)
		}
		p.trees = append(p.trees, tree)
		root := tree.RootNode()
		if root.HasError() {
			logger.Warn("syntax errors in file", "file", rel)
		}
		m := newModule(path, rel, src)
		if !p.addModule(m) {
			logger.Warn("module defined twice", "module", m.key(), "file", rel)
			continue
		}
		p.collect(m, root)
	}
	if len(p.modules) == 0 {
		return nil, fmt.Errorf("rusthost: crate %s has no source files", p.crate)
	}

	p.bindImpls()
	p.indexFuncs()
	p.indexImpls()
	p.walkBodies()

	sort.SliceStable(p.exprs, func(i, j int) bool {
		a, b := p.exprs[i].Span, p.exprs[j].Span
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Col < b.Col
	})
	logger.Debug("crate indexed", "crate", p.crate, "modules", len(p.modules), "items", len(p.items), "exprs", len(p.exprs))
	return p, nil
}

func (p *Program) addModule(m *module) bool {
	if _, ok := p.byPath[m.key()]; ok {
		return false
	}
	p.byPath[m.key()] = m
	p.modules = append(p.modules, m)
	return true
}

// Crate is the name declarations of the parsed crate are rooted at.
func (p *Program) Crate() string { return p.crate }

func (p *Program) WalkItems(fn func(*host.Item)) {
	for _, it := range p.items {
		fn(it)
	}
}

func (p *Program) WalkExprs(fn func(*host.Expr)) {
	for _, x := range p.exprs {
		fn(x)
	}
}

func (p *Program) TypeOf(x *host.Expr) (*host.Type, bool) {
	t, ok := p.types[x]
	return t, ok
}

func (p *Program) ResolvePath(x *host.Expr) (host.DefPath, bool) {
	path, ok := p.targets[x]
	return path, ok
}

// bindImpls resolves the self type and trait of every impl block.
func (p *Program) bindImpls() {
	for _, m := range p.modules {
		for _, b := range m.impls {
			if self := b.node.ChildByFieldName("type"); self != nil {
				b.self = p.localTypeDecl(m, self)
			}
			if tr := b.node.ChildByFieldName("trait"); tr != nil {
				if path, ok := p.resolve(m, splitPath(m.text(tr)), 0); ok {
					b.trait = &path
				} else {
					path := host.Path(p.crate, splitPath(m.text(tr))...)
					b.trait = &path
				}
			}
		}
	}
}

// localTypeDecl finds the crate type a written type names, if any.
func (p *Program) localTypeDecl(m *module, n *sitter.Node) *decl {
	switch n.Type() {
	case "generic_type":
		if base := n.ChildByFieldName("type"); base != nil {
			return p.localTypeDecl(m, base)
		}
	case "type_identifier", "scoped_type_identifier":
		path, ok := p.resolve(m, splitPath(m.text(n)), 0)
		if !ok {
			return nil
		}
		if d := p.declAt(path); d != nil && d.isType() {
			return d
		}
	}
	return nil
}

// indexFuncs builds the free function items of every module.
func (p *Program) indexFuncs() {
	for _, m := range p.modules {
		for _, d := range m.fns {
			path := host.Path(p.crate, append(append([]string(nil), m.path...), d.name)...)
			f := p.funcFrom(&env{mod: m}, d.node, path, d.generics)
			f.Doc, f.Attrs = d.doc, d.attrs
			p.funcs[f.ID] = f
			p.items = append(p.items, &host.Item{Kind: host.ItemFunc, Func: f, Span: d.span})
		}
	}
}

// indexImpls builds one item per impl block with its associated items.
func (p *Program) indexImpls() {
	for _, m := range p.modules {
		for _, b := range m.impls {
			e := &env{mod: m, generics: make(map[string]*host.Type)}
			for _, g := range b.generics {
				e.generics[g] = nil
			}
			if self := b.node.ChildByFieldName("type"); self != nil {
				e.self = p.typeOf(e, self)
			}
			b.selfType = e.self
			impl := &host.Impl{Trait: b.trait, SelfType: e.self}
			for _, c := range namedChildren(b.node.ChildByFieldName("body")) {
				name := c.ChildByFieldName("name")
				if name == nil {
					continue
				}
				member := host.ImplMember{Name: m.text(name), Span: m.span(c)}
				switch c.Type() {
				case "function_item":
					member.Kind = host.MemberFunc
					f := p.funcFrom(e, c, b.path(p.crate).Child(member.Name), typeParams(m, c.ChildByFieldName("type_parameters")))
					f.Doc, f.Attrs = meta(m, c)
					p.funcs[f.ID] = f
					member.Func = f
				case "const_item":
					member.Kind = host.MemberConst
				case "type_item":
					member.Kind = host.MemberType
				default:
					continue
				}
				impl.Members = append(impl.Members, member)
			}
			p.items = append(p.items, &host.Item{Kind: host.ItemImpl, Impl: impl, Span: b.span})
		}
	}
}

// declAt returns the crate declaration at path.
func (p *Program) declAt(path host.DefPath) *decl {
	if path.Crate != p.crate || len(path.Segments) == 0 {
		return nil
	}
	names := make([]string, len(path.Segments))
	for i, s := range path.Segments {
		if s.Impl {
			return nil
		}
		names[i] = s.Name
	}
	m, ok := p.byPath[strings.Join(names[:len(names)-1], "::")]
	if !ok {
		return nil
	}
	return m.decls[names[len(names)-1]]
}

const maxResolveDepth = 8

// resolve maps a path as written in module m to a declaration path.
func (p *Program) resolve(m *module, segs []string, depth int) (host.DefPath, bool) {
	if len(segs) == 0 || depth > maxResolveDepth {
		return host.DefPath{}, false
	}
	join := func(base, rest []string) []string {
		return append(append([]string(nil), base...), rest...)
	}

	switch segs[0] {
	case "crate":
		return p.canon(p.crate, segs[1:]), true
	case "self":
		return p.canon(p.crate, join(m.path, segs[1:])), true
	case "super":
		base, rest := m.path, segs
		for len(rest) > 0 && rest[0] == "super" {
			if len(base) == 0 {
				return host.DefPath{}, false
			}
			base, rest = base[:len(base)-1], rest[1:]
		}
		return p.canon(p.crate, join(base, rest)), true
	}

	if target, ok := m.uses[segs[0]]; ok {
		return p.resolve(m, join(target, segs[1:]), depth+1)
	}
	if p.inModule(m.path, segs[0]) {
		return p.canon(p.crate, join(m.path, segs)), true
	}
	for _, g := range m.globs {
		base, ok := p.resolve(m, g, depth+1)
		if !ok || base.Crate != p.crate {
			continue
		}
		names := make([]string, 0, len(base.Segments))
		for _, s := range base.Segments {
			names = append(names, s.Name)
		}
		if p.inModule(names, segs[0]) {
			return p.canon(p.crate, join(names, segs)), true
		}
	}
	if path, ok := prelude[segs[0]]; ok {
		for _, s := range segs[1:] {
			path = path.Child(s)
		}
		return path, true
	}
	if segs[0] == p.crate {
		return p.canon(p.crate, segs[1:]), true
	}
	if externCrates[segs[0]] || p.deps[segs[0]] || len(segs) > 1 {
		return p.canon(segs[0], segs[1:]), true
	}
	return host.DefPath{}, false
}

// inModule reports whether name is declared in the module at path, either
// as an item or as a child module.
func (p *Program) inModule(path []string, name string) bool {
	m, ok := p.byPath[strings.Join(path, "::")]
	if !ok {
		return false
	}
	if _, ok := m.decls[name]; ok {
		return true
	}
	_, ok = p.byPath[strings.Join(append(append([]string(nil), path...), name), "::")]
	return ok
}

// canon builds a path, mapping standard library re-exports to the paths
// the types are declared at.
func (p *Program) canon(crate string, names []string) host.DefPath {
	path := host.Path(crate, names...)
	if crate == p.crate {
		return path
	}
	for i := len(names); i > 0; i-- {
		prefix := host.Path(crate, names[:i]...).String()
		if c, ok := reexports[prefix]; ok {
			for _, n := range names[i:] {
				c = c.Child(n)
			}
			return c
		}
	}
	return path
}

var externCrates = map[string]bool{
	"std":   true,
	"core":  true,
	"alloc": true,
}

var prelude = map[string]host.DefPath{
	"Vec":      host.Path("alloc", "vec", "Vec"),
	"String":   host.Path("alloc", "string", "String"),
	"Box":      host.Path("alloc", "boxed", "Box"),
	"Option":   host.Path("core", "option", "Option"),
	"Some":     host.Path("core", "option", "Option", "Some"),
	"None":     host.Path("core", "option", "Option", "None"),
	"Result":   host.Path("core", "result", "Result"),
	"Ok":       host.Path("core", "result", "Result", "Ok"),
	"Err":      host.Path("core", "result", "Result", "Err"),
	"ToString": host.Path("alloc", "string", "ToString"),
	"Default":  host.Path("core", "default", "Default"),
	"Clone":    host.Path("core", "clone", "Clone"),
}

var reexports = map[string]host.DefPath{
	"std::collections::HashMap":  host.Path("std", "collections", "hash", "map", "HashMap"),
	"std::collections::HashSet":  host.Path("std", "collections", "hash", "set", "HashSet"),
	"std::collections::BTreeMap": host.Path("alloc", "collections", "btree", "map", "BTreeMap"),
	"std::vec::Vec":              host.Path("alloc", "vec", "Vec"),
	"std::string::String":        host.Path("alloc", "string", "String"),
	"std::boxed::Box":            host.Path("alloc", "boxed", "Box"),
	"std::sync::Arc":             host.Path("alloc", "sync", "Arc"),
	"std::rc::Rc":                host.Path("alloc", "rc", "Rc"),
	"std::option::Option":        host.Path("core", "option", "Option"),
	"std::result::Result":        host.Path("core", "result", "Result"),
	"std::fmt":                   host.Path("core", "fmt"),
}
