package gohost

import (
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"

	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// Program is a type-checked snapshot of a set of Go packages.
type Program struct {
	pkgs    []*packages.Package
	mod     moduleInfo
	exclude func(rel string) bool
	logger  *slog.Logger

	items []*host.Item
	exprs []*host.Expr

	nodes    map[ast.Expr]*host.Expr
	goTypes  map[*host.Expr]types.Type
	closures map[*host.Expr]*types.Signature
	fnRefs   map[*host.Expr]*types.Func
	targets  map[*host.Expr]host.DefPath

	docs  map[types.Object]docInfo
	funcs map[*types.Func]*host.Func
	ids   map[string]int

	// mu guards typeCache, which TypeOf fills lazily.
	mu        sync.Mutex
	typeCache map[string]*host.Type
}

var _ host.Program = (*Program)(nil)

type docInfo struct {
	text  string
	attrs []fact.Attribute
}

func newProgram(pkgs []*packages.Package, mod moduleInfo, exclude func(string) bool, logger *slog.Logger) *Program {
	p := &Program{
		pkgs:      pkgs,
		mod:       mod,
		exclude:   exclude,
		logger:    logger,
		nodes:     make(map[ast.Expr]*host.Expr),
		goTypes:   make(map[*host.Expr]types.Type),
		closures:  make(map[*host.Expr]*types.Signature),
		fnRefs:    make(map[*host.Expr]*types.Func),
		targets:   make(map[*host.Expr]host.DefPath),
		docs:      make(map[types.Object]docInfo),
		funcs:     make(map[*types.Func]*host.Func),
		ids:       make(map[string]int),
		typeCache: make(map[string]*host.Type),
	}
	for _, pkg := range pkgs {
		p.indexDocs(pkg)
	}
	for _, pkg := range pkgs {
		p.indexFuncs(pkg)
	}
	p.indexImpls()
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
	return p
}

// ModulePath is the crate name of the loaded module's declarations.
func (p *Program) ModulePath() string { return p.mod.path }

// Packages returns the loaded packages.
func (p *Program) Packages() []*packages.Package { return p.pkgs }

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
	p.mu.Lock()
	defer p.mu.Unlock()
	if sig, ok := p.closures[x]; ok {
		return &host.Type{Kind: host.TyClosure, Sig: p.signature(sig, false), Name: types.TypeString(sig, nil)}, true
	}
	if fn, ok := p.fnRefs[x]; ok {
		f := p.funcFor(fn)
		return &host.Type{Kind: host.TyFnDef, Func: f, Name: f.Path.String()}, true
	}
	t, ok := p.goTypes[x]
	if !ok {
		return nil, false
	}
	return p.convert(types.Default(t)), true
}

func (p *Program) ResolvePath(x *host.Expr) (host.DefPath, bool) {
	path, ok := p.targets[x]
	return path, ok
}

func (p *Program) span(pos token.Pos, pkg *packages.Package) host.Span {
	if !pos.IsValid() {
		return host.Span{}
	}
	position := pkg.Fset.Position(pos)
	file := position.Filename
	if rel, err := filepath.Rel(p.mod.dir, file); err == nil && !strings.HasPrefix(rel, "..") {
		file = filepath.ToSlash(rel)
	}
	return host.Span{File: file, Line: position.Line, Col: position.Column}
}

func (p *Program) skipFile(pkg *packages.Package, f *ast.File) bool {
	if p.exclude == nil {
		return false
	}
	name := pkg.Fset.Position(f.Pos()).Filename
	rel, err := filepath.Rel(p.mod.dir, name)
	if err != nil {
		return false
	}
	return p.exclude(filepath.ToSlash(rel))
}

// indexDocs records doc comments and //go: directives of types, struct
// fields and constants.
func (p *Program) indexDocs(pkg *packages.Package) {
	info := pkg.TypesInfo
	for _, f := range pkg.Syntax {
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gd.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					cg := s.Doc
					if cg == nil && len(gd.Specs) == 1 {
						cg = gd.Doc
					}
					if obj := info.Defs[s.Name]; obj != nil {
						p.docs[obj] = docOf(cg)
					}
					st, ok := s.Type.(*ast.StructType)
					if !ok {
						continue
					}
					for _, field := range st.Fields.List {
						cg := field.Doc
						if cg == nil {
							cg = field.Comment
						}
						for _, n := range field.Names {
							if obj := info.Defs[n]; obj != nil {
								p.docs[obj] = docOf(cg)
							}
						}
					}
				case *ast.ValueSpec:
					if gd.Tok != token.CONST {
						continue
					}
					cg := s.Doc
					if cg == nil {
						cg = s.Comment
					}
					for _, n := range s.Names {
						if obj := info.Defs[n]; obj != nil {
							p.docs[obj] = docOf(cg)
						}
					}
				}
			}
		}
	}
}

// docOf splits a comment group into its text and its //go: directives.
func docOf(cg *ast.CommentGroup) docInfo {
	if cg == nil {
		return docInfo{}
	}
	d := docInfo{text: strings.TrimSpace(cg.Text())}
	for _, c := range cg.List {
		rest, ok := strings.CutPrefix(c.Text, "//go:")
		if !ok {
			continue
		}
		name, value, _ := strings.Cut(rest, " ")
		d.attrs = append(d.attrs, fact.Attribute{Name: "go:" + name, Value: strings.TrimSpace(value)})
	}
	return d
}

// indexFuncs records every function declaration as an item and every
// expression of its body.
func (p *Program) indexFuncs(pkg *packages.Package) {
	for _, file := range pkg.Syntax {
		if p.skipFile(pkg, file) {
			continue
		}
		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				f := p.funcDecl(pkg, d)
				if f == nil {
					continue
				}
				p.items = append(p.items, &host.Item{Kind: host.ItemFunc, Func: f, Span: f.Span})
				if d.Body != nil {
					p.walkBody(pkg, f.ID, d.Body)
				}
			case *ast.GenDecl:
				if d.Tok != token.VAR {
					continue
				}
				for _, spec := range d.Specs {
					vs := spec.(*ast.ValueSpec)
					if len(vs.Values) == 0 {
						continue
					}
					owner := vs.Names[0].Name
					if obj := pkg.TypesInfo.Defs[vs.Names[0]]; obj != nil {
						owner = p.objPath(obj).String()
					}
					for _, v := range vs.Values {
						p.walkBody(pkg, owner, v)
					}
				}
			}
		}
	}
}

func (p *Program) funcDecl(pkg *packages.Package, d *ast.FuncDecl) *host.Func {
	obj, ok := pkg.TypesInfo.Defs[d.Name].(*types.Func)
	if !ok {
		return nil
	}
	path, ok := p.funcPath(obj)
	if !ok {
		return nil
	}
	sig := obj.Type().(*types.Signature)
	doc := docOf(d.Doc)
	f := &host.Func{
		ID:      p.uniqueID(path.String()),
		Path:    path,
		Sig:     p.signature(sig, true),
		Attrs:   doc.attrs,
		Doc:     doc.text,
		Generic: sig.TypeParams().Len() > 0 || sig.RecvTypeParams().Len() > 0,
		HasBody: d.Body != nil,
		Span:    p.span(d.Name.Pos(), pkg),
	}
	p.funcs[obj] = f
	return f
}

// uniqueID disambiguates declarations sharing a path, such as several
// init functions in one package.
func (p *Program) uniqueID(id string) string {
	n := p.ids[id]
	p.ids[id] = n + 1
	if n == 0 {
		return id
	}
	return id + "#" + strconv.Itoa(n)
}

// funcFor returns the declaration of fn, synthesizing a bodiless one for
// functions outside the loaded packages.
func (p *Program) funcFor(fn *types.Func) *host.Func {
	fn = fn.Origin()
	if f, ok := p.funcs[fn]; ok {
		return f
	}
	path, ok := p.funcPath(fn)
	if !ok {
		path = host.Path(BuiltinCrate, fn.Name())
	}
	f := &host.Func{
		ID:   path.String(),
		Path: path,
		Sig:  p.signature(fn.Type().(*types.Signature), true),
	}
	if pos := fn.Pos(); pos.IsValid() && len(p.pkgs) > 0 {
		f.Span = p.span(pos, p.pkgs[0])
	}
	p.funcs[fn] = f
	return f
}

func (p *Program) walkBody(pkg *packages.Package, owner string, body ast.Node) {
	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.CallExpr:
			p.expr(pkg, owner, n)
		case *ast.BasicLit:
			p.expr(pkg, owner, n)
		case *ast.FuncLit:
			p.expr(pkg, owner, n)
		}
		return true
	})
}

// expr converts an expression node once; receivers and arguments are
// shared with the nodes the body walk reaches on its own.
func (p *Program) expr(pkg *packages.Package, owner string, e ast.Expr) *host.Expr {
	e = ast.Unparen(e)
	if x, ok := p.nodes[e]; ok {
		return x
	}
	info := pkg.TypesInfo
	x := &host.Expr{Kind: host.ExprOther, Owner: owner, Span: p.span(e.Pos(), pkg)}
	p.nodes[e] = x
	p.exprs = append(p.exprs, x)
	if tv, ok := info.Types[e]; ok && tv.Type != nil && !tv.IsType() {
		p.goTypes[x] = tv.Type
	}

	switch e := e.(type) {
	case *ast.BasicLit:
		literal(x, e)

	case *ast.FuncLit:
		x.Kind = host.ExprClosure
		if sig, ok := p.goTypes[x].(*types.Signature); ok {
			p.closures[x] = sig
		}

	case *ast.CallExpr:
		p.call(pkg, owner, x, e)

	case *ast.Ident, *ast.SelectorExpr:
		if sel, ok := e.(*ast.SelectorExpr); ok {
			if s, ok := info.Selections[sel]; ok && s.Kind() == types.FieldVal {
				return x
			}
		}
		if fn := funcObj(info, e); fn != nil {
			x.Kind = host.ExprPath
			p.fnRefs[x] = fn
		}
	}
	return x
}

func literal(x *host.Expr, lit *ast.BasicLit) {
	switch lit.Kind {
	case token.STRING:
		if s, err := strconv.Unquote(lit.Value); err == nil {
			x.Kind = host.ExprStringLit
			x.Str = s
		}
	case token.INT:
		if n, err := strconv.ParseInt(lit.Value, 0, 64); err == nil {
			x.Kind = host.ExprIntLit
			x.Int = n
		}
	case token.FLOAT:
		if f, err := strconv.ParseFloat(lit.Value, 64); err == nil {
			x.Kind = host.ExprFloatLit
			x.Float = f
		}
	case token.CHAR:
		if s, err := strconv.Unquote(lit.Value); err == nil {
			if r := []rune(s); len(r) == 1 {
				x.Kind = host.ExprIntLit
				x.Int = int64(r[0])
			}
		}
	}
}

func (p *Program) call(pkg *packages.Package, owner string, x *host.Expr, call *ast.CallExpr) {
	info := pkg.TypesInfo
	fun := ast.Unparen(call.Fun)
	if tv, ok := info.Types[fun]; ok && (tv.IsType() || tv.IsBuiltin()) {
		// Conversions and builtins keep ExprOther; their arguments are
		// still reached by the body walk.
		return
	}
	for _, a := range call.Args {
		x.Args = append(x.Args, p.expr(pkg, owner, a))
	}

	if sel, ok := fun.(*ast.SelectorExpr); ok {
		if s, ok := info.Selections[sel]; ok && s.Kind() == types.MethodVal {
			x.Kind = host.ExprMethodCall
			x.Receiver = p.expr(pkg, owner, sel.X)
			if fn, ok := s.Obj().(*types.Func); ok {
				if path, ok := p.funcPath(fn); ok {
					p.targets[x] = path
				}
			}
			return
		}
	}

	x.Kind = host.ExprCall
	x.Callee = p.expr(pkg, owner, fun)
	if fn := funcObj(info, fun); fn != nil {
		if path, ok := p.funcPath(fn); ok {
			p.targets[x] = path
		}
	}
}

// funcObj returns the function an identifier, qualified identifier, method
// expression or instantiation refers to.
func funcObj(info *types.Info, e ast.Expr) *types.Func {
	switch e := e.(type) {
	case *ast.Ident:
		fn, _ := info.Uses[e].(*types.Func)
		return fn
	case *ast.SelectorExpr:
		if s, ok := info.Selections[e]; ok {
			if s.Kind() == types.FieldVal {
				return nil
			}
			fn, _ := s.Obj().(*types.Func)
			return fn
		}
		fn, _ := info.Uses[e.Sel].(*types.Func)
		return fn
	case *ast.IndexExpr:
		return funcObj(info, ast.Unparen(e.X))
	case *ast.IndexListExpr:
		return funcObj(info, ast.Unparen(e.X))
	}
	return nil
}

// indexImpls synthesizes a trait impl for each named type of the loaded
// packages against each interface it satisfies. Candidate interfaces are
// error and the non-empty interfaces declared in the loaded packages or
// imported by them directly.
func (p *Program) indexImpls() {
	type iface struct {
		path host.DefPath
		typ  *types.Interface
	}
	var ifaces []iface
	seen := make(map[*types.TypeName]bool)
	addScope := func(pkg *types.Package) {
		scope := pkg.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || seen[tn] || tn.IsAlias() {
				continue
			}
			seen[tn] = true
			it, ok := tn.Type().Underlying().(*types.Interface)
			if !ok || it.NumMethods() == 0 {
				continue
			}
			if !tn.Exported() && !p.isLocal(pkg) {
				continue
			}
			if named, ok := tn.Type().(*types.Named); ok && named.TypeParams().Len() > 0 {
				continue
			}
			ifaces = append(ifaces, iface{path: p.objPath(tn), typ: it})
		}
	}

	ifaces = append(ifaces, iface{path: host.Path(BuiltinCrate, "error"), typ: errorType.Underlying().(*types.Interface)})
	for _, pkg := range p.pkgs {
		addScope(pkg.Types)
	}
	for _, pkg := range p.pkgs {
		for _, imp := range pkg.Types.Imports() {
			addScope(imp)
		}
	}

	for _, pkg := range p.pkgs {
		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			named, ok := tn.Type().(*types.Named)
			if !ok || named.TypeParams().Len() > 0 {
				continue
			}
			if _, ok := named.Underlying().(*types.Interface); ok {
				continue
			}
			ptr := types.NewPointer(named)
			mset := types.NewMethodSet(ptr)
			for _, in := range ifaces {
				if !types.Implements(named, in.typ) && !types.Implements(ptr, in.typ) {
					continue
				}
				trait := in.path
				impl := &host.Impl{Trait: &trait, SelfType: p.convert(named)}
				for i := 0; i < in.typ.NumMethods(); i++ {
					m := in.typ.Method(i)
					sel := mset.Lookup(m.Pkg(), m.Name())
					if sel == nil {
						continue
					}
					fn, ok := sel.Obj().(*types.Func)
					if !ok {
						continue
					}
					f := p.funcFor(fn)
					impl.Members = append(impl.Members, host.ImplMember{Kind: host.MemberFunc, Name: m.Name(), Func: f, Span: f.Span})
				}
				p.items = append(p.items, &host.Item{Kind: host.ItemImpl, Impl: impl, Span: p.span(tn.Pos(), pkg)})
			}
		}
	}
}
