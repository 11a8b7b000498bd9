package rusthost

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/gofacts/internal/elevate"
	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
	"github.com/jward/gofacts/internal/host/hosttest"
	"github.com/jward/gofacts/internal/query"
)

const libSrc = `mod models;
pub mod server;

use crate::models::User;
use std::collections::HashMap;

/// Entry point.
#[inline]
pub fn run(port: u16) -> Result<(), String> {
    let u = User::new("ann");
    let greeting = u.greet("hi");
    let mut index: HashMap<String, User> = HashMap::new();
    index.insert(greeting.clone(), u);
    server::route("/users", handle);
    Ok(())
}

fn handle(req: &str) -> String {
    req.to_string()
}

pub async fn fetch(id: u64) -> Option<User> {
    None
}

pub fn generic<T: Clone>(t: T) -> T {
    t
}

pub fn apply() -> i32 {
    let add = |a: i32, b: i32| a + b;
    add(1, 2)
}
`

const modelsSrc = `use std::fmt;

/// A user.
#[derive(Debug, Clone)]
pub struct User {
    /// The name.
    #[serde(rename = "n")]
    pub name: String,
    pub age: u32,
    pub parent: Option<Box<User>>,
}

pub enum Role {
    Admin,
    Member(u32),
}

impl User {
    pub fn new(name: &str) -> Self {
        User { name: name.to_string(), age: 0, parent: None }
    }

    pub fn greet(&self, prefix: &str) -> String {
        format!("{} {}", prefix, self.name)
    }
}

impl fmt::Display for User {
    fn fmt(&self, f: &mut fmt::Formatter) -> fmt::Result {
        write!(f, "{}", self.name)
    }
}
`

const serverSrc = `pub fn route(path: &str, handler: fn(&str) -> String) {}

pub mod inner {
    pub fn helper() -> u8 {
        7u8
    }
}
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseDemo(t *testing.T) *Program {
	t.Helper()
	p, err := Parse(context.Background(), Manifest{Crate: "demo"}, map[string][]byte{
		"src/lib.rs":        []byte(libSrc),
		"src/models.rs":     []byte(modelsSrc),
		"src/server/mod.rs": []byte(serverSrc),
	}, discard())
	require.NoError(t, err)
	return p
}

func funcs(p *Program) map[string]*host.Func {
	out := make(map[string]*host.Func)
	p.WalkItems(func(it *host.Item) {
		if it.Kind == host.ItemFunc {
			out[it.Func.ID] = it.Func
		}
	})
	return out
}

func impls(p *Program) []*host.Impl {
	var out []*host.Impl
	p.WalkItems(func(it *host.Item) {
		if it.Kind == host.ItemImpl {
			out = append(out, it.Impl)
		}
	})
	return out
}

func findCall(t *testing.T, p *Program, kind host.ExprKind, target string) *host.Expr {
	t.Helper()
	var found *host.Expr
	p.WalkExprs(func(x *host.Expr) {
		if x.Kind != kind || found != nil {
			return
		}
		if path, ok := p.ResolvePath(x); ok && path.String() == target {
			found = x
		}
	})
	require.NotNil(t, found, "no call to %s", target)
	return found
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
[package]
name = "my-crate" # trailing comment
version = "0.1.0"

[dependencies]
serde = { version = "1", features = ["derive"] }
tokio-util = "0.7"

[dependencies.axum]
version = "0.7"

[dev-dependencies]
pretty_assertions = "1"
`))
	require.NoError(t, err)
	assert.Equal(t, "my_crate", m.Crate)
	assert.Equal(t, []string{"axum", "pretty_assertions", "serde", "tokio_util"}, m.Deps)

	_, err = ParseManifest([]byte("[workspace]\nmembers = []\n"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte("[package\nname = \"x\"\n"))
	assert.Error(t, err)
}

func TestParseManifest_LibNameAndTargetDeps(t *testing.T) {
	m, err := ParseManifest([]byte(`
[package]
name = "my-crate"

[lib]
name = "my-lib"

[dependencies]
serde = { version = "1", features = [
    "derive",
    "rc",
] }

[target.'cfg(unix)'.dependencies]
nix = "0.29"

[target.'cfg(windows)'.dev-dependencies]
windows-sys = "0.52"

[target.'cfg(unix)'.build-dependencies]
serde = "1"
`))
	require.NoError(t, err)
	assert.Equal(t, "my_lib", m.Crate)
	assert.Equal(t, []string{"nix", "serde", "windows_sys"}, m.Deps)
}

func TestModulePath(t *testing.T) {
	tests := []struct {
		rel  string
		want []string
		ok   bool
	}{
		{"src/lib.rs", nil, true},
		{"src/main.rs", nil, true},
		{"src/net.rs", []string{"net"}, true},
		{"src/net/mod.rs", []string{"net"}, true},
		{"src/net/tcp.rs", []string{"net", "tcp"}, true},
		{"build.rs", nil, false},
		{"src/README.md", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, ok := modulePath(tt.rel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddUse(t *testing.T) {
	m := newModule(nil, "src/lib.rs", nil)
	m.addUse(nil, normalizeUse("std::collections::{HashMap, BTreeMap as Map}"))
	m.addUse(nil, normalizeUse("std::io::{self, Read}"))
	m.addUse(nil, normalizeUse("super::*"))
	m.addUse(nil, normalizeUse("crate::a::{b::{C, D}, E}"))
	m.addUse(nil, normalizeUse("std::fmt::Write as _"))

	assert.Equal(t, []string{"std", "collections", "HashMap"}, m.uses["HashMap"])
	assert.Equal(t, []string{"std", "collections", "BTreeMap"}, m.uses["Map"])
	assert.Equal(t, []string{"std", "io"}, m.uses["io"])
	assert.Equal(t, []string{"std", "io", "Read"}, m.uses["Read"])
	assert.Equal(t, []string{"crate", "a", "b", "C"}, m.uses["C"])
	assert.Equal(t, []string{"crate", "a", "E"}, m.uses["E"])
	assert.Equal(t, [][]string{{"super"}}, m.globs)
	assert.NotContains(t, m.uses, "_")
}

func TestParseAttr(t *testing.T) {
	assert.Equal(t, fact.Attribute{Name: "inline"}, parseAttr("#[inline]"))
	assert.Equal(t, fact.Attribute{Name: "derive", Value: "Debug, Clone"}, parseAttr("#[derive(Debug, Clone)]"))
	assert.Equal(t, fact.Attribute{Name: "doc", Value: "hidden text"}, parseAttr(`#[doc = "hidden text"]`))
	assert.Equal(t, fact.Attribute{Name: "serde::skip"}, parseAttr("#[serde::skip]"))
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "/users", stringValue(`"/users"`))
	assert.Equal(t, "a\tb", stringValue(`"a\tb"`))
	assert.Equal(t, "é", stringValue(`"\u{e9}"`))
	assert.Equal(t, `C:\path`, stringValue(`r"C:\path"`))
	assert.Equal(t, `say "hi"`, stringValue(`r#"say "hi""#`))
	assert.Equal(t, "raw", stringValue(`b"raw"`))
}

func TestLiteralType(t *testing.T) {
	typ, digits := literalType("1_000u64", false)
	assert.Equal(t, host.TyU64, typ.Kind)
	assert.Equal(t, "1000", digits)

	typ, digits = literalType("0xff", false)
	assert.Equal(t, host.TyI32, typ.Kind)
	v, ok := parseInt(digits)
	require.True(t, ok)
	assert.Equal(t, int64(255), v)

	typ, _ = literalType("2.5f32", true)
	assert.Equal(t, host.TyF32, typ.Kind)
	typ, _ = literalType("2.5", true)
	assert.Equal(t, host.TyF64, typ.Kind)
}

func TestParse_Functions(t *testing.T) {
	p := parseDemo(t)
	fs := funcs(p)

	for _, id := range []string{"demo::run", "demo::handle", "demo::fetch", "demo::generic", "demo::apply", "demo::server::route", "demo::server::inner::helper"} {
		assert.Contains(t, fs, id)
	}
	assert.NotContains(t, fs, "demo::models::{impl#0}::new", "impl methods are not function items")

	run := fs["demo::run"]
	assert.Equal(t, "Entry point.", run.Doc)
	assert.Equal(t, []fact.Attribute{{Name: "inline"}}, run.Attrs)
	require.Len(t, run.Sig.Inputs, 1)
	assert.Equal(t, host.TyU16, run.Sig.Inputs[0].Kind)
	assert.Equal(t, "core::result::Result", run.Sig.Output.Adt.Path.String())
	assert.True(t, run.HasBody)
	assert.False(t, run.Generic)

	fetch := fs["demo::fetch"]
	assert.True(t, fetch.Sig.Async)
	require.Equal(t, host.TyOpaque, fetch.Sig.Output.Kind)
	assert.Equal(t, "core::option::Option", fetch.Sig.Output.Elem.Adt.Path.String())
	assert.Equal(t, "demo::models::User", fetch.Sig.Output.Elem.Args[0].Adt.Path.String())

	assert.True(t, fs["demo::generic"].Generic)

	route := fs["demo::server::route"]
	require.Len(t, route.Sig.Inputs, 2)
	assert.Equal(t, host.TyRef, route.Sig.Inputs[0].Kind)
	assert.Equal(t, host.TyStr, route.Sig.Inputs[0].Elem.Kind)
	assert.Equal(t, host.TyFnPtr, route.Sig.Inputs[1].Kind)
	assert.Nil(t, route.Sig.Output)
}

func TestParse_StructAndEnum(t *testing.T) {
	p := parseDemo(t)
	var user *host.Type
	for _, impl := range impls(p) {
		if impl.Trait == nil {
			user = impl.SelfType
		}
	}
	require.NotNil(t, user)
	require.Equal(t, host.TyAdt, user.Kind)
	assert.Equal(t, "demo::models::User", user.Adt.ID)
	assert.Equal(t, host.AdtStruct, user.Adt.Kind)
	assert.Equal(t, "A user.", user.Adt.Doc)
	assert.Equal(t, []fact.Attribute{{Name: "derive", Value: "Debug, Clone"}}, user.Adt.Attrs)

	require.Len(t, user.Adt.Fields, 3)
	name := user.Adt.Fields[0]
	assert.Equal(t, "name", name.Name)
	assert.Equal(t, "The name.", name.Doc)
	assert.Equal(t, []fact.Attribute{{Name: "serde", Value: `rename = "n"`}}, name.Attrs)
	assert.Equal(t, "alloc::string::String", name.Type.Adt.Path.String())
	assert.Equal(t, host.TyU32, user.Adt.Fields[1].Type.Kind)

	parent := user.Adt.Fields[2].Type
	assert.Equal(t, "core::option::Option", parent.Adt.Path.String())
	boxed := parent.Args[0]
	assert.Equal(t, "alloc::boxed::Box", boxed.Adt.Path.String())
	assert.Same(t, user, boxed.Args[0], "recursive references share the instance")

	role := p.localAdt(p.declAt(host.Path("demo", "models", "Role")), host.Path("demo", "models", "Role"), nil)
	require.Equal(t, host.AdtEnum, role.Adt.Kind)
	require.Len(t, role.Adt.Variants, 2)
	assert.Empty(t, role.Adt.Variants[0].Fields)
	require.Len(t, role.Adt.Variants[1].Fields, 1)
	assert.Equal(t, host.TyU32, role.Adt.Variants[1].Fields[0].Type.Kind)
}

func TestParse_Impls(t *testing.T) {
	p := parseDemo(t)
	all := impls(p)
	require.Len(t, all, 2)

	inherent, display := all[0], all[1]
	assert.Nil(t, inherent.Trait)
	require.Len(t, inherent.Members, 2)
	assert.Equal(t, "new", inherent.Members[0].Name)
	assert.Equal(t, "demo::models::{impl#0}::new", inherent.Members[0].Func.ID)
	assert.Same(t, inherent.SelfType, inherent.Members[0].Func.Sig.Output)
	greet := inherent.Members[1].Func
	require.Len(t, greet.Sig.Inputs, 2)
	assert.Equal(t, host.TyRef, greet.Sig.Inputs[0].Kind)
	assert.Same(t, inherent.SelfType, greet.Sig.Inputs[0].Elem)

	require.NotNil(t, display.Trait)
	assert.Equal(t, "core::fmt::Display", display.Trait.String())
	require.Len(t, display.Members, 1)
	assert.Equal(t, "demo::models::{impl#1}::fmt", display.Members[0].Func.ID)
}

func TestParse_Calls(t *testing.T) {
	p := parseDemo(t)

	newCall := findCall(t, p, host.ExprCall, "demo::models::{impl#0}::new")
	assert.Equal(t, "demo::run", newCall.Owner)
	require.Len(t, newCall.Args, 1)
	assert.Equal(t, host.ExprStringLit, newCall.Args[0].Kind)
	assert.Equal(t, "ann", newCall.Args[0].Str)

	greet := findCall(t, p, host.ExprMethodCall, "demo::models::{impl#0}::greet")
	require.NotNil(t, greet.Receiver)
	recv, ok := p.TypeOf(greet.Receiver)
	require.True(t, ok)
	assert.Equal(t, "demo::models::User", recv.Adt.ID)
	require.Len(t, greet.Args, 1)
	assert.Equal(t, "hi", greet.Args[0].Str)

	route := findCall(t, p, host.ExprCall, "demo::server::route")
	require.Len(t, route.Args, 2)
	assert.Equal(t, host.ExprPath, route.Args[1].Kind)
	fn, ok := p.TypeOf(route.Args[1])
	require.True(t, ok)
	assert.Equal(t, host.TyFnDef, fn.Kind)
	assert.Equal(t, "demo::handle", fn.Func.ID)

	var insert *host.Expr
	p.WalkExprs(func(x *host.Expr) {
		if x.Kind == host.ExprMethodCall && x.Span == (host.Span{File: "src/lib.rs", Line: 13, Col: 5}) {
			insert = x
		}
	})
	require.NotNil(t, insert)
	_, resolved := p.ResolvePath(insert)
	assert.False(t, resolved, "methods of foreign types are not resolved")
	index, ok := p.TypeOf(insert.Receiver)
	require.True(t, ok)
	assert.Equal(t, "std::collections::hash::map::HashMap", index.Adt.Path.String())
	require.Len(t, index.Args, 2)
	assert.Equal(t, "alloc::string::String", index.Args[0].Adt.Path.String())
}

func TestParse_ClosureAndLiterals(t *testing.T) {
	p := parseDemo(t)

	var closure, seven *host.Expr
	var ints []int64
	p.WalkExprs(func(x *host.Expr) {
		switch {
		case x.Kind == host.ExprClosure:
			closure = x
		case x.Kind == host.ExprIntLit && x.Owner == "demo::server::inner::helper":
			seven = x
		case x.Kind == host.ExprIntLit && x.Owner == "demo::apply":
			ints = append(ints, x.Int)
		}
	})

	require.NotNil(t, closure)
	ct, ok := p.TypeOf(closure)
	require.True(t, ok)
	require.Equal(t, host.TyClosure, ct.Kind)
	require.Len(t, ct.Sig.Inputs, 2)
	assert.Equal(t, host.TyI32, ct.Sig.Inputs[0].Kind)

	require.NotNil(t, seven)
	assert.Equal(t, int64(7), seven.Int)
	st, ok := p.TypeOf(seven)
	require.True(t, ok)
	assert.Equal(t, host.TyU8, st.Kind)

	assert.Equal(t, []int64{1, 2}, ints)
}

func TestParse_ElevateAndQuery(t *testing.T) {
	p := parseDemo(t)
	diags := &hosttest.Diagnostics{}
	q := query.New(elevate.New(p, diags), diags)

	calls := q.MethodCalls(fact.MethodCallQuery{Location: fact.Location{
		CrateName:       "demo",
		Path:            []string{"models", "greet"},
		ImplBlockNumber: fact.Impl(0),
	}})
	require.Len(t, calls, 1)
	assert.Equal(t, []fact.Value{fact.StringLiteral("hi")}, calls[0].Args)
	assert.Equal(t, "demo::run", calls[0].InItemID)

	fns := q.Functions(fact.Location{CrateName: "demo", Path: []string{"fetch"}})
	require.Len(t, fns, 1)
	assert.True(t, fns[0].IsAsync)
	opt, ok := fns[0].ReturnType.(fact.OptionType)
	require.True(t, ok)
	user, ok := opt.Elem.(*fact.StructTypeValue)
	require.True(t, ok)
	assert.Equal(t, []string{"models", "User"}, user.Location.Path)

	impls := q.TraitImpls(fact.Location{CrateName: "core", Path: []string{"fmt", "Display"}})
	require.Len(t, impls, 1)
	require.Len(t, impls[0].Functions, 1)
	assert.Equal(t, []string{"models", "fmt"}, impls[0].Functions[0].Location.Path)
	assert.Equal(t, fact.Impl(1), impls[0].Functions[0].Location.ImplBlockNumber)
}

func TestLoad_Discovery(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("Cargo.toml", "[package]\nname = \"demo-app\"\n")
	write(".gitignore", "src/generated/\n")
	write("src/main.rs", "mod util;\nfn main() { util::go(); }\n")
	write("src/util.rs", "pub fn go() {}\n")
	write("src/generated/out.rs", "pub fn skipped() {}\n")
	write("src/bin/tool.rs", "fn main() {}\n")
	write("src/vendored/lib.rs", "pub fn excluded() {}\n")

	files, err := discover(dir, func(rel string) bool { return rel == "src/vendored" })
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.rs", "src/util.rs"}, files)

	p, err := Load(context.Background(), Options{
		Dir:     dir,
		Exclude: func(rel string) bool { return rel == "src/vendored" },
		Logger:  discard(),
	})
	require.NoError(t, err)
	assert.Equal(t, "demo_app", p.Crate())
	fs := funcs(p)
	assert.Contains(t, fs, "demo_app::main")
	assert.Contains(t, fs, "demo_app::util::go")
	findCall(t, p, host.ExprCall, "demo_app::util::go")
}

func TestLoad_MissingManifest(t *testing.T) {
	_, err := Load(context.Background(), Options{Dir: t.TempDir(), Logger: discard()})
	assert.Error(t, err)
}
