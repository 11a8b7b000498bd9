package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/gofacts/internal/runtime"
)

func TestPreflight_ExactVersion(t *testing.T) {
	req, err := Preflight(context.Background(), `facts.version("1.2.3")`, nil)
	require.NoError(t, err)
	assert.Equal(t, runtime.Version{Kind: runtime.VersionExact, Major: 1, Minor: 2, Patch: 3}, req.Version)
	assert.Nil(t, req.Debug)
}

func TestPreflight_LatestAndLocal(t *testing.T) {
	req, err := Preflight(context.Background(), `
facts.version("latest")
facts.dbg_version("local:/src/gofacts")
`, nil)
	require.NoError(t, err)
	assert.Equal(t, runtime.VersionLatest, req.Version.Kind)
	require.NotNil(t, req.Debug)
	assert.Equal(t, "/src/gofacts", req.Debug.Path)
}

func TestPreflight_NoVersion(t *testing.T) {
	_, err := Preflight(context.Background(), `facts.note("hi")`, nil)
	assert.ErrorIs(t, err, ErrNoVersion)
}

func TestPreflight_VersionTwice(t *testing.T) {
	_, err := Preflight(context.Background(), `
facts.version("1.0.0")
facts.version("1.0.0")
`, nil)
	assert.ErrorIs(t, err, ErrVersionSetTwice)
}

func TestPreflight_DebugVersionTwice(t *testing.T) {
	_, err := Preflight(context.Background(), `
facts.version("1.0.0")
try(func() { facts.dbg_version("1.0.1") }, nil)
try(func() { facts.dbg_version("1.0.2") }, nil)
`, nil)
	assert.ErrorIs(t, err, ErrVersionSetTwice)
}

func TestPreflightExecutor_DebugVersionReplaced(t *testing.T) {
	exec := &PreflightExecutor{}
	require.NoError(t, exec.SetDebugVersion(runtime.Version{Kind: runtime.VersionLatest}))
	err := exec.SetDebugVersion(runtime.Version{Kind: runtime.VersionLocal, Path: "/x"})
	assert.ErrorIs(t, err, ErrVersionSetTwice)
	assert.Equal(t, "/x", exec.debug.Path)
}

func TestPreflight_IgnoresLaterScriptErrors(t *testing.T) {
	req, err := Preflight(context.Background(), `
facts.version("0.4.0")
facts.some_future_builtin()
`, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", req.Version.String())
}

func TestPreflight_FatalAfterVersion(t *testing.T) {
	req, err := Preflight(context.Background(), `
facts.version("0.4.0")
facts.fatal_error("boom")
`, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", req.Version.String())
}

func TestPreflight_QueriesReturnEmpty(t *testing.T) {
	req, err := Preflight(context.Background(), `
facts.version("0.1.0")
fns := facts.query_functions({"crate_name": "c", "path": ["f"], "impl_block_number": nil})
assert(len(fns) == 0)
facts.dbg_version("latest")
`, nil)
	require.NoError(t, err)
	require.NotNil(t, req.Debug)
	assert.Equal(t, runtime.VersionLatest, req.Debug.Kind)
}

func TestRequest_Effective(t *testing.T) {
	rel := runtime.Version{Kind: runtime.VersionExact, Major: 1}
	dbg := runtime.Version{Kind: runtime.VersionLocal, Path: "/src"}

	assert.Equal(t, rel, Request{Version: rel}.Effective(true))
	assert.Equal(t, rel, Request{Version: rel, Debug: &dbg}.Effective(false))
	assert.Equal(t, dbg, Request{Version: rel, Debug: &dbg}.Effective(true))
}
