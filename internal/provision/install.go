package provision

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/minio/highwayhash"
	"golang.org/x/mod/semver"

	"github.com/jward/gofacts/internal/runtime"
)

const (
	// ModulePath is the module the engine is installed from.
	ModulePath = "github.com/jward/gofacts"
	// BinaryName is the installed command.
	BinaryName = "gofacts"

	develVersion = "(devel)"
)

// localKey keys the per-checkout cache directory for local: versions.
var localKey = []byte("gofacts-local-install-cache-key!")

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// BuildInfo is the part of `go version -m` output the installer reads.
type BuildInfo struct {
	GoVersion  string
	Path       string
	ModPath    string
	ModVersion string
}

// ParseBuildInfo parses the output of `go version -m <binary>`.
func ParseBuildInfo(out []byte) (BuildInfo, error) {
	var info BuildInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first {
			first = false
			if _, v, ok := strings.Cut(line, ": "); ok {
				info.GoVersion = strings.TrimSpace(v)
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "path":
			info.Path = fields[1]
		case "mod":
			info.ModPath = fields[1]
			if len(fields) >= 3 {
				info.ModVersion = fields[2]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return BuildInfo{}, fmt.Errorf("provision: reading build info: %w", err)
	}
	if info.ModPath == "" {
		return BuildInfo{}, fmt.Errorf("provision: build info has no main module")
	}
	return info, nil
}

// CurrentVersion returns the main module version of the running binary,
// "(devel)" for source builds.
func CurrentVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return develVersion
	}
	return bi.Main.Version
}

// IsDevBuild reports whether version denotes a build from source.
func IsDevBuild(version string) bool {
	return version == develVersion || !semver.IsValid(version)
}

// Satisfies reports whether a binary at version running answers req without
// reinstalling. Latest and local requests always need an install.
func Satisfies(running string, req runtime.Version) bool {
	if req.Kind != runtime.VersionExact || !semver.IsValid(running) {
		return false
	}
	return semver.Compare(semver.Canonical(running), req.Semver()) == 0
}

// Installer builds requested versions into a per-version cache directory.
type Installer struct {
	CacheDir string
	Runner   Runner
	Logger   *slog.Logger
}

// NewInstaller caches under cacheDir, or the user cache directory when empty.
func NewInstaller(cacheDir string, logger *slog.Logger) (*Installer, error) {
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("provision: locating cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, BinaryName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{CacheDir: cacheDir, Runner: ExecRunner{}, Logger: logger}, nil
}

// BinDir is the GOBIN used for v.
func (i *Installer) BinDir(v runtime.Version) string {
	switch v.Kind {
	case runtime.VersionLatest:
		return filepath.Join(i.CacheDir, "latest")
	case runtime.VersionLocal:
		h, _ := highwayhash.New64(localKey)
		h.Write([]byte(v.Path))
		return filepath.Join(i.CacheDir, "local-"+hex.EncodeToString(h.Sum(nil)))
	default:
		return filepath.Join(i.CacheDir, v.Semver())
	}
}

// BinaryPath is where the binary for v is installed.
func (i *Installer) BinaryPath(v runtime.Version) string {
	return filepath.Join(i.BinDir(v), BinaryName)
}

// Installed reports whether the cache already holds a binary for v. Latest
// is never considered installed.
func (i *Installer) Installed(ctx context.Context, v runtime.Version) (bool, error) {
	if v.Kind == runtime.VersionLatest {
		return false, nil
	}
	bin := i.BinaryPath(v)
	if _, err := os.Stat(bin); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("provision: stat %s: %w", bin, err)
	}
	out, err := i.Runner.Run(ctx, "", nil, "go", "version", "-m", bin)
	if err != nil {
		return false, fmt.Errorf("provision: go version -m %s: %w", bin, err)
	}
	info, err := ParseBuildInfo(out)
	if err != nil {
		return false, err
	}
	if v.Kind == runtime.VersionLocal {
		return info.ModVersion == develVersion, nil
	}
	return info.ModVersion == v.Semver(), nil
}

// Install makes sure a binary for v exists and returns its path.
func (i *Installer) Install(ctx context.Context, v runtime.Version) (string, error) {
	ok, err := i.Installed(ctx, v)
	if err != nil {
		return "", err
	}
	bin := i.BinaryPath(v)
	if ok {
		return bin, nil
	}

	i.Logger.Info("missing desired version, installing", "version", v.String(), "dir", i.BinDir(v))

	env := []string{"GOBIN=" + i.BinDir(v)}
	var (
		dir  string
		args []string
	)
	switch v.Kind {
	case runtime.VersionLocal:
		dir = v.Path
		args = []string{"install", "./cmd/" + BinaryName}
	case runtime.VersionLatest:
		args = []string{"install", ModulePath + "/cmd/" + BinaryName + "@latest"}
	default:
		args = []string{"install", ModulePath + "/cmd/" + BinaryName + "@" + v.Semver()}
	}

	out, err := i.Runner.Run(ctx, dir, env, "go", args...)
	if err != nil {
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			i.Logger.Error("[go] " + line)
		}
		return "", fmt.Errorf("provision: go %s: %w", strings.Join(args, " "), err)
	}
	return bin, nil
}
