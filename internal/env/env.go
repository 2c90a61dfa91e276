// Package env holds the immutable build environment shared by every stage.
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// WorkDir returns the per-user directory used when the host build does not
// supply an output directory.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".spdkgen"), nil
}

// BuildEnvironment is a snapshot of the parameters supplied by the host
// build. It is constructed once and never mutated.
type BuildEnvironment struct {
	outDir     string
	jobs       int
	arch       string
	sourceRoot string
}

// Options are the raw inputs to New.
type Options struct {
	OutDir     string
	Jobs       int
	Arch       string
	SourceRoot string
}

// New validates opts and returns the environment.
// Paths are made absolute and the architecture is normalized.
func New(opts Options) (*BuildEnvironment, error) {
	if opts.OutDir == "" {
		return nil, errors.New("env: output directory is required")
	}
	if opts.SourceRoot == "" {
		return nil, errors.New("env: source root is required")
	}
	if opts.Jobs < 1 {
		return nil, fmt.Errorf("env: invalid job count %d", opts.Jobs)
	}
	arch := NormalizeArch(opts.Arch)
	if arch == "" {
		return nil, errors.New("env: target architecture is required")
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, err
	}
	sourceRoot, err := filepath.Abs(opts.SourceRoot)
	if err != nil {
		return nil, err
	}
	return &BuildEnvironment{
		outDir:     outDir,
		jobs:       opts.Jobs,
		arch:       arch,
		sourceRoot: sourceRoot,
	}, nil
}

func (e *BuildEnvironment) OutDir() string     { return e.outDir }
func (e *BuildEnvironment) Jobs() int          { return e.jobs }
func (e *BuildEnvironment) Arch() string       { return e.arch }
func (e *BuildEnvironment) SourceRoot() string { return e.sourceRoot }

// Path joins elem onto the source root.
func (e *BuildEnvironment) Path(elem ...string) string {
	return filepath.Join(append([]string{e.sourceRoot}, elem...)...)
}

// OutPath joins name onto the output directory.
func (e *BuildEnvironment) OutPath(name string) string {
	return filepath.Join(e.outDir, name)
}

func (e *BuildEnvironment) String() string {
	return fmt.Sprintf("out=%s jobs=%d arch=%s source=%s", e.outDir, e.jobs, e.arch, e.sourceRoot)
}

var archAliases = map[string]string{
	"aarch64": "arm64",
	"x86_64":  "amd64",
	"x86-64":  "amd64",
	"i386":    "386",
	"i686":    "386",
	"armv7":   "arm",
	"ppc64el": "ppc64le",
}

// NormalizeArch maps toolchain spellings of an architecture to GOARCH names.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	if a, ok := archAliases[arch]; ok {
		return a
	}
	return arch
}

// Defaults fills the zero fields of opts from lookup, which is normally
// os.LookupEnv. It is meant to be called by the command line layer only.
//
//	OUT_DIR      output directory, else WorkDir()/out
//	NUM_JOBS     parallelism degree, else runtime.NumCPU()
//	TARGET_ARCH  target architecture, else GOARCH, else runtime.GOARCH
func Defaults(opts Options, lookup func(string) (string, bool)) (Options, error) {
	if opts.OutDir == "" {
		if v, ok := lookup("OUT_DIR"); ok && v != "" {
			opts.OutDir = v
		} else {
			dir, err := WorkDir()
			if err != nil {
				return opts, err
			}
			opts.OutDir = filepath.Join(dir, "out")
		}
	}
	if opts.Jobs == 0 {
		if v, ok := lookup("NUM_JOBS"); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("env: NUM_JOBS: %w", err)
			}
			opts.Jobs = n
		} else {
			opts.Jobs = runtime.NumCPU()
		}
	}
	if opts.Arch == "" {
		for _, key := range []string{"TARGET_ARCH", "GOARCH"} {
			if v, ok := lookup(key); ok && v != "" {
				opts.Arch = v
				break
			}
		}
		if opts.Arch == "" {
			opts.Arch = runtime.GOARCH
		}
	}
	return opts, nil
}
