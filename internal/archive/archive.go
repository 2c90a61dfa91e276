// Package archive merges the static archives of a native build into one
// shared object.
package archive

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/spdkgen/internal/env"
	"github.com/goplus/spdkgen/internal/proc"
	"github.com/qiniu/x/log"
)

// Set is an ordered list of archive paths. The order is the order on the
// linker command line.
type Set []string

// Scanner selects archives in build output directories.
type Scanner struct {
	Prefix  string
	Suffix  string
	Exclude []string // exact file names
}

// Match reports whether the file name is selected.
func (s Scanner) Match(name string) bool {
	if slices.Contains(s.Exclude, name) {
		return false
	}
	return strings.HasPrefix(name, s.Prefix) && strings.HasSuffix(name, s.Suffix)
}

// Discover lists the matching entries of each directory, one level deep.
// Directories are visited in the given order and entries in name order.
// A missing directory is an error.
func (s Scanner) Discover(dirs ...string) (Set, error) {
	var set Set
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("scan archives: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !s.Match(entry.Name()) {
				continue
			}
			set = append(set, filepath.Join(dir, entry.Name()))
		}
	}
	return set, nil
}

// Linker drives the C compiler in shared-object mode.
type Linker struct {
	runner     proc.Runner
	cc         string
	systemLibs []string
}

// NewLinker returns a Linker using cc that also links systemLibs.
func NewLinker(runner proc.Runner, cc string, systemLibs ...string) *Linker {
	if cc == "" {
		cc = "cc"
	}
	return &Linker{runner: runner, cc: cc, systemLibs: systemLibs}
}

// Command returns the link invocation. Every archive is wrapped in
// --whole-archive so no member is pruned, whichever archive references it.
// System libraries follow the archives so that they satisfy references
// from them under --as-needed.
func (l *Linker) Command(out string, set Set) proc.Cmd {
	args := []string{"-shared", "-o", out, "-Wl,--whole-archive"}
	args = append(args, set...)
	args = append(args, "-Wl,--no-whole-archive")
	for _, lib := range l.systemLibs {
		args = append(args, "-l"+lib)
	}
	return proc.Cmd{Name: l.cc, Args: args, Dir: filepath.Dir(out)}
}

// Link writes the shared object out from set.
func (l *Linker) Link(ctx context.Context, out string, set Set) error {
	if len(set) == 0 {
		return fmt.Errorf("link %s: no archives", filepath.Base(out))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	cmd := l.Command(out, set)
	log.Infof("link: %s (%d archives)", filepath.Base(out), len(set))
	log.Debugf("link: %s", cmd)
	if _, err := l.runner.Run(ctx, cmd); err != nil {
		return err
	}
	fi, err := os.Stat(out)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return fmt.Errorf("link %s: empty output", out)
	}
	return nil
}

// Aggregator discovers archives under the build and merges them.
type Aggregator struct {
	Scanner Scanner
	Linker  *Linker
	Dirs    []string // relative to the source root
	Output  string   // file name inside the output directory
}

// Aggregate builds e.OutDir()/a.Output and returns its path.
func (a *Aggregator) Aggregate(ctx context.Context, e *env.BuildEnvironment) (string, error) {
	dirs := make([]string, len(a.Dirs))
	for i, d := range a.Dirs {
		dirs[i] = e.Path(d)
	}
	set, err := a.Scanner.Discover(dirs...)
	if err != nil {
		return "", err
	}
	out := e.OutPath(a.Output)
	if err := a.Linker.Link(ctx, out, set); err != nil {
		return "", err
	}
	if syms, err := ExportedSymbols(out); err == nil {
		log.Infof("link: %s exports %d symbols", filepath.Base(out), len(syms))
	} else {
		log.Warnf("link: read symbols of %s: %v", out, err)
	}
	return out, nil
}

// ExportedSymbols returns the names of the defined dynamic symbols of the
// ELF shared object at path, sorted.
func ExportedSymbols(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF || s.Name == "" {
			continue
		}
		names = append(names, s.Name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
