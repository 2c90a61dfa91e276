// Package bindgen generates the Go binding layer of the aggregated library
// from its umbrella C header.
package bindgen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/spdkgen/internal/env"
	"github.com/goplus/spdkgen/internal/link"
	"github.com/goplus/spdkgen/internal/proc"
	"github.com/qiniu/x/log"
)

// Options configure a Generator.
type Options struct {
	CC          string
	Header      string   // umbrella header; relative paths resolve against the working directory
	IncludeDirs []string // relative to the source root
	Defines     []string // NAME or NAME=VALUE, passed to the preprocessor and cgo
	Package     string
	Output      string // file name inside the output directory

	// Libs are the link libraries written into the cgo preamble. The first
	// is the aggregated library in the output directory.
	Libs []string
}

// Generator turns the umbrella header into a cgo source file.
type Generator struct {
	runner proc.Runner
	filter *Filter
	opts   Options
}

func NewGenerator(runner proc.Runner, filter *Filter, opts Options) *Generator {
	if opts.CC == "" {
		opts.CC = "cc"
	}
	return &Generator{runner: runner, filter: filter, opts: opts}
}

// Header returns the absolute path of the umbrella header.
func (g *Generator) Header() (string, error) {
	return filepath.Abs(g.opts.Header)
}

// Link returns the link specification the generated file carries.
func (g *Generator) Link(e *env.BuildEnvironment) link.Spec {
	header, err := g.Header()
	if err != nil {
		header = g.opts.Header
	}
	return link.Default(e.OutDir(), g.opts.Libs, header)
}

// IncludeDirs returns the absolute include directories. They are produced
// by the native build, so a missing one is an error.
func (g *Generator) IncludeDirs(e *env.BuildEnvironment) ([]string, error) {
	dirs := make([]string, len(g.opts.IncludeDirs))
	for i, d := range g.opts.IncludeDirs {
		dirs[i] = e.Path(d)
		fi, err := os.Stat(dirs[i])
		if err != nil {
			return nil, fmt.Errorf("include directory: %w", err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("include directory %s is not a directory", dirs[i])
		}
	}
	return dirs, nil
}

// PreprocessCommand returns the preprocessor invocation for header.
func (g *Generator) PreprocessCommand(header string, includeDirs []string) proc.Cmd {
	args := []string{"-E", "-dD"}
	for _, d := range compatDefines {
		args = append(args, "-D"+d)
	}
	for _, d := range g.opts.Defines {
		args = append(args, "-D"+d)
	}
	for _, d := range includeDirs {
		args = append(args, "-I"+d)
	}
	args = append(args, header)
	return proc.Cmd{Name: g.opts.CC, Args: args, Dir: filepath.Dir(header)}
}

// Preprocess runs the preprocessor over header.
func (g *Generator) Preprocess(ctx context.Context, header string, includeDirs []string) (*Source, error) {
	var out bytes.Buffer
	cmd := g.PreprocessCommand(header, includeDirs)
	cmd.Stdout = &out
	if _, err := g.runner.Run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", filepath.Base(header), err)
	}
	return NewSource(out.Bytes()), nil
}

// Generate writes the bindings into the output directory and returns the
// file path.
func (g *Generator) Generate(ctx context.Context, e *env.BuildEnvironment) (string, error) {
	start := time.Now()
	includes, err := g.IncludeDirs(e)
	if err != nil {
		return "", err
	}
	header, err := g.Header()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(header); err != nil {
		return "", fmt.Errorf("umbrella header: %w", err)
	}

	src, err := g.Preprocess(ctx, header, includes)
	if err != nil {
		return "", err
	}
	h, err := Parse(ctx, src, g.filter)
	if err != nil {
		return "", err
	}
	log.Debugf("bindgen: %d macros, %d records, %d enums, %d typedefs, %d functions",
		len(h.Macros), len(h.Records), len(h.Enums), len(h.Typedefs), len(h.Functions))

	opts := EmitOptions{
		Package:  g.opts.Package,
		Source:   filepath.Base(header),
		Include:  header,
		LDFlags:  g.Link(e).LDFlags(),
		WrapDirs: append([]string{filepath.Dir(header)}, includes...),
	}
	for _, d := range includes {
		opts.CFlags = append(opts.CFlags, "-I"+d)
	}
	for _, d := range g.opts.Defines {
		opts.CFlags = append(opts.CFlags, "-D"+d)
	}
	code, err := Emit(h, g.filter, opts)
	if err != nil {
		return "", err
	}

	out := e.OutPath(g.opts.Output)
	if err := writeFile(out, code); err != nil {
		return "", err
	}
	log.Infof("bindgen: %s (%s)", out, time.Since(start).Round(time.Millisecond))
	return out, nil
}

// writeFile replaces path with data in one rename.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(f.Name(), 0o644)
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		os.Remove(f.Name())
	}
	return err
}
