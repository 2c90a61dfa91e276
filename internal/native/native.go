// Package native drives the upstream configure script and make.
package native

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/goplus/spdkgen/internal/env"
	"github.com/goplus/spdkgen/internal/proc"
	"github.com/qiniu/x/log"
)

// ArchArgs maps a GOARCH name to extra make arguments for that target.
type ArchArgs map[string][]string

// For returns the extra arguments for arch, or nil.
func (a ArchArgs) For(arch string) []string {
	return slices.Clone(a[env.NormalizeArch(arch)])
}

// Project configures and builds an upstream source tree in place.
type Project struct {
	runner proc.Runner

	shell    string
	script   string
	flags    []string
	make     string
	makeArgs []string
	archArgs ArchArgs
	env      map[string]string
}

// Option configures a Project.
type Option func(*Project)

// WithConfigure sets how the configure script is invoked:
// shell script flags... . An empty shell executes the script directly.
func WithConfigure(shell, script string, flags ...string) Option {
	return func(p *Project) {
		p.shell = shell
		p.script = script
		p.flags = flags
	}
}

// WithMake sets the make executable and arguments appended after -j.
func WithMake(tool string, args ...string) Option {
	return func(p *Project) {
		p.make = tool
		p.makeArgs = args
	}
}

// WithArchArgs sets the per-architecture make arguments.
func WithArchArgs(a ArchArgs) Option {
	return func(p *Project) {
		p.archArgs = a
	}
}

// WithEnv sets key=value for every command the project runs.
func WithEnv(key, value string) Option {
	return func(p *Project) {
		if p.env == nil {
			p.env = make(map[string]string)
		}
		p.env[key] = value
	}
}

// New returns a Project with the SPDK defaults: "bash ./configure" and
// "make".
func New(runner proc.Runner, opts ...Option) *Project {
	p := &Project{
		runner: runner,
		shell:  "bash",
		script: "./configure",
		make:   "make",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ConfigureCommand returns the configure invocation for e.
func (p *Project) ConfigureCommand(e *env.BuildEnvironment) proc.Cmd {
	name, args := p.script, slices.Clone(p.flags)
	if p.shell != "" {
		name, args = p.shell, append([]string{p.script}, p.flags...)
	}
	return proc.Cmd{Name: name, Args: args, Dir: e.SourceRoot(), Env: maps.Clone(p.env)}
}

// BuildCommand returns the make invocation for e. The arguments for the
// target architecture are resolved here, once.
func (p *Project) BuildCommand(e *env.BuildEnvironment) proc.Cmd {
	args := []string{fmt.Sprintf("-j%d", e.Jobs())}
	args = append(args, p.archArgs.For(e.Arch())...)
	args = append(args, p.makeArgs...)
	return proc.Cmd{Name: p.make, Args: args, Dir: e.SourceRoot(), Env: maps.Clone(p.env)}
}

// Configure runs the configure script. A non-zero exit is returned as a
// *proc.ExitError.
func (p *Project) Configure(ctx context.Context, e *env.BuildEnvironment) error {
	cmd := p.ConfigureCommand(e)
	log.Infof("configure: %s", cmd)
	_, err := p.runner.Run(ctx, cmd)
	return err
}

// Build runs make with e.Jobs() parallel jobs.
func (p *Project) Build(ctx context.Context, e *env.BuildEnvironment) error {
	cmd := p.BuildCommand(e)
	log.Infof("build: %s", cmd)
	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	log.Infof("build: done in %v", res.Duration.Round(time.Millisecond))
	return nil
}
