// Package build sequences the stages that turn the upstream tree into the
// aggregated library and its bindings.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goplus/spdkgen/internal/archive"
	"github.com/goplus/spdkgen/internal/bindgen"
	"github.com/goplus/spdkgen/internal/config"
	"github.com/goplus/spdkgen/internal/env"
	"github.com/goplus/spdkgen/internal/link"
	"github.com/goplus/spdkgen/internal/native"
	"github.com/goplus/spdkgen/internal/proc"
	"github.com/goplus/spdkgen/internal/vcs"
	"github.com/qiniu/x/log"
	"golang.org/x/sync/errgroup"
)

// Stage names a pipeline step in errors and logs.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageConfigure Stage = "configure"
	StageBuild     Stage = "build"
	StageLink      Stage = "link"
	StageParse     Stage = "parse"
)

// StageError is a failure of one stage. It unwraps to the cause, which is
// a *proc.ExitError when an external tool failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode returns the exit status of the failed tool, or -1.
func (e *StageError) ExitCode() int { return proc.ExitCode(e.Err) }

// Stderr returns the tail of the failed tool's diagnostic output.
func (e *StageError) Stderr() string {
	var ee *proc.ExitError
	if errors.As(e.Err, &ee) {
		return ee.Result.Stderr
	}
	return ""
}

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// Artifacts are the outputs of a successful run.
type Artifacts struct {
	Bindings string
	Library  string
	Link     link.Spec
}

// Pipeline runs the stages for one output directory. It is single use.
type Pipeline struct {
	env    *env.BuildEnvironment
	cfg    *config.Config
	filter *bindgen.Filter
	runner proc.Runner

	strictFetch bool
	concurrent  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// StrictFetch makes a failed fetch fatal. By default it is logged and the
// pipeline continues with whatever tree is on disk.
func StrictFetch() Option {
	return func(p *Pipeline) {
		p.strictFetch = true
	}
}

// Concurrent runs the link and bindgen stages in parallel. The first
// failure cancels the other.
func Concurrent() Option {
	return func(p *Pipeline) {
		p.concurrent = true
	}
}

// WithRunner replaces the process runner.
func WithRunner(r proc.Runner) Option {
	return func(p *Pipeline) {
		p.runner = r
	}
}

// New returns a pipeline for e described by cfg.
func New(e *env.BuildEnvironment, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	filter, err := bindgen.NewFilter(cfg.Rules())
	if err != nil {
		return nil, err
	}
	p := &Pipeline{env: e, cfg: cfg, filter: filter}
	for _, opt := range opts {
		opt(p)
	}
	if p.runner == nil {
		p.runner = proc.New()
	}
	return p, nil
}

func (p *Pipeline) Env() *env.BuildEnvironment { return p.env }

func (p *Pipeline) provisioner() *vcs.Provisioner {
	src := p.cfg.Source
	opts := []vcs.Option{vcs.WithGitPath(src.Git)}
	if src.Remote != "" {
		opts = append(opts, vcs.WithRemote(src.Remote, src.Ref))
	}
	return vcs.New(p.runner, opts...)
}

func (p *Pipeline) project() *native.Project {
	c := p.cfg
	return native.New(p.runner,
		native.WithConfigure(c.Configure.Shell, c.Configure.Script, c.Configure.Flags...),
		native.WithMake(c.Make.Tool, c.Make.Args...),
		native.WithArchArgs(native.ArchArgs(c.Make.ArchArgs)),
	)
}

func (p *Pipeline) aggregator() *archive.Aggregator {
	a := p.cfg.Archive
	return &archive.Aggregator{
		Scanner: archive.Scanner{Prefix: a.Prefix, Suffix: a.Suffix, Exclude: a.Exclude},
		Linker:  archive.NewLinker(p.runner, a.CC, a.SystemLibs...),
		Dirs:    a.Dirs,
		Output:  a.Output,
	}
}

func (p *Pipeline) generator() *bindgen.Generator {
	b := p.cfg.Bindgen
	return bindgen.NewGenerator(p.runner, p.filter, bindgen.Options{
		CC:          b.CC,
		Header:      b.Header,
		IncludeDirs: b.IncludeDirs,
		Defines:     b.Defines,
		Package:     b.Package,
		Output:      b.Output,
		Libs:        p.cfg.Link.Libs,
	})
}

// LinkSpec returns the directives the host build must apply.
func (p *Pipeline) LinkSpec() link.Spec {
	return p.generator().Link(p.env)
}

// Fetch makes sure the source tree is checked out.
func (p *Pipeline) Fetch(ctx context.Context) error {
	_, err := p.provisioner().Provision(ctx, p.env.SourceRoot())
	if err == nil {
		return nil
	}
	if p.strictFetch || ctx.Err() != nil {
		return stageError(StageFetch, err)
	}
	log.Warnf("%v", err)
	log.Warnf("fetch: continuing with the tree on disk")
	return nil
}

// Configure runs the upstream configure script.
func (p *Pipeline) Configure(ctx context.Context) error {
	return stageError(StageConfigure, p.project().Configure(ctx, p.env))
}

// Build runs the upstream native build.
func (p *Pipeline) Build(ctx context.Context) error {
	return stageError(StageBuild, p.project().Build(ctx, p.env))
}

// Link merges the static archives into the aggregated library.
func (p *Pipeline) Link(ctx context.Context) (string, error) {
	path, err := p.aggregator().Aggregate(ctx, p.env)
	return path, stageError(StageLink, err)
}

// Bindgen generates the binding file.
func (p *Pipeline) Bindgen(ctx context.Context) (string, error) {
	path, err := p.generator().Generate(ctx, p.env)
	return path, stageError(StageParse, err)
}

// Run executes every stage in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context) (*Artifacts, error) {
	start := time.Now()
	log.Infof("spdkgen: %s", p.env)

	if err := p.Fetch(ctx); err != nil {
		return nil, err
	}
	if err := p.Configure(ctx); err != nil {
		return nil, err
	}
	if err := p.Build(ctx); err != nil {
		return nil, err
	}

	art := &Artifacts{Link: p.LinkSpec()}
	if p.concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			art.Library, err = p.Link(gctx)
			return err
		})
		g.Go(func() (err error) {
			art.Bindings, err = p.Bindgen(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if art.Library, err = p.Link(ctx); err != nil {
			return nil, err
		}
		if art.Bindings, err = p.Bindgen(ctx); err != nil {
			return nil, err
		}
	}

	if err := p.saveManifest(art); err != nil {
		log.Warnf("manifest: %v", err)
	}
	log.Infof("spdkgen: done in %v", time.Since(start).Round(time.Millisecond))
	return art, nil
}
