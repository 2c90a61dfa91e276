// Package vcs makes sure the upstream source tree is checked out locally.
package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/spdkgen/internal/proc"
	"github.com/qiniu/x/log"
)

// markerName is the version-control metadata entry whose presence means the
// tree has been fetched. Inside a superproject it is a file, not a directory.
const markerName = ".git"

// FetchError reports a failed fetch. The pipeline decides whether it is fatal.
type FetchError struct {
	Dir    string
	Result *proc.Result
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.Dir, e.Err)
	if e.Result != nil && e.Result.Stderr != "" {
		msg += "\n" + e.Result.Stderr
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Provisioner fetches the upstream tree and all nested trees with git.
type Provisioner struct {
	git    string
	remote string
	ref    string
	runner proc.Runner
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) Option {
	return func(p *Provisioner) {
		p.git = path
	}
}

// WithRemote clones remote at ref instead of initializing submodules of the
// enclosing repository. An empty ref means the remote's default branch.
func WithRemote(remote, ref string) Option {
	return func(p *Provisioner) {
		p.remote = remote
		p.ref = ref
	}
}

// New creates a Provisioner that runs git through runner.
func New(runner proc.Runner, opts ...Option) *Provisioner {
	p := &Provisioner{git: "git", runner: runner}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Present reports whether sourceRoot already carries the checkout marker.
func Present(sourceRoot string) bool {
	_, err := os.Stat(filepath.Join(sourceRoot, markerName))
	return err == nil
}

// Provision ensures a complete checkout exists at sourceRoot. It is a no-op
// when the marker is present. fetched reports whether git was invoked.
func (p *Provisioner) Provision(ctx context.Context, sourceRoot string) (fetched bool, err error) {
	if Present(sourceRoot) {
		log.Debugf("vcs: %s already checked out", sourceRoot)
		return false, nil
	}
	cmd := p.Command(sourceRoot)
	log.Infof("vcs: fetching %s", sourceRoot)
	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return true, &FetchError{Dir: sourceRoot, Result: res, Err: err}
	}
	return true, nil
}

// Command returns the git invocation Provision would run for sourceRoot.
func (p *Provisioner) Command(sourceRoot string) proc.Cmd {
	parent := filepath.Dir(sourceRoot)
	if p.remote != "" {
		args := []string{"clone", "--recursive"}
		if p.ref != "" {
			args = append(args, "--branch", p.ref)
		}
		args = append(args, p.remote, sourceRoot)
		return proc.Cmd{Name: p.git, Args: args, Dir: parent}
	}
	return proc.Cmd{
		Name: p.git,
		Args: []string{"submodule", "update", "--init", "--recursive"},
		Dir:  parent,
	}
}
