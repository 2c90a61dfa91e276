// Package proc runs external tools and reports their outcome.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/qiniu/x/log"
)

// Cmd describes one invocation of an external tool.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string // overrides on top of the current environment

	// Stdout, if set, receives the tool's standard output instead of the
	// runner's default writer.
	Stdout io.Writer
}

// String renders the command line as it would be typed in a shell.
func (c Cmd) String() string {
	parts := make([]string, 0, 1+len(c.Args))
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Result is the outcome of a finished command.
type Result struct {
	Cmd      Cmd
	ExitCode int    // -1 if the process never started
	Stderr   string // tail of the diagnostic output
	Duration time.Duration
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// ExitError is returned when a command fails. It carries the result so
// callers can attach context without re-running the tool.
type ExitError struct {
	Result *Result
	Err    error
}

func (e *ExitError) Error() string {
	if e.Result.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Result.Cmd.Name, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Result.Cmd.Name, e.Result.ExitCode)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Result.ExitCode
	}
	return -1
}

// Runner executes commands. Tests substitute their own implementation.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Cmd) (*Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Cmd) (*Result, error) { return f(ctx, cmd) }

const defaultTail = 32 << 10

type execRunner struct {
	stdout io.Writer
	stderr io.Writer
	tail   int
}

// Option configures the runner returned by New.
type Option func(*execRunner)

// WithOutput sets where child stdout and stderr are streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *execRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithTail sets how many bytes of stderr are kept in Result.Stderr.
func WithTail(n int) Option {
	return func(r *execRunner) {
		r.tail = n
	}
}

// New returns a Runner backed by os/exec. Child output is streamed verbatim
// to the configured writers (os.Stdout and os.Stderr by default).
func New(opts ...Option) Runner {
	r := &execRunner{stdout: os.Stdout, stderr: os.Stderr, tail: defaultTail}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *execRunner) Run(ctx context.Context, c Cmd) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), c.Env)
	}
	tail := newTailBuffer(r.tail)
	cmd.Stdout = r.stdout
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	cmd.Stderr = io.MultiWriter(r.stderr, tail)
	setProcessGroup(cmd)

	log.Debugf("run: %s (dir %s)", c, c.Dir)
	start := time.Now()
	err := cmd.Run()
	res := &Result{Cmd: c, Stderr: tail.String(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return res, &ExitError{Result: res, Err: err}
}

// mergeEnv returns base with every key in overrides replaced or appended.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, len(base))
	copy(out, base)
	idx := make(map[string]int, len(out))
	for i, kv := range out {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[k] = i
		}
	}
	for k, v := range overrides {
		if i, ok := idx[k]; ok {
			out[i] = k + "=" + v
		} else {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if t.max <= 0 {
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	if t.truncated {
		return "...\n" + string(t.buf)
	}
	return string(t.buf)
}
