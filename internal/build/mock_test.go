package build

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goplus/spdkgen/internal/proc"
)

// mockRunner records commands instead of running them. Commands whose
// name is in fail exit with the given status.
type mockRunner struct {
	mu   sync.Mutex
	cmds []proc.Cmd
	fail map[string]int
}

func newMockRunner(fail map[string]int) *mockRunner {
	return &mockRunner{fail: fail}
}

func (m *mockRunner) Run(ctx context.Context, cmd proc.Cmd) (*proc.Result, error) {
	m.mu.Lock()
	m.cmds = append(m.cmds, cmd)
	code := m.fail[cmd.Name]
	m.mu.Unlock()

	res := &proc.Result{Cmd: cmd, ExitCode: code}
	if code == 0 {
		return res, nil
	}
	res.Stderr = fmt.Sprintf("%s: simulated failure\n", cmd.Name)
	return res, &proc.ExitError{Result: res, Err: errors.New("simulated failure")}
}

func (m *mockRunner) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.cmds))
	for i, c := range m.cmds {
		names[i] = c.Name
	}
	return names
}
