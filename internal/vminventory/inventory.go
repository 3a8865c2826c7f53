// Package vminventory answers one question for the match loop's liveness
// path (spec §4.5 step 3): "does the VM behind this agent still exist?" —
// consulted only after a health probe has already failed, to decide
// whether an offline agent should be further demoted to deleted.
package vminventory

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Checker reports whether the VM/container backing agentName still exists
// in the deployment's inventory.
type Checker interface {
	Exists(ctx context.Context, agentName string) (bool, error)
}

// CommandChecker shells out to an operator-supplied inventory command,
// grounded on the agent mesh's wake-hook execution pattern
// (pkg/agent/node_runtime.go's runWakeHook): exec.CommandContext with a
// bounded timeout, the agent name passed via environment, exit code
// decides the answer (0 = exists, non-zero = gone).
type CommandChecker struct {
	Command string
	Timeout time.Duration
}

// NewCommandChecker builds a checker around command, a shell one-liner
// that exits 0 if the named VM/container is present.
func NewCommandChecker(command string, timeout time.Duration) *CommandChecker {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &CommandChecker{Command: command, Timeout: timeout}
}

func (c *CommandChecker) Exists(ctx context.Context, agentName string) (bool, error) {
	if strings.TrimSpace(c.Command) == "" {
		return true, nil // no inventory configured: never downgrade to deleted
	}
	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/C", c.Command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", c.Command)
	}
	cmd.Env = append(os.Environ(), "PROOFOFFLIP_AGENT_NAME="+agentName)

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if runCtx.Err() != nil {
		return false, fmt.Errorf("vminventory: inventory command did not finish: %w", runCtx.Err())
	}
	var exitErr *exec.ExitError
	if ok := isExitError(err, &exitErr); ok {
		return false, nil
	}
	return false, fmt.Errorf("vminventory: running inventory command: %w", err)
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// StaticChecker is a test double returning a fixed answer per agent name.
type StaticChecker struct {
	Exist map[string]bool
}

func (s StaticChecker) Exists(ctx context.Context, agentName string) (bool, error) {
	if s.Exist == nil {
		return true, nil
	}
	exists, known := s.Exist[agentName]
	if !known {
		return true, nil
	}
	return exists, nil
}
