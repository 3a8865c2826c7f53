package vminventory

import (
	"context"
	"runtime"
	"testing"
)

func TestCommandCheckerNoCommandConfiguredAlwaysExists(t *testing.T) {
	t.Parallel()
	c := NewCommandChecker("", 0)
	exists, err := c.Exists(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected an unconfigured checker to never report a VM as gone")
	}
}

func TestCommandCheckerExitCodeDecidesExistence(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command fixture assumes a POSIX shell")
	}
	t.Parallel()

	present := NewCommandChecker("exit 0", 0)
	exists, err := present.Exists(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected exit 0 to report the VM as present")
	}

	gone := NewCommandChecker("exit 1", 0)
	exists, err = gone.Exists(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected a nonzero exit code to report the VM as gone")
	}
}

func TestCommandCheckerPassesAgentNameInEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command fixture assumes a POSIX shell")
	}
	t.Parallel()

	c := NewCommandChecker(`test "$PROOFOFFLIP_AGENT_NAME" = "carol"`, 0)
	exists, err := c.Exists(context.Background(), "carol")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected the agent name to be visible to the inventory command via environment")
	}
}

func TestStaticCheckerDefaultsToExistsWhenUnknown(t *testing.T) {
	t.Parallel()
	s := StaticChecker{Exist: map[string]bool{"alice": false}}

	exists, err := s.Exists(context.Background(), "alice")
	if err != nil || exists {
		t.Fatalf("expected alice=false, got exists=%v err=%v", exists, err)
	}

	exists, err = s.Exists(context.Background(), "unknown")
	if err != nil || !exists {
		t.Fatalf("expected unknown agent to default to exists=true, got exists=%v err=%v", exists, err)
	}
}
