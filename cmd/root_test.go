package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	err := Execute(context.Background(), []string{"--version"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecute_Help verifies --help returns without error.
func TestExecute_Help(t *testing.T) {
	err := Execute(context.Background(), []string{"--help"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	err := Execute(context.Background(), []string{"--nonexistent-flag"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

// TestExecute_UnexpectedArgument verifies positional args are rejected.
func TestExecute_UnexpectedArgument(t *testing.T) {
	err := Execute(context.Background(), []string{"--safe-mode", "example.com"})
	if err == nil {
		t.Fatal("expected error for positional argument")
	}
}

// TestExecute_ConflictingFlags verifies the -l / --connections-only
// conflict is caught.
func TestExecute_ConflictingFlags(t *testing.T) {
	err := Execute(context.Background(), []string{"-l", "--connections-only", "--safe-mode"})
	if err == nil {
		t.Fatal("expected error for -l and --connections-only conflict")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("error should mention mutually exclusive: %v", err)
	}
}

// TestExecute_SafeModeRun runs a full simulated disconnect end to end.
func TestExecute_SafeModeRun(t *testing.T) {
	err := Execute(context.Background(), []string{"--safe-mode", "-y"})
	if err != nil {
		t.Fatalf("safe-mode run failed: %v", err)
	}
}

// TestExecute_SafeModeList runs the listing path against the simulated
// adapters.
func TestExecute_SafeModeList(t *testing.T) {
	err := Execute(context.Background(), []string{"--safe-mode", "-l"})
	if err != nil {
		t.Fatalf("safe-mode list failed: %v", err)
	}
}

// TestExecute_EnvSafeMode verifies the SEVER_ environment overlay.
func TestExecute_EnvSafeMode(t *testing.T) {
	t.Setenv("SEVER_SAFE_MODE", "1")
	t.Setenv("SEVER_YES", "1")

	err := Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("env-driven safe-mode run failed: %v", err)
	}
}

// TestExecute_MalformedPolicy verifies a broken policy file aborts the
// run before anything is built.
func TestExecute_MalformedPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte("client_process_names = nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Execute(context.Background(), []string{"--safe-mode", "-y", "--policy", path})
	if err == nil {
		t.Fatal("expected policy parse error")
	}
}
