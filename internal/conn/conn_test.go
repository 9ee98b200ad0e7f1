package conn

import (
	"strings"
	"testing"
	"time"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{IncomingSession, "session"},
		{OutgoingClient, "client"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestConnectionIDs(t *testing.T) {
	if got := SessionConnectionID(3); got != "session-3" {
		t.Errorf("SessionConnectionID = %q", got)
	}
	if got := ClientConnectionID(4242); got != "client-4242" {
		t.Errorf("ClientConnectionID = %q", got)
	}
}

func TestBatchResult_Success(t *testing.T) {
	ok := BatchResult{Attempted: 2, Succeeded: []string{"a", "b"}}
	if !ok.Success() {
		t.Error("no failures should mean success")
	}
	bad := BatchResult{Attempted: 2, Succeeded: []string{"a"}, Failed: map[string]string{"b": "kill failed"}}
	if bad.Success() {
		t.Error("failures should mean not success")
	}
}

func TestBatchResult_Merge(t *testing.T) {
	a := BatchResult{
		Attempted: 2,
		Succeeded: []string{"session-1"},
		Failed:    map[string]string{"session-2": "timeout"},
		Elapsed:   10 * time.Millisecond,
	}
	b := BatchResult{
		Attempted: 1,
		Succeeded: []string{"client-100"},
		Failed:    map[string]string{},
		Elapsed:   30 * time.Millisecond,
	}

	m := a.Merge(b)
	if m.Attempted != 3 {
		t.Errorf("Attempted = %d, want 3", m.Attempted)
	}
	if len(m.Succeeded) != 2 {
		t.Errorf("Succeeded = %v", m.Succeeded)
	}
	if m.Failed["session-2"] != "timeout" {
		t.Errorf("Failed = %v", m.Failed)
	}
	if m.Elapsed != 30*time.Millisecond {
		t.Errorf("Elapsed = %v, want max of both", m.Elapsed)
	}

	// Merge must not alias the inputs.
	m.Failed["extra"] = "x"
	if _, ok := a.Failed["extra"]; ok {
		t.Error("merge aliased input map")
	}
}

func TestDisconnectResult_Summary(t *testing.T) {
	r := DisconnectResult{
		Success:             true,
		SessionsTerminated:  1,
		ClientsTerminated:   2,
		NetworkDisconnected: true,
		Elapsed:             1500 * time.Millisecond,
	}
	s := r.Summary()
	if !strings.HasPrefix(s, "ok:") {
		t.Errorf("summary = %q", s)
	}
	if !strings.Contains(s, "network disconnected=true") {
		t.Errorf("summary = %q", s)
	}

	r.Success = false
	if !strings.HasPrefix(r.Summary(), "FAILED:") {
		t.Errorf("summary = %q", r.Summary())
	}
}
