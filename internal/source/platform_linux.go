//go:build linux

package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"sever/internal/conn"
	severrors "sever/internal/errors"
	"sever/util"
)

// NewPlatformSessionSource returns the native session source for this
// platform.
func NewPlatformSessionSource(logger *util.Logger) (SessionSource, error) {
	return &unixSessionSource{logger: logger}, nil
}

// NewPlatformClientSource returns the native client-process source.
// clientNames lists the process names treated as remote-access
// clients (policy from configuration).
func NewPlatformClientSource(clientNames []string, logger *util.Logger) (ClientProcessSource, error) {
	return &unixClientSource{names: clientNames, logger: logger}, nil
}

// ── Session source (sshd login sessions) ─────────────────────────────

// unixSessionSource models inbound remote sessions as sshd per-login
// processes.  Each "sshd: user@pts/N" process is one remote session
// whose id is the process id; the local console is always reported as
// session 0.
type unixSessionSource struct {
	logger *util.Logger
}

const consoleStation = "console"

func (s *unixSessionSource) EnumerateSessions(ctx context.Context) ([]conn.SessionDescriptor, error) {
	out := []conn.SessionDescriptor{
		{SessionID: 0, StationName: consoleStation, State: "active"},
	}

	pids, err := listPIDs()
	if err != nil {
		return nil, severrors.WrapEnumeration("sessions", err)
	}
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		user, station, ok := sshdSession(pid)
		if !ok {
			continue
		}
		s.logger.Debug("found ssh session pid=%d user=%s station=%s", pid, user, station)
		out = append(out, conn.SessionDescriptor{
			SessionID:   pid,
			StationName: station,
			State:       "active",
		})
	}
	return out, nil
}

func (s *unixSessionSource) IsRemoteSession(d conn.SessionDescriptor) bool {
	return d.StationName != consoleStation
}

func (s *unixSessionSource) QueryDetails(_ context.Context, sessionID int) (*conn.SessionDetails, error) {
	if sessionID == 0 {
		return nil, nil
	}
	userName, _, ok := sshdSession(sessionID)
	if !ok {
		return nil, nil
	}
	return &conn.SessionDetails{UserName: userName}, nil
}

// Logoff asks the session's sshd politely; SIGHUP is what a closed
// terminal delivers.
func (s *unixSessionSource) Logoff(_ context.Context, sessionID int) error {
	return signalSession(sessionID, unix.SIGHUP)
}

func (s *unixSessionSource) Disconnect(_ context.Context, sessionID int) error {
	return signalSession(sessionID, unix.SIGTERM)
}

func (s *unixSessionSource) Force(_ context.Context, sessionID int) error {
	return signalSession(sessionID, unix.SIGKILL)
}

func signalSession(sessionID int, sig unix.Signal) error {
	if sessionID <= 0 {
		// The console is not a remote session; terminating it is an
		// invalid request, not a transient failure.
		return unix.EINVAL
	}
	return unix.Kill(sessionID, sig)
}

// sshdSession reports whether pid is an sshd per-login process and
// extracts its "user@station" parts from the process title.
func sshdSession(pid int) (userName, station string, ok bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return "", "", false
	}
	title := strings.TrimRight(strings.ReplaceAll(string(data), "\x00", " "), " ")
	return parseSSHDTitle(title)
}

// parseSSHDTitle extracts user and station from a per-login sshd
// process title such as "sshd: alice@pts/1".
func parseSSHDTitle(title string) (userName, station string, ok bool) {
	rest, found := strings.CutPrefix(title, "sshd: ")
	if !found {
		return "", "", false
	}
	at := strings.IndexByte(rest, '@')
	if at < 0 {
		return "", "", false
	}
	fields := strings.Fields(rest[at+1:])
	if len(fields) == 0 {
		return "", "", false
	}
	return rest[:at], fields[0], true
}

// ── Client-process source (/proc scan) ───────────────────────────────

type unixClientSource struct {
	names  []string
	logger *util.Logger
}

func (s *unixClientSource) EnumerateClients(ctx context.Context) ([]conn.ProcessDescriptor, error) {
	pids, err := listPIDs()
	if err != nil {
		return nil, severrors.WrapEnumeration("clients", err)
	}

	var out []conn.ProcessDescriptor
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := processName(pid)
		if err != nil {
			continue // raced with process exit
		}
		if !s.isClientName(name) {
			continue
		}
		out = append(out, conn.ProcessDescriptor{PID: pid, Name: name})
	}
	return out, nil
}

func (s *unixClientSource) QueryDetails(_ context.Context, pid int) (*conn.ProcessDetails, error) {
	var st unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("/proc/%d", pid), &st); err != nil {
		return nil, nil
	}
	details := &conn.ProcessDetails{}
	if u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10)); err == nil {
		details.UserName = u.Username
	}
	return details, nil
}

func (s *unixClientSource) Terminate(_ context.Context, pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// Kill sends SIGKILL, falling back to the external kill utility when
// the direct syscall is refused (some hardened setups allow the setuid
// helper what they deny the caller).
func (s *unixClientSource) Kill(ctx context.Context, pid int) error {
	err := unix.Kill(pid, unix.SIGKILL)
	if err == nil || err == unix.ESRCH {
		return err
	}

	s.logger.Verbose("direct SIGKILL of %d failed (%v), trying kill(1)", pid, err)
	cmd := exec.CommandContext(ctx, "kill", "-KILL", strconv.Itoa(pid))
	if execErr := cmd.Run(); execErr != nil {
		return err // report the original errno, it classifies better
	}
	return nil
}

func (s *unixClientSource) isClientName(name string) bool {
	for _, n := range s.names {
		if name == n {
			return true
		}
	}
	return false
}

// ── /proc helpers ────────────────────────────────────────────────────

func listPIDs() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func processName(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
