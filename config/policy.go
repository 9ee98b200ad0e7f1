package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Policy declares what the engine is allowed to touch: which process
// names count as remote-access clients, which network interfaces are
// taken down, and which users' sessions are never terminated.
type Policy struct {
	// ClientProcessNames are process names treated as remote-access
	// client software.
	ClientProcessNames []string `toml:"client_process_names"`

	// NetworkInterfaces lists the interfaces to disable.  Empty means
	// every up, non-loopback interface.
	NetworkInterfaces []string `toml:"network_interfaces"`

	// ProtectedUsers own sessions that are never terminated, in
	// addition to the local console.
	ProtectedUsers []string `toml:"protected_users"`
}

// DefaultPolicy returns the built-in policy used when no policy file
// is present.
func DefaultPolicy() Policy {
	return Policy{
		ClientProcessNames: []string{
			"xfreerdp", "rdesktop", "remmina", "vncviewer", "anydesk", "teamviewer",
		},
	}
}

// LoadPolicy reads a TOML policy file.  A missing file yields the
// default policy; a present but malformed file is an error.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}

	p := DefaultPolicy()
	if err := toml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects policies that would leave the engine with nothing
// to act on.
func (p *Policy) Validate() error {
	for _, name := range p.ClientProcessNames {
		if name == "" {
			return fmt.Errorf("client_process_names contains an empty name")
		}
	}
	for _, ifc := range p.NetworkInterfaces {
		if ifc == "" {
			return fmt.Errorf("network_interfaces contains an empty name")
		}
	}
	return nil
}

// ProtectsUser reports whether sessions owned by user must be spared.
func (p *Policy) ProtectsUser(user string) bool {
	for _, u := range p.ProtectedUsers {
		if u == user {
			return true
		}
	}
	return false
}
