package safety

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/goccy/go-yaml"
)

// Settings is the mutable command safety policy. Values are treated as
// immutable once stored; updates swap a whole new value into the Store so
// an in-flight validation never observes a partial update.
type Settings struct {
	SafeCommands          []string `yaml:"safe_commands" json:"safeCommands"`
	DangerousCommands     []string `yaml:"dangerous_commands" json:"dangerousCommands"`
	AllowedWorkspacePaths []string `yaml:"allowed_workspace_paths" json:"allowedWorkspacePaths"`
	AutoApprove           bool     `yaml:"auto_approve" json:"autoApprove"`
}

// DefaultSettings returns the stock policy restricted to the given
// workspace roots.
func DefaultSettings(workspaceRoots []string, autoApprove bool) Settings {
	return Settings{
		SafeCommands: []string{
			"ls", "cat", "pwd", "echo", "grep", "find", "head", "tail",
			"wc", "which", "whoami", "date", "env", "printenv", "ps",
			"df", "du", "uname", "file", "stat", "tree", "diff", "sort",
			"uniq", "git", "node", "npm", "npx", "yarn", "pnpm",
			"python", "python3", "pip", "pip3", "go", "cargo", "make",
		},
		DangerousCommands: []string{
			"rm", "rmdir", "sudo", "su", "dd", "mkfs", "fdisk", "parted",
			"shutdown", "reboot", "halt", "killall", "chown", "chmod",
			"mount", "umount",
		},
		AllowedWorkspacePaths: append([]string(nil), workspaceRoots...),
		AutoApprove:           autoApprove,
	}
}

// LoadFile reads a policy file in YAML format. Missing lists fall back to
// the provided base settings.
func LoadFile(path string, base Settings) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read policy file: %w", err)
	}

	loaded := base
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Settings{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if len(loaded.AllowedWorkspacePaths) == 0 {
		loaded.AllowedWorkspacePaths = base.AllowedWorkspacePaths
	}
	return loaded, nil
}

// Store holds the current settings behind an atomic pointer.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore creates a settings store with the given initial value.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.current.Store(&s)
	return st
}

// Current returns the active settings snapshot.
func (st *Store) Current() Settings {
	return *st.current.Load()
}

// Update atomically replaces the active settings.
func (st *Store) Update(s Settings) {
	st.current.Store(&s)
}
