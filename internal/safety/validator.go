package safety

import (
	"fmt"
	"strings"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/shared/paths"
)

// Tier is the risk classification of a command.
type Tier string

const (
	TierSafe      Tier = "safe"
	TierUnsafe    Tier = "unsafe"
	TierDangerous Tier = "dangerous"
)

// Result is the classification of a single command string. Produced fresh
// per call; never cached.
type Result struct {
	Valid            bool     `json:"valid"`
	Tier             Tier     `json:"tier"`
	RequiresApproval bool     `json:"requiresApproval"`
	Reason           string   `json:"reason"`
	Suggestions      []string `json:"suggestions,omitempty"`
}

// Validator classifies commands against the policy held in its Store.
type Validator struct {
	store *Store
}

// NewValidator creates a validator bound to a settings store.
func NewValidator(store *Store) *Validator {
	return &Validator{store: store}
}

// Settings returns the validator's settings store.
func (v *Validator) Settings() *Store {
	return v.store
}

// WithinWorkspace reports whether dir falls inside the allowed workspace
// roots of the current policy.
func (v *Validator) WithinWorkspace(dir string) bool {
	return paths.WithinRoots(dir, v.store.Current().AllowedWorkspacePaths)
}

// Validate classifies a command to run in workingDir. First match wins:
// empty command, workspace boundary, destructive/dangerous, unsafe,
// safe-listed, unknown.
func (v *Validator) Validate(command, workingDir string) Result {
	settings := v.store.Current()
	trimmed := strings.TrimSpace(command)

	if trimmed == "" {
		return Result{
			Valid:  false,
			Tier:   TierSafe,
			Reason: "empty command",
		}
	}

	if workingDir != "" && !paths.WithinRoots(workingDir, settings.AllowedWorkspacePaths) {
		return Result{
			Valid:            false,
			Tier:             TierDangerous,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("working directory %s is outside the allowed workspace", workingDir),
			Suggestions:      append([]string(nil), settings.AllowedWorkspacePaths...),
		}
	}

	first := firstToken(trimmed)

	if reason, ok := matchDestructive(trimmed); ok {
		return Result{
			Valid:            true,
			Tier:             TierDangerous,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("destructive pattern: %s", reason),
		}
	}
	if contains(settings.DangerousCommands, first) {
		return Result{
			Valid:            true,
			Tier:             TierDangerous,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("%s is on the dangerous command list", first),
		}
	}

	if reason, ok := matchUnsafe(trimmed); ok {
		return Result{
			Valid:            true,
			Tier:             TierUnsafe,
			RequiresApproval: !settings.AutoApprove,
			Reason:           reason,
		}
	}

	if contains(settings.SafeCommands, first) {
		return Result{
			Valid:  true,
			Tier:   TierSafe,
			Reason: fmt.Sprintf("%s is on the safe command list", first),
		}
	}

	return Result{
		Valid:            true,
		Tier:             TierUnsafe,
		RequiresApproval: !settings.AutoApprove,
		Reason:           fmt.Sprintf("%s is not on the safe command list", first),
	}
}

func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
