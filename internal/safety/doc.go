// Package safety classifies shell commands before they reach a live pty.
//
// Every command is scored against the current policy settings into one of
// three tiers: safe (runs without approval), unsafe (runs after approval,
// or immediately when auto-approve is set), dangerous (always needs human
// approval). Classification is a pure function of the command, the working
// directory, and an immutable settings snapshot, so results are never
// cached across policy updates.
package safety
