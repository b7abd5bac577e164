// Package terminal owns live shell sessions: a registry of sessions keyed
// by caller-visible ID, one pty-backed process per session, a bounded ring
// buffer of recent output per session, and the lifecycle manager that
// orchestrates create, execute, stream and kill.
//
// One goroutine per session drains the pty; output chunks fan out to the
// session's ring buffer and to any live stream subscribers in emission
// order. Process exit and explicit kill converge on a single cleanup path
// carrying the termination cause.
package terminal
