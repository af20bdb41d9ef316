// Package session runs conversations.
//
// Service is the single writer of a session. Each call takes the session's
// lock, loads it, runs events through the conversation machine, executes the
// instructions the machine returns and commits the session row together with
// the new messages. A call that fails leaves the stored session untouched.
//
// Calls on the same session queue behind its lock; calls on different
// sessions run in parallel.
package session
