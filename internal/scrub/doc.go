// Package scrub removes personal data and credentials from free text before
// it leaves the process.
//
// Every prompt sent to the AI backend passes through a Scrubber. Matches are
// replaced by a per-rule placeholder such as [EMAIL] so the model still sees
// that something was there.
package scrub
