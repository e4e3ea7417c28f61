// Package domain defines the session board model shared by storage backends,
// the session registry, and the mutation gateway.
//
// A session is one collaborative setlist board identified by an opaque
// URL-safe string. Each participant owns one board: a mapping from slot name
// to a non-empty song title. The full observable state of a session is a
// Snapshot, always handled and broadcast whole rather than as diffs.
package domain
