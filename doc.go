// Package syncr synchronizes the contents of two or more directory trees,
// local or remote,
// onto a common state.
//
// The trees don't have to agree going in.
// Files can be missing from some of them,
// present with different content in others,
// or simply stale.
// A run of sync reconciles all of that down to one state,
// shared across every participating node.
//
// The expensive part of that reconciliation is moving bytes around,
// so syncr tries hard not to.
// Every regular file is split into content-defined chunks
// (see the chunk subpackage),
// and every chunk is addressed by its digest rather than by its position in a file.
// Two files that share content,
// whether because they're identical, renamed, or just overlapping edits of each other,
// share chunks too,
// and a chunk already present on a node is never sent to it again.
//
// A sync run has one orchestrator process and one "serve" process per node
// (see the orchestrate and serveengine subpackages).
// They talk over a small line-oriented protocol
// (see the wire subpackage)
// carried by whatever duplex byte stream a Transport hands back —
// a pipe for a co-located node, an SSH session for a remote one.
//
// This package holds the data model both sides agree on:
// the Ref type that addresses a chunk,
// the FileEntry type that describes one file's metadata and chunk list,
// and the severity-classified errors that let one bad file fail a sync
// without failing the whole run.
package syncr
