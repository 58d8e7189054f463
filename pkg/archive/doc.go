// Package archive rewrites a project archive in place, replacing exactly one
// entry.
//
// # Overview
//
// A project archive (.sb3) is a zip container holding a JSON descriptor and
// the binary assets it references. [Rewrite] walks the container entry by
// entry, passes the descriptor through a transform and copies everything else
// verbatim into a new container, then swaps the new container into place:
//
//	report, err := archive.Rewrite("game.sb3", archive.Options{
//	    Transform: descriptor.Transform,
//	})
//
// Non-descriptor entries are copied raw, without decompressing and
// recompressing, so their payloads, checksums and compressed bytes are
// identical in the output.
//
// # Atomic Replacement
//
// The new container is built in a file handed out by a [TempProvider]
// ([SystemTemp] by default, which uses the system temp directory). The
// original archive is replaced only after the new container has been fully
// written and synced, with a single rename. When the temp directory lives on
// another volume the container is first staged as a hidden file next to the
// archive so that the final step is still a same-volume rename.
//
// Any failure before that rename removes the temporary files and leaves the
// original archive exactly as it was.
//
// # Errors
//
// Errors carry codes from [errors]: ARCHIVE_NOT_FOUND, ARCHIVE_UNREADABLE and
// WRITE_FAILURE. Errors returned by the transform are passed through as-is.
//
// [errors]: github.com/matzehuels/sb3fix/pkg/errors
package archive
