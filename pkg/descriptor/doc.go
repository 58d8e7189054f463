// Package descriptor strips annotation state from a project descriptor.
//
// # Overview
//
// A project archive carries a single JSON descriptor (conventionally
// project.json) shaped like this:
//
//	{
//	  "targets": [
//	    {
//	      "comments": {"c1": {"text": "hi", "blockId": "b1"}},
//	      "blocks": {
//	        "b1": {"opcode": "x", "comment": "c1"},
//	        "b2": {"opcode": "y"}
//	      }
//	    }
//	  ]
//	}
//
// Annotations live in two places: the per-target "comments" registry and the
// optional "comment" key on a block that points into that registry. When the
// editor loses a block but keeps its annotation, the registry ends up
// referencing a block that no longer exists and the project cannot be loaded.
//
// [Transform] removes both halves of that relationship. Every target gets an
// empty "comments" object and no block keeps a "comment" key. Nothing else is
// touched: unknown fields, assets, metadata, and the exact text of numbers all
// survive.
//
// # How the edit is applied
//
// The descriptor is decoded into a read-only view just deep enough to find
// the annotation fields. From that view a JSON Patch (RFC 6902) is built and
// applied to the original bytes, so the result is constructed from the input
// rather than by mutating a decoded tree in place.
//
// # Errors
//
// Input that is not a JSON object with a "targets" array of objects fails with
// [errors.ErrCodeMalformedDescriptor] and no output is produced.
//
// [errors.ErrCodeMalformedDescriptor]: github.com/matzehuels/sb3fix/pkg/errors.ErrCodeMalformedDescriptor
package descriptor
