package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/matzehuels/sb3fix/pkg/errors"
)

// DefaultEntry is the archive entry name that holds the descriptor.
const DefaultEntry = "project.json"

const (
	keyTargets  = "targets"
	keyComments = "comments"
	keyBlocks   = "blocks"
	keyComment  = "comment"
)

// Stats counts what a repair removed.
type Stats struct {
	Targets  int // targets visited
	Comments int // entries dropped from target comment registries
	Links    int // block "comment" keys removed
}

// Changed reports whether the repair removed anything.
func (s Stats) Changed() bool {
	return s.Comments > 0 || s.Links > 0
}

// Result is the outcome of [Repair].
type Result struct {
	Data  []byte
	Stats Stats
}

// Transform returns raw with all annotation state removed.
// It is the pure byte-to-byte form of [Repair].
func Transform(raw []byte) ([]byte, error) {
	res, err := Repair(raw)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Repair decodes raw, empties every target's "comments" registry, drops the
// "comment" key from every block and re-encodes the document.
//
// raw is never modified. On error no data is returned.
func Repair(raw []byte) (*Result, error) {
	ops, stats, err := plan(raw)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(ops)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "encode patch")
	}
	patch, err := jsonpatch.DecodePatch(encoded)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "decode patch")
	}
	out, err := patch.Apply(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "apply patch")
	}

	return &Result{Data: out, Stats: stats}, nil
}

// operation is a single RFC 6902 patch operation.
type operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

var emptyObject = json.RawMessage(`{}`)

// plan validates the descriptor shape and lists the patch operations that
// strip its annotations. "add" on an existing member replaces it, so every
// target gets an empty registry whether or not it had one.
func plan(raw []byte) ([]operation, Stats, error) {
	var stats Stats

	root, err := decodeObject(raw)
	if err != nil {
		return nil, stats, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "descriptor is not a JSON object")
	}
	rawTargets, ok := root[keyTargets]
	if !ok {
		return nil, stats, errors.New(errors.ErrCodeMalformedDescriptor, "descriptor has no %q key", keyTargets)
	}
	var targets []json.RawMessage
	if !isKind(rawTargets, '[') {
		return nil, stats, errors.New(errors.ErrCodeMalformedDescriptor, "%q must be an array", keyTargets)
	}
	if err := json.Unmarshal(rawTargets, &targets); err != nil {
		return nil, stats, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "decode %q", keyTargets)
	}

	ops := make([]operation, 0, len(targets))
	for i, rawTarget := range targets {
		target, err := decodeObject(rawTarget)
		if err != nil {
			return nil, stats, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "target %d is not an object", i)
		}
		stats.Targets++

		base := fmt.Sprintf("/%s/%d", keyTargets, i)
		if registry, err := decodeObject(target[keyComments]); err == nil {
			stats.Comments += len(registry)
		}
		ops = append(ops, operation{Op: "add", Path: base + "/" + keyComments, Value: emptyObject})

		rawBlocks, ok := target[keyBlocks]
		if !ok {
			continue
		}
		blocks, err := decodeObject(rawBlocks)
		if err != nil {
			return nil, stats, errors.Wrap(errors.ErrCodeMalformedDescriptor, err, "target %d: %q is not an object", i, keyBlocks)
		}
		for _, id := range linkedBlocks(blocks) {
			ops = append(ops, operation{
				Op:   "remove",
				Path: base + "/" + keyBlocks + "/" + escapePointer(id) + "/" + keyComment,
			})
			stats.Links++
		}
	}
	return ops, stats, nil
}

// linkedBlocks returns the sorted ids of blocks carrying a "comment" key.
// Blocks stored as arrays (top-level reporters) have no keys and are skipped.
func linkedBlocks(blocks map[string]json.RawMessage) []string {
	var ids []string
	for id, rawBlock := range blocks {
		if !isKind(rawBlock, '{') {
			continue
		}
		block, err := decodeObject(rawBlock)
		if err != nil {
			continue
		}
		if _, ok := block[keyComment]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// decodeObject decodes data as a JSON object, keeping member values raw.
// JSON null decodes without error in encoding/json, so it is rejected here.
func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	if !isKind(data, '{') {
		return nil, fmt.Errorf("expected object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// isKind reports whether the first non-space byte of data is open.
func isKind(data []byte, open byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == open
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// escapePointer escapes a member name for use as a JSON Pointer (RFC 6901) token.
func escapePointer(s string) string {
	return pointerEscaper.Replace(s)
}
