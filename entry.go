package syncr

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the type of filesystem entry a FileEntry describes.
type Kind uint8

const (
	Regular Kind = iota
	Directory
	Symlink
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// FileEntry describes one file, directory, or symlink as observed by a
// tree scan (see the scan subpackage) or reported over the wire (see the
// wire subpackage).
//
// Concatenating the blobs addressed by Chunks, in order, reproduces the
// entry's content exactly for a Regular file. Directory entries have no
// chunks. Symlink entries have exactly one chunk: the digest of the raw
// link-target bytes.
type FileEntry struct {
	Path    string `json:"path"`
	Kind    Kind   `json:"kind"`
	Mode    uint32 `json:"mode"`
	Size    int64  `json:"size"`
	MtimeNs int64  `json:"mtime_ns"`
	Chunks  []Ref  `json:"chunks,omitempty"`
}

// Clean normalizes and validates Path: it must be slash-separated,
// relative, and contain no "." or ".." components.
func Clean(relpath string) (string, error) {
	if relpath == "" {
		return "", errors.New("empty path")
	}
	if strings.HasPrefix(relpath, "/") {
		return "", errors.Errorf("path %q has a leading slash", relpath)
	}
	cleaned := path.Clean(relpath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Errorf("path %q escapes its root", relpath)
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == "." || part == ".." {
			return "", errors.Errorf("path %q has a %q component", relpath, part)
		}
	}
	return cleaned, nil
}

// SameContent reports whether e and other describe byte-identical content:
// same kind and same chunk list. Size is not consulted — chunks[] is the
// source of truth, and a mismatched size alongside identical chunks is a
// scanner bug, not a legitimate difference.
func (e FileEntry) SameContent(other FileEntry) bool {
	if e.Kind != other.Kind {
		return false
	}
	if len(e.Chunks) != len(other.Chunks) {
		return false
	}
	for i := range e.Chunks {
		if e.Chunks[i] != other.Chunks[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of e.
func (e FileEntry) Clone() FileEntry {
	out := e
	if e.Chunks != nil {
		out.Chunks = append([]Ref(nil), e.Chunks...)
	}
	return out
}
