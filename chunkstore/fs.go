package chunkstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bobg/syncr"
)

var _ Store = &FS{}
var _ ReadCloserStore = &FS{}

// FS is a chunk store backed by a sharded directory hierarchy on local
// disk: a chunk with ref r lives at <root>/chunks/<r[:2]>/<r[:4]>/<r>.
// Sharding two levels deep keeps any one directory from holding more than
// a few thousand entries even in stores with millions of chunks.
type FS struct {
	root string
}

// NewFS returns a Store that keeps chunks beneath root. Root is created,
// along with its chunks and staging subdirectories, on first use; it need
// not exist yet.
func NewFS(root string) *FS {
	return &FS{root: root}
}

func (s *FS) chunkroot() string {
	return filepath.Join(s.root, "chunks")
}

func (s *FS) stageroot() string {
	return filepath.Join(s.root, "staging")
}

func (s *FS) chunkpath(ref syncr.Ref) string {
	h := ref.String()
	return filepath.Join(s.chunkroot(), h[:2], h[:4], h)
}

// Has reports whether ref is present on disk.
func (s *FS) Has(_ context.Context, ref syncr.Ref) (bool, error) {
	_, err := os.Stat(s.chunkpath(ref))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "statting %s", ref)
	}
	return true, nil
}

// Read returns the bytes stored under ref.
func (s *FS) Read(_ context.Context, ref syncr.Ref) ([]byte, error) {
	path := s.chunkpath(ref)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, syncr.ErrNotFound
	}
	return data, errors.Wrapf(err, "reading %s", path)
}

// OpenRead opens the chunk's file directly, for callers that want to
// stream it rather than buffer it whole.
func (s *FS) OpenRead(_ context.Context, ref syncr.Ref) (io.ReadCloser, error) {
	f, err := os.Open(s.chunkpath(ref))
	if os.IsNotExist(err) {
		return nil, syncr.ErrNotFound
	}
	return f, errors.Wrapf(err, "opening %s", ref)
}

type fsStagedChunk struct {
	ref      syncr.Ref
	tempPath string
}

func (c *fsStagedChunk) Ref() syncr.Ref { return c.ref }

// Stage writes data to a unique file under the staging directory. The
// chunk isn't visible to Has, Read, or ListPrefix until Install commits it.
func (s *FS) Stage(_ context.Context, ref syncr.Ref, data []byte) (StagedChunk, error) {
	if err := os.MkdirAll(s.stageroot(), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating staging dir")
	}
	tempPath := filepath.Join(s.stageroot(), uuid.NewString())
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return nil, errors.Wrapf(err, "writing %s", tempPath)
	}
	return &fsStagedChunk{ref: ref, tempPath: tempPath}, nil
}

// Install renames a staged chunk into place. Renaming within the same
// filesystem is atomic, so a reader never observes a partially written
// chunk file. If ref is already installed, the staged file is discarded
// and Install returns nil.
func (s *FS) Install(_ context.Context, staged StagedChunk) error {
	fsc, ok := staged.(*fsStagedChunk)
	if !ok {
		return errors.Errorf("chunkstore: staged chunk of unexpected type %T", staged)
	}
	defer os.Remove(fsc.tempPath)

	dest := s.chunkpath(fsc.ref)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", filepath.Dir(dest))
	}
	if err := os.Rename(fsc.tempPath, dest); err != nil {
		return errors.Wrapf(err, "installing %s", fsc.ref)
	}
	return nil
}

// ListPrefix walks the shard hierarchy in lexicographic order, skipping
// directly to the shard(s) that can contain prefix.
func (s *FS) ListPrefix(_ context.Context, prefix string, f func(syncr.Ref) error) error {
	if err := os.MkdirAll(s.chunkroot(), 0o755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.chunkroot())
	}

	topLevel, err := os.ReadDir(s.chunkroot())
	if err != nil {
		return errors.Wrapf(err, "reading %s", s.chunkroot())
	}
	sort.Slice(topLevel, func(i, j int) bool { return topLevel[i].Name() < topLevel[j].Name() })

	for _, topInfo := range topLevel {
		topName := topInfo.Name()
		if !topInfo.IsDir() || len(topName) != 2 || !isHex(topName) {
			continue
		}
		if !prefixCompatible(prefix, topName) {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(s.chunkroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading %s/%s", s.chunkroot(), topName)
		}
		sort.Slice(midLevel, func(i, j int) bool { return midLevel[i].Name() < midLevel[j].Name() })

		for _, midInfo := range midLevel {
			midName := midInfo.Name()
			if !midInfo.IsDir() || len(midName) != 4 || !isHex(midName) {
				continue
			}
			if !prefixCompatible(prefix, midName) {
				continue
			}

			entries, err := os.ReadDir(filepath.Join(s.chunkroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading %s/%s/%s", s.chunkroot(), topName, midName)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() || !hasPrefix(name, prefix) {
					continue
				}
				ref, err := syncr.RefFromHex(name)
				if err != nil {
					continue
				}
				if err := f(ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isHex(s string) bool {
	_, err := strconv.ParseUint(s, 16, 64)
	return err == nil
}

// prefixCompatible reports whether a shard component named dirname could
// contain refs matching prefix: either the shard is fully covered (prefix
// is no longer than what's already matched) or it shares the overlapping
// characters with prefix.
func prefixCompatible(prefix, dirname string) bool {
	n := len(dirname)
	if n > len(prefix) {
		n = len(prefix)
	}
	return prefix[:n] == dirname[:n]
}

func hasPrefix(name, prefix string) bool {
	if len(prefix) > len(name) {
		return false
	}
	return name[:len(prefix)] == prefix
}
