// Package scan implements the tree scanner (C4): a deterministic,
// lexicographically ordered walk of a sync root that turns files,
// directories, and symlinks into syncr.FileEntry values, chunking and
// storing any content it hasn't seen before along the way.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunk"
	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/metacache"
)

// Result is one item of a Scan's output stream: exactly one of Entry or
// Err is set.
type Result struct {
	Entry syncr.FileEntry
	Err   *syncr.SyncError
}

// Filter decides whether relpath should be included in the scan. A nil
// Filter includes everything.
type Filter func(relpath string) bool

// Scan walks root and sends one Result per entry, in lexicographic order
// by relpath, on the returned channel. The channel is closed when the
// walk finishes. A per-file error (permission denied, a read that fails
// partway through) is reported as a Result with Err set and does not stop
// the walk; an error setting up the walk itself (root doesn't exist, root
// isn't a directory) is returned directly and no channel is produced.
func Scan(ctx context.Context, root string, cache *metacache.Cache, store chunkstore.Store, filter Filter) (<-chan Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "statting root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("root %s is not a directory", root)
	}

	paths, err := sortedRelpaths(root, filter)
	if err != nil {
		return nil, err
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		for _, relpath := range paths {
			if ctx.Err() != nil {
				return
			}
			result := scanOne(ctx, root, relpath, cache, store)
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func sortedRelpaths(root string, filter Filter) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		relpath, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		relpath = filepath.ToSlash(relpath)
		if filter != nil && !filter(relpath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, relpath)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	sort.Strings(paths)
	return paths, nil
}

func scanOne(ctx context.Context, root, relpath string, cache *metacache.Cache, store chunkstore.Store) Result {
	cleaned, err := syncr.Clean(relpath)
	if err != nil {
		return Result{Err: syncr.NewFileError(relpath, "bad_path", err)}
	}

	fullpath := filepath.Join(root, relpath)
	info, err := os.Lstat(fullpath)
	if err != nil {
		return Result{Err: syncr.NewFileError(cleaned, "stat_failed", err)}
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return scanSymlink(ctx, cleaned, fullpath, info, store)
	case info.IsDir():
		return Result{Entry: syncr.FileEntry{
			Path: cleaned,
			Kind: syncr.Directory,
			Mode: uint32(info.Mode().Perm()),
		}}
	case info.Mode().IsRegular():
		return scanRegular(ctx, cleaned, fullpath, info, cache, store)
	default:
		return Result{Err: syncr.NewFileError(cleaned, "unsupported_type", errors.Errorf("mode %s", info.Mode()))}
	}
}

func scanSymlink(_ context.Context, relpath, fullpath string, info os.FileInfo, store chunkstore.Store) Result {
	target, err := os.Readlink(fullpath)
	if err != nil {
		return Result{Err: syncr.NewFileError(relpath, "readlink_failed", err)}
	}

	ref := chunk.Digest([]byte(target))
	if err := installChunk(store, ref, []byte(target)); err != nil {
		return Result{Err: syncr.NewFileError(relpath, "store_failed", err)}
	}

	return Result{Entry: syncr.FileEntry{
		Path:    relpath,
		Kind:    syncr.Symlink,
		Mode:    uint32(info.Mode().Perm()),
		Size:    int64(len(target)),
		MtimeNs: info.ModTime().UnixNano(),
		Chunks:  []syncr.Ref{ref},
	}}
}

func scanRegular(ctx context.Context, relpath, fullpath string, info os.FileInfo, cache *metacache.Cache, store chunkstore.Store) Result {
	mtimeNs := info.ModTime().UnixNano()
	size := info.Size()
	inode := inodeOf(info)

	if cache != nil {
		cached, ok, err := cache.Lookup(ctx, relpath)
		if err == nil && ok && cached.Size == size && cached.MtimeNs == mtimeNs && cached.Inode == inode {
			return Result{Entry: syncr.FileEntry{
				Path:    relpath,
				Kind:    syncr.Regular,
				Mode:    uint32(info.Mode().Perm()),
				Size:    size,
				MtimeNs: mtimeNs,
				Chunks:  cached.Chunks,
			}}
		}
	}

	f, err := os.Open(fullpath)
	if err != nil {
		return Result{Err: syncr.NewFileError(relpath, "open_failed", err)}
	}
	defer f.Close()

	var chunks []syncr.Ref
	err = chunk.Split(f, func(data []byte) error {
		ref := chunk.Digest(data)
		chunks = append(chunks, ref)
		return installChunk(store, ref, data)
	})
	if err != nil {
		return Result{Err: syncr.NewFileError(relpath, "chunk_failed", err)}
	}

	if cache != nil {
		_ = cache.Store(ctx, metacache.Entry{
			Relpath: relpath,
			Size:    size,
			MtimeNs: mtimeNs,
			Inode:   inode,
			Chunks:  chunks,
		})
	}

	return Result{Entry: syncr.FileEntry{
		Path:    relpath,
		Kind:    syncr.Regular,
		Mode:    uint32(info.Mode().Perm()),
		Size:    size,
		MtimeNs: mtimeNs,
		Chunks:  chunks,
	}}
}

func installChunk(store chunkstore.Store, ref syncr.Ref, data []byte) error {
	if store == nil {
		return nil
	}
	has, err := store.Has(context.Background(), ref)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	staged, err := store.Stage(context.Background(), ref, data)
	if err != nil {
		return err
	}
	return store.Install(context.Background(), staged)
}
