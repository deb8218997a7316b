// Package metacache implements the scanner's metadata cache: a small
// embedded SQLite database mapping relpath to the (size, mtime, inode,
// chunk list) last observed for it, so a rescan can skip rehashing and
// rechunking files that haven't changed.
package metacache

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrs "errors"
	"hash/fnv"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/pkg/errors"

	"github.com/bobg/syncr"
)

// Cache is a SQLite-backed metadata cache.
type Cache struct {
	db *sql.DB
}

// Schema is the SQL that Open executes. It creates the `entries` table if
// it doesn't exist. (If it does exist, it must have this shape.)
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
  path_hash   INTEGER NOT NULL,
  relpath     TEXT NOT NULL,
  size        INTEGER NOT NULL,
  mtime_ns    INTEGER NOT NULL,
  inode       INTEGER NOT NULL,
  chunks_json BLOB NOT NULL,
  PRIMARY KEY (path_hash)
);
`

// Open opens (creating if necessary) the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return New(ctx, db)
}

// New wraps db as a Cache, creating the entries table if needed.
func New(ctx context.Context, db *sql.DB) (*Cache, error) {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, errors.Wrap(err, "creating schema")
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PathHash is the stable key a relpath maps to: an FNV-1a 64-bit hash, per
// the wire protocol's "u64 hash of relpath" cache-key convention.
func PathHash(relpath string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(relpath))
	return h.Sum64()
}

// Entry is one cached observation of a file.
type Entry struct {
	Relpath string
	Size    int64
	MtimeNs int64
	Inode   uint64
	Chunks  []syncr.Ref
}

// Lookup returns the cached entry for relpath, and whether one was found.
func (c *Cache) Lookup(ctx context.Context, relpath string) (Entry, bool, error) {
	const q = `SELECT relpath, size, mtime_ns, inode, chunks_json FROM entries WHERE path_hash = $1`

	var (
		e          Entry
		chunksJSON []byte
	)
	row := c.db.QueryRowContext(ctx, q, PathHash(relpath))
	err := row.Scan(&e.Relpath, &e.Size, &e.MtimeNs, &e.Inode, &chunksJSON)
	if stderrs.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "querying cache for %s", relpath)
	}

	// A path_hash collision between two different relpaths makes the cache
	// entry useless for this path; treat it as a miss rather than returning
	// another file's chunk list.
	if e.Relpath != relpath {
		return Entry{}, false, nil
	}

	var hexChunks []string
	if err := json.Unmarshal(chunksJSON, &hexChunks); err != nil {
		return Entry{}, false, errors.Wrap(err, "decoding cached chunk list")
	}
	e.Chunks = make([]syncr.Ref, len(hexChunks))
	for i, h := range hexChunks {
		ref, err := syncr.RefFromHex(h)
		if err != nil {
			return Entry{}, false, errors.Wrap(err, "decoding cached chunk ref")
		}
		e.Chunks[i] = ref
	}

	return e, true, nil
}

// Store records or replaces the cached entry for e.Relpath.
func (c *Cache) Store(ctx context.Context, e Entry) error {
	hexChunks := make([]string, len(e.Chunks))
	for i, ref := range e.Chunks {
		hexChunks[i] = ref.String()
	}
	chunksJSON, err := json.Marshal(hexChunks)
	if err != nil {
		return errors.Wrap(err, "encoding chunk list")
	}

	const q = `
		INSERT INTO entries (path_hash, relpath, size, mtime_ns, inode, chunks_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path_hash) DO UPDATE SET
			relpath = excluded.relpath,
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			inode = excluded.inode,
			chunks_json = excluded.chunks_json`

	_, err = c.db.ExecContext(ctx, q, PathHash(e.Relpath), e.Relpath, e.Size, e.MtimeNs, e.Inode, chunksJSON)
	return errors.Wrapf(err, "storing cache entry for %s", e.Relpath)
}

// Forget removes the cached entry for relpath, if any.
func (c *Cache) Forget(ctx context.Context, relpath string) error {
	const q = `DELETE FROM entries WHERE path_hash = $1`
	_, err := c.db.ExecContext(ctx, q, PathHash(relpath))
	return errors.Wrapf(err, "removing cache entry for %s", relpath)
}

// Compact deletes every cached entry whose relpath is not in live, a set
// of relpaths observed in the scan that just ran. It is meant to be called
// once at the end of a scan and is allowed to fail soft: the caller should
// log and continue rather than abort the run over a stale cache row.
func (c *Cache) Compact(ctx context.Context, live map[string]bool) error {
	const q = `SELECT path_hash, relpath FROM entries`

	var stale []uint64
	err := sqlutil.ForQueryRows(ctx, c.db, q, func(pathHash uint64, relpath string) {
		if !live[relpath] {
			stale = append(stale, pathHash)
		}
	})
	if err != nil {
		return errors.Wrap(err, "scanning cache for compaction")
	}

	const del = `DELETE FROM entries WHERE path_hash = $1`
	for _, ph := range stale {
		if _, err := c.db.ExecContext(ctx, del, ph); err != nil {
			return errors.Wrapf(err, "deleting stale cache entry %d", ph)
		}
	}
	return nil
}
