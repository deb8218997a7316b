// Package serveengine implements the per-node Serve handler (C8): a
// single-threaded state machine that speaks the wire protocol against
// one orchestrator connection, backed by a chunk store and metadata
// cache rooted at one sync directory.
package serveengine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunk"
	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/metacache"
	"github.com/bobg/syncr/pathlock"
	"github.com/bobg/syncr/scan"
	"github.com/bobg/syncr/wire"
)

// State names the position in the handshake/command state machine
// described in §4.8. It is tracked for clarity and for rejecting
// out-of-order commands; it is not itself wire-visible.
type State int

const (
	Greeted State = iota
	Negotiated
	Capable
	Ready
	Listed
	Writing
	Reading
	Committing
	Closed
)

func (s State) String() string {
	switch s {
	case Greeted:
		return "greeted"
	case Negotiated:
		return "negotiated"
	case Capable:
		return "capable"
	case Ready:
		return "ready"
	case Listed:
		return "listed"
	case Writing:
		return "writing"
	case Reading:
		return "reading"
	case Committing:
		return "committing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// pendingWrite describes one file staged under WRITE-FILE, waiting for
// COMMIT.
type pendingWrite struct {
	kind    syncr.Kind
	mode    uint32
	tmpPath string
}

// writeState tracks an in-progress WRITE-FILE: the chunk list the file
// needs, a cursor into that list, and the temp file accumulating bytes.
// advance writes every chunk at the cursor that the local store already
// holds, stopping at the first one it doesn't — that one is filled by
// the next DATA frame.
type writeState struct {
	relpath string
	kind    syncr.Kind
	mode    uint32
	chunks  []syncr.Ref
	cursor  int
	tmpPath string
	file    *os.File
}

// Engine serves the wire protocol against one sync root. One Engine is
// constructed per incoming connection (per transport.Dial on the Local
// transport, or per `syncr serve` process over SSH), and Serve runs its
// single-threaded command loop until QUIT or the stream closes.
type Engine struct {
	Root  string
	Store chunkstore.Store
	Cache *metacache.Cache
	Caps  syncr.Capabilities

	state State
	lock  *pathlock.Lock

	// stagingDir is <root>/.syncr/staging/<uuid>, created lazily on the
	// first WRITE-FILE and removed on COMMIT or when Serve returns.
	stagingDir string
	pending    map[string]pendingWrite
	current    *writeState

	// pendingDeletes holds relpaths slated for removal at COMMIT. DELETE
	// is not in the distilled command table, but Delete-sync mode (§4.10)
	// is unusable without some way to execute a delete decision on the
	// node that needs it, so this engine adds the command and stages its
	// effect the same way WRITE-FILE stages a write: nothing touches the
	// tree until COMMIT.
	pendingDeletes []string
}

// New constructs an Engine rooted at root. It does not touch the
// filesystem until Serve is called.
func New(root string, store chunkstore.Store, cache *metacache.Cache) *Engine {
	return &Engine{
		Root:    root,
		Store:   store,
		Cache:   cache,
		Caps:    syncr.DefaultCapabilities(),
		pending: make(map[string]pendingWrite),
	}
}

// Serve runs the command loop over conn until QUIT, stream closure, or a
// Fatal error. The path lock (C6) is acquired before the first frame is
// read and released when Serve returns, corresponding to the
// orchestrator's "Acquire locks" phase (§4.9): because the wire protocol
// has no explicit LOCK command, lock acquisition happens as soon as a
// node's Serve starts, and failure is reported as a Fatal ERR on the
// first frame instead.
func (e *Engine) Serve(ctx context.Context, conn *wire.Conn) error {
	lock, err := pathlock.Acquire(e.Root)
	if err != nil {
		_ = conn.WriteErr(wire.ErrBody{
			Code:     "lock_busy",
			Severity: wire.SeverityFatal,
			Msg:      err.Error(),
		})
		return errors.Wrap(err, "acquiring path lock")
	}
	e.lock = lock
	defer e.cleanup()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := conn.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading frame")
		}
		if frame.IsData() {
			if err := e.handleData(frame); err != nil {
				return e.fatal(conn, "hash_mismatch", err)
			}
			continue
		}
		done, err := e.dispatch(ctx, conn, frame)
		if err != nil {
			return e.fatal(conn, "dispatch_failed", err)
		}
		if done {
			return nil
		}
	}
}

func (e *Engine) fatal(conn *wire.Conn, code string, err error) error {
	_ = conn.WriteErr(wire.ErrBody{Code: code, Severity: wire.SeverityFatal, Msg: err.Error()})
	return err
}

func (e *Engine) cleanup() {
	if e.current != nil && e.current.file != nil {
		_ = e.current.file.Close()
	}
	if e.stagingDir != "" {
		_ = os.RemoveAll(e.stagingDir)
	}
	if e.lock != nil {
		_ = e.lock.Release()
	}
	e.state = Closed
}

func (e *Engine) dispatch(ctx context.Context, conn *wire.Conn, f wire.Frame) (done bool, err error) {
	switch f.Verb {
	case "VER":
		return false, e.handleVer(conn, f)
	case "CAP":
		return false, e.handleCap(conn, f)
	case "LIST":
		return false, e.handleList(ctx, conn)
	case "HAS":
		return false, e.handleHas(ctx, conn, f)
	case "READ":
		return false, e.handleRead(ctx, conn, f)
	case "WRITE-FILE":
		return false, e.handleWriteFile(ctx, conn, f)
	case "END":
		return false, e.handleEnd(conn)
	case "DELETE":
		return false, e.handleDelete(conn, f)
	case "COMMIT":
		return false, e.handleCommit(conn)
	case "QUIT":
		return true, nil
	default:
		return false, errors.Errorf("unknown command %q", f.Verb)
	}
}

func (e *Engine) handleVer(conn *wire.Conn, f wire.Frame) error {
	var offered []int
	if err := f.Arg(0, &offered); err != nil {
		return errors.Wrap(err, "decoding VER args")
	}
	chosen := highestMutual(offered, syncr.SupportedVersions)
	if chosen == 0 {
		return errors.Errorf("no mutually supported version among %v", offered)
	}
	e.state = Negotiated
	return conn.WriteCommand("VER", chosen)
}

func highestMutual(a, b []int) int {
	set := make(map[int]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	best := 0
	for _, v := range a {
		if set[v] && v > best {
			best = v
		}
	}
	return best
}

func (e *Engine) handleCap(conn *wire.Conn, f wire.Frame) error {
	var peer syncr.Capabilities
	if err := f.Arg(0, &peer); err != nil {
		return errors.Wrap(err, "decoding CAP args")
	}
	e.Caps = e.Caps.Intersect(peer)
	e.state = Capable
	return conn.WriteCommand("CAP", e.Caps)
}

func (e *Engine) handleList(ctx context.Context, conn *wire.Conn) error {
	results, err := scan.Scan(ctx, e.Root, e.Cache, e.Store, nil)
	if err != nil {
		return errors.Wrap(err, "scanning root")
	}
	var entries []syncr.FileEntry
	for r := range results {
		if r.Err != nil {
			if r.Err.Sev == syncr.Fatal {
				return r.Err
			}
			continue
		}
		entries = append(entries, r.Entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for _, entry := range entries {
		if err := conn.WriteCommand("ENTRY", entry); err != nil {
			return err
		}
	}
	e.state = Listed
	return conn.WriteCommand("END")
}

func (e *Engine) handleHas(ctx context.Context, conn *wire.Conn, f wire.Frame) error {
	var digests []string
	if err := f.Arg(0, &digests); err != nil {
		return errors.Wrap(err, "decoding HAS args")
	}
	var present []string
	for _, hexDigest := range digests {
		ref, err := syncr.RefFromHex(hexDigest)
		if err != nil {
			return errors.Wrap(err, "decoding HAS digest")
		}
		ok, err := e.Store.Has(ctx, ref)
		if err != nil {
			return errors.Wrap(err, "checking chunk store")
		}
		if ok {
			present = append(present, hexDigest)
		}
	}
	return conn.WriteCommand("HAS", present)
}

func (e *Engine) handleRead(ctx context.Context, conn *wire.Conn, f wire.Frame) error {
	var digests []string
	if err := f.Arg(0, &digests); err != nil {
		return errors.Wrap(err, "decoding READ args")
	}
	e.state = Reading
	for _, hexDigest := range digests {
		ref, err := syncr.RefFromHex(hexDigest)
		if err != nil {
			return errors.Wrap(err, "decoding READ digest")
		}
		data, err := e.Store.Read(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "reading chunk %s", hexDigest)
		}
		if err := conn.WriteData(ref, data); err != nil {
			return err
		}
	}
	e.state = Ready
	return conn.WriteCommand("END")
}

// handleWriteFile begins staging one file (§4.8). For Directory entries
// there is nothing to stage; the relpath is just recorded for mkdir at
// COMMIT. For Regular and Symlink entries it opens a temp file under
// stagingDir and advances through entry.Chunks, writing any chunk the
// store already holds immediately and pausing at the first one it
// doesn't, which the next DATA frame(s) will supply.
func (e *Engine) handleWriteFile(ctx context.Context, conn *wire.Conn, f wire.Frame) error {
	var entry syncr.FileEntry
	if err := f.Arg(0, &entry); err != nil {
		return errors.Wrap(err, "decoding WRITE-FILE entry")
	}
	relpath, err := syncr.Clean(entry.Path)
	if err != nil {
		return errors.Wrap(err, "validating WRITE-FILE path")
	}

	if entry.Kind == syncr.Directory {
		e.pending[relpath] = pendingWrite{kind: syncr.Directory, mode: entry.Mode}
		return conn.WriteCommand("OK")
	}

	if e.stagingDir == "" {
		dir := filepath.Join(e.Root, ".syncr", "staging", uuid.NewString())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "creating staging dir")
		}
		e.stagingDir = dir
	}

	tmpPath := filepath.Join(e.stagingDir, uuid.NewString())
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "creating staged file")
	}

	ws := &writeState{relpath: relpath, kind: entry.Kind, mode: entry.Mode, chunks: entry.Chunks, tmpPath: tmpPath, file: file}
	e.current = ws
	e.state = Writing
	if err := e.advance(ctx, ws); err != nil {
		file.Close()
		return err
	}
	return conn.WriteCommand("OK")
}

// advance writes every chunk at ws.cursor already present in the local
// store, stopping at the first the store lacks.
func (e *Engine) advance(ctx context.Context, ws *writeState) error {
	for ws.cursor < len(ws.chunks) {
		ref := ws.chunks[ws.cursor]
		has, err := e.Store.Has(ctx, ref)
		if err != nil {
			return errors.Wrap(err, "checking chunk store")
		}
		if !has {
			return nil
		}
		data, err := e.Store.Read(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "reading local chunk %s", ref)
		}
		if _, err := ws.file.Write(data); err != nil {
			return errors.Wrap(err, "writing staged file")
		}
		ws.cursor++
	}
	return nil
}

// handleData supplies the bytes for the chunk ws.current is currently
// waiting on: it must match the expected ref at the cursor, verified by
// digest before being written and before the chunk is installed into
// the local store for future reuse.
func (e *Engine) handleData(f wire.Frame) error {
	ws := e.current
	if ws == nil {
		return errors.New("DATA frame with no WRITE-FILE in progress")
	}
	if ws.cursor >= len(ws.chunks) {
		return errors.New("DATA frame after all chunks already satisfied")
	}
	want := ws.chunks[ws.cursor]
	if f.Ref != want {
		return errors.Errorf("DATA frame digest %s does not match expected chunk %s", f.Ref, want)
	}
	if !chunk.Verify(f.Data, want) {
		return errors.Errorf("DATA frame for %s failed digest verification", want)
	}
	if _, err := ws.file.Write(f.Data); err != nil {
		return errors.Wrap(err, "writing staged file")
	}
	ctx := context.Background()
	if staged, err := e.Store.Stage(ctx, want, f.Data); err == nil {
		_ = e.Store.Install(ctx, staged)
	}
	ws.cursor++
	return e.advance(ctx, ws)
}

// handleEnd finalizes the WRITE-FILE currently in progress. LIST's and
// READ's own END frames are written by this engine, not received from
// it, so the only END this dispatch ever sees closes a WRITE-FILE.
func (e *Engine) handleEnd(conn *wire.Conn) error {
	ws := e.current
	if e.state != Writing || ws == nil {
		return errors.New("END received with no WRITE-FILE in progress")
	}
	if ws.cursor != len(ws.chunks) {
		return errors.Errorf("WRITE-FILE for %q ended with %d/%d chunks received", ws.relpath, ws.cursor, len(ws.chunks))
	}
	if err := ws.file.Close(); err != nil {
		return errors.Wrap(err, "closing staged file")
	}
	e.pending[ws.relpath] = pendingWrite{kind: ws.kind, mode: ws.mode, tmpPath: ws.tmpPath}
	e.current = nil
	e.state = Ready
	return conn.WriteCommand("OK")
}

// handleDelete stages relpath for removal at COMMIT. Not in the
// distilled command table — see pendingDeletes' doc comment.
func (e *Engine) handleDelete(conn *wire.Conn, f wire.Frame) error {
	var relpath string
	if err := f.Arg(0, &relpath); err != nil {
		return errors.Wrap(err, "decoding DELETE arg")
	}
	cleaned, err := syncr.Clean(relpath)
	if err != nil {
		return errors.Wrap(err, "validating DELETE path")
	}
	e.pendingDeletes = append(e.pendingDeletes, cleaned)
	return conn.WriteCommand("OK")
}

// handleCommit renames every staged regular file, recreates every
// symlink, creates every staged directory, and removes every staged
// deletion under Root, creating parent directories as needed, per §4.8.
func (e *Engine) handleCommit(conn *wire.Conn) error {
	e.state = Committing
	relpaths := make([]string, 0, len(e.pending))
	for relpath := range e.pending {
		relpaths = append(relpaths, relpath)
	}
	sort.Strings(relpaths)

	var committed, failed []string
	for _, relpath := range relpaths {
		if err := e.commitOne(relpath, e.pending[relpath]); err != nil {
			failed = append(failed, relpath)
			continue
		}
		committed = append(committed, relpath)
	}

	deletes := append([]string(nil), e.pendingDeletes...)
	sort.Strings(deletes)
	for _, relpath := range deletes {
		if err := os.RemoveAll(filepath.Join(e.Root, relpath)); err != nil {
			failed = append(failed, relpath)
			continue
		}
		committed = append(committed, relpath)
	}

	e.pending = make(map[string]pendingWrite)
	e.pendingDeletes = nil
	if e.stagingDir != "" {
		_ = os.RemoveAll(e.stagingDir)
		e.stagingDir = ""
	}
	if len(failed) > 0 {
		return conn.WriteErr(wire.ErrBody{
			Code:     "commit_partial",
			Severity: wire.SeverityFile,
			Msg:      errors.Errorf("committed %d, failed %v", len(committed), failed).Error(),
		})
	}
	return conn.WriteCommand("OK", committed)
}

func (e *Engine) commitOne(relpath string, pw pendingWrite) error {
	dest := filepath.Join(e.Root, relpath)
	mode := os.FileMode(pw.mode)
	switch pw.kind {
	case syncr.Directory:
		if mode == 0 {
			mode = 0o755
		}
		return os.MkdirAll(dest, mode)
	case syncr.Symlink:
		target, err := os.ReadFile(pw.tmpPath)
		if err != nil {
			return errors.Wrap(err, "reading staged symlink target")
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		_ = os.Remove(dest)
		return os.Symlink(string(target), dest)
	default:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.Rename(pw.tmpPath, dest); err != nil {
			return err
		}
		if mode != 0 {
			_ = os.Chmod(dest, mode)
		}
		return nil
	}
}
