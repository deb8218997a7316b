// Package pathlock implements the lock that prevents two sync (or
// serve) processes from operating on the same root concurrently.
//
// Exclusivity itself is enforced by an OS advisory lock (via
// github.com/gofrs/flock), not by a hand-rolled PID-liveness check: the
// kernel releases an flock automatically when the holding process
// exits or dies, crash or no, which a sentinel-file-plus-PID-probe
// scheme can only approximate (and not at all across a PID namespace
// or a different host). A companion JSON sentinel is still written
// alongside the lock file purely for human diagnostics — which host,
// pid, and start time is holding a root busy — and carries no
// exclusivity logic of its own.
package pathlock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bobg/syncr"
)

// record is the JSON body written into the diagnostic sentinel file.
type record struct {
	Pid         int    `json:"pid"`
	Hostname    string `json:"hostname"`
	StartUnixNs int64  `json:"start_unix_ns"`
	Nonce       string `json:"nonce"`
}

// Lock holds an acquired path lock. It must be released exactly once, via
// Release, by whichever goroutine acquired it (directly or through the
// signalctl cleanup registry).
type Lock struct {
	fl           *flock.Flock
	sentinelPath string
}

func lockPath(root string) string {
	return filepath.Join(root, ".syncr", "lock")
}

func sentinelPath(root string) string {
	return filepath.Join(root, ".syncr", "lock.info")
}

// Acquire acquires the path lock for root, per §4.6: a non-blocking
// OS advisory lock on <root>/.syncr/lock. If another live process
// already holds it, Acquire returns syncr.ErrBusy.
func Acquire(root string) (*Lock, error) {
	dir := filepath.Join(root, ".syncr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "ensuring %s exists", dir)
	}

	fl := flock.New(lockPath(root))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", lockPath(root))
	}
	if !ok {
		return nil, syncr.ErrBusy
	}

	sp := sentinelPath(root)
	if err := writeSentinel(sp); err != nil {
		fl.Unlock()
		return nil, err
	}

	return &Lock{fl: fl, sentinelPath: sp}, nil
}

func writeSentinel(path string) error {
	hostname, err := os.Hostname()
	if err != nil {
		return errors.Wrap(err, "getting hostname")
	}
	rec := record{
		Pid:         os.Getpid(),
		Hostname:    hostname,
		StartUnixNs: time.Now().UnixNano(),
		Nonce:       uuid.NewString(),
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Release releases the lock and removes the diagnostic sentinel. It is
// safe to call more than once.
func (l *Lock) Release() error {
	os.Remove(l.sentinelPath)
	return errors.Wrap(l.fl.Unlock(), "unlocking")
}

// Path returns the lock file path this lock holds, for logging.
func (l *Lock) Path() string {
	return l.fl.Path()
}
