// Package instancelock enforces at most one running instance per job.
// Runs are triggered by external cron and must never overlap: two
// concurrent runs could double-submit transactions or race on the same
// downstream rows.
package instancelock

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/gofrs/flock"
)

type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock for the named job. It fails
// immediately with errs.AlreadyRunning when another process holds it.
func Acquire(dir, job string) (*Lock, error) {
	path := filepath.Join(dir, job+".lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "can't acquire run lock %q", path)
	}
	if !locked {
		return nil, errors.Wrapf(errs.AlreadyRunning, "run lock %q is held by another instance", path)
	}
	return &Lock{fl: fl}, nil
}

// Release frees the lock. Safe to defer; the lock is also released by the
// OS when the process exits.
func (l *Lock) Release() error {
	return errors.WithStack(l.fl.Unlock())
}
