package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/internal/instancelock"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlert struct {
	failures []string
}

func (f *fakeAlert) Fail(ctx context.Context, job, msg string) {
	f.failures = append(f.failures, msg)
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

func buildRunner(run runnerFunc) buildFunc {
	return func(i do.Injector) (runner, error) {
		return run, nil
	}
}

func TestRunJob(t *testing.T) {
	t.Run("held lock exits with one alert and no client wiring", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		lock, err := instancelock.Acquire(dir, "rewards")
		require.NoError(t, err)
		defer lock.Release()

		alerts := &fakeAlert{}
		built := false
		err = runJob(context.Background(), "rewards", config.Config{LockDir: dir}, alerts,
			func(i do.Injector) (runner, error) {
				built = true
				return nil, errors.New("unreachable")
			})

		assert.ErrorIs(t, err, errs.AlreadyRunning)
		assert.Equal(t, []string{"Already running, exiting"}, alerts.failures)
		assert.False(t, built)
	})

	t.Run("lock io failure is alerted once", func(t *testing.T) {
		t.Parallel()
		alerts := &fakeAlert{}
		conf := config.Config{LockDir: filepath.Join(t.TempDir(), "missing")}

		err := runJob(context.Background(), "rewards", conf, alerts, buildRunner(nil))
		require.Error(t, err)
		assert.NotErrorIs(t, err, errs.AlreadyRunning)
		require.Len(t, alerts.failures, 1)
		assert.Contains(t, alerts.failures[0], "Acquiring run lock failed")
	})

	t.Run("clean run releases the lock and alerts nothing", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		alerts := &fakeAlert{}
		conf := config.Config{LockDir: dir}

		err := runJob(context.Background(), "rewards", conf, alerts,
			buildRunner(func(ctx context.Context) error { return nil }))
		require.NoError(t, err)
		assert.Empty(t, alerts.failures)

		// the lock must be free again for the next cron run
		lock, err := instancelock.Acquire(dir, "rewards")
		require.NoError(t, err)
		require.NoError(t, lock.Release())
	})

	t.Run("fatal job error produces one main loop alert", func(t *testing.T) {
		t.Parallel()
		alerts := &fakeAlert{}
		boom := errors.New("store unreachable")

		err := runJob(context.Background(), "rewards", config.Config{LockDir: t.TempDir()}, alerts,
			buildRunner(func(ctx context.Context) error { return boom }))
		assert.ErrorIs(t, err, boom)
		require.Len(t, alerts.failures, 1)
		assert.Contains(t, alerts.failures[0], "Main loop failed")
	})

	t.Run("partial failure run is not alerted again", func(t *testing.T) {
		t.Parallel()
		alerts := &fakeAlert{}

		err := runJob(context.Background(), "rewards", config.Config{LockDir: t.TempDir()}, alerts,
			buildRunner(func(ctx context.Context) error { return errors.WithStack(errs.RunFailed) }))
		assert.ErrorIs(t, err, errs.RunFailed)
		assert.Empty(t, alerts.failures)
	})

	t.Run("build failure surfaces the error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("bad wiring")
		err := runJob(context.Background(), "rewards", config.Config{LockDir: t.TempDir()}, &fakeAlert{},
			func(i do.Injector) (runner, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	})
}
