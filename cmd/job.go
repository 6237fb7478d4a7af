package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/core/batch"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/internal/instancelock"
	"github.com/dripworks/dripper/pkg/alert"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/dripworks/dripper/pkg/retry"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

const distStoreName = "dist"

type runner interface {
	Run(ctx context.Context) error
}

type notifier interface {
	Fail(ctx context.Context, job, msg string)
}

type buildFunc func(i do.Injector) (runner, error)

// newJobCommand wraps one job in the shared run harness: single-instance
// lock, client wiring, duration logging and failure alerting.
func newJobCommand(use, short, jobName string, build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := config.Load()
			alerts, err := alert.New(conf.Alert)
			if err != nil {
				return errors.Wrap(err, "invalid alert configuration")
			}
			return runJob(cmd.Context(), jobName, conf, alerts, build)
		},
	}
}

func runJob(ctx context.Context, jobName string, conf config.Config, alerts notifier, build buildFunc) error {
	ctx = logger.WithContext(ctx, slog.String("job", jobName))

	// overlapping cron runs must bail out before touching any API
	lock, err := instancelock.Acquire(conf.LockDir, jobName)
	if err != nil {
		msg := "Already running, exiting"
		if !errors.Is(err, errs.AlreadyRunning) {
			msg = fmt.Sprintf("Acquiring run lock failed, %v", err)
		}
		logger.ErrorContext(ctx, msg, slogx.Error(err))
		alerts.Fail(ctx, jobName, msg)
		return errors.WithStack(err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.WarnContext(ctx, "failed to release run lock", slogx.Error(err))
		}
	}()

	injector := do.New()
	do.ProvideValue(injector, conf)
	do.ProvideValue(injector, alerts)
	do.Provide(injector, func(i do.Injector) (*assetindex.Client, error) {
		conf := do.MustInvoke[config.Config](i)
		return assetindex.New(conf.AssetIndex)
	})
	do.Provide(injector, func(i do.Injector) (*store.Client, error) {
		conf := do.MustInvoke[config.Config](i)
		return store.New(conf.Store)
	})
	do.ProvideNamed(injector, distStoreName, func(i do.Injector) (*store.Client, error) {
		conf := do.MustInvoke[config.Config](i)
		return store.New(conf.DistStore)
	})
	do.Provide(injector, func(i do.Injector) (*chain.Client, error) {
		conf := do.MustInvoke[config.Config](i)
		return chain.New(conf.Chain)
	})
	do.Provide(injector, func(i do.Injector) (*batch.Submitter, error) {
		chainClient, err := do.Invoke[*chain.Client](i)
		if err != nil {
			return nil, err
		}
		return batch.NewSubmitter(chainClient, retry.Default()), nil
	})

	job, err := build(injector)
	if err != nil {
		return errors.Wrap(err, "can't build job")
	}

	start := time.Now()
	logger.InfoContext(ctx, "job started")
	err = job.Run(ctx)
	logger.InfoContext(ctx, "job finished", slog.Duration("duration", time.Since(start)))
	if err != nil {
		// partial failures were already alerted one by one
		if !errors.Is(err, errs.RunFailed) {
			msg := fmt.Sprintf("Main loop failed, %v", err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			alerts.Fail(ctx, jobName, msg)
		}
		return errors.WithStack(err)
	}
	return nil
}
