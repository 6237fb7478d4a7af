// Package mirror implements the asset mirror job: it copies the
// asset_id/owner pairs of one template into an off-chain table and stamps
// a heartbeat timestamp when done.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/samber/lo"
)

const JobName = "mirror"

const configTable = "drip_config"

// Row is one mirrored ownership record.
type Row struct {
	AssetID uint64 `json:"asset_id"`
	Owner   string `json:"owner"`
}

type AssetFetcher interface {
	Assets(ctx context.Context, query assetindex.AssetsQuery) ([]assetindex.AssetRecord, error)
}

type Store interface {
	Upsert(ctx context.Context, table string, rows any) error
}

type Notifier interface {
	Fail(ctx context.Context, job, msg string)
}

type Config struct {
	TemplateID int64
	Table      string
}

type Job struct {
	cfg    Config
	assets AssetFetcher
	store  Store
	alert  Notifier
	now    func() time.Time
	failed bool
}

func New(cfg Config, assets AssetFetcher, st Store, alert Notifier) *Job {
	return &Job{
		cfg:    cfg,
		assets: assets,
		store:  st,
		alert:  alert,
		now:    time.Now,
	}
}

func (j *Job) Run(ctx context.Context) error {
	// newest assets first so recent transfers land early
	for page := 1; ; page++ {
		records, err := j.assets.Assets(ctx, assetindex.AssetsQuery{
			TemplateID: j.cfg.TemplateID,
			Page:       page,
			Descending: true,
		})
		if err != nil {
			// remaining pages are unknowable without this one
			msg := fmt.Sprintf("Page %d: Fetching assets failed, %v", page, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			j.failed = true
			break
		}
		if len(records) == 0 {
			break
		}

		rows := lo.Map(records, func(r assetindex.AssetRecord, _ int) Row {
			return Row{AssetID: r.AssetID, Owner: r.Owner}
		})
		if err := j.store.Upsert(ctx, j.cfg.Table, rows); err != nil {
			msg := fmt.Sprintf("Page %d: Assets upload failed, %v", page, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			j.failed = true
			continue
		}
		logger.InfoContext(ctx, "page mirrored", slog.Int("page", page), slog.Int("rows", len(rows)))
	}

	// heartbeat goes out even after a partial mirror so consumers can
	// tell staleness from silence
	heartbeat := []map[string]string{{
		"pawsome_update": strconv.FormatInt(j.now().Unix(), 10),
	}}
	if err := j.store.Upsert(ctx, configTable, heartbeat); err != nil {
		msg := fmt.Sprintf("Timestamp update failed, %v", err)
		logger.ErrorContext(ctx, msg, slogx.Error(err))
		j.alert.Fail(ctx, JobName, msg)
		j.failed = true
	}

	if j.failed {
		return errors.WithStack(errs.RunFailed)
	}
	return nil
}
