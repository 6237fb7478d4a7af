// Package tickets implements the ticket mint job: every live asset of
// the configured template earns one freshly minted ticket, its template
// drawn from a weighted set of choices.
package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/core/batch"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/samber/lo"
)

const JobName = "tickets"

const (
	logTable    = "ticket_log"
	nftContract = "atomicassets"
	mintAction  = "mintasset"
)

// LogRow is one realized ticket mint, written after submit success.
type LogRow struct {
	TxnID      string `json:"txn_id"`
	To         string `json:"to"`
	TemplateID int64  `json:"template_id"`
	AssetID    uint64 `json:"asset_id"`
	Name       string `json:"name"`
}

// mint is one pending ticket mint.
type mint struct {
	AssetID    uint64
	Owner      string
	TemplateID int64
	Name       string
}

type AssetFetcher interface {
	Assets(ctx context.Context, query assetindex.AssetsQuery) ([]assetindex.AssetRecord, error)
}

type Store interface {
	Upsert(ctx context.Context, table string, rows any) error
}

type Submitter interface {
	Submit(ctx context.Context, actions []chain.Action) (string, error)
}

type Notifier interface {
	Fail(ctx context.Context, job, msg string)
}

type Config struct {
	BatchLimit    int
	Collection    string
	Schema        string
	TemplateID    int64
	SkipAssets    []uint64
	Choices       []config.TicketChoice
	Account       string
	Authorization []chain.Authorization
}

type Job struct {
	cfg       Config
	assets    AssetFetcher
	store     Store
	submitter Submitter
	alert     Notifier
	skip      map[uint64]struct{}
	failed    bool
}

func New(cfg Config, assets AssetFetcher, st Store, submitter Submitter, alert Notifier) *Job {
	return &Job{
		cfg:       cfg,
		assets:    assets,
		store:     st,
		submitter: submitter,
		alert:     alert,
		skip:      lo.SliceToMap(cfg.SkipAssets, func(id uint64) (uint64, struct{}) { return id, struct{}{} }),
	}
}

func (j *Job) Run(ctx context.Context) error {
	pick, err := newPicker(j.cfg.Choices)
	if err != nil {
		return errors.Wrap(errs.Startup, err.Error())
	}

	batcher := batch.NewBatcher(j.cfg.BatchLimit, j.flush)
	for page := 1; ; page++ {
		records, err := j.assets.Assets(ctx, assetindex.AssetsQuery{
			Collection: j.cfg.Collection,
			TemplateID: j.cfg.TemplateID,
			Page:       page,
		})
		if err != nil {
			msg := fmt.Sprintf("%s - %d - %d: Fetching assets failed, %v", j.cfg.Collection, j.cfg.TemplateID, page, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			j.failed = true
			break
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			if _, skip := j.skip[record.AssetID]; skip || record.Burnt() {
				logger.InfoContext(ctx, "asset skipped",
					slog.Uint64("asset_id", record.AssetID), slog.String("owner", record.Owner))
				continue
			}
			templateID, name := pick.Pick()
			if err := batcher.Add(ctx, mint{
				AssetID:    record.AssetID,
				Owner:      record.Owner,
				TemplateID: templateID,
				Name:       name,
			}); err != nil {
				return errors.WithStack(err)
			}
		}
		// a mint batch never spans pages
		if err := batcher.Close(ctx); err != nil {
			return errors.WithStack(err)
		}
	}

	if j.failed {
		return errors.WithStack(errs.RunFailed)
	}
	return nil
}

// flush submits one batch of mints and logs the realized tickets.
// Failures are alerted and flagged, never propagated.
func (j *Job) flush(ctx context.Context, mints []mint) error {
	actions := lo.Map(mints, func(m mint, _ int) chain.Action {
		return chain.Action{
			Account:       nftContract,
			Name:          mintAction,
			Authorization: j.cfg.Authorization,
			Data: map[string]any{
				"authorized_minter": j.cfg.Account,
				"collection_name":   j.cfg.Collection,
				"schema_name":       j.cfg.Schema,
				"template_id":       m.TemplateID,
				"new_asset_owner":   m.Owner,
				"immutable_data":    []any{},
				"mutable_data":      []any{},
				"tokens_to_back":    []any{},
			},
		}
	})
	assetIDs := strings.Join(lo.Map(mints, func(m mint, _ int) string {
		return strconv.FormatUint(m.AssetID, 10)
	}), ",")

	txnID, err := j.submitter.Submit(ctx, actions)
	if err != nil {
		msg := fmt.Sprintf("Minting failed for %s - %v", assetIDs, err)
		logger.ErrorContext(ctx, msg, slogx.Error(err))
		j.alert.Fail(ctx, JobName, msg)
		j.failed = true
		return nil
	}
	logger.InfoContext(ctx, "Minted", slog.String("txn_id", txnID))

	rows := lo.Map(mints, func(m mint, _ int) LogRow {
		logger.InfoContext(ctx, "ticket minted",
			slog.String("to", m.Owner),
			slog.Uint64("asset_id", m.AssetID),
			slog.Int64("template_id", m.TemplateID),
			slog.String("name", m.Name))
		return LogRow{
			TxnID:      txnID,
			To:         m.Owner,
			TemplateID: m.TemplateID,
			AssetID:    m.AssetID,
			Name:       m.Name,
		}
	})
	if err := j.store.Upsert(ctx, logTable, rows); err != nil {
		msg := fmt.Sprintf("Failed to upload log for %s - %v", assetIDs, err)
		logger.ErrorContext(ctx, msg, slogx.Error(err))
		j.alert.Fail(ctx, JobName, msg)
		j.failed = true
	}
	return nil
}
