// Package salewarn implements the sale warning job: assets listed for
// sale get their mutable image swapped to a warning variant, and swapped
// back once the listing is gone.
package salewarn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
)

const JobName = "salewarn"

const (
	watchTable  = "sale_warning_data"
	nftContract = "atomicassets"
	setAction   = "setassetdata"

	marketPageLimit = 1000
)

// WatchEntry is one watched template with its two image variants.
type WatchEntry struct {
	Collection string `json:"collection"`
	TemplateID int64  `json:"template_id"`
	Normal     string `json:"normal"`
	Warning    string `json:"warning"`
}

type AssetFetcher interface {
	MarketAssets(ctx context.Context, query assetindex.AssetsQuery) ([]assetindex.AssetRecord, error)
}

type Store interface {
	Select(ctx context.Context, table, order string, out any) error
}

type Submitter interface {
	Submit(ctx context.Context, actions []chain.Action) (string, error)
}

type Notifier interface {
	Fail(ctx context.Context, job, msg string)
}

type Config struct {
	Account       string
	Authorization []chain.Authorization
}

type Job struct {
	cfg       Config
	assets    AssetFetcher
	store     Store
	submitter Submitter
	alert     Notifier
	failed    bool
}

func New(cfg Config, assets AssetFetcher, st Store, submitter Submitter, alert Notifier) *Job {
	return &Job{
		cfg:       cfg,
		assets:    assets,
		store:     st,
		submitter: submitter,
		alert:     alert,
	}
}

func (j *Job) Run(ctx context.Context) error {
	var watched []WatchEntry
	if err := j.store.Select(ctx, watchTable, "", &watched); err != nil {
		return errors.Wrap(err, "can't fetch sale warning config")
	}

	for _, entry := range watched {
		j.processEntry(ctx, entry)
	}

	if j.failed {
		return errors.WithStack(errs.RunFailed)
	}
	return nil
}

// processEntry walks every market listing page of one watched template
// and rewrites each out-of-date image. A fetch failure abandons the rest
// of this template's pages only.
func (j *Job) processEntry(ctx context.Context, entry WatchEntry) {
	for page := 1; ; page++ {
		records, err := j.assets.MarketAssets(ctx, assetindex.AssetsQuery{
			Collection: entry.Collection,
			TemplateID: entry.TemplateID,
			Page:       page,
			Limit:      marketPageLimit,
		})
		if err != nil {
			msg := fmt.Sprintf("%s - %d - %d: Fetching assets failed, %v", entry.Collection, entry.TemplateID, page, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			j.failed = true
			return
		}
		if len(records) == 0 {
			return
		}

		for _, record := range records {
			logger.DebugContext(ctx, "checked listing",
				slog.String("collection", entry.Collection),
				slog.Uint64("asset_id", record.AssetID),
				slog.String("owner", record.Owner))

			img, change := targetImage(record, entry)
			if !change {
				continue
			}
			txnID, err := j.submitter.Submit(ctx, []chain.Action{j.setImageAction(record, img)})
			if err != nil {
				msg := fmt.Sprintf("Set image failed for %d, %s - %v", record.AssetID, record.Name, err)
				logger.ErrorContext(ctx, msg, slogx.Error(err))
				j.alert.Fail(ctx, JobName, msg)
				j.failed = true
				continue
			}
			logger.InfoContext(ctx, "Updated", slog.String("txn_id", txnID), slog.Uint64("asset_id", record.AssetID))
		}
	}
}

// targetImage decides which image the asset should carry: the warning
// variant while at least one sale is open, the normal one otherwise.
// change is false when the mutable image already matches.
func targetImage(record assetindex.AssetRecord, entry WatchEntry) (img string, change bool) {
	want := entry.Normal
	if record.Sales > 0 {
		want = entry.Warning
	}
	if record.MutableData["img"] == want {
		return "", false
	}
	return want, true
}

// setImageAction rewrites the full mutable data of the asset, keeping
// every key and substituting only the image.
func (j *Job) setImageAction(record assetindex.AssetRecord, img string) chain.Action {
	mutable := make([]map[string]any, 0, len(record.MutableData))
	for key, value := range record.MutableData {
		if key == "img" {
			value = img
		}
		mutable = append(mutable, map[string]any{
			"key":   key,
			"value": []any{"string", value},
		})
	}
	if _, ok := record.MutableData["img"]; !ok {
		mutable = append(mutable, map[string]any{
			"key":   "img",
			"value": []any{"string", img},
		})
	}
	return chain.Action{
		Account:       nftContract,
		Name:          setAction,
		Authorization: j.cfg.Authorization,
		Data: map[string]any{
			"authorized_editor": j.cfg.Account,
			"asset_owner":       record.Owner,
			"asset_id":          record.AssetID,
			"new_mutable_data":  mutable,
		},
	}
}
