// Package rewards implements the reward computation job: it walks every
// asset of every configured reward template, derives the per-asset drip
// amount and overwrites the off-chain asset mirror.
package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/samber/lo"
)

const JobName = "rewards"

const (
	ratesTable     = "drip_template_data"
	assetsTable    = "drip_asset_data2"
	configTable    = "drip_config"
	blocklistTable = "blocklist_main"
	templatesFn    = "get_templates"
)

// AssetFetcher is the slice of the asset index used by this job.
type AssetFetcher interface {
	Assets(ctx context.Context, query assetindex.AssetsQuery) ([]assetindex.AssetRecord, error)
	LastSender(ctx context.Context, assetID uint64) (string, error)
}

// Store is the slice of the off-chain store used by this job.
type Store interface {
	Select(ctx context.Context, table, order string, out any) error
	Upsert(ctx context.Context, table string, rows any) error
	DeleteEq(ctx context.Context, table, column, value string) error
	RPC(ctx context.Context, fn string, params, out any) error
}

// Notifier delivers failure alerts.
type Notifier interface {
	Fail(ctx context.Context, job, msg string)
}

type Job struct {
	assets    AssetFetcher
	store     Store
	alert     Notifier
	custodial map[string]struct{}
}

func New(assets AssetFetcher, st Store, alert Notifier, custodialAccounts []string) *Job {
	return &Job{
		assets:    assets,
		store:     st,
		alert:     alert,
		custodial: lo.SliceToMap(custodialAccounts, func(acc string) (string, struct{}) { return acc, struct{}{} }),
	}
}

// Run executes one full pass. Recoverable failures are alerted and
// flagged; the run continues and finishes with errs.RunFailed. Failures
// before any processing starts are returned directly.
func (j *Job) Run(ctx context.Context) error {
	var blocklist []BlockEntry
	if err := j.store.Select(ctx, blocklistTable, "", &blocklist); err != nil {
		return errors.Wrap(err, "can't fetch blocklist")
	}

	var rates []Rate
	if err := j.store.Select(ctx, ratesTable, "collection.asc,template_id.asc", &rates); err != nil {
		return errors.Wrap(err, "can't fetch reward rates")
	}

	var config []ConfigEntry
	if err := j.store.Select(ctx, configTable, "", &config); err != nil {
		return errors.Wrap(err, "can't fetch job config")
	}
	throttleRate, err := throttleRate(config)
	if err != nil {
		return err
	}

	templates, err := store.RPCAll[TemplateEntry](ctx, j.store, templatesFn)
	if err != nil {
		return errors.Wrap(err, "can't fetch template list")
	}

	ruleset := Ruleset{
		Blocked:      lo.SliceToMap(blocklist, func(e BlockEntry) (string, struct{}) { return e.Account, struct{}{} }),
		ThrottleRate: throttleRate,
	}

	failed := j.deleteStaleTemplates(ctx, templates, rates)

	for _, rate := range rates {
		if !j.processRate(ctx, ruleset, rate) {
			failed = true
		}
	}

	if failed {
		return errors.WithStack(errs.RunFailed)
	}
	return nil
}

// deleteStaleTemplates drops mirror rows of templates that no longer have
// a reward rate. Returns true when any delete failed.
func (j *Job) deleteStaleTemplates(ctx context.Context, templates []TemplateEntry, rates []Rate) (failed bool) {
	for _, template := range templates {
		_, live := lo.Find(rates, func(r Rate) bool { return r.TemplateID == template.TemplateID })
		if live {
			continue
		}
		if err := j.store.DeleteEq(ctx, assetsTable, "template_id", strconv.FormatInt(template.TemplateID, 10)); err != nil {
			msg := fmt.Sprintf("%d: Deleting old template failed, %v", template.TemplateID, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			failed = true
			continue
		}
		logger.InfoContext(ctx, "Old template deleted", slog.Int64("template_id", template.TemplateID))
	}
	return failed
}

// processRate walks every page of one (collection, template) group.
// A page fetch failure abandons the rest of the group; other groups are
// unaffected. Returns false when anything in the group failed.
func (j *Job) processRate(ctx context.Context, ruleset Ruleset, rate Rate) (ok bool) {
	ok = true
	ctx = logger.WithContext(ctx, slog.String("collection", rate.Collection), slog.Int64("template_id", rate.TemplateID))

	for page := 1; ; page++ {
		assets, err := j.assets.Assets(ctx, assetindex.AssetsQuery{
			Collection: rate.Collection,
			TemplateID: rate.TemplateID,
			Page:       page,
		})
		if err != nil {
			msg := fmt.Sprintf("%s - %d - %d: Fetching assets failed, %v", rate.Collection, rate.TemplateID, page, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			return false
		}
		if len(assets) == 0 {
			return ok
		}

		rows := make([]Reward, 0, len(assets))
		for _, asset := range assets {
			owner, err := j.effectiveOwner(ctx, asset)
			if err != nil {
				msg := fmt.Sprintf("%s - %d: Fetching sender for %d failed, %v", rate.Collection, rate.TemplateID, asset.AssetID, err)
				logger.ErrorContext(ctx, msg, slogx.Error(err))
				j.alert.Fail(ctx, JobName, msg)
				ok = false
				continue
			}
			logger.DebugContext(ctx, "computing reward", slog.Uint64("asset_id", asset.AssetID), slog.String("owner", owner))
			rows = append(rows, ruleset.Compute(asset, rate, owner))
		}

		if err := j.store.Upsert(ctx, assetsTable, rows); err != nil {
			msg := fmt.Sprintf("%s - %d - %d: Assets upload failed, %v", rate.Collection, rate.TemplateID, page, err)
			logger.ErrorContext(ctx, msg, slogx.Error(err))
			j.alert.Fail(ctx, JobName, msg)
			ok = false
		}
	}
}

// effectiveOwner resolves custodially staked assets to their original
// depositor via transfer history.
func (j *Job) effectiveOwner(ctx context.Context, asset assetindex.AssetRecord) (string, error) {
	if _, custodial := j.custodial[asset.Owner]; !custodial {
		return asset.Owner, nil
	}
	sender, err := j.assets.LastSender(ctx, asset.AssetID)
	if err != nil {
		return "", errors.WithStack(err)
	}
	logger.DebugContext(ctx, "custodial staked, resolved original owner", slog.Uint64("asset_id", asset.AssetID), slog.String("owner", sender))
	return sender, nil
}

func throttleRate(config []ConfigEntry) (float64, error) {
	entry, found := lo.Find(config, func(e ConfigEntry) bool { return e.Config == "throttle" })
	if !found {
		return 0, errors.Wrap(errs.Startup, "job config has no throttle entry")
	}
	rate, err := strconv.ParseFloat(entry.Value, 64)
	if err != nil {
		return 0, errors.Wrapf(errs.Startup, "malformed throttle value %q", entry.Value)
	}
	return rate, nil
}
