// Package transfer implements the drip transfer job: it pays each
// eligible wallet its accumulated drip balance in bounded transaction
// batches and logs every realized payout.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/core/batch"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const JobName = "transfer"

const (
	logTable    = "drip_log"
	configTable = "drip_config"
	walletsFn   = "get_wallets"
	dripsFn     = "get_all_drip"

	transferMemo = "Drip transfer"
)

type configEntry struct {
	Config string `json:"config"`
	Value  string `json:"value"`
}

type walletRow struct {
	Wallet string `json:"wallet"`
}

type distRow struct {
	Address string `json:"address"`
}

type walletDrip struct {
	Wallet string  `json:"wallet"`
	Drip   float64 `json:"drip"`
}

// LogRow is one realized payout, written after submit success.
type LogRow struct {
	TxnID  string  `json:"txn_id"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Token  string  `json:"token"`
}

// payout is one pending token transfer.
type payout struct {
	To     string
	Amount decimal.Decimal
}

type Store interface {
	Select(ctx context.Context, table, order string, out any) error
	Upsert(ctx context.Context, table string, rows any) error
	RPC(ctx context.Context, fn string, params, out any) error
}

type Submitter interface {
	Submit(ctx context.Context, actions []chain.Action) (string, error)
}

type Notifier interface {
	Fail(ctx context.Context, job, msg string)
}

type Config struct {
	BatchLimit     int
	SkipAccounts   []string
	Account        string
	Authorization  []chain.Authorization
	TokenContract  string
	TokenSymbol    string
	TokenPrecision int32
}

type Job struct {
	cfg       Config
	store     Store
	distStore Store
	submitter Submitter
	alert     Notifier
	skip      map[string]struct{}
	failed    bool
}

func New(cfg Config, st, distStore Store, submitter Submitter, alert Notifier) *Job {
	return &Job{
		cfg:       cfg,
		store:     st,
		distStore: distStore,
		submitter: submitter,
		alert:     alert,
		skip:      lo.SliceToMap(cfg.SkipAccounts, func(acc string) (string, struct{}) { return acc, struct{}{} }),
	}
}

func (j *Job) Run(ctx context.Context) error {
	wallets, err := j.wallets(ctx)
	if err != nil {
		return errors.Wrap(err, "can't fetch wallet list")
	}

	drips, err := store.RPCAll[walletDrip](ctx, j.store, dripsFn)
	if err != nil {
		return errors.Wrap(err, "failed to get drips")
	}
	dripByWallet := lo.SliceToMap(drips, func(d walletDrip) (string, float64) { return d.Wallet, d.Drip })

	batcher := batch.NewBatcher(j.cfg.BatchLimit, j.flush)
	for _, wallet := range wallets {
		if _, skip := j.skip[wallet]; skip {
			logger.InfoContext(ctx, "wallet skipped", slog.String("wallet", wallet))
			continue
		}
		drip := dripByWallet[wallet]
		if drip == 0 {
			logger.DebugContext(ctx, "no drip", slog.String("wallet", wallet))
			continue
		}
		if err := batcher.Add(ctx, payout{
			To:     wallet,
			Amount: decimal.NewFromFloat(drip).RoundBank(j.cfg.TokenPrecision),
		}); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := batcher.Close(ctx); err != nil {
		return errors.WithStack(err)
	}

	if j.failed {
		return errors.WithStack(errs.RunFailed)
	}
	return nil
}

// wallets returns the payout recipients. In vip mode the list comes from
// the distribution store instead of the main one.
func (j *Job) wallets(ctx context.Context) ([]string, error) {
	var config []configEntry
	if err := j.store.Select(ctx, configTable, "", &config); err != nil {
		return nil, errors.WithStack(err)
	}
	vipOnly, _ := lo.Find(config, func(e configEntry) bool { return e.Config == "vip_only" })

	if vipOnly.Value == "true" {
		rows, err := store.RPCAll[distRow](ctx, j.distStore, walletsFn)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		wallets := lo.Map(rows, func(r distRow, _ int) string { return r.Address })
		logger.InfoContext(ctx, "using distribution wallet list", slog.Int("count", len(wallets)))
		return wallets, nil
	}

	rows, err := store.RPCAll[walletRow](ctx, j.store, walletsFn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return lo.Map(rows, func(r walletRow, _ int) string { return r.Wallet }), nil
}

// flush submits one batch of payouts and logs the realized transfers.
// Failures are alerted and flagged, never propagated: the next batch must
// still run, and a submitted batch is never resubmitted.
func (j *Job) flush(ctx context.Context, payouts []payout) error {
	actions := lo.Map(payouts, func(p payout, _ int) chain.Action {
		return chain.Action{
			Account:       j.cfg.TokenContract,
			Name:          "transfer",
			Authorization: j.cfg.Authorization,
			Data: map[string]any{
				"from":     j.cfg.Account,
				"to":       p.To,
				"quantity": p.Amount.StringFixed(j.cfg.TokenPrecision) + " " + j.cfg.TokenSymbol,
				"memo":     transferMemo,
			},
		}
	})
	recipients := strings.Join(lo.Map(payouts, func(p payout, _ int) string { return p.To }), ",")

	txnID, err := j.submitter.Submit(ctx, actions)
	if err != nil {
		msg := fmt.Sprintf("Transfer failed for %s - %v", recipients, err)
		logger.ErrorContext(ctx, msg, slogx.Error(err))
		j.alert.Fail(ctx, JobName, msg)
		j.failed = true
		return nil
	}
	logger.InfoContext(ctx, "Transferred", slog.String("txn_id", txnID))

	rows := lo.Map(payouts, func(p payout, _ int) LogRow {
		logger.InfoContext(ctx, "paid out", slog.String("to", p.To), slog.String("amount", p.Amount.String()))
		return LogRow{
			TxnID:  txnID,
			To:     p.To,
			Amount: p.Amount.InexactFloat64(),
			Token:  j.cfg.TokenSymbol,
		}
	})
	if err := j.store.Upsert(ctx, logTable, rows); err != nil {
		msg := fmt.Sprintf("Failed to upload log for %s - %v", recipients, err)
		logger.ErrorContext(ctx, msg, slogx.Error(err))
		j.alert.Fail(ctx, JobName, msg)
		j.failed = true
	}
	return nil
}
