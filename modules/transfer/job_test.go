package transfer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	config  []configEntry
	wallets []string // served by get_wallets (wallet or address column)
	drips   []walletDrip
	distRow bool // serve wallets as address rows

	rpcErr  map[string]error
	upserts [][]LogRow
	logErr  error
}

func (f *fakeStore) Select(ctx context.Context, table, order string, out any) error {
	raw, _ := json.Marshal(f.config)
	return json.Unmarshal(raw, out)
}

func (f *fakeStore) Upsert(ctx context.Context, table string, rows any) error {
	if f.logErr != nil {
		return f.logErr
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var logRows []LogRow
	if err := json.Unmarshal(raw, &logRows); err != nil {
		return err
	}
	f.upserts = append(f.upserts, logRows)
	return nil
}

func (f *fakeStore) RPC(ctx context.Context, fn string, params, out any) error {
	if err := f.rpcErr[fn]; err != nil {
		return err
	}
	off := params.(map[string]any)["off"].(int)
	var rows any
	switch fn {
	case walletsFn:
		wallets := f.wallets
		if off > 0 {
			wallets = nil
		}
		if f.distRow {
			rows = lo.Map(wallets, func(w string, _ int) distRow { return distRow{Address: w} })
		} else {
			rows = lo.Map(wallets, func(w string, _ int) walletRow { return walletRow{Wallet: w} })
		}
	case dripsFn:
		drips := f.drips
		if off > 0 {
			drips = nil
		}
		rows = drips
	}
	raw, _ := json.Marshal(rows)
	return json.Unmarshal(raw, out)
}

type fakeSubmitter struct {
	batches [][]chain.Action
	failAt  map[int]error // 1-indexed batch number
	calls   int
}

func (f *fakeSubmitter) Submit(ctx context.Context, actions []chain.Action) (string, error) {
	f.calls++
	if err := f.failAt[f.calls]; err != nil {
		return "", err
	}
	f.batches = append(f.batches, actions)
	return "txn1", nil
}

type fakeAlert struct {
	failures []string
}

func (f *fakeAlert) Fail(ctx context.Context, job, msg string) {
	f.failures = append(f.failures, msg)
}

func testConfig(limit int) Config {
	return Config{
		BatchLimit:     limit,
		Account:        "drip.payer",
		Authorization:  []chain.Authorization{{Actor: "drip.payer", Permission: "active"}},
		TokenContract:  "drip.token",
		TokenSymbol:    "DRIP",
		TokenPrecision: 4,
	}
}

func TestJobRun(t *testing.T) {
	t.Run("pays each wallet with drip and logs the batch", func(t *testing.T) {
		t.Parallel()
		st := &fakeStore{
			config:  []configEntry{{Config: "vip_only", Value: "false"}},
			wallets: []string{"alice", "bob", "carol"},
			drips:   []walletDrip{{Wallet: "alice", Drip: 12.5}, {Wallet: "carol", Drip: 3}},
		}
		submitter := &fakeSubmitter{}
		alerts := &fakeAlert{}

		job := New(testConfig(10), st, nil, submitter, alerts)
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, submitter.batches, 1)
		require.Len(t, submitter.batches[0], 2)
		data := submitter.batches[0][0].Data.(map[string]any)
		assert.Equal(t, "drip.payer", data["from"])
		assert.Equal(t, "alice", data["to"])
		assert.Equal(t, "12.5000 DRIP", data["quantity"])
		assert.Equal(t, transferMemo, data["memo"])
		assert.Equal(t, "transfer", submitter.batches[0][0].Name)
		assert.Equal(t, "drip.token", submitter.batches[0][0].Account)

		require.Len(t, st.upserts, 1)
		assert.Equal(t, []LogRow{
			{TxnID: "txn1", To: "alice", Amount: 12.5, Token: "DRIP"},
			{TxnID: "txn1", To: "carol", Amount: 3, Token: "DRIP"},
		}, st.upserts[0])
		assert.Empty(t, alerts.failures)
	})

	t.Run("splits payouts at the batch limit", func(t *testing.T) {
		t.Parallel()
		wallets := []string{"w1", "w2", "w3", "w4", "w5"}
		st := &fakeStore{
			config:  []configEntry{},
			wallets: wallets,
			drips:   lo.Map(wallets, func(w string, _ int) walletDrip { return walletDrip{Wallet: w, Drip: 1} }),
		}
		submitter := &fakeSubmitter{}

		job := New(testConfig(2), st, nil, submitter, &fakeAlert{})
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, submitter.batches, 3)
		assert.Len(t, submitter.batches[0], 2)
		assert.Len(t, submitter.batches[1], 2)
		assert.Len(t, submitter.batches[2], 1)
	})

	t.Run("skip list and zero drip produce no action", func(t *testing.T) {
		t.Parallel()
		st := &fakeStore{
			config:  []configEntry{},
			wallets: []string{"alice", "bob", "carol"},
			drips:   []walletDrip{{Wallet: "alice", Drip: 5}, {Wallet: "bob", Drip: 7}, {Wallet: "carol", Drip: 0}},
		}
		submitter := &fakeSubmitter{}

		cfg := testConfig(10)
		cfg.SkipAccounts = []string{"bob"}
		job := New(cfg, st, nil, submitter, &fakeAlert{})
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, submitter.batches, 1)
		require.Len(t, submitter.batches[0], 1)
		assert.Equal(t, "alice", submitter.batches[0][0].Data.(map[string]any)["to"])
	})

	t.Run("quantity rounds half to even at the configured precision", func(t *testing.T) {
		t.Parallel()
		st := &fakeStore{
			config:  []configEntry{},
			wallets: []string{"alice", "bob"},
			drips:   []walletDrip{{Wallet: "alice", Drip: 2.5}, {Wallet: "bob", Drip: 3.5}},
		}
		submitter := &fakeSubmitter{}

		cfg := testConfig(10)
		cfg.TokenPrecision = 0
		job := New(cfg, st, nil, submitter, &fakeAlert{})
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, submitter.batches, 1)
		require.Len(t, submitter.batches[0], 2)
		assert.Equal(t, "2 DRIP", submitter.batches[0][0].Data.(map[string]any)["quantity"])
		assert.Equal(t, "4 DRIP", submitter.batches[0][1].Data.(map[string]any)["quantity"])
	})

	t.Run("failed batch is alerted once and the next batch still runs", func(t *testing.T) {
		t.Parallel()
		wallets := []string{"w1", "w2", "w3", "w4"}
		st := &fakeStore{
			config:  []configEntry{},
			wallets: wallets,
			drips:   lo.Map(wallets, func(w string, _ int) walletDrip { return walletDrip{Wallet: w, Drip: 1} }),
		}
		submitter := &fakeSubmitter{failAt: map[int]error{1: errors.Wrap(errs.Submission, "overdrawn balance")}}
		alerts := &fakeAlert{}

		job := New(testConfig(2), st, nil, submitter, alerts)
		assert.ErrorIs(t, job.Run(context.Background()), errs.RunFailed)

		assert.Len(t, alerts.failures, 1)
		assert.Contains(t, alerts.failures[0], "w1,w2")
		// second batch was submitted and logged
		require.Len(t, submitter.batches, 1)
		require.Len(t, st.upserts, 1)
		assert.Equal(t, "w3", st.upserts[0][0].To)
	})

	t.Run("log upload failure flags the run without resubmitting", func(t *testing.T) {
		t.Parallel()
		st := &fakeStore{
			config:  []configEntry{},
			wallets: []string{"alice"},
			drips:   []walletDrip{{Wallet: "alice", Drip: 1}},
			logErr:  errors.New("store down"),
		}
		submitter := &fakeSubmitter{}
		alerts := &fakeAlert{}

		job := New(testConfig(10), st, nil, submitter, alerts)
		assert.ErrorIs(t, job.Run(context.Background()), errs.RunFailed)
		assert.Equal(t, 1, submitter.calls)
		assert.Len(t, alerts.failures, 1)
	})

	t.Run("vip mode reads the distribution store", func(t *testing.T) {
		t.Parallel()
		st := &fakeStore{
			config: []configEntry{{Config: "vip_only", Value: "true"}},
			drips:  []walletDrip{{Wallet: "vip1", Drip: 2}},
		}
		dist := &fakeStore{wallets: []string{"vip1"}, distRow: true}
		submitter := &fakeSubmitter{}

		job := New(testConfig(10), st, dist, submitter, &fakeAlert{})
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, submitter.batches, 1)
		assert.Equal(t, "vip1", submitter.batches[0][0].Data.(map[string]any)["to"])
	})

	t.Run("drip table failure is run-fatal", func(t *testing.T) {
		t.Parallel()
		st := &fakeStore{
			config:  []configEntry{},
			wallets: []string{"alice"},
			rpcErr:  map[string]error{dripsFn: errors.Wrap(errs.TransientIO, "store down")},
		}

		job := New(testConfig(10), st, nil, &fakeSubmitter{}, &fakeAlert{})
		err := job.Run(context.Background())
		assert.ErrorIs(t, err, errs.TransientIO)
	})
}
