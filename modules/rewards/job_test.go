package rewards

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	// pages per (collection, template); drained one page per call
	pages       map[string][][]assetindex.AssetRecord
	fetchCalls  map[string]int
	senders     map[uint64]string
	senderErr   error
	failFetches map[string]bool
}

func groupKey(collection string, templateID int64) string {
	return collection + "/" + strconv.FormatInt(templateID, 10)
}

func (f *fakeFetcher) Assets(ctx context.Context, query assetindex.AssetsQuery) ([]assetindex.AssetRecord, error) {
	if f.fetchCalls == nil {
		f.fetchCalls = map[string]int{}
	}
	key := groupKey(query.Collection, query.TemplateID)
	f.fetchCalls[key]++
	if f.failFetches[key] {
		return nil, errors.Wrap(errs.TransientIO, "fetch failed")
	}
	pages := f.pages[key]
	if query.Page > len(pages) {
		return nil, nil
	}
	return pages[query.Page-1], nil
}

func (f *fakeFetcher) LastSender(ctx context.Context, assetID uint64) (string, error) {
	if f.senderErr != nil {
		return "", f.senderErr
	}
	sender, ok := f.senders[assetID]
	if !ok {
		return "", errors.Wrap(errs.SenderLookup, "no transfer history")
	}
	return sender, nil
}

type fakeStore struct {
	tables   map[string]any // table -> rows to serve on Select
	rpcPages map[string][][]TemplateEntry
	upserts  map[string][][]Reward
	deletes  []string
	delErr   error
}

func (f *fakeStore) Select(ctx context.Context, table, order string, out any) error {
	rows, ok := f.tables[table]
	if !ok {
		return errors.Wrapf(errs.TransientIO, "no such table %q", table)
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeStore) Upsert(ctx context.Context, table string, rows any) error {
	if f.upserts == nil {
		f.upserts = map[string][][]Reward{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var rewards []Reward
	if err := json.Unmarshal(raw, &rewards); err != nil {
		return err
	}
	f.upserts[table] = append(f.upserts[table], rewards)
	return nil
}

func (f *fakeStore) DeleteEq(ctx context.Context, table, column, value string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deletes = append(f.deletes, table+"/"+column+"="+value)
	return nil
}

func (f *fakeStore) RPC(ctx context.Context, fn string, params, out any) error {
	p := params.(map[string]any)
	page := p["off"].(int) / 1000
	pages := f.rpcPages[fn]
	var rows []TemplateEntry
	if page < len(pages) {
		rows = pages[page]
	}
	raw, _ := json.Marshal(rows)
	return json.Unmarshal(raw, out)
}

type fakeAlert struct {
	failures []string
}

func (f *fakeAlert) Fail(ctx context.Context, job, msg string) {
	f.failures = append(f.failures, msg)
}

func baseStore(rates []Rate) *fakeStore {
	return &fakeStore{
		tables: map[string]any{
			blocklistTable: []BlockEntry{{Account: "badguy"}},
			ratesTable:     rates,
			configTable:    []ConfigEntry{{Config: "throttle", Value: "0.5"}, {Config: "vip_only", Value: "false"}},
		},
		rpcPages: map[string][][]TemplateEntry{
			templatesFn: {lo.Map(rates, func(r Rate, _ int) TemplateEntry { return TemplateEntry{TemplateID: r.TemplateID} })},
		},
	}
}

func asset(id uint64, owner string, mint int64) assetindex.AssetRecord {
	return assetindex.AssetRecord{AssetID: id, Owner: owner, MintNumber: mint, Name: "Drip Pass"}
}

func TestJobRun(t *testing.T) {
	rate := Rate{Collection: "dripworld", TemplateID: 100, DripAmount: 100}
	key := groupKey("dripworld", 100)

	t.Run("processes all pages until the first empty one", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{pages: map[string][][]assetindex.AssetRecord{
			key: {
				{asset(1, "alice", 1), asset(2, "bob", 2)},
				{asset(3, "carol", 3)},
			},
		}}
		st := baseStore([]Rate{rate})
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, nil)
		require.NoError(t, job.Run(context.Background()))

		// two non-empty pages plus the terminating empty fetch
		assert.Equal(t, 3, fetcher.fetchCalls[key])
		require.Len(t, st.upserts[assetsTable], 2)
		total := len(st.upserts[assetsTable][0]) + len(st.upserts[assetsTable][1])
		assert.Equal(t, 3, total)
		assert.Empty(t, alerts.failures)
	})

	t.Run("fetch failure skips group but run continues with others", func(t *testing.T) {
		t.Parallel()
		otherRate := Rate{Collection: "dripworld", TemplateID: 200, DripAmount: 10}
		otherKey := groupKey("dripworld", 200)
		fetcher := &fakeFetcher{
			pages: map[string][][]assetindex.AssetRecord{
				otherKey: {{asset(9, "alice", 1)}},
			},
			failFetches: map[string]bool{key: true},
		}
		st := baseStore([]Rate{rate, otherRate})
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, nil)
		assert.ErrorIs(t, job.Run(context.Background()), errs.RunFailed)

		assert.Len(t, alerts.failures, 1)
		// the healthy group was still fully processed
		require.Len(t, st.upserts[assetsTable], 1)
		assert.Equal(t, uint64(9), st.upserts[assetsTable][0][0].AssetID)
	})

	t.Run("custodial owner resolves through transfer history", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{
			pages:   map[string][][]assetindex.AssetRecord{key: {{asset(1, "custody.wax", 1)}}},
			senders: map[uint64]string{1: "alice"},
		}
		st := baseStore([]Rate{rate})
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, []string{"custody.wax"})
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, st.upserts[assetsTable], 1)
		assert.Equal(t, "alice", st.upserts[assetsTable][0][0].Owner)
		assert.Equal(t, 100.0, st.upserts[assetsTable][0][0].Net)
	})

	t.Run("failed sender lookup skips the asset and flags the run", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{
			pages: map[string][][]assetindex.AssetRecord{key: {{asset(1, "custody.wax", 1), asset(2, "alice", 1)}}},
		}
		st := baseStore([]Rate{rate})
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, []string{"custody.wax"})
		assert.ErrorIs(t, job.Run(context.Background()), errs.RunFailed)

		assert.Len(t, alerts.failures, 1)
		require.Len(t, st.upserts[assetsTable], 1)
		require.Len(t, st.upserts[assetsTable][0], 1)
		assert.Equal(t, uint64(2), st.upserts[assetsTable][0][0].AssetID)
	})

	t.Run("blocked owner is written with zero drip", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{
			pages: map[string][][]assetindex.AssetRecord{key: {{asset(1, "badguy", 1)}}},
		}
		st := baseStore([]Rate{rate})
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, nil)
		require.NoError(t, job.Run(context.Background()))

		row := st.upserts[assetsTable][0][0]
		assert.Equal(t, 0.0, row.DripAmount)
		assert.Equal(t, 0.0, row.Gross)
		assert.Equal(t, 0.0, row.Net)
	})

	t.Run("stale template rows are deleted before the main pass", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{pages: map[string][][]assetindex.AssetRecord{}}
		st := baseStore(nil)
		st.tables[ratesTable] = []Rate{}
		st.rpcPages[templatesFn] = [][]TemplateEntry{{{TemplateID: 555}}}
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, nil)
		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, []string{assetsTable + "/template_id=555"}, st.deletes)
	})

	t.Run("stale delete failure is alerted and flagged", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{pages: map[string][][]assetindex.AssetRecord{}}
		st := baseStore(nil)
		st.tables[ratesTable] = []Rate{}
		st.rpcPages[templatesFn] = [][]TemplateEntry{{{TemplateID: 555}}}
		st.delErr = errors.New("delete refused")
		alerts := &fakeAlert{}

		job := New(fetcher, st, alerts, nil)
		assert.ErrorIs(t, job.Run(context.Background()), errs.RunFailed)
		assert.Len(t, alerts.failures, 1)
	})

	t.Run("missing throttle config aborts the run", func(t *testing.T) {
		t.Parallel()
		st := baseStore([]Rate{rate})
		st.tables[configTable] = []ConfigEntry{}

		job := New(&fakeFetcher{}, st, &fakeAlert{}, nil)
		assert.ErrorIs(t, job.Run(context.Background()), errs.Startup)
	})
}
