package batch

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcher(t *testing.T) {
	collect := func(flushed *[][]int) func(ctx context.Context, items []int) error {
		return func(ctx context.Context, items []int) error {
			*flushed = append(*flushed, items)
			return nil
		}
	}

	t.Run("splits into ceil(n/k) ordered batches", func(t *testing.T) {
		t.Parallel()
		for _, tc := range []struct {
			n, limit, batches int
		}{
			{n: 0, limit: 5, batches: 0},
			{n: 1, limit: 5, batches: 1},
			{n: 5, limit: 5, batches: 1},
			{n: 6, limit: 5, batches: 2},
			{n: 23, limit: 10, batches: 3},
			{n: 30, limit: 10, batches: 3},
		} {
			var flushed [][]int
			b := NewBatcher(tc.limit, collect(&flushed))

			items := lo.RangeFrom(1, tc.n)
			for _, item := range items {
				require.NoError(t, b.Add(context.Background(), item))
			}
			require.NoError(t, b.Close(context.Background()))

			assert.Len(t, flushed, tc.batches)
			for _, batch := range flushed {
				assert.LessOrEqual(t, len(batch), tc.limit)
			}
			assert.Equal(t, items, lo.Flatten(flushed))
		}
	})

	t.Run("close without remainder flushes nothing", func(t *testing.T) {
		t.Parallel()
		var flushed [][]int
		b := NewBatcher(2, collect(&flushed))

		require.NoError(t, b.Add(context.Background(), 1))
		require.NoError(t, b.Add(context.Background(), 2))
		require.NoError(t, b.Close(context.Background()))
		assert.Len(t, flushed, 1)
	})

	t.Run("failed flush does not retain the batch", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		var flushed [][]int
		fail := true
		b := NewBatcher(2, func(ctx context.Context, items []int) error {
			flushed = append(flushed, items)
			if fail {
				return boom
			}
			return nil
		})

		require.NoError(t, b.Add(context.Background(), 1))
		assert.ErrorIs(t, b.Add(context.Background(), 2), boom)
		assert.Zero(t, b.Pending())

		fail = false
		require.NoError(t, b.Add(context.Background(), 3))
		require.NoError(t, b.Close(context.Background()))
		assert.Equal(t, [][]int{{1, 2}, {3}}, flushed)
	})
}
