package replication_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/replication"
	"github.com/meltwater/hbase-scripts/store"
	"github.com/meltwater/hbase-scripts/store/memstore"
)

type failingDestination struct {
	*memstore.Table
}

func (f failingDestination) PutBatch(context.Context, []*store.Put) error {
	return errors.New("region server unavailable")
}

func TestWriteBatch_FlushesAtThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		rows        int
		threshold   int
		wantBatches []int
	}{
		{name: "below threshold", rows: 3, threshold: 5, wantBatches: []int{3}},
		{name: "exact threshold", rows: 5, threshold: 5, wantBatches: []int{5}},
		{name: "partial last batch", rows: 12, threshold: 5, wantBatches: []int{5, 5, 2}},
		{name: "no rows", rows: 0, threshold: 5, wantBatches: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// --- given ---
			ctx := context.Background()
			dest := memstore.New("buzz_data")
			b := replication.NewWriteBatch(dest, tt.threshold)

			// --- when ---
			written := 0
			for i := 0; i < tt.rows; i++ {
				n, err := b.Add(ctx, &store.Put{Key: []byte(fmt.Sprintf("key%04d", i))})
				require.Nil(t, err)
				written += n
			}
			n, err := b.Flush(ctx)
			require.Nil(t, err)
			written += n

			// --- then ---
			assert.Equal(t, tt.rows, written)
			assert.Equal(t, 0, b.Len())
			assert.Equal(t, tt.wantBatches, dest.Stats().Batches)
			assert.Equal(t, tt.rows, dest.Len())
		})
	}
}

func TestWriteBatch_KeepsPendingOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := replication.NewWriteBatch(failingDestination{memstore.New("buzz_data")}, 2)

	n, err := b.Add(ctx, &store.Put{Key: []byte("a")})
	require.Nil(t, err)
	assert.Equal(t, 0, n)

	_, err = b.Add(ctx, &store.Put{Key: []byte("b")})
	assert.NotNil(t, err)
	assert.Equal(t, 2, b.Len())

	b.Discard()
	assert.Equal(t, 0, b.Len())
}
