package replication

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/meltwater/hbase-scripts/metrics"
	"github.com/meltwater/hbase-scripts/store"
)

// DefaultFlushThreshold is the number of buffered puts that triggers a write.
const DefaultFlushThreshold = 5000

// WriteBatch buffers puts and writes them to the destination as whole
// batches, in arrival order.
type WriteBatch struct {
	dest      store.Destination
	threshold int
	pending   []*store.Put
}

func NewWriteBatch(dest store.Destination, threshold int) *WriteBatch {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &WriteBatch{
		dest:      dest,
		threshold: threshold,
		pending:   make([]*store.Put, 0, threshold),
	}
}

// Add buffers p and writes the batch when it reaches the threshold. It
// returns the number of rows written, 0 if nothing was flushed.
func (b *WriteBatch) Add(ctx context.Context, p *store.Put) (int, error) {
	b.pending = append(b.pending, p)
	if len(b.pending) < b.threshold {
		return 0, nil
	}
	return b.Flush(ctx)
}

// Flush writes every pending put with a single PutBatch call and clears the
// buffer. An empty buffer is not written. On error the buffer is kept.
func (b *WriteBatch) Flush(ctx context.Context) (int, error) {
	n := len(b.pending)
	if n == 0 {
		return 0, nil
	}

	start := time.Now()
	if err := b.dest.PutBatch(ctx, b.pending); err != nil {
		return 0, errors.Wrapf(err, "failed to write a batch of %d rows", n)
	}
	metrics.ClientFlushDuration.Observe(time.Since(start).Seconds())
	metrics.ClientRowsWrittenTotal.Add(float64(n))

	b.pending = make([]*store.Put, 0, b.threshold)
	return n, nil
}

func (b *WriteBatch) Len() int {
	return len(b.pending)
}

// Discard drops pending puts without writing them.
func (b *WriteBatch) Discard() {
	b.pending = b.pending[:0]
}
