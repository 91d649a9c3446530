package replication_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/meltwater/hbase-scripts/replication"
)

// Retryer succeeds at a certain trial.
type retryer struct {
	Count     int
	SucceedAt int
}

func (r *retryer) try(_ context.Context) error {
	r.Count++
	if r.Count == r.SucceedAt {
		return nil
	}
	return errors.Wrap(replication.ErrRetryable, "connection refused")
}

func TestRetryer_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		retryer     *retryer
		retryFunc   func(ctx context.Context) error
		maxAttempts int
		context     context.Context
		wantErr     error
		wantCount   int
	}{
		{
			name:        "success",
			retryFunc:   func(ctx context.Context) error { return nil },
			maxAttempts: 3,
			context:     context.Background(),
		},
		{
			name:        "not retryable error",
			retryer:     &retryer{SucceedAt: -1},
			retryFunc:   func(ctx context.Context) error { return errors.New("some error") },
			maxAttempts: 3,
			context:     context.Background(),
			wantErr:     errors.New("some error"),
		},
		{
			name:        "retryable error until attempts are used up",
			retryer:     &retryer{SucceedAt: -1},
			maxAttempts: 3,
			context:     context.Background(),
			wantErr:     replication.ErrRetriesExhausted,
			wantCount:   3,
		},
		{
			name:        "succeed at the 3rd try",
			retryer:     &retryer{SucceedAt: 3},
			maxAttempts: 3,
			context:     context.Background(),
			wantCount:   3,
		},
		{
			name:        "unlimited attempts",
			retryer:     &retryer{SucceedAt: 5},
			maxAttempts: 0,
			context:     context.Background(),
			wantCount:   5,
		},
		{
			name:        "don't retry if context is canceled",
			retryer:     &retryer{SucceedAt: -1},
			maxAttempts: 3,
			context: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx // already canceled context is passed
			}(),
			wantErr:   context.Canceled,
			wantCount: 0,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// --- given ---
			fn := tt.retryFunc
			if tt.retryer != nil && fn == nil {
				fn = tt.retryer.try
			}
			r := replication.NewRetryer(fn, time.Millisecond, 1, tt.maxAttempts)

			// --- when ---
			err := r.Run(tt.context)

			// --- then ---
			switch {
			case tt.wantErr == nil:
				assert.Nil(t, err)
			case tt.wantErr == replication.ErrRetriesExhausted || tt.wantErr == context.Canceled:
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			default:
				assert.EqualError(t, err, tt.wantErr.Error())
			}
			if tt.retryer != nil && tt.retryFunc == nil {
				assert.Equal(t, tt.wantCount, tt.retryer.Count)
			}
		})
	}
}

func TestRetryer_Run_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	// --- given ---
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := replication.NewRetryer(func(ctx context.Context) error {
		calls++
		cancel()
		return replication.ErrRetryable
	}, time.Hour, 1, 3)

	// --- when ---
	start := time.Now()
	err := r.Run(ctx)

	// --- then ---
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}
