package replication

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/meltwater/hbase-scripts/utils/log"
)

var (
	// ErrRetryable is a custom error to retry the logic when returned.
	ErrRetryable = errors.New("retryable replication error")
	// ErrRetriesExhausted is returned when the last allowed attempt failed
	// with a retryable error.
	ErrRetriesExhausted = errors.New("replication retries exhausted")
)

type Retryer struct {
	retryFunc    func(ctx context.Context) error
	interval     time.Duration
	backoffCoeff int
	maxAttempts  int
}

// NewRetryer returns a Retryer that waits interval*backoffCoeff^n before the
// n-th retry. A backoffCoeff of 1 is a fixed backoff. maxAttempts <= 0 retries
// until success or cancel.
func NewRetryer(retryFunc func(ctx context.Context) error, interval time.Duration, backoffCoeff, maxAttempts int,
) *Retryer {
	return &Retryer{
		retryFunc:    retryFunc,
		interval:     interval,
		backoffCoeff: backoffCoeff,
		maxAttempts:  maxAttempts,
	}
}

// Run tries the Retryer until it succeeds, it returns unretriable error, the
// attempts are used up, or the context is canceled.
func (r *Retryer) Run(ctx context.Context) error {
	const decimal = 10
	for cnt := 0; ; cnt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "replication canceled")
		}

		err := r.retryFunc(ctx)
		// success
		if err == nil {
			return nil
		}

		if !errors.Is(err, ErrRetryable) {
			// not retryable error, give up.
			log.Warn("caught a non-retryable error:" + err.Error())
			return err
		}

		attempts := cnt + 1
		if r.maxAttempts > 0 && attempts >= r.maxAttempts {
			return errors.Wrapf(ErrRetriesExhausted, "gave up after %d attempts, last error: %v", attempts, err)
		}

		// retryable error. continue
		interval := retryInterval(r.interval, r.backoffCoeff, cnt)
		log.Warn("caught a retryable error. It will be retried after an interval:" +
			strconv.FormatInt(interval.Milliseconds(), decimal) + "[ms], err=" + err.Error())

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrap(ctx.Err(), "replication canceled")
		case <-t.C:
		}
	}
}

func retryInterval(interval time.Duration, backoffCoeff, retryCount int) time.Duration {
	coeff := math.Pow(float64(backoffCoeff), float64(retryCount))
	intervalMilliSec := float64(interval.Milliseconds())
	return time.Duration(intervalMilliSec*coeff) * time.Millisecond
}
