package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var (
	DefaultRetry    = Retry{MinWait: 2, MaxWait: 32, MaxRetries: 8}
	ErrOutOfRetries = errors.New("tried too many times")
)

// Retry configures jittered exponential backoff
type Retry struct {
	MinWait    int // Min amount of time to sleep per iteration, in seconds
	MaxWait    int // Max amount of time to sleep per iteration, in seconds
	MaxRetries int // Number of times to retry
}

func (r Retry) Sleep(i int) {
	// powerInt returns the base-x exponential of y.
	powerInt := func(x, y int) int {
		ret := 1
		for i := 0; i < y; i++ {
			ret *= x
		}
		return ret
	}

	// minInt returns the minimum of two ints.
	minInt := func(x, y int) int {
		if x < y {
			return x
		}
		return y
	}

	sleepFor := rand.Intn(minInt(r.MaxWait, r.MinWait*powerInt(2, i))) + 1
	time.Sleep(time.Duration(sleepFor) * time.Second)
}

// RetryFunc runs f until it succeeds, shouldRetry rejects its error, or the
// retry budget is spent. The last error is returned.
func RetryFunc(ctx context.Context, f func(ctx context.Context) error, shouldRetry func(error) bool, r Retry) error {
	var err error
	for i := 0; i < r.MaxRetries; i++ {
		err = f(ctx)
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Sleep(i)
	}
	if err == nil {
		err = ErrOutOfRetries
	}
	return err
}
