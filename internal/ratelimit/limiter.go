package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a rate-limit check. RetryAfter is only set when
// the request is denied.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Limiter throttles PIN verification attempts per opaque source key. A
// request must pass both the sliding attempt window and any active backoff
// to be allowed; the attempt reservation and the decision are one atomic
// unit in the backing store.
type Limiter interface {
	Check(ctx context.Context, sourceKey string) (Decision, error)
	RecordFailure(ctx context.Context, sourceKey string) error
	RecordSuccess(ctx context.Context, sourceKey string) error
}

// ladder holds the mandatory wait before the next attempt, indexed by the
// number of consecutive failures so far. The last value caps the ladder.
var ladder = []time.Duration{
	0,
	5 * time.Second,
	30 * time.Second,
	300 * time.Second,
}

// BackoffDelay returns the wait imposed after the given number of
// consecutive failures: the first retry is immediate, then 5s, 30s and
// finally 300s for every attempt beyond that.
func BackoffDelay(consecutiveFailures int64) time.Duration {
	if consecutiveFailures < 0 {
		return 0
	}
	if consecutiveFailures >= int64(len(ladder)) {
		return ladder[len(ladder)-1]
	}
	return ladder[consecutiveFailures]
}

// LadderMillis exposes the ladder in milliseconds for the store's Lua
// scripts.
func LadderMillis() []int64 {
	out := make([]int64, len(ladder))
	for i, d := range ladder {
		out[i] = d.Milliseconds()
	}
	return out
}
