// Package ingestretry provides a backoff-retry helper for callers of
// Sequencer.Add: a checkpoint already in flight reports Busy rather than
// blocking (spec §4.D/§5), so a caller that wants to keep trying until the
// in-flight checkpoint's merge completes needs a retry loop around Add
// itself, since Add does not re-attempt the insert on a caller's behalf.
package ingestretry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/sequencer"
)

// ErrRetriesExhausted is returned once the initial attempt and all
// Policy.MaxRetries retries have reported Busy.
var ErrRetriesExhausted = errors.New("ingestretry: exhausted retries while sequencer reported busy")

// Policy configures the backoff applied between retries of a Busy add.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         float64
}

// DefaultPolicy returns a sensible default retry policy for a checkpoint
// that is expected to drain quickly once merged.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         0.2,
	}
}

// AddFunc performs one attempt at adding a value through a Writer.
type AddFunc func() (model.Status, sequencer.LockToken)

// Add calls fn, retrying with backoff only on model.StatusBusy. Any other
// status (Success or LateWrite) is returned immediately, since neither is
// a transient condition fn can usefully retry past (spec §7's InputError
// vs Transient taxonomy). Add stops retrying and returns
// ErrRetriesExhausted once policy.MaxRetries+1 attempts have all reported
// Busy; if the context is cancelled first it returns ctx.Err() instead.
func Add(ctx context.Context, policy Policy, logger logging.Logger, fn AddFunc) (model.Status, sequencer.LockToken, error) {
	if logger == nil {
		logger = logging.Default()
	}

	backoff := policy.InitialBackoff
	var status model.Status
	var token sequencer.LockToken

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		status, token = fn()
		if status != model.StatusBusy {
			return status, token, nil
		}

		if attempt == policy.MaxRetries {
			break
		}

		logger.Debug("ingestretry: sequencer busy, backing off, attempt=%d backoff=%s", attempt, backoff)

		select {
		case <-ctx.Done():
			return status, token, ctx.Err()
		default:
		}

		jitter := 1.0
		if policy.Jitter > 0 {
			jitter = 1.0 + rand.Float64()*policy.Jitter
		}
		wait := time.Duration(float64(backoff) * jitter)
		if wait > policy.MaxBackoff {
			wait = policy.MaxBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, token, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * policy.BackoffFactor)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return status, token, ErrRetriesExhausted
}
