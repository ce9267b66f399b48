package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/diag"
)

// breakerState is one worker kind's circuit state (spec.md §4.6.6): a
// circuit opens after three consecutive failures of the same worker
// kind, blocking further calls for a cool-off interval; the half-open
// state admits exactly one probe call. New component: no example repo
// in the pack ships a circuit-breaker dependency (sony/gobreaker never
// appears in any go.mod here), so this is standard library only.
type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

const (
	failureThreshold = 3
	coolOff          = 30 * time.Second
	maxRetries       = 3
	baseBackoff      = 500 * time.Millisecond
)

type breaker struct {
	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	openedAt         time.Time
	probeInFlight    bool
}

// Breakers is a registry of per-worker-kind circuit breakers.
type Breakers struct {
	mu       sync.Mutex
	byKind   map[string]*breaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers() *Breakers {
	return &Breakers{byKind: make(map[string]*breaker)}
}

func (b *Breakers) get(kind string) *breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.byKind[kind]
	if !ok {
		br = &breaker{}
		b.byKind[kind] = br
	}
	return br
}

// admit reports whether a call to this worker kind may proceed right
// now, transitioning open -> half-open once the cool-off has elapsed.
func (br *breaker) admit() bool {
	br.mu.Lock()
	defer br.mu.Unlock()

	switch br.state {
	case closed:
		return true
	case open:
		if time.Since(br.openedAt) >= coolOff {
			br.state = halfOpen
			br.probeInFlight = true
			return true
		}
		return false
	case halfOpen:
		if br.probeInFlight {
			return false
		}
		br.probeInFlight = true
		return true
	}
	return true
}

func (br *breaker) recordSuccess() {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.state = closed
	br.consecutiveFails = 0
	br.probeInFlight = false
}

func (br *breaker) recordFailure() {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.probeInFlight = false
	br.consecutiveFails++
	if br.consecutiveFails >= failureThreshold {
		br.state = open
		br.openedAt = time.Now()
	}
}

// CallWithRetry invokes attempt under the named worker kind's circuit
// breaker, making up to three attempts with exponential backoff and
// jitter between them (spec.md §4.6.6). A SchemaViolation is not a
// transient failure and is returned without a further attempt. A blocked circuit
// fails immediately with errs.CircuitOpen so the Orchestrator can mark
// the hypothesis uncertain and continue rather than abort.
func CallWithRetry[T any](ctx context.Context, breakers *Breakers, kind string, attempt func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	br := breakers.get(kind)

	if !br.admit() {
		return zero, errs.New(errs.CircuitOpen, fmt.Sprintf("circuit open for worker kind %q", kind))
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			backoff := baseBackoff * time.Duration(1<<uint(i-1))
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				br.recordFailure()
				return zero, ctx.Err()
			}
		}

		out, err := attempt(ctx)
		if err == nil {
			br.recordSuccess()
			return out, nil
		}
		lastErr = err
		if k, ok := errs.KindOf(err); ok && k == errs.SchemaViolation {
			br.recordFailure()
			return zero, err
		}
		diag.Warnf("agent: worker %q attempt %d/%d failed: %v", kind, i+1, maxRetries, err)
	}

	br.recordFailure()
	return zero, errs.Wrap(errs.WorkerCallFailed, fmt.Sprintf("worker %q failed after %d attempts", kind, maxRetries), lastErr)
}
