package cosign

import (
	"context"
	"fmt"
	"math"
	"time"

	"nem-cosigner/internal/storage"
)

// LimitPolicy is the ceiling on co-signed amounts.
// Ceiling <= 0 disables the check. Window 0 sums all records ever signed.
type LimitPolicy struct {
	Ceiling float64
	Window  time.Duration
}

// Enabled reports whether a ceiling is configured.
func (p LimitPolicy) Enabled() bool {
	return p.Ceiling > 0
}

// Limiter enforces a LimitPolicy against the signed-transaction records.
type Limiter struct {
	policy LimitPolicy
	store  storage.SignedTransactionStore
	now    func() time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(policy LimitPolicy, store storage.SignedTransactionStore) *Limiter {
	return &Limiter{policy: policy, store: store, now: time.Now}
}

// Allow reports whether amount fits under the ceiling, given the
// aggregate already signed in the window. Rejects iff aggregate + amount > ceiling.
func (l *Limiter) Allow(ctx context.Context, amount float64) (bool, float64, error) {
	if !l.policy.Enabled() {
		return true, 0, nil
	}

	var since int64
	if l.policy.Window > 0 {
		since = l.now().Add(-l.policy.Window).UnixMilli()
	}

	aggregate, err := l.store.SumSignedAmount(ctx, since)
	if err != nil {
		return false, 0, fmt.Errorf("sum signed amount: %w", err)
	}
	return microUnits(aggregate)+microUnits(amount) <= microUnits(l.policy.Ceiling), aggregate, nil
}

// microUnits rounds an XEM amount to whole micro-units (divisibility 6) so
// the ceiling comparison is exact; float sums like 0.1+0.2 drift past it.
func microUnits(xem float64) int64 {
	return int64(math.Round(xem * 1e6))
}
