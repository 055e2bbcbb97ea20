package quota

import "context"

// BurstStore composes a primary quota with a secondary, smaller burst
// allowance. The burst counter is consulted only once the primary rejects;
// a consumption is allowed when either counter has capacity. Burst counters
// live in their own key space so they never collide with primary counters.
type BurstStore struct {
	primary Store
	burst   Store
	quota   Quota // the burst allowance (limit + window, never blocking)
}

// NewBurstStore wraps primary with a burst allowance kept in burstStore.
// burstStore may alias a store already inside the primary chain; its
// lifetime belongs to the caller and Close will not touch it.
func NewBurstStore(primary, burstStore Store, burst Quota) *BurstStore {
	burst.BlockDuration = 0
	return &BurstStore{primary: primary, burst: burstStore, quota: burst}
}

func (s *BurstStore) Consume(ctx context.Context, key string, q Quota) (Result, error) {
	res, err := s.primary.Consume(ctx, key, q)
	if err != nil || res.Allowed {
		return res, err
	}

	bres, berr := s.burst.Consume(ctx, "burst:"+key, s.quota)
	if berr != nil {
		// The burst counter failing must not turn a clean rejection into an
		// outage; report the primary decision.
		return res, nil
	}

	if !bres.Allowed {
		// Burst units still count as consumption pressure for wrappers
		// watching rejected results.
		res.Consumed += bres.Consumed
		return res, nil
	}

	// Allowed on burst capacity. The caller-visible quota is still the
	// primary one, which is exhausted, so remaining stays at zero and the
	// reset time tracks the primary window.
	return Result{
		Allowed:   true,
		Remaining: 0,
		Consumed:  res.Consumed + bres.Consumed,
		ResetIn:   res.ResetIn,
		Limit:     res.Limit,
	}, nil
}

func (s *BurstStore) Close() error {
	return s.primary.Close()
}
