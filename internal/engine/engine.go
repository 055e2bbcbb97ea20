// Package engine wires rule resolution, identity derivation, allowlisting,
// quota consumption, warning deduplication and event recording into the
// per-request admission decision. The engine is constructed once at startup
// and injected into the request path; it holds no ambient global state.
//
// Availability beats enforcement throughout: configuration errors disable the
// engine instead of crashing the host, backend failures degrade to the
// insurance store, and any unexpected error or panic in the request path
// fails open.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"gatekeeper/internal/events"
	"gatekeeper/internal/identity"
	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/quota"
	"gatekeeper/internal/rules"
	"gatekeeper/internal/warnings"
)

// memoryCleanupInterval is how often in-process stores evict idle buckets.
const memoryCleanupInterval = 5 * time.Minute

// Decision is the terminal outcome of one admission check.
type Decision struct {
	Allowed     bool
	EmitHeaders bool // false for excluded, allowlisted, disabled and fail-open passes
	Limit       int
	Remaining   int
	ResetAt     time.Time
	RetryAfter  time.Duration // meaningful only when not allowed
}

// Engine is the admission-control composition root.
type Engine struct {
	enabled    bool
	strategy   string
	trustProxy bool
	defaults   quota.Quota

	resolver  *rules.Resolver
	allowlist *identity.Allowlist
	store     quota.Store
	shared    *quota.RedisStore // nil unless the redis strategy is active
	dedup     *warnings.Deduplicator
	recorder  *events.Recorder
	metrics   *observability.EngineMetrics
}

// Option configures optional engine behavior.
type Option func(*Engine)

// WithMetrics attaches admission metrics instruments.
func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStore overrides the constructed store chain. Intended for tests.
func WithStore(s quota.Store) Option {
	return func(e *Engine) { e.store = s }
}

// Disabled returns an engine that admits every request. Used when rate
// limiting is turned off or its configuration failed to initialize.
func Disabled() *Engine {
	return &Engine{
		strategy: models.StrategyNone,
		dedup:    warnings.NewDeduplicator(0),
		recorder: events.NewRecorder(events.DefaultCapacity),
	}
}

// New builds an engine from validated configuration. A configuration or
// backend connection error is returned to the caller, which is expected to
// fall back to Disabled() rather than abort the host.
func New(cfg models.RateLimitConfig, opts ...Option) (*Engine, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}

	defaults := quota.Quota{
		Limit:         cfg.Limit,
		Window:        cfg.Interval,
		BlockDuration: cfg.BlockDuration,
	}

	resolver, err := rules.NewResolver(defaults, cfg.Rules, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	e := &Engine{
		enabled:    true,
		strategy:   cfg.Strategy,
		trustProxy: cfg.TrustProxyHeaders,
		defaults:   defaults,
		resolver:   resolver,
		allowlist:  identity.NewAllowlist(cfg.Allowlist.IPs, cfg.Allowlist.Tokens, cfg.Allowlist.Users),
		dedup:      warnings.NewDeduplicator(cfg.WarnThreshold),
		recorder:   events.NewRecorder(cfg.EventLogSize),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		if err := e.buildStore(cfg); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// buildStore assembles the counter backend and its wrappers:
//
//	BlockCache( Paced( Burst( Fallback(Redis) | Memory ) ) )
//
// Memory strategy counters are per process instance; operators scaling
// horizontally get a warning at startup pointing them at the redis strategy.
func (e *Engine) buildStore(cfg models.RateLimitConfig) error {
	var base quota.Store

	switch cfg.Strategy {
	case models.StrategyMemory:
		slog.Warn("memory strategy counts requests per instance only; use the redis strategy for enforcement across replicas")
		base = quota.NewMemoryStore(memoryCleanupInterval)

	case models.StrategyRedis:
		shared, err := quota.NewRedisStore(cfg.Redis, cfg.KeyPrefix)
		if err != nil {
			return fmt.Errorf("connect shared store: %w", err)
		}
		e.shared = shared

		fb := quota.NewFallbackStore(shared, quota.NewMemoryStore(memoryCleanupInterval))
		fb.OnFallback(func(ctx context.Context) {
			e.metrics.RecordFallback(ctx)
		})
		base = fb

	default:
		return fmt.Errorf("unsupported strategy: %s", cfg.Strategy)
	}

	store := base
	if cfg.Burst.Enabled {
		store = quota.NewBurstStore(store, base, quota.Quota{
			Limit:  cfg.Burst.Limit,
			Window: cfg.Burst.Interval,
		})
	}
	if cfg.ExecEvenly {
		store = quota.NewPacedStore(store, cfg.ExecEvenlyMinDelay)
	}
	if cfg.InMemoryBlock.Enabled && cfg.Strategy == models.StrategyRedis {
		store = quota.NewBlockCache(store, cfg.InMemoryBlock.Factor, cfg.InMemoryBlock.Duration)
	}

	e.store = store
	return nil
}

// Check runs the admission state machine for one request. Every error path
// inside it degrades to a PASS: rate limiting must never be the reason the
// service is down.
func (e *Engine) Check(r *http.Request) (d Decision) {
	d = Decision{Allowed: true}
	if !e.enabled {
		return d
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("admission check panicked, failing open", "panic", rec, "path", r.URL.Path)
			d = Decision{Allowed: true}
		}
	}()

	path := rules.NormalizePath(r.URL.Path)
	if e.resolver.IsExcluded(path) {
		return d
	}

	ctx := r.Context()
	start := time.Now()

	q, ruleIdx := e.resolver.Resolve(path)
	key := identity.ResolveKey(r, e.trustProxy)

	if e.allowlist.Contains(key) {
		e.metrics.RecordDecision(ctx, observability.OutcomeBypassed, time.Since(start))
		return d
	}

	scope, source := scopeFor(ruleIdx)
	res, err := e.Consume(ctx, key, q, scope)
	elapsed := time.Since(start)
	if err != nil {
		slog.Error("quota consumption failed, failing open", "error", err, "key", key, "path", path)
		e.metrics.RecordDecision(ctx, observability.OutcomeFailOpen, elapsed)
		return Decision{Allowed: true}
	}

	d = Decision{
		Allowed:     res.Allowed,
		EmitHeaders: true,
		Limit:       res.Limit,
		Remaining:   res.Remaining,
		ResetAt:     time.Now().Add(res.ResetIn),
	}

	if res.Allowed {
		e.metrics.RecordDecision(ctx, observability.OutcomeAllowed, elapsed)
		if e.dedup.ShouldWarn(scope+":"+string(key), res.Consumed, res.Limit, q.Window) {
			slog.Warn("identity approaching rate limit",
				"key", key, "path", path, "consumed", res.Consumed, "limit", res.Limit)
			e.metrics.RecordWarning(ctx)
			e.recorder.Record(events.Event{
				Type:      events.TypeWarning,
				Key:       string(key),
				Path:      path,
				Source:    source,
				Consumed:  res.Consumed,
				Limit:     res.Limit,
				ResetInMs: res.ResetIn.Milliseconds(),
			})
		}
		return d
	}

	d.RetryAfter = res.ResetIn
	e.metrics.RecordDecision(ctx, observability.OutcomeBlocked, elapsed)
	slog.Warn("request blocked by rate limit",
		"key", key, "path", path, "consumed", res.Consumed, "limit", res.Limit,
		"retry_after", res.ResetIn)
	e.recorder.Record(events.Event{
		Type:      events.TypeBlocked,
		Key:       string(key),
		Path:      path,
		Source:    source,
		Consumed:  res.Consumed,
		Limit:     res.Limit,
		ResetInMs: res.ResetIn.Milliseconds(),
	})
	return d
}

// Consume spends one unit for key under q within the given bucket scope.
// Buckets for the same identity under different scopes are independent.
func (e *Engine) Consume(ctx context.Context, key identity.Key, q quota.Quota, scope string) (quota.Result, error) {
	return e.store.Consume(ctx, scope+":"+string(key), q)
}

// Resolve maps a path to its governing quota and rule index.
func (e *Engine) Resolve(path string) (quota.Quota, int) {
	return e.resolver.Resolve(path)
}

// IsAllowlisted reports whether the identity bypasses rate limiting.
func (e *Engine) IsAllowlisted(key identity.Key) bool {
	return e.allowlist.Contains(key)
}

// IsExcluded reports whether the path bypasses the engine entirely.
func (e *Engine) IsExcluded(path string) bool {
	if e.resolver == nil {
		return false
	}
	return e.resolver.IsExcluded(path)
}

// ShouldWarn exposes the warning deduplicator decision.
func (e *Engine) ShouldWarn(key identity.Key, consumed, limit int, window time.Duration) bool {
	return e.dedup.ShouldWarn(string(key), consumed, limit, window)
}

// RecordEvent appends an event to the audit trail.
func (e *Engine) RecordEvent(ev events.Event) {
	e.recorder.Record(ev)
}

// RecentEvents returns the retained events newest-first with the lifetime
// total and ring capacity.
func (e *Engine) RecentEvents() ([]events.Event, uint64, int) {
	return e.recorder.Snapshot()
}

// ClearEvents resets the audit trail.
func (e *Engine) ClearEvents() {
	e.recorder.Clear()
}

// Status reports the operator-facing engine snapshot.
func (e *Engine) Status() models.StatusResponse {
	s := models.StatusResponse{
		Enabled:  e.enabled,
		Strategy: e.strategy,
		Defaults: models.QuotaSnapshot{
			Limit:           e.defaults.Limit,
			IntervalMs:      e.defaults.Window.Milliseconds(),
			BlockDurationMs: e.defaults.BlockDuration.Milliseconds(),
		},
	}
	if e.resolver != nil {
		s.RulesCount = e.resolver.RulesCount()
	}
	if e.allowlist != nil {
		ips, tokens, users := e.allowlist.Counts()
		s.AllowlistCounts = models.AllowlistCounts{IPs: ips, Tokens: tokens, Users: users}
	}
	switch {
	case e.shared != nil:
		s.BackendConnected = e.shared.Connected()
	case e.enabled:
		// The in-process store has no connection to lose.
		s.BackendConnected = true
	}
	return s
}

// Disconnect closes the store chain and releases backend connections.
func (e *Engine) Disconnect(_ context.Context) error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// RetryAfterSeconds converts a retry delay to whole header seconds, rounding
// up so a client never retries early.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// scopeFor names the counter scope and event source for a resolved rule.
func scopeFor(ruleIdx int) (scope, source string) {
	if ruleIdx == rules.DefaultRule {
		return "default", events.SourceGlobal
	}
	return fmt.Sprintf("rule%d", ruleIdx), events.SourceRoute
}
