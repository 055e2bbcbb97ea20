package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"gatekeeper/internal/engine"
	"gatekeeper/internal/models"
)

// RateLimitMiddleware returns HTTP middleware that runs every request through
// the admission engine. Allowed requests continue with quota headers attached;
// rejected requests are answered here with 429 and a Retry-After hint.
//
// Requests the engine passed without consulting a counter (excluded paths,
// allowlisted identities, disabled engine, fail-open) carry no quota headers:
// there is no meaningful remaining count to report.
func RateLimitMiddleware(eng *engine.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := eng.Check(r)

			if decision.EmitHeaders {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))
			}

			if !decision.Allowed {
				retryAfter := engine.RetryAfterSeconds(decision.RetryAfter)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				if err := json.NewEncoder(w).Encode(models.NewTooManyRequests()); err != nil {
					slog.Error("Failed to encode rate limit response", "error", err)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
