// Package identity derives the caller identity that quota buckets are keyed
// by, and matches identities against the configured bypass allowlist.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Key kinds. A Key is the tagged string "<kind>:<id>".
const (
	KindIP    = "ip"
	KindToken = "token"
	KindUser  = "user"
)

// Key uniquely identifies who is being rate-limited.
type Key string

// NewKey builds a tagged identity key.
func NewKey(kind, id string) Key {
	return Key(kind + ":" + id)
}

// Kind returns the key's kind tag, or "" for malformed keys.
func (k Key) Kind() string {
	kind, _, ok := strings.Cut(string(k), ":")
	if !ok {
		return ""
	}
	return kind
}

// ID returns the key's id portion.
func (k Key) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

// Principal describes an authenticated caller installed into the request
// context by the host's auth layer.
type Principal struct {
	Kind string // KindToken or KindUser
	ID   string
}

type principalCtxKey struct{}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom extracts the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok && p.ID != ""
}

// ResolveKey derives the identity key for a request. An authenticated API
// token wins over a user principal, which wins over the client IP. Proxy
// headers are consulted only when trustProxy is set; otherwise the
// transport-layer peer address is authoritative. The request is never
// mutated.
func ResolveKey(r *http.Request, trustProxy bool) Key {
	if p, ok := PrincipalFrom(r.Context()); ok {
		switch p.Kind {
		case KindToken:
			return NewKey(KindToken, p.ID)
		case KindUser:
			return NewKey(KindUser, p.ID)
		}
	}
	return NewKey(KindIP, clientIP(r, trustProxy))
}

// clientIP extracts the caller address, preferring trusted proxy headers in
// CDN-first order and falling back to the peer address.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
			return cf
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
