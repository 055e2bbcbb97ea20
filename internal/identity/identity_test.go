package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyKindAndID(t *testing.T) {
	k := NewKey(KindIP, "203.0.113.7")
	assert.Equal(t, Key("ip:203.0.113.7"), k)
	assert.Equal(t, KindIP, k.Kind())
	assert.Equal(t, "203.0.113.7", k.ID())

	// IPv6 ids contain colons; only the first separates the kind
	k = NewKey(KindIP, "2001:db8::1")
	assert.Equal(t, KindIP, k.Kind())
	assert.Equal(t, "2001:db8::1", k.ID())

	assert.Equal(t, "", Key("malformed").Kind())
}

func TestResolveKeyPriority(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/articles", nil)
	r.RemoteAddr = "198.51.100.4:52011"

	// No principal: key falls back to the client IP
	assert.Equal(t, Key("ip:198.51.100.4"), ResolveKey(r, false))

	// User principal beats IP
	userReq := r.WithContext(WithPrincipal(r.Context(), Principal{Kind: KindUser, ID: "42"}))
	assert.Equal(t, Key("user:42"), ResolveKey(userReq, false))

	// Token principal beats user and IP
	tokenReq := r.WithContext(WithPrincipal(r.Context(), Principal{Kind: KindToken, ID: "abc123"}))
	assert.Equal(t, Key("token:abc123"), ResolveKey(tokenReq, false))
}

func TestResolveKeyUnknownPrincipalKind(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.4:52011"
	r = r.WithContext(WithPrincipal(r.Context(), Principal{Kind: "service", ID: "x"}))

	assert.Equal(t, Key("ip:198.51.100.4"), ResolveKey(r, false))
}

func TestClientIPProxyHeaders(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "cf-connecting-ip wins",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "192.0.2.1"},
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "xff first hop",
			headers:    map[string]string{"X-Forwarded-For": "192.0.2.1, 10.0.0.2, 10.0.0.3"},
			trustProxy: true,
			want:       "192.0.2.1",
		},
		{
			name:       "x-real-ip fallback",
			headers:    map[string]string{"X-Real-IP": "192.0.2.8"},
			trustProxy: true,
			want:       "192.0.2.8",
		},
		{
			name:       "headers ignored without trust",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "192.0.2.1"},
			trustProxy: false,
			want:       "198.51.100.4",
		},
		{
			name:       "no headers",
			trustProxy: true,
			want:       "198.51.100.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "198.51.100.4:52011"
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, NewKey(KindIP, tt.want), ResolveKey(r, tt.trustProxy))
		})
	}
}

func TestClientIPNoPort(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.4"
	assert.Equal(t, Key("ip:198.51.100.4"), ResolveKey(r, false))
}
