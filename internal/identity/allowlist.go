package identity

import (
	"log/slog"
	"net/netip"
	"strings"
)

// Allowlist holds the identities that bypass rate limiting entirely. IP
// entries may be exact addresses or CIDR prefixes, in either address family.
// Read-only after construction.
type Allowlist struct {
	addrs    []netip.Addr
	prefixes []netip.Prefix
	tokens   map[string]struct{}
	users    map[string]struct{}

	ipEntries int
}

// NewAllowlist parses the configured entries. Malformed IP entries are logged
// and skipped rather than failing construction.
func NewAllowlist(ips, tokens, users []string) *Allowlist {
	a := &Allowlist{
		tokens: make(map[string]struct{}, len(tokens)),
		users:  make(map[string]struct{}, len(users)),
	}

	for _, entry := range ips {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				slog.Warn("skipping malformed allowlist CIDR entry", "entry", entry, "error", err)
				continue
			}
			a.prefixes = append(a.prefixes, prefix.Masked())
		} else {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				slog.Warn("skipping malformed allowlist IP entry", "entry", entry, "error", err)
				continue
			}
			a.addrs = append(a.addrs, addr.Unmap())
		}
		a.ipEntries++
	}

	for _, t := range tokens {
		if t != "" {
			a.tokens[t] = struct{}{}
		}
	}
	for _, u := range users {
		if u != "" {
			a.users[u] = struct{}{}
		}
	}

	return a
}

// Contains reports whether the identity bypasses rate limiting. Unrecognized
// key shapes never bypass.
func (a *Allowlist) Contains(key Key) bool {
	switch key.Kind() {
	case KindIP:
		return a.containsIP(key.ID())
	case KindToken:
		_, ok := a.tokens[key.ID()]
		return ok
	case KindUser:
		_, ok := a.users[key.ID()]
		return ok
	default:
		return false
	}
}

func (a *Allowlist) containsIP(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, allowed := range a.addrs {
		if allowed == addr {
			return true
		}
	}
	for _, prefix := range a.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Counts reports the number of live entries per category.
func (a *Allowlist) Counts() (ips, tokens, users int) {
	return a.ipEntries, len(a.tokens), len(a.users)
}
