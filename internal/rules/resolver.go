// Package rules maps request paths to the quota that governs them. Patterns
// are filesystem-style globs ('*' within a path segment, '**' across
// segments) evaluated in declaration order; the first match wins and
// unmatched paths fall back to the default quota. A second, independent
// pattern list marks paths the engine skips entirely.
package rules

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"gatekeeper/internal/models"
	"gatekeeper/internal/quota"
)

// DefaultRule is the index reported when no rule pattern matched.
const DefaultRule = -1

type compiledRule struct {
	pattern string
	matcher glob.Glob
	quota   quota.Quota
}

// Resolver is read-only after construction and safe for concurrent use.
type Resolver struct {
	rules        []compiledRule
	defaultQuota quota.Quota
	excludes     []glob.Glob
}

// NewResolver compiles the rule and exclusion patterns. A malformed pattern
// is a configuration error and fails construction.
func NewResolver(defaults quota.Quota, ruleCfgs []models.RuleConfig, exclude []string) (*Resolver, error) {
	r := &Resolver{defaultQuota: defaults}

	for i, rc := range ruleCfgs {
		g, err := glob.Compile(rc.Pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", i, rc.Pattern, err)
		}
		r.rules = append(r.rules, compiledRule{
			pattern: rc.Pattern,
			matcher: g,
			quota: quota.Quota{
				Limit:         rc.Limit,
				Window:        rc.Interval,
				BlockDuration: rc.BlockDuration,
			},
		})
	}

	for i, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude %d: invalid pattern %q: %w", i, pattern, err)
		}
		r.excludes = append(r.excludes, g)
	}

	return r, nil
}

// Resolve returns the quota governing path and the index of the matching
// rule, or DefaultRule when the default quota applies.
func (r *Resolver) Resolve(path string) (quota.Quota, int) {
	p := NormalizePath(path)
	for i, rule := range r.rules {
		if rule.matcher.Match(p) {
			return rule.quota, i
		}
	}
	return r.defaultQuota, DefaultRule
}

// IsExcluded reports whether path bypasses the engine entirely.
func (r *Resolver) IsExcluded(path string) bool {
	p := NormalizePath(path)
	for _, g := range r.excludes {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// RulesCount returns the number of configured rules.
func (r *Resolver) RulesCount() int {
	return len(r.rules)
}

// NormalizePath strips exactly one trailing slash so "/api/x" and "/api/x/"
// share a bucket. The root path is left untouched.
func NormalizePath(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}
