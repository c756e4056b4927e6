package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// Key builds a limiter key from route and caller parts. Empty parts
// produce an empty key, which every limiter treats as "do not limit".
func Key(route, caller string) string {
	route = strings.TrimSpace(route)
	caller = strings.TrimSpace(caller)
	if route == "" || caller == "" {
		return ""
	}
	return route + ":" + caller
}
