package ratelimit

import (
	"context"
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

// Scope indicates which caller identity the limit is counted against.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeUser counts requests per authenticated user.
	ScopeUser
	// ScopeClient counts anonymous requests per client address.
	ScopeClient
)

// Decision describes the resolved rate limit and scope.
type Decision struct {
	Limit    int
	Scope    Scope
	UserID   uint64
	ClientIP string
}

func (s Scope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeClient:
		return "client"
	default:
		return "none"
	}
}
