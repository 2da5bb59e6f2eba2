package ratelimit

import (
	"fmt"
	"strings"
)

// Resolve picks the scope for a request. Authenticated callers are counted per
// user, anonymous ones per client address.
func Resolve(limit int, userID uint64, clientIP string) Decision {
	if limit <= 0 {
		return Decision{Scope: ScopeNone}
	}
	if userID != 0 {
		return Decision{Limit: limit, Scope: ScopeUser, UserID: userID}
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return Decision{Scope: ScopeNone}
	}
	return Decision{Limit: limit, Scope: ScopeClient, ClientIP: clientIP}
}

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(decision Decision) string {
	if decision.Limit <= 0 {
		return ""
	}
	switch decision.Scope {
	case ScopeUser:
		if decision.UserID == 0 {
			return ""
		}
		return fmt.Sprintf("u:%d", decision.UserID)
	case ScopeClient:
		if decision.ClientIP == "" {
			return ""
		}
		return "ip:" + decision.ClientIP
	default:
		return ""
	}
}
