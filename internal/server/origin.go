package server

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// OriginChecker accepts websocket upgrades from the configured origins. An
// empty list accepts any origin; requests without an Origin header are
// accepted too since they do not come from a browser.
type OriginChecker struct {
	allowedOrigins []string
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	normalized := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin != "" {
			normalized = append(normalized, origin)
		}
	}

	return &OriginChecker{
		allowedOrigins: normalized,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	if len(c.allowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	return slices.Contains(c.allowedOrigins, strings.ToLower(u.Scheme+"://"+u.Host)) ||
		slices.Contains(c.allowedOrigins, "*")
}
