package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a gateway connection.
// Origins compare by lower-cased scheme and host; "*" admits any well-formed
// origin. A request without an Origin header is always refused.
type originPolicy struct {
	any     bool
	allowed map[string]bool
	log     *slog.Logger
}

func newOriginPolicy(origins []string, logger *slog.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]bool, len(origins)), log: logger}
	for _, raw := range origins {
		raw = strings.TrimSpace(raw)
		switch raw {
		case "":
			continue
		case "*":
			p.any = true
			continue
		}
		key, ok := originKey(raw)
		if !ok {
			logger.Warn("Ignoring invalid origin in configuration", "origin", raw)
			continue
		}
		p.allowed[key] = true
	}
	return p
}

// originKey reduces an origin to scheme://host, reporting false when either
// part is missing.
func originKey(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// checkOrigin is the websocket upgrader's CheckOrigin hook.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if key, ok := originKey(origin); ok && (p.any || p.allowed[key]) {
		return true
	}
	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin)
	return false
}
