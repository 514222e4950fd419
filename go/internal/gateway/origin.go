package gateway

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// OriginPolicy decides which browser origins may open a socket.
type OriginPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOriginPolicy accepts scheme://host origins; "*" allows every origin.
// Invalid entries are logged and skipped.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn().Str("origin", origin).Msg("ignoring invalid allowed origin")
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Check is a websocket.Upgrader CheckOrigin func. Requests without an Origin
// header come from non-browser clients and are allowed.
func (p *OriginPolicy) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}

	log.Warn().Str("origin", header).Msg("blocked websocket connection from disallowed origin")
	return false
}
