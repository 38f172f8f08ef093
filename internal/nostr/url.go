package nostr

import (
	"net/url"
	"strings"

	"nostr-feed/internal/util"
)

// NormalizeRelayURL validates and normalizes a relay endpoint.
// Returns empty string if URL is invalid/malformed
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick reject for obviously bad URLs (no colon = no protocol)
	if !strings.Contains(relayURL, "://") {
		return ""
	}

	// Reject URL-encoded spaces (indicates garbage text as URL)
	if strings.Contains(relayURL, "%20") || strings.Contains(relayURL, "+") {
		return ""
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	// Must be ws:// or wss:// (not ww://, http://, etc)
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return ""
	}

	host := parsed.Hostname()
	if host == "" || strings.Contains(host, " ") {
		return ""
	}
	if !strings.Contains(host, ".") && !util.IsLoopbackHost(host) {
		return ""
	}
	if util.IsInternalHost(host) {
		return ""
	}

	// Normalize: strip trailing slash, lowercase
	result := scheme + "://" + strings.ToLower(host)
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += parsed.Path
	}
	return result
}
