package telephony

import "strings"

// WebhookURL joins path onto serverURL for building the provider callback
// URLs threaded through CreateCallRequest (spec §6.5 SERVER_URL).
func WebhookURL(serverURL, path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

// StreamURL rewrites an http(s) serverURL into the ws(s) URL the Gateway
// embeds in its TwiML/NCCO Connect action (spec §6.4).
func StreamURL(serverURL string) string {
	base := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/outbound-media-stream"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/outbound-media-stream"
	default:
		return "wss://" + base + "/outbound-media-stream"
	}
}
