package logging

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameters whose values never reach the logs.
var sensitiveParams = []string{"key", "api_key", "apikey", "access_token", "token", "x-goog-api-key"}

// RedactURL returns endpoint with credential-bearing query values replaced by
// "REDACTED". Unparseable input is cut at the query separator instead.
func RedactURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		if i := strings.IndexByte(endpoint, '?'); i >= 0 {
			return endpoint[:i] + "?REDACTED"
		}
		return endpoint
	}
	if u.RawQuery == "" {
		return endpoint
	}
	q := u.Query()
	for name := range q {
		for _, s := range sensitiveParams {
			if strings.EqualFold(name, s) {
				q.Set(name, "REDACTED")
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TruncateString truncates s to maxLen bytes, appending "..." if truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// MaskSecret keeps the first few characters of a credential for correlation.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 5 {
		return "*****"
	}
	return secret[:5] + "..."
}
