package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in logs.
const RedactedValue = "[REDACTED]"

var allowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"component": {},
	"error":     {},
	"reason":    {},
	"asset":     {},
	"user":      {},
	"caller":    {},
	"action":    {},
	"route":     {},
}

var sensitiveFragments = []string{"token", "secret", "password", "authorization", "dsn"}

// IsAllowlisted reports whether key may be logged verbatim by MaskField.
func IsAllowlisted(key string) bool {
	_, ok := allowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// IsSensitive reports whether key names a credential. Such attributes are
// masked by every handler built in this package.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskValue returns RedactedValue for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField redacts value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
