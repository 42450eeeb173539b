package auth

import (
	"net/http"
	"strings"
)

// RedactedValue replaces sensitive header and property values in logs.
const RedactedValue = "***"

// sensitiveHeaders are never written to logs or audit records verbatim.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"x-api-key":     true,
	"x-auth-token":  true,
}

// IsSensitiveHeader reports whether a header must be redacted.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[strings.ToLower(name)]
}

// SanitizeHeaders returns a flat copy of h with sensitive values replaced by
// RedactedValue. Multi-valued headers are joined with ", ".
func SanitizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if IsSensitiveHeader(name) {
			out[name] = RedactedValue
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// TruncateID shortens an identifier to at most 16 characters for audit
// records and log lines.
func TruncateID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
