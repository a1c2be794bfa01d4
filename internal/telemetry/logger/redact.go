package logger

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// payloadKeys carry clipboard data. They are summarized, never logged.
var payloadKeys = map[string]bool{
	"data":         true,
	"text_preview": true,
	"payload":      true,
	"body":         true,
}

// Sensitive key patterns that should be fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"private_key",
	"credential",
	"authorization",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// payloadPrefix is how many characters of a payload survive in logs.
const payloadPrefix = 8

// redact applies payload summarization and credential redaction.
func redact(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		key := strings.ToLower(a.Key)
		if payloadKeys[key] {
			return slog.String(a.Key, summarize(v))
		}
		if isSensitiveKey(key) {
			return slog.String(a.Key, redactedValue)
		}

	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redact(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

func isSensitiveKey(key string) bool {
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// summarize keeps a short prefix of v and its byte length.
func summarize(v string) string {
	if utf8.RuneCountInString(v) <= payloadPrefix {
		return fmt.Sprintf("%q (%d bytes)", v, len(v))
	}
	n := 0
	for i := range v {
		if n == payloadPrefix {
			return fmt.Sprintf("%q... (%d bytes)", v[:i], len(v))
		}
		n++
	}
	return fmt.Sprintf("%q (%d bytes)", v, len(v))
}
