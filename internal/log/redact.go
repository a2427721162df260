package log

import (
	"log/slog"
	"strings"
)

// Redacted replaces the value of any attribute named in RedactKeys.
const Redacted = "[redacted]"

// DefaultRedactKeys covers the secrets that pass through request handling.
// Matching is case-insensitive on the full key or its last dotted segment,
// so "http.request.header.cookie" matches "cookie".
var DefaultRedactKeys = []string{
	"authorization",
	"cookie",
	"set-cookie",
	"session_id",
	"session_key",
	"csrf_token",
	"x-xsrf-token",
	"x-csrf-token",
	"_csrf",
	"password",
	"redis_password",
}

func redactor(keys []string) func(groups []string, a slog.Attr) slog.Attr {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return func(_ []string, a slog.Attr) slog.Attr {
		if a.Value.Kind() == slog.KindGroup {
			return a
		}
		if _, ok := set[strings.ToLower(a.Key)]; ok {
			return slog.String(a.Key, Redacted)
		}
		if i := strings.LastIndexByte(a.Key, '.'); i >= 0 {
			if _, ok := set[strings.ToLower(a.Key[i+1:])]; ok {
				return slog.String(a.Key, Redacted)
			}
		}
		return a
	}
}
