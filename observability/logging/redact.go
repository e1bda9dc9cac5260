package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked by Setup wherever they appear, even when the caller
// forgot MaskField.
var sensitiveKeys = map[string]struct{}{
	"authorization":   {},
	"hmac_secret":     {},
	"passphrase":      {},
	"private_key":     {},
	"secret":          {},
	"token":           {},
	"operator_secret": {},
}

var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"reason":     {},
	"component":  {},
	"player":     {},
	"route":      {},
	"status":     {},
	"request_id": {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction. Tests use this to ensure sensitive keys remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAuthorization keeps the scheme of an Authorization header and masks the
// credential.
func MaskAuthorization(header string) string {
	scheme, credential, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return MaskValue(header)
	}
	return scheme + " " + MaskValue(credential)
}

// redactAttr masks string values stored under sensitive keys.
func redactAttr(attr slog.Attr) slog.Attr {
	key := strings.ToLower(strings.TrimSpace(attr.Key))
	if _, ok := sensitiveKeys[key]; !ok || attr.Value.Kind() != slog.KindString {
		return attr
	}
	if key == "authorization" {
		return slog.String(attr.Key, MaskAuthorization(attr.Value.String()))
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
