package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxAuditFieldLen = 500

// SanitizeAuditField strips control characters (including newlines) from a
// value before it is written into an audit record, so a crafted note or name
// cannot fake additional history lines or corrupt log output. The result is
// trimmed and clamped to a fixed length.
func SanitizeAuditField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxAuditFieldLen {
		// Clamp on a rune boundary so a multi-byte character straddling the
		// cut cannot leave invalid UTF-8 in the stored value.
		cut := maxAuditFieldLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// ContainsSuspicious reports whether a value looks like an injection attempt.
// Used to flag security events, not to reject input outright.
func ContainsSuspicious(s string) bool {
	lowered := strings.ToLower(s)
	for _, pattern := range []string{"<script", "onerror", "onload", "${", "`"} {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
