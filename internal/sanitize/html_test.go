package sanitize

import (
	"strings"
	"testing"
)

func TestText_RemovesAllHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "script tag",
			input:    `Hello <script>alert('xss')</script> World`,
			expected: `Hello  World`,
		},
		{
			name:     "error page markup",
			input:    `<html><head><title>503</title></head><body><h1>Service Unavailable</h1></body></html>`,
			expected: `503Service Unavailable`,
		},
		{
			name:     "mixed HTML tags",
			input:    `<b>Open</b> <i>format</i> <a href="http://example.com">details</a>`,
			expected: `Open format details`,
		},
		{
			name:     "plain text unchanged",
			input:    `Malformed duration_time`,
			expected: `Malformed duration_time`,
		},
		{
			name:     "empty string",
			input:    ``,
			expected: ``,
		},
		{
			name:     "image tag with onerror",
			input:    `<img src=x onerror="alert('xss')">`,
			expected: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestText_CommonXSSVectors(t *testing.T) {
	vectors := []struct {
		name  string
		input string
	}{
		{"Basic XSS", `<script>alert('XSS')</script>`},
		{"IMG onerror", `<img src=x onerror=alert('XSS')>`},
		{"SVG onload", `<svg onload=alert('XSS')>`},
		{"JavaScript protocol", `<a href="javascript:alert('XSS')">Click</a>`},
		{"Meta refresh", `<meta http-equiv="refresh" content="0;url=javascript:alert('XSS')">`},
		{"Object data", `<object data="javascript:alert('XSS')">`},
	}

	for _, v := range vectors {
		t.Run(v.name, func(t *testing.T) {
			result := Text(v.input)
			dangerous := []string{"alert", "javascript:", "<script"}
			for _, d := range dangerous {
				if strings.Contains(result, d) {
					t.Errorf("Text(%q) still contains dangerous content %q: %q", v.input, d, result)
				}
			}
		})
	}
}
