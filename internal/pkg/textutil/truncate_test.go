package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "llm down", max: 500, want: "llm down"},
		{name: "exact", in: "abcd", max: 4, want: "abcd"},
		{name: "ascii", in: "abcdef", max: 4, want: "abcd"},
		{name: "two byte rune at boundary", in: "abcé", max: 4, want: "abc"},
		{name: "three byte rune at boundary", in: "ab€x", max: 4, want: "ab"},
		{name: "four byte rune at boundary", in: "a👗", max: 4, want: "a"},
		{name: "rune ends at boundary", in: "ab€x", max: 5, want: "ab€"},
		{name: "zero", in: "abc", max: 0, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Truncate(tc.in, tc.max)
			if got != tc.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("Truncate(%q, %d) produced invalid UTF-8", tc.in, tc.max)
			}
		})
	}
}

func TestTruncateLongProviderError(t *testing.T) {
	msg := "anthropic: 529 " + strings.Repeat("é", 600)
	got := Truncate(msg, 500)
	if len(got) > 500 || !utf8.ValidString(got) || !strings.HasPrefix(msg, got) {
		t.Fatalf("len=%d valid=%v", len(got), utf8.ValidString(got))
	}
}
