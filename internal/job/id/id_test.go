package id

import (
	"regexp"
	"testing"
)

var idPattern = regexp.MustCompile(`^([a-z]+)-\d+-[0-9a-f]{8}$`)

func TestGenerate(t *testing.T) {
	got := Generate()

	m := idPattern.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("unexpected ID format: %s", got)
	}
	if m[1] != DefaultPrefix {
		t.Errorf("expected prefix %q, got %q", DefaultPrefix, m[1])
	}
}

func TestWithPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"gif", "gif"},
		{"download", "download"},
		{"", DefaultPrefix},
	}
	for _, tt := range tests {
		got := WithPrefix(tt.prefix)
		m := idPattern.FindStringSubmatch(got)
		if m == nil {
			t.Errorf("unexpected ID format: %s", got)
			continue
		}
		if m[1] != tt.want {
			t.Errorf("WithPrefix(%q) prefix = %q, want %q", tt.prefix, m[1], tt.want)
		}
	}
}

func TestWithPrefix_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		got := WithPrefix("combine")
		if seen[got] {
			t.Errorf("duplicate ID generated: %s", got)
		}
		seen[got] = true
	}
}
