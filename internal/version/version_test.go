package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = "0123456789abcdef"
	got := String()
	if !strings.Contains(got, "commit: 0123456") || strings.Contains(got, "89abcdef") {
		t.Errorf("String() = %q, want short commit", got)
	}
	if UserAgent() != "evoloop/0123456" {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
