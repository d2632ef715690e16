package version

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q want %q", got, "abc")
	}
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q want %q", got, "0123456789ab")
	}
}

func TestResolve(t *testing.T) {
	info := Resolve()
	if info.Version == "" {
		t.Fatal("empty version")
	}

	Version, Commit = "v1.2.3", "0123456789abcdef"
	defer func() { Version, Commit = "", "" }()

	if got := String(); got != "v1.2.3 (0123456789ab)" {
		t.Fatalf("got %q", got)
	}
	if !strings.HasPrefix(Resolve().Version, "v1") {
		t.Fatalf("ldflags version ignored: %+v", Resolve())
	}
}
