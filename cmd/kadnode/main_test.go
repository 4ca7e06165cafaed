package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ddcm-project/kadnode/dht"
)

func TestRun_Version(t *testing.T) {
	if code := run([]string{"-version"}); code != 0 {
		t.Fatalf("got exit code %d, want 0", code)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if code := run([]string{"-bogus-flag"}); code != 2 {
		t.Fatalf("got exit code %d, want 2", code)
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	code := run([]string{"-config", filepath.Join(t.TempDir(), "does-not-exist.toml")})
	if code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRun_InvalidConfigValues(t *testing.T) {
	// port out of range, caught by Config.Validate after flag parsing.
	code := run([]string{"-port", "99999"})
	if code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRun_InvalidHost(t *testing.T) {
	code := run([]string{"-host", "not-an-ip"})
	if code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRun_InvalidBootstrapPeer(t *testing.T) {
	code := run([]string{"-port", "0", "-bootstrap", "garbage"})
	if code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRun_ConfigFileOverridesFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kadnode.toml")
	contents := "[server]\nport = 70000\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// -port 30300 would be valid alone, but -config should fully replace cfg
	// with the file's (invalid) contents, so Validate should still reject it.
	code := run([]string{"-config", path, "-port", "30300"})
	if code != 1 {
		t.Fatalf("got exit code %d, want 1 (config file must take precedence)", code)
	}
}

func TestParseBootstrap_Valid(t *testing.T) {
	id := "00000000000000000000000000000000000000ff"
	node, err := parseBootstrap(id + "@127.0.0.1:30301")
	if err != nil {
		t.Fatalf("parseBootstrap: %v", err)
	}
	if node.ID.String() != id {
		t.Fatalf("got id %s, want %s", node.ID.String(), id)
	}
	if node.Remote.Port != 30301 {
		t.Fatalf("got port %d, want 30301", node.Remote.Port)
	}
}

func TestParseBootstrap_MissingAt(t *testing.T) {
	if _, err := parseBootstrap("127.0.0.1:30301"); err == nil {
		t.Fatal("expected an error for a missing @ separator")
	}
}

func TestParseBootstrap_BadID(t *testing.T) {
	if _, err := parseBootstrap("not-hex@127.0.0.1:30301"); err == nil {
		t.Fatal("expected an error for a malformed id")
	}
}

func TestParseBootstrap_BadHost(t *testing.T) {
	id := "00000000000000000000000000000000000000ff"
	if _, err := parseBootstrap(id + "@not-an-ip:30301"); err == nil {
		t.Fatal("expected an error for a malformed host")
	}
}

func TestParseBootstrap_BadPort(t *testing.T) {
	id := "00000000000000000000000000000000000000ff"
	if _, err := parseBootstrap(id + "@127.0.0.1:notaport"); err == nil {
		t.Fatal("expected an error for a malformed port")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := slogLevel(in); got != want {
			t.Errorf("slogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// sanity check that parseBootstrap's ID type matches what dht.ParseIdentifier
// produces, guarding against a silent type drift between the two packages.
func TestParseBootstrap_IDMatchesDHTParser(t *testing.T) {
	id := "0000000000000000000000000000000000000001"
	want, err := dht.ParseIdentifier(id)
	if err != nil {
		t.Fatalf("dht.ParseIdentifier: %v", err)
	}
	node, err := parseBootstrap(id + "@127.0.0.1:1")
	if err != nil {
		t.Fatalf("parseBootstrap: %v", err)
	}
	if node.ID != want {
		t.Fatalf("got %v, want %v", node.ID, want)
	}
}
