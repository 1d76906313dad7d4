package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	got, err := Load(Source{Name: "bizinfo key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file secret, got %q", got)
	}
}

func TestLoadFallsBackToValueThenEnv(t *testing.T) {
	t.Setenv("GRANTFIT_TEST_SECRET", " env-value ")

	got, err := Load(Source{Name: "key", Value: " inline ", Env: "GRANTFIT_TEST_SECRET"})
	if err != nil || got != "inline" {
		t.Fatalf("expected inline value, got %q (%v)", got, err)
	}

	got, err = Load(Source{Name: "key", Env: "GRANTFIT_TEST_SECRET"})
	if err != nil || got != "env-value" {
		t.Fatalf("expected env value, got %q (%v)", got, err)
	}
}

func TestLoadMissingSecret(t *testing.T) {
	_, err := Load(Source{Name: "gemini api key"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "gemini api key") {
		t.Fatalf("expected secret name in error, got %q", err.Error())
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	_, err := Load(Source{Name: "key", File: path})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for empty file, got %v", err)
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	_, err := Load(Source{Name: "key", File: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unreadable file must not look like a missing secret: %v", err)
	}
}
