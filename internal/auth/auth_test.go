// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"os"
	"testing"
)

func TestTokenFromEnvironment(t *testing.T) {
	t.Setenv(EnvVar, "  env-token\n")

	tok, err := Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "env-token" {
		t.Errorf("Token() = %q, want %q", tok, "env-token")
	}
}

func TestTokenFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(EnvVar, "")

	path, err := TokenPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tok, terr := Token()
	if terr != nil {
		t.Fatalf("Token() error = %v", terr)
	}
	if tok != "file-token" {
		t.Errorf("Token() = %q, want %q", tok, "file-token")
	}
}

func TestTokenMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(EnvVar, "")

	if _, err := Token(); err != ErrNoToken {
		t.Errorf("Token() error = %v, want ErrNoToken", err)
	}
}

func TestSaveRestrictsPermissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	if err := Save("saved-token"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path, err := TokenPath()
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	tok, err := Token()
	if err != nil {
		t.Fatalf("Token() after Save error = %v", err)
	}
	if tok != "saved-token" {
		t.Errorf("Token() = %q, want %q", tok, "saved-token")
	}
}
