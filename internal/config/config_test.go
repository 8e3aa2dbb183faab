// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MessagesLimit != 50 {
		t.Errorf("MessagesLimit = %d, want 50", cfg.MessagesLimit)
	}
	if !cfg.Mouse {
		t.Error("Mouse = false, want true")
	}
	if cfg.Timestamps.Format != "3:04PM" {
		t.Errorf("Timestamps.Format = %q, want %q", cfg.Timestamps.Format, "3:04PM")
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mouse = false
messages_limit = 25

[timestamps]
enabled = false
format = "15:04"

[theme]
accent_color = "#ff0000"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mouse {
		t.Error("Mouse = true, want false")
	}
	if cfg.MessagesLimit != 25 {
		t.Errorf("MessagesLimit = %d, want 25", cfg.MessagesLimit)
	}
	if cfg.Timestamps.Format != "15:04" {
		t.Errorf("Timestamps.Format = %q, want %q", cfg.Timestamps.Format, "15:04")
	}
	if cfg.Theme.AccentColor != "#ff0000" {
		t.Errorf("Theme.AccentColor = %q, want %q", cfg.Theme.AccentColor, "#ff0000")
	}

	// Keys absent from the file keep their defaults.
	if !cfg.Markdown {
		t.Error("Markdown = false, want default true")
	}
	if cfg.AutocompleteLimit != 20 {
		t.Errorf("AutocompleteLimit = %d, want 20", cfg.AutocompleteLimit)
	}
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("messages_limit = 9000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MessagesLimit != 100 {
		t.Errorf("MessagesLimit = %d, want clamped 100", cfg.MessagesLimit)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("mouse = = true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}
