// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for concord.
//
// Configuration is read from <config dir>/config.toml; missing keys fall back
// to built-in defaults. The file is read once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/concord/internal/consts"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete concord configuration.
type Config struct {
	// Mouse enables mouse support in the TUI.
	Mouse bool `toml:"mouse"`
	// Markdown renders message content as markdown.
	Markdown bool `toml:"markdown"`
	// HideBlockedUsers hides messages from blocked users.
	HideBlockedUsers bool `toml:"hide_blocked_users"`
	// ShowAttachmentLinks appends attachment URLs below message content.
	ShowAttachmentLinks bool `toml:"show_attachment_links"`
	// MessagesLimit is how many messages to fetch per history page (1-100).
	MessagesLimit int `toml:"messages_limit"`
	// AutocompleteLimit caps mention-completion results.
	AutocompleteLimit int `toml:"autocomplete_limit"`
	// LogLevel controls the file logger ("debug", "info", "warn", "error").
	LogLevel string `toml:"log_level"`

	Timestamps TimestampsConfig `toml:"timestamps"`
	Theme      ThemeConfig      `toml:"theme"`
}

// TimestampsConfig controls message timestamp display.
type TimestampsConfig struct {
	Enabled bool `toml:"enabled"`
	// Format is a Go reference-time layout, e.g. "3:04PM".
	Format string `toml:"format"`
}

// ThemeConfig holds the color surface the UI consumes.
type ThemeConfig struct {
	// AccentColor is the highlight color for the focused pane border.
	AccentColor string `toml:"accent_color"`
	// MentionColor styles @-mentions inside messages.
	MentionColor string `toml:"mention_color"`
	// URLColor styles links inside messages.
	URLColor string `toml:"url_color"`
	// AttachmentColor styles attachment links.
	AttachmentColor string `toml:"attachment_color"`
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mouse:               true,
		Markdown:            true,
		HideBlockedUsers:    true,
		ShowAttachmentLinks: true,
		MessagesLimit:       50,
		AutocompleteLimit:   20,
		LogLevel:            "info",
		Timestamps: TimestampsConfig{
			Enabled: true,
			Format:  "3:04PM",
		},
		Theme: ThemeConfig{
			AccentColor:     "#5865f2",
			MentionColor:    "#00afff",
			URLColor:        "#00afff",
			AttachmentColor: "#ffd700",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := consts.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path, layering it over defaults. A missing
// file is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.validate()
	return cfg, nil
}

// validate clamps out-of-range values rather than rejecting the file.
func (c *Config) validate() {
	if c.MessagesLimit < 1 {
		c.MessagesLimit = 1
	}
	if c.MessagesLimit > 100 {
		c.MessagesLimit = 100
	}
	if c.AutocompleteLimit < 1 {
		c.AutocompleteLimit = 1
	}
	if c.Timestamps.Format == "" {
		c.Timestamps.Format = "3:04PM"
	}
	if c.Theme.AccentColor == "" {
		c.Theme.AccentColor = "#5865f2"
	}
}
