// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"

	"github.com/morganforge/concord/internal/api"
	"github.com/morganforge/concord/internal/gateway"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user gateway.User
		want string
	}{
		{"prefers global name", gateway.User{Username: "alice", GlobalName: "Alice W"}, "Alice W"},
		{"falls back to username", gateway.User{Username: "alice"}, "alice"},
		{"empty user", gateway.User{}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(tt.user); got != tt.want {
				t.Errorf("displayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	m := testModel(t)
	m.cfg.Timestamps.Enabled = true
	m.cfg.Timestamps.Format = "15:04"

	if got := m.formatTimestamp("2026-03-01T14:30:00.000000+00:00"); got == "" {
		t.Error("formatTimestamp() = empty for a valid timestamp")
	}
	if got := m.formatTimestamp("not-a-time"); got != "" {
		t.Errorf("formatTimestamp(garbage) = %q, want empty", got)
	}

	m.cfg.Timestamps.Enabled = false
	if got := m.formatTimestamp("2026-03-01T14:30:00.000000+00:00"); got != "" {
		t.Errorf("formatTimestamp() = %q with timestamps disabled, want empty", got)
	}
}

func TestAuthorColorDefaultsForDMs(t *testing.T) {
	m := testModel(t)
	m.guildID = ""

	if got := m.authorColor("u1"); got != gateway.DefaultAccentColor {
		t.Errorf("authorColor() = %q, want %q", got, gateway.DefaultAccentColor)
	}
}

func TestRenderMessageIncludesAttachmentLinks(t *testing.T) {
	m := testModel(t)
	m.channelID = "c1"
	m.cfg.Markdown = false
	m.cfg.ShowAttachmentLinks = true

	msg := api.Message{
		ID:        "1",
		ChannelID: "c1",
		Author:    gateway.User{ID: "u1", Username: "alice"},
		Content:   "see file",
		Attachments: []api.Attachment{
			{Filename: "notes.txt", URL: "https://cdn.example/notes.txt"},
		},
	}

	out := m.renderMessage(&msg)
	if !strings.Contains(out, "notes.txt") {
		t.Errorf("rendered message missing attachment name:\n%s", out)
	}

	m.cfg.ShowAttachmentLinks = false
	out = m.renderMessage(&msg)
	if strings.Contains(out, "notes.txt") {
		t.Errorf("attachment rendered despite show_attachment_links=false:\n%s", out)
	}
}

func TestRenderMessageMarksEdits(t *testing.T) {
	m := testModel(t)
	m.channelID = "c1"
	m.cfg.Markdown = false

	msg := api.Message{
		ID:              "1",
		ChannelID:       "c1",
		Author:          gateway.User{ID: "u1", Username: "alice"},
		Content:         "fixed",
		EditedTimestamp: "2026-03-01T14:31:00+00:00",
	}

	if out := m.renderMessage(&msg); !strings.Contains(out, "(edited)") {
		t.Errorf("rendered message missing edit marker:\n%s", out)
	}
}

func TestFirstLineTruncatesMultiline(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one…" {
		t.Errorf("firstLine() = %q, want %q", got, "one…")
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine() = %q, want %q", got, "single")
	}
}
