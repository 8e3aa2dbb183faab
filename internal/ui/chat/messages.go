// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/morganforge/concord/internal/api"
	"github.com/morganforge/concord/internal/gateway"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

// renderMessages formats the open channel's history for the viewport.
func (m *Model) renderMessages() string {
	if m.channelID == "" {
		return "Select a channel to start chatting."
	}

	var b strings.Builder
	// TODO: skip senders the account has blocked once relationship data is
	// synced from the Ready payload (config.HideBlockedUsers).
	for i := range m.messages {
		b.WriteString(m.renderMessage(&m.messages[i]))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderMessage formats one message: reply bar, header line with colored
// author name and timestamp, then the body and attachment links.
func (m *Model) renderMessage(msg *api.Message) string {
	var b strings.Builder

	if ref := msg.ReferencedMsg; ref != nil {
		b.WriteString(m.theme.ReplyBar.Render("╭─ " + displayName(ref.Author) + ": " + firstLine(ref.Content)))
		b.WriteByte('\n')
	}

	author := m.theme.Author(m.authorColor(msg.Author.ID)).Render(displayName(msg.Author))
	b.WriteString(author)
	if ts := m.formatTimestamp(msg.Timestamp); ts != "" {
		b.WriteString(" " + m.theme.Timestamp.Render(ts))
	}
	if msg.EditedTimestamp != "" {
		b.WriteString(" " + m.theme.Edited.Render("(edited)"))
	}
	b.WriteByte('\n')

	b.WriteString(m.renderContent(msg.Content))

	if m.cfg.ShowAttachmentLinks {
		for _, a := range msg.Attachments {
			b.WriteByte('\n')
			b.WriteString(m.theme.Attachment.Render("↳ " + a.Filename + " " + a.URL))
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// authorColor resolves the display color for a sender: the highest colored
// role in guild channels, the accent color in DMs or for unknown members.
func (m *Model) authorColor(userID string) string {
	if m.guildID == "" {
		return gateway.DefaultAccentColor
	}
	return m.session.Cabinet().MemberColor(m.guildID, userID)
}

func (m *Model) renderContent(content string) string {
	if content == "" {
		return ""
	}
	if m.cfg.Markdown {
		if out, err := m.renderMarkdown(content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return highlightURLs(content, m)
}

// renderMarkdown renders through a cached glamour renderer, rebuilt only
// when the pane width changes.
func (m *Model) renderMarkdown(content string) (string, error) {
	if m.markdown == nil || m.markdownWidth != m.viewport.Width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.viewport.Width),
		)
		if err != nil {
			return "", err
		}
		m.markdown = r
		m.markdownWidth = m.viewport.Width
	}
	return m.markdown.Render(content)
}

// completeMention expands a trailing @prefix in the input into the first
// matching member name. Candidates come from the guild's member replica,
// capped by the autocomplete limit.
func (m *Model) completeMention() bool {
	value := m.input.Value()
	at := strings.LastIndexByte(value, '@')
	if at < 0 || m.guildID == "" {
		return false
	}
	prefix := strings.ToLower(value[at+1:])
	if strings.ContainsAny(prefix, " \n") {
		return false
	}

	limit := m.cfg.AutocompleteLimit
	var candidates []string
	for _, member := range m.session.Cabinet().Members(m.guildID) {
		name := member.Nick
		if name == "" && member.User != nil {
			name = displayName(*member.User)
		}
		if name == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			candidates = append(candidates, name)
			if limit > 0 && len(candidates) >= limit {
				break
			}
		}
	}
	if len(candidates) == 0 {
		return false
	}
	sort.Strings(candidates)
	m.input.SetValue(value[:at+1] + candidates[0] + " ")
	m.input.CursorEnd()
	return true
}

func highlightURLs(content string, m *Model) string {
	return urlPattern.ReplaceAllStringFunc(content, func(u string) string {
		return m.theme.URL.Render(u)
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// displayName prefers the display name over the unique username.
func displayName(u gateway.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	if u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// formatTimestamp renders an RFC 3339 server timestamp in the configured
// layout, in local time. Returns empty when timestamps are disabled or the
// value does not parse.
func (m *Model) formatTimestamp(ts string) string {
	if !m.cfg.Timestamps.Enabled || ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	return t.Local().Format(m.cfg.Timestamps.Format)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "…"
	}
	return s
}
