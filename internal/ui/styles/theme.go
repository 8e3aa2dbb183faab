// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the concord TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/concord/internal/config"
)

// Theme holds the styled components for the application, derived from the
// user's color configuration.
type Theme struct {
	Accent lipgloss.Color

	// ==========================================================================
	// PANE STYLES
	// ==========================================================================

	Sidebar        lipgloss.Style
	SidebarFocused lipgloss.Style
	Main           lipgloss.Style
	MainFocused    lipgloss.Style

	// ==========================================================================
	// SIDEBAR TREE STYLES
	// ==========================================================================

	TreeHeader   lipgloss.Style
	TreeItem     lipgloss.Style
	TreeSelected lipgloss.Style
	TreeFavorite lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	Timestamp  lipgloss.Style
	Mention    lipgloss.Style
	URL        lipgloss.Style
	Attachment lipgloss.Style
	Edited     lipgloss.Style
	ReplyBar   lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS STYLES
	// ==========================================================================

	InputBox   lipgloss.Style
	StatusBar  lipgloss.Style
	StatusKey  lipgloss.Style
	StatusInfo lipgloss.Style
	StatusErr  lipgloss.Style
}

// Author returns the style for a message author name in the given color.
// The color comes from the sender's highest colored role, or the accent
// color when none applies.
func (t *Theme) Author(color string) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
}

// New builds a theme from the configured colors.
func New(cfg config.ThemeConfig) *Theme {
	accent := lipgloss.Color(cfg.AccentColor)
	dim := lipgloss.Color("245")
	border := lipgloss.RoundedBorder()

	return &Theme{
		Accent: accent,

		Sidebar:        lipgloss.NewStyle().Border(border).BorderForeground(dim),
		SidebarFocused: lipgloss.NewStyle().Border(border).BorderForeground(accent),
		Main:           lipgloss.NewStyle().Border(border).BorderForeground(dim),
		MainFocused:    lipgloss.NewStyle().Border(border).BorderForeground(accent),

		TreeHeader:   lipgloss.NewStyle().Bold(true).Foreground(dim),
		TreeItem:     lipgloss.NewStyle(),
		TreeSelected: lipgloss.NewStyle().Bold(true).Foreground(accent),
		TreeFavorite: lipgloss.NewStyle().Foreground(accent),

		Timestamp:  lipgloss.NewStyle().Foreground(dim),
		Mention:    lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.MentionColor)),
		URL:        lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.URLColor)).Underline(true),
		Attachment: lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.AttachmentColor)),
		Edited:     lipgloss.NewStyle().Foreground(dim).Italic(true),
		ReplyBar:   lipgloss.NewStyle().Foreground(dim),

		InputBox:   lipgloss.NewStyle().Border(border).BorderForeground(dim),
		StatusBar:  lipgloss.NewStyle().Foreground(dim),
		StatusKey:  lipgloss.NewStyle().Bold(true),
		StatusInfo: lipgloss.NewStyle().Foreground(accent),
		StatusErr:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}
