// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/morganforge/concord/internal/gateway"
)

const (
	sidebarWidth   = 26
	statusBarLines = 1
	inputLines     = 3
)

// =============================================================================
// SIDEBAR TREE
// =============================================================================

// rebuildNodes regenerates the sidebar rows from the state replica, the DM
// list and the favorites set. Favorites float to a section of their own.
func (m *Model) rebuildNodes() {
	var selected string
	if m.cursor < len(m.nodes) {
		selected = m.nodes[m.cursor].channelID + "/" + m.nodes[m.cursor].guildID
	}

	cab := m.session.Cabinet()
	nodes := []node{}

	var favs, rest []node
	for _, g := range cab.Guilds() {
		n := node{kind: nodeGuild, label: g.Name, guildID: g.ID}
		if m.favorites[g.ID] {
			favs = append(favs, n)
		} else {
			rest = append(rest, n)
		}
	}
	for _, dm := range m.dms {
		n := node{kind: nodeDM, label: dm.Name(), channelID: dm.ID}
		if m.favorites[dm.ID] {
			favs = append(favs, n)
		} else {
			rest = append(rest, n)
		}
	}

	appendGuildChannels := func(out []node, g node) []node {
		out = append(out, g)
		if g.kind == nodeGuild && m.expanded[g.guildID] {
			for _, ch := range m.guildChannels(g.guildID) {
				out = append(out, node{
					kind:      nodeChannel,
					label:     "#" + ch.Name,
					channelID: ch.ID,
					guildID:   g.guildID,
				})
			}
		}
		return out
	}

	if len(favs) > 0 {
		nodes = append(nodes, node{kind: nodeHeader, label: "FAVORITES"})
		for _, n := range favs {
			nodes = appendGuildChannels(nodes, n)
		}
	}
	nodes = append(nodes, node{kind: nodeHeader, label: "SERVERS"})
	for _, n := range rest {
		if n.kind == nodeGuild {
			nodes = appendGuildChannels(nodes, n)
		}
	}
	nodes = append(nodes, node{kind: nodeHeader, label: "DIRECT MESSAGES"})
	for _, n := range rest {
		if n.kind == nodeDM {
			nodes = append(nodes, n)
		}
	}

	m.nodes = nodes

	// Keep the cursor on the row it was on, or the first selectable row.
	m.cursor = 0
	for i, n := range nodes {
		if n.kind == nodeHeader {
			continue
		}
		if selected != "" && n.channelID+"/"+n.guildID == selected {
			m.cursor = i
			return
		}
		if m.cursor == 0 {
			m.cursor = i
		}
	}
}

// guildChannels returns the channel list for one guild, preferring the live
// replica over a REST-fetched fallback.
func (m *Model) guildChannels(guildID string) []gateway.Channel {
	if chs := m.session.Cabinet().GuildChannels(guildID); len(chs) > 0 {
		return chs
	}
	return m.fetchedChannels[guildID]
}

// =============================================================================
// LAYOUT AND RENDERING
// =============================================================================

// layout resizes the components for the current terminal dimensions.
func (m *Model) layout() {
	mainWidth := m.width - sidebarWidth - 4
	if mainWidth < 20 {
		mainWidth = 20
	}
	bodyHeight := m.height - statusBarLines - inputLines - 4
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	m.viewport.Width = mainWidth
	m.viewport.Height = bodyHeight
	m.input.SetWidth(mainWidth)
}

// refreshViewport re-renders the open channel into the viewport. When follow
// is set the view snaps to the newest message.
func (m *Model) refreshViewport(follow bool) {
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}

// View renders the full frame.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	sidebar := m.renderSidebar()
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.theme.InputBox.Width(m.viewport.Width).Render(m.input.View()),
	)

	sideStyle := m.theme.Sidebar
	mainStyle := m.theme.Main
	if m.focus == focusSidebar {
		sideStyle = m.theme.SidebarFocused
	} else {
		mainStyle = m.theme.MainFocused
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		sideStyle.Width(sidebarWidth).Render(sidebar),
		mainStyle.Render(main),
	)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatusBar())
}

func (m Model) renderSidebar() string {
	height := m.height - statusBarLines - 2
	if height < 1 {
		height = 1
	}

	// Scroll the tree so the cursor stays visible.
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}

	var b strings.Builder
	for i := start; i < len(m.nodes) && i-start < height; i++ {
		n := m.nodes[i]
		label := runewidth.Truncate(n.label, sidebarWidth-2, "…")

		var line string
		switch {
		case n.kind == nodeHeader:
			line = m.theme.TreeHeader.Render(label)
		case i == m.cursor && m.focus == focusSidebar:
			line = m.theme.TreeSelected.Render("> " + label)
		case n.kind == nodeChannel:
			line = m.theme.TreeItem.Render("  " + label)
		default:
			style := m.theme.TreeItem
			if m.favorites[n.guildID] || m.favorites[n.channelID] {
				style = m.theme.TreeFavorite
			}
			line = style.Render("  " + label)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	left := m.status
	if m.lastErr != nil {
		left = m.theme.StatusErr.Render(left)
	} else {
		left = m.theme.StatusInfo.Render(left)
	}

	help := m.theme.StatusBar.Render("tab: switch  enter: open/send  f: pin  pgup: older  ctrl+c: quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + help
}
