// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the main TUI: a sidebar tree of guilds and direct
// messages next to a message pane with an input box.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/morganforge/concord/internal/api"
	"github.com/morganforge/concord/internal/config"
	"github.com/morganforge/concord/internal/gateway"
	"github.com/morganforge/concord/internal/store"
	"github.com/morganforge/concord/internal/ui/styles"
)

// =============================================================================
// FOCUS AND SIDEBAR TREE
// =============================================================================

// focusArea identifies which pane receives key input.
type focusArea int

const (
	focusSidebar focusArea = iota
	focusInput
)

// nodeKind distinguishes sidebar rows.
type nodeKind int

const (
	nodeHeader nodeKind = iota // Non-selectable section label
	nodeGuild                  // Guild row, toggles expansion
	nodeChannel                // Text channel inside an expanded guild
	nodeDM                     // Direct-message channel
)

// node is one row of the sidebar tree.
type node struct {
	kind      nodeKind
	label     string
	channelID string // Set for nodeChannel and nodeDM
	guildID   string // Set for nodeGuild and nodeChannel
}

// =============================================================================
// KEY BINDINGS
// =============================================================================

// KeyMap holds the keyboard shortcuts.
type KeyMap struct {
	FocusNext key.Binding
	Up        key.Binding
	Down      key.Binding
	Select    key.Binding
	Favorite  key.Binding
	OlderPage key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default shortcuts.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		FocusNext: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up", "move up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down", "move down")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open / send")),
		Favorite:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "pin favorite")),
		OlderPage: key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "older messages")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

type stateChangedMsg struct{}

type sessionClosedMsg struct{ err error }

type gatewayMessageMsg struct{ ev gateway.MessageEvent }

type dmsLoadedMsg struct{ dms []api.DMChannel }

type channelsMsg struct {
	guildID  string
	channels []gateway.Channel
}

type historyMsg struct {
	channelID string
	messages  []api.Message
	cached    bool
	prepend   bool
}

type sentMsg struct{ message *api.Message }

type errMsg struct{ err error }

// =============================================================================
// MODEL
// =============================================================================

// Deps carries the long-lived collaborators the model renders from.
type Deps struct {
	Config  *config.Config
	Theme   *styles.Theme
	Session *gateway.Session
	Client  *api.Client
	Store   *store.Store
	Logger  *zap.Logger
}

// Model is the Bubble Tea model for the client.
type Model struct {
	cfg     *config.Config
	theme   *styles.Theme
	session *gateway.Session
	client  *api.Client
	store   *store.Store
	log     *zap.Logger

	width  int
	height int
	focus  focusArea
	keys   KeyMap

	// Sidebar
	nodes     []node
	cursor    int
	expanded  map[string]bool
	favorites map[string]bool
	dms       []api.DMChannel

	// Channel lists fetched over REST for guilds whose bulk payload omitted
	// them. The replica wins when it has any.
	fetchedChannels map[string][]gateway.Channel

	// Active channel
	channelID   string
	channelName string
	guildID     string // Empty for DMs
	messages    []api.Message

	// Components
	viewport viewport.Model
	input    textarea.Model

	markdown      *glamour.TermRenderer
	markdownWidth int

	lastTyping time.Time

	status  string
	lastErr error
}

// New creates the model. Call Init through the Bubble Tea program.
func New(deps Deps) Model {
	ta := textarea.New()
	ta.Placeholder = "Message..."
	ta.CharLimit = 2000
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := Model{
		cfg:       deps.Config,
		theme:     deps.Theme,
		session:   deps.Session,
		client:    deps.Client,
		store:     deps.Store,
		log:       log,
		keys:      DefaultKeyMap(),
		expanded:  make(map[string]bool),
		favorites: make(map[string]bool),

		fetchedChannels: make(map[string][]gateway.Channel),

		viewport: vp,
		input:    ta,
		status:   "connecting",
	}

	if favs, err := deps.Store.Favorites(); err == nil {
		m.favorites = favs
	}
	m.rebuildNodes()
	return m
}

// Init starts the watcher commands feeding gateway activity into the UI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.watchState(),
		m.watchMessages(),
		m.watchDone(),
		m.loadDMs(),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

// watchState re-arms on every Cabinet change signal. Signals are coalesced
// by the Cabinet, so a burst of events costs one rebuild.
func (m Model) watchState() tea.Cmd {
	changed := m.session.Cabinet().Changed()
	done := m.session.Done()
	return func() tea.Msg {
		select {
		case <-changed:
			return stateChangedMsg{}
		case <-done:
			return nil
		}
	}
}

func (m Model) watchMessages() tea.Cmd {
	events := m.session.MessageEvents()
	done := m.session.Done()
	return func() tea.Msg {
		select {
		case ev := <-events:
			return gatewayMessageMsg{ev: ev}
		case <-done:
			return nil
		}
	}
}

func (m Model) watchDone() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		<-s.Done()
		return sessionClosedMsg{err: s.Err()}
	}
}

func (m Model) loadDMs() tea.Cmd {
	client, st := m.client, m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		dms, err := client.DMChannels(ctx)
		if err != nil {
			if cached, cerr := st.DMs(); cerr == nil && len(cached) > 0 {
				return dmsLoadedMsg{dms: cached}
			}
			return errMsg{err: err}
		}
		st.SaveDMs(dms)
		return dmsLoadedMsg{dms: dms}
	}
}

// fetchGuildChannels loads a guild's channel list over REST when the bulk
// guild payload omitted it. The cached list answers when the fetch fails.
func (m Model) fetchGuildChannels(guildID string) tea.Cmd {
	client, st := m.client, m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		channels, err := client.GuildChannels(ctx, guildID)
		if err != nil {
			if cached, cerr := st.Channels(guildID); cerr == nil && len(cached) > 0 {
				return channelsMsg{guildID: guildID, channels: cached}
			}
			return errMsg{err: err}
		}
		st.SaveChannels(guildID, channels)
		return channelsMsg{guildID: guildID, channels: channels}
	}
}

// persistGuilds snapshots the replica's guild list so the next launch can
// render before the gateway reaches Ready.
func (m Model) persistGuilds() tea.Cmd {
	st, cab := m.store, m.session.Cabinet()
	return func() tea.Msg {
		if guilds := cab.Guilds(); len(guilds) > 0 {
			st.SaveGuilds(guilds)
		}
		return nil
	}
}

// openChannel loads history for a channel: the cached page immediately, then
// the live fetch replaces it.
func (m Model) openChannel(channelID, guildID string) tea.Cmd {
	client, st, session := m.client, m.store, m.session
	limit := m.cfg.MessagesLimit

	cached := func() tea.Msg {
		msgs, err := st.Messages(channelID, limit)
		if err != nil || len(msgs) == 0 {
			return nil
		}
		return historyMsg{channelID: channelID, messages: msgs, cached: true}
	}

	live := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Member colors need the roster; bounded by the sync grace period.
		if guildID != "" {
			session.Members().WaitMembers(ctx, guildID)
		}

		msgs, err := client.Messages(ctx, channelID, "", limit)
		if err != nil {
			return errMsg{err: err}
		}
		// REST returns newest first.
		reverse(msgs)
		st.SaveMessages(channelID, msgs)
		return historyMsg{channelID: channelID, messages: msgs}
	}

	return tea.Batch(cached, live)
}

// loadOlder pages backward from the oldest loaded message.
func (m Model) loadOlder() tea.Cmd {
	if m.channelID == "" || len(m.messages) == 0 {
		return nil
	}
	client, st := m.client, m.store
	channelID, before := m.channelID, m.messages[0].ID
	limit := m.cfg.MessagesLimit

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msgs, err := client.Messages(ctx, channelID, before, limit)
		if err != nil {
			return errMsg{err: err}
		}
		reverse(msgs)
		st.SaveMessages(channelID, msgs)
		return historyMsg{channelID: channelID, messages: msgs, prepend: true}
	}
}

func (m Model) sendMessage(content string) tea.Cmd {
	client, channelID := m.client, m.channelID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := client.SendMessage(ctx, channelID, content, "")
		if err != nil {
			return errMsg{err: err}
		}
		return sentMsg{message: msg}
	}
}

func (m Model) editMessage(messageID, content string) tea.Cmd {
	client, channelID := m.client, m.channelID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := client.EditMessage(ctx, channelID, messageID, content)
		if err != nil {
			return errMsg{err: err}
		}
		return sentMsg{message: msg}
	}
}

func (m Model) deleteMessage(messageID string) tea.Cmd {
	client, channelID := m.client, m.channelID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.DeleteMessage(ctx, channelID, messageID); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) notifyTyping() tea.Cmd {
	client, channelID := m.client, m.channelID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.TriggerTyping(ctx, channelID)
		return nil
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles one Bubble Tea message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshViewport(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateChangedMsg:
		m.rebuildNodes()
		var cmd tea.Cmd
		if m.session.State() == gateway.StateReady && m.status == "connecting" {
			m.status = "ready"
			cmd = m.persistGuilds()
		}
		m.refreshViewport(false)
		return m, tea.Batch(m.watchState(), cmd)

	case gatewayMessageMsg:
		cmd := m.applyMessageEvent(msg.ev)
		return m, tea.Batch(cmd, m.watchMessages())

	case sessionClosedMsg:
		m.lastErr = msg.err
		if msg.err != nil {
			m.status = "disconnected: " + msg.err.Error()
			return m, nil
		}
		return m, tea.Quit

	case dmsLoadedMsg:
		m.dms = msg.dms
		m.rebuildNodes()
		return m, nil

	case channelsMsg:
		m.fetchedChannels[msg.guildID] = msg.channels
		m.rebuildNodes()
		return m, nil

	case historyMsg:
		if msg.channelID != m.channelID {
			return m, nil
		}
		switch {
		case msg.prepend:
			m.messages = append(msg.messages, m.messages...)
		case msg.cached && len(m.messages) > 0:
			// Live page already landed; keep it.
		default:
			m.messages = msg.messages
		}
		m.refreshViewport(!msg.prepend)
		return m, nil

	case sentMsg:
		// The authoritative copy arrives on the gateway stream; nothing to
		// apply here beyond clearing transient state.
		m.status = m.channelName
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		m.status = msg.err.Error()
		return m, nil
	}

	return m.updateComponents(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.session.Close()
		return m, tea.Quit
	}

	if key.Matches(msg, m.keys.FocusNext) {
		// Tab inside the input completes a trailing @mention; otherwise it
		// switches panes.
		if m.focus == focusInput && m.completeMention() {
			return m, nil
		}
		if m.focus == focusSidebar {
			m.focus = focusInput
			m.input.Focus()
		} else {
			m.focus = focusSidebar
			m.input.Blur()
		}
		return m, nil
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}

	if key.Matches(msg, m.keys.Select) && m.channelID != "" {
		content := m.input.Value()
		if content == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.submit(content)
	}
	if key.Matches(msg, m.keys.OlderPage) {
		return m, m.loadOlder()
	}

	var cmds []tea.Cmd
	if m.channelID != "" && time.Since(m.lastTyping) > typingInterval {
		m.lastTyping = time.Now()
		cmds = append(cmds, m.notifyTyping())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// typingInterval is how long one typing notification stays visible
// server-side; re-sending sooner is wasted traffic.
const typingInterval = 8 * time.Second

// submit dispatches the input box: slash commands act on the author's own
// messages, anything else is sent as a message.
func (m Model) submit(content string) tea.Cmd {
	switch {
	case content == "/delete":
		if own := m.lastOwnMessage(); own != nil {
			return m.deleteMessage(own.ID)
		}
		return nil
	case strings.HasPrefix(content, "/edit "):
		if own := m.lastOwnMessage(); own != nil {
			return m.editMessage(own.ID, strings.TrimPrefix(content, "/edit "))
		}
		return nil
	default:
		return m.sendMessage(content)
	}
}

// lastOwnMessage returns the newest loaded message authored by this account.
func (m Model) lastOwnMessage() *api.Message {
	selfID := m.session.Cabinet().Self().ID
	if selfID == "" {
		return nil
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Author.ID == selfID {
			return &m.messages[i]
		}
	}
	return nil
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Favorite):
		m.toggleFavorite()
	case key.Matches(msg, m.keys.OlderPage):
		return m, m.loadOlder()
	case key.Matches(msg, m.keys.Select):
		return m.selectNode()
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	i := m.cursor
	for {
		i += delta
		if i < 0 || i >= len(m.nodes) {
			return
		}
		if m.nodes[i].kind != nodeHeader {
			m.cursor = i
			return
		}
	}
}

func (m Model) selectNode() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.nodes) {
		return m, nil
	}
	n := m.nodes[m.cursor]
	switch n.kind {
	case nodeGuild:
		m.expanded[n.guildID] = !m.expanded[n.guildID]
		m.rebuildNodes()
		if m.expanded[n.guildID] && len(m.guildChannels(n.guildID)) == 0 {
			return m, m.fetchGuildChannels(n.guildID)
		}
		return m, nil

	case nodeChannel, nodeDM:
		m.channelID = n.channelID
		m.guildID = n.guildID
		m.channelName = n.label
		m.messages = nil
		m.status = n.label
		m.focus = focusInput
		m.input.Focus()
		return m, m.openChannel(n.channelID, n.guildID)
	}
	return m, nil
}

func (m *Model) toggleFavorite() {
	if m.cursor >= len(m.nodes) {
		return
	}
	n := m.nodes[m.cursor]

	var id, kind string
	switch n.kind {
	case nodeGuild:
		id, kind = n.guildID, "guild"
	case nodeDM:
		id, kind = n.channelID, "dm"
	default:
		return
	}

	if m.favorites[id] {
		delete(m.favorites, id)
		m.store.RemoveFavorite(id)
	} else {
		m.favorites[id] = true
		m.store.AddFavorite(id, kind, n.label)
	}
	m.rebuildNodes()
}

// applyMessageEvent folds one live gateway event into the open channel.
func (m *Model) applyMessageEvent(ev gateway.MessageEvent) tea.Cmd {
	var msg api.Message
	if err := json.Unmarshal(ev.Body, &msg); err != nil {
		m.log.Warn("undecodable message event", zap.Error(err))
		return nil
	}

	if msg.ChannelID != m.channelID {
		return nil
	}

	switch ev.Event {
	case gateway.EventMessageCreate:
		m.messages = append(m.messages, msg)
		m.store.SaveMessages(msg.ChannelID, []api.Message{msg})
	case gateway.EventMessageUpdate:
		for i := range m.messages {
			if m.messages[i].ID == msg.ID {
				// Update bodies can be partial; only take the new content.
				m.messages[i].Content = msg.Content
				m.messages[i].EditedTimestamp = msg.EditedTimestamp
				break
			}
		}
	case gateway.EventMessageDelete:
		for i := range m.messages {
			if m.messages[i].ID == msg.ID {
				m.messages = append(m.messages[:i], m.messages[i+1:]...)
				break
			}
		}
	}

	m.refreshViewport(true)
	return nil
}

func (m Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	if m.focus == focusInput {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func reverse(msgs []api.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
