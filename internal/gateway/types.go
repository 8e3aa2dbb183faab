// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import "encoding/json"

// =============================================================================
// PAYLOAD ENVELOPE
// =============================================================================

// Payload is the gateway envelope carried by every frame.
type Payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Opcodes consumed and produced by the session.
const (
	OpDispatch            = 0  // received: event with type tag
	OpHeartbeat           = 1  // sent: keep-alive carrying last sequence
	OpIdentify            = 2  // sent: authentication handshake
	OpRequestGuildMembers = 8  // sent: bulk member fetch
	OpHello               = 10 // received: heartbeat interval
	OpHeartbeatAck        = 11 // received: heartbeat acknowledgment
)

// Dispatch event tags handled by the session. Unknown tags are ignored.
const (
	EventReady             = "READY"
	EventGuildCreate       = "GUILD_CREATE"
	EventGuildUpdate       = "GUILD_UPDATE"
	EventGuildDelete       = "GUILD_DELETE"
	EventChannelCreate     = "CHANNEL_CREATE"
	EventChannelUpdate     = "CHANNEL_UPDATE"
	EventChannelDelete     = "CHANNEL_DELETE"
	EventGuildMemberAdd    = "GUILD_MEMBER_ADD"
	EventGuildMemberUpdate = "GUILD_MEMBER_UPDATE"
	EventGuildMemberRemove = "GUILD_MEMBER_REMOVE"
	EventGuildMembersChunk = "GUILD_MEMBERS_CHUNK"
	EventGuildRoleCreate   = "GUILD_ROLE_CREATE"
	EventGuildRoleUpdate   = "GUILD_ROLE_UPDATE"
	EventGuildRoleDelete   = "GUILD_ROLE_DELETE"
	EventMessageCreate     = "MESSAGE_CREATE"
	EventMessageUpdate     = "MESSAGE_UPDATE"
	EventMessageDelete     = "MESSAGE_DELETE"
)

// MessageEvent is one message-stream event forwarded to the UI untouched.
// The Cabinet does not replicate message history, so bodies stay raw for the
// consumer to decode with its own message type.
type MessageEvent struct {
	Event string
	Body  json.RawMessage
}

// Intent bits declared at identify time, selecting which event categories the
// server will push.
const (
	IntentGuilds uint64 = 1 << iota
	IntentGuildMembers
	IntentGuildBans
	IntentGuildEmojis
	IntentGuildIntegrations
	IntentGuildWebhooks
	IntentGuildInvites
	IntentGuildVoiceStates
	IntentGuildPresences
	IntentGuildMessages
	IntentGuildMessageReactions
)

// DefaultIntents subscribes to everything the client renders. GUILDS and
// GUILD_MEMBERS are the ones the replica actually depends on.
const DefaultIntents = IntentGuilds | IntentGuildMembers | IntentGuildBans |
	IntentGuildEmojis | IntentGuildIntegrations | IntentGuildWebhooks |
	IntentGuildInvites | IntentGuildVoiceStates | IntentGuildPresences |
	IntentGuildMessages | IntentGuildMessageReactions

// =============================================================================
// ENTITIES
// =============================================================================
//
// All identifiers are snowflakes: opaque numeric strings compared with exact
// string equality. They exceed the safe-integer range of some runtimes, so
// they must never be coerced to numbers.

// User is a platform account.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

// Guild is a community the account belongs to. Raw keeps the full attribute
// bag as received, for fields the client does not model.
type Guild struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Owner bool   `json:"owner"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON parses the modeled fields and retains the raw document.
func (g *Guild) UnmarshalJSON(data []byte) error {
	type guild Guild
	var v guild
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*g = Guild(v)
	g.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Channel is a text or category channel inside a guild.
type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	Position int    `json:"position"`
	ParentID string `json:"parent_id"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON parses the modeled fields and retains the raw document.
func (c *Channel) UnmarshalJSON(data []byte) error {
	type channel Channel
	var v channel
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Channel(v)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Role is a guild role. Position orders seniority (higher wins); a Color of
// zero means "no color set".
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Color    int    `json:"color"`
}

// Member is a user's membership in one guild, keyed by (guild id, user id).
type Member struct {
	User  *User    `json:"user"`
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON parses the modeled fields and retains the raw document.
func (m *Member) UnmarshalJSON(data []byte) error {
	type member Member
	var v member
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Member(v)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// =============================================================================
// EVENT BODIES
// =============================================================================

// helloData is the op 10 body.
type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// identifyData is the op 2 body.
type identifyData struct {
	Token      string             `json:"token"`
	Intents    uint64             `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// requestMembersData is the op 8 body. An empty query with limit zero is the
// protocol sentinel for "all members".
type requestMembersData struct {
	GuildID string `json:"guild_id"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	Nonce   string `json:"nonce,omitempty"`
}

// guildCreateData is the GUILD_CREATE (and per-guild READY) body: a guild
// record plus its nested channel, role and partial member sets.
//
// Guild is a named field, not embedded: Guild's UnmarshalJSON would otherwise
// be promoted and swallow the nested sets.
type guildCreateData struct {
	Guild    Guild
	Channels []Channel
	Roles    []Role
	Members  []Member
}

// UnmarshalJSON parses the guild record and its nested sets from the same
// document.
func (g *guildCreateData) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &g.Guild); err != nil {
		return err
	}
	var nested struct {
		Channels []Channel `json:"channels"`
		Roles    []Role    `json:"roles"`
		Members  []Member  `json:"members"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	g.Channels = nested.Channels
	g.Roles = nested.Roles
	g.Members = nested.Members
	return nil
}

// readyData is the READY dispatch body.
type readyData struct {
	User      User              `json:"user"`
	SessionID string            `json:"session_id"`
	Guilds    []guildCreateData `json:"guilds"`
}

// guildScopedMember wraps member events that carry guild_id alongside the
// member fields in the same document.
type guildScopedMember struct {
	GuildID string
	Member  Member
}

func (m *guildScopedMember) UnmarshalJSON(data []byte) error {
	var scope struct {
		GuildID string `json:"guild_id"`
	}
	if err := json.Unmarshal(data, &scope); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &m.Member); err != nil {
		return err
	}
	m.GuildID = scope.GuildID
	return nil
}

// memberRemoveData is the GUILD_MEMBER_REMOVE body.
type memberRemoveData struct {
	GuildID string `json:"guild_id"`
	User    User   `json:"user"`
}

// membersChunkData is the GUILD_MEMBERS_CHUNK body. There is no chunk-count
// field in the traffic this client consumes; arrival is the only signal.
type membersChunkData struct {
	GuildID string   `json:"guild_id"`
	Members []Member `json:"members"`
	Nonce   string   `json:"nonce"`
}

// roleEventData is the GUILD_ROLE_CREATE / GUILD_ROLE_UPDATE body.
type roleEventData struct {
	GuildID string `json:"guild_id"`
	Role    Role   `json:"role"`
}

// roleDeleteData is the GUILD_ROLE_DELETE body.
type roleDeleteData struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}
