// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"sort"
	"sync"
)

// =============================================================================
// CABINET
// =============================================================================

// Cabinet is the in-memory replica of server-side state. It is mutated only
// by the session's dispatch path and read concurrently by the rest of the
// application. Every mutation is applied atomically under one mutex; readers
// never observe a half-applied event.
//
// The replica is a cache, not the source of truth. It converges toward server
// state as events arrive and may be transiently incomplete, especially for
// members of large guilds.
type Cabinet struct {
	mu sync.RWMutex

	self     User
	guilds   map[string]*Guild
	channels map[string]*Channel
	roles    map[string][]Role            // guild id -> roles, input order
	members  map[string]map[string]*Member // guild id -> user id -> member
	users    map[string]*User
	booted   bool

	// changed carries a coalesced "replica changed" signal for the UI.
	changed chan struct{}
}

// NewCabinet creates an empty replica.
func NewCabinet() *Cabinet {
	return &Cabinet{
		guilds:   make(map[string]*Guild),
		channels: make(map[string]*Channel),
		roles:    make(map[string][]Role),
		members:  make(map[string]map[string]*Member),
		users:    make(map[string]*User),
		changed:  make(chan struct{}, 1),
	}
}

// Changed returns a channel that receives a coalesced signal whenever the
// replica mutates. Consumers re-read whatever state they render; the signal
// carries no payload.
func (c *Cabinet) Changed() <-chan struct{} {
	return c.changed
}

// notify is called with the mutex held or not; the send never blocks.
func (c *Cabinet) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// =============================================================================
// READ PATH
// =============================================================================

// Booted reports whether the initial bulk payload has been applied.
func (c *Cabinet) Booted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.booted
}

// Self returns the authenticated user's identity.
func (c *Cabinet) Self() User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// Guild returns the guild with the given id, or nil.
func (c *Cabinet) Guild(guildID string) *Guild {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guilds[guildID]
}

// Guilds returns all guilds, sorted by name for stable display.
func (c *Cabinet) Guilds() []Guild {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Guild, 0, len(c.guilds))
	for _, g := range c.guilds {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Channel returns the channel with the given id, or nil.
func (c *Cabinet) Channel(channelID string) *Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channelID]
}

// GuildChannels returns a guild's channels sorted by position.
func (c *Cabinet) GuildChannels(guildID string) []Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Channel
	for _, ch := range c.channels {
		if ch.GuildID == guildID {
			out = append(out, *ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Roles returns a guild's roles sorted by position descending (most senior
// first). Ties keep input order.
func (c *Cabinet) Roles(guildID string) []Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := append([]Role(nil), c.roles[guildID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	return out
}

// Member returns one member record, or nil when not cached. A nil result
// means "unknown member": callers fall back to default rendering, because
// member sync may simply not have delivered that user yet.
func (c *Cabinet) Member(guildID, userID string) *Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.members[guildID][userID]
}

// Members returns a copy of a guild's member map.
func (c *Cabinet) Members(guildID string) map[string]Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Member, len(c.members[guildID]))
	for id, m := range c.members[guildID] {
		out[id] = *m
	}
	return out
}

// MembersSynced reports whether any members are cached for a guild. This is
// the completeness heuristic: the protocol gives no chunk count, so a
// non-empty member map is treated as good enough.
func (c *Cabinet) MembersSynced(guildID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members[guildID]) > 0
}

// User returns the cached user with the given id, or nil.
func (c *Cabinet) User(userID string) *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.users[userID]
}

// MemberColor resolves the display color for a member of a guild, falling
// back to the platform default when the member or any of their roles is
// unknown.
func (c *Cabinet) MemberColor(guildID, userID string) string {
	m := c.Member(guildID, userID)
	if m == nil {
		return DefaultAccentColor
	}
	return ResolveColor(m.Roles, c.Roles(guildID))
}

// =============================================================================
// MUTATION PATH
// =============================================================================
//
// Everything below is called only from the session's dispatch loop.

func (c *Cabinet) setSelf(u User) {
	c.mu.Lock()
	c.self = u
	if u.ID != "" {
		c.users[u.ID] = &u
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) setBooted() {
	c.mu.Lock()
	c.booted = true
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) putGuild(g Guild) {
	if g.ID == "" {
		return
	}
	c.mu.Lock()
	c.guilds[g.ID] = &g
	c.mu.Unlock()
	c.notify()
}

// removeGuild deletes a guild and everything scoped to it.
func (c *Cabinet) removeGuild(guildID string) {
	c.mu.Lock()
	delete(c.guilds, guildID)
	delete(c.roles, guildID)
	delete(c.members, guildID)
	for id, ch := range c.channels {
		if ch.GuildID == guildID {
			delete(c.channels, id)
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) putChannel(ch Channel) {
	if ch.ID == "" {
		return
	}
	c.mu.Lock()
	c.channels[ch.ID] = &ch
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) removeChannel(channelID string) {
	c.mu.Lock()
	delete(c.channels, channelID)
	c.mu.Unlock()
	c.notify()
}

// setRoles replaces a guild's role set wholesale, as carried by ready and
// guild-create payloads.
func (c *Cabinet) setRoles(guildID string, roles []Role) {
	c.mu.Lock()
	c.roles[guildID] = append([]Role(nil), roles...)
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) addRole(guildID string, role Role) {
	c.mu.Lock()
	c.roles[guildID] = append(c.roles[guildID], role)
	c.mu.Unlock()
	c.notify()
}

// updateRole replaces the role with a matching id in place. An unknown id is
// inserted: event ordering is not guaranteed, and inserting converges faster
// than dropping the update.
func (c *Cabinet) updateRole(guildID string, role Role) {
	c.mu.Lock()
	roles := c.roles[guildID]
	replaced := false
	for i := range roles {
		if roles[i].ID == role.ID {
			roles[i] = role
			replaced = true
			break
		}
	}
	if !replaced {
		c.roles[guildID] = append(roles, role)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) removeRole(guildID, roleID string) {
	c.mu.Lock()
	roles := c.roles[guildID]
	kept := roles[:0]
	for _, r := range roles {
		if r.ID != roleID {
			kept = append(kept, r)
		}
	}
	c.roles[guildID] = kept
	c.mu.Unlock()
	c.notify()
}

// putMember upserts a member under (guild id, user id) and refreshes the
// global user cache from the nested user object.
func (c *Cabinet) putMember(guildID string, m Member) {
	if m.User == nil || m.User.ID == "" {
		return
	}
	c.mu.Lock()
	c.putMemberLocked(guildID, m)
	c.mu.Unlock()
	c.notify()
}

// putMembers bulk-upserts one chunk atomically.
func (c *Cabinet) putMembers(guildID string, members []Member) {
	c.mu.Lock()
	for _, m := range members {
		if m.User == nil || m.User.ID == "" {
			continue
		}
		c.putMemberLocked(guildID, m)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Cabinet) putMemberLocked(guildID string, m Member) {
	byUser := c.members[guildID]
	if byUser == nil {
		byUser = make(map[string]*Member)
		c.members[guildID] = byUser
	}
	byUser[m.User.ID] = &m

	u := *m.User
	c.users[u.ID] = &u
}

func (c *Cabinet) removeMember(guildID, userID string) {
	c.mu.Lock()
	delete(c.members[guildID], userID)
	c.mu.Unlock()
	c.notify()
}
