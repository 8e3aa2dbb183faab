// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// PAYLOAD ROUTING
// =============================================================================

// handlePayload routes one decoded payload. It runs on the read loop only and
// never blocks on I/O: anything slow (member sync fan-out) is scheduled on
// its own goroutine so the loop keeps draining frames.
func (s *Session) handlePayload(p Payload) {
	if p.S > s.seq.Load() {
		s.seq.Store(p.S)
	}

	switch p.Op {
	case OpHello:
		s.handleHello(p.D)

	case OpHeartbeatAck:
		s.mu.Lock()
		s.pendingAcks = 0
		s.mu.Unlock()
		s.log.Debug("heartbeat ack received")

	case OpDispatch:
		s.handleDispatch(p.T, p.D)

	default:
		s.log.Debug("ignoring opcode", zap.Int("op", p.Op))
	}
}

// handleHello starts the heartbeat task at the server-provided cadence and
// begins the identify handshake.
func (s *Session) handleHello(d json.RawMessage) {
	if s.State() != StateAwaitingHello {
		s.log.Debug("hello received outside handshake, ignoring")
		return
	}

	var hello helloData
	if err := json.Unmarshal(d, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		s.terminate(&TransportError{
			Type:    TransportErrDecode,
			Message: "malformed hello payload",
			Cause:   err,
		})
		return
	}

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	s.log.Info("hello received", zap.Duration("heartbeat_interval", interval))
	go s.heartbeatLoop(interval)

	if err := s.identify(); err != nil {
		s.terminate(err)
	}
}

// handleDispatch applies one data-change event to the Cabinet. Unrecognized
// tags are ignored for forward compatibility with server-side additions.
func (s *Session) handleDispatch(event string, d json.RawMessage) {
	switch event {
	case EventReady:
		s.handleReady(d)

	case EventGuildCreate, EventGuildUpdate:
		var g guildCreateData
		if !s.decode(event, d, &g) {
			return
		}
		s.applyGuild(g)

	case EventGuildDelete:
		var g Guild
		if !s.decode(event, d, &g) {
			return
		}
		s.cabinet.removeGuild(g.ID)

	case EventChannelCreate, EventChannelUpdate:
		var ch Channel
		if !s.decode(event, d, &ch) {
			return
		}
		s.cabinet.putChannel(ch)

	case EventChannelDelete:
		var ch Channel
		if !s.decode(event, d, &ch) {
			return
		}
		s.cabinet.removeChannel(ch.ID)

	case EventGuildMemberAdd, EventGuildMemberUpdate:
		var m guildScopedMember
		if !s.decode(event, d, &m) {
			return
		}
		s.cabinet.putMember(m.GuildID, m.Member)

	case EventGuildMemberRemove:
		var rm memberRemoveData
		if !s.decode(event, d, &rm) {
			return
		}
		s.cabinet.removeMember(rm.GuildID, rm.User.ID)

	case EventGuildMembersChunk:
		var chunk membersChunkData
		if !s.decode(event, d, &chunk) {
			return
		}
		s.cabinet.putMembers(chunk.GuildID, chunk.Members)
		s.members.chunkArrived(chunk.GuildID)
		s.log.Debug("members chunk applied",
			zap.String("guild_id", chunk.GuildID),
			zap.Int("members", len(chunk.Members)))

	case EventGuildRoleCreate:
		var re roleEventData
		if !s.decode(event, d, &re) {
			return
		}
		s.cabinet.addRole(re.GuildID, re.Role)

	case EventGuildRoleUpdate:
		var re roleEventData
		if !s.decode(event, d, &re) {
			return
		}
		s.cabinet.updateRole(re.GuildID, re.Role)

	case EventGuildRoleDelete:
		var rd roleDeleteData
		if !s.decode(event, d, &rd) {
			return
		}
		s.cabinet.removeRole(rd.GuildID, rd.RoleID)

	case EventMessageCreate, EventMessageUpdate, EventMessageDelete:
		s.forwardMessage(event, d)

	default:
		s.log.Debug("ignoring event", zap.String("t", event))
	}
}

// forwardMessage pushes a message-stream event to the consumer channel.
// The read loop must never stall on a slow consumer, so when the buffer is
// full the oldest event is dropped to make room.
func (s *Session) forwardMessage(event string, d json.RawMessage) {
	ev := MessageEvent{Event: event, Body: append(json.RawMessage(nil), d...)}
	for {
		select {
		case s.msgEvents <- ev:
			return
		default:
		}
		select {
		case <-s.msgEvents:
			s.log.Debug("message event buffer full, dropping oldest")
		default:
		}
	}
}

// decode unmarshals an event body, absorbing malformed bodies locally: one
// bad entity payload must not take the session down.
func (s *Session) decode(event string, d json.RawMessage, v any) bool {
	if err := json.Unmarshal(d, v); err != nil {
		s.log.Warn("failed to decode event body",
			zap.String("t", event), zap.Error(err))
		return false
	}
	return true
}

// =============================================================================
// BULK APPLICATION
// =============================================================================

// handleReady applies the initial bulk payload and schedules member sync for
// every guild it carries.
func (s *Session) handleReady(d json.RawMessage) {
	var ready readyData
	if !s.decode(EventReady, d, &ready) {
		return
	}

	s.mu.Lock()
	s.sessionID = ready.SessionID
	s.mu.Unlock()

	s.cabinet.setSelf(ready.User)
	guildIDs := make([]string, 0, len(ready.Guilds))
	for _, g := range ready.Guilds {
		s.applyGuild(g)
		guildIDs = append(guildIDs, g.Guild.ID)
	}
	s.cabinet.setBooted()

	s.state.Store(int32(StateReady))
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.log.Info("ready",
		zap.String("username", ready.User.Username),
		zap.Int("guilds", len(ready.Guilds)))

	// Scheduled, not awaited: the read loop must keep draining frames while
	// the requests go out.
	go s.members.requestAll(guildIDs)
}

// applyGuild upserts a guild record plus whatever nested sets the payload
// carried. The nested channel objects omit guild_id; it is restored here so
// deletion cascades can find them.
func (s *Session) applyGuild(g guildCreateData) {
	if g.Guild.ID == "" {
		return
	}
	s.cabinet.putGuild(g.Guild)

	for _, ch := range g.Channels {
		if ch.GuildID == "" {
			ch.GuildID = g.Guild.ID
		}
		s.cabinet.putChannel(ch)
	}
	if g.Roles != nil {
		s.cabinet.setRoles(g.Guild.ID, g.Roles)
	}
	if len(g.Members) > 0 {
		s.cabinet.putMembers(g.Guild.ID, g.Members)
	}
}
