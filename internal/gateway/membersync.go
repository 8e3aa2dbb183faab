// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultMemberGrace is how long WaitMembers gives the server to deliver
// chunks before reporting whatever arrived. The server usually answers within
// a couple hundred milliseconds; this is a latency accommodation, not a
// correctness mechanism.
const defaultMemberGrace = time.Second

// MemberSync issues bulk member-fetch requests over the session and tracks
// which guilds have a request in flight. Replies arrive later as zero or more
// member-chunk events correlated only by guild id; there is no chunk count,
// so completeness is heuristic (see Cabinet.MembersSynced).
type MemberSync struct {
	s     *Session
	log   *zap.Logger
	grace time.Duration

	mu          sync.Mutex
	outstanding map[string]string // guild id -> request nonce
}

func newMemberSync(s *Session) *MemberSync {
	return &MemberSync{
		s:           s,
		log:         s.log,
		grace:       defaultMemberGrace,
		outstanding: make(map[string]string),
	}
}

// Request asks the server for the full member list of one guild. A request
// already in flight for that guild is not re-issued: chunks are idempotent
// upserts, so a duplicate would be harmless but wasteful.
func (ms *MemberSync) Request(guildID string) error {
	if guildID == "" {
		return nil
	}

	ms.mu.Lock()
	if _, inFlight := ms.outstanding[guildID]; inFlight {
		ms.mu.Unlock()
		return nil
	}
	nonce := uuid.NewString()
	ms.outstanding[guildID] = nonce
	ms.mu.Unlock()

	err := ms.s.send(OpRequestGuildMembers, requestMembersData{
		GuildID: guildID,
		Query:   "", // empty query selects all members
		Limit:   0,  // zero is the "no limit" sentinel
		Nonce:   nonce,
	})
	if err != nil {
		ms.mu.Lock()
		delete(ms.outstanding, guildID)
		ms.mu.Unlock()
		ms.log.Warn("member request failed",
			zap.String("guild_id", guildID), zap.Error(err))
		return err
	}

	ms.log.Debug("requested members", zap.String("guild_id", guildID))
	return nil
}

// requestAll fans the startup request out to every guild from the bulk
// payload. Runs off the read loop.
func (ms *MemberSync) requestAll(guildIDs []string) {
	for _, id := range guildIDs {
		if err := ms.Request(id); err != nil {
			// The session is likely dying; the remaining requests would
			// fail the same way.
			return
		}
	}
}

// chunkArrived clears the in-flight mark for a guild. Called by the
// dispatcher for every member chunk; a multi-chunk reply clears it on the
// first chunk, which is fine — the member map is non-empty from then on.
func (ms *MemberSync) chunkArrived(guildID string) {
	ms.mu.Lock()
	delete(ms.outstanding, guildID)
	ms.mu.Unlock()
}

// Outstanding reports whether a request for the guild is awaiting its first
// chunk.
func (ms *MemberSync) Outstanding(guildID string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, ok := ms.outstanding[guildID]
	return ok
}

// WaitMembers requests a guild's members if none are cached and waits a
// bounded grace period for them to arrive. It returns whether the member map
// is non-empty; on false the caller falls back to unknown-member rendering.
func (ms *MemberSync) WaitMembers(ctx context.Context, guildID string) bool {
	if ms.s.cabinet.MembersSynced(guildID) {
		return true
	}
	if err := ms.Request(guildID); err != nil {
		return false
	}

	deadline := time.NewTimer(ms.grace)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if ms.s.cabinet.MembersSynced(guildID) {
				return true
			}
		case <-deadline.C:
			return ms.s.cabinet.MembersSynced(guildID)
		case <-ms.s.done:
			return ms.s.cabinet.MembersSynced(guildID)
		case <-ctx.Done():
			return false
		}
	}
}
