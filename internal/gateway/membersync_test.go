// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRequestMembersDeduplicatesInFlight(t *testing.T) {
	s, conn := startTestSession(t)
	ms := s.Members()

	if err := ms.Request("g1"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	req := conn.nextWrite(t)
	if req.Op != OpRequestGuildMembers {
		t.Fatalf("Op = %d, want %d", req.Op, OpRequestGuildMembers)
	}
	if !ms.Outstanding("g1") {
		t.Error("Outstanding(g1) = false, want true after request")
	}

	// A second request while the first is unanswered is suppressed.
	if err := ms.Request("g1"); err != nil {
		t.Fatalf("Request() #2 error = %v", err)
	}
	select {
	case <-conn.writes:
		t.Error("duplicate in-flight request was written to the socket")
	case <-time.After(50 * time.Millisecond):
	}

	// A different guild goes out immediately.
	if err := ms.Request("g2"); err != nil {
		t.Fatalf("Request(g2) error = %v", err)
	}
	req = conn.nextWrite(t)
	var rm requestMembersData
	if err := json.Unmarshal(req.D, &rm); err != nil {
		t.Fatal(err)
	}
	if rm.GuildID != "g2" {
		t.Errorf("GuildID = %q, want %q", rm.GuildID, "g2")
	}
}

func TestChunkClearsOutstandingAndAllowsReissue(t *testing.T) {
	s, conn := startTestSession(t)
	ms := s.Members()

	if err := ms.Request("g1"); err != nil {
		t.Fatal(err)
	}
	conn.nextWrite(t)

	// The chunk flows through the dispatcher like any other event.
	conn.queueJSON(t, dispatch(t, EventGuildMembersChunk, 10, map[string]any{
		"guild_id": "g1",
		"members": []map[string]any{
			{"user": map[string]any{"id": "u1", "username": "alice"}, "roles": []string{"r1"}},
		},
	}))

	waitFor(t, "chunk to apply", func() bool { return !ms.Outstanding("g1") })

	if s.Cabinet().Member("g1", "u1") == nil {
		t.Error("chunk member not in replica")
	}

	// On-demand refill after the first reply is allowed.
	if err := ms.Request("g1"); err != nil {
		t.Fatal(err)
	}
	conn.nextWrite(t)
}

func TestWaitMembersReturnsOnceMembersArrive(t *testing.T) {
	s, conn := startTestSession(t)
	ms := s.Members()
	ms.grace = 500 * time.Millisecond

	chunk := dispatch(t, EventGuildMembersChunk, 20, map[string]any{
		"guild_id": "g1",
		"members": []map[string]any{
			{"user": map[string]any{"id": "u1", "username": "alice"}},
		},
	})
	go func() {
		// Answer the lazy-fill request the way the server would.
		select {
		case <-conn.writes:
			conn.queueJSON(t, chunk)
		case <-time.After(2 * time.Second):
		}
	}()

	if !ms.WaitMembers(context.Background(), "g1") {
		t.Error("WaitMembers = false, want true once the chunk lands")
	}
	if s.Cabinet().Member("g1", "u1") == nil {
		t.Error("member missing after successful wait")
	}
}

func TestWaitMembersGivesUpAfterGrace(t *testing.T) {
	s, conn := startTestSession(t)
	ms := s.Members()
	ms.grace = 100 * time.Millisecond

	start := time.Now()
	if ms.WaitMembers(context.Background(), "g1") {
		t.Error("WaitMembers = true with no chunks, want false")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("WaitMembers blocked %v, want bounded by grace", elapsed)
	}

	// The request itself still went out.
	req := conn.nextWrite(t)
	if req.Op != OpRequestGuildMembers {
		t.Errorf("Op = %d, want %d", req.Op, OpRequestGuildMembers)
	}
}

func TestWaitMembersShortCircuitsWhenCached(t *testing.T) {
	s, conn := startTestSession(t)
	ms := s.Members()

	s.Cabinet().putMember("g1", userMember("u1"))

	if !ms.WaitMembers(context.Background(), "g1") {
		t.Error("WaitMembers = false for an already-synced guild")
	}
	select {
	case <-conn.writes:
		t.Error("no request should be issued when members are cached")
	case <-time.After(50 * time.Millisecond):
	}
}
