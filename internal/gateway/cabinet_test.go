// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"testing"
)

func userMember(userID string, roles ...string) Member {
	return Member{
		User:  &User{ID: userID, Username: "user-" + userID},
		Roles: roles,
	}
}

// Roles come back most-senior-first no matter what order the events arrived
// in.
func TestRolesSortedByPositionDescending(t *testing.T) {
	c := NewCabinet()
	c.addRole("g1", Role{ID: "r2", Position: 2})
	c.addRole("g1", Role{ID: "r9", Position: 9})
	c.addRole("g1", Role{ID: "r5", Position: 5})

	roles := c.Roles("g1")
	want := []string{"r9", "r5", "r2"}
	if len(roles) != len(want) {
		t.Fatalf("len(roles) = %d, want %d", len(roles), len(want))
	}
	for i, id := range want {
		if roles[i].ID != id {
			t.Errorf("roles[%d].ID = %q, want %q", i, roles[i].ID, id)
		}
	}
}

func TestRolesPositionTiesKeepInputOrder(t *testing.T) {
	c := NewCabinet()
	c.setRoles("g1", []Role{
		{ID: "a", Position: 3},
		{ID: "b", Position: 3},
		{ID: "c", Position: 3},
	})

	roles := c.Roles("g1")
	for i, id := range []string{"a", "b", "c"} {
		if roles[i].ID != id {
			t.Errorf("roles[%d].ID = %q, want %q", i, roles[i].ID, id)
		}
	}
}

func TestUpdateRoleReplacesInPlace(t *testing.T) {
	c := NewCabinet()
	c.setRoles("g1", []Role{{ID: "r1", Position: 1, Color: 0}})

	c.updateRole("g1", Role{ID: "r1", Position: 1, Color: 0x123456})

	roles := c.Roles("g1")
	if len(roles) != 1 {
		t.Fatalf("len(roles) = %d, want 1 (no duplicate)", len(roles))
	}
	if roles[0].Color != 0x123456 {
		t.Errorf("Color = %#x, want 0x123456", roles[0].Color)
	}
}

func TestUpdateRoleUnknownIDInserts(t *testing.T) {
	c := NewCabinet()
	c.updateRole("g1", Role{ID: "r1", Position: 4})

	if len(c.Roles("g1")) != 1 {
		t.Error("update for unknown role id should insert it")
	}
}

func TestRemoveRole(t *testing.T) {
	c := NewCabinet()
	c.setRoles("g1", []Role{{ID: "r1", Position: 1}, {ID: "r2", Position: 2}})
	c.removeRole("g1", "r1")

	roles := c.Roles("g1")
	if len(roles) != 1 || roles[0].ID != "r2" {
		t.Errorf("roles = %v, want only r2", roles)
	}
}

// A guild delete removes the guild and every entity scoped to it.
func TestRemoveGuildCascades(t *testing.T) {
	c := NewCabinet()
	c.putGuild(Guild{ID: "g1", Name: "one"})
	c.putGuild(Guild{ID: "g2", Name: "two"})
	c.putChannel(Channel{ID: "c1", GuildID: "g1"})
	c.putChannel(Channel{ID: "c2", GuildID: "g2"})
	c.setRoles("g1", []Role{{ID: "r1", Position: 1}})
	c.putMember("g1", userMember("u1"))

	c.removeGuild("g1")

	if c.Guild("g1") != nil {
		t.Error("Guild(g1) should be gone")
	}
	if c.Channel("c1") != nil {
		t.Error("Channel(c1) should be gone with its guild")
	}
	if len(c.Roles("g1")) != 0 {
		t.Error("Roles(g1) should be empty")
	}
	if c.Member("g1", "u1") != nil {
		t.Error("Member(g1, u1) should be gone")
	}

	// The other guild is untouched.
	if c.Guild("g2") == nil || c.Channel("c2") == nil {
		t.Error("g2 state should survive g1's deletion")
	}
}

func TestMemberAddAfterRemoveDifferentUser(t *testing.T) {
	c := NewCabinet()
	c.putMember("g1", userMember("u1"))
	c.putMember("g1", userMember("u2"))

	c.removeMember("g1", "u1")
	c.putMember("g1", userMember("u3"))

	if c.Member("g1", "u1") != nil {
		t.Error("removed user u1 should stay absent")
	}
	if c.Member("g1", "u2") == nil {
		t.Error("untouched user u2 should be present")
	}
	if c.Member("g1", "u3") == nil {
		t.Error("added user u3 should be present")
	}
}

func TestPutMembersIsIdempotent(t *testing.T) {
	c := NewCabinet()
	chunk := []Member{
		userMember("u1", "r1"),
		userMember("u2", "r2"),
	}

	c.putMembers("g1", chunk)
	first := c.Members("g1")

	c.putMembers("g1", chunk)
	second := c.Members("g1")

	if len(first) != len(second) {
		t.Fatalf("member count changed: %d -> %d", len(first), len(second))
	}
	for id, m := range first {
		again, ok := second[id]
		if !ok {
			t.Errorf("member %q missing after re-apply", id)
			continue
		}
		if len(m.Roles) != len(again.Roles) {
			t.Errorf("member %q roles changed: %v -> %v", id, m.Roles, again.Roles)
		}
	}
}

func TestMembersSyncedHeuristic(t *testing.T) {
	c := NewCabinet()
	if c.MembersSynced("g1") {
		t.Error("MembersSynced = true for empty guild")
	}

	c.putMember("g1", userMember("u1"))
	if !c.MembersSynced("g1") {
		t.Error("MembersSynced = false after a member arrived")
	}
}

func TestGuildChannelsSortedByPosition(t *testing.T) {
	c := NewCabinet()
	c.putChannel(Channel{ID: "c3", GuildID: "g1", Position: 3})
	c.putChannel(Channel{ID: "c1", GuildID: "g1", Position: 1})
	c.putChannel(Channel{ID: "c2", GuildID: "g1", Position: 2})
	c.putChannel(Channel{ID: "x", GuildID: "g2", Position: 0})

	chans := c.GuildChannels("g1")
	if len(chans) != 3 {
		t.Fatalf("len = %d, want 3", len(chans))
	}
	for i, id := range []string{"c1", "c2", "c3"} {
		if chans[i].ID != id {
			t.Errorf("chans[%d].ID = %q, want %q", i, chans[i].ID, id)
		}
	}
}

func TestChangedSignalCoalesces(t *testing.T) {
	c := NewCabinet()
	for i := 0; i < 10; i++ {
		c.putGuild(Guild{ID: "g1"})
	}

	// At least one signal is pending, and draining it empties the channel.
	select {
	case <-c.Changed():
	default:
		t.Fatal("no change signal pending")
	}
	select {
	case <-c.Changed():
		t.Error("change signals should coalesce to one")
	default:
	}
}
