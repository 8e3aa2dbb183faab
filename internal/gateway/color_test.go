// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import "testing"

func TestResolveColor(t *testing.T) {
	// Pre-sorted highest-position-first, per the Cabinet invariant.
	roles := []Role{
		{ID: "r2", Position: 10, Color: 0x00ff00},
		{ID: "r1", Position: 5, Color: 0},
	}

	tests := []struct {
		name        string
		memberRoles []string
		want        string
	}{
		{"highest colored role wins", []string{"r1", "r2"}, "#00ff00"},
		{"only colorless roles", []string{"r1"}, DefaultAccentColor},
		{"unknown role id", []string{"r9"}, DefaultAccentColor},
		{"no roles", nil, DefaultAccentColor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveColor(tt.memberRoles, roles)
			if got != tt.want {
				t.Errorf("ResolveColor(%v) = %q, want %q", tt.memberRoles, got, tt.want)
			}
		})
	}
}

// The senior role's zero color must not shadow a junior colored role.
func TestResolveColorSkipsColorlessSeniorRole(t *testing.T) {
	roles := []Role{
		{ID: "admin", Position: 20, Color: 0},
		{ID: "blue", Position: 10, Color: 0x0000ff},
	}

	got := ResolveColor([]string{"admin", "blue"}, roles)
	if got != "#0000ff" {
		t.Errorf("ResolveColor = %q, want %q", got, "#0000ff")
	}
}

func TestResolveColorPadsToSixDigits(t *testing.T) {
	roles := []Role{{ID: "r1", Position: 1, Color: 0xf}}

	got := ResolveColor([]string{"r1"}, roles)
	if got != "#00000f" {
		t.Errorf("ResolveColor = %q, want %q", got, "#00000f")
	}
}

func TestMemberColorUnknownMember(t *testing.T) {
	c := NewCabinet()
	c.setRoles("g1", []Role{{ID: "r1", Position: 1, Color: 0xff0000}})

	if got := c.MemberColor("g1", "nobody"); got != DefaultAccentColor {
		t.Errorf("MemberColor = %q, want default %q", got, DefaultAccentColor)
	}
}

func TestMemberColorResolvesFromReplica(t *testing.T) {
	c := NewCabinet()
	c.setRoles("g1", []Role{
		{ID: "r1", Position: 2, Color: 0x123456},
		{ID: "r2", Position: 1, Color: 0x654321},
	})
	c.putMember("g1", userMember("u1", "r1", "r2"))

	if got := c.MemberColor("g1", "u1"); got != "#123456" {
		t.Errorf("MemberColor = %q, want %q", got, "#123456")
	}
}
