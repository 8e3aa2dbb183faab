// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import "fmt"

// DefaultAccentColor is the platform's default name color, used when a member
// has no colored role or is not cached at all.
const DefaultAccentColor = "#5865f2"

// ResolveColor returns the display color for a member holding memberRoles,
// given the guild's roles sorted position-descending (the Cabinet invariant).
// The first held role with an explicitly set color wins: highest-ranked
// colored role takes precedence.
//
// Role ids in memberRoles that are missing from guildRoles contribute no
// color; event ordering does not guarantee the role set is complete.
func ResolveColor(memberRoles []string, guildRoles []Role) string {
	if len(memberRoles) == 0 || len(guildRoles) == 0 {
		return DefaultAccentColor
	}

	held := make(map[string]struct{}, len(memberRoles))
	for _, id := range memberRoles {
		held[id] = struct{}{}
	}

	for _, role := range guildRoles {
		if _, ok := held[role.ID]; !ok {
			continue
		}
		if role.Color != 0 {
			return fmt.Sprintf("#%06x", role.Color)
		}
	}
	return DefaultAccentColor
}
