// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway implements the persistent real-time session against the
// platform gateway.
//
// The session runs a connect -> hello -> identify -> ready lifecycle over a
// single websocket. Binary frames pass through one long-lived zlib-stream
// inflater; decoded payloads are routed by opcode and event tag into the
// Cabinet, an in-memory replica of server-side state (guilds, channels,
// roles, members, users). The Cabinet is mutated only by the session's read
// loop and read concurrently by the rest of the application.
//
// Concurrency model: one read loop goroutine, one heartbeat goroutine, and a
// single writer mutex serializing all socket writes. Member-sync requests are
// issued on demand and correlated back by guild id; completeness has no
// authoritative signal and is inferred heuristically by callers.
//
// The session does not resume or reconnect. Any transport failure terminates
// it; callers observe termination through Done and start a fresh session,
// rebuilding the replica from empty.
package gateway
