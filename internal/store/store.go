// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store caches REST responses in a local SQLite database so that
// the client can render instantly on launch while the live fetch runs.
// Full JSON documents are stored alongside the columns used for ordering.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/morganforge/concord/internal/api"
	"github.com/morganforge/concord/internal/consts"
	"github.com/morganforge/concord/internal/gateway"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed   = errors.New("store closed")
	ErrNotFound = errors.New("not cached")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS guilds (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       TEXT,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	guild_id   TEXT,
	name       TEXT NOT NULL,
	position   INTEGER,
	data       TEXT,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dms (
	id              TEXT PRIMARY KEY,
	recipient_name  TEXT,
	last_message_id TEXT,
	data            TEXT,
	updated_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	data       TEXT,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	data       TEXT,
	updated_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_channels_guild ON channels(guild_id);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id);

CREATE TABLE IF NOT EXISTS cache_meta (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS favorites (
	item_id   TEXT PRIMARY KEY,
	item_type TEXT NOT NULL,
	item_name TEXT,
	added_at  TIMESTAMP
);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the local cache. Safe for concurrent use; writes are serialized
// by the single-connection pool.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// DefaultPath returns the default database location under the cache dir.
func DefaultPath() (string, error) {
	dir, err := consts.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, consts.Name+".db"), nil
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("cache opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// GUILDS
// =============================================================================

// SaveGuilds replaces the cached copies of the given guilds.
func (s *Store) SaveGuilds(guilds []gateway.Guild) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := now()
	for _, g := range guilds {
		data := g.Raw
		if data == nil {
			data, _ = json.Marshal(g)
		}
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO guilds (id, name, data, updated_at) VALUES (?, ?, ?, ?)`,
			g.ID, g.Name, string(data), ts,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Guilds returns the cached guilds sorted by name.
func (s *Store) Guilds() ([]gateway.Guild, error) {
	rows, err := s.db.Query(`SELECT data FROM guilds ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []gateway.Guild
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var g gateway.Guild
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			s.log.Warn("dropping undecodable cached guild", zap.Error(err))
			continue
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}

// =============================================================================
// CHANNELS
// =============================================================================

// SaveChannels replaces the cached channel list for one guild.
func (s *Store) SaveChannels(guildID string, channels []gateway.Channel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM channels WHERE guild_id = ?`, guildID); err != nil {
		return err
	}

	ts := now()
	for _, ch := range channels {
		data := ch.Raw
		if data == nil {
			data, _ = json.Marshal(ch)
		}
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO channels (id, guild_id, name, position, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			ch.ID, guildID, ch.Name, ch.Position, string(data), ts,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Channels returns the cached channels for a guild ordered by position.
func (s *Store) Channels(guildID string) ([]gateway.Channel, error) {
	rows, err := s.db.Query(`SELECT data FROM channels WHERE guild_id = ? ORDER BY position`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []gateway.Channel
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ch gateway.Channel
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			s.log.Warn("dropping undecodable cached channel", zap.Error(err))
			continue
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// =============================================================================
// DIRECT MESSAGES
// =============================================================================

// SaveDMs replaces the cached direct-message channel list.
func (s *Store) SaveDMs(dms []api.DMChannel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := now()
	for _, dm := range dms {
		data, _ := json.Marshal(dm)
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO dms (id, recipient_name, last_message_id, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
			dm.ID, dm.Name(), dm.LastMessageID, string(data), ts,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DMs returns cached DM channels, most recently active first.
func (s *Store) DMs() ([]api.DMChannel, error) {
	rows, err := s.db.Query(`SELECT data FROM dms ORDER BY last_message_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dms []api.DMChannel
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var dm api.DMChannel
		if err := json.Unmarshal([]byte(data), &dm); err != nil {
			s.log.Warn("dropping undecodable cached dm", zap.Error(err))
			continue
		}
		dms = append(dms, dm)
	}
	return dms, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser caches a user record for display-name lookups.
func (s *Store) SaveUser(u gateway.User) error {
	data, _ := json.Marshal(u)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO users (id, username, data, updated_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, string(data), now(),
	)
	return err
}

// User returns a cached user, or ErrNotFound.
func (s *Store) User(id string) (*gateway.User, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM users WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var u gateway.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// SaveMessages caches messages for a channel. Existing rows for the same
// message ids are replaced so edits overwrite the stale copy.
func (s *Store) SaveMessages(channelID string, messages []api.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := now()
	for _, msg := range messages {
		data := msg.Raw
		if data == nil {
			data, _ = json.Marshal(msg)
		}
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO messages (id, channel_id, data, updated_at) VALUES (?, ?, ?, ?)`,
			msg.ID, channelID, string(data), ts,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Messages returns up to limit cached messages for a channel in
// chronological order. Message ids are snowflakes, so id order is time
// order.
func (s *Store) Messages(channelID string, limit int) ([]api.Message, error) {
	rows, err := s.db.Query(
		`SELECT data FROM messages WHERE channel_id = ? ORDER BY length(id) DESC, id DESC LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []api.Message
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m api.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			s.log.Warn("dropping undecodable cached message", zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers want chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// =============================================================================
// CACHE METADATA
// =============================================================================

// SetMeta stores one metadata key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_meta (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, now(),
	)
	return err
}

// Meta returns one metadata value, or ErrNotFound.
func (s *Store) Meta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM cache_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Fresh reports whether the metadata key was written within maxAge.
func (s *Store) Fresh(key string, maxAge time.Duration) bool {
	var updated string
	err := s.db.QueryRow(`SELECT updated_at FROM cache_meta WHERE key = ?`, key).Scan(&updated)
	if err != nil {
		return false
	}
	ts, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return false
	}
	return time.Since(ts) < maxAge
}

// =============================================================================
// FAVORITES
// =============================================================================

// AddFavorite pins a guild or DM to the top of the sidebar.
func (s *Store) AddFavorite(itemID, itemType, itemName string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO favorites (item_id, item_type, item_name, added_at) VALUES (?, ?, ?, ?)`,
		itemID, itemType, itemName, now(),
	)
	return err
}

// RemoveFavorite unpins an item.
func (s *Store) RemoveFavorite(itemID string) error {
	_, err := s.db.Exec(`DELETE FROM favorites WHERE item_id = ?`, itemID)
	return err
}

// Favorites returns the set of pinned item ids.
func (s *Store) Favorites() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT item_id FROM favorites`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favs := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		favs[id] = true
	}
	return favs, rows.Err()
}

// IsFavorite reports whether an item is pinned.
func (s *Store) IsFavorite(itemID string) bool {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM favorites WHERE item_id = ?`, itemID).Scan(&n); err != nil {
		return false
	}
	return n > 0
}
