// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the plain request/response REST client. None of these
// calls require protocol state; they complement the gateway session with
// history pagination and message send/edit/delete.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/morganforge/concord/internal/gateway"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the REST client.
type ClientError struct {
	Type    ErrorType
	Message string
	Status  int
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnauthorized
	ErrTypeForbidden
	ErrTypeNotFound
	ErrTypeRateLimited
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized, Message: "credential rejected"}
	ErrForbidden    = &ClientError{Type: ErrTypeForbidden, Message: "missing access"}
	ErrNotFound     = &ClientError{Type: ErrTypeNotFound, Message: "not found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the REST client.
type ClientConfig struct {
	// BaseURL is the API root (default: https://discord.com/api/v10).
	BaseURL string

	// Timeout for requests (default: 15s).
	Timeout time.Duration

	// UserAgent sent on every request. The platform expects a browser-like
	// agent from user-token clients.
	UserAgent string

	// RequestsPerSecond caps outbound call rate. The platform's global limit
	// is around fifty per second; staying under it avoids 429 churn.
	RequestsPerSecond float64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "https://discord.com/api/v10",
		Timeout:           15 * time.Second,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		RequestsPerSecond: 45,
	}
}

// =============================================================================
// TYPES
// =============================================================================

// Message is one chat message as returned by the history and send endpoints.
type Message struct {
	ID              string          `json:"id"`
	ChannelID       string          `json:"channel_id"`
	Author          gateway.User    `json:"author"`
	Content         string          `json:"content"`
	Timestamp       string          `json:"timestamp"`
	EditedTimestamp string          `json:"edited_timestamp"`
	Attachments     []Attachment    `json:"attachments"`
	ReferencedMsg   *Message        `json:"referenced_message"`
	Raw             json.RawMessage `json:"-"`
}

// UnmarshalJSON parses the modeled fields and retains the raw document.
func (m *Message) UnmarshalJSON(data []byte) error {
	type message Message
	var v message
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Message(v)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Attachment is a file attached to a message. Only the link surface is
// modeled; upload is out of scope.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// DMChannel is a direct-message channel from the self-channels endpoint.
type DMChannel struct {
	ID            string         `json:"id"`
	Type          int            `json:"type"`
	LastMessageID string         `json:"last_message_id"`
	Recipients    []gateway.User `json:"recipients"`
}

// Name returns a display name for the DM, derived from its recipients.
func (d DMChannel) Name() string {
	if len(d.Recipients) == 0 {
		return "unknown"
	}
	r := d.Recipients[0]
	if r.GlobalName != "" {
		return r.GlobalName
	}
	return r.Username
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the REST client. Safe for concurrent use.
type Client struct {
	config  *ClientConfig
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient creates a REST client with the given credential token.
func NewClient(token string, config *ClientConfig, log *zap.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		config:  config,
		token:   token,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), int(config.RequestsPerSecond)),
		log:     log,
	}
}

// do issues one request and decodes the JSON response into out (when out is
// non-nil and the response has a body).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &ClientError{Type: ErrTypeUnknown, Message: "failed to encode request", Cause: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.log.Warn("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return statusError(resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

func statusError(status int) *ClientError {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return &ClientError{Type: ErrTypeRateLimited, Message: "rate limited", Status: status}
	default:
		return &ClientError{
			Type:    ErrTypeUnknown,
			Message: "unexpected status " + strconv.Itoa(status),
			Status:  status,
		}
	}
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Me verifies the credential and returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*gateway.User, error) {
	var u gateway.User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Guilds returns the guilds the account belongs to.
func (c *Client) Guilds(ctx context.Context) ([]gateway.Guild, error) {
	var guilds []gateway.Guild
	if err := c.do(ctx, http.MethodGet, "/users/@me/guilds", nil, &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

// GuildChannels returns the full channel list for one guild. The gateway's
// bulk payload can omit channels; this is the authoritative fetch once a
// guild is expanded in the UI.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]gateway.Channel, error) {
	var channels []gateway.Channel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// DMChannels returns the account's direct-message channels.
func (c *Client) DMChannels(ctx context.Context) ([]DMChannel, error) {
	var dms []DMChannel
	if err := c.do(ctx, http.MethodGet, "/users/@me/channels", nil, &dms); err != nil {
		return nil, err
	}
	return dms, nil
}

// Messages returns up to limit messages from a channel, newest first. A
// non-empty before id pages backward through history.
func (c *Client) Messages(ctx context.Context, channelID, before string, limit int) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before != "" {
		q.Set("before", before)
	}

	path := "/channels/" + channelID + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a message to a channel, optionally replying to another.
func (c *Client) SendMessage(ctx context.Context, channelID, content, replyTo string) (*Message, error) {
	body := map[string]any{"content": content}
	if replyTo != "" {
		body["message_reference"] = map[string]string{"message_id": replyTo}
	}

	var msg Message
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) (*Message, error) {
	body := map[string]any{"content": content}

	var msg Message
	if err := c.do(ctx, http.MethodPatch, "/channels/"+channelID+"/messages/"+messageID, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil, nil)
}

// TriggerTyping shows the typing indicator in a channel.
func (c *Client) TriggerTyping(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodPost, "/channels/"+channelID+"/typing", nil, nil)
}
