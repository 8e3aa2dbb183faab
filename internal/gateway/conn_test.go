// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// =============================================================================
// FAKE CONNECTION
// =============================================================================

type frame struct {
	messageType int
	data        []byte
}

var errFakeConnClosed = errors.New("fake conn closed")

// fakeConn is an in-memory frameConn. Reads block until a frame is queued or
// the conn is closed; writes are captured for assertions.
type fakeConn struct {
	frames chan frame
	writes chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan frame, 64),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) queue(messageType int, data []byte) {
	c.frames <- frame{messageType: messageType, data: data}
}

func (c *fakeConn) queueJSON(t *testing.T, p Payload) {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	c.queue(websocket.TextMessage, data)
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, errFakeConnClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeConnClosed
	default:
	}
	c.writes <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// nextWrite returns the next payload written to the socket, failing the test
// after a timeout.
func (c *fakeConn) nextWrite(t *testing.T) Payload {
	t.Helper()
	select {
	case data := <-c.writes:
		var p Payload
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("written frame is not a payload: %v", err)
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a socket write")
		return Payload{}
	}
}

// =============================================================================
// COMPRESSION HELPERS
// =============================================================================

// zlibStream compresses documents into one zlib stream with a sync flush
// after each, returning the per-document chunk boundaries. This mirrors how
// the server frames its stream.
func zlibStream(t *testing.T, docs ...[]byte) [][]byte {
	t.Helper()

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)

	var chunks [][]byte
	prev := 0
	for _, doc := range docs {
		if _, err := w.Write(doc); err != nil {
			t.Fatalf("compress: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		chunk := append([]byte(nil), buf.Bytes()[prev:]...)
		chunks = append(chunks, chunk)
		prev = buf.Len()
	}
	return chunks
}
