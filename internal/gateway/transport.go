// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"compress/flate"
	"encoding/json"
	"errors"
	"io"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// TransportError represents a terminal failure of the frame transport. Any
// transport error ends the current session; there is no in-place recovery.
type TransportError struct {
	Type    TransportErrorType
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TransportErrorType categorizes transport failures.
type TransportErrorType int

const (
	TransportErrUnknown TransportErrorType = iota
	TransportErrSocket                     // read/write/close on the socket
	TransportErrInflate                    // compressed stream is corrupt
	TransportErrDecode                     // decompressed bytes are not valid JSON
)

// =============================================================================
// FRAME CONNECTION
// =============================================================================

// frameConn is the slice of *websocket.Conn the transport needs. Tests
// substitute an in-memory implementation.
type frameConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// =============================================================================
// TRANSPORT
// =============================================================================

// zlib-stream framing: every complete message ends with an empty stored
// deflate block, the Z_SYNC_FLUSH marker. Until the marker arrives the
// accumulated bytes are an incomplete message.
var syncFlushSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// transport turns the socket's frame stream into a sequence of decoded
// payloads. It owns one inflater whose 32 KiB sliding window persists for the
// lifetime of the connection; resetting it between frames would corrupt every
// message that back-references earlier output.
type transport struct {
	conn frameConn
	log  *zap.Logger

	// Incremental decompression state.
	pending bytes.Buffer  // compressed bytes of the in-progress message
	inflate io.ReadCloser // flate reader, reused via flate.Resetter
	window  []byte        // last 32 KiB of decompressed output
	started bool          // zlib header consumed
}

func newTransport(conn frameConn, log *zap.Logger) *transport {
	return &transport{conn: conn, log: log}
}

// ReadPayload blocks until the next complete payload is decoded or the
// connection fails. Compressed messages spanning several socket frames are
// reassembled silently.
func (t *transport) ReadPayload() (Payload, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return Payload{}, &TransportError{
				Type:    TransportErrSocket,
				Message: "gateway socket closed",
				Cause:   err,
			}
		}

		var doc []byte
		switch messageType {
		case websocket.TextMessage:
			// Uncompressed control payload, parsed directly.
			doc = data

		case websocket.BinaryMessage:
			doc, err = t.inflateFrame(data)
			if err != nil {
				return Payload{}, err
			}
			if doc == nil {
				// Partial message; more frames needed.
				continue
			}

		default:
			t.log.Debug("ignoring non-data frame", zap.Int("type", messageType))
			continue
		}

		var p Payload
		if err := json.Unmarshal(doc, &p); err != nil {
			return Payload{}, &TransportError{
				Type:    TransportErrDecode,
				Message: "malformed gateway payload",
				Cause:   err,
			}
		}
		return p, nil
	}
}

// inflateFrame feeds one binary frame into the decompression context. It
// returns nil bytes with a nil error when the message is still incomplete.
func (t *transport) inflateFrame(frame []byte) ([]byte, error) {
	t.pending.Write(frame)
	if !bytes.HasSuffix(t.pending.Bytes(), syncFlushSuffix) {
		return nil, nil
	}

	chunk := append([]byte(nil), t.pending.Bytes()...)
	t.pending.Reset()

	if !t.started {
		// The first message opens with the 2-byte zlib header.
		if len(chunk) < 2 {
			return nil, &TransportError{
				Type:    TransportErrInflate,
				Message: "compressed stream truncated before zlib header",
			}
		}
		chunk = chunk[2:]
		t.started = true
	}

	// The inflater is rewound onto this chunk with the accumulated window as
	// its dictionary, which is exactly the state a continuously-fed inflater
	// would be in. Sync flush guarantees chunks start on a block boundary.
	if t.inflate == nil {
		t.inflate = flate.NewReaderDict(bytes.NewReader(chunk), t.window)
	} else {
		resetter := t.inflate.(flate.Resetter)
		if err := resetter.Reset(bytes.NewReader(chunk), t.window); err != nil {
			return nil, &TransportError{
				Type:    TransportErrInflate,
				Message: "failed to reset inflater",
				Cause:   err,
			}
		}
	}

	out, err := io.ReadAll(t.inflate)
	// The chunk ends mid-stream at the sync-flush marker, so the inflater
	// reports an unexpected EOF after draining all real output.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, &TransportError{
			Type:    TransportErrInflate,
			Message: "compressed stream corrupt",
			Cause:   err,
		}
	}

	t.extendWindow(out)
	return out, nil
}

// extendWindow appends decompressed output to the dictionary, keeping the
// last 32 KiB.
func (t *transport) extendWindow(out []byte) {
	const windowSize = 32 * 1024

	t.window = append(t.window, out...)
	if len(t.window) > windowSize {
		trimmed := make([]byte, windowSize)
		copy(trimmed, t.window[len(t.window)-windowSize:])
		t.window = trimmed
	}
}
