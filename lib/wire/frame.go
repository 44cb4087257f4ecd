// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/warden-foundation/warden/lib/codec"
)

const (
	// MaxRequestFrame bounds client→daemon frames. A request names one
	// action or one target uid; 4 KiB is generous and keeps a hostile
	// client from making the daemon buffer arbitrary input.
	MaxRequestFrame = 4 * 1024

	// MaxFrame bounds daemon→client frames. Output chunks are small
	// (see cmd/warden-daemon), but the client should tolerate a daemon
	// that batches more aggressively.
	MaxFrame = 1024 * 1024
)

// ErrFrameTooLarge is returned by ReadMessage when the frame header
// announces a payload beyond the caller's limit. The connection is
// unusable afterwards: the oversized payload is still in the pipe.
var ErrFrameTooLarge = errors.New("wire: frame exceeds size limit")

// ErrMalformed is returned (wrapped) by ReadMessage for any frame that
// is structurally invalid: undecodable CBOR, an unknown type tag, or a
// payload that fails validation for its tag.
var ErrMalformed = errors.New("wire: malformed frame")

// envelope is the outer structure of every frame payload: a type tag
// and the tagged message, pre-encoded so the tag can be inspected
// before committing to a concrete type.
type envelope struct {
	Type    string           `cbor:"type"`
	Payload codec.RawMessage `cbor:"payload"`
}

// WriteMessage encodes msg into an envelope and writes it as one
// length-delimited frame.
func WriteMessage(w io.Writer, msg Message) error {
	payload, err := codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", msg.frameType(), err)
	}
	frame, err := codec.Marshal(envelope{Type: msg.frameType(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", msg.frameType(), err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadMessage reads one frame from r and decodes it into its concrete
// message type. limit bounds the announced payload length; frames
// larger than that fail with ErrFrameTooLarge without reading the
// payload. Any structural problem in the payload fails with an error
// wrapping ErrMalformed. io.EOF is returned unwrapped when the
// connection closes cleanly before the header.
func ReadMessage(r io.Reader, limit uint32) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, length, limit)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return decode(frame)
}

// decode unmarshals a frame payload into its concrete message type.
// The type tag is dispatched against the closed set; anything else is
// malformed by definition.
func decode(frame []byte) (Message, error) {
	var outer envelope
	if err := codec.Unmarshal(frame, &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	switch outer.Type {
	case TypeRequest:
		msg = &Request{}
	case TypeControl:
		msg = &Control{}
	case TypeStatus:
		msg = &Status{}
	case TypeOutput:
		msg = &Output{}
	case TypeResult:
		msg = &Result{}
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrMalformed, outer.Type)
	}

	if err := codec.Unmarshal(outer.Payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, outer.Type, err)
	}
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, outer.Type, err)
	}
	return msg, nil
}
