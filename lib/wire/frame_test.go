// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/warden-foundation/warden/lib/codec"
)

// roundTrip writes msg as a frame and reads it back with the given
// limit, failing the test on any error.
func roundTrip(t *testing.T, msg Message, limit uint32) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	decoded, err := ReadMessage(&buf, limit)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return decoded
}

func TestRequestRoundTrip(t *testing.T) {
	decoded := roundTrip(t, &Request{Mode: ModeRun, Action: "restart-tor"}, MaxRequestFrame)
	request, ok := decoded.(*Request)
	if !ok {
		t.Fatalf("decoded type = %T, want *Request", decoded)
	}
	if request.Mode != ModeRun || request.Action != "restart-tor" {
		t.Errorf("decoded request = %+v", request)
	}
}

func TestControlRoundTrip(t *testing.T) {
	decoded := roundTrip(t, &Control{Op: OpCreate, TargetUID: 1000}, MaxRequestFrame)
	control, ok := decoded.(*Control)
	if !ok {
		t.Fatalf("decoded type = %T, want *Control", decoded)
	}
	if control.Op != OpCreate || control.TargetUID != 1000 {
		t.Errorf("decoded control = %+v", control)
	}
}

func TestResponseFramesRoundTrip(t *testing.T) {
	messages := []Message{
		&Status{Code: StatusPermitted},
		&Status{Code: StatusNotEligible},
		&Output{Stream: StreamStderr, Data: []byte("partial line")},
		&Result{ExitCode: 255},
	}
	var buf bytes.Buffer
	for _, msg := range messages {
		if err := WriteMessage(&buf, msg); err != nil {
			t.Fatalf("WriteMessage(%T): %v", msg, err)
		}
	}
	for i, want := range messages {
		got, err := ReadMessage(&buf, MaxFrame)
		if err != nil {
			t.Fatalf("ReadMessage frame %d: %v", i, err)
		}
		switch want := want.(type) {
		case *Status:
			status := got.(*Status)
			if status.Code != want.Code {
				t.Errorf("frame %d: code = %q, want %q", i, status.Code, want.Code)
			}
		case *Output:
			output := got.(*Output)
			if output.Stream != want.Stream || !bytes.Equal(output.Data, want.Data) {
				t.Errorf("frame %d: output = %+v", i, output)
			}
		case *Result:
			result := got.(*Result)
			if result.ExitCode != want.ExitCode {
				t.Errorf("frame %d: exit code = %d, want %d", i, result.ExitCode, want.ExitCode)
			}
		}
	}
}

func TestReadMessageEOF(t *testing.T) {
	if _, err := ReadMessage(bytes.NewReader(nil), MaxFrame); err != io.EOF {
		t.Fatalf("ReadMessage on empty reader: err = %v, want io.EOF", err)
	}
}

func TestReadMessageOversized(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxRequestFrame+1)
	buf.Write(header[:])

	_, err := ReadMessage(&buf, MaxRequestFrame)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, &Status{Code: StatusOK}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-1]

	if _, err := ReadMessage(bytes.NewReader(truncated), MaxFrame); err == nil {
		t.Fatal("ReadMessage on truncated frame succeeded")
	}
}

// writeRawFrame frames arbitrary pre-encoded CBOR for malformed-input
// tests.
func writeRawFrame(t *testing.T, payload []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	buf.Write(header[:])
	buf.Write(payload)
	return &buf
}

func TestReadMessageMalformed(t *testing.T) {
	encode := func(v any) []byte {
		data, err := codec.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return data
	}
	requestPayload := func(mode Mode, action string) []byte {
		return encode(Request{Mode: mode, Action: action})
	}

	cases := []struct {
		name  string
		frame []byte
	}{
		{"not CBOR", []byte("SIGNAL restart-tor")},
		{"unknown type tag", encode(envelope{Type: "signal", Payload: encode(map[string]string{})})},
		{"invalid mode", encode(envelope{Type: TypeRequest, Payload: requestPayload("execute", "x")})},
		{"missing action", encode(envelope{Type: TypeRequest, Payload: requestPayload(ModeRun, "")})},
		{"invalid op", encode(envelope{Type: TypeControl, Payload: encode(Control{Op: "delete"})})},
		{"invalid status code", encode(envelope{Type: TypeStatus, Payload: encode(Status{Code: "maybe"})})},
		{"invalid stream tag", encode(envelope{Type: TypeOutput, Payload: encode(Output{Stream: "stdin"})})},
		{"exit code out of range", encode(envelope{Type: TypeResult, Payload: encode(map[string]int{"exit_code": 300})})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadMessage(writeRawFrame(t, tc.frame), MaxFrame)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}
