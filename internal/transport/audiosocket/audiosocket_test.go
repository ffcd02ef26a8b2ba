// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package audiosocket

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecord(buf *bytes.Buffer, typ MessageType, payload []byte) {
	buf.WriteByte(byte(typ))
	buf.WriteByte(byte(len(payload) >> 8))
	buf.WriteByte(byte(len(payload)))
	buf.Write(payload)
}

func TestReaderLatchesMuLaw(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(&buf, TypeAudio, make([]byte, 160))
	r := NewReader(&buf)

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, TypeAudio, msg.Type)
	assert.Equal(t, frame.CodecMuLaw8, r.Codec())
	assert.Equal(t, 160, r.FrameBytes())
}

func TestReaderLatchesLinear16(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(&buf, TypeAudio, make([]byte, 320))
	r := NewReader(&buf)

	_, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, frame.CodecLinear16_8k, r.Codec())
	assert.Equal(t, 320, r.FrameBytes())
}

func TestReaderLatchIsIrrevocable(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(&buf, TypeAudio, make([]byte, 160))
	writeRecord(&buf, TypeAudio, make([]byte, 320))
	r := NewReader(&buf)

	_, err := r.ReadMessage()
	require.NoError(t, err)
	_, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, frame.CodecMuLaw8, r.Codec())
	assert.Equal(t, 160, r.FrameBytes())
}

func TestReaderTruncated(t *testing.T) {
	buf := bytes.NewBuffer([]byte{byte(TypeAudio), 0x00})
	r := NewReader(buf)
	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReaderUnknownType(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(&buf, 0x42, nil)
	r := NewReader(&buf)
	_, err := r.ReadMessage()
	var protoErr *ErrProtocol
	assert.ErrorAs(t, err, &protoErr)
}

func TestParseIdentityDelimited(t *testing.T) {
	id := ParseIdentity([]byte("ast-1700000000000-447911223344"))
	assert.Equal(t, "447911223344", id.Phone)
}

func TestParseIdentityDelimitedWithName(t *testing.T) {
	id := ParseIdentity([]byte("ast-1700000000000-447911223344-Jane"))
	assert.Equal(t, "447911223344", id.Phone)
	assert.Equal(t, "Jane", id.Name)
}

func TestParseIdentityBinaryUUID(t *testing.T) {
	raw, err := hex.DecodeString("0123456789abcdef0000447911223344")
	require.NoError(t, err)
	raw = raw[:16]
	id := ParseIdentity(raw)
	assert.Len(t, id.Phone, 12)
}

func TestWriterEmitsExactFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteAudio(make([]byte, 160)))
	require.NoError(t, w.WriteHangup())

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, TypeAudio, msg.Type)
	assert.Len(t, msg.Payload, 160)

	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, TypeHangup, msg.Type)
	assert.Empty(t, msg.Payload)
}
