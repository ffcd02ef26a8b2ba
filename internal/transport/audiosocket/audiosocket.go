// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audiosocket implements the switch frontend's length-framed TCP
// dialect: type:u8 | length:u16 BE | payload[length]. It mirrors the
// AudioSocket protocol Asterisk's chan_audiosocket speaks, generalized here
// to accept either delimited-ASCII or raw binary caller identity.
package audiosocket

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/rapidaai/voicebridge/internal/frame"
)

// MessageType identifies a record on the wire.
type MessageType byte

const (
	TypeHangup   MessageType = 0x00
	TypeIdentity MessageType = 0x01
	TypeAudio    MessageType = 0x10
)

// ErrTruncated is returned when the peer closes mid-record.
var ErrTruncated = errors.New("audiosocket: truncated stream")

// ErrProtocol marks an unknown, non-zero record type. The caller should log
// and continue reading rather than tear down the connection.
type ErrProtocol struct{ Type MessageType }

func (e *ErrProtocol) Error() string { return "audiosocket: unknown record type" }

// Message is one decoded record.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Reader decodes the record stream and latches the switch's audio codec on
// the first AUDIO record, per §4.2: irrevocable once set.
type Reader struct {
	r       io.Reader
	latched bool
	codec   frame.Codec
	frameSz int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// FrameBytes returns the latched frame size, or 0 before the first AUDIO
// record has been seen.
func (d *Reader) FrameBytes() int { return d.frameSz }

// Codec returns the latched codec, or CodecUnknown before latching.
func (d *Reader) Codec() frame.Codec { return d.codec }

// ReadMessage reads exactly one record, blocking until the header and full
// payload have arrived.
func (d *Reader) ReadMessage() (Message, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrTruncated
		}
		return Message{}, err
	}
	typ := MessageType(hdr[0])
	length := binary.BigEndian.Uint16(hdr[1:3])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(d.r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Message{}, ErrTruncated
			}
			return Message{}, err
		}
	}

	switch typ {
	case TypeHangup, TypeIdentity, TypeAudio:
	default:
		return Message{}, &ErrProtocol{Type: typ}
	}

	if typ == TypeAudio && !d.latched {
		d.latchCodec(length)
	}

	return Message{Type: typ, Payload: payload}, nil
}

func (d *Reader) latchCodec(length uint16) {
	d.latched = true
	d.frameSz = int(length)
	switch length {
	case 160:
		d.codec = frame.CodecMuLaw8
	case 320:
		d.codec = frame.CodecLinear16_8k
	default:
		d.codec = frame.CodecLinear16_8k
	}
}

// Identity is the caller information extracted from an IDENTITY record.
type Identity struct {
	Phone string
	Name  string
}

// ParseIdentity accepts either the delimited ASCII form
// "ast-<epoch>-<phone>[-<name>...]" or a raw 16-byte binary UUID, from
// which the phone number is the last 12 hex digits.
func ParseIdentity(payload []byte) Identity {
	if len(payload) == 16 && !isPrintableASCII(payload) {
		hexStr := hex.EncodeToString(payload)
		if len(hexStr) >= 12 {
			return Identity{Phone: hexStr[len(hexStr)-12:]}
		}
		return Identity{}
	}

	parts := strings.SplitN(string(payload), "-", 4)
	if len(parts) >= 3 && parts[0] == "ast" {
		id := Identity{Phone: parts[2]}
		if len(parts) == 4 {
			id.Name = parts[3]
		}
		return id
	}
	return Identity{}
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// Writer emits AUDIO and HANGUP records. WriteAudio writes the payload it is
// given as a single record; it does not split or pad it to the Session's
// latched frame size.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteAudio(payload []byte) error {
	return w.writeRecord(TypeAudio, payload)
}

func (w *Writer) WriteHangup() error {
	return w.writeRecord(TypeHangup, nil)
}

func (w *Writer) writeRecord(typ MessageType, payload []byte) error {
	var hdr [3]byte
	hdr[0] = byte(typ)
	binary.BigEndian.PutUint16(hdr[1:3], uint16(len(payload)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.w.Write(payload)
	return err
}
