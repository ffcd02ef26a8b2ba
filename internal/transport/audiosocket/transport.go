// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package audiosocket

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/internal/session"
)

// readTimeout is the framed-TCP dialect's soft per-read timeout (§5):
// identical to the RTP acceptor's switchReadTimeout, so a read deadline
// always fires instead of blocking ReadMessage forever on an idle peer.
const readTimeout = 10 * time.Second

// IdentityFunc is invoked once with the parsed caller identity when an
// IDENTITY record arrives.
type IdentityFunc func(phone, name string)

// Transport adapts the framed-TCP dialect to Session's FrontendTransport
// interface, latching codec on the first AUDIO record and surfacing
// IDENTITY/HANGUP records through callbacks.
type Transport struct {
	conn   net.Conn
	reader *Reader
	writer *Writer

	OnIdentity IdentityFunc
}

func NewTransport(conn net.Conn) *Transport {
	return &Transport{
		conn:   conn,
		reader: NewReader(conn),
		writer: NewWriter(conn),
	}
}

// AwaitFirstAudio blocks until the first AUDIO record arrives, handling any
// IDENTITY records encountered first, and returns that frame so the caller
// can latch the Session's codec/frame size.
func (t *Transport) AwaitFirstAudio(ctx context.Context) (frame.Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := t.reader.ReadMessage()
		if err != nil {
			if _, ok := err.(*ErrProtocol); ok {
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() && ctx.Err() == nil {
				continue
			}
			return frame.Frame{}, err
		}

		switch msg.Type {
		case TypeIdentity:
			id := ParseIdentity(msg.Payload)
			if t.OnIdentity != nil {
				t.OnIdentity(id.Phone, id.Name)
			}
		case TypeHangup:
			return frame.Frame{}, fmt.Errorf("audiosocket: peer hung up before audio")
		case TypeAudio:
			return frame.New(t.reader.Codec(), msg.Payload, 20), nil
		}
	}
}

// ReadFrame reads the next AUDIO record; IDENTITY records encountered
// inline are dispatched via OnIdentity and skipped, HANGUP surfaces as an
// error the Session treats as peer-hangup teardown.
func (t *Transport) ReadFrame(ctx context.Context) (frame.Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := t.reader.ReadMessage()
		if err != nil {
			if _, ok := err.(*ErrProtocol); ok {
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() && ctx.Err() == nil {
				return frame.Frame{}, session.ErrSoftTimeout
			}
			return frame.Frame{}, err
		}

		switch msg.Type {
		case TypeIdentity:
			id := ParseIdentity(msg.Payload)
			if t.OnIdentity != nil {
				t.OnIdentity(id.Phone, id.Name)
			}
			continue
		case TypeHangup:
			return frame.Frame{}, fmt.Errorf("audiosocket: peer-hangup")
		default:
			return frame.New(t.reader.Codec(), msg.Payload, 20), nil
		}
	}
}

// WriteFrame emits one AUDIO record.
func (t *Transport) WriteFrame(f frame.Frame) error {
	return t.writer.WriteAudio(f.Payload)
}

// Close sends a zero-length HANGUP and closes the underlying connection.
// Idempotent: a second Close on an already-closed connection returns the
// network error, which callers ignore.
func (t *Transport) Close() error {
	_ = t.writer.WriteHangup()
	return t.conn.Close()
}
