// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package aiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/voicebridge/pkg/commons"
)

// pingInterval/pingTimeout sit inside §5's "AI ping interval ≈5-20s with
// ping timeout ≈10-20s" window.
const (
	pingInterval = 15 * time.Second
	pingTimeout  = 15 * time.Second
)

// Handler receives the AI's inbound events. Every method is invoked from
// the client's single read loop, so implementations must not block for
// long — hand off to the Session's own concurrency if needed.
type Handler interface {
	OnSessionReady(resumed bool)
	OnAudioDelta(pcm []byte)
	OnAddressTTS(pcm []byte)
	OnTranscript(role, text string)
	OnUserSpeaking(speaking bool)
	OnToolCall(callID, name string, arguments json.RawMessage)
	OnSessionHandoff(token string)
	OnCallEnded()
	OnError(message string, retrying bool)
}

// Client is one AI WebSocket session. BinaryAudio toggles whether audio is
// sent/received as raw binary frames or JSON-with-base64 (§4.5); either way
// the decoded PCM payload is byte-identical.
type Client struct {
	url         string
	apiKey      string
	binaryAudio bool
	logger      commons.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewClient(url, apiKey string, binaryAudio bool, logger commons.Logger) *Client {
	return &Client{url: url, apiKey: apiKey, binaryAudio: binaryAudio, logger: logger}
}

// Connect dials the AI WebSocket with a bounded handshake timeout and
// configures read-limit and pong handling, mirroring the platform's
// websocket executor dial pattern.
func (c *Client) Connect(ctx context.Context) error {
	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		return fmt.Errorf("aiclient: dial: %w", err)
	}

	conn.SetReadLimit(10 * 1024 * 1024)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingTimeout))
	})
	if err := conn.SetReadDeadline(time.Now().Add(pingTimeout)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("aiclient: set initial read deadline: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	return nil
}

// Close sends a normal-closure control frame and releases the socket.
// Idempotent: closing an already-closed or never-connected client is a
// no-op.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SendInit announces the call, optionally resuming a prior session.
func (c *Client) SendInit(d InitData) error {
	return c.send(TypeInit, d)
}

// SendUpdatePhone forwards caller identity discovered after init.
func (c *Client) SendUpdatePhone(d UpdatePhoneData) error {
	return c.send(TypeUpdatePhone, d)
}

// SendAudio pushes one inbound PCM frame, binary or base64-JSON per the
// client's configured toggle.
func (c *Client) SendAudio(pcm []byte) error {
	if c.binaryAudio {
		return c.sendBinary(pcm)
	}
	return c.send(TypeAudio, AudioData{Audio: base64.StdEncoding.EncodeToString(pcm)})
}

// SendCancelResponse requests the AI cancel its in-flight response
// (barge-in).
func (c *Client) SendCancelResponse() error {
	return c.send(TypeCancelResponse, nil)
}

// SendToolResult replies to a tool_call. Must be sent, and observed sent,
// before any subsequent response-trigger message — callers are expected to
// await this call's return before continuing (§9 ordering decision).
func (c *Client) SendToolResult(callID string, result json.RawMessage) error {
	return c.send(TypeToolResult, ToolResultData{CallID: callID, Result: result})
}

func (c *Client) send(typ MessageType, data interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("aiclient: not connected")
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("aiclient: marshal %s: %w", typ, err)
		}
		raw = b
	}

	env := Envelope{Type: typ, Data: raw}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("aiclient: marshal envelope: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) sendBinary(pcm []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("aiclient: not connected")
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// pingLoop actively pings the AI on pingInterval so an idle or stalled
// connection is detected instead of blocking ReadMessage forever: the
// teacher's websocket_executor only answers pings the peer sends, which
// never happens if the peer itself has gone silent.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn := c.conn
			if conn != nil {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					c.logger.Warnw("aiclient: ping failed", "error", err)
				}
			}
			c.writeMu.Unlock()
		}
	}
}

// ReceiveLoop reads until ctx is cancelled or the socket closes, dispatching
// each message to handler. It returns nil on a clean close, and a non-nil
// error for anything the reconnect supervisor should act on.
func (c *Client) ReceiveLoop(ctx context.Context, handler Handler) error {
	pingCtx, stopPing := context.WithCancel(ctx)
	go c.pingLoop(pingCtx)
	defer stopPing()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()
		if conn == nil {
			return fmt.Errorf("aiclient: not connected")
		}

		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("aiclient: read: %w", err)
		}

		if msgType == websocket.BinaryMessage {
			handler.OnAudioDelta(raw)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warnw("aiclient: malformed envelope", "error", err)
			continue
		}
		c.dispatch(env, handler)
	}
}

func (c *Client) dispatch(env Envelope, handler Handler) {
	switch env.Type {
	case TypeSessionReady:
		handler.OnSessionReady(false)
	case TypeSessionResumed:
		handler.OnSessionReady(true)
	case TypeAudioDelta:
		var d AudioDeltaData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad audio_delta", "error", err)
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(d.Delta)
		if err != nil {
			c.logger.Warnw("aiclient: bad audio_delta base64", "error", err)
			return
		}
		handler.OnAudioDelta(pcm)
	case TypeAddressTTS:
		var d AudioDeltaData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad address_tts", "error", err)
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(d.Delta)
		if err != nil {
			c.logger.Warnw("aiclient: bad address_tts base64", "error", err)
			return
		}
		handler.OnAddressTTS(pcm)
	case TypeTranscript:
		var d TranscriptData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad transcript", "error", err)
			return
		}
		handler.OnTranscript(d.Role, d.Text)
	case TypeUserSpeaking:
		var d UserSpeakingData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad user_speaking", "error", err)
			return
		}
		handler.OnUserSpeaking(d.Speaking)
	case TypeToolCall:
		var d ToolCallData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad tool_call", "error", err)
			return
		}
		handler.OnToolCall(d.CallID, d.Name, d.Arguments)
	case TypeSessionHandoff:
		var d SessionHandoffData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad session_handoff", "error", err)
			return
		}
		handler.OnSessionHandoff(d.Token)
	case TypeCallEnded:
		handler.OnCallEnded()
	case TypeError:
		var d ErrorData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warnw("aiclient: bad error envelope", "error", err)
			return
		}
		handler.OnError(d.Message, d.Retrying)
	default:
		c.logger.Warnw("aiclient: unknown message type, dropping", "type", env.Type)
	}
}
