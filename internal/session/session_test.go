// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/voicebridge/internal/aiclient"
	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// fakeFrontend is an in-memory FrontendTransport double standing in for a
// real switch socket, following the recording-fake style used by the
// jitter and aiclient packages' own tests.
type fakeFrontend struct {
	in      chan frame.Frame
	closeCh chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []frame.Frame
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{in: make(chan frame.Frame, 16), closeCh: make(chan struct{})}
}

func (f *fakeFrontend) ReadFrame(ctx context.Context) (frame.Frame, error) {
	select {
	case fr, ok := <-f.in:
		if !ok {
			return frame.Frame{}, fmt.Errorf("fake frontend: closed")
		}
		return fr, nil
	case <-f.closeCh:
		return frame.Frame{}, fmt.Errorf("fake frontend: closed")
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

func (f *fakeFrontend) WriteFrame(fr frame.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, fr)
	return nil
}

func (f *fakeFrontend) Close() error {
	f.once.Do(func() { close(f.closeCh) })
	return nil
}

func (f *fakeFrontend) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// fakeToolHandler records the calls it receives and returns a canned
// result, mirroring the opaque ToolHandler contract an embedder supplies.
type fakeToolHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *fakeToolHandler) Handle(ctx context.Context, name string, arguments []byte) ([]byte, error) {
	h.mu.Lock()
	h.calls = append(h.calls, name)
	h.mu.Unlock()
	return json.Marshal(map[string]bool{"ok": true})
}

// fakeAIServer is a minimal AI peer speaking the §4.5 envelope vocabulary
// over a real WebSocket, so Session.runAILoop exercises its actual Connect
// and ReceiveLoop path rather than a hand-rolled substitute for *aiclient.Client.
type fakeAIServer struct {
	srv *httptest.Server
	url string

	onInit func(conn *websocket.Conn)
}

func newFakeAIServer(t *testing.T, onInit func(conn *websocket.Conn)) *fakeAIServer {
	upgrader := websocket.Upgrader{}
	s := &fakeAIServer{onInit: onInit}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env aiclient.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Type == aiclient.TypeInit && s.onInit != nil {
				s.onInit(conn)
			}
		}
	})
	s.srv = httptest.NewServer(handler)
	s.url = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

func (s *fakeAIServer) Close() { s.srv.Close() }

// sendEnvelope runs from the fakeAIServer's per-connection goroutine, not
// the test goroutine, so it reports failures via assert rather than
// require (require's FailNow is only safe to call from the test goroutine).
func sendEnvelope(t *testing.T, conn *websocket.Conn, typ aiclient.MessageType, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if !assert.NoError(t, err) {
			return
		}
		raw = b
	}
	payload, err := json.Marshal(aiclient.Envelope{Type: typ, Data: raw})
	if !assert.NoError(t, err) {
		return
	}
	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func testConfig(wsURL string) *config.Config {
	return &config.Config{
		AI:        config.AIConfig{WSURL: wsURL, APIKey: "test"},
		Jitter: config.JitterConfig{BufferMS: 200, KeepaliveMS: 200},
		DSP: config.DSPConfig{
			VolumeBoost:        2.5,
			PreEmphasisCoeff:   0.95,
			NoiseGateThreshold: 25.0,
			TargetRMS:          2500.0,
			WarmupSilenceMS:    0,
		},
		Reconnect: config.ReconnectConfig{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond},
		VAD:       config.VADConfig{},
	}
}

func newTestSession(t *testing.T, wsURL string, toolHandler ToolHandler) (*Session, *fakeFrontend) {
	fe := newFakeFrontend()
	s := New(testConfig(wsURL), commons.NewTestLogger(), "call-1", fe, frame.CodecLinear16_8k, 320, toolHandler)
	return s, fe
}

// TestSessionRunFanOutAndTeardown exercises the three-task fan-out: pacer,
// frontend-reader and ai-reader all start from one Run call, a frontend
// frame flows through without the reader getting stuck, and OnCallEnded
// cancels the whole group and returns a terminal reason instead of hanging.
func TestSessionRunFanOutAndTeardown(t *testing.T) {
	ai := newFakeAIServer(t, func(conn *websocket.Conn) {
		sendEnvelope(t, conn, aiclient.TypeSessionReady, nil)
	})
	defer ai.Close()

	s, fe := newTestSession(t, ai.url, &fakeToolHandler{})

	done := make(chan EndReason, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Give the AI loop a moment to connect and reach session_ready, then
	// push one inbound frame through the frontend reader.
	time.Sleep(50 * time.Millisecond)
	fe.in <- frame.New(frame.CodecLinear16_8k, make([]byte, 320), 20)

	time.Sleep(50 * time.Millisecond)
	s.OnCallEnded()

	select {
	case reason := <-done:
		assert.Equal(t, ReasonCompleted, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after OnCallEnded")
	}
}

// TestSessionCancelClosesSocketsAndIsIdempotent targets the defect the
// maintainer flagged directly: Cancel must force-close both sockets, not
// just cancel the context, and must be safe to call more than once.
func TestSessionCancelClosesSocketsAndIsIdempotent(t *testing.T) {
	ai := newFakeAIServer(t, func(conn *websocket.Conn) {
		sendEnvelope(t, conn, aiclient.TypeSessionReady, nil)
	})
	defer ai.Close()

	s, fe := newTestSession(t, ai.url, &fakeToolHandler{})

	done := make(chan EndReason, 1)
	go func() { done <- s.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	s.Cancel()
	s.Cancel() // must not panic or block on a second call

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	select {
	case <-fe.closeCh:
	default:
		t.Fatal("Cancel did not close the frontend transport")
	}
}

// TestOnUserSpeakingFlushesNonPriorityQueue covers the barge-in callback:
// a speech-start edge must flush queued non-priority audio.
func TestOnUserSpeakingFlushesNonPriorityQueue(t *testing.T) {
	s, _ := newTestSession(t, "ws://unused", &fakeToolHandler{})
	s.ai = aiclient.NewClient("ws://unused", "", false, commons.NewTestLogger())

	s.queue.Push(frame.New(frame.CodecLinear16_16k, make([]byte, 640), 20))
	s.queue.Push(frame.New(frame.CodecLinear16_16k, make([]byte, 640), 20))

	s.OnUserSpeaking(true)

	_, ok := s.queue.Pop()
	assert.False(t, ok, "non-priority frames should have been flushed on barge-in")
}

// TestOnToolCallEndCallSetsReasonAndCancels covers the end_call
// engine-level side effect: the result must be sent before the Session is
// torn down, and the terminal reason must be "completed".
func TestOnToolCallEndCallSetsReasonAndCancels(t *testing.T) {
	ready := make(chan struct{})
	ai := newFakeAIServer(t, func(conn *websocket.Conn) {
		sendEnvelope(t, conn, aiclient.TypeSessionReady, nil)
		close(ready)
	})
	defer ai.Close()

	handler := &fakeToolHandler{}
	s, _ := newTestSession(t, ai.url, handler)

	done := make(chan EndReason, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ai session never became ready")
	}

	s.OnToolCall("call-1", aiclient.ToolEndCall, nil)

	select {
	case reason := <-done:
		assert.Equal(t, ReasonCompleted, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after end_call tool result")
	}

	handler.mu.Lock()
	assert.Contains(t, handler.calls, aiclient.ToolEndCall)
	handler.mu.Unlock()
}

// TestOnSessionHandoffReconnectsUncounted covers the handoff callback: it
// must close the current socket (unblocking the ai-reader) and trigger an
// uncounted reconnect rather than a failure.
func TestOnSessionHandoffReconnectsUncounted(t *testing.T) {
	var once sync.Once
	ai := newFakeAIServer(t, func(conn *websocket.Conn) {
		once.Do(func() {
			sendEnvelope(t, conn, aiclient.TypeSessionHandoff, aiclient.SessionHandoffData{Token: "resume-tok"})
		})
	})
	defer ai.Close()

	s, _ := newTestSession(t, ai.url, &fakeToolHandler{})

	done := make(chan EndReason, 1)
	go func() { done <- s.Run(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	s.mu.Lock()
	token := s.resumeToken
	s.mu.Unlock()
	assert.Equal(t, "resume-tok", token)

	s.OnCallEnded()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after handoff + call end")
	}
}
