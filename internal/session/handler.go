// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rapidaai/voicebridge/internal/aiclient"
	"github.com/rapidaai/voicebridge/internal/frame"
)

// The methods below implement aiclient.Handler; the ai-reader task invokes
// them synchronously from its single read loop (§3 invariant 5: only the
// ai-reader writes outbound Frames into audio_out_queue).

func (s *Session) OnSessionReady(resumed bool) {
	s.mu.Lock()
	s.aiConfigured = true
	s.mu.Unlock()
	s.logger.Infow("ai session ready", "resumed", resumed)
	if resumed {
		// The AI has just confirmed the reconnected leg is live: a later
		// transient blip should get the full backoff budget again rather
		// than inherit whatever attempt count the prior outage left behind.
		s.reconnector.Reset()
	}
}

func (s *Session) OnAudioDelta(pcm []byte) {
	s.enqueueOutbound(pcm, false)
}

func (s *Session) OnAddressTTS(pcm []byte) {
	s.enqueueOutbound(pcm, true)
}

func (s *Session) enqueueOutbound(pcm []byte, priority bool) {
	s.mu.Lock()
	s.lastAIActivity = time.Now()
	s.stats.PacketsSent++
	s.stats.BytesSent += int64(len(pcm))
	s.mu.Unlock()

	aiFrame := frame.New(frame.CodecLinear16_16k, pcm, 20)
	out := s.outboundPipe.Process(aiFrame)
	out.Priority = priority
	if priority {
		s.queue.PushPriority(out)
	} else {
		s.queue.Push(out)
	}
}

func (s *Session) OnTranscript(role, text string) {
	s.logger.Debugw("transcript", "role", role, "text", text)
}

// OnUserSpeaking implements barge-in (§4.5, §8 scenario 6): on a
// speech-start edge it cancels the AI's in-flight response and flushes the
// non-priority portion of the outbound queue, leaving any queued
// address_tts splices intact.
func (s *Session) OnUserSpeaking(speaking bool) {
	if !speaking {
		return
	}
	if err := s.ai.SendCancelResponse(); err != nil {
		s.logger.Warnw("send cancel_response failed", "error", err)
	}
	s.queue.FlushNonPriority()
}

// OnToolCall forwards the call to the injected handler and writes the
// result back before triggering any engine-level side effect for the three
// well-known tool names (§4.5, §9 ordering decision: result first).
func (s *Session) OnToolCall(callID, name string, arguments json.RawMessage) {
	go func() {
		result, err := s.toolHandler.Handle(context.Background(), name, arguments)
		if err != nil {
			result, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		if sendErr := s.ai.SendToolResult(callID, result); sendErr != nil {
			s.logger.Warnw("send tool_result failed", "error", sendErr)
			return
		}

		switch {
		case name == aiclient.ToolEndCall:
			go func() {
				time.Sleep(500 * time.Millisecond)
				s.mu.Lock()
				s.callFormallyEnded = true
				s.mu.Unlock()
				s.setEndReason(ReasonCompleted)
				s.Cancel()
			}()
		case name == aiclient.ToolTransferToOperator:
			s.mu.Lock()
			s.callFormallyEnded = true
			s.mu.Unlock()
			s.setEndReason(ReasonTransferred)
			s.Cancel()
		case strings.HasPrefix(name, aiclient.ToolBookPrefix):
			// No engine-level effect.
		}
	}()
}

// OnSessionHandoff closes the current AI socket so runAILoop's read loop
// unblocks and reconnects immediately with the new token, uncounted
// against the reconnect attempt budget (§4.6, §8 scenario 5).
func (s *Session) OnSessionHandoff(token string) {
	s.mu.Lock()
	s.resumeToken = token
	s.handoffPending = true
	s.mu.Unlock()
	s.logger.Infow("ai requested handoff", "call_id", s.CallID)
	_ = s.ai.Close()
}

func (s *Session) OnCallEnded() {
	s.mu.Lock()
	s.callFormallyEnded = true
	s.mu.Unlock()
	s.Cancel()
}

func (s *Session) OnError(message string, retrying bool) {
	s.logger.Warnw("ai error", "message", message, "retrying", retrying)
}
