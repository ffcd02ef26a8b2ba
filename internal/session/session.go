// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package session owns one call's lifecycle: the three cooperating tasks
// (frontend-reader, ai-reader, pacer), the cancel signal, and idempotent
// teardown (§4.7). It is the generalization of the platform's per-channel
// streamer lifecycle to the bridge's switch<->AI data flow.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/voicebridge/internal/aiclient"
	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/internal/dsp"
	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/internal/jitter"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// EndReason labels why a Session tore down, emitted as the final
// call_ended metric (§4.7).
type EndReason string

const (
	ReasonCompleted  EndReason = "completed"
	ReasonFailed     EndReason = "failed"
	ReasonTransferred EndReason = "transferred"
	ReasonHandedOff  EndReason = "handed-off"
)

// Stats mirrors §3's Session.stats field.
type Stats struct {
	BytesSent         int64
	BytesReceived     int64
	PacketsSent       int64
	PacketsReceived   int64
	Underruns         int64
	ReconnectAttempts int64
}

// ErrSoftTimeout is returned by FrontendTransport.ReadFrame when a read
// deadline expired with no peer activity. Per §5, this must not terminate
// the Session — the frontend-reader loops back and the pacer keeps
// emitting keep-alive silence.
var ErrSoftTimeout = fmt.Errorf("session: soft read timeout")

// FrontendTransport abstracts the switch-side frame source/sink so Session
// doesn't care whether the call arrived over the framed-TCP or RTP dialect.
type FrontendTransport interface {
	ReadFrame(ctx context.Context) (frame.Frame, error)
	WriteFrame(f frame.Frame) error
	Close() error
}

// ToolHandler executes AI-initiated tool calls opaquely and returns the
// JSON result to relay back as tool_result.
type ToolHandler interface {
	Handle(ctx context.Context, name string, arguments []byte) ([]byte, error)
}

// Session is one active call. Exactly one of each task below runs at a
// time per Session; only the frontend-reader writes inbound Frames and
// only the ai-reader writes outbound Frames into the queue (§3 invariant 5).
type Session struct {
	CallID      string
	CallerPhone string
	CallerName  string

	cfg         *config.Config
	logger      commons.Logger
	frontend    FrontendTransport
	ai          *aiclient.Client
	reconnector *aiclient.Supervisor
	toolHandler ToolHandler

	switchCodec frame.Codec
	frameBytes  int

	inboundPipe  *dsp.InboundPipeline
	outboundPipe *dsp.OutboundPipeline

	queue *jitter.Queue
	pacer *jitter.Pacer

	replay *inboundReplayRing

	mu                 sync.Mutex
	aiConnected        bool
	aiConfigured       bool
	callFormallyEnded  bool
	closed             bool
	resumeToken        string
	handoffPending     bool
	endReason          EndReason

	stats Stats

	startedAt          time.Time
	lastSwitchActivity time.Time
	lastAIActivity     time.Time

	cancel context.CancelFunc
}

// New constructs a Session. The caller is responsible for starting it via
// Run once the switch codec has latched.
func New(cfg *config.Config, logger commons.Logger, callID string, frontend FrontendTransport, switchCodec frame.Codec, frameBytes int, toolHandler ToolHandler) *Session {
	aiRate := 16000
	return &Session{
		CallID:       callID,
		cfg:          cfg,
		logger:       logger.With("call_id", callID),
		frontend:     frontend,
		toolHandler:  toolHandler,
		switchCodec:  switchCodec,
		frameBytes:   frameBytes,
		inboundPipe:  dsp.NewInboundPipeline(cfg.DSP, switchCodec.SampleRate(), aiRate),
		outboundPipe: dsp.NewOutboundPipeline(switchCodec),
		queue:        jitter.NewQueue(200),
		// The ring holds inbound frames after the DSP pipeline, i.e. 20 ms of
		// PCM16 at aiRate each, not the switch's native frame size.
		replay:       newInboundReplayRing(time.Second, aiRate/50*2),
		reconnector:  aiclient.NewSupervisor(cfg.Reconnect, logger),
		startedAt:    time.Now(),
	}
}

// Run starts the pacer first, then the frontend reader, then dials the AI
// and starts the ai-reader once the socket is open — the ordering §4.7
// requires so the switch never sees a gap before the AI is ready.
func (s *Session) Run(parent context.Context) EndReason {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	defer cancel()

	const frameDur = 20 * time.Millisecond
	preRoll := time.Duration(s.cfg.Jitter.BufferMS) * time.Millisecond
	keepalive := time.Duration(s.cfg.Jitter.KeepaliveMS) * time.Millisecond
	s.pacer = jitter.NewPacer(s.queue, s.frontend, s.logger, s.switchCodec, s.frameBytes, frameDur, preRoll, keepalive)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		s.pacer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		s.runFrontendReader(gctx)
		return nil
	})

	reason := s.runAILoop(gctx)
	cancel()
	_ = g.Wait()

	s.teardown()
	return reason
}

func (s *Session) runFrontendReader(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, err := s.frontend.ReadFrame(ctx)
		if err != nil {
			if err == ErrSoftTimeout {
				continue
			}
			s.logger.Infow("frontend closed", "error", err)
			return
		}
		s.mu.Lock()
		s.lastSwitchActivity = time.Now()
		s.stats.PacketsReceived++
		s.stats.BytesReceived += int64(f.Len())
		s.mu.Unlock()

		aiFrame := s.inboundPipe.Process(f)
		s.replay.Push(aiFrame.Payload)

		s.mu.Lock()
		connected := s.aiConnected
		s.mu.Unlock()
		if connected {
			if err := s.ai.SendAudio(aiFrame.Payload); err != nil {
				s.logger.Warnw("send audio to ai failed", "error", err)
			}
		}
	}
}

// runAILoop owns the AI websocket for the Session's lifetime: initial
// connect, the read loop via the aiclient.Handler callbacks below, and
// reconnect-on-error per §4.6. It returns the terminal EndReason.
func (s *Session) runAILoop(ctx context.Context) EndReason {
	s.ai = aiclient.NewClient(s.cfg.AI.WSURL, s.cfg.AI.APIKey, false, s.logger)

	if err := s.connectAI(ctx, "", false); err != nil {
		return ReasonFailed
	}

	for {
		err := s.ai.ReceiveLoop(ctx, s)
		if ctx.Err() != nil {
			return s.terminalReason()
		}
		if s.formallyEnded() {
			return s.terminalReason()
		}
		if err == nil {
			return s.terminalReason()
		}

		s.mu.Lock()
		handoff := s.handoffPending
		s.handoffPending = false
		s.aiConnected = false
		if !handoff {
			s.stats.ReconnectAttempts++
		}
		s.mu.Unlock()

		if handoff {
			s.logger.Infow("reconnecting after handoff", "call_id", s.CallID)
		} else {
			s.logger.Warnw("ai connection lost, reconnecting", "error", err)
		}
		if rErr := s.reconnector.Reconnect(ctx, s.ai, s.CallID, s.resumeTokenSnapshot(), s.replay, !handoff); rErr != nil {
			s.logger.Errorw("reconnect exhausted", "error", rErr)
			if handoff {
				return ReasonHandedOff
			}
			return ReasonFailed
		}
		s.mu.Lock()
		s.aiConnected = true
		s.mu.Unlock()
	}
}

func (s *Session) connectAI(ctx context.Context, resumeToken string, handoff bool) error {
	if err := s.ai.Connect(ctx); err != nil {
		return err
	}
	if err := s.ai.SendInit(aiclient.InitData{
		CallID:               s.CallID,
		Phone:                s.CallerPhone,
		Name:                 s.CallerName,
		Resume:               resumeToken != "",
		ResumeToken:          resumeToken,
		Voice:                s.cfg.AI.Voice,
		Model:                s.cfg.AI.Model,
		SystemPrompt:         s.cfg.AI.SystemPrompt,
		VADThreshold:         s.cfg.VAD.Threshold,
		VADPrefixPaddingMS:   s.cfg.VAD.PrefixPaddingMS,
		VADSilenceDurationMS: s.cfg.VAD.SilenceDurationMS,
	}); err != nil {
		return err
	}
	s.mu.Lock()
	s.aiConnected = true
	s.mu.Unlock()

	if !handoff && resumeToken == "" {
		s.sendWarmupSilence()
	}
	return nil
}

// sendWarmupSilence primes the AI's server-side VAD with a stable noise
// floor before the first real switch frame arrives, per §6's warmup knob.
func (s *Session) sendWarmupSilence() {
	warmup := time.Duration(s.cfg.DSP.WarmupSilenceMS) * time.Millisecond
	if warmup <= 0 {
		return
	}
	frames := int(warmup / (20 * time.Millisecond))
	silence := frame.Silence(frame.CodecLinear16_16k, 640, 20).Payload
	for i := 0; i < frames; i++ {
		if err := s.ai.SendAudio(silence); err != nil {
			s.logger.Warnw("send warmup silence failed", "error", err)
			return
		}
	}
}

func (s *Session) resumeTokenSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeToken
}

func (s *Session) formallyEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callFormallyEnded
}

func (s *Session) terminalReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endReason != "" {
		return s.endReason
	}
	if s.callFormallyEnded {
		return ReasonCompleted
	}
	return ReasonFailed
}

// setEndReason records the specific outcome label (§4.7's
// completed|failed|transferred|handed-off) the handler callbacks observed,
// so teardown's final metric reflects why the call actually ended rather
// than just whether it ended formally.
func (s *Session) setEndReason(r EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endReason == "" {
		s.endReason = r
	}
}

// SetIdentity applies the switch's identity message, forwarding an
// update_phone equivalent once the AI connection is up (§4.5).
func (s *Session) SetIdentity(phone, name string) {
	s.mu.Lock()
	s.CallerPhone = phone
	s.CallerName = name
	connected := s.aiConnected
	s.mu.Unlock()

	if connected && s.ai != nil {
		if err := s.ai.SendUpdatePhone(aiclient.UpdatePhoneData{Phone: phone, Name: name}); err != nil {
			s.logger.Warnw("send update_phone failed", "error", err)
		}
	}
}

// teardown is idempotent: closes the AI socket, closes the frontend
// transport, and is safe to call multiple times or concurrently.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.ai != nil {
		_ = s.ai.Close()
	}
	_ = s.frontend.Close()
	s.logger.Infow("session teardown complete",
		"bytes_sent", s.stats.BytesSent,
		"bytes_received", s.stats.BytesReceived,
		"underruns", s.pacerUnderruns(),
	)
}

// StatsSnapshot returns a consistent copy of the Session's counters,
// read by the metrics collector at scrape time.
func (s *Session) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Underruns = s.pacerUnderruns()
	return st
}

func (s *Session) pacerUnderruns() int64 {
	if s.pacer == nil {
		return 0
	}
	return int64(s.pacer.Stats().Underruns)
}

// Cancel requests an immediate, best-effort teardown. Context cancellation
// alone cannot interrupt a blocked ReadFrame/ReadMessage syscall, so Cancel
// force-closes both sockets directly, the same way OnSessionHandoff
// unblocks the ai-reader — this is what bounds teardown to one pacer tick
// per §5 instead of leaving Run hung on an idle peer.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ai != nil {
		_ = s.ai.Close()
	}
	if s.frontend != nil {
		_ = s.frontend.Close()
	}
}
