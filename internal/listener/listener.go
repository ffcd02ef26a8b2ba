// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package listener accepts switch connections for the framed-TCP dialect
// and spawns a Session per call. Each accepted call returns immediately;
// Sessions share nothing mutable beyond the acceptor's call registry
// (§4.8, §5 "Shared process-wide state").
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/internal/session"
	"github.com/rapidaai/voicebridge/internal/transport/audiosocket"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// Listener is the framed-TCP acceptor. The RTP dialect's acceptor
// (UDP + REST channel provisioning) is a separate, parallel entry point
// that shares this registry; see rtp_acceptor.go.
type Listener struct {
	cfg         *config.Config
	logger      commons.Logger
	toolHandler session.ToolHandler

	mu       sync.Mutex
	sessions map[string]*session.Session

	ln net.Listener
}

func New(cfg *config.Config, logger commons.Logger, toolHandler session.ToolHandler) *Listener {
	return &Listener{
		cfg:         cfg,
		logger:      logger,
		toolHandler: toolHandler,
		sessions:    make(map[string]*session.Session),
	}
}

// Run accepts connections until ctx is cancelled, spawning one Session per
// accepted call.
func (l *Listener) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", l.cfg.Switch.ListenHost, l.cfg.Switch.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listener: bind %s: %w", addr, err)
	}
	l.ln = ln
	l.logger.Infow("listening for switch connections", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warnw("accept failed", "error", err)
			continue
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	transport := audiosocket.NewTransport(conn)

	f, err := transport.AwaitFirstAudio(ctx)
	if err != nil {
		l.logger.Warnw("failed to latch codec on new connection", "error", err)
		_ = conn.Close()
		return
	}

	callID := uuid.NewString()
	sess := session.New(l.cfg, l.logger, callID, transport, f.Codec, f.Len(), l.toolHandler)
	transport.OnIdentity = sess.SetIdentity

	l.Register(callID, sess)
	defer l.Unregister(callID)

	reason := sess.Run(ctx)
	l.logger.Infow("call ended", "call_id", callID, "remote_addr", conn.RemoteAddr().String(), "reason", reason)
}

// Register adds a Session to the shared call registry the RTP dialect's
// acceptor also uses, so ActiveCallCount and AggregateStats cover both
// frontends.
func (l *Listener) Register(callID string, sess *session.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[callID] = sess
}

func (l *Listener) Unregister(callID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, callID)
}

// ActiveCallCount implements metrics.ActiveCallsProvider.
func (l *Listener) ActiveCallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// AggregateStats implements metrics.SessionStatsProvider, summing every
// live Session's counters at scrape time.
func (l *Listener) AggregateStats() session.Stats {
	l.mu.Lock()
	sessions := make([]*session.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	var total session.Stats
	for _, s := range sessions {
		st := s.StatsSnapshot()
		total.BytesSent += st.BytesSent
		total.BytesReceived += st.BytesReceived
		total.PacketsSent += st.PacketsSent
		total.PacketsReceived += st.PacketsReceived
		total.Underruns += st.Underruns
		total.ReconnectAttempts += st.ReconnectAttempts
	}
	return total
}

// Shutdown cancels every active Session, used by graceful shutdown.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sessions {
		s.Cancel()
	}
}
