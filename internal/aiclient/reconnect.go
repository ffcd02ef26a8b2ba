// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package aiclient

import (
	"context"
	"time"

	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// ReplayRing is the bounded ~1s inbound-audio ring a Session keeps so a
// reconnect can cover the gap without the caller hearing it (§4.6).
type ReplayRing interface {
	Snapshot() [][]byte
}

// Supervisor owns reconnect/resume policy for one Session's AI leg:
// exponential backoff up to MaxAttempts, resume-with-token, and inbound
// replay after a successful reconnect. A session_handoff is treated as a
// voluntary reconnect that does not consume the attempt budget.
type Supervisor struct {
	cfg    config.ReconnectConfig
	logger commons.Logger

	attempts int
}

func NewSupervisor(cfg config.ReconnectConfig, logger commons.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, logger: logger}
}

// Reconnect dials again with exponential backoff, sends init with
// resume=true and the given token (empty when no handoff token is held),
// and replays buffered
// inbound audio. formallyEnded must be checked by the caller before
// invoking Reconnect — per §3 invariant 4, no reconnect is attempted once
// the call has formally ended.
func (s *Supervisor) Reconnect(ctx context.Context, client *Client, callID, resumeToken string, replay ReplayRing, counted bool) error {
	if counted {
		if s.attempts >= s.cfg.MaxAttempts {
			return errMaxAttemptsExceeded
		}
		delay := s.cfg.BaseDelay * time.Duration(1<<uint(s.attempts))
		s.attempts++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}

	if err := client.SendInit(InitData{CallID: callID, Resume: true, ResumeToken: resumeToken}); err != nil {
		return err
	}

	if replay != nil {
		for _, pcm := range replay.Snapshot() {
			if err := client.SendAudio(pcm); err != nil {
				s.logger.Warnw("aiclient: replay frame failed", "error", err)
			}
		}
	}

	if counted {
		s.logger.Infow("aiclient: reconnected", "call_id", callID, "attempt", s.attempts)
	} else {
		s.logger.Infow("aiclient: handoff reconnect complete", "call_id", callID)
	}
	return nil
}

// Reset clears the attempt counter so a later transient blip gets the full
// backoff budget again. The Session calls it when the AI confirms a resumed
// session (session_resumed).
func (s *Supervisor) Reset() { s.attempts = 0 }

// errMaxAttemptsExceeded signals the Session supervisor should tear the
// call down with reason "resource" / reconnect-exhausted.
var errMaxAttemptsExceeded = &maxAttemptsError{}

type maxAttemptsError struct{}

func (e *maxAttemptsError) Error() string { return "aiclient: max reconnect attempts exceeded" }
