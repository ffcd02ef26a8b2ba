// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package jitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/pkg/commons"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []frame.Frame
}

func (s *recordingSink) WriteFrame(f frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestPacerEmitsOneFramePerTick(t *testing.T) {
	q := NewQueue(200)
	for i := 0; i < 20; i++ {
		q.Push(frame.New(frame.CodecLinear16_8k, make([]byte, 320), 20))
	}

	sink := &recordingSink{}
	p := NewPacer(q, sink, commons.NewTestLogger(), frame.CodecLinear16_8k, 320, 20*time.Millisecond, 100*time.Millisecond, 1000*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 210*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	// ~210ms at 20ms/frame is ~10-11 frames; allow generous scheduler slack.
	assert.InDelta(t, 10, sink.count(), 3)
}

func TestPacerUnderrunEmitsSilenceAndRebuffers(t *testing.T) {
	q := NewQueue(200)
	for i := 0; i < 6; i++ {
		q.Push(frame.New(frame.CodecLinear16_8k, make([]byte, 320), 20))
	}

	sink := &recordingSink{}
	p := NewPacer(q, sink, commons.NewTestLogger(), frame.CodecLinear16_8k, 320, 5*time.Millisecond, 25*time.Millisecond, 1000*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.GreaterOrEqual(t, p.Stats().Underruns, int64(1))
}
