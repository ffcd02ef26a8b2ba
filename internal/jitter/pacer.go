// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package jitter

import (
	"context"
	"time"

	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// Stats tracks the pacer's lifetime counters, read by the Session for its
// final call_ended metric and shutdown log line.
type Stats struct {
	FramesSent int64
	Underruns  int64
	DroppedOld int64
}

// Sink is where the pacer writes frames it has decided to play — the
// switch-side transport writer (framed-TCP or RTP).
type Sink interface {
	WriteFrame(f frame.Frame) error
}

// Pacer owns the single outbound queue for a Session and emits exactly one
// frame per frame-duration of wall clock, buffering on start and after
// every underrun (§4.4). It is started immediately on accept, before the
// AI session exists, so the switch never sees a gap.
type Pacer struct {
	queue        *Queue
	sink         Sink
	logger       commons.Logger
	codec        frame.Codec
	frameBytes   int
	frameDur     time.Duration
	preRollBytes int
	keepaliveDur time.Duration

	playing      bool
	lastEmit     time.Time
	bytesPlayed  int64
	stats        Stats
}

// NewPacer builds a Pacer for one Session's switch codec and jitter
// configuration. The pre-roll derived from preRollDur is clamped here to at
// least 5 frames worth, per §4.4.
func NewPacer(queue *Queue, sink Sink, logger commons.Logger, codec frame.Codec, frameBytes int, frameDur, preRollDur, keepaliveDur time.Duration) *Pacer {
	bytesPerSec := float64(frameBytes) / frameDur.Seconds()
	preRollBytes := int(preRollDur.Seconds() * bytesPerSec)
	minPreRoll := frameBytes * 5
	if preRollBytes < minPreRoll {
		preRollBytes = minPreRoll
	}

	return &Pacer{
		queue:        queue,
		sink:         sink,
		logger:       logger,
		codec:        codec,
		frameBytes:   frameBytes,
		frameDur:     frameDur,
		preRollBytes: preRollBytes,
		keepaliveDur: keepaliveDur,
	}
}

// Run drives the pacer until ctx is cancelled. Each tick's deadline is
// computed from bytes actually played so far (expected = start +
// bytes_played/bytes_per_sec) rather than accumulated from the previous
// tick, which keeps cumulative drift within one frame across a call even
// under scheduler jitter.
func (p *Pacer) Run(ctx context.Context) {
	start := time.Now()
	p.lastEmit = start
	bytesPerSec := float64(p.frameBytes) / p.frameDur.Seconds()

	for {
		expected := start.Add(time.Duration(float64(p.bytesPlayed) / bytesPerSec * float64(time.Second)))
		timer := time.NewTimer(time.Until(expected))
		select {
		case <-ctx.Done():
			timer.Stop()
			// Best-effort final silence frame on cancellation (§5).
			p.emit(frame.Silence(p.codec, p.frameBytes, int(p.frameDur.Milliseconds())))
			return
		case <-timer.C:
			p.tick()
		}
	}
}

func (p *Pacer) tick() {
	if time.Since(p.lastEmit) >= p.keepaliveDur && p.queue.Len() == 0 {
		p.emit(frame.Silence(p.codec, p.frameBytes, int(p.frameDur.Milliseconds())))
		return
	}

	if !p.playing {
		if p.queue.BufferedBytes() < p.preRollBytes {
			p.emit(frame.Silence(p.codec, p.frameBytes, int(p.frameDur.Milliseconds())))
			return
		}
		p.playing = true
	}

	f, ok := p.queue.Pop()
	if !ok {
		p.stats.Underruns++
		p.playing = false
		p.emit(frame.Silence(p.codec, p.frameBytes, int(p.frameDur.Milliseconds())))
		return
	}
	p.emit(f)
}

func (p *Pacer) emit(f frame.Frame) {
	if err := p.sink.WriteFrame(f); err != nil {
		p.logger.Warnw("pacer: write frame failed", "error", err)
		return
	}
	p.lastEmit = time.Now()
	p.bytesPlayed += int64(f.Len())
	p.stats.FramesSent++
	p.stats.DroppedOld = int64(p.queue.DroppedOld())
}

// Stats returns a snapshot of the pacer's lifetime counters.
func (p *Pacer) Stats() Stats { return p.stats }
