// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package frame defines the immutable audio unit that flows between every
// component of the bridge — the switch frontend, the DSP kernel, the AI
// client and the jitter buffer never pass a raw []byte between each other,
// only a Frame. Carrying codec/rate/duration alongside the bytes lets a
// downstream component decide whether it needs to resample without
// threading that context through every call signature.
package frame

import "time"

// Codec identifies the PCM/companding format carried by a Frame.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecMuLaw8        // G.711 µ-law, 8 kHz
	CodecLinear16_8k   // signed 16-bit PCM, 8 kHz
	CodecLinear16_16k  // signed 16-bit PCM, 16 kHz
	CodecLinear16_24k  // signed 16-bit PCM, 24 kHz
	CodecLinear16_48k  // signed 16-bit PCM, 48 kHz
	CodecOpus48k       // Opus, 48 kHz
)

func (c Codec) String() string {
	switch c {
	case CodecMuLaw8:
		return "mulaw/8k"
	case CodecLinear16_8k:
		return "linear16/8k"
	case CodecLinear16_16k:
		return "linear16/16k"
	case CodecLinear16_24k:
		return "linear16/24k"
	case CodecLinear16_48k:
		return "linear16/48k"
	case CodecOpus48k:
		return "opus/48k"
	default:
		return "unknown"
	}
}

// SampleRate returns the codec's native sample rate in Hz.
func (c Codec) SampleRate() int {
	switch c {
	case CodecMuLaw8, CodecLinear16_8k:
		return 8000
	case CodecLinear16_16k:
		return 16000
	case CodecLinear16_24k:
		return 24000
	case CodecLinear16_48k, CodecOpus48k:
		return 48000
	default:
		return 0
	}
}

// Frame is an immutable slice of encoded or linear PCM audio, tagged with
// enough metadata for any component to reason about it without external
// context. Once constructed, the byte payload must never be mutated —
// components that need to transform audio allocate a new Frame.
type Frame struct {
	Codec             Codec
	SampleRate        int
	NominalDurationMS int
	Payload           []byte

	// Priority marks a distinguished outbound frame (e.g. address-TTS
	// splice) that jumps to the head of the jitter buffer's queue (§4.4).
	Priority bool
}

// New builds a Frame, defaulting SampleRate from the codec when unset.
func New(codec Codec, payload []byte, nominalDurationMS int) Frame {
	return Frame{
		Codec:             codec,
		SampleRate:        codec.SampleRate(),
		NominalDurationMS: nominalDurationMS,
		Payload:           payload,
	}
}

// Duration returns the frame's nominal playout duration.
func (f Frame) Duration() time.Duration {
	return time.Duration(f.NominalDurationMS) * time.Millisecond
}

// Len returns the payload size in bytes.
func (f Frame) Len() int { return len(f.Payload) }

// Silence builds a frame of n bytes of codec-appropriate silence: 0xFF for
// µ-law (the all-ones code maps to zero amplitude in G.711 companding),
// 0x00 for everything else (§4.4 underrun / keep-alive behaviour).
func Silence(codec Codec, n int, nominalDurationMS int) Frame {
	buf := make([]byte, n)
	if codec == CodecMuLaw8 {
		for i := range buf {
			buf[i] = 0xFF
		}
	}
	return New(codec, buf, nominalDurationMS)
}
