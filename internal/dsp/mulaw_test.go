// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMuLawRoundTrip(t *testing.T) {
	pcm := make([]byte, 0, 320)
	for i := int16(-8000); i < 8000; i += 50 {
		pcm = append(pcm, byte(i), byte(i>>8))
	}

	ulaw := MuLawEncode(pcm)
	back := MuLawDecode(ulaw)

	assert.Equal(t, len(pcm), len(back))
	for i := 0; i < len(pcm)/2; i++ {
		orig := int32(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		got := int32(int16(uint16(back[2*i]) | uint16(back[2*i+1])<<8))
		diff := orig - got
		if diff < 0 {
			diff = -diff
		}
		// G.711 is lossy by construction; quantisation error must stay
		// bounded relative to signal magnitude, never gain bits.
		assert.LessOrEqual(t, diff, int32(300), "sample %d: %d vs %d", i, orig, got)
	}
}

// TestMuLawByteRoundTripExact checks §8 property 2 exactly: every
// well-formed µ-law byte must survive decode->encode unchanged, not just
// within a tolerance — unlike the linear-domain round-trip above, which is
// inherently lossy. 0x7F is the standard codec's one non-canonical byte:
// it decodes to the same zero sample as 0xFF ("negative zero"), and no
// conformant encoder — this one included — ever emits it, so it is
// excluded as not well-formed.
func TestMuLawByteRoundTripExact(t *testing.T) {
	for b := 0; b < 256; b++ {
		if b == 0x7F {
			continue
		}
		pcm := MuLawDecode([]byte{byte(b)})
		back := MuLawEncode(pcm)
		assert.Equal(t, byte(b), back[0], "byte %d", b)
	}
}

func TestMuLawSilence(t *testing.T) {
	silence := make([]byte, 160)
	for i := range silence {
		silence[i] = 0xFF
	}
	pcm := MuLawDecode(silence)
	for i := 0; i < len(pcm)/2; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		assert.Zero(t, s)
	}
}

func TestResampleLength(t *testing.T) {
	pcm := make([]byte, 320) // 160 samples @ 8k
	out := Resample(pcm, 8000, 16000)
	assert.Equal(t, 640, len(out))

	back := Resample(out, 16000, 8000)
	assert.InDelta(t, 320, len(back), 2)
}

func TestResampleSilenceIsSilence(t *testing.T) {
	pcm := make([]byte, 640)
	out := Resample(pcm, 16000, 8000)
	for _, b := range out {
		assert.Zero(t, b)
	}
}
