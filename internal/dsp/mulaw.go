// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package dsp implements the inbound/outbound audio kernel: G.711 µ-law
// companding, windowed-sinc resampling, the high-pass/pre-emphasis filters, the
// noise gate and the AGC (§4.1 of the engine spec). None of these have a
// trustworthy third-party call site anywhere in the retrieved pack — the
// two codec/resampler libraries named in the original dependency list are
// never actually invoked by any example, so rather than guess at an
// unverifiable signature we hold ourselves to the ITU-T/­textbook formulas
// directly. See DESIGN.md for the full justification.
package dsp

// muLawDecodeTable is the standard ITU-T G.711 µ-law decompression table:
// index by the raw byte as transmitted (bit-inverted), get back the signed
// 16-bit linear sample.
var muLawDecodeTable = buildMuLawDecodeTable()

const (
	muLawBias = 0x84
	muLawClip = 32635
)

func buildMuLawDecodeTable() [256]int16 {
	var t [256]int16
	for i := 0; i < 256; i++ {
		u := byte(^i) // µ-law bytes are transmitted bit-inverted
		sign := int32(1)
		if u&0x80 != 0 {
			sign = -1
		}
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		magnitude := (int32(mantissa) << (exponent + 3)) + muLawBias<<exponent - muLawBias
		t[i] = int16(sign * magnitude)
	}
	return t
}

// MuLawDecode converts a buffer of G.711 µ-law bytes to little-endian
// signed 16-bit PCM (two bytes per input byte).
func MuLawDecode(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		s := muLawDecodeTable[b]
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// MuLawEncode converts little-endian signed 16-bit PCM to G.711 µ-law.
// len(pcm) must be even; any trailing odd byte is ignored.
func MuLawEncode(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = encodeMuLawSample(sample)
	}
	return out
}

func encodeMuLawSample(sample int16) byte {
	sign := byte(0x00)
	s := int32(sample)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); (s&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	b := sign | (exponent << 4) | mantissa
	return ^b
}
