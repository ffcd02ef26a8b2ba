// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dsp

import "math"

// HighPass is a 2nd-order Butterworth high-pass biquad used to strip DC
// offset and mains hum below ~60Hz from inbound telephony audio before the
// noise gate sees it. State is per-direction and must not be shared between
// a call's inbound and outbound paths.
type HighPass struct {
	a0, a1, a2 float64
	b1, b2     float64
	x1, x2     float64
	y1, y2     float64
}

// NewHighPass builds a Butterworth high-pass biquad for the given cutoff
// (Hz) at the given sample rate.
func NewHighPass(cutoffHz float64, sampleRate int) *HighPass {
	omega := 2 * math.Pi * cutoffHz / float64(sampleRate)
	sinO, cosO := math.Sin(omega), math.Cos(omega)
	alpha := sinO / math.Sqrt2 // Q = 1/sqrt(2), maximally flat

	b0 := (1 + cosO) / 2
	b1 := -(1 + cosO)
	b2 := (1 + cosO) / 2
	a0 := 1 + alpha
	a1 := -2 * cosO
	a2 := 1 - alpha

	return &HighPass{
		a0: b0 / a0,
		a1: b1 / a0,
		a2: b2 / a0,
		b1: a1 / a0,
		b2: a2 / a0,
	}
}

// Process filters one sample, updating the biquad's internal state.
func (h *HighPass) Process(x float64) float64 {
	y := h.a0*x + h.a1*h.x1 + h.a2*h.x2 - h.b1*h.y1 - h.b2*h.y2
	h.x2, h.x1 = h.x1, x
	h.y2, h.y1 = h.y1, y
	return y
}

// PreEmphasis applies y[n] = x[n] - coeff*x[n-1], carrying x[n-1] across
// frame boundaries so the filter doesn't click at frame edges.
type PreEmphasis struct {
	coeff float64
	prev  float64
}

func NewPreEmphasis(coeff float64) *PreEmphasis {
	return &PreEmphasis{coeff: coeff}
}

func (p *PreEmphasis) Process(x float64) float64 {
	y := x - p.coeff*p.prev
	p.prev = x
	return y
}

// NoiseGate applies the soft-knee gate: samples below threshold are
// attenuated to a 0.15 gain floor (never fully muted), samples above
// 3*threshold pass unattenuated, and the band between ramps linearly so the
// gate never produces an audible click.
type NoiseGate struct {
	threshold float64
}

func NewNoiseGate(threshold float64) *NoiseGate {
	return &NoiseGate{threshold: threshold}
}

func (g *NoiseGate) Gain(abs float64) float64 {
	lo, hi := g.threshold, 3*g.threshold
	t := (abs - lo) / (hi - lo)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return 0.15 + 0.85*t
}

// SoftClip applies a tanh soft-clip scaled back to the 16-bit PCM range,
// used as the final step of the inbound chain after gain has been applied
// (AGC and/or fixed volume boost) to avoid hard digital clipping.
func SoftClip(x float64) float64 {
	const scale = 32000.0
	return math.Tanh(x/scale) * scale
}

func clampInt16(x float64) int16 {
	if x > math.MaxInt16 {
		return math.MaxInt16
	}
	if x < math.MinInt16 {
		return math.MinInt16
	}
	return int16(x)
}
