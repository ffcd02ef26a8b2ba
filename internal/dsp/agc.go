// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AGC applies per-frame automatic gain control: when a frame's RMS exceeds
// a noise floor, scale it toward targetRMS, clamped to [0.8, 3.0] so a
// single quiet or loud frame can't swing the level abruptly.
type AGC struct {
	targetRMS float64
	scratch   []float64 // reused across Gain calls; one AGC per Session, single-threaded
}

func NewAGC(targetRMS float64) *AGC {
	return &AGC{targetRMS: targetRMS}
}

// Gain computes the gain factor for one frame of linear samples.
func (a *AGC) Gain(samples []float64) float64 {
	if len(samples) == 0 {
		return 1.0
	}
	if cap(a.scratch) < len(samples) {
		a.scratch = make([]float64, len(samples))
	}
	sq := a.scratch[:len(samples)]
	copy(sq, samples)
	floats.Mul(sq, samples)
	rms := rmsOf(sq)
	if rms <= 30 {
		return 1.0
	}
	gain := a.targetRMS / rms
	if gain < 0.8 {
		gain = 0.8
	}
	if gain > 3.0 {
		gain = 3.0
	}
	return gain
}

func rmsOf(squares []float64) float64 {
	if len(squares) == 0 {
		return 0
	}
	mean := floats.Sum(squares) / float64(len(squares))
	return math.Sqrt(mean)
}
