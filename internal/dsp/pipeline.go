// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dsp

import (
	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/internal/frame"
)

// InboundPipeline runs the switch->AI chain: decode to PCM16, strip line
// noise (high-pass + soft-knee gate), resample to the AI's rate, then
// volume boost -> AGC -> pre-emphasis -> soft-clip. The high-pass and
// pre-emphasis stages carry state across frames, so a pipeline is owned by
// exactly one Session for its whole lifetime.
type InboundPipeline struct {
	cfg         config.DSPConfig
	highPass    *HighPass
	gate        *NoiseGate
	preEmphasis *PreEmphasis
	agc         *AGC
	aiRate      int
}

func NewInboundPipeline(cfg config.DSPConfig, sourceRate, aiRate int) *InboundPipeline {
	return &InboundPipeline{
		cfg:         cfg,
		highPass:    NewHighPass(60, sourceRate),
		gate:        NewNoiseGate(cfg.NoiseGateThreshold),
		preEmphasis: NewPreEmphasis(cfg.PreEmphasisCoeff),
		agc:         NewAGC(cfg.TargetRMS),
		aiRate:      aiRate,
	}
}

// Process transforms one inbound frame into a PCM16 frame at the AI's rate.
func (p *InboundPipeline) Process(f frame.Frame) frame.Frame {
	pcm := f.Payload
	if f.Codec == frame.CodecMuLaw8 {
		pcm = MuLawDecode(pcm)
	}
	pcm = p.cleanLine(pcm)

	resampled := Resample(pcm, f.SampleRate, p.aiRate)
	samples := toFloat(resampled)

	if p.cfg.VolumeBoost > 0 {
		for i := range samples {
			samples[i] *= p.cfg.VolumeBoost
		}
	}
	gain := p.agc.Gain(samples)

	out := make([]byte, len(resampled))
	for i, s := range samples {
		y := p.preEmphasis.Process(s * gain)
		v := clampInt16(SoftClip(y))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}

	return frame.New(codecFor(p.aiRate), out, f.NominalDurationMS)
}

// cleanLine applies the high-pass filter and soft-knee noise gate used to
// strip DC offset, hum and low-level line noise from raw caller audio
// before it ever reaches the AI.
func (p *InboundPipeline) cleanLine(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, len(pcm))
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		hp := p.highPass.Process(s)
		gated := hp * p.gate.Gain(abs(hp))
		v := clampInt16(gated)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// OutboundPipeline runs the AI->switch chain: resample to the switch's
// negotiated rate, then encode to the switch codec (µ-law, if so). The
// source is already clean synthesized speech, so no filtering is applied.
type OutboundPipeline struct {
	targetCodec frame.Codec
}

func NewOutboundPipeline(targetCodec frame.Codec) *OutboundPipeline {
	return &OutboundPipeline{targetCodec: targetCodec}
}

func (p *OutboundPipeline) Process(f frame.Frame) frame.Frame {
	resampled := Resample(f.Payload, f.SampleRate, p.targetCodec.SampleRate())
	if p.targetCodec == frame.CodecMuLaw8 {
		return frame.New(frame.CodecMuLaw8, MuLawEncode(resampled), f.NominalDurationMS)
	}
	return frame.New(p.targetCodec, resampled, f.NominalDurationMS)
}

func toFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}
	return out
}

func codecFor(rate int) frame.Codec {
	switch rate {
	case 8000:
		return frame.CodecLinear16_8k
	case 16000:
		return frame.CodecLinear16_16k
	case 24000:
		return frame.CodecLinear16_24k
	case 48000:
		return frame.CodecLinear16_48k
	default:
		return frame.CodecLinear16_16k
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
