// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package rtpmedia

import (
	"math/rand"

	"github.com/pion/rtp"

	"github.com/rapidaai/voicebridge/internal/frame"
)

const (
	payloadTypeL16_16k = 11
	samplesPerFrame20ms = 320 // 20ms @ 16kHz mono
)

// Sender emits outbound RTP packets with monotonic sequence/timestamp and
// the marker bit set only on the stream's first packet (§4.3).
type Sender struct {
	seq       uint16
	timestamp uint32
	ssrc      uint32
	first     bool
}

func NewSender() *Sender {
	return &Sender{
		seq:       uint16(rand.Intn(1 << 16)),
		timestamp: rand.Uint32(),
		ssrc:      rand.Uint32(),
		first:     true,
	}
}

// Marshal builds one RTP packet carrying payload, advancing sequence and
// timestamp state for the next call.
func (s *Sender) Marshal(payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadTypeL16_16k,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
			Marker:         s.first,
		},
		Payload: payload,
	}
	s.first = false
	s.seq++
	s.timestamp += samplesPerFrame20ms
	return pkt.Marshal()
}

// Receiver decodes inbound RTP packets into Frames, tolerating CSRC,
// extensions and padding on ingress per §4.3.
type Receiver struct{}

func NewReceiver() *Receiver { return &Receiver{} }

// Unmarshal parses one RTP packet and returns the payload as a
// linear16/16k Frame with padding stripped.
func (r *Receiver) Unmarshal(raw []byte) (frame.Frame, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return frame.Frame{}, err
	}
	return frame.New(frame.CodecLinear16_16k, pkt.Payload, 20), nil
}
