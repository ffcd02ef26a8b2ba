// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package rtpmedia

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderMonotonicSequenceAndTimestamp(t *testing.T) {
	s := NewSender()
	var prevSeq uint16
	var prevTS uint32
	for i := 0; i < 50; i++ {
		raw, err := s.Marshal(make([]byte, 640))
		require.NoError(t, err)

		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(raw))

		if i == 0 {
			assert.True(t, pkt.Marker)
			prevSeq = pkt.SequenceNumber
			prevTS = pkt.Timestamp
			continue
		}
		assert.False(t, pkt.Marker)
		assert.Equal(t, prevSeq+1, pkt.SequenceNumber)
		assert.Equal(t, prevTS+samplesPerFrame20ms, pkt.Timestamp)
		prevSeq, prevTS = pkt.SequenceNumber, pkt.Timestamp
	}
}

func TestReceiverUnmarshal(t *testing.T) {
	s := NewSender()
	raw, err := s.Marshal(make([]byte, 640))
	require.NoError(t, err)

	r := NewReceiver()
	f, err := r.Unmarshal(raw)
	require.NoError(t, err)
	assert.Len(t, f.Payload, 640)
}
