// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package jitter

import (
	"testing"

	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/stretchr/testify/assert"
)

func TestQueueNeverExceedsCapacity(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 10; i++ {
		q.Push(frame.New(frame.CodecLinear16_8k, make([]byte, 320), 20))
		assert.LessOrEqual(t, q.Len(), 4)
	}
	assert.Equal(t, 6, q.DroppedOld())
}

func TestQueueDropsOldestNotNewest(t *testing.T) {
	marker := frame.New(frame.CodecLinear16_8k, []byte{0xAA}, 20)
	q := NewQueue(2)
	q.Push(frame.New(frame.CodecLinear16_8k, []byte{0x01}, 20))
	q.Push(frame.New(frame.CodecLinear16_8k, []byte{0x02}, 20))
	q.Push(marker)

	f, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, []byte{0x02}, f.Payload)

	f, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, marker.Payload, f.Payload)
}

func TestQueuePriorityJumpsHead(t *testing.T) {
	q := NewQueue(10)
	q.Push(frame.New(frame.CodecLinear16_8k, []byte{0x01}, 20))
	q.PushPriority(frame.New(frame.CodecLinear16_8k, []byte{0xFF}, 20))

	f, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, byte(0xFF), f.Payload[0])
}

func TestQueueFlushNonPriorityKeepsPriority(t *testing.T) {
	q := NewQueue(10)
	q.Push(frame.New(frame.CodecLinear16_8k, []byte{0x01}, 20))
	q.PushPriority(frame.New(frame.CodecLinear16_8k, []byte{0xFF}, 20))
	q.FlushNonPriority()

	assert.Equal(t, 1, q.Len())
	f, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, byte(0xFF), f.Payload[0])
}
