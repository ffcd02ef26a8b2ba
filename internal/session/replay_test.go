// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReplayRingBoundedToWindow(t *testing.T) {
	r := newInboundReplayRing(time.Second, 320) // 50 frames/sec * 320B
	for i := 0; i < 100; i++ {
		r.Push(make([]byte, 320))
	}
	snap := r.Snapshot()
	assert.LessOrEqual(t, len(snap)*320, 320*50)
}

func TestReplayRingPreservesOrder(t *testing.T) {
	r := newInboundReplayRing(time.Second, 1)
	r.Push([]byte{0x01})
	r.Push([]byte{0x02})
	r.Push([]byte{0x03})
	snap := r.Snapshot()
	assert.Equal(t, []byte{0x03}, snap[len(snap)-1])
}
