// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package rtpmedia

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPortAllocatorEvenOnly(t *testing.T) {
	a := NewLocalPortAllocator(40000, 40010)
	require.NoError(t, a.Init(context.Background()))

	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		p, err := a.Allocate()
		require.NoError(t, err)
		assert.Zero(t, p%2)
		assert.False(t, seen[p])
		seen[p] = true
	}

	_, err := a.Allocate()
	assert.Error(t, err)
}

func TestLocalPortAllocatorReleaseReuse(t *testing.T) {
	a := NewLocalPortAllocator(40000, 40002)
	require.NoError(t, a.Init(context.Background()))

	p1, err := a.Allocate()
	require.NoError(t, err)
	a.Release(p1)

	inUse, err := a.InUse()
	require.NoError(t, err)
	assert.Zero(t, inUse)

	p2, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
