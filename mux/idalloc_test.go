package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/roboterr"
)

func TestIDAllocatorAssignsDistinctIDs(t *testing.T) {
	a := newIDAllocator()
	dest := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 1}

	seen := make(map[uint8]struct{})
	for i := 0; i < 256; i++ {
		id, err := a.allocate(dest)
		require.NoError(t, err)
		_, dup := seen[id]
		assert.False(t, dup, "id %d allocated twice before any release", id)
		seen[id] = struct{}{}
	}
}

func TestIDAllocatorSaturates(t *testing.T) {
	a := newIDAllocator()
	dest := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 1}

	for i := 0; i < 256; i++ {
		_, err := a.allocate(dest)
		require.NoError(t, err)
	}

	_, err := a.allocate(dest)
	require.Error(t, err)
	var sat roboterr.Saturated
	require.ErrorAs(t, err, &sat)
	assert.Equal(t, dest, sat.Destination)
}

func TestIDAllocatorReusesReleasedID(t *testing.T) {
	a := newIDAllocator()
	dest := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 1}

	id, err := a.allocate(dest)
	require.NoError(t, err)
	a.release(id)

	// One slot was freed, so the pool can hand out a full 256 ids again
	// before saturating.
	for i := 0; i < 256; i++ {
		_, err := a.allocate(dest)
		require.NoError(t, err)
	}

	_, err = a.allocate(dest)
	require.Error(t, err)
}
