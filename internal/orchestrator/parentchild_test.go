package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentChildMapSetAndLookup(t *testing.T) {
	m := newParentChildMap()
	m.set("child-1", "parent-1")

	parent, ok := m.parentOf("child-1")
	require.True(t, ok)
	assert.Equal(t, "parent-1", parent)
}

func TestParentChildMapRemovesChildrenOfEndedParent(t *testing.T) {
	m := newParentChildMap()
	m.set("child-1", "parent-1")
	m.set("child-2", "parent-1")
	m.set("child-3", "parent-2")

	m.removeChildrenOfParent("parent-1")

	_, ok := m.parentOf("child-1")
	assert.False(t, ok)
	_, ok = m.parentOf("child-2")
	assert.False(t, ok)

	parent, ok := m.parentOf("child-3")
	require.True(t, ok)
	assert.Equal(t, "parent-2", parent)
}

func TestParentChildMapSnapshotAndRestoreRoundTrip(t *testing.T) {
	m := newParentChildMap()
	m.set("child-1", "parent-1")

	data := m.snapshot()

	restored := newParentChildMap()
	restored.restore(data)

	parent, ok := restored.parentOf("child-1")
	require.True(t, ok)
	assert.Equal(t, "parent-1", parent)
}
