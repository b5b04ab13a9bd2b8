package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLockSetOrdersAscending(t *testing.T) {
	ls := newLockSet("sess-b", "sess-a", "sess-c")
	assert.Equal(t, []string{"sess-a", "sess-b", "sess-c"}, ls.Ordered())
}
