package tunnel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderOpenReturnsConfiguredBaseURL(t *testing.T) {
	p := NewNoop("https://example.test")
	url, err := p.Open(context.Background(), 3456)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", url)
}

func TestNoopProviderCloseIsNoError(t *testing.T) {
	p := NewNoop("https://example.test")
	assert.NoError(t, p.Close(context.Background()))
}
