package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientPostActivityRecordsEntry(t *testing.T) {
	c := NewMockClient()
	err := c.PostActivity(context.Background(), "tok-1", Activity{SessionID: "s1", Kind: ActivityThought, Text: "hi"})
	require.NoError(t, err)
	assert.Len(t, c.Posted, 1)
	assert.Equal(t, "s1", c.Posted[0].SessionID)
}

func TestMockClientPostActivityRejectsInvalidToken(t *testing.T) {
	c := NewMockClient()
	c.InvalidTokens["bad-tok"] = "revoked"
	err := c.PostActivity(context.Background(), "bad-tok", Activity{SessionID: "s1", Kind: ActivityAction})
	assert.Error(t, err)
	assert.Empty(t, c.Posted)
}

func TestMockClientProbeReflectsInvalidTokens(t *testing.T) {
	c := NewMockClient()
	c.InvalidTokens["bad-tok"] = "revoked"

	assert.True(t, c.Probe(context.Background(), "good-tok").Valid)

	status := c.Probe(context.Background(), "bad-tok")
	assert.False(t, status.Valid)
	assert.Equal(t, "revoked", status.Reason)
}

func TestMockClientFetchIssueProjectReturnsConfiguredValue(t *testing.T) {
	c := NewMockClient()
	c.ProjectByIssue["ISSUE-1"] = "Platform"

	project, err := c.FetchIssueProject(context.Background(), "tok", "ISSUE-1")
	require.NoError(t, err)
	assert.Equal(t, "Platform", project)

	project, err = c.FetchIssueProject(context.Background(), "tok", "ISSUE-UNKNOWN")
	require.NoError(t, err)
	assert.Empty(t, project)
}
